package drift

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/SaltProphet/SystemZero/services/monitor/internal/baseline"
)

const (
	transitionHistoryCap = 100
	defaultLoopWindow    = 5
)

// TransitionRecord is one observed screen change.
type TransitionRecord struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Timestamp float64 `json:"timestamp"`
}

// TransitionResult reports whether a transition was allowed.
type TransitionResult struct {
	Valid      bool     `json:"valid"`
	Reason     string   `json:"reason,omitempty"`
	Transition string   `json:"transition,omitempty"`
	Expected   []string `json:"expected,omitempty"`
}

// ForcedFlow describes a detected single-exit navigation funnel.
type ForcedFlow struct {
	PatternType string   `json:"pattern_type"`
	Flow        []string `json:"flow"`
	Length      int      `json:"length"`
	Description string   `json:"description"`
}

// TransitionChecker validates screen transitions against templates and keeps
// a bounded history for loop and forced-flow detection. Safe for concurrent
// use; the history is process-wide shared state.
type TransitionChecker struct {
	mu      sync.Mutex
	history []TransitionRecord
}

// NewTransitionChecker returns a checker with empty history.
func NewTransitionChecker() *TransitionChecker {
	return &TransitionChecker{}
}

// CheckTransition validates a move from the source template to a target
// screen. A missing source template or an empty valid_transitions list means
// no restriction. Targets may be listed bare or as "<src> -> <dst>".
func (c *TransitionChecker) CheckTransition(from *baseline.Template, toScreenID string) TransitionResult {
	if from == nil {
		return TransitionResult{Valid: true, Reason: "no source template (initial state)"}
	}
	if len(from.ValidTransitions) == 0 {
		return TransitionResult{Valid: true, Reason: "no transition restrictions"}
	}

	want := fmt.Sprintf("%s -> %s", from.ScreenID, toScreenID)
	for _, allowed := range from.ValidTransitions {
		if allowed == want || allowed == toScreenID {
			return TransitionResult{Valid: true, Transition: want}
		}
	}
	return TransitionResult{
		Valid:    false,
		Reason:   fmt.Sprintf("unexpected transition: %s", want),
		Expected: append([]string(nil), from.ValidTransitions...),
	}
}

// RecordTransition appends to the history ring, evicting the oldest entry
// past capacity.
func (c *TransitionChecker) RecordTransition(from, to string, ts float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, TransitionRecord{From: from, To: to, Timestamp: ts})
	if len(c.history) > transitionHistoryCap {
		c.history = c.history[1:]
	}
}

// History returns the most recent count records, oldest first.
func (c *TransitionChecker) History(count int) []TransitionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	if count <= 0 || count > len(c.history) {
		count = len(c.history)
	}
	out := make([]TransitionRecord, count)
	copy(out, c.history[len(c.history)-count:])
	return out
}

// DetectLoops reports repeated subsequences of length >= 2 within the last
// window transitions. Fewer than three recorded transitions never loop.
func (c *TransitionChecker) DetectLoops(window int) [][]string {
	if window <= 0 {
		window = defaultLoopWindow
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.history) < 3 {
		return nil
	}
	start := len(c.history) - window
	if start < 0 {
		start = 0
	}
	recent := c.history[start:]

	var loops [][]string
	for i := 0; i < len(recent)-2; i++ {
		for j := i + 2; j < len(recent); j++ {
			seq := fromIDs(recent[i:j])
			if repeats(seq, fromIDs(recent[i:])) {
				loops = append(loops, seq)
			}
		}
	}
	return loops
}

// DetectForcedFlow reports a funnel when, over the last five transitions
// (needing at least three), every templated non-terminal screen in the
// observed flow allows exactly one exit.
func (c *TransitionChecker) DetectForcedFlow(templates map[string]baseline.Template) *ForcedFlow {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.history) < 3 {
		return nil
	}
	start := len(c.history) - 5
	if start < 0 {
		start = 0
	}
	recent := c.history[start:]

	flow := fromIDs(recent)
	flow = append(flow, recent[len(recent)-1].To)

	for _, screenID := range flow[:len(flow)-1] {
		tmpl, ok := templates[screenID]
		if !ok {
			continue
		}
		if len(tmpl.ValidTransitions) != 1 {
			return nil
		}
	}
	if len(flow) < 3 {
		return nil
	}
	return &ForcedFlow{
		PatternType: "forced_flow",
		Flow:        flow,
		Length:      len(flow),
		Description: "user appears to be in a forced navigation flow",
	}
}

// ValidateTransitionGraph reports, per screen, transitions that are
// syntactically broken or that reference unknown screens.
func (c *TransitionChecker) ValidateTransitionGraph(templates map[string]baseline.Template) map[string][]string {
	errs := make(map[string][]string)
	for screenID, tmpl := range templates {
		var screenErrs []string
		for _, tr := range tmpl.ValidTransitions {
			if tr == "" {
				continue
			}
			if !strings.Contains(tr, " -> ") {
				screenErrs = append(screenErrs, fmt.Sprintf("invalid transition format: %s", tr))
				continue
			}
			parsed, ok := baseline.ParseTransition(tr)
			if !ok {
				screenErrs = append(screenErrs, fmt.Sprintf("invalid transition format: %s", tr))
				continue
			}
			if _, known := templates[parsed.To]; !known {
				screenErrs = append(screenErrs, fmt.Sprintf("transition references unknown screen: %s", parsed.To))
			}
		}
		if len(screenErrs) > 0 {
			sort.Strings(screenErrs)
			errs[screenID] = screenErrs
		}
	}
	return errs
}

func fromIDs(records []TransitionRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.From
	}
	return out
}

// repeats reports whether seq occurs at least twice in ids.
func repeats(seq, ids []string) bool {
	if len(seq) < 2 {
		return false
	}
	count := 0
	for i := 0; i+len(seq) <= len(ids); i++ {
		match := true
		for j := range seq {
			if ids[i+j] != seq[j] {
				match = false
				break
			}
		}
		if match {
			count++
		}
	}
	return count >= 2
}
