package drift

import (
	"sort"
	"sync"

	"github.com/SaltProphet/SystemZero/pkg/signature"
	"github.com/SaltProphet/SystemZero/pkg/uitree"
	"github.com/SaltProphet/SystemZero/services/monitor/internal/baseline"
)

// Analysis is the outcome of running one capture through the pipeline.
type Analysis struct {
	Tree       *uitree.Tree     `json:"-"`
	Signatures signature.Triple `json:"signatures"`
	ScreenID   string           `json:"screen_id,omitempty"`
	Score      float64          `json:"score"`
	Matched    bool             `json:"matched"`
	Diff       *DiffResult      `json:"diff,omitempty"`
	Events     []Event          `json:"events"`
}

// Detector runs the full drift pipeline: normalize, sign, match against the
// template set, validate the screen transition, and diff against the last
// capture of the same screen. It carries cross-capture state (transition
// history, last-seen trees) and is safe for concurrent use.
type Detector struct {
	matcher     *Matcher
	diff        *DiffEngine
	transitions *TransitionChecker

	mu        sync.Mutex
	lastByID  map[string]*uitree.Tree
	lastMatch string
}

// NewDetector builds a detector at the default matcher threshold.
func NewDetector() *Detector {
	return &Detector{
		matcher:     NewMatcher(),
		diff:        NewDiffEngine(),
		transitions: NewTransitionChecker(),
		lastByID:    make(map[string]*uitree.Tree),
	}
}

// Transitions exposes the shared transition checker.
func (d *Detector) Transitions() *TransitionChecker { return d.transitions }

// Matcher exposes the underlying matcher.
func (d *Detector) Matcher() *Matcher { return d.matcher }

// Analyze runs one raw capture through the pipeline against the given
// template set and returns everything the caller needs to persist.
func (d *Detector) Analyze(raw map[string]any, templates map[string]baseline.Template, ts float64) Analysis {
	tree := uitree.Normalize(raw)
	a := Analysis{
		Tree:       tree,
		Signatures: signature.GenerateMulti(tree),
		Events:     []Event{},
	}
	if tree.IsEmpty() {
		return a
	}

	best, score, ok := d.matcher.FindBestMatch(tree, sortedTemplates(templates))
	a.Score = score
	if !ok {
		d.reportMismatch(&a, best, tree)
		return a
	}
	a.Matched = true
	a.ScreenID = best.ScreenID

	d.checkSequence(&a, best, templates, ts)
	d.checkLayout(&a, best)
	d.checkContent(&a, tree)

	d.mu.Lock()
	d.lastByID[best.ScreenID] = tree
	d.lastMatch = best.ScreenID
	d.mu.Unlock()

	return a
}

// reportMismatch records a capture that fell below the similarity threshold
// as layout drift against its nearest template. When an earlier capture of
// that screen exists, the structural diff is attached for forensics.
func (d *Detector) reportMismatch(a *Analysis, nearest baseline.Template, tree *uitree.Tree) {
	if nearest.ScreenID == "" {
		return
	}
	a.ScreenID = nearest.ScreenID

	d.mu.Lock()
	prev := d.lastByID[nearest.ScreenID]
	d.mu.Unlock()

	summary := "similarity below threshold against nearest template"
	if prev != nil {
		result := d.diff.Diff(prev, tree)
		a.Diff = &result
		summary = d.diff.Summary(result)
	}
	a.Events = append(a.Events, NewLayoutDrift(nearest.ScreenID, a.Score, summary))
}

// checkSequence validates the transition from the previously matched screen
// and runs the dark-pattern detectors over the updated history.
func (d *Detector) checkSequence(a *Analysis, to baseline.Template, templates map[string]baseline.Template, ts float64) {
	d.mu.Lock()
	prevID := d.lastMatch
	d.mu.Unlock()

	if prevID == "" || prevID == to.ScreenID {
		return
	}

	var prev *baseline.Template
	if t, ok := templates[prevID]; ok {
		prev = &t
	}
	result := d.transitions.CheckTransition(prev, to.ScreenID)
	d.transitions.RecordTransition(prevID, to.ScreenID, ts)

	if !result.Valid {
		a.Events = append(a.Events, NewSequenceDrift(prevID+" -> "+to.ScreenID, result.Expected))
	}
	for _, loop := range d.transitions.DetectLoops(defaultLoopWindow) {
		a.Events = append(a.Events, NewManipulativeDrift("loop", "repeated navigation sequence detected", loop))
	}
	if flow := d.transitions.DetectForcedFlow(templates); flow != nil {
		a.Events = append(a.Events, NewManipulativeDrift(flow.PatternType, flow.Description, flow.Flow))
	}
}

// checkLayout reports layout drift when the capture's structural signature
// disagrees with the template's expectation.
func (d *Detector) checkLayout(a *Analysis, tmpl baseline.Template) {
	if tmpl.StructureSignature == "" {
		return
	}
	if signature.Equal(tmpl.StructureSignature, a.Signatures.Structural) {
		return
	}
	summary := "structure signature mismatch"
	if a.Diff != nil {
		summary = d.diff.Summary(*a.Diff)
	}
	a.Events = append(a.Events, NewLayoutDrift(tmpl.ScreenID, a.Score, summary))
}

// checkContent diffs against the last capture of the same screen; property
// changes with an unchanged shape are content drift.
func (d *Detector) checkContent(a *Analysis, tree *uitree.Tree) {
	d.mu.Lock()
	prev := d.lastByID[a.ScreenID]
	d.mu.Unlock()
	if prev == nil {
		return
	}

	prevSigs := signature.GenerateMulti(prev)
	if signature.Equal(prevSigs.Full, a.Signatures.Full) {
		return
	}

	result := d.diff.Diff(prev, tree)
	a.Diff = &result
	if !signature.Equal(prevSigs.Structural, a.Signatures.Structural) {
		// Shape changed too; layout drift against the template already
		// covers it, and the diff stays attached for forensics.
		return
	}

	changes := make(map[string]any, len(result.Modified))
	for _, c := range result.Modified {
		props := make(map[string]any, len(c.Properties))
		for k, v := range c.Properties {
			props[k] = map[string]any{"old": v[0], "new": v[1]}
		}
		changes[c.Path] = props
	}
	if len(changes) > 0 {
		a.Events = append(a.Events, NewContentDrift(a.ScreenID, changes))
	}
}

func sortedTemplates(templates map[string]baseline.Template) []baseline.Template {
	ids := make([]string, 0, len(templates))
	for id := range templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]baseline.Template, 0, len(ids))
	for _, id := range ids {
		out = append(out, templates[id])
	}
	return out
}
