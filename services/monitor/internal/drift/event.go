// Package drift classifies deviations between captured UI trees and their
// baseline templates: fuzzy template matching, structural diffing, transition
// checking, and the drift events the audit log records.
package drift

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Drift types.
const (
	TypeLayout       = "layout"
	TypeContent      = "content"
	TypeSequence     = "sequence"
	TypeManipulative = "manipulative"
)

// Severities, ordered info < warning < critical.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Event is one detected drift finding.
type Event struct {
	EventID    string
	DriftType  string
	Severity   string
	Details    map[string]any
	Location   string
	ChangeType string
	Timestamp  float64
}

var eventClock = func() float64 { return float64(time.Now().UnixNano()) / 1e9 }

// NewEvent builds an event with a deterministic id derived from
// (type, severity, timestamp).
func NewEvent(driftType, severity string, details map[string]any) Event {
	e := Event{
		DriftType: driftType,
		Severity:  severity,
		Details:   details,
		Timestamp: eventClock(),
	}
	e.EventID = eventID(e.DriftType, e.Severity, e.Timestamp)
	return e
}

func eventID(driftType, severity string, ts float64) string {
	seed := driftType + ":" + severity + ":" + strconv.FormatFloat(ts, 'f', -1, 64)
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])[:16]
}

// NewLayoutDrift reports a structural deviation on a matched screen.
// Severity escalates as similarity drops: critical below 0.7, warning below
// 0.9, info otherwise.
func NewLayoutDrift(screenID string, similarity float64, diffSummary string) Event {
	severity := SeverityInfo
	switch {
	case similarity < 0.7:
		severity = SeverityCritical
	case similarity < 0.9:
		severity = SeverityWarning
	}
	return NewEvent(TypeLayout, severity, map[string]any{
		"screen_id":    screenID,
		"similarity":   similarity,
		"diff_summary": diffSummary,
	})
}

// NewContentDrift reports text or value changes on an otherwise matching
// screen.
func NewContentDrift(screenID string, changes map[string]any) Event {
	return NewEvent(TypeContent, SeverityInfo, map[string]any{
		"screen_id": screenID,
		"changes":   changes,
	})
}

// NewSequenceDrift reports a transition outside the template's allowed set.
func NewSequenceDrift(invalidTransition string, expected []string) Event {
	return NewEvent(TypeSequence, SeverityWarning, map[string]any{
		"invalid_transition":   invalidTransition,
		"expected_transitions": expected,
	})
}

// NewManipulativeDrift reports a detected dark pattern.
func NewManipulativeDrift(patternType, description string, flow []string) Event {
	return NewEvent(TypeManipulative, SeverityCritical, map[string]any{
		"pattern_type": patternType,
		"description":  description,
		"flow":         flow,
	})
}

// IsCritical reports whether the event carries critical severity.
func (e Event) IsCritical() bool { return e.Severity == SeverityCritical }

// Summary renders a short human-readable line for dashboards and logs.
func (e Event) Summary() string {
	s := fmt.Sprintf("[%s] drift=%s", e.Severity, e.DriftType)
	if v, ok := e.Details["screen_id"].(string); ok {
		s += " screen=" + v
	}
	if v, ok := e.Details["invalid_transition"].(string); ok {
		s += " transition=" + v
	}
	if v, ok := e.Details["similarity"].(float64); ok {
		s += fmt.Sprintf(" similarity=%.2f", v)
	}
	return s
}

// ToMap projects the event into the payload shape the audit log persists.
// Location and change type are included only when set.
func (e Event) ToMap() map[string]any {
	m := map[string]any{
		"event_id":   e.EventID,
		"drift_type": e.DriftType,
		"severity":   e.Severity,
		"details":    e.Details,
		"timestamp":  e.Timestamp,
	}
	if e.Location != "" {
		m["location"] = e.Location
	}
	if e.ChangeType != "" {
		m["change_type"] = e.ChangeType
	}
	return m
}

// SetEventClock overrides the event timestamp source. Test hook.
func SetEventClock(now func() float64) { eventClock = now }
