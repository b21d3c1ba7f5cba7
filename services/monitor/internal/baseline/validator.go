package baseline

import (
	"fmt"
	"strings"
)

// Validator enforces template field rules before a template enters the
// store: a non-empty screen_id, a hex structure signature when present, and
// transition strings that are either empty or "<from> -> <to>".
type Validator struct{}

// NewValidator returns a stateless validator.
func NewValidator() *Validator { return &Validator{} }

// Validate reports whether a template is acceptable.
func (v *Validator) Validate(t Template) bool {
	ok, _ := v.ValidateWithErrors(t)
	return ok
}

// ValidateWithErrors validates and collects every problem found.
func (v *Validator) ValidateWithErrors(t Template) (bool, []string) {
	var errs []string

	if strings.TrimSpace(t.ScreenID) == "" {
		errs = append(errs, "screen_id must be a non-empty string")
	}
	for i, n := range t.RequiredNodes {
		if strings.TrimSpace(n) == "" {
			errs = append(errs, fmt.Sprintf("required_nodes[%d] must be a non-empty string", i))
		}
	}
	if sig := t.StructureSignature; sig != "" && !isHex(sig) {
		errs = append(errs, "structure_signature must be a hex string")
	}
	for i, tr := range t.ValidTransitions {
		if tr == "" {
			continue
		}
		if !strings.Contains(tr, " -> ") {
			errs = append(errs, fmt.Sprintf("invalid transition format at index %d: %q", i, tr))
		}
	}
	if t.Depth != nil && *t.Depth < 0 {
		errs = append(errs, "depth must be non-negative")
	}
	if t.NodeCount != nil && *t.NodeCount < 0 {
		errs = append(errs, "node_count must be non-negative")
	}

	return len(errs) == 0, errs
}

// ValidateAll validates a template set, keyed by screen_id.
func (v *Validator) ValidateAll(templates map[string]Template) map[string]bool {
	out := make(map[string]bool, len(templates))
	for id, t := range templates {
		out[id] = v.Validate(t)
	}
	return out
}

func isHex(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
