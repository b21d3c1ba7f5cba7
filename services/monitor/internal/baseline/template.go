// Package baseline loads and validates the declarative screen templates that
// drift detection compares captures against.
package baseline

import "strings"

// Template is one baseline screen definition, usually loaded from a YAML
// file in the templates directory.
type Template struct {
	ScreenID           string            `yaml:"screen_id" json:"screen_id"`
	RequiredNodes      []string          `yaml:"required_nodes,omitempty" json:"required_nodes,omitempty"`
	StructureSignature string            `yaml:"structure_signature,omitempty" json:"structure_signature,omitempty"`
	ValidTransitions   []string          `yaml:"valid_transitions,omitempty" json:"valid_transitions,omitempty"`
	ExpectedRoles      []string          `yaml:"expected_roles,omitempty" json:"expected_roles,omitempty"`
	Depth              *int              `yaml:"depth,omitempty" json:"depth,omitempty"`
	NodeCount          *int              `yaml:"node_count,omitempty" json:"node_count,omitempty"`
	Version            string            `yaml:"version,omitempty" json:"version,omitempty"`
	Metadata           map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Clone returns a deep copy.
func (t Template) Clone() Template {
	out := t
	out.RequiredNodes = append([]string(nil), t.RequiredNodes...)
	out.ValidTransitions = append([]string(nil), t.ValidTransitions...)
	out.ExpectedRoles = append([]string(nil), t.ExpectedRoles...)
	if t.Depth != nil {
		d := *t.Depth
		out.Depth = &d
	}
	if t.NodeCount != nil {
		n := *t.NodeCount
		out.NodeCount = &n
	}
	if t.Metadata != nil {
		out.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Transition holds one parsed "<from> -> <to>" pair.
type Transition struct {
	From string
	To   string
}

// ParseTransition splits a transition string. Empty strings are allowed and
// report ok=false without being an error.
func ParseTransition(s string) (Transition, bool) {
	if s == "" {
		return Transition{}, false
	}
	from, to, found := strings.Cut(s, " -> ")
	if !found {
		return Transition{}, false
	}
	return Transition{From: strings.TrimSpace(from), To: strings.TrimSpace(to)}, true
}

// Transitions returns the parsed, well-formed transitions of the template.
func (t Template) Transitions() []Transition {
	out := make([]Transition, 0, len(t.ValidTransitions))
	for _, s := range t.ValidTransitions {
		if tr, ok := ParseTransition(s); ok {
			out = append(out, tr)
		}
	}
	return out
}
