package drift

import (
	"fmt"
	"sort"

	"github.com/SaltProphet/SystemZero/pkg/uitree"
)

// Properties the diff engine tracks per node pair.
var trackedProps = []string{"role", "name", "type", "visible", "enabled", "value"}

// Change is one node-level difference. Added/removed changes carry a node
// summary; modified changes carry the per-property (old, new) pairs.
type Change struct {
	Type       string            `json:"type"`
	Path       string            `json:"path"`
	Node       map[string]any    `json:"node,omitempty"`
	Properties map[string][2]any `json:"properties,omitempty"`
}

// DiffResult aggregates a structural comparison.
type DiffResult struct {
	Added          []Change `json:"added"`
	Removed        []Change `json:"removed"`
	Modified       []Change `json:"modified"`
	UnchangedCount int      `json:"unchanged_count"`
	Similarity     float64  `json:"similarity"`
}

// DiffEngine produces recursive structural diffs between canonical trees.
type DiffEngine struct{}

// NewDiffEngine returns a stateless diff engine.
func NewDiffEngine() *DiffEngine { return &DiffEngine{} }

// Diff compares a baseline tree (a) against a current tree (b). Children are
// paired by index; nodes that share neither role nor type are reported as a
// removed/added pair without descending further.
func (d *DiffEngine) Diff(a, b *uitree.Tree) DiffResult {
	r := DiffResult{Added: []Change{}, Removed: []Change{}, Modified: []Change{}}

	aEmpty, bEmpty := a.IsEmpty(), b.IsEmpty()
	switch {
	case aEmpty && bEmpty:
		r.Similarity = 1
		return r
	case aEmpty:
		r.Added = append(r.Added, Change{Type: "added", Path: "root", Node: summarize(b.Root)})
		r.Similarity = 0
		return r
	case bEmpty:
		r.Removed = append(r.Removed, Change{Type: "removed", Path: "root", Node: summarize(a.Root)})
		r.Similarity = 0
		return r
	}

	d.diffNodes(a.Root, b.Root, "root", &r)

	delta := len(r.Added) + len(r.Removed) + len(r.Modified)
	total := delta + r.UnchangedCount
	if total == 0 {
		total = 1
	}
	r.Similarity = float64(total-delta) / float64(total)
	return r
}

// Summary renders the counts for event details.
func (d *DiffEngine) Summary(r DiffResult) string {
	return fmt.Sprintf("added=%d removed=%d modified=%d unchanged=%d similarity=%.3f",
		len(r.Added), len(r.Removed), len(r.Modified), r.UnchangedCount, r.Similarity)
}

// HasSignificantChanges reports whether similarity fell below the threshold.
func (d *DiffEngine) HasSignificantChanges(r DiffResult, threshold float64) bool {
	if threshold == 0 {
		threshold = 0.9
	}
	return r.Similarity < threshold
}

func (d *DiffEngine) diffNodes(a, b *uitree.Node, path string, r *DiffResult) {
	if !similarEnough(a, b) {
		r.Removed = append(r.Removed, Change{Type: "removed", Path: path, Node: summarize(a)})
		r.Added = append(r.Added, Change{Type: "added", Path: path, Node: summarize(b)})
		return
	}

	props := propertyChanges(a, b)
	if len(props) > 0 {
		r.Modified = append(r.Modified, Change{Type: "modified", Path: path, Properties: props})
	} else {
		r.UnchangedCount++
	}

	max := len(a.Children)
	if len(b.Children) > max {
		max = len(b.Children)
	}
	for i := 0; i < max; i++ {
		childPath := fmt.Sprintf("%s/children[%d]", path, i)
		switch {
		case i >= len(a.Children):
			r.Added = append(r.Added, Change{Type: "added", Path: childPath, Node: summarize(b.Children[i])})
		case i >= len(b.Children):
			r.Removed = append(r.Removed, Change{Type: "removed", Path: childPath, Node: summarize(a.Children[i])})
		default:
			d.diffNodes(a.Children[i], b.Children[i], childPath, r)
		}
	}
}

// similarEnough pairs nodes that share a role or a type.
func similarEnough(a, b *uitree.Node) bool {
	return a.Role == b.Role || a.Type == b.Type
}

func propertyChanges(a, b *uitree.Node) map[string][2]any {
	out := map[string][2]any{}
	for _, p := range trackedProps {
		va, vb := propValue(a, p), propValue(b, p)
		if va != vb {
			out[p] = [2]any{va, vb}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func propValue(n *uitree.Node, prop string) any {
	switch prop {
	case "role":
		return n.Role
	case "name":
		return n.Name
	case "type":
		return n.Type
	default:
		v, ok := n.Prop(prop)
		if !ok {
			return nil
		}
		return v
	}
}

func summarize(n *uitree.Node) map[string]any {
	if n == nil {
		return nil
	}
	return map[string]any{
		"role": n.Role,
		"name": n.Name,
		"type": n.Type,
	}
}

// ChangedPaths lists every affected path, sorted, for log payloads.
func (r DiffResult) ChangedPaths() []string {
	out := make([]string, 0, len(r.Added)+len(r.Removed)+len(r.Modified))
	for _, c := range r.Added {
		out = append(out, c.Path)
	}
	for _, c := range r.Removed {
		out = append(out, c.Path)
	}
	for _, c := range r.Modified {
		out = append(out, c.Path)
	}
	sort.Strings(out)
	return out
}
