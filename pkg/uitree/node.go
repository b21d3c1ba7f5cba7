package uitree

// Canonical UI tree model.
//
// A Tree is the normalized form of an accessibility snapshot: transient keys
// stripped, alias keys folded into name, roles lowercased, children in a
// deterministic order. All comparison, hashing, and diffing layers operate on
// this form only.

import "sort"

// Transient keys never survive normalization, at any depth.
var transientKeys = map[string]struct{}{
	"timestamp":   {},
	"id":          {},
	"instance_id": {},
	"hash":        {},
}

// Alias keys fold into "name". Order matters: the first alias present wins
// when "name" itself is absent.
var aliasKeys = []string{"label", "title", "text", "description"}

// Recognised sparse property keys carried on a node.
var propertyKeys = map[string]struct{}{
	"visible": {},
	"enabled": {},
	"focused": {},
	"value":   {},
	"secure":  {},
}

// Bounds is an optional pixel rectangle.
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Node is a single canonical UI element.
type Node struct {
	Role     string
	Name     string
	Type     string
	Props    map[string]any
	Bounds   *Bounds
	Children []*Node
}

// Tree is the envelope around a single root node. A nil or empty root is a
// valid (empty) tree.
type Tree struct {
	Root *Node
}

// IsEmpty reports whether the tree has no root node.
func (t *Tree) IsEmpty() bool {
	return t == nil || t.Root == nil
}

// Prop returns a recognised property value and whether it is set.
func (n *Node) Prop(key string) (any, bool) {
	if n == nil || n.Props == nil {
		return nil, false
	}
	v, ok := n.Props[key]
	return v, ok
}

// Depth returns the maximum child depth below the root; a leaf root is 0 and
// an empty tree is 0.
func (t *Tree) Depth() int {
	if t.IsEmpty() {
		return 0
	}
	return nodeDepth(t.Root, 0)
}

func nodeDepth(n *Node, d int) int {
	if n == nil || len(n.Children) == 0 {
		return d
	}
	max := d
	for _, c := range n.Children {
		if cd := nodeDepth(c, d+1); cd > max {
			max = cd
		}
	}
	return max
}

// NodeCount returns the total number of nodes in the tree.
func (t *Tree) NodeCount() int {
	if t.IsEmpty() {
		return 0
	}
	return countNodes(t.Root)
}

func countNodes(n *Node) int {
	if n == nil {
		return 0
	}
	count := 1
	for _, c := range n.Children {
		count += countNodes(c)
	}
	return count
}

// Names returns every non-empty name in the tree, depth first, preorder.
func (t *Tree) Names() []string {
	var out []string
	if t.IsEmpty() {
		return out
	}
	walk(t.Root, func(n *Node) {
		if n.Name != "" {
			out = append(out, n.Name)
		}
	})
	return out
}

// NameSet returns the set of non-empty names in the tree.
func (t *Tree) NameSet() map[string]struct{} {
	set := make(map[string]struct{})
	if t.IsEmpty() {
		return set
	}
	walk(t.Root, func(n *Node) {
		if n.Name != "" {
			set[n.Name] = struct{}{}
		}
	})
	return set
}

// RoleSet returns the set of non-empty roles in the tree, plus a sorted list
// for deterministic consumers.
func (t *Tree) RoleSet() map[string]struct{} {
	set := make(map[string]struct{})
	if t.IsEmpty() {
		return set
	}
	walk(t.Root, func(n *Node) {
		if n.Role != "" {
			set[n.Role] = struct{}{}
		}
	})
	return set
}

// Roles returns the sorted distinct roles present in the tree.
func (t *Tree) Roles() []string {
	set := t.RoleSet()
	out := make([]string, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func walk(n *Node, fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Children {
		walk(c, fn)
	}
}

// ToMap projects a node (recursively) into a generic JSON-shaped map,
// omitting keys in ignore. encoding/json sorts map keys, so marshaling the
// result yields canonical JSON.
func (n *Node) ToMap(ignore map[string]struct{}) map[string]any {
	if n == nil {
		return nil
	}
	skip := func(k string) bool {
		if ignore == nil {
			return false
		}
		_, ok := ignore[k]
		return ok
	}
	m := make(map[string]any)
	if n.Role != "" && !skip("role") {
		m["role"] = n.Role
	}
	if n.Name != "" && !skip("name") {
		m["name"] = n.Name
	}
	if n.Type != "" && !skip("type") {
		m["type"] = n.Type
	}
	for k, v := range n.Props {
		if !skip(k) {
			m[k] = v
		}
	}
	if n.Bounds != nil && !skip("bounds") {
		m["bounds"] = map[string]any{
			"x":      n.Bounds.X,
			"y":      n.Bounds.Y,
			"width":  n.Bounds.Width,
			"height": n.Bounds.Height,
		}
	}
	if len(n.Children) > 0 {
		children := make([]any, 0, len(n.Children))
		for _, c := range n.Children {
			if cm := c.ToMap(ignore); cm != nil {
				children = append(children, cm)
			}
		}
		m["children"] = children
	}
	return m
}

// ToMap projects the whole tree under a "root" key; the empty tree projects
// to an empty map.
func (t *Tree) ToMap(ignore map[string]struct{}) map[string]any {
	if t.IsEmpty() {
		return map[string]any{}
	}
	return map[string]any{"root": t.Root.ToMap(ignore)}
}

// Clone returns a deep copy so callers cannot mutate shared state.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{Role: n.Role, Name: n.Name, Type: n.Type}
	if n.Props != nil {
		out.Props = make(map[string]any, len(n.Props))
		for k, v := range n.Props {
			out.Props[k] = v
		}
	}
	if n.Bounds != nil {
		b := *n.Bounds
		out.Bounds = &b
	}
	if len(n.Children) > 0 {
		out.Children = make([]*Node, 0, len(n.Children))
		for _, c := range n.Children {
			out.Children = append(out.Children, c.Clone())
		}
	}
	return out
}

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	if t == nil {
		return nil
	}
	return &Tree{Root: t.Root.Clone()}
}
