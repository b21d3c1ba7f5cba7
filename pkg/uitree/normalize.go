package uitree

// Normalization of raw accessibility snapshots into canonical trees.
//
// The normalizer is pure and total: the same input always yields the same
// output and it never fails. Missing or malformed input degrades to an empty
// tree rather than an error.

import (
	"sort"
	"strings"
)

// Normalize converts a raw capture payload into a canonical tree.
//
// The payload is either an envelope {"root": {...}} or a bare node map. Steps,
// in order: drop transient keys at every depth, fold alias keys into name
// (name itself wins), lowercase role, recursively normalize children dropping
// nulls, sort children ascending by (role, name, type) stably.
func Normalize(raw map[string]any) *Tree {
	if len(raw) == 0 {
		return &Tree{}
	}
	var rootRaw map[string]any
	if r, ok := raw["root"].(map[string]any); ok {
		rootRaw = r
	} else if _, present := raw["root"]; !present {
		// Bare node payload: treat the whole object as the root.
		rootRaw = raw
	}
	return &Tree{Root: normalizeNode(rootRaw)}
}

// NormalizeTree re-normalizes a canonical tree. Normalization is idempotent,
// so this is the identity on already-canonical trees; it exists so callers
// holding a Tree built by hand get the same ordering guarantees.
func NormalizeTree(t *Tree) *Tree {
	if t.IsEmpty() {
		return &Tree{}
	}
	return Normalize(t.ToMap(nil))
}

func normalizeNode(raw map[string]any) *Node {
	if len(raw) == 0 {
		return nil
	}

	n := &Node{}

	// Fold aliases: an explicit name always wins; otherwise the first alias
	// present (in fixed order) supplies the name.
	if s, ok := stringValue(raw["name"]); ok {
		n.Name = s
	} else {
		for _, alias := range aliasKeys {
			if s, ok := stringValue(raw[alias]); ok {
				n.Name = s
				break
			}
		}
	}

	if s, ok := stringValue(raw["role"]); ok {
		n.Role = strings.ToLower(s)
	}
	if s, ok := stringValue(raw["type"]); ok {
		n.Type = s
	}

	for k, v := range raw {
		if _, transient := transientKeys[k]; transient {
			continue
		}
		switch k {
		case "role", "name", "type", "children", "bounds":
			continue
		}
		if isAlias(k) {
			continue
		}
		if v == nil {
			continue
		}
		if _, known := propertyKeys[k]; known {
			n.setProp(k, v)
			continue
		}
		// Unknown scalar keys are preserved so the full signature still
		// covers them; nested objects outside the schema are dropped.
		switch v.(type) {
		case string, bool, float64, int, int64:
			n.setProp(k, v)
		}
	}

	if b := normalizeBounds(raw["bounds"]); b != nil {
		n.Bounds = b
	}

	if rawChildren, ok := raw["children"].([]any); ok {
		children := make([]*Node, 0, len(rawChildren))
		for _, rc := range rawChildren {
			cm, ok := rc.(map[string]any)
			if !ok {
				continue
			}
			if c := normalizeNode(cm); c != nil {
				children = append(children, c)
			}
		}
		sortChildren(children)
		if len(children) > 0 {
			n.Children = children
		}
	}

	return n
}

func (n *Node) setProp(k string, v any) {
	if n.Props == nil {
		n.Props = make(map[string]any)
	}
	n.Props[k] = v
}

// sortChildren orders siblings ascending by (role, name, type). The sort is
// stable so equal triples keep their capture order.
func sortChildren(children []*Node) {
	sort.SliceStable(children, func(i, j int) bool {
		a, b := children[i], children[j]
		if a.Role != b.Role {
			return a.Role < b.Role
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Type < b.Type
	})
}

func normalizeBounds(v any) *Bounds {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	b := &Bounds{}
	b.X = intValue(m["x"])
	b.Y = intValue(m["y"])
	b.Width = intValue(m["width"])
	b.Height = intValue(m["height"])
	return b
}

func isAlias(k string) bool {
	for _, a := range aliasKeys {
		if k == a {
			return true
		}
	}
	return false
}

func stringValue(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func intValue(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return 0
	}
}
