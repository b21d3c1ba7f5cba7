// Package signature derives deterministic SHA-256 digests from canonical UI
// trees. Three projections are produced:
//
//   - full: the canonicalized tree minus transient keys, with the ignore
//     set applied again on top of normalization
//   - structural: only (role, type, children), recursively
//   - content: the sorted, "|"-joined non-empty names
//
// Equivalent trees always yield equal signatures; the digests are stable
// across processes because hashing input is canonical JSON (sorted keys, no
// insignificant whitespace).
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/SaltProphet/SystemZero/pkg/uitree"
)

// Keys excluded from the full signature even if they slipped past
// normalization upstream.
var fullIgnore = map[string]struct{}{
	"timestamp":   {},
	"id":          {},
	"instance_id": {},
	"focused":     {},
}

// Triple bundles the three digests derived from one tree.
type Triple struct {
	Full       string `json:"full"`
	Structural string `json:"structural"`
	Content    string `json:"content"`
}

// Generate returns the full signature of a canonical tree.
func Generate(t *uitree.Tree) string {
	if t.IsEmpty() {
		return hashBytes(nil)
	}
	return hashCanonicalJSON(t.ToMap(fullIgnore))
}

// GenerateStructural returns a digest over (role, type, children) only.
// Content changes that preserve shape do not alter it.
func GenerateStructural(t *uitree.Tree) string {
	if t.IsEmpty() {
		return hashBytes(nil)
	}
	return hashCanonicalJSON(structureOf(t.Root))
}

// GenerateContent returns a digest over the tree's text content only.
// Structural rearrangements that preserve the name multiset do not alter it.
func GenerateContent(t *uitree.Tree) string {
	if t.IsEmpty() {
		return hashBytes(nil)
	}
	names := append([]string(nil), t.Names()...)
	sort.Strings(names)
	return hashBytes([]byte(strings.Join(names, "|")))
}

// GenerateMulti computes all three signatures at once.
func GenerateMulti(t *uitree.Tree) Triple {
	return Triple{
		Full:       Generate(t),
		Structural: GenerateStructural(t),
		Content:    GenerateContent(t),
	}
}

// Equal reports whether two hex digests match.
func Equal(a, b string) bool { return a != "" && a == b }

// structureOf projects a node to {role, type, children}. Absent fields are
// encoded as nulls so that "no role" and `role: ""` hash identically to each
// other but differently from a present role.
func structureOf(n *uitree.Node) map[string]any {
	if n == nil {
		return nil
	}
	m := map[string]any{
		"role": nullableString(n.Role),
		"type": nullableString(n.Type),
	}
	if len(n.Children) > 0 {
		children := make([]any, 0, len(n.Children))
		for _, c := range n.Children {
			children = append(children, structureOf(c))
		}
		m["children"] = children
	}
	return m
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// hashCanonicalJSON marshals v with encoding/json (map keys sorted, no
// insignificant whitespace) and hashes the UTF-8 bytes.
func hashCanonicalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Maps built from uitree projections are always marshalable; an
		// error here means a caller handed us something exotic. Hash the
		// empty input rather than failing: signatures are total.
		return hashBytes(nil)
	}
	return hashBytes(b)
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
