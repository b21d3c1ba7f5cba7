package drift

import (
	"math"

	"github.com/SaltProphet/SystemZero/pkg/uitree"
	"github.com/SaltProphet/SystemZero/services/monitor/internal/baseline"
)

// DefaultSimilarityThreshold is the score a tree must reach before it is
// considered an instance of a template.
const DefaultSimilarityThreshold = 0.8

// Matcher scores captured trees against baseline templates. The score is a
// weighted blend: 40% required-node coverage, 40% structural proximity,
// 20% role-set overlap.
type Matcher struct {
	Threshold float64
}

// NewMatcher returns a matcher at the default threshold.
func NewMatcher() *Matcher {
	return &Matcher{Threshold: DefaultSimilarityThreshold}
}

// Match reports whether the tree scores at or above the threshold.
func (m *Matcher) Match(t *uitree.Tree, tmpl baseline.Template) bool {
	return m.Score(t, tmpl) >= m.Threshold
}

// Score computes the blended similarity in [0, 1]. An empty tree scores 0.
func (m *Matcher) Score(t *uitree.Tree, tmpl baseline.Template) float64 {
	if t.IsEmpty() || tmpl.ScreenID == "" {
		return 0
	}
	return 0.4*requiredNodeScore(t, tmpl) +
		0.4*structureScore(t, tmpl) +
		0.2*roleScore(t, tmpl)
}

// FindBestMatch returns the highest-scoring template, its score, and whether
// the score meets the threshold. The nearest template is returned even on a
// miss so callers can report drift against it. Ties keep the first template
// encountered.
func (m *Matcher) FindBestMatch(t *uitree.Tree, templates []baseline.Template) (baseline.Template, float64, bool) {
	var best baseline.Template
	bestScore := 0.0
	for _, tmpl := range templates {
		if score := m.Score(t, tmpl); score > bestScore {
			bestScore = score
			best = tmpl
		}
	}
	return best, bestScore, best.ScreenID != "" && bestScore >= m.Threshold
}

// requiredNodeScore is the fraction of required_nodes whose name appears
// anywhere in the tree. No requirements means full coverage.
func requiredNodeScore(t *uitree.Tree, tmpl baseline.Template) float64 {
	if len(tmpl.RequiredNodes) == 0 {
		return 1
	}
	names := t.NameSet()
	found := 0
	for _, n := range tmpl.RequiredNodes {
		if _, ok := names[n]; ok {
			found++
		}
	}
	return float64(found) / float64(len(tmpl.RequiredNodes))
}

// structureScore is the mean of depth similarity and node-count similarity.
// A template that omits an expectation is assumed to match the tree on that
// axis.
func structureScore(t *uitree.Tree, tmpl baseline.Template) float64 {
	treeDepth := t.Depth()
	tmplDepth := treeDepth
	if tmpl.Depth != nil {
		tmplDepth = *tmpl.Depth
	}
	depthSim := proximity(treeDepth, tmplDepth)

	treeCount := t.NodeCount()
	tmplCount := treeCount
	if tmpl.NodeCount != nil {
		tmplCount = *tmpl.NodeCount
	}
	countSim := proximity(treeCount, tmplCount)

	return (depthSim + countSim) / 2
}

// proximity is 1 - |a-b| / max(a,b); both zero counts as identical.
func proximity(a, b int) float64 {
	if a == 0 && b == 0 {
		return 1
	}
	max := math.Max(float64(a), float64(b))
	return 1 - math.Abs(float64(a)-float64(b))/max
}

// roleScore is the Jaccard overlap between the tree's role set and the
// template's expected roles.
func roleScore(t *uitree.Tree, tmpl baseline.Template) float64 {
	if len(tmpl.ExpectedRoles) == 0 {
		return 1
	}
	treeRoles := t.RoleSet()
	if len(treeRoles) == 0 {
		return 0
	}
	expected := make(map[string]struct{}, len(tmpl.ExpectedRoles))
	for _, r := range tmpl.ExpectedRoles {
		expected[r] = struct{}{}
	}

	intersection := 0
	for r := range treeRoles {
		if _, ok := expected[r]; ok {
			intersection++
		}
	}
	union := len(treeRoles) + len(expected) - intersection
	if union == 0 {
		return 1
	}
	return float64(intersection) / float64(union)
}
