package drift

import (
	"testing"

	"github.com/SaltProphet/SystemZero/pkg/uitree"
	"github.com/SaltProphet/SystemZero/services/monitor/internal/baseline"
)

func loginTree() *uitree.Tree {
	return uitree.Normalize(map[string]any{
		"root": map[string]any{
			"role": "window",
			"name": "login",
			"children": []any{
				map[string]any{"role": "textbox", "name": "email_input"},
				map[string]any{"role": "textbox", "name": "password_input"},
				map[string]any{"role": "button", "name": "login_button"},
			},
		},
	})
}

func loginTemplate() baseline.Template {
	depth, count := 1, 4
	return baseline.Template{
		ScreenID:      "login_screen",
		RequiredNodes: []string{"email_input", "password_input", "login_button"},
		ExpectedRoles: []string{"window", "textbox", "button"},
		Depth:         &depth,
		NodeCount:     &count,
	}
}

func TestMatcherPerfectMatch(t *testing.T) {
	m := NewMatcher()
	score := m.Score(loginTree(), loginTemplate())
	if score != 1.0 {
		t.Fatalf("score = %v, want 1.0", score)
	}
	if !m.Match(loginTree(), loginTemplate()) {
		t.Fatal("perfect capture must match")
	}
}

func TestMatcherMissingRequiredNodes(t *testing.T) {
	tree := uitree.Normalize(map[string]any{
		"root": map[string]any{
			"role": "window",
			"name": "login",
			"children": []any{
				map[string]any{"role": "textbox", "name": "email_input"},
			},
		},
	})
	m := NewMatcher()
	tmpl := loginTemplate()
	tmpl.Depth = nil
	tmpl.NodeCount = nil

	// R = 1/3, S = 1 (no expectations), O = 1 (all tree roles expected:
	// {window,textbox} ⊂ {window,textbox,button} → 2/3).
	score := m.Score(tree, tmpl)
	want := 0.4*(1.0/3.0) + 0.4*1.0 + 0.2*(2.0/3.0)
	if !approx(score, want) {
		t.Fatalf("score = %v, want %v", score, want)
	}
	if m.Match(tree, tmpl) {
		t.Fatal("degraded capture must not reach the 0.8 threshold")
	}
}

func TestMatcherEmptyInputs(t *testing.T) {
	m := NewMatcher()
	if s := m.Score(&uitree.Tree{}, loginTemplate()); s != 0 {
		t.Fatalf("empty tree score = %v", s)
	}
	if s := m.Score(loginTree(), baseline.Template{}); s != 0 {
		t.Fatalf("empty template score = %v", s)
	}
}

func TestMatcherNoExpectationsCollapseToOne(t *testing.T) {
	m := NewMatcher()
	tmpl := baseline.Template{ScreenID: "anything"}
	if s := m.Score(loginTree(), tmpl); s != 1.0 {
		t.Fatalf("unconstrained template score = %v", s)
	}
}

func TestMatcherRoleJaccard(t *testing.T) {
	tree := uitree.Normalize(map[string]any{
		"root": map[string]any{
			"role": "window",
			"children": []any{
				map[string]any{"role": "slider", "name": "volume"},
			},
		},
	})
	tmpl := baseline.Template{ScreenID: "x", ExpectedRoles: []string{"window", "button"}}
	// roles {window, slider} vs {window, button}: 1 / 3.
	got := roleScore(tree, tmpl)
	if !approx(got, 1.0/3.0) {
		t.Fatalf("jaccard = %v", got)
	}
}

func TestFindBestMatch(t *testing.T) {
	m := NewMatcher()
	weak := baseline.Template{ScreenID: "weak", RequiredNodes: []string{"absent_node"}}
	strong := loginTemplate()

	best, score, ok := m.FindBestMatch(loginTree(), []baseline.Template{weak, strong})
	if !ok || best.ScreenID != "login_screen" {
		t.Fatalf("best = %+v ok=%v", best, ok)
	}
	if score != 1.0 {
		t.Fatalf("score = %v", score)
	}

	nearest, nearScore, ok := m.FindBestMatch(loginTree(), []baseline.Template{weak})
	if ok {
		t.Fatal("below-threshold candidates must not match")
	}
	if nearest.ScreenID != "weak" || nearScore <= 0 {
		t.Fatalf("nearest template must still be reported: %+v score=%v", nearest, nearScore)
	}
	if _, _, ok := m.FindBestMatch(loginTree(), nil); ok {
		t.Fatal("no templates, no match")
	}
}

func approx(got, want float64) bool {
	d := got - want
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}
