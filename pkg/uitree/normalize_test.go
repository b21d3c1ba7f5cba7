package uitree

import (
	"encoding/json"
	"reflect"
	"testing"
)

func rawLoginTree() map[string]any {
	return map[string]any{
		"timestamp": 1724500000.5,
		"id":        "capture-9",
		"root": map[string]any{
			"role":        "Window",
			"title":       "Login",
			"instance_id": "w-77",
			"children": []any{
				map[string]any{
					"role":  "button",
					"label": "login_button",
					"type":  "push",
				},
				map[string]any{
					"role":    "textbox",
					"name":    "password_input",
					"secure":  true,
					"visible": true,
				},
				map[string]any{
					"role":  "textbox",
					"text":  "email_input",
					"value": "",
					"hash":  "abc123",
				},
			},
		},
	}
}

func TestNormalizeStripsTransientsAndFoldsAliases(t *testing.T) {
	tree := Normalize(rawLoginTree())
	if tree.IsEmpty() {
		t.Fatal("expected non-empty tree")
	}
	root := tree.Root
	if root.Role != "window" {
		t.Fatalf("role not lowercased: %q", root.Role)
	}
	if root.Name != "Login" {
		t.Fatalf("title alias not folded into name: %q", root.Name)
	}
	if len(root.Children) != 3 {
		t.Fatalf("child count = %d, want 3", len(root.Children))
	}
	for _, c := range root.Children {
		if _, ok := c.Prop("id"); ok {
			t.Fatal("transient key id survived normalization")
		}
		if _, ok := c.Prop("hash"); ok {
			t.Fatal("transient key hash survived normalization")
		}
	}
}

func TestNormalizeChildOrdering(t *testing.T) {
	tree := Normalize(rawLoginTree())
	got := make([][2]string, 0, 3)
	for _, c := range tree.Root.Children {
		got = append(got, [2]string{c.Role, c.Name})
	}
	want := [][2]string{
		{"button", "login_button"},
		{"textbox", "email_input"},
		{"textbox", "password_input"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("child order = %v, want %v", got, want)
	}
}

func TestNormalizeNamePrecedence(t *testing.T) {
	tree := Normalize(map[string]any{
		"root": map[string]any{
			"role":  "button",
			"name":  "submit",
			"label": "something_else",
		},
	})
	if tree.Root.Name != "submit" {
		t.Fatalf("explicit name must win over alias, got %q", tree.Root.Name)
	}

	tree = Normalize(map[string]any{
		"root": map[string]any{
			"role":        "button",
			"label":       "first_alias",
			"description": "second_alias",
		},
	})
	if tree.Root.Name != "first_alias" {
		t.Fatalf("first alias must win, got %q", tree.Root.Name)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	once := Normalize(rawLoginTree())
	twice := NormalizeTree(once)

	a, err := json.Marshal(once.ToMap(nil))
	if err != nil {
		t.Fatalf("marshal once: %v", err)
	}
	b, err := json.Marshal(twice.ToMap(nil))
	if err != nil {
		t.Fatalf("marshal twice: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("normalize not idempotent:\n once: %s\ntwice: %s", a, b)
	}
}

func TestNormalizeEmptyInput(t *testing.T) {
	if tree := Normalize(nil); !tree.IsEmpty() {
		t.Fatal("nil input must yield empty tree")
	}
	if tree := Normalize(map[string]any{}); !tree.IsEmpty() {
		t.Fatal("empty input must yield empty tree")
	}
	if tree := Normalize(map[string]any{"root": nil}); !tree.IsEmpty() {
		t.Fatal("nil root must yield empty tree")
	}
}

func TestNormalizeBareNodePayload(t *testing.T) {
	tree := Normalize(map[string]any{
		"role": "Dialog",
		"name": "confirm",
	})
	if tree.IsEmpty() || tree.Root.Role != "dialog" {
		t.Fatalf("bare node payload not accepted: %+v", tree.Root)
	}
}

func TestNormalizeDropsNullChildren(t *testing.T) {
	tree := Normalize(map[string]any{
		"root": map[string]any{
			"role": "list",
			"children": []any{
				nil,
				map[string]any{"role": "listitem", "name": "a"},
				"not a node",
			},
		},
	})
	if len(tree.Root.Children) != 1 {
		t.Fatalf("null children must be dropped, got %d", len(tree.Root.Children))
	}
}

func TestDepthAndCount(t *testing.T) {
	tree := Normalize(rawLoginTree())
	if d := tree.Depth(); d != 1 {
		t.Fatalf("depth = %d, want 1", d)
	}
	if n := tree.NodeCount(); n != 4 {
		t.Fatalf("node count = %d, want 4", n)
	}
	empty := &Tree{}
	if empty.Depth() != 0 || empty.NodeCount() != 0 {
		t.Fatal("empty tree must have zero depth and count")
	}
}

func TestBoundsNormalization(t *testing.T) {
	tree := Normalize(map[string]any{
		"root": map[string]any{
			"role": "window",
			"bounds": map[string]any{
				"x": float64(10), "y": float64(20), "width": float64(300), "height": float64(200),
			},
		},
	})
	b := tree.Root.Bounds
	if b == nil || b.X != 10 || b.Y != 20 || b.Width != 300 || b.Height != 200 {
		t.Fatalf("bounds = %+v", b)
	}
}
