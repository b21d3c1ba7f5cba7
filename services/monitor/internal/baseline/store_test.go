package baseline

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeTemplate(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

const loginTemplate = `screen_id: login_screen
required_nodes:
  - email_input
  - password_input
  - login_button
structure_signature: abc123def456
valid_transitions:
  - "login_screen -> home_screen"
  - "login_screen -> forgot_password"
expected_roles:
  - window
  - textbox
  - button
metadata:
  app: demo
`

func TestStoreLoadAndGet(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "login.yaml", loginTemplate)
	writeTemplate(t, dir, "home.yaml", "screen_id: home_screen\n")

	s := NewStore(dir)
	if err := s.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Count() != 2 {
		t.Fatalf("count = %d", s.Count())
	}
	if got := s.List(); !reflect.DeepEqual(got, []string{"home_screen", "login_screen"}) {
		t.Fatalf("list = %v", got)
	}

	tmpl, err := s.Get("login_screen")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(tmpl.RequiredNodes) != 3 || tmpl.StructureSignature != "abc123def456" {
		t.Fatalf("template = %+v", tmpl)
	}
	if tmpl.Metadata["app"] != "demo" {
		t.Fatalf("metadata = %v", tmpl.Metadata)
	}

	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing = %v", err)
	}
}

func TestStoreDuplicateScreenIDFirstWins(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "a.yaml", "screen_id: dup\nstructure_signature: aa11\n")
	writeTemplate(t, dir, "b.yaml", "screen_id: dup\nstructure_signature: bb22\n")

	s := NewStore(dir)
	if err := s.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Count() != 1 {
		t.Fatalf("count = %d", s.Count())
	}
	tmpl, _ := s.Get("dup")
	if tmpl.StructureSignature != "aa11" {
		t.Fatalf("first loaded file must win, got %s", tmpl.StructureSignature)
	}
	errs := s.LoadErrors()
	if len(errs) != 1 || !strings.Contains(errs[0], "duplicate screen_id") {
		t.Fatalf("load errors = %v", errs)
	}
}

func TestStoreSkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "good.yaml", "screen_id: good\n")
	writeTemplate(t, dir, "broken.yaml", "{not yaml::\n")
	writeTemplate(t, dir, "invalid.yaml", "screen_id: \"\"\n")

	s := NewStore(dir)
	if err := s.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Count() != 1 {
		t.Fatalf("count = %d", s.Count())
	}
	if errs := s.LoadErrors(); len(errs) != 2 {
		t.Fatalf("load errors = %v", errs)
	}
}

func TestStoreMissingDirIsEmpty(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nope"))
	if err := s.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Count() != 0 {
		t.Fatalf("count = %d", s.Count())
	}
}

func TestStoreReloadPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "a.yaml", "screen_id: first\n")
	s := NewStore(dir)
	if err := s.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	writeTemplate(t, dir, "b.yaml", "screen_id: second\n")
	if err := s.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if s.Count() != 2 {
		t.Fatalf("count after reload = %d", s.Count())
	}
}

func TestStorePutPersistsAndIndexes(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	if err := s.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	err := s.Put(Template{
		ScreenID:           "settings_screen",
		RequiredNodes:      []string{"save_button"},
		StructureSignature: "deadbeef",
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.Get("settings_screen"); err != nil {
		t.Fatalf("get after put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "settings_screen.yaml")); err != nil {
		t.Fatalf("template file not written: %v", err)
	}

	// Survives a reload from disk.
	if err := s.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, err := s.Get("settings_screen"); err != nil {
		t.Fatalf("get after reload: %v", err)
	}

	if err := s.Put(Template{ScreenID: ""}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("put invalid = %v", err)
	}
}

func TestValidator(t *testing.T) {
	v := NewValidator()

	if !v.Validate(Template{ScreenID: "x"}) {
		t.Fatal("minimal template must validate")
	}
	if v.Validate(Template{}) {
		t.Fatal("empty screen_id must fail")
	}
	if v.Validate(Template{ScreenID: "x", StructureSignature: "zzz"}) {
		t.Fatal("non-hex signature must fail")
	}
	if v.Validate(Template{ScreenID: "x", ValidTransitions: []string{"a->b"}}) {
		t.Fatal("transition without ' -> ' must fail")
	}
	if !v.Validate(Template{ScreenID: "x", ValidTransitions: []string{"", "a -> b"}}) {
		t.Fatal("empty transition strings are allowed")
	}

	ok, errs := v.ValidateWithErrors(Template{ValidTransitions: []string{"bad"}})
	if ok || len(errs) != 2 {
		t.Fatalf("ok=%v errs=%v", ok, errs)
	}
}

func TestParseTransition(t *testing.T) {
	tr, ok := ParseTransition("login_screen -> home_screen")
	if !ok || tr.From != "login_screen" || tr.To != "home_screen" {
		t.Fatalf("parsed = %+v ok=%v", tr, ok)
	}
	if _, ok := ParseTransition(""); ok {
		t.Fatal("empty string is not a transition")
	}
	if _, ok := ParseTransition("no-arrow"); ok {
		t.Fatal("missing arrow is not a transition")
	}
}
