package baseline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	ErrStore    = errors.New("baseline: store")
	ErrNotFound = errors.New("baseline: template not found")
	ErrInvalid  = errors.New("baseline: invalid template")
)

// Store holds the loaded template set, indexed by screen_id. Reload builds a
// fresh index and swaps it in under the write lock, so readers always see a
// complete, consistent set.
type Store struct {
	mu        sync.RWMutex
	dir       string
	index     map[string]Template
	loadErrs  []string
	validator *Validator
}

// NewStore creates a store over a templates directory. The directory may be
// absent; the store is then empty until templates are added or the directory
// appears.
func NewStore(dir string) *Store {
	return &Store{
		dir:       dir,
		index:     make(map[string]Template),
		validator: NewValidator(),
	}
}

// Load reads every *.yaml file in the directory. Invalid or duplicate
// templates are skipped and reported via LoadErrors; the first template
// loaded for a screen_id wins. Load replaces the whole index.
func (s *Store) Load() error {
	files, err := filepath.Glob(filepath.Join(s.dir, "*.yaml"))
	if err != nil {
		return fmt.Errorf("%w: glob %s: %v", ErrStore, s.dir, err)
	}
	sort.Strings(files)

	index := make(map[string]Template, len(files))
	var loadErrs []string
	for _, path := range files {
		t, err := s.loadFile(path)
		if err != nil {
			loadErrs = append(loadErrs, fmt.Sprintf("%s: %v", filepath.Base(path), err))
			continue
		}
		if ok, errs := s.validator.ValidateWithErrors(t); !ok {
			loadErrs = append(loadErrs, fmt.Sprintf("%s: %s", filepath.Base(path), strings.Join(errs, "; ")))
			continue
		}
		if _, dup := index[t.ScreenID]; dup {
			loadErrs = append(loadErrs, fmt.Sprintf("%s: duplicate screen_id %q", filepath.Base(path), t.ScreenID))
			continue
		}
		index[t.ScreenID] = t
	}

	s.mu.Lock()
	s.index = index
	s.loadErrs = loadErrs
	s.mu.Unlock()
	return nil
}

func (s *Store) loadFile(path string) (Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return Template{}, err
	}
	defer f.Close()

	var t Template
	dec := yaml.NewDecoder(f)
	dec.KnownFields(false)
	if err := dec.Decode(&t); err != nil {
		return Template{}, fmt.Errorf("parse: %v", err)
	}
	return t, nil
}

// Reload is Load; it exists so callers can express intent.
func (s *Store) Reload() error { return s.Load() }

// Get returns the template for a screen_id.
func (s *Store) Get(screenID string) (Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.index[screenID]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrNotFound, screenID)
	}
	return t.Clone(), nil
}

// List returns the loaded screen_ids, sorted.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.index))
	for id := range s.index {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// All returns a copy of every loaded template, keyed by screen_id.
func (s *Store) All() map[string]Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Template, len(s.index))
	for id, t := range s.index {
		out[id] = t.Clone()
	}
	return out
}

// Count returns the number of loaded templates.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// LoadErrors returns the per-file problems from the last Load.
func (s *Store) LoadErrors() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.loadErrs...)
}

// Put validates a template, writes it as <screen_id>.yaml in the templates
// directory, and adds it to the live index. Used by the template builder
// endpoint.
func (s *Store) Put(t Template) error {
	if ok, errs := s.validator.ValidateWithErrors(t); !ok {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("%w: create dir: %v", ErrStore, err)
	}
	b, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("%w: marshal template: %v", ErrStore, err)
	}
	path := filepath.Join(s.dir, safeFileName(t.ScreenID)+".yaml")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrStore, path, err)
	}

	s.mu.Lock()
	s.index[t.ScreenID] = t.Clone()
	s.mu.Unlock()
	return nil
}

// safeFileName strips path separators so a screen_id cannot escape the
// templates directory.
func safeFileName(id string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return r.Replace(id)
}
