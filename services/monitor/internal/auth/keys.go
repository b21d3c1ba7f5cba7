// Package auth manages API keys and the role permission matrix. Keys are
// 256-bit URL-safe random strings; only their SHA-256 hashes are persisted,
// in a YAML file keyed by hash.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const cacheTTL = 60 * time.Second

var (
	ErrAuth        = errors.New("auth")
	ErrInvalidRole = errors.New("auth: invalid role")
)

// Record is the stored metadata for one key.
type Record struct {
	Name        string `yaml:"name" json:"name"`
	Role        string `yaml:"role" json:"role"`
	Description string `yaml:"description" json:"description"`
	CreatedAt   string `yaml:"created_at" json:"created_at"`
	LastUsed    string `yaml:"last_used" json:"last_used"`
	UseCount    int    `yaml:"use_count" json:"use_count"`
}

// KeyListing is a redacted record for the admin key list: the hash is
// truncated and the plaintext was never stored.
type KeyListing struct {
	KeyHash string `json:"key_hash"`
	Record
}

type keyFile struct {
	Keys map[string]Record `yaml:"keys"`
}

// KeyManager loads, validates, creates, and revokes API keys against a YAML
// file. Reads are served from a 60-second cache; every mutation writes
// through and invalidates it.
type KeyManager struct {
	mu        sync.Mutex
	path      string
	cache     *keyFile
	cachedAt  time.Time
	now       func() time.Time
	randBytes func([]byte) error
}

// NewKeyManager returns a manager over the given YAML path. The file may not
// exist yet; it is created on the first key creation.
func NewKeyManager(path string) *KeyManager {
	return &KeyManager{
		path: path,
		now:  time.Now,
		randBytes: func(b []byte) error {
			_, err := rand.Read(b)
			return err
		},
	}
}

// HashKey returns the storage key for a plaintext: hex SHA-256 of the UTF-8
// bytes.
func HashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// CreateKey mints a new key for a role and persists its record. The returned
// plaintext is shown exactly once and never stored.
func (m *KeyManager) CreateKey(name, role, description string) (string, error) {
	if !ValidRole(role) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	raw := make([]byte, 32)
	if err := m.randBytes(raw); err != nil {
		return "", fmt.Errorf("%w: generate key: %v", ErrAuth, err)
	}
	plaintext := base64.RawURLEncoding.EncodeToString(raw)

	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.loadLocked()
	if err != nil {
		return "", err
	}
	data.Keys[HashKey(plaintext)] = Record{
		Name:        name,
		Role:        role,
		Description: description,
		CreatedAt:   m.now().UTC().Format(time.RFC3339),
		UseCount:    0,
	}
	if err := m.saveLocked(data); err != nil {
		return "", err
	}
	return plaintext, nil
}

// Validate looks up a plaintext key. On a hit it bumps last_used and
// use_count atomically and returns the updated record.
func (m *KeyManager) Validate(plaintext string) (Record, bool) {
	if plaintext == "" {
		return Record{}, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.loadLocked()
	if err != nil {
		return Record{}, false
	}
	hash := HashKey(plaintext)
	rec, ok := data.Keys[hash]
	if !ok {
		return Record{}, false
	}

	rec.LastUsed = m.now().UTC().Format(time.RFC3339)
	rec.UseCount++
	data.Keys[hash] = rec
	if err := m.saveLocked(data); err != nil {
		return Record{}, false
	}
	return rec, true
}

// Revoke deletes the record for a plaintext key, reporting whether one was
// removed.
func (m *KeyManager) Revoke(plaintext string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.loadLocked()
	if err != nil {
		return false, err
	}
	hash := HashKey(plaintext)
	if _, ok := data.Keys[hash]; !ok {
		return false, nil
	}
	delete(data.Keys, hash)
	if err := m.saveLocked(data); err != nil {
		return false, err
	}
	return true, nil
}

// ListKeys returns every record with its hash truncated, sorted by name for
// stable output.
func (m *KeyManager) ListKeys() ([]KeyListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.loadLocked()
	if err != nil {
		return nil, err
	}
	out := make([]KeyListing, 0, len(data.Keys))
	for hash, rec := range data.Keys {
		out = append(out, KeyListing{KeyHash: hash[:16] + "...", Record: rec})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].KeyHash < out[j].KeyHash
	})
	return out, nil
}

func (m *KeyManager) loadLocked() (*keyFile, error) {
	if m.cache != nil && m.now().Sub(m.cachedAt) < cacheTTL {
		return m.cache, nil
	}

	data := &keyFile{Keys: map[string]Record{}}
	b, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			m.cache = data
			m.cachedAt = m.now()
			return data, nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrAuth, m.path, err)
	}
	if err := yaml.Unmarshal(b, data); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrAuth, m.path, err)
	}
	if data.Keys == nil {
		data.Keys = map[string]Record{}
	}

	m.cache = data
	m.cachedAt = m.now()
	return data, nil
}

func (m *KeyManager) saveLocked(data *keyFile) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("%w: create key dir: %v", ErrAuth, err)
	}
	b, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: marshal keys: %v", ErrAuth, err)
	}
	if err := os.WriteFile(m.path, b, 0o600); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrAuth, m.path, err)
	}
	// Write-through: the cache tracks every mutation, so a validate does not
	// force the next lookup back to disk.
	m.cache = data
	m.cachedAt = m.now()
	return nil
}

// SetClock overrides the timestamp source. Test hook.
func (m *KeyManager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}
