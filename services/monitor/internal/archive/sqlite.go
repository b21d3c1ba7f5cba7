// Package archive persists analyzed captures in SQLite and optionally
// mirrors drift events to PostgreSQL for fleet-wide queries.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrArchive  = errors.New("archive")
	ErrNotFound = errors.New("archive: capture not found")
)

// Capture is one archived analysis result.
type Capture struct {
	ID                  string          `json:"id"`
	ScreenID            string          `json:"screen_id"`
	Matched             bool            `json:"matched"`
	Score               float64         `json:"score"`
	Timestamp           float64         `json:"timestamp"`
	FullSignature       string          `json:"full_signature"`
	StructuralSignature string          `json:"structural_signature"`
	ContentSignature    string          `json:"content_signature"`
	Tree                json.RawMessage `json:"tree"`
}

// CaptureArchive stores captures in a single-file SQLite database.
type CaptureArchive struct {
	db *sql.DB
}

// OpenCaptureArchive opens or creates the database at path with WAL mode and
// a busy timeout, and ensures the schema exists.
func OpenCaptureArchive(path string) (*CaptureArchive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create dir: %v", ErrArchive, err)
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=ON", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrArchive, path, err)
	}
	// Single writer keeps sqlite simple.
	db.SetMaxOpenConns(1)

	a := &CaptureArchive{db: db}
	if err := a.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func (a *CaptureArchive) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS captures (
	id TEXT PRIMARY KEY,
	screen_id TEXT NOT NULL,
	matched INTEGER NOT NULL,
	score REAL NOT NULL,
	timestamp REAL NOT NULL,
	full_signature TEXT NOT NULL,
	structural_signature TEXT NOT NULL,
	content_signature TEXT NOT NULL,
	tree TEXT NOT NULL
	);`,
		`CREATE INDEX IF NOT EXISTS idx_captures_screen ON captures(screen_id);`,
		`CREATE INDEX IF NOT EXISTS idx_captures_ts ON captures(timestamp);`,
	}
	for _, q := range stmts {
		if _, err := a.db.Exec(q); err != nil {
			return fmt.Errorf("%w: schema: %v", ErrArchive, err)
		}
	}
	return nil
}

// Put stores a capture. A missing id gets a fresh UUID; the assigned id is
// returned.
func (a *CaptureArchive) Put(ctx context.Context, c Capture) (string, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	tree := c.Tree
	if len(tree) == 0 {
		tree = json.RawMessage("{}")
	}
	matched := 0
	if c.Matched {
		matched = 1
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO captures(id,screen_id,matched,score,timestamp,full_signature,structural_signature,content_signature,tree)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		c.ID, c.ScreenID, matched, c.Score, c.Timestamp,
		c.FullSignature, c.StructuralSignature, c.ContentSignature, string(tree))
	if err != nil {
		return "", fmt.Errorf("%w: put: %v", ErrArchive, err)
	}
	return c.ID, nil
}

// Get returns one capture by id.
func (a *CaptureArchive) Get(ctx context.Context, id string) (Capture, error) {
	row := a.db.QueryRowContext(ctx,
		`SELECT id,screen_id,matched,score,timestamp,full_signature,structural_signature,content_signature,tree
		 FROM captures WHERE id = ?`, id)
	c, err := scanCapture(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Capture{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Capture{}, fmt.Errorf("%w: get: %v", ErrArchive, err)
	}
	return c, nil
}

// Recent returns the newest captures, optionally filtered by screen id.
// Limit is clamped to [1, 1000].
func (a *CaptureArchive) Recent(ctx context.Context, screenID string, limit int) ([]Capture, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 1000 {
		limit = 1000
	}

	q := `SELECT id,screen_id,matched,score,timestamp,full_signature,structural_signature,content_signature,tree FROM captures`
	args := []any{}
	if strings.TrimSpace(screenID) != "" {
		q += ` WHERE screen_id = ?`
		args = append(args, screenID)
	}
	q += ` ORDER BY timestamp DESC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrArchive, err)
	}
	defer rows.Close()

	out := make([]Capture, 0, limit)
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrArchive, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %v", ErrArchive, err)
	}
	return out, nil
}

// Count returns the number of archived captures.
func (a *CaptureArchive) Count(ctx context.Context) (int, error) {
	var n int
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM captures`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %v", ErrArchive, err)
	}
	return n, nil
}

// Close closes the database.
func (a *CaptureArchive) Close() error {
	return a.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCapture(r rowScanner) (Capture, error) {
	var c Capture
	var matched int
	var tree string
	err := r.Scan(&c.ID, &c.ScreenID, &matched, &c.Score, &c.Timestamp,
		&c.FullSignature, &c.StructuralSignature, &c.ContentSignature, &tree)
	if err != nil {
		return Capture{}, err
	}
	c.Matched = matched != 0
	c.Tree = json.RawMessage(tree)
	return c, nil
}
