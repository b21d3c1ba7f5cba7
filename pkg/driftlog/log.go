package driftlog

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"
)

////////////////////////////////////////////////////////////////////////////////
// Errors
////////////////////////////////////////////////////////////////////////////////

var (
	// ErrLog is the root sentinel for log failures.
	ErrLog = errors.New("driftlog")

	// ErrQuarantined is returned by Append after the log was opened over a
	// file that failed to parse or verify. A quarantined log stays readable
	// so operators can inspect it, but no new entry may extend a chain whose
	// head is untrusted.
	ErrQuarantined = errors.New("driftlog: log quarantined, appends rejected")

	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("driftlog: log closed")
)

////////////////////////////////////////////////////////////////////////////////
// Log
////////////////////////////////////////////////////////////////////////////////

// Event is anything that can project itself to a generic payload map.
// DriftEvent in the drift package satisfies this.
type Event interface {
	ToMap() map[string]any
}

// Log is a durable, append-only, hash-chained JSON-lines log. One Entry per
// line; every entry links to the previous via the chain in hash_chain.go.
// All methods are safe for concurrent use.
type Log struct {
	mu          sync.Mutex
	path        string
	file        *os.File
	chain       *Chain
	entries     []Entry
	quarantined bool
	closed      bool
	now         func() float64
	sync        func() error
	subscribers []chan Entry
}

// Open loads (or creates) the log at path, replaying every line to rebuild
// the in-memory cache and chain head. Malformed lines or a broken chain put
// the log into quarantine: reads still work, appends are rejected.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create log dir: %v", ErrLog, err)
	}

	l := &Log{
		path:  path,
		chain: NewChain(),
		now:   func() float64 { return float64(time.Now().UnixNano()) / 1e9 },
	}

	if err := l.replay(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrLog, path, err)
	}
	l.file = f
	l.sync = f.Sync
	return l, nil
}

func (l *Log) replay() error {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: read %s: %v", ErrLog, l.path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := unmarshalEntry(line, &e); err != nil {
			l.quarantined = true
			continue
		}
		l.entries = append(l.entries, e)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%w: scan %s: %v", ErrLog, l.path, err)
	}

	if ok, _ := l.chain.VerifyEntries(l.entries); !ok {
		l.quarantined = true
	}
	if n := len(l.entries); n > 0 && !l.quarantined {
		l.chain.Restore(l.entries[n-1].EntryHash, n)
	}
	return nil
}

// Append canonicalizes data, extends the chain, writes the line, and fsyncs
// before returning. The returned entry carries the new chain head.
func (l *Log) Append(data map[string]any) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return Entry{}, ErrClosed
	}
	if l.quarantined {
		return Entry{}, ErrQuarantined
	}

	ts := l.now()
	if v, ok := data["timestamp"].(float64); ok {
		ts = v
	}

	dataJSON, err := CanonicalData(data)
	if err != nil {
		return Entry{}, err
	}

	prev := l.chain.Head()
	hash := l.chain.Add(dataJSON, ts)
	e := Entry{
		EntryHash:    hash,
		PreviousHash: prev,
		Timestamp:    ts,
		Data:         dataJSON,
	}

	line, err := marshalEntry(e)
	if err != nil {
		l.chain.Restore(prev, l.chain.Length()-1)
		return Entry{}, err
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		l.chain.Restore(prev, l.chain.Length()-1)
		return Entry{}, fmt.Errorf("%w: write entry: %v", ErrLog, err)
	}
	if err := l.sync(); err != nil {
		// The line is already written and the head advanced; the cache must
		// stay consistent with both even though durability is uncertain.
		l.entries = append(l.entries, e)
		return e, fmt.Errorf("%w: sync: %v", ErrLog, err)
	}

	l.entries = append(l.entries, e)
	l.notify(e)
	return e, nil
}

// AppendEvent appends an event's payload map.
func (l *Log) AppendEvent(ev Event) (Entry, error) {
	return l.Append(ev.ToMap())
}

// VerifyIntegrity re-walks every cached entry from genesis. A quarantined log
// always fails verification.
func (l *Log) VerifyIntegrity() bool {
	ok, _ := l.VerifyDetail()
	return ok
}

// VerifyDetail reports chain validity and the index of the first bad entry
// (-1 when the chain is intact).
func (l *Log) VerifyDetail() (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.quarantined {
		return false, 0
	}
	return NewChain().VerifyEntries(l.entries)
}

// Quarantined reports whether the log refused its on-disk state at open.
func (l *Log) Quarantined() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.quarantined
}

// Count returns the number of entries.
func (l *Log) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Head returns the current chain head hash.
func (l *Log) Head() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.chain.Head()
}

// GetEntries returns entries in [start, end). Bounds are clamped; end < 0
// means "to the end". Out-of-range windows yield an empty slice, not an error.
func (l *Log) GetEntries(start, end int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.entries)
	if start < 0 {
		start = 0
	}
	if end < 0 || end > n {
		end = n
	}
	if start >= end {
		return []Entry{}
	}
	out := make([]Entry, end-start)
	copy(out, l.entries[start:end])
	return out
}

// Entries returns a copy of the full cache.
func (l *Log) Entries() []Entry {
	return l.GetEntries(0, -1)
}

// EntryByHash finds an entry by its chain hash.
func (l *Log) EntryByHash(hash string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.EntryHash == hash {
			return e, true
		}
	}
	return Entry{}, false
}

// Search returns entries whose payload matches every criterion exactly.
// Criteria values are compared against the JSON-decoded payload, so numbers
// should be float64 and nested values use the generic map/slice forms.
func (l *Log) Search(criteria map[string]any) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := []Entry{}
	for _, e := range l.entries {
		m := e.DataMap()
		if m == nil {
			continue
		}
		match := true
		for k, want := range criteria {
			got, ok := m[k]
			if !ok || !reflect.DeepEqual(got, want) {
				match = false
				break
			}
		}
		if match {
			out = append(out, e)
		}
	}
	return out
}

// Subscribe registers a channel that receives every entry appended after the
// call. Delivery is best-effort: a slow subscriber drops entries rather than
// blocking Append.
func (l *Log) Subscribe() <-chan Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch := make(chan Entry, 64)
	l.subscribers = append(l.subscribers, ch)
	return ch
}

// Unsubscribe removes and closes a previously subscribed channel.
func (l *Log) Unsubscribe(ch <-chan Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, s := range l.subscribers {
		if s == ch {
			l.subscribers = append(l.subscribers[:i], l.subscribers[i+1:]...)
			close(s)
			return
		}
	}
}

func (l *Log) notify(e Entry) {
	for _, s := range l.subscribers {
		select {
		case s <- e:
		default:
		}
	}
}

// Close flushes and closes the backing file. Further appends fail with
// ErrClosed; reads keep serving the in-memory cache.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	for _, s := range l.subscribers {
		close(s)
	}
	l.subscribers = nil
	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		return fmt.Errorf("%w: sync on close: %v", ErrLog, err)
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", ErrLog, err)
	}
	return nil
}

// SetClock overrides the timestamp source. Test hook.
func (l *Log) SetClock(now func() float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// SetSync overrides the fsync used after each append. Test hook.
func (l *Log) SetSync(fn func() error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sync = fn
}
