package driftlog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func openTemp(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return l, path
}

func TestGenesisHash(t *testing.T) {
	got := GenesisHash()
	if len(got) != 64 {
		t.Fatalf("genesis hash = %q", got)
	}
	if got != GenesisHash() {
		t.Fatal("genesis hash must be deterministic")
	}
	if NewChain().Head() != got {
		t.Fatal("empty chain head must equal genesis")
	}
}

func TestAppendAndVerify(t *testing.T) {
	l, _ := openTemp(t)
	defer l.Close()

	var prev string
	for i, sev := range []string{"info", "warning", "critical"} {
		e, err := l.Append(map[string]any{
			"drift_type": "layout_drift",
			"severity":   sev,
			"timestamp":  1724500000.0 + float64(i),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if i == 0 {
			if e.PreviousHash != GenesisHash() {
				t.Fatalf("first entry must link to genesis, got %s", e.PreviousHash)
			}
		} else if e.PreviousHash != prev {
			t.Fatalf("entry %d previous_hash = %s, want %s", i, e.PreviousHash, prev)
		}
		prev = e.EntryHash
	}

	if l.Count() != 3 {
		t.Fatalf("count = %d", l.Count())
	}
	if !l.VerifyIntegrity() {
		t.Fatal("fresh chain must verify")
	}
	if l.Head() != prev {
		t.Fatal("head must equal last entry hash")
	}
}

func TestReopenPreservesChain(t *testing.T) {
	l, path := openTemp(t)
	e1, err := l.Append(map[string]any{"drift_type": "content_drift", "severity": "info", "timestamp": 1.5})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if !reopened.VerifyIntegrity() {
		t.Fatal("chain must verify after reopen")
	}
	if reopened.Head() != e1.EntryHash {
		t.Fatalf("head after reopen = %s, want %s", reopened.Head(), e1.EntryHash)
	}

	e2, err := reopened.Append(map[string]any{"drift_type": "content_drift", "severity": "info", "timestamp": 2.5})
	if err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	if e2.PreviousHash != e1.EntryHash {
		t.Fatal("new entry must link to the persisted head")
	}
	if !reopened.VerifyIntegrity() {
		t.Fatal("extended chain must verify")
	}
}

func TestTamperDetection(t *testing.T) {
	l, path := openTemp(t)
	for i := 0; i < 3; i++ {
		if _, err := l.Append(map[string]any{"severity": "info", "timestamp": float64(i)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	l.Close()

	// Flip a payload byte in the middle entry.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	tampered := strings.Replace(string(raw), `"severity":"info","timestamp":1`, `"severity":"high","timestamp":1`, 1)
	if tampered == string(raw) {
		t.Fatal("tamper target not found in log file")
	}
	if err := os.WriteFile(path, []byte(tampered), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	ok, bad := reopened.VerifyDetail()
	if ok {
		t.Fatal("tampered chain must fail verification")
	}
	if bad != 0 {
		// Quarantine reports index 0; the detailed walk would say 1, but a
		// quarantined log short-circuits.
		t.Fatalf("first bad index = %d", bad)
	}
	if _, err := reopened.Append(map[string]any{"severity": "info"}); !errors.Is(err, ErrQuarantined) {
		t.Fatalf("append on tampered log = %v, want ErrQuarantined", err)
	}
}

func TestMalformedLineQuarantines(t *testing.T) {
	l, path := openTemp(t)
	if _, err := l.Append(map[string]any{"severity": "info", "timestamp": 1.0}); err != nil {
		t.Fatalf("append: %v", err)
	}
	l.Close()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.WriteString("{not json\n"); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	f.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if !reopened.Quarantined() {
		t.Fatal("malformed line must quarantine the log")
	}
	if reopened.VerifyIntegrity() {
		t.Fatal("quarantined log must fail verification")
	}
	if reopened.Count() != 1 {
		t.Fatalf("intact entries must stay readable, count = %d", reopened.Count())
	}
	if _, err := reopened.Append(map[string]any{"severity": "info"}); !errors.Is(err, ErrQuarantined) {
		t.Fatalf("append = %v, want ErrQuarantined", err)
	}
}

func TestVerifyEntriesDetectsBrokenLink(t *testing.T) {
	c := NewChain()
	prev := c.Head()
	var entries []Entry
	for i := 0; i < 3; i++ {
		data, err := CanonicalData(map[string]any{"seq": float64(i)})
		if err != nil {
			t.Fatalf("canonical: %v", err)
		}
		h := c.Add(data, float64(i))
		entries = append(entries, Entry{EntryHash: h, PreviousHash: prev, Timestamp: float64(i), Data: data})
		prev = h
	}
	if ok, _ := NewChain().VerifyEntries(entries); !ok {
		t.Fatal("intact chain must verify")
	}

	// Rewrite the middle entry's back-link; its own hash stays valid.
	entries[1].PreviousHash = entries[0].PreviousHash
	ok, bad := NewChain().VerifyEntries(entries)
	if ok {
		t.Fatal("broken previous_hash must fail verification")
	}
	if bad != 1 {
		t.Fatalf("first bad index = %d", bad)
	}
}

func TestAppendSyncFailureKeepsCacheConsistent(t *testing.T) {
	l, path := openTemp(t)
	if _, err := l.Append(map[string]any{"severity": "info", "timestamp": 1.0}); err != nil {
		t.Fatalf("append: %v", err)
	}

	l.SetSync(func() error { return errors.New("device full") })
	e, err := l.Append(map[string]any{"severity": "warning", "timestamp": 2.0})
	if err == nil {
		t.Fatal("sync failure must surface")
	}
	if l.Count() != 2 {
		t.Fatalf("count = %d, entry is on disk and the head advanced", l.Count())
	}
	if l.Head() != e.EntryHash {
		t.Fatalf("head = %s, want %s", l.Head(), e.EntryHash)
	}
	if ok, bad := l.VerifyDetail(); !ok {
		t.Fatalf("cache inconsistent with head, first bad = %d", bad)
	}

	l.SetSync(func() error { return nil })
	if _, err := l.Append(map[string]any{"severity": "info", "timestamp": 3.0}); err != nil {
		t.Fatalf("append after recovery: %v", err)
	}
	l.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if reopened.Count() != 3 || !reopened.VerifyIntegrity() {
		t.Fatalf("count = %d, quarantined = %v", reopened.Count(), reopened.Quarantined())
	}
}

func TestGetEntriesClamping(t *testing.T) {
	l, _ := openTemp(t)
	defer l.Close()
	for i := 0; i < 5; i++ {
		if _, err := l.Append(map[string]any{"seq": float64(i), "timestamp": float64(i)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	if got := l.GetEntries(1, 3); len(got) != 2 {
		t.Fatalf("window [1,3) = %d entries", len(got))
	}
	if got := l.GetEntries(-10, 2); len(got) != 2 {
		t.Fatalf("clamped start = %d entries", len(got))
	}
	if got := l.GetEntries(3, 99); len(got) != 2 {
		t.Fatalf("clamped end = %d entries", len(got))
	}
	if got := l.GetEntries(0, -1); len(got) != 5 {
		t.Fatalf("open end = %d entries", len(got))
	}
	if got := l.GetEntries(4, 2); len(got) != 0 {
		t.Fatalf("inverted window must be empty, got %d", len(got))
	}
}

func TestSearchAndEntryByHash(t *testing.T) {
	l, _ := openTemp(t)
	defer l.Close()

	warn, err := l.Append(map[string]any{"drift_type": "sequence_violation", "severity": "warning", "timestamp": 1.0})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := l.Append(map[string]any{"drift_type": "layout_drift", "severity": "info", "timestamp": 2.0}); err != nil {
		t.Fatalf("append: %v", err)
	}

	got := l.Search(map[string]any{"severity": "warning"})
	if len(got) != 1 || got[0].EntryHash != warn.EntryHash {
		t.Fatalf("search severity=warning = %d entries", len(got))
	}
	if got := l.Search(map[string]any{"severity": "warning", "drift_type": "layout_drift"}); len(got) != 0 {
		t.Fatal("conjunctive criteria must all match")
	}

	e, ok := l.EntryByHash(warn.EntryHash)
	if !ok || e.DataMap()["drift_type"] != "sequence_violation" {
		t.Fatalf("entry by hash: ok=%v data=%v", ok, e.DataMap())
	}
	if _, ok := l.EntryByHash("deadbeef"); ok {
		t.Fatal("unknown hash must not resolve")
	}
}

func TestSubscribeReceivesAppends(t *testing.T) {
	l, _ := openTemp(t)
	defer l.Close()

	ch := l.Subscribe()
	e, err := l.Append(map[string]any{"severity": "critical", "timestamp": 9.0})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	select {
	case got := <-ch:
		if got.EntryHash != e.EntryHash {
			t.Fatalf("subscriber got %s, want %s", got.EntryHash, e.EntryHash)
		}
	default:
		t.Fatal("subscriber channel empty after append")
	}
}

func TestAppendAfterClose(t *testing.T) {
	l, _ := openTemp(t)
	l.Close()
	if _, err := l.Append(map[string]any{"severity": "info"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("append after close = %v", err)
	}
}
