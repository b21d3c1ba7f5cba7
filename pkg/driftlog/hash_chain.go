// Package driftlog implements the tamper-evident audit substrate: a
// genesis-anchored SHA-256 hash chain and a durable append-only JSON-lines
// log built on top of it.
//
// Chain progression:
//
//	prev := sha256("genesis")
//	hash := sha256(prev || canonicalJSON(data) || timestampText)
//	prev = hash
//
// Canonical JSON is what encoding/json produces for a map: keys sorted at
// every depth, no insignificant whitespace. Timestamps are seconds since the
// epoch; their text form is fixed-point (strconv 'f', shortest), so the same
// entry always re-hashes to the same digest across process restarts.
package driftlog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
)

// GenesisHash anchors every chain: hex SHA-256 of the literal "genesis".
func GenesisHash() string {
	sum := sha256.Sum256([]byte("genesis"))
	return hex.EncodeToString(sum[:])
}

// Entry is one link of the chain as persisted to the log file. Data is kept
// as raw JSON so the bytes hashed are exactly the bytes stored.
type Entry struct {
	EntryHash    string          `json:"entry_hash"`
	PreviousHash string          `json:"previous_hash"`
	Timestamp    float64         `json:"timestamp"`
	Data         json.RawMessage `json:"data"`
}

// DataMap decodes the entry payload into a generic map.
func (e Entry) DataMap() map[string]any {
	var m map[string]any
	if err := json.Unmarshal(e.Data, &m); err != nil {
		return nil
	}
	return m
}

// Chain tracks the rolling head of a hash chain.
type Chain struct {
	genesis string
	head    string
	length  int
}

// NewChain returns a chain positioned at the genesis hash.
func NewChain() *Chain {
	g := GenesisHash()
	return &Chain{genesis: g, head: g}
}

// Head returns the current chain head (genesis when empty).
func (c *Chain) Head() string { return c.head }

// Length returns the number of links added.
func (c *Chain) Length() int { return c.length }

// Genesis returns the anchor hash.
func (c *Chain) Genesis() string { return c.genesis }

// Add extends the chain over canonical data bytes and a timestamp, returning
// the new entry hash.
func (c *Chain) Add(dataJSON []byte, ts float64) string {
	h := entryHash(c.head, dataJSON, ts)
	c.head = h
	c.length++
	return h
}

// Restore positions the chain at a previously persisted head. Used when
// rebuilding state from a log file on open.
func (c *Chain) Restore(head string, length int) {
	if head == "" {
		head = c.genesis
	}
	c.head = head
	c.length = length
}

// Reset rewinds the chain to genesis.
func (c *Chain) Reset() {
	c.head = c.genesis
	c.length = 0
}

// VerifyEntries walks entries in order from genesis, checking each stored
// previous_hash against the walked head and recomputing each entry hash. It
// returns ok=false and the index of the first bad entry on mismatch.
func (c *Chain) VerifyEntries(entries []Entry) (bool, int) {
	prev := c.genesis
	for i, e := range entries {
		if e.PreviousHash != prev {
			return false, i
		}
		if entryHash(prev, e.Data, e.Timestamp) != e.EntryHash {
			return false, i
		}
		prev = e.EntryHash
	}
	return true, -1
}

// CanonicalData marshals a payload map into canonical JSON bytes.
func CanonicalData(data map[string]any) ([]byte, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal data: %v", ErrLog, err)
	}
	return b, nil
}

func marshalEntry(e Entry) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal entry: %v", ErrLog, err)
	}
	return b, nil
}

func unmarshalEntry(line []byte, e *Entry) error {
	if err := json.Unmarshal(line, e); err != nil {
		return fmt.Errorf("%w: parse entry: %v", ErrLog, err)
	}
	if e.EntryHash == "" || e.PreviousHash == "" {
		return fmt.Errorf("%w: entry missing hash fields", ErrLog)
	}
	return nil
}

// TimestampText renders a timestamp the way the chain hashes it.
func TimestampText(ts float64) string {
	return strconv.FormatFloat(ts, 'f', -1, 64)
}

func entryHash(prev string, dataJSON []byte, ts float64) string {
	h := sha256.New()
	_, _ = h.Write([]byte(prev))
	_, _ = h.Write(dataJSON)
	_, _ = h.Write([]byte(TimestampText(ts)))
	return hex.EncodeToString(h.Sum(nil))
}
