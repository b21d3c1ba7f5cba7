// Package telemetry provides the observability surface shared by SystemZero
// services: a deterministic JSON-lines logger, an in-memory metrics
// collector, and a component health checker.
package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

const (
	MaxFields     = 64
	MaxKeyLen     = 64
	MaxValLen     = 512
	MaxMessageLen = 1024
	MaxServiceLen = 64
)

// Field is a deterministic key/value field representation.
type Field struct {
	K string `json:"k"`
	V string `json:"v"`
}

// Event is a single log record (JSON line).
type Event struct {
	Ts      string  `json:"ts"`
	Level   Level   `json:"level"`
	Service string  `json:"service,omitempty"`
	Msg     string  `json:"msg"`
	Fields  []Field `json:"fields,omitempty"`
}

// Options configures the logger.
type Options struct {
	Service string
	Level   Level
	// JSON selects JSON-lines output. When false the logger emits a
	// human-readable "ts level msg k=v ..." line instead.
	JSON bool
}

// Logger is a structured logger. Fields are emitted in sorted key order so
// two runs over the same inputs produce byte-identical output.
type Logger struct {
	w   io.Writer
	mu  sync.Mutex
	opt Options
	now func() time.Time
}

// Nop is a safe no-op logger.
var Nop = &Logger{w: io.Discard, opt: Options{Level: LevelError, JSON: true}, now: time.Now}

// NewLogger creates a logger writing to w.
func NewLogger(w io.Writer, opt Options) *Logger {
	if w == nil {
		w = os.Stdout
	}
	opt.Service = strings.TrimSpace(opt.Service)
	if len(opt.Service) > MaxServiceLen {
		opt.Service = opt.Service[:MaxServiceLen]
	}
	if opt.Level == "" {
		opt.Level = LevelInfo
	}
	return &Logger{w: w, opt: opt, now: time.Now}
}

// NewDefaultLogger returns an info-level JSON logger.
func NewDefaultLogger(w io.Writer, service string) *Logger {
	return NewLogger(w, Options{Service: service, Level: LevelInfo, JSON: true})
}

func (l *Logger) Debug(ctx context.Context, msg string, fields map[string]any) {
	l.log(ctx, LevelDebug, msg, fields)
}
func (l *Logger) Info(ctx context.Context, msg string, fields map[string]any) {
	l.log(ctx, LevelInfo, msg, fields)
}
func (l *Logger) Warn(ctx context.Context, msg string, fields map[string]any) {
	l.log(ctx, LevelWarn, msg, fields)
}
func (l *Logger) Error(ctx context.Context, msg string, fields map[string]any) {
	l.log(ctx, LevelError, msg, fields)
}

func (l *Logger) enabled(level Level) bool {
	rank := func(x Level) int {
		switch x {
		case LevelDebug:
			return 1
		case LevelInfo:
			return 2
		case LevelWarn:
			return 3
		default:
			return 4
		}
	}
	return rank(level) >= rank(l.opt.Level)
}

func (l *Logger) log(ctx context.Context, level Level, msg string, fields map[string]any) {
	if l == nil {
		return
	}
	if !l.enabled(level) {
		return
	}

	merged := make(map[string]string, len(fields)+4)
	set := func(k, v string) {
		k = strings.TrimSpace(k)
		if k == "" || len(k) > MaxKeyLen || v == "" {
			return
		}
		merged[k] = sanitize(v, MaxValLen)
	}

	// Request-scoped enrichment wins over caller fields of the same name.
	for k, v := range fields {
		set(k, valueString(v))
	}
	for k, v := range requestFields(ctx) {
		set(k, v)
	}

	ev := Event{
		Ts:      l.now().UTC().Format(time.RFC3339Nano),
		Level:   level,
		Service: l.opt.Service,
		Msg:     sanitize(msg, MaxMessageLen),
	}
	if len(merged) > 0 {
		keys := make([]string, 0, len(merged))
		for k := range merged {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) > MaxFields {
			keys = keys[:MaxFields]
		}
		ev.Fields = make([]Field, 0, len(keys))
		for _, k := range keys {
			ev.Fields = append(ev.Fields, Field{K: k, V: merged[k]})
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.opt.JSON {
		line, err := json.Marshal(ev)
		if err != nil {
			return
		}
		_, _ = l.w.Write(line)
		_, _ = l.w.Write([]byte("\n"))
		return
	}
	var b strings.Builder
	b.WriteString(ev.Ts)
	b.WriteByte(' ')
	b.WriteString(strings.ToUpper(string(ev.Level)))
	b.WriteByte(' ')
	b.WriteString(ev.Msg)
	for _, f := range ev.Fields {
		b.WriteByte(' ')
		b.WriteString(f.K)
		b.WriteByte('=')
		b.WriteString(f.V)
	}
	b.WriteByte('\n')
	_, _ = io.WriteString(l.w, b.String())
}

// sanitize trims, truncates, and removes control chars/newlines.
func sanitize(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) > max {
		s = s[:max]
	}
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

func valueString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case time.Duration:
		return x.String()
	case error:
		return x.Error()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
