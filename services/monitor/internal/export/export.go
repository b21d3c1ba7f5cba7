// Package export renders drift log entries as JSON, CSV, or HTML downloads.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"

	"github.com/SaltProphet/SystemZero/pkg/driftlog"
)

var ErrUnknownFormat = errors.New("export: unknown format")

// Exporter renders a slice of log entries into a downloadable document.
type Exporter interface {
	Name() string
	ContentType() string
	Render(entries []driftlog.Entry) ([]byte, error)
}

// ForFormat returns the exporter for a format name.
func ForFormat(format string) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return JSONExporter{}, nil
	case "csv":
		return CSVExporter{}, nil
	case "html":
		return HTMLExporter{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Formats lists the supported format names.
func Formats() []string {
	return []string{"csv", "html", "json"}
}

////////////////////////////////////////////////////////////////////////////////
// JSON
////////////////////////////////////////////////////////////////////////////////

type JSONExporter struct{}

func (JSONExporter) Name() string        { return "json" }
func (JSONExporter) ContentType() string { return "application/json; charset=utf-8" }

func (JSONExporter) Render(entries []driftlog.Entry) ([]byte, error) {
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"entry_hash":    e.EntryHash,
			"previous_hash": e.PreviousHash,
			"timestamp":     e.Timestamp,
			"data":          e.Data,
		})
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: render json: %w", err)
	}
	return b, nil
}

////////////////////////////////////////////////////////////////////////////////
// CSV
////////////////////////////////////////////////////////////////////////////////

var csvHeader = []string{
	"entry_hash", "previous_hash", "timestamp",
	"event_id", "drift_type", "severity", "details",
}

type CSVExporter struct{}

func (CSVExporter) Name() string        { return "csv" }
func (CSVExporter) ContentType() string { return "text/csv; charset=utf-8" }

func (CSVExporter) Render(entries []driftlog.Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = false

	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("export: render csv: %w", err)
	}
	for _, e := range entries {
		data := e.DataMap()
		row := []string{
			e.EntryHash,
			e.PreviousHash,
			strconv.FormatFloat(e.Timestamp, 'f', -1, 64),
			stringField(data, "event_id"),
			stringField(data, "drift_type"),
			stringField(data, "severity"),
			detailsField(data),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("export: render csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("export: render csv: %w", err)
	}
	return buf.Bytes(), nil
}

func stringField(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	if s, ok := data[key].(string); ok {
		return s
	}
	return ""
}

func detailsField(data map[string]any) string {
	if data == nil {
		return ""
	}
	details, ok := data["details"]
	if !ok {
		return ""
	}
	b, err := json.Marshal(details)
	if err != nil {
		return ""
	}
	return string(b)
}

////////////////////////////////////////////////////////////////////////////////
// HTML
////////////////////////////////////////////////////////////////////////////////

type HTMLExporter struct{}

func (HTMLExporter) Name() string        { return "html" }
func (HTMLExporter) ContentType() string { return "text/html; charset=utf-8" }

func (HTMLExporter) Render(entries []driftlog.Entry) ([]byte, error) {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<title>Drift Log Export</title>\n")
	b.WriteString("<style>table{border-collapse:collapse}td,th{border:1px solid #999;padding:4px 8px;font-family:monospace;font-size:12px}</style>\n")
	b.WriteString("</head>\n<body>\n")
	fmt.Fprintf(&b, "<h1>Drift Log Export</h1>\n<p>%d entries</p>\n", len(entries))
	b.WriteString("<table>\n<tr><th>#</th><th>timestamp</th><th>entry_hash</th><th>event</th></tr>\n")

	for i, e := range entries {
		fmt.Fprintf(&b, "<tr><td>%d</td><td>%s</td><td>%s</td><td>%s</td></tr>\n",
			i,
			strconv.FormatFloat(e.Timestamp, 'f', -1, 64),
			html.EscapeString(e.EntryHash),
			html.EscapeString(entrySummary(e)),
		)
	}
	b.WriteString("</table>\n</body>\n</html>\n")
	return []byte(b.String()), nil
}

func entrySummary(e driftlog.Entry) string {
	data := e.DataMap()
	if data == nil {
		return ""
	}
	if dt := stringField(data, "drift_type"); dt != "" {
		return fmt.Sprintf("%s (%s)", dt, stringField(data, "severity"))
	}
	// Fall back to sorted top-level keys so the row is still informative.
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}
