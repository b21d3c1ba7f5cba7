package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/SaltProphet/SystemZero/pkg/driftlog"
	"github.com/SaltProphet/SystemZero/services/monitor/internal/export"
	"github.com/SaltProphet/SystemZero/services/monitor/internal/middleware"
)

func entryView(e driftlog.Entry) map[string]any {
	return map[string]any{
		"entry_hash":    e.EntryHash,
		"previous_hash": e.PreviousHash,
		"timestamp":     e.Timestamp,
		"data":          e.Data,
	}
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	total := s.log.Count()
	if total == 0 {
		middleware.WriteError(w, http.StatusNotFound, "no drift log found")
		return
	}

	q := r.URL.Query()
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			middleware.WriteError(w, http.StatusUnprocessableEntity, "invalid limit")
			return
		}
		limit = n
	}
	if limit > 1000 {
		limit = 1000
	}
	offset := 0
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			middleware.WriteError(w, http.StatusUnprocessableEntity, "invalid offset")
			return
		}
		offset = n
	}

	entries := s.log.GetEntries(offset, offset+limit)
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryView(e))
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"total":   total,
		"offset":  offset,
		"count":   len(out),
		"entries": out,
	})
}

func (s *Server) handleLogExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	exporter, err := export.ForFormat(format)
	if err != nil {
		middleware.WriteError(w, http.StatusUnprocessableEntity, "unsupported export format")
		return
	}
	entries := s.log.Entries()
	if len(entries) == 0 {
		middleware.WriteError(w, http.StatusNotFound, "no drift log found")
		return
	}

	body, err := exporter.Render(entries)
	if err != nil {
		s.logger.Error(r.Context(), "export failed", map[string]any{
			"format": exporter.Name(),
			"error":  err.Error(),
		})
		middleware.WriteError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", exporter.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "drift_log."+exporter.Name()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleLogStream upgrades to a websocket and forwards every entry appended
// after the subscription. Slow consumers miss entries rather than stalling
// the append path.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	ch := s.log.Subscribe()
	defer s.log.Unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(entryView(e)); err != nil {
				return
			}
		}
	}
}
