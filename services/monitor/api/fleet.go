package api

import (
	"net/http"
	"strconv"

	"github.com/SaltProphet/SystemZero/services/monitor/internal/archive"
	"github.com/SaltProphet/SystemZero/services/monitor/internal/middleware"
)

// handleFleetEvents serves the Postgres event mirror: recent drift events
// across every monitor writing to the same DSN, plus counts by severity. 404
// when no mirror is configured.
func (s *Server) handleFleetEvents(w http.ResponseWriter, r *http.Request) {
	if s.mirror == nil {
		middleware.WriteError(w, http.StatusNotFound, "event mirror disabled")
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
	severity := q.Get("severity")

	events, err := s.mirror.Recent(r.Context(), severity, limit)
	if err != nil {
		s.logger.Error(r.Context(), "mirror query failed", map[string]any{"error": err.Error()})
		middleware.WriteError(w, http.StatusInternalServerError, "mirror query failed")
		return
	}
	if events == nil {
		events = []archive.MirroredEvent{}
	}
	counts, err := s.mirror.CountBySeverity(r.Context())
	if err != nil {
		s.logger.Error(r.Context(), "mirror count failed", map[string]any{"error": err.Error()})
		middleware.WriteError(w, http.StatusInternalServerError, "mirror query failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
		"counts": counts,
	})
}
