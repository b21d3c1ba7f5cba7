package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/SaltProphet/SystemZero/services/monitor/internal/archive"
	"github.com/SaltProphet/SystemZero/services/monitor/internal/middleware"
)

// handleCreateCapture runs one capture through the drift pipeline: normalize,
// sign, match, detect, persist, and append every event to the log.
func (s *Server) handleCreateCapture(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		middleware.WriteError(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}
	if len(raw) == 0 {
		middleware.WriteError(w, http.StatusUnprocessableEntity, "empty capture")
		return
	}

	ts := float64(time.Now().UnixNano()) / 1e9
	if v, ok := raw["timestamp"].(float64); ok {
		ts = v
	}
	app, _ := raw["app"].(string)

	analysis := s.detector.Analyze(raw, s.templates.All(), ts)

	captureID := uuid.NewString()
	normalized := analysis.Tree.ToMap(nil)
	record := map[string]any{
		"id":          captureID,
		"captured_at": ts,
		"app":         app,
		"signatures":  analysis.Signatures,
		"normalized":  normalized,
	}
	if err := s.writeCaptureFile(captureID, record); err != nil {
		s.logger.Error(r.Context(), "capture write failed", map[string]any{"error": err.Error()})
		middleware.WriteError(w, http.StatusInternalServerError, "failed to persist capture")
		return
	}

	if s.captures != nil {
		treeJSON, err := json.Marshal(normalized)
		if err == nil {
			_, err = s.captures.Put(r.Context(), archive.Capture{
				ID:                  captureID,
				ScreenID:            analysis.ScreenID,
				Matched:             analysis.Matched,
				Score:               analysis.Score,
				Timestamp:           ts,
				FullSignature:       analysis.Signatures.Full,
				StructuralSignature: analysis.Signatures.Structural,
				ContentSignature:    analysis.Signatures.Content,
				Tree:                treeJSON,
			})
		}
		if err != nil {
			s.logger.Error(r.Context(), "capture archive failed", map[string]any{"error": err.Error()})
			middleware.WriteError(w, http.StatusInternalServerError, "failed to archive capture")
			return
		}
	}

	events := make([]map[string]any, 0, len(analysis.Events))
	for _, ev := range analysis.Events {
		if _, err := s.log.AppendEvent(ev); err != nil {
			s.logger.Error(r.Context(), "event append failed", map[string]any{
				"event_id": ev.EventID,
				"error":    err.Error(),
			})
			middleware.WriteError(w, http.StatusInternalServerError, "failed to record drift event")
			return
		}
		s.metrics.IncCounter("drift_events_total", 1, map[string]string{
			"type":     ev.DriftType,
			"severity": ev.Severity,
		})
		s.mirrorEvent(r, ev.EventID, ev.DriftType, ev.Severity, ev.Timestamp, ev.Details)
		events = append(events, ev.ToMap())
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"capture_id":     captureID,
		"screen_id":      analysis.ScreenID,
		"matched":        analysis.Matched,
		"score":          analysis.Score,
		"signatures":     analysis.Signatures,
		"drift_detected": len(events) > 0,
		"events":         events,
	})
}

func (s *Server) writeCaptureFile(id string, record map[string]any) error {
	if err := os.MkdirAll(s.cfg.CapturesDir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.cfg.CapturesDir, id+".json"), b, 0o644)
}

// mirrorEvent copies an event to the Postgres mirror. Mirror failures are
// logged, never surfaced: the local hash chain is the source of truth.
func (s *Server) mirrorEvent(r *http.Request, id, driftType, severity string, ts float64, details map[string]any) {
	if s.mirror == nil {
		return
	}
	detailJSON, err := json.Marshal(details)
	if err != nil {
		detailJSON = []byte("{}")
	}
	err = s.mirror.Record(r.Context(), archive.MirroredEvent{
		EventID:   id,
		DriftType: driftType,
		Severity:  severity,
		Timestamp: ts,
		Details:   detailJSON,
	})
	if err != nil {
		s.logger.Warn(r.Context(), "event mirror failed", map[string]any{
			"event_id": id,
			"error":    err.Error(),
		})
	}
}

func (s *Server) handleGetCapture(w http.ResponseWriter, r *http.Request) {
	if s.captures == nil {
		middleware.WriteError(w, http.StatusNotFound, "capture archive disabled")
		return
	}
	id := mux.Vars(r)["id"]
	c, err := s.captures.Get(r.Context(), id)
	if errors.Is(err, archive.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "capture not found")
		return
	}
	if err != nil {
		middleware.WriteError(w, http.StatusInternalServerError, "archive read failed")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, c)
}
