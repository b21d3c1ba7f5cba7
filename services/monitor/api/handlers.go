package api

import (
	"net/http"
	"time"

	"github.com/SaltProphet/SystemZero/services/monitor/internal/middleware"
)

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"service": "systemzero-monitor",
		"version": serviceVersion,
		"endpoints": []string{
			"/", "/health", "/metrics", "/status", "/dashboard",
			"/templates", "/templates/{id}",
			"/captures", "/captures/{id}",
			"/events/fleet",
			"/logs", "/logs/export", "/logs/stream",
			"/auth/token", "/auth/validate", "/auth/keys", "/auth/revoke",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.EnableHealth {
		middleware.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	report := s.health.Check(r.Context())
	status := http.StatusOK
	if report.Overall == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	middleware.WriteJSON(w, status, report)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.EnableMetrics {
		middleware.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	integrity := "valid"
	if !s.log.VerifyIntegrity() {
		integrity = "INVALID"
	}

	entries := s.log.Entries()
	recent := make([]map[string]any, 0, 5)
	for i := len(entries) - 1; i >= 0 && len(recent) < 5; i-- {
		if m := entries[i].DataMap(); m != nil {
			recent = append(recent, m)
		}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"status":         "operational",
		"version":        serviceVersion,
		"log_entries":    len(entries),
		"templates":      s.templates.Count(),
		"integrity":      integrity,
		"quarantined":    s.log.Quarantined(),
		"recent_events":  recent,
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	})
}

// handleDashboard returns the ten newest events plus a compliance ratio:
// 1 minus the critical share of that window, clamped to [0,1].
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	entries := s.log.Entries()
	recent := make([]map[string]any, 0, 10)
	critical := 0
	for i := len(entries) - 1; i >= 0 && len(recent) < 10; i-- {
		m := entries[i].DataMap()
		if m == nil {
			continue
		}
		recent = append(recent, m)
		if sev, _ := m["severity"].(string); sev == "critical" {
			critical++
		}
	}

	compliance := 1.0
	if len(recent) > 0 {
		compliance = 1 - float64(critical)/float64(len(recent))
	}
	if compliance < 0 {
		compliance = 0
	}
	if compliance > 1 {
		compliance = 1
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"recent_events":    recent,
		"critical_count":   critical,
		"compliance_ratio": compliance,
		"total_entries":    len(entries),
	})
}
