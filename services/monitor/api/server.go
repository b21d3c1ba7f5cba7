// Package api exposes the monitor's HTTP surface: status and dashboard
// reads, capture ingestion, template management, log access and export, a
// live drift feed, and key administration.
package api

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/SaltProphet/SystemZero/pkg/config"
	"github.com/SaltProphet/SystemZero/pkg/driftlog"
	"github.com/SaltProphet/SystemZero/pkg/telemetry"
	"github.com/SaltProphet/SystemZero/services/monitor/internal/archive"
	"github.com/SaltProphet/SystemZero/services/monitor/internal/auth"
	"github.com/SaltProphet/SystemZero/services/monitor/internal/baseline"
	"github.com/SaltProphet/SystemZero/services/monitor/internal/drift"
	"github.com/SaltProphet/SystemZero/services/monitor/internal/middleware"
)

const serviceVersion = "1.0.0"

// Options carries the server's collaborators. Captures and Mirror are
// optional; everything else must be set.
type Options struct {
	Config    config.Config
	Log       *driftlog.Log
	Templates *baseline.Store
	Keys      *auth.KeyManager
	Detector  *drift.Detector
	Captures  *archive.CaptureArchive
	Mirror    *archive.EventMirror
	Logger    *telemetry.Logger
	Metrics   *telemetry.Collector
	Health    *telemetry.HealthChecker
}

// Server owns the router and the handler dependencies.
type Server struct {
	cfg       config.Config
	log       *driftlog.Log
	templates *baseline.Store
	keys      *auth.KeyManager
	detector  *drift.Detector
	captures  *archive.CaptureArchive
	mirror    *archive.EventMirror
	logger    *telemetry.Logger
	metrics   *telemetry.Collector
	health    *telemetry.HealthChecker
	limiter   *middleware.RateLimiter
	upgrader  websocket.Upgrader
	started   time.Time
}

// NewServer wires the handlers and registers the built-in health checks.
func NewServer(o Options) *Server {
	if o.Logger == nil {
		o.Logger = telemetry.NewDefaultLogger(io.Discard, "monitor")
	}
	if o.Metrics == nil {
		o.Metrics = telemetry.NewCollector()
	}
	if o.Health == nil {
		o.Health = telemetry.NewHealthChecker("monitor")
	}
	s := &Server{
		cfg:       o.Config,
		log:       o.Log,
		templates: o.Templates,
		keys:      o.Keys,
		detector:  o.Detector,
		captures:  o.Captures,
		mirror:    o.Mirror,
		logger:    o.Logger,
		metrics:   o.Metrics,
		health:    o.Health,
		limiter: middleware.NewRateLimiter(
			o.Config.RateLimitRPM, o.Config.RateLimitBurst, o.Config.EnableRateLimiting),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		started: time.Now(),
	}
	s.registerHealthChecks()
	return s
}

func (s *Server) registerHealthChecks() {
	s.health.Register("drift_log", func(ctx context.Context) telemetry.ComponentStatus {
		if s.log == nil {
			return telemetry.Unhealthy("log not configured")
		}
		if s.log.Quarantined() {
			return telemetry.Unhealthy("log quarantined")
		}
		if !s.log.VerifyIntegrity() {
			return telemetry.Unhealthy("hash chain invalid")
		}
		cs := telemetry.Healthy()
		cs.Details = map[string]string{"entries": strconv.Itoa(s.log.Count())}
		return cs
	})
	s.health.Register("templates", func(ctx context.Context) telemetry.ComponentStatus {
		if s.templates == nil {
			return telemetry.Unhealthy("template store not configured")
		}
		if errs := s.templates.LoadErrors(); len(errs) > 0 {
			cs := telemetry.Degraded(strconv.Itoa(len(errs)) + " template files rejected")
			cs.Details = map[string]string{"first_error": errs[0]}
			return cs
		}
		cs := telemetry.Healthy()
		cs.Details = map[string]string{"loaded": strconv.Itoa(s.templates.Count())}
		return cs
	})
	if s.captures != nil {
		s.health.Register("capture_archive", func(ctx context.Context) telemetry.ComponentStatus {
			n, err := s.captures.Count(ctx)
			if err != nil {
				return telemetry.Degraded("archive query failed: " + err.Error())
			}
			cs := telemetry.Healthy()
			cs.Details = map[string]string{"captures": strconv.Itoa(n)}
			return cs
		})
	}
}

// RateLimiter exposes the limiter. Test hook.
func (s *Server) RateLimiter() *middleware.RateLimiter { return s.limiter }
