package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/SaltProphet/SystemZero/pkg/config"
	"github.com/SaltProphet/SystemZero/pkg/driftlog"
	"github.com/SaltProphet/SystemZero/pkg/telemetry"
	"github.com/SaltProphet/SystemZero/services/monitor/api"
	"github.com/SaltProphet/SystemZero/services/monitor/internal/archive"
	"github.com/SaltProphet/SystemZero/services/monitor/internal/auth"
	"github.com/SaltProphet/SystemZero/services/monitor/internal/baseline"
	"github.com/SaltProphet/SystemZero/services/monitor/internal/drift"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := telemetry.NewLogger(os.Stdout, telemetry.Options{
		Service: "monitor",
		Level:   telemetry.Level(cfg.LogLevel),
		JSON:    cfg.JSONLogs,
	})
	ctx := context.Background()

	log, err := driftlog.Open(cfg.LogPath)
	if err != nil {
		logger.Error(ctx, "drift log open failed", map[string]any{"path": cfg.LogPath, "error": err.Error()})
		os.Exit(1)
	}
	defer log.Close()
	if log.Quarantined() {
		logger.Warn(ctx, "drift log quarantined, appends disabled", map[string]any{"path": cfg.LogPath})
	}

	templates := baseline.NewStore(cfg.TemplatesDir)
	if err := templates.Load(); err != nil {
		logger.Error(ctx, "template load failed", map[string]any{"dir": cfg.TemplatesDir, "error": err.Error()})
		os.Exit(1)
	}
	for _, msg := range templates.LoadErrors() {
		logger.Warn(ctx, "template rejected", map[string]any{"reason": msg})
	}

	captures, err := archive.OpenCaptureArchive(cfg.ArchiveDBPath)
	if err != nil {
		logger.Error(ctx, "capture archive open failed", map[string]any{"path": cfg.ArchiveDBPath, "error": err.Error()})
		os.Exit(1)
	}
	defer captures.Close()

	var mirror *archive.EventMirror
	if cfg.ArchiveDSN != "" {
		mirror, err = archive.OpenEventMirror(ctx, cfg.ArchiveDSN)
		if err != nil {
			// The mirror is an optional replica; the local chain stays
			// authoritative.
			logger.Warn(ctx, "event mirror unavailable", map[string]any{"error": err.Error()})
			mirror = nil
		} else {
			defer mirror.Close()
		}
	}

	server := api.NewServer(api.Options{
		Config:    cfg,
		Log:       log,
		Templates: templates,
		Keys:      auth.NewKeyManager(cfg.APIKeysPath),
		Detector:  drift.NewDetector(),
		Captures:  captures,
		Mirror:    mirror,
		Logger:    logger,
		Metrics:   telemetry.NewCollector(),
		Health:    telemetry.NewHealthChecker("monitor"),
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "listening", map[string]any{
			"addr":      cfg.Addr,
			"templates": templates.Count(),
			"entries":   log.Count(),
		})
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info(ctx, "shutting down", map[string]any{"signal": sig.String()})
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "listen failed", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "shutdown error", map[string]any{"error": err.Error()})
	}
	if err := log.Close(); err != nil {
		logger.Error(ctx, "log close error", map[string]any{"error": err.Error()})
	}
}
