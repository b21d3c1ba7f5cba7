package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadEnv(env(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8000" || cfg.LogLevel != "info" || cfg.JSONLogs {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.RateLimitRPM != 100 || cfg.RateLimitBurst != 20 || cfg.MaxRequestSizeMB != 10 {
		t.Fatalf("limit defaults = %+v", cfg)
	}
	if !cfg.EnableRateLimiting || !cfg.EnableHealth || !cfg.EnableMetrics {
		t.Fatalf("toggles default on: %+v", cfg)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	cfg, err := LoadEnv(env(map[string]string{
		"SZ_ADDR":                 ":9000",
		"SZ_LOG_LEVEL":            "DEBUG",
		"SZ_JSON_LOGS":            "true",
		"SZ_RATE_LIMIT_RPM":       "10",
		"SZ_RATE_LIMIT_BURST":     "2",
		"SZ_CORS_ORIGINS":         "https://a.example, https://b.example",
		"SZ_TRUSTED_HOSTS":        "monitor.internal",
		"SZ_ENABLE_RATE_LIMITING": "off",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.LogLevel != "debug" || !cfg.JSONLogs {
		t.Fatalf("overrides = %+v", cfg)
	}
	if cfg.RateLimitRPM != 10 || cfg.RateLimitBurst != 2 || cfg.EnableRateLimiting {
		t.Fatalf("limits = %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.CORSOrigins, []string{"https://a.example", "https://b.example"}) {
		t.Fatalf("cors = %v", cfg.CORSOrigins)
	}
	if !reflect.DeepEqual(cfg.TrustedHosts, []string{"monitor.internal"}) {
		t.Fatalf("hosts = %v", cfg.TrustedHosts)
	}
}

func TestLoadSettingsFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	body := "addr: \":7000\"\nrate_limit_rpm: 50\nlog_level: warning\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	cfg, err := LoadEnv(env(map[string]string{
		"SZ_SETTINGS_PATH":  path,
		"SZ_RATE_LIMIT_RPM": "75",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7000" {
		t.Fatalf("file value lost: %+v", cfg)
	}
	if cfg.RateLimitRPM != 75 {
		t.Fatal("env must win over settings file")
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("warning must normalize to warn, got %q", cfg.LogLevel)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	if _, err := LoadEnv(env(map[string]string{"SZ_RATE_LIMIT_RPM": "-5"})); err == nil {
		t.Fatal("negative rpm must fail validation")
	}
	cfg, err := LoadEnv(env(map[string]string{"SZ_LOG_LEVEL": "shouting"}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("unknown level must fall back to info, got %q", cfg.LogLevel)
	}
}

func TestMaxRequestBytes(t *testing.T) {
	cfg := Default()
	if cfg.MaxRequestBytes() != 10*1024*1024 {
		t.Fatalf("bytes = %d", cfg.MaxRequestBytes())
	}
}
