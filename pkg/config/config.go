// Package config loads service configuration: built-in defaults, an optional
// YAML settings file, then SZ_* environment overrides, in that order. The
// resulting Config is a plain value; callers treat it as immutable.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const EnvPrefix = "SZ_"

var ErrInvalidConfig = errors.New("config: invalid")

// Config is the merged, validated configuration snapshot.
type Config struct {
	Addr string `yaml:"addr"`

	LogLevel string `yaml:"log_level"`
	JSONLogs bool   `yaml:"json_logs"`
	LogPath  string `yaml:"log_path"`

	EnableHealth  bool `yaml:"enable_health"`
	EnableMetrics bool `yaml:"enable_metrics"`

	CORSOrigins []string `yaml:"cors_origins"`

	RateLimitRPM       int  `yaml:"rate_limit_rpm"`
	RateLimitBurst     int  `yaml:"rate_limit_burst"`
	MaxRequestSizeMB   int  `yaml:"max_request_size_mb"`
	EnableRateLimiting bool `yaml:"enable_rate_limiting"`

	TrustedHosts []string `yaml:"trusted_hosts"`
	APIKeysPath  string   `yaml:"api_keys_path"`

	TemplatesDir  string `yaml:"templates_dir"`
	CapturesDir   string `yaml:"captures_dir"`
	ArchiveDBPath string `yaml:"archive_db_path"`
	ArchiveDSN    string `yaml:"archive_dsn"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:     ":8000",
		LogLevel: "info",
		JSONLogs: false,
		LogPath:  "logs/systemzero.log",

		EnableHealth:  true,
		EnableMetrics: true,

		CORSOrigins: []string{
			"http://localhost",
			"http://localhost:3000",
			"http://localhost:8000",
			"http://127.0.0.1",
			"http://127.0.0.1:3000",
			"http://127.0.0.1:8000",
		},

		RateLimitRPM:       100,
		RateLimitBurst:     20,
		MaxRequestSizeMB:   10,
		EnableRateLimiting: true,

		TrustedHosts: nil,
		APIKeysPath:  "config/api_keys.yaml",

		TemplatesDir:  "templates",
		CapturesDir:   "data/captures",
		ArchiveDBPath: "data/archive.db",
		ArchiveDSN:    "",
	}
}

// Load builds the configuration: defaults, optional settings file named by
// SZ_SETTINGS_PATH, then SZ_* environment overrides.
func Load() (Config, error) {
	return LoadEnv(os.Getenv)
}

// LoadEnv is Load with an injectable environment. Test hook.
func LoadEnv(getenv func(string) string) (Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(getenv(EnvPrefix + "SETTINGS_PATH")); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg, getenv)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: open settings %s: %v", ErrInvalidConfig, path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(false)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("%w: parse settings %s: %v", ErrInvalidConfig, path, err)
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	get := func(name string) string { return strings.TrimSpace(getenv(EnvPrefix + name)) }

	setString(&cfg.Addr, get("ADDR"))
	if v := get("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	setBool(&cfg.JSONLogs, get("JSON_LOGS"))
	setString(&cfg.LogPath, get("LOG_PATH"))

	setBool(&cfg.EnableHealth, get("ENABLE_HEALTH"))
	setBool(&cfg.EnableMetrics, get("ENABLE_METRICS"))

	if v := get("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitCSV(v)
	}

	setInt(&cfg.RateLimitRPM, get("RATE_LIMIT_RPM"))
	setInt(&cfg.RateLimitBurst, get("RATE_LIMIT_BURST"))
	setInt(&cfg.MaxRequestSizeMB, get("MAX_REQUEST_SIZE_MB"))
	setBool(&cfg.EnableRateLimiting, get("ENABLE_RATE_LIMITING"))

	if v := get("TRUSTED_HOSTS"); v != "" {
		cfg.TrustedHosts = splitCSV(v)
	}
	setString(&cfg.APIKeysPath, get("API_KEYS_PATH"))

	setString(&cfg.TemplatesDir, get("TEMPLATES_DIR"))
	setString(&cfg.CapturesDir, get("CAPTURES_DIR"))
	setString(&cfg.ArchiveDBPath, get("ARCHIVE_DB_PATH"))
	setString(&cfg.ArchiveDSN, get("ARCHIVE_DSN"))
}

// Validate normalizes and checks the snapshot. Unknown log levels fall back
// to info rather than failing startup.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	case "warning":
		c.LogLevel = "warn"
	default:
		c.LogLevel = "info"
	}
	if c.Addr == "" {
		return fmt.Errorf("%w: addr required", ErrInvalidConfig)
	}
	if c.RateLimitRPM <= 0 {
		return fmt.Errorf("%w: rate_limit_rpm must be positive", ErrInvalidConfig)
	}
	if c.RateLimitBurst <= 0 {
		return fmt.Errorf("%w: rate_limit_burst must be positive", ErrInvalidConfig)
	}
	if c.MaxRequestSizeMB <= 0 {
		return fmt.Errorf("%w: max_request_size_mb must be positive", ErrInvalidConfig)
	}
	if c.LogPath == "" || c.APIKeysPath == "" || c.TemplatesDir == "" {
		return fmt.Errorf("%w: log_path, api_keys_path and templates_dir required", ErrInvalidConfig)
	}
	return nil
}

// MaxRequestBytes returns the request-size cap in bytes.
func (c Config) MaxRequestBytes() int64 {
	return int64(c.MaxRequestSizeMB) * 1024 * 1024
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setBool(dst *bool, v string) {
	if v == "" {
		return
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	}
}

func setInt(dst *int, v string) {
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
