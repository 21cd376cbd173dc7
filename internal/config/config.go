// ABOUTME: Configuration loading and parsing for dream-gateway
// ABOUTME: Supports YAML or TOML files with ${VAR} expansion, DREAMS_* overrides and duration parsing

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// EnvProduction is the environment name that hides error stacks from clients.
const EnvProduction = "production"

// Config represents the complete dream-gateway configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Tailscale  TailscaleConfig  `yaml:"tailscale" toml:"tailscale"`
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	Auth       AuthConfig       `yaml:"auth" toml:"auth"`
	Generation GenerationConfig `yaml:"generation" toml:"generation"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" toml:"rate_limit"`
	CORS       CORSConfig       `yaml:"cors" toml:"cors"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	HTTPAddr    string `yaml:"http_addr" toml:"http_addr"`
	Environment string `yaml:"environment" toml:"environment"`

	ReadHeaderTimeout time.Duration `yaml:"-" toml:"-"`
	ShutdownTimeout   time.Duration `yaml:"-" toml:"-"`

	// Raw string values for YAML/TOML unmarshaling
	ReadHeaderTimeoutRaw string `yaml:"read_header_timeout" toml:"read_header_timeout"`
	ShutdownTimeoutRaw   string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // serve TLS with tailnet certs on :443
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // expose publicly via Funnel (implies HTTPS)
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path   string `yaml:"path" toml:"path"`
	Driver string `yaml:"driver" toml:"driver"` // "sqlite" (default) or "sqlite3"
}

// AuthConfig holds token verification and issuance configuration.
// Secrets may be empty at load time; the verifier reports ServerMisconfigured
// for the affected issuer on first use.
type AuthConfig struct {
	PlatformJWTSecret string `yaml:"platform_jwt_secret" toml:"platform_jwt_secret"`
	PlatformJWKSURL   string `yaml:"platform_jwks_url" toml:"platform_jwks_url"`
	LocalJWTSecret    string `yaml:"local_jwt_secret" toml:"local_jwt_secret"`

	LocalTokenTTL time.Duration `yaml:"-" toml:"-"`
	Leeway        time.Duration `yaml:"-" toml:"-"`

	LocalTokenTTLRaw string `yaml:"local_token_ttl" toml:"local_token_ttl"`
	LeewayRaw        string `yaml:"leeway" toml:"leeway"`
}

// GenerationConfig holds the external media generation services
type GenerationConfig struct {
	Transcription ServiceConfig `yaml:"transcription" toml:"transcription"`
	Comic         ServiceConfig `yaml:"comic" toml:"comic"`
	Video         ServiceConfig `yaml:"video" toml:"video"`
}

// ServiceConfig describes one generation service. An empty BaseURL disables it.
type ServiceConfig struct {
	BaseURL      string `yaml:"base_url" toml:"base_url"`
	APIKey       string `yaml:"api_key" toml:"api_key"`
	DefaultStyle string `yaml:"default_style" toml:"default_style"` // comic only

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// Enabled reports whether the service has a base URL.
func (s ServiceConfig) Enabled() bool {
	return s.BaseURL != ""
}

// RateLimitConfig holds the per-user limit applied to generation endpoints
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" toml:"enabled"`
	RequestsPerMinute float64 `yaml:"requests_per_minute" toml:"requests_per_minute"`
	Burst             int     `yaml:"burst" toml:"burst"`
}

// CORSConfig holds cross-origin settings for browser clients
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // "text" or "json"
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// envOverrides are decoded from the process environment and win over the file.
type envOverrides struct {
	PlatformJWTSecret string `env:"DREAMS_PLATFORM_JWT_SECRET"`
	PlatformJWKSURL   string `env:"DREAMS_PLATFORM_JWKS_URL"`
	LocalJWTSecret    string `env:"DREAMS_LOCAL_JWT_SECRET"`
	DatabasePath      string `env:"DREAMS_DB_PATH"`
	DatabaseDriver    string `env:"DREAMS_DB_DRIVER"`
	Environment       string `env:"DREAMS_ENV"`
	HTTPAddr          string `env:"DREAMS_HTTP_ADDR"`
	LogLevel          string `env:"DREAMS_LOG_LEVEL"`
}

// Default returns a configuration suitable for local development.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{
			HTTPAddr:             "localhost:8080",
			Environment:          "development",
			ReadHeaderTimeoutRaw: "10s",
			ShutdownTimeoutRaw:   "15s",
		},
		Database: DatabaseConfig{
			Path:   "./data/dreams.db",
			Driver: "sqlite",
		},
		Auth: AuthConfig{
			LocalTokenTTLRaw: "24h",
			LeewayRaw:        "30s",
		},
		Generation: GenerationConfig{
			Transcription: ServiceConfig{TimeoutRaw: "60s"},
			Comic:         ServiceConfig{TimeoutRaw: "60s", DefaultStyle: "watercolor"},
			Video:         ServiceConfig{TimeoutRaw: "30s"},
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 10,
			Burst:             3,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
	_ = parseDurations(cfg)
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded, DREAMS_*
// variables override file values, and duration strings are parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("reading environment overrides: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyEnvOverrides copies every set DREAMS_* variable over the file value.
func applyEnvOverrides(cfg *Config) error {
	var env envOverrides
	if err := envdecode.Decode(&env); err != nil {
		if errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
			return nil
		}
		return err
	}

	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&cfg.Auth.PlatformJWTSecret, env.PlatformJWTSecret)
	override(&cfg.Auth.PlatformJWKSURL, env.PlatformJWKSURL)
	override(&cfg.Auth.LocalJWTSecret, env.LocalJWTSecret)
	override(&cfg.Database.Path, env.DatabasePath)
	override(&cfg.Database.Driver, env.DatabaseDriver)
	override(&cfg.Server.Environment, env.Environment)
	override(&cfg.Server.HTTPAddr, env.HTTPAddr)
	override(&cfg.Logging.Level, env.LogLevel)
	return nil
}

// IsProduction reports whether error stacks must be withheld from clients.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, EnvProduction)
}

// Warnings lists configuration that is valid but will make some requests
// fail at runtime. Callers log these at startup.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Auth.PlatformJWTSecret == "" && c.Auth.PlatformJWKSURL == "" {
		warnings = append(warnings, "auth.platform_jwt_secret and auth.platform_jwks_url are unset: platform tokens will be rejected with a server error")
	}
	if c.Auth.LocalJWTSecret == "" {
		warnings = append(warnings, "auth.local_jwt_secret is unset: local tokens cannot be verified or issued")
	}
	for _, svc := range c.Generation.services() {
		if !svc.Enabled() {
			warnings = append(warnings, fmt.Sprintf("generation.%s.base_url is unset: endpoint will return 503", svc.name))
		}
	}
	return warnings
}

type namedService struct {
	name string
	*ServiceConfig
}

func (g *GenerationConfig) services() []namedService {
	return []namedService{
		{"transcription", &g.Transcription},
		{"comic", &g.Comic},
		{"video", &g.Video},
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// Server address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Database.Driver {
	case "", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("database.driver must be \"sqlite\" or \"sqlite3\", got %q", c.Database.Driver)
	}

	if c.Auth.PlatformJWKSURL != "" {
		if err := validateURL(c.Auth.PlatformJWKSURL); err != nil {
			return fmt.Errorf("auth.platform_jwks_url: %w", err)
		}
	}

	if c.Auth.LocalTokenTTL <= 0 {
		return fmt.Errorf("auth.local_token_ttl must be positive")
	}

	for _, svc := range c.Generation.services() {
		if svc.BaseURL == "" {
			continue
		}
		if err := validateURL(svc.BaseURL); err != nil {
			return fmt.Errorf("generation.%s.base_url: %w", svc.name, err)
		}
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerMinute <= 0 {
			return fmt.Errorf("rate_limit.requests_per_minute must be positive when rate limiting is enabled")
		}
		if c.RateLimit.Burst < 1 {
			return fmt.Errorf("rate_limit.burst must be at least 1 when rate limiting is enabled")
		}
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}

	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.read_header_timeout", cfg.Server.ReadHeaderTimeoutRaw, &cfg.Server.ReadHeaderTimeout},
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"auth.local_token_ttl", cfg.Auth.LocalTokenTTLRaw, &cfg.Auth.LocalTokenTTL},
		{"auth.leeway", cfg.Auth.LeewayRaw, &cfg.Auth.Leeway},
		{"generation.transcription.timeout", cfg.Generation.Transcription.TimeoutRaw, &cfg.Generation.Transcription.Timeout},
		{"generation.comic.timeout", cfg.Generation.Comic.TimeoutRaw, &cfg.Generation.Comic.Timeout},
		{"generation.video.timeout", cfg.Generation.Video.TimeoutRaw, &cfg.Generation.Video.Timeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}

// ResolvePath picks the config file to load: the explicit path if given,
// then $DREAMS_CONFIG, then ./config.yaml, then ~/.config/dreams/gateway.yaml.
// It returns the first candidate that exists, or the explicit/env value as-is.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv("DREAMS_CONFIG"); env != "" {
		return env
	}

	candidates := []string{"config.yaml", "config.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "dreams", "gateway.yaml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return "config.yaml"
}
