// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/overstat-proxy/config.toml",
	"configs/config.toml",
}

// Rate-limit store backends.
const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

// reservedRoutes are paths owned by the proxy itself.
var reservedRoutes = []string{"/api", "/health"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config    string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host      string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port      int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	LogLevel  string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	LogFormat string `kong:"help='Log format: json|text (overrides config).',env='LOG_FORMAT'"`
	RedisAddr string `kong:"help='Redis address for the shared rate-limit store (overrides config).',env='REDIS_ADDR'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	CORS     CORSConfig     `toml:"cors"`
	Upstream UpstreamConfig `toml:"upstream"`
	Health   HealthConfig   `toml:"health"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (3000)
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	TrustProxy   bool            `toml:"trust_proxy"`
	Compression  bool            `toml:"compression"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`

	// ShutdownTimeoutSeconds > 0 drains open connections on shutdown;
	// 0 closes the listener and connections immediately.
	ShutdownTimeoutSeconds int `toml:"shutdown_timeout_seconds"`
}

// RateLimitConfig controls per-IP fixed-window rate limiting of /api.
type RateLimitConfig struct {
	Enabled       bool        `toml:"enabled"`
	MaxRequests   int         `toml:"max_requests"`
	WindowSeconds int         `toml:"window_seconds"`
	Backend       string      `toml:"backend"` // memory | redis
	Redis         RedisConfig `toml:"redis"`
}

// RedisConfig holds connection settings for the shared rate-limit store.
type RedisConfig struct {
	Addr      string `toml:"addr"`
	Password  string `toml:"password"`
	DB        int    `toml:"db"`
	KeyPrefix string `toml:"key_prefix"`
}

// CORSConfig lists what cross-origin callers may send and read.
// The allowed origin is always "*" and credentials are never allowed.
type CORSConfig struct {
	AllowedMethods []string `toml:"allowed_methods"`
	AllowedHeaders []string `toml:"allowed_headers"`
	ExposedHeaders []string `toml:"exposed_headers"`
	MaxAgeSeconds  int      `toml:"max_age_seconds"`
}

// UpstreamConfig holds upstream connection settings.
type UpstreamConfig struct {
	BaseURL            string        `toml:"base_url"`
	TimeoutSeconds     int           `toml:"timeout_seconds"`
	IdleConnections    int           `toml:"idle_connections"`
	UserAgent          string        `toml:"user_agent"`
	CacheMaxAgeSeconds int           `toml:"cache_max_age_seconds"`
	RequestsPerSecond  float64       `toml:"requests_per_second"` // 0 disables the outbound throttle
	Burst              int           `toml:"burst"`
	Breaker            BreakerConfig `toml:"breaker"`
}

// BreakerConfig controls the optional circuit breaker around upstream calls.
type BreakerConfig struct {
	Enabled             bool    `toml:"enabled"`
	MinRequests         uint32  `toml:"min_requests"`
	FailureRatio        float64 `toml:"failure_ratio"`
	OpenSeconds         int     `toml:"open_seconds"`
	HalfOpenMaxRequests uint32  `toml:"half_open_max_requests"`
}

// HealthConfig holds settings for the synthetic upstream probe.
type HealthConfig struct {
	ProbePath      string `toml:"probe_path"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	UserAgent      string `toml:"user_agent"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := newConfig()
	c.setDefaults()
	return c
}

// newConfig returns the base that config files are decoded onto. Boolean
// switches that default to on are set here since TOML cannot express "unset".
func newConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Compression: true,
			RateLimit:   RateLimitConfig{Enabled: true},
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/overstat-proxy/config.toml then configs/config.toml. If nothing is
// found the built-in defaults are used.
func Load(cli *CLI) (*Config, error) {
	cfg := newConfig()

	path := cli.Config
	if path == "" {
		path = findConfig()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		c.Log.Format = cli.LogFormat
	}
	if cli.RedisAddr != "" {
		c.Server.RateLimit.Redis.Addr = cli.RedisAddr
		c.Server.RateLimit.Backend = RateLimitBackendRedis
	}
}

func (c *Config) validate() error {
	// Upstream URL: must be HTTPS.
	if c.Upstream.BaseURL != "" {
		u, err := url.Parse(c.Upstream.BaseURL)
		if err != nil {
			return fmt.Errorf("upstream.base_url is not a valid URL: %w", err)
		}
		if u.Scheme != "https" {
			return fmt.Errorf("upstream.base_url must use HTTPS; got %q", c.Upstream.BaseURL)
		}
		if u.Path != "" && u.Path != "/" {
			return fmt.Errorf("upstream.base_url must not carry a path; got %q", u.Path)
		}
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Server.ShutdownTimeoutSeconds < 0 {
		return fmt.Errorf("server.shutdown_timeout_seconds must be non-negative; got %d", c.Server.ShutdownTimeoutSeconds)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Upstream.CacheMaxAgeSeconds < 0 {
		return fmt.Errorf("upstream.cache_max_age_seconds must be non-negative; got %d", c.Upstream.CacheMaxAgeSeconds)
	}
	if c.Upstream.RequestsPerSecond < 0 {
		return fmt.Errorf("upstream.requests_per_second must be non-negative; got %v", c.Upstream.RequestsPerSecond)
	}
	if c.Upstream.Burst < 0 {
		return fmt.Errorf("upstream.burst must be non-negative; got %d", c.Upstream.Burst)
	}
	if r := c.Upstream.Breaker.FailureRatio; r < 0 || r > 1 {
		return fmt.Errorf("upstream.breaker.failure_ratio must be within [0, 1]; got %v", r)
	}
	if c.Upstream.Breaker.OpenSeconds < 0 {
		return fmt.Errorf("upstream.breaker.open_seconds must be non-negative; got %d", c.Upstream.Breaker.OpenSeconds)
	}
	if c.Health.TimeoutSeconds < 0 {
		return fmt.Errorf("health.timeout_seconds must be non-negative; got %d", c.Health.TimeoutSeconds)
	}
	if p := c.Health.ProbePath; p != "" && p[0] != '/' {
		return fmt.Errorf("health.probe_path must start with '/'; got %q", p)
	}
	if c.CORS.MaxAgeSeconds < 0 {
		return fmt.Errorf("cors.max_age_seconds must be non-negative; got %d", c.CORS.MaxAgeSeconds)
	}

	// Rate limiting.
	rl := c.Server.RateLimit
	if rl.MaxRequests < 0 {
		return fmt.Errorf("server.rate_limit.max_requests must be non-negative; got %d", rl.MaxRequests)
	}
	if rl.WindowSeconds < 0 {
		return fmt.Errorf("server.rate_limit.window_seconds must be non-negative; got %d", rl.WindowSeconds)
	}
	switch strings.ToLower(rl.Backend) {
	case RateLimitBackendMemory, "":
		// valid
	case RateLimitBackendRedis:
		if rl.Enabled && rl.Redis.Addr == "" {
			return fmt.Errorf("server.rate_limit.redis.addr is required when backend is redis")
		}
	default:
		return fmt.Errorf("server.rate_limit.backend must be one of: memory, redis; got %q", rl.Backend)
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		if p == "/" {
			return fmt.Errorf("metrics.path %q conflicts with the status page", p)
		}
		for _, reserved := range reservedRoutes {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields, zero means "unset" because TOML cannot distinguish
// between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}

	rl := &c.Server.RateLimit
	if rl.MaxRequests == 0 {
		rl.MaxRequests = 1000
	}
	if rl.WindowSeconds == 0 {
		rl.WindowSeconds = 15 * 60
	}
	rl.Backend = strings.ToLower(rl.Backend)
	if rl.Backend == "" {
		rl.Backend = RateLimitBackendMemory
	}
	if rl.Redis.KeyPrefix == "" {
		rl.Redis.KeyPrefix = "overstat-proxy:rl:"
	}

	if len(c.CORS.AllowedMethods) == 0 {
		c.CORS.AllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(c.CORS.AllowedHeaders) == 0 {
		c.CORS.AllowedHeaders = []string{"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin", "User-Agent"}
	}
	if len(c.CORS.ExposedHeaders) == 0 {
		c.CORS.ExposedHeaders = []string{"Content-Length", "Content-Type"}
	}
	if c.CORS.MaxAgeSeconds == 0 {
		c.CORS.MaxAgeSeconds = 86400
	}

	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = "https://overstat.gg"
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 30
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Upstream.UserAgent == "" {
		c.Upstream.UserAgent = "curl/8.0 (proxy-check)"
	}
	if c.Upstream.CacheMaxAgeSeconds == 0 {
		c.Upstream.CacheMaxAgeSeconds = 300
	}
	if c.Upstream.RequestsPerSecond > 0 && c.Upstream.Burst == 0 {
		c.Upstream.Burst = 1
	}

	b := &c.Upstream.Breaker
	if b.MinRequests == 0 {
		b.MinRequests = 5
	}
	if b.FailureRatio == 0 {
		b.FailureRatio = 0.6
	}
	if b.OpenSeconds == 0 {
		b.OpenSeconds = 30
	}
	if b.HalfOpenMaxRequests == 0 {
		b.HalfOpenMaxRequests = 1
	}

	if c.Health.ProbePath == "" {
		c.Health.ProbePath = "/api/settings/match_list/13yog"
	}
	if c.Health.TimeoutSeconds == 0 {
		c.Health.TimeoutSeconds = 10
	}
	if c.Health.UserAgent == "" {
		c.Health.UserAgent = "OverStats-Proxy-Health-Check/1.0"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// FilePath returns the config file that was loaded, or empty when running on defaults.
func (c *Config) FilePath() string {
	return c.filePath
}

// WarnPermissions logs a warning if the config file is readable by group or others.
// The file may hold a Redis password.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
