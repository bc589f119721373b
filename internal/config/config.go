// Package config loads and validates server configuration from the
// environment and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MinJWTSecretLength is the shortest signing secret accepted in production.
const MinJWTSecretLength = 32

// Config holds application configuration loaded from the environment.
type Config struct {
	// Port is the HTTP listen port.
	Port int `mapstructure:"PORT"`
	// Env is the deployment environment; "production" enables secure cookies,
	// static UI serving and strict secret checks.
	Env string `mapstructure:"APP_ENV"`

	// JWTSecret signs bearer tokens (HS256). Required.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTExpiresIn is the bearer token lifetime (e.g. "24h").
	JWTExpiresIn string `mapstructure:"JWT_EXPIRES_IN"`

	SessionIdleTimeoutMinutes int `mapstructure:"SESSION_IDLE_TIMEOUT_MINUTES"`
	SessionAbsoluteTTLHours   int `mapstructure:"SESSION_ABSOLUTE_TTL_HOURS"`
	CredentialTTLMinutes      int `mapstructure:"CREDENTIAL_TTL_MINUTES"`

	// QueryTimeoutMs is applied as statement_timeout before every query.
	QueryTimeoutMs int `mapstructure:"QUERY_TIMEOUT_MS"`
	// QueryRowLimit caps rows returned by one query.
	QueryRowLimit int `mapstructure:"QUERY_ROW_LIMIT"`
	// ReportMaxRows caps rows rendered into an HTML report.
	ReportMaxRows int `mapstructure:"REPORT_MAX_ROWS"`

	// RedisURL selects Redis-backed session and credential stores when set.
	RedisURL string `mapstructure:"REDIS_URL"`

	// CORSOrigins is a comma-separated list of allowed origins; "*" wildcards
	// are allowed (e.g. https://*.navixy.com).
	CORSOrigins string `mapstructure:"CORS_ORIGINS"`
	// CSPFrameAncestors is a comma-separated list of origins allowed to embed
	// the UI in a frame.
	CSPFrameAncestors string `mapstructure:"CSP_FRAME_ANCESTORS"`

	// DBTLSVerify turns on certificate and hostname verification for tenant
	// database connections.
	DBTLSVerify    bool `mapstructure:"DB_TLS_VERIFY"`
	DBPoolMaxConns int  `mapstructure:"DB_POOL_MAX_CONNS"`

	// TrustedProxies lists CIDRs or IPs of reverse proxies whose
	// X-Forwarded-For headers identify the client for rate limiting.
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`

	// TLSCertFile and TLSKeyFile serve HTTPS directly when both are set.
	TLSCertFile string `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile  string `mapstructure:"TLS_KEY_FILE"`

	RateLimitPerMinute      int `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	LoginRateLimitPerMinute int `mapstructure:"LOGIN_RATE_LIMIT_PER_MINUTE"`

	// DefaultRole is assigned at login when the request names no role.
	DefaultRole string `mapstructure:"DEFAULT_ROLE"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// OTLPEndpoint enables trace export over OTLP/gRPC when set.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// Warnings collects non-fatal problems found while loading.
	Warnings []string `mapstructure:"-"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing .env is fine

	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 3000)
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_EXPIRES_IN", "24h")
	v.SetDefault("SESSION_IDLE_TIMEOUT_MINUTES", 30)
	v.SetDefault("SESSION_ABSOLUTE_TTL_HOURS", 8)
	v.SetDefault("CREDENTIAL_TTL_MINUTES", 60)
	v.SetDefault("QUERY_TIMEOUT_MS", 300000)
	v.SetDefault("QUERY_ROW_LIMIT", 10000)
	v.SetDefault("REPORT_MAX_ROWS", 500)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("CORS_ORIGINS", "https://*.navixy.com")
	v.SetDefault("CSP_FRAME_ANCESTORS", "https://*.navixy.com,https://navixy.com")
	v.SetDefault("DB_TLS_VERIFY", false)
	v.SetDefault("DB_POOL_MAX_CONNS", 3)
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("TLS_CERT_FILE", "")
	v.SetDefault("TLS_KEY_FILE", "")
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 120)
	v.SetDefault("LOGIN_RATE_LIMIT_PER_MINUTE", 10)
	v.SetDefault("DEFAULT_ROLE", "admin")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET must be set")
	}
	if len(c.JWTSecret) < MinJWTSecretLength {
		if c.IsProduction() {
			return fmt.Errorf("config: JWT_SECRET must be at least %d characters (got %d)", MinJWTSecretLength, len(c.JWTSecret))
		}
		c.Warnings = append(c.Warnings, fmt.Sprintf("JWT_SECRET is shorter than %d characters", MinJWTSecretLength))
	}
	if _, err := time.ParseDuration(c.JWTExpiresIn); err != nil {
		return fmt.Errorf("config: JWT_EXPIRES_IN: %w", err)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.New("config: PORT must be between 1 and 65535")
	}
	positive := map[string]int{
		"SESSION_IDLE_TIMEOUT_MINUTES": c.SessionIdleTimeoutMinutes,
		"SESSION_ABSOLUTE_TTL_HOURS":   c.SessionAbsoluteTTLHours,
		"CREDENTIAL_TTL_MINUTES":       c.CredentialTTLMinutes,
		"QUERY_TIMEOUT_MS":             c.QueryTimeoutMs,
		"QUERY_ROW_LIMIT":              c.QueryRowLimit,
		"REPORT_MAX_ROWS":              c.ReportMaxRows,
		"DB_POOL_MAX_CONNS":            c.DBPoolMaxConns,
		"RATE_LIMIT_PER_MINUTE":        c.RateLimitPerMinute,
		"LOGIN_RATE_LIMIT_PER_MINUTE":  c.LoginRateLimitPerMinute,
	}
	for key, val := range positive {
		if val <= 0 {
			return fmt.Errorf("config: %s must be positive", key)
		}
	}
	if strings.TrimSpace(c.DefaultRole) == "" {
		return errors.New("config: DEFAULT_ROLE must not be empty")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("config: TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	return nil
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// TokenTTL parses JWTExpiresIn. Returns 24h if invalid.
func (c *Config) TokenTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTExpiresIn)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

func (c *Config) SessionIdleTimeout() time.Duration {
	return time.Duration(c.SessionIdleTimeoutMinutes) * time.Minute
}

func (c *Config) SessionAbsoluteTTL() time.Duration {
	return time.Duration(c.SessionAbsoluteTTLHours) * time.Hour
}

func (c *Config) CredentialTTL() time.Duration {
	return time.Duration(c.CredentialTTLMinutes) * time.Minute
}

func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutMs) * time.Millisecond
}

// AllowedOrigins returns the CORS origins from the comma-separated config.
func (c *Config) AllowedOrigins() []string {
	return splitList(c.CORSOrigins)
}

// FrameAncestors returns the origins allowed to frame the UI.
func (c *Config) FrameAncestors() []string {
	return splitList(c.CSPFrameAncestors)
}

// TrustedProxyList returns the configured proxy CIDRs and IPs.
func (c *Config) TrustedProxyList() []string {
	return splitList(c.TrustedProxies)
}

// TLSEnabled reports whether the server terminates TLS itself.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
