package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, ":3000", cfg.Addr())
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL())
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout())
	assert.Equal(t, 8*time.Hour, cfg.SessionAbsoluteTTL())
	assert.Equal(t, 60*time.Minute, cfg.CredentialTTL())
	assert.Equal(t, 5*time.Minute, cfg.QueryTimeout())
	assert.Equal(t, 10000, cfg.QueryRowLimit)
	assert.Equal(t, 500, cfg.ReportMaxRows)
	assert.Equal(t, 3, cfg.DBPoolMaxConns)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
	assert.Equal(t, "admin", cfg.DefaultRole)
	assert.False(t, cfg.DBTLSVerify)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, []string{"https://*.navixy.com"}, cfg.AllowedOrigins())
	assert.Equal(t, []string{"https://*.navixy.com", "https://navixy.com"}, cfg.FrameAncestors())
	assert.Empty(t, cfg.Warnings)
}

func TestLoad_EnvVarOverride(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("PORT", "8081")
	t.Setenv("QUERY_ROW_LIMIT", "50")
	t.Setenv("QUERY_TIMEOUT_MS", "1500")
	t.Setenv("DB_TLS_VERIFY", "true")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://*.b.example.com ,")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, 50, cfg.QueryRowLimit)
	assert.Equal(t, 1500*time.Millisecond, cfg.QueryTimeout())
	assert.True(t, cfg.DBTLSVerify)
	assert.Equal(t, []string{"https://a.example.com", "https://*.b.example.com"}, cfg.AllowedOrigins())
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
}

func TestLoad_JWTSecret(t *testing.T) {
	t.Run("Missing", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		_, err := Load()
		assert.ErrorContains(t, err, "JWT_SECRET must be set")
	})

	t.Run("ShortWarnsOutsideProduction", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "short")
		t.Setenv("APP_ENV", "development")
		cfg, err := Load()
		require.NoError(t, err)
		require.Len(t, cfg.Warnings, 1)
		assert.Contains(t, cfg.Warnings[0], "JWT_SECRET")
	})

	t.Run("ShortRefusedInProduction", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "short")
		t.Setenv("APP_ENV", "production")
		_, err := Load()
		assert.ErrorContains(t, err, "at least 32 characters")
	})
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"JWT_EXPIRES_IN", "one day", "JWT_EXPIRES_IN"},
		{"QUERY_ROW_LIMIT", "0", "QUERY_ROW_LIMIT must be positive"},
		{"SESSION_IDLE_TIMEOUT_MINUTES", "-5", "SESSION_IDLE_TIMEOUT_MINUTES must be positive"},
		{"PORT", "70000", "PORT"},
		{"DEFAULT_ROLE", " ", "DEFAULT_ROLE"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv("JWT_SECRET", testSecret)
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoad_TLSAndProxies(t *testing.T) {
	t.Run("cert without key", func(t *testing.T) {
		t.Setenv("JWT_SECRET", testSecret)
		t.Setenv("TLS_CERT_FILE", "/etc/iqp/cert.pem")
		_, err := Load()
		assert.ErrorContains(t, err, "TLS_KEY_FILE")
	})

	t.Run("both set", func(t *testing.T) {
		t.Setenv("JWT_SECRET", testSecret)
		t.Setenv("TLS_CERT_FILE", "/etc/iqp/cert.pem")
		t.Setenv("TLS_KEY_FILE", "/etc/iqp/key.pem")
		t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.1")
		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.TLSEnabled())
		assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.1"}, cfg.TrustedProxyList())
	})
}
