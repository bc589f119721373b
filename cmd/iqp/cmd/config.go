package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/AndyMelnik/iot-query-probe-v2/api"
	"github.com/AndyMelnik/iot-query-probe-v2/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration tools",
	Long:  `Commands for inspecting the configuration the server would start with.`,
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Load and validate configuration, then print the effective values",
	Long: `Loads configuration from the environment and .env exactly as the server
does, reports validation errors and warnings, and prints the effective
values with secrets redacted. Exits non-zero when the configuration would
prevent the server from starting.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if _, err := api.ParseTrustedProxies(cfg.TrustedProxyList()); err != nil {
			return fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		return writeConfigSummary(cmd.OutOrStdout(), cfg)
	},
}

func writeConfigSummary(w io.Writer, cfg *config.Config) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := []struct {
		key string
		val any
	}{
		{"PORT", cfg.Port},
		{"APP_ENV", cfg.Env},
		{"JWT_SECRET", redact(cfg.JWTSecret)},
		{"JWT_EXPIRES_IN", cfg.TokenTTL()},
		{"SESSION_IDLE_TIMEOUT", cfg.SessionIdleTimeout()},
		{"SESSION_ABSOLUTE_TTL", cfg.SessionAbsoluteTTL()},
		{"CREDENTIAL_TTL", cfg.CredentialTTL()},
		{"QUERY_TIMEOUT", cfg.QueryTimeout()},
		{"QUERY_ROW_LIMIT", cfg.QueryRowLimit},
		{"REPORT_MAX_ROWS", cfg.ReportMaxRows},
		{"REDIS_URL", redactURL(cfg.RedisURL)},
		{"CORS_ORIGINS", strings.Join(cfg.AllowedOrigins(), ", ")},
		{"CSP_FRAME_ANCESTORS", strings.Join(cfg.FrameAncestors(), ", ")},
		{"TRUSTED_PROXIES", strings.Join(cfg.TrustedProxyList(), ", ")},
		{"DB_TLS_VERIFY", cfg.DBTLSVerify},
		{"DB_POOL_MAX_CONNS", cfg.DBPoolMaxConns},
		{"TLS", cfg.TLSEnabled()},
		{"RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute},
		{"LOGIN_RATE_LIMIT_PER_MINUTE", cfg.LoginRateLimitPerMinute},
		{"DEFAULT_ROLE", cfg.DefaultRole},
		{"LOG_LEVEL", cfg.LogLevel},
		{"LOG_FORMAT", cfg.LogFormat},
		{"OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%v\n", r.key, r.val)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, warn := range cfg.Warnings {
		fmt.Fprintf(w, "WARNING: %s\n", warn)
	}
	return nil
}

func redact(s string) string {
	if s == "" {
		return "(unset)"
	}
	return fmt.Sprintf("(set, %d chars)", len(s))
}

// redactURL hides everything after the scheme's userinfo separator.
func redactURL(s string) string {
	if s == "" {
		return ""
	}
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok {
		return "(set)"
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = "***@" + rest[at+1:]
	}
	return scheme + "://" + rest
}

func init() {
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)
}
