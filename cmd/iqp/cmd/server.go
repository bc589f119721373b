package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AndyMelnik/iot-query-probe-v2/api"
	"github.com/AndyMelnik/iot-query-probe-v2/dbpool"
	"github.com/AndyMelnik/iot-query-probe-v2/internal/config"
	"github.com/AndyMelnik/iot-query-probe-v2/internal/logging"
	"github.com/AndyMelnik/iot-query-probe-v2/internal/telemetry"
	"github.com/AndyMelnik/iot-query-probe-v2/internal/token"
	"github.com/AndyMelnik/iot-query-probe-v2/internal/util"
	"github.com/AndyMelnik/iot-query-probe-v2/query"
	"github.com/AndyMelnik/iot-query-probe-v2/queryguard"
	"github.com/AndyMelnik/iot-query-probe-v2/session"
	"github.com/AndyMelnik/iot-query-probe-v2/web"
)

const serviceName = "iot-query-probe"

var (
	port      int
	noBanner  bool
	keyPrefix string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the query probe HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Port = port
		}

		logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck
		for _, w := range cfg.Warnings {
			logger.Warn("configuration", zap.String("warning", w))
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runServer(ctx, cfg, logger, cmd)
	},
}

func runServer(ctx context.Context, cfg *config.Config, logger *zap.Logger, cmd *cobra.Command) error {
	tracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, serviceName)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(sctx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	sessions, credentials, closeStores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	metrics := api.NewMetrics()
	pools := dbpool.NewRegistry(dbpool.Options{
		MaxConns:  int32(cfg.DBPoolMaxConns),
		VerifyTLS: cfg.DBTLSVerify,
	}, dbpool.WithLogger(logger), dbpool.WithCreateHook(metrics.PoolCreated))
	defer pools.Close()
	metrics.TrackPools(pools.Len)
	metrics.TrackConns(pools.AcquiredConns)

	executor := query.NewExecutor(queryguard.Policy{
		Timeout:  cfg.QueryTimeout(),
		RowLimit: cfg.QueryRowLimit,
	}, query.WithTracerProvider(tracing.TracerProvider))

	secret := []byte(cfg.JWTSecret)
	tokens, err := token.NewIssuer(secret, cfg.TokenTTL())
	util.WipeBytes(secret)
	if err != nil {
		return err
	}

	proxies, err := api.ParseTrustedProxies(cfg.TrustedProxyList())
	if err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	opts := []api.Option{
		api.WithLogger(logger),
		api.WithMetrics(metrics),
		api.WithProduction(cfg.IsProduction()),
		api.WithDefaultRole(cfg.DefaultRole),
		api.WithReportMaxRows(cfg.ReportMaxRows),
		api.WithAllowedOrigins(cfg.AllowedOrigins()),
		api.WithFrameAncestors(cfg.FrameAncestors()),
		api.WithTrustedProxies(proxies),
		api.WithRateLimits(cfg.RateLimitPerMinute, cfg.LoginRateLimitPerMinute),
	}
	if cfg.IsProduction() {
		ui, err := web.Handler()
		if err != nil {
			return err
		}
		opts = append(opts, api.WithUI(ui))
	}
	a := api.New(sessions, credentials, pools, executor, tokens, opts...)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Long-running queries must be able to finish writing.
		WriteTimeout: cfg.QueryTimeout() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     zap.NewStdLog(logger.Named("http")),
	}
	if cfg.TLSEnabled() {
		server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	done := make(chan error, 1)
	go func() {
		var err error
		if cfg.TLSEnabled() {
			err = server.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			done <- fmt.Errorf("server failed: %w", err)
			return
		}
		done <- nil
	}()

	if !noBanner {
		printBanner(cmd.OutOrStdout())
	}
	logger.Info("server listening",
		zap.String("addr", server.Addr),
		zap.String("env", cfg.Env),
		zap.Bool("tls", cfg.TLSEnabled()),
		zap.Bool("redis", cfg.RedisURL != ""),
		zap.Duration("queryTimeout", cfg.QueryTimeout()),
		zap.Int("rowLimit", cfg.QueryRowLimit),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(sctx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-done:
		return err
	}
}

// openStores returns Redis-backed stores when REDIS_URL is set and
// in-memory stores otherwise.
func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (session.Store, session.CredentialStore, func(), error) {
	timeouts := session.Timeouts{
		Idle:     cfg.SessionIdleTimeout(),
		Absolute: cfg.SessionAbsoluteTTL(),
	}
	sopts := []session.Option{session.WithLogger(logger)}

	if cfg.RedisURL == "" {
		if cfg.IsProduction() {
			logger.Warn("REDIS_URL not set; sessions will not survive a restart or span instances")
		}
		return session.NewMemoryStore(timeouts, sopts...),
			session.NewMemoryCredentialStore(cfg.CredentialTTL(), sopts...),
			func() {}, nil
	}

	client, err := session.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, nil, nil, fmt.Errorf("connecting to redis: %w", err)
	}
	if keyPrefix != "" {
		sopts = append(sopts, session.WithKeyPrefix(keyPrefix))
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("closing redis client", zap.Error(err))
		}
	}
	return session.NewRedisStore(client, timeouts, sopts...),
		session.NewRedisCredentialStore(client, cfg.CredentialTTL(), sopts...),
		closeFn, nil
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().IntVarP(&port, "port", "p", 3000, "Port to listen on (overrides PORT)")
	serverCmd.Flags().BoolVar(&noBanner, "no-banner", false, "Do not print the startup banner")
	serverCmd.Flags().StringVar(&keyPrefix, "redis-key-prefix", "", "Prefix for Redis session keys")
}
