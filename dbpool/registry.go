// Package dbpool maps tenant database endpoints to shared, bounded pgx
// connection pools.
//
// Pools are keyed by the endpoint's host, port and database only, so tenants that reach
// the same physical database with different credentials or query parameters
// share one pool. Pools live until Close is called at shutdown.
package dbpool

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	// DefaultMaxConns caps connections per pool so no single tenant can
	// overload a shared upstream database.
	DefaultMaxConns = 3
	// DefaultIdleTimeout is how long an idle connection is kept.
	DefaultIdleTimeout = 60 * time.Second
	// DefaultConnectTimeout bounds dialing a new connection.
	DefaultConnectTimeout = 10 * time.Second
)

// ErrInvalidConnString is returned when a connection string cannot be parsed.
var ErrInvalidConnString = errors.New("invalid database connection string")

// Conn is a connection checked out of a pool. *pgxpool.Conn satisfies it.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	Release()
}

// Pool hands out connections.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
}

// Options tune newly created pools.
type Options struct {
	MaxConns       int32
	IdleTimeout    time.Duration
	ConnectTimeout time.Duration
	// VerifyTLS enables certificate-authority and hostname verification.
	// When false, TLS is still negotiated but the server identity is not
	// checked, since the database fleet uses self-signed certificates.
	VerifyTLS bool
}

func (o Options) withDefaults() Options {
	if o.MaxConns <= 0 {
		o.MaxConns = DefaultMaxConns
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	return o
}

// Registry owns one pool per normalized endpoint key.
type Registry struct {
	mu     sync.Mutex
	pools  map[string]*pgxPool
	opts   Options
	logger *zap.Logger
	onNew  func(key string)
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger used when pools are created.
func WithLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// WithCreateHook registers fn to be called after a new pool is created.
func WithCreateHook(fn func(key string)) RegistryOption {
	return func(r *Registry) { r.onNew = fn }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options, ropts ...RegistryOption) *Registry {
	r := &Registry{
		pools:  make(map[string]*pgxPool),
		opts:   opts.withDefaults(),
		logger: zap.NewNop(),
	}
	for _, o := range ropts {
		o(r)
	}
	return r
}

// Key derives the pool key for connString, in URL or keyword/value form:
// the lower-cased host, the port and the database. User, password and all
// other parameters are left out, so keys are safe to log.
func Key(connString string) (string, error) {
	cc, err := pgconn.ParseConfig(connString)
	if err != nil {
		// pgconn redacts the password in its parse errors.
		return "", fmt.Errorf("%w: %v", ErrInvalidConnString, err)
	}
	return configKey(cc), nil
}

func configKey(cc *pgconn.Config) string {
	db := cc.Database
	if db == "" {
		// The server falls back to the user name.
		db = cc.User
	}
	return fmt.Sprintf("%s:%d/%s", strings.ToLower(cc.Host), cc.Port, db)
}

// Pool returns the pool for connString, creating it on first use. The
// lookup and creation happen under one lock so at most one pool exists per
// key. pgxpool connects lazily, so creation does no network I/O.
func (r *Registry) Pool(connString string) (Pool, error) {
	cfg, err := r.poolConfig(connString)
	if err != nil {
		return nil, err
	}
	key := configKey(&cfg.ConnConfig.Config)

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.pools[key]; ok {
		return p, nil
	}
	p, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	pool := &pgxPool{pool: p}
	r.pools[key] = pool
	r.logger.Info("created database pool",
		zap.String("key", key),
		zap.Int32("max_conns", cfg.MaxConns),
		zap.Bool("tls", cfg.ConnConfig.TLSConfig != nil),
	)
	if r.onNew != nil {
		r.onNew(key)
	}
	return pool, nil
}

// Len returns the number of pools.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pools)
}

// AcquiredConns returns the number of connections currently checked out
// across all pools.
func (r *Registry) AcquiredConns() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	for _, p := range r.pools {
		n += int(p.Stat().AcquiredConns())
	}
	return n
}

// Close closes every pool and empties the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, p := range r.pools {
		p.pool.Close()
		delete(r.pools, key)
	}
}

func (r *Registry) poolConfig(connString string) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConnString, err)
	}
	cfg.MaxConns = r.opts.MaxConns
	if cfg.MinConns > cfg.MaxConns {
		cfg.MinConns = cfg.MaxConns
	}
	cfg.MaxConnIdleTime = r.opts.IdleTimeout
	cfg.ConnConfig.ConnectTimeout = r.opts.ConnectTimeout
	applyTLSPolicy(cfg, SSLDisabled(connString), r.opts.VerifyTLS)
	return cfg, nil
}

// SSLDisabled reports whether connString explicitly sets sslmode=disable,
// in either URL or keyword/value form.
func SSLDisabled(connString string) bool {
	if strings.Contains(connString, "://") {
		if u, err := url.Parse(connString); err == nil {
			return strings.EqualFold(u.Query().Get("sslmode"), "disable")
		}
	}
	for _, field := range strings.Fields(connString) {
		k, v, ok := strings.Cut(field, "=")
		if ok && k == "sslmode" && strings.EqualFold(strings.Trim(v, `'`), "disable") {
			return true
		}
	}
	return false
}

// applyTLSPolicy replaces whatever pgx derived from sslmode. Encryption is
// always required unless disabled explicitly; the plaintext fallback pgx
// adds for sslmode=prefer is removed.
func applyTLSPolicy(cfg *pgxpool.Config, disabled, verify bool) {
	cc := cfg.ConnConfig
	if disabled {
		cc.TLSConfig = nil
		cc.Fallbacks = nil
		return
	}
	tlsConfig := &tls.Config{
		ServerName: cc.Host,
		MinVersion: tls.VersionTLS12,
	}
	if !verify {
		tlsConfig.InsecureSkipVerify = true
	}
	cc.TLSConfig = tlsConfig

	fallbacks := cc.Fallbacks[:0]
	for _, fb := range cc.Fallbacks {
		if fb.TLSConfig == nil {
			continue
		}
		fb.TLSConfig = tlsConfig.Clone()
		fb.TLSConfig.ServerName = fb.Host
		fallbacks = append(fallbacks, fb)
	}
	cc.Fallbacks = fallbacks
}
