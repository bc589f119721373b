package api

import (
	"context"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/AndyMelnik/iot-query-probe-v2/dbpool"
	"github.com/AndyMelnik/iot-query-probe-v2/internal/token"
	"github.com/AndyMelnik/iot-query-probe-v2/query"
	"github.com/AndyMelnik/iot-query-probe-v2/session"
)

const (
	// DefaultRole is assigned at login when neither the request nor the
	// configuration names one.
	DefaultRole = "admin"
	// DefaultReportMaxRows caps rows rendered into an HTML report.
	DefaultReportMaxRows = 500
	// DefaultRateLimitPerMinute is the global per-IP request budget.
	DefaultRateLimitPerMinute = 120
	// DefaultLoginRateLimitPerMinute is the per-IP login budget.
	DefaultLoginRateLimitPerMinute = 10

	// cookieTTL is the lifetime of both the session and CSRF cookies.
	cookieTTL = 8 * time.Hour
)

// PoolSource hands out the shared connection pool for a tenant database.
type PoolSource interface {
	Pool(connString string) (dbpool.Pool, error)
}

// QueryRunner executes a guarded read-only statement on a pool.
type QueryRunner interface {
	Execute(ctx context.Context, pool dbpool.Pool, sql string) (*query.Result, error)
}

// TokenIssuer signs and verifies the bearer tokens handed out at login.
type TokenIssuer interface {
	Issue(userID, email, role string) (string, error)
	Verify(tokenString string) (*token.Claims, error)
}

var _ TokenIssuer = (*token.Issuer)(nil)

// API holds the dependencies needed by the REST handlers.
type API struct {
	sessions    session.Store
	credentials session.CredentialStore
	pools       PoolSource
	runner      QueryRunner
	tokens      TokenIssuer

	logger  *zap.Logger
	audit   *auditLogger
	metrics *Metrics

	identityResolvers []identityResolver
	connResolvers     []connStringResolver
	csrfPolicy        CSRFPolicy

	production     bool
	defaultRole    string
	reportMaxRows  int
	allowedOrigins []string
	frameAncestors []string
	trustedProxies []netip.Prefix

	rateLimit      int
	loginRateLimit int
	globalLimiter  *ipRateLimiter
	loginLimiter   *ipRateLimiter

	ui  http.Handler
	now func() time.Time
}

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the logger used for request and audit events.
// If not set, logging is disabled.
func WithLogger(logger *zap.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithMetrics records request, query and audit metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(a *API) {
		a.metrics = m
	}
}

// WithProduction marks cookies Secure regardless of the request scheme.
func WithProduction(production bool) Option {
	return func(a *API) {
		a.production = production
	}
}

// WithDefaultRole sets the role assigned when a login names none.
func WithDefaultRole(role string) Option {
	return func(a *API) {
		if role = strings.TrimSpace(role); role != "" {
			a.defaultRole = role
		}
	}
}

// WithReportMaxRows caps rows rendered into HTML reports.
func WithReportMaxRows(n int) Option {
	return func(a *API) {
		if n > 0 {
			a.reportMaxRows = n
		}
	}
}

// WithAllowedOrigins sets the CORS origin allow-list. Entries may contain a
// single "*" wildcard, e.g. "https://*.navixy.com".
func WithAllowedOrigins(origins []string) Option {
	return func(a *API) {
		a.allowedOrigins = origins
	}
}

// WithFrameAncestors sets the origins allowed to embed the UI in a frame.
func WithFrameAncestors(ancestors []string) Option {
	return func(a *API) {
		a.frameAncestors = ancestors
	}
}

// WithTrustedProxies sets the proxy networks whose X-Forwarded-For and
// Forwarded headers are believed when identifying the client IP.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *API) {
		a.trustedProxies = prefixes
	}
}

// WithRateLimits sets the per-IP request budgets per minute. A zero value
// keeps the default.
func WithRateLimits(perMinute, loginPerMinute int) Option {
	return func(a *API) {
		if perMinute > 0 {
			a.rateLimit = perMinute
		}
		if loginPerMinute > 0 {
			a.loginRateLimit = loginPerMinute
		}
	}
}

// WithUI serves h for every non-API path the router does not match.
func WithUI(h http.Handler) Option {
	return func(a *API) {
		a.ui = h
	}
}

// WithCSRFPolicy sets how mutating requests without a CSRF cookie are
// handled. The default is BootstrapOnFirstContact.
func WithCSRFPolicy(p CSRFPolicy) Option {
	return func(a *API) {
		a.csrfPolicy = p
	}
}

// WithClock overrides the time source for request timing.
func WithClock(now func() time.Time) Option {
	return func(a *API) {
		a.now = now
	}
}

// New creates a new API instance.
func New(sessions session.Store, credentials session.CredentialStore, pools PoolSource, runner QueryRunner, tokens TokenIssuer, opts ...Option) *API {
	a := &API{
		sessions:       sessions,
		credentials:    credentials,
		pools:          pools,
		runner:         runner,
		tokens:         tokens,
		logger:         zap.NewNop(),
		defaultRole:    DefaultRole,
		reportMaxRows:  DefaultReportMaxRows,
		rateLimit:      DefaultRateLimitPerMinute,
		loginRateLimit: DefaultLoginRateLimitPerMinute,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.audit = newAuditLogger(a.logger, a.metrics)
	a.globalLimiter = newIPRateLimiter(a.rateLimit, time.Minute)
	a.loginLimiter = newIPRateLimiter(a.loginRateLimit, time.Minute)

	a.identityResolvers = []identityResolver{a.identityFromSession, a.identityFromBearer}
	a.connResolvers = []connStringResolver{a.connStringFromSession, a.connStringFromCache}
	return a
}

// Router returns a chi.Router with all routes and middleware mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(a.Recoverer)
	r.Use(SecurityHeaders(a.frameAncestors))
	r.Use(a.CORS())
	r.Use(a.RateLimit)
	r.Use(a.RequestLog)
	r.Use(a.SessionMiddleware)
	r.Use(a.CSRFMiddleware)

	r.Get("/health", a.Health)
	if a.metrics != nil {
		r.Handle("/metrics", a.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.With(a.LoginRateLimit).Post("/auth/login", a.Login)
		r.Post("/auth/logout", a.Logout)
		r.Get("/csrf-token", a.CSRFToken)

		r.Group(func(r chi.Router) {
			r.Use(a.AuthMiddleware)
			r.Post("/query/execute", a.ExecuteQuery)
			r.Post("/query", a.ExecuteQuery)
			r.Post("/export/xlsx", a.ExportXLSX)
			r.Post("/report/html", a.ReportHTML)
		})

		r.NotFound(a.NotFound)
		r.MethodNotAllowed(a.NotFound)
	})

	r.NotFound(a.fallback)
	r.MethodNotAllowed(a.fallback)
	return r
}

// fallback serves the UI for unmatched non-API paths, or a JSON 404.
func (a *API) fallback(w http.ResponseWriter, r *http.Request) {
	if a.ui != nil && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
		a.ui.ServeHTTP(w, r)
		return
	}
	a.NotFound(w, r)
}
