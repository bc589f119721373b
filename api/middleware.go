package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/AndyMelnik/iot-query-probe-v2/dbpool"
	"github.com/AndyMelnik/iot-query-probe-v2/session"
)

type contextKey int

const stateKey contextKey = iota

const sessionCookieName = "iqp_sid"

var errInvalidToken = errors.New("invalid token")

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// requestState is shared by the middleware chain of one request.
type requestState struct {
	sessionID string
	session   *session.Session
	identity  *Identity
}

// identityResolver returns (nil, nil) when it does not apply to r, so the
// next resolver is tried. An error rejects the request.
type identityResolver func(r *http.Request) (*Identity, error)

// connStringResolver returns the tenant database URL for r, or "".
type connStringResolver func(r *http.Request) string

func stateFromContext(ctx context.Context) *requestState {
	st, _ := ctx.Value(stateKey).(*requestState)
	if st == nil {
		return &requestState{}
	}
	return st
}

// IdentityFromContext returns the identity resolved by AuthMiddleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	st, _ := ctx.Value(stateKey).(*requestState)
	if st == nil || st.identity == nil {
		return Identity{}, false
	}
	return *st.identity, true
}

// SessionMiddleware resolves the session cookie. A missing or expired
// session gets a fresh session id cookie with no session behind it.
func (a *API) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := &requestState{}
		if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
			if s, ok := a.sessions.Get(r.Context(), cookie.Value); ok {
				st.sessionID = cookie.Value
				st.session = &s
			}
		}
		if st.session == nil {
			id, err := session.NewID()
			if err != nil {
				a.logger.Error("generating session id", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			st.sessionID = id
			a.writeSessionCookie(w, r, id)
		}
		ctx := context.WithValue(r.Context(), stateKey, st)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthMiddleware runs the identity resolvers in order and stores the first
// identity found on the request context.
func (a *API) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := stateFromContext(r.Context())
		for _, resolve := range a.identityResolvers {
			id, err := resolve(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			if id != nil {
				st.identity = id
				ctx := context.WithValue(r.Context(), stateKey, st)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}
		writeError(w, http.StatusUnauthorized, "Unauthorized")
	})
}

func (a *API) identityFromSession(r *http.Request) (*Identity, error) {
	st := stateFromContext(r.Context())
	if st.session == nil || st.session.UserID == "" {
		return nil, nil
	}
	return &Identity{UserID: st.session.UserID, Email: st.session.Email, Role: st.session.Role}, nil
}

func (a *API) identityFromBearer(r *http.Request) (*Identity, error) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return nil, nil
	}
	claims, err := a.tokens.Verify(strings.TrimSpace(raw))
	if err != nil {
		return nil, errInvalidToken
	}
	return &Identity{UserID: claims.UserID, Email: claims.Email, Role: claims.Role}, nil
}

func (a *API) connStringFromSession(r *http.Request) string {
	st := stateFromContext(r.Context())
	if st.session == nil {
		return ""
	}
	return st.session.IoTDBURL
}

func (a *API) connStringFromCache(r *http.Request) string {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		return ""
	}
	creds, ok := a.credentials.Get(r.Context(), id.UserID)
	if !ok {
		return ""
	}
	return creds.IoTDBURL
}

// poolFor returns the pool for the first connection string a resolver
// yields, or nil when the caller has no database credentials.
func (a *API) poolFor(r *http.Request) (dbpool.Pool, error) {
	for _, resolve := range a.connResolvers {
		if cs := resolve(r); cs != "" {
			return a.pools.Pool(cs)
		}
	}
	return nil, nil
}

// RequestLog logs one "request" event per response and records request
// metrics.
func (a *API) RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := a.now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := a.now().Sub(start)
		a.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int64("durationMs", elapsed.Milliseconds()),
		)
		a.metrics.observeRequest(r.Method, status, elapsed)
	})
}

// secureCookies reports whether cookies must carry the Secure flag.
func (a *API) secureCookies(r *http.Request) bool {
	return a.production || requestIsSecure(r)
}

// cookieSameSite allows cross-site use inside the host application's frame.
// Browsers drop SameSite=None cookies that are not Secure, so plain HTTP
// development falls back to Lax.
func cookieSameSite(secure bool) http.SameSite {
	if secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func (a *API) writeSessionCookie(w http.ResponseWriter, r *http.Request, id string) {
	secure := a.secureCookies(r)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: cookieSameSite(secure),
		MaxAge:   int(cookieTTL.Seconds()),
	})
}

func (a *API) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	secure := a.secureCookies(r)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: cookieSameSite(secure),
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
