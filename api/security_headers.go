package api

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
)

// DefaultFrameAncestors are the origins allowed to embed the UI when none
// are configured.
var DefaultFrameAncestors = []string{"https://*.navixy.com", "https://navixy.com"}

// contentSecurityPolicy builds the CSP header value. The UI runs inside a
// host application's frame, so frame-ancestors lists the embedding origins.
func contentSecurityPolicy(frameAncestors []string) string {
	if len(frameAncestors) == 0 {
		frameAncestors = DefaultFrameAncestors
	}
	directives := []string{
		"default-src 'self'",
		"script-src 'self'",
		"style-src 'self' 'unsafe-inline'",
		"img-src 'self' data: blob:",
		"connect-src 'self'",
		"form-action 'self'",
		"frame-ancestors 'self' " + strings.Join(frameAncestors, " "),
	}
	return strings.Join(directives, "; ")
}

// SecurityHeaders returns middleware that sets standard security response
// headers on every response. It should be placed early in the middleware
// chain.
func SecurityHeaders(frameAncestors []string) func(http.Handler) http.Handler {
	csp := contentSecurityPolicy(frameAncestors)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			w.Header().Set("Content-Security-Policy", csp)
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")

			next.ServeHTTP(w, r)
		})
	}
}

// CORS allows credentialed cross-origin calls from the configured origins,
// which may contain a "*" wildcard such as "https://*.navixy.com".
func (a *API) CORS() func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   a.allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", csrfHeaderName},
		AllowCredentials: true,
		MaxAge:           600,
	})
	return c.Handler
}
