package api

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"io"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"github.com/AndyMelnik/iot-query-probe-v2/internal/util"
)

const (
	csrfCookieName = "iqp_csrf"
	csrfHeaderName = "X-CSRF-Token"
	csrfTokenBytes = 24

	CodeCSRFTokenMissing  = "CSRF_TOKEN_MISSING"
	CodeCSRFTokenMismatch = "CSRF_TOKEN_MISMATCH"
)

// CSRFPolicy decides what happens to a mutating request that arrives
// without a CSRF cookie.
type CSRFPolicy int

const (
	// BootstrapOnFirstContact issues a token cookie and lets the request
	// through. The first mutating request of a client that never fetched a
	// token is therefore unprotected.
	BootstrapOnFirstContact CSRFPolicy = iota
	// RejectWithoutCookie treats a missing cookie like a missing token.
	RejectWithoutCookie
)

// csrfExemptPaths are mutating endpoints that run before a client can hold
// a token.
var csrfExemptPaths = map[string]bool{
	"/api/auth/login": true,
	"/api/csrf-token": true,
}

// CSRFMiddleware enforces double-submit cookie CSRF protection. Safe
// methods (GET, HEAD, OPTIONS) and the exempt paths pass through.
func (a *API) CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if csrfExemptPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(csrfCookieName)
		if err != nil || cookie.Value == "" {
			if a.csrfPolicy == RejectWithoutCookie {
				a.rejectCSRF(w, r, "CSRF token missing in request header", CodeCSRFTokenMissing)
				return
			}
			if _, err := a.writeCSRFCookie(w, r); err != nil {
				a.internalError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		submitted := r.Header.Get(csrfHeaderName)
		if submitted == "" {
			submitted = csrfFromBody(r)
		}
		if submitted == "" {
			a.rejectCSRF(w, r, "CSRF token missing in request header", CodeCSRFTokenMissing)
			return
		}
		if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(submitted)) != 1 {
			a.rejectCSRF(w, r, "CSRF token mismatch", CodeCSRFTokenMismatch)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *API) rejectCSRF(w http.ResponseWriter, r *http.Request, msg, code string) {
	a.metrics.csrfRejected(code)
	a.audit.log(AuditCSRFRejected, r, zap.String("code", code), zap.String("path", r.URL.Path))
	writeErrorCode(w, http.StatusForbidden, msg, code)
}

// csrfFromBody reads the token from a JSON body field and restores the
// body for the handler.
func csrfFromBody(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "application/json" {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	var payload struct {
		CSRF string `json:"_csrf"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}
	return payload.CSRF
}

// CSRFToken returns the caller's CSRF token, issuing one if needed.
func (a *API) CSRFToken(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(csrfCookieName); err == nil && cookie.Value != "" {
		writeJSON(w, http.StatusOK, CSRFTokenResponse{CSRFToken: cookie.Value})
		return
	}
	token, err := a.writeCSRFCookie(w, r)
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CSRFTokenResponse{CSRFToken: token})
}

// writeCSRFCookie sets a new CSRF double-submit cookie. It is intentionally
// NOT HttpOnly so that the browser-side SPA can read it and include it as a
// request header on mutating requests.
func (a *API) writeCSRFCookie(w http.ResponseWriter, r *http.Request) (string, error) {
	token, err := util.RandomHex(csrfTokenBytes)
	if err != nil {
		return "", err
	}
	secure := a.secureCookies(r)
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   secure,
		SameSite: cookieSameSite(secure),
		MaxAge:   int(cookieTTL.Seconds()),
	})
	return token, nil
}

// clearCSRFCookie removes the CSRF cookie on logout.
func (a *API) clearCSRFCookie(w http.ResponseWriter, r *http.Request) {
	secure := a.secureCookies(r)
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: false,
		Secure:   secure,
		SameSite: cookieSameSite(secure),
		MaxAge:   -1,
	})
}
