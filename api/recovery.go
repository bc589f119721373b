package api

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// Recoverer turns a handler panic into an audited JSON 500 so one bad
// request cannot take the process down.
func (a *API) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			a.internalError(w, r, fmt.Errorf("panic: %v", rec), zap.Stack("stack"))
		}()
		next.ServeHTTP(w, r)
	})
}

// internalError audits err and replies with a generic 500.
func (a *API) internalError(w http.ResponseWriter, r *http.Request, err error, extra ...zap.Field) {
	fields := append([]zap.Field{zap.Error(err), zap.String("path", r.URL.Path)}, extra...)
	a.audit.log(AuditError, r, fields...)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}
