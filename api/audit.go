package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditLogin            AuditEvent = "login"
	AuditLoginRateLimited AuditEvent = "login_rate_limited"
	AuditLogout           AuditEvent = "logout"
	AuditCSRFRejected     AuditEvent = "csrf_rejected"
	AuditQueryExecute     AuditEvent = "query_execute"
	AuditQueryFailed      AuditEvent = "query_failed"
	AuditDBSSLError       AuditEvent = "db_ssl_error"
	AuditExportXLSX       AuditEvent = "export_xlsx"
	AuditReportHTML       AuditEvent = "report_html"
	AuditError            AuditEvent = "error"
)

// auditLogger wraps zap.Logger for structured security audit logging.
type auditLogger struct {
	logger  *zap.Logger
	metrics *Metrics
}

func newAuditLogger(logger *zap.Logger, metrics *Metrics) *auditLogger {
	return &auditLogger{
		logger:  logger.With(zap.String("component", "audit")),
		metrics: metrics,
	}
}

// log writes a structured audit log entry. Callers pass user ids, never
// connection strings or tokens.
func (al *auditLogger) log(event AuditEvent, r *http.Request, fields ...zap.Field) {
	base := []zap.Field{
		zap.String("event", string(event)),
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	base = append(base, fields...)

	if event == AuditError || event == AuditDBSSLError {
		al.logger.Error("audit", base...)
	} else {
		al.logger.Info("audit", base...)
	}
	al.metrics.recordEvent(event)
}

// logUser is a convenience for events attributed to a user.
func (al *auditLogger) logUser(event AuditEvent, r *http.Request, userID string, extra ...zap.Field) {
	fields := []zap.Field{zap.String("userId", userID)}
	fields = append(fields, extra...)
	al.log(event, r, fields...)
}
