package query

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies a failed execution.
type Kind int

const (
	// KindUnauthorized means no database credentials resolved for the caller.
	KindUnauthorized Kind = iota + 1
	// KindInvalid means the statement was empty.
	KindInvalid
	// KindPolicyViolation means the statement is not read-only.
	KindPolicyViolation
	// KindTimeout means the database cancelled the statement at its
	// statement_timeout.
	KindTimeout
	// KindSSLConfiguration means the database channel failed TLS or
	// certificate checks. It needs an administrator, not a retry.
	KindSSLConfiguration
	// KindFailed covers every other database error.
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalid:
		return "invalid"
	case KindPolicyViolation:
		return "policy_violation"
	case KindTimeout:
		return "timeout"
	case KindSSLConfiguration:
		return "ssl_configuration"
	case KindFailed:
		return "failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// SQLSTATE query_canceled, raised when statement_timeout fires.
const sqlStateQueryCanceled = "57014"

// Stable codes for failures that carry no SQLSTATE of their own.
const (
	CodeQueryError        = "QUERY_ERROR"
	CodeNoCredentials     = "NO_CREDENTIALS"
	CodeInvalidSQL        = "INVALID_SQL"
	CodeReadOnlyViolation = "READ_ONLY_VIOLATION"
	CodeQueryTimeout      = "QUERY_TIMEOUT"
)

const (
	msgNoCredentials = "No database credentials"
	msgInvalidSQL    = "Missing or invalid sql"
	msgReadOnly      = "Only SELECT queries are allowed"
	msgTimeout       = "Query timeout"
	msgSSL           = "Database SSL certificate error. Please contact administrator."
)

// Error is a classified execution failure. Message is safe to show to the
// caller; Detail carries the raw driver text when Message replaces it.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Detail  string
	Elapsed time.Duration
	Err     error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Executed reports whether the failure happened after the statement was
// handed to the database, so elapsed time is meaningful.
func (e *Error) Executed() bool {
	return e.Kind == KindTimeout || e.Kind == KindSSLConfiguration || e.Kind == KindFailed
}

// Outcome names the terminal state of an execution for logs, metrics and
// traces.
func Outcome(err error) string {
	if err == nil {
		return "succeeded"
	}
	var qerr *Error
	if !errors.As(err, &qerr) {
		return "failed"
	}
	switch qerr.Kind {
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalid, KindPolicyViolation:
		return "rejected"
	case KindTimeout:
		return "timed_out"
	default:
		return "failed"
	}
}

// classify converts a driver error raised while executing.
func classify(err error, elapsed time.Duration) *Error {
	code := CodeQueryError
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		code = pgErr.Code
	}

	switch {
	case code == sqlStateQueryCanceled:
		return &Error{Kind: KindTimeout, Code: CodeQueryTimeout, Message: msgTimeout, Elapsed: elapsed, Err: err}
	case isCertificateError(err):
		return &Error{
			Kind:    KindSSLConfiguration,
			Code:    code,
			Message: msgSSL,
			Detail:  err.Error(),
			Elapsed: elapsed,
			Err:     err,
		}
	}
	msg := err.Error()
	if pgErr != nil {
		msg = pgErr.Message
	}
	return &Error{Kind: KindFailed, Code: code, Message: msg, Elapsed: elapsed, Err: err}
}

func isCertificateError(err error) bool {
	var (
		unknownAuthority x509.UnknownAuthorityError
		hostname         x509.HostnameError
		invalid          x509.CertificateInvalidError
		verification     *tls.CertificateVerificationError
	)
	switch {
	case errors.As(err, &unknownAuthority),
		errors.As(err, &hostname),
		errors.As(err, &invalid),
		errors.As(err, &verification):
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "certificate")
}
