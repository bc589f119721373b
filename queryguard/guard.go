// Package queryguard decides whether submitted SQL may run and how it is bounded.
//
// The read-only check is a syntactic deny list applied after comments are
// removed. It is not a parser: statements that never spell out a denied verb
// are accepted, including multi-statement input.
package queryguard

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	denyPattern  = regexp.MustCompile(`(?i)\b(DROP|DELETE|UPDATE|INSERT|ALTER\s|COPY\s+(TO|FROM)|CREATE\s+EXTENSION|TRUNCATE|GRANT|REVOKE|EXECUTE\s+ON)\b`)
	limitClause  = regexp.MustCompile(`(?i)\blimit\s+\d+`)
	trailingSemi = regexp.MustCompile(`;\s*$`)
)

// Policy holds the execution bounds applied to every guarded statement.
type Policy struct {
	Timeout  time.Duration
	RowLimit int
}

// StatementTimeout returns the per-connection execution cap.
func (p Policy) StatementTimeout() time.Duration {
	return p.Timeout
}

// StatementTimeoutMillis is the timeout in the unit PostgreSQL's
// statement_timeout setting expects.
func (p Policy) StatementTimeoutMillis() int64 {
	return p.Timeout.Milliseconds()
}

// Apply rewrites sql with the policy's row limit.
func (p Policy) Apply(sql string) string {
	return ApplyRowLimit(sql, p.RowLimit)
}

// StripComments removes "--" line comments and "/* */" block comments.
// Quoted literals, quoted identifiers and dollar-quoted bodies are copied
// through unchanged, so comment markers inside them are not comments.
func StripComments(sql string) string {
	return strings.TrimSpace(stripComments(sql, false))
}

// IsReadOnly reports whether sql contains none of the denied statement verbs
// outside of comments.
func IsReadOnly(sql string) bool {
	// Whether a backslash escapes a quote in a plain literal depends on the
	// server's standard_conforming_strings, so both readings must pass.
	return !denyPattern.MatchString(stripComments(sql, false)) &&
		!denyPattern.MatchString(stripComments(sql, true))
}

// HasLimit reports whether sql already carries a numeric LIMIT clause.
func HasLimit(sql string) bool {
	return limitClause.MatchString(sql)
}

// ApplyRowLimit trims sql and drops a trailing semicolon. If no LIMIT clause
// is present it appends LIMIT limit+1 so the caller can detect truncation
// without a second count query.
func ApplyRowLimit(sql string, limit int) string {
	trimmed := trailingSemi.ReplaceAllString(strings.TrimSpace(sql), "")
	if HasLimit(trimmed) {
		return trimmed
	}
	return trimmed + " LIMIT " + strconv.Itoa(limit+1)
}
