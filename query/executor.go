// Package query runs guarded, read-only SQL against a tenant pool and shapes
// the outcome into a bounded result or a classified error.
//
// An execution moves through Unauthorized, PoolResolved, GuardChecked and
// Executing, and ends Succeeded, TimedOut, Rejected or Failed. The pooled
// connection is released on every exit path.
package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AndyMelnik/iot-query-probe-v2/dbpool"
	"github.com/AndyMelnik/iot-query-probe-v2/queryguard"
)

const tracerName = "github.com/AndyMelnik/iot-query-probe-v2/query"

// Column describes one result column.
type Column struct {
	Name     string
	DataType uint32
}

// Result is a successful execution. Rows are positional, in column order.
type Result struct {
	Columns   []Column
	Rows      [][]any
	Truncated bool
	Elapsed   time.Duration
}

// RowCount is the number of rows returned after truncation.
func (r *Result) RowCount() int {
	return len(r.Rows)
}

// Executor runs statements under a queryguard.Policy.
type Executor struct {
	policy queryguard.Policy
	tracer trace.Tracer
	now    func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithTracerProvider sets the provider executions are traced with. The
// global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Executor) { e.tracer = tp.Tracer(tracerName) }
}

// WithClock overrides the time source used to measure elapsed time.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// NewExecutor creates an Executor.
func NewExecutor(policy queryguard.Policy, opts ...Option) *Executor {
	e := &Executor{
		policy: policy,
		tracer: otel.GetTracerProvider().Tracer(tracerName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the bounds the executor applies.
func (e *Executor) Policy() queryguard.Policy {
	return e.policy
}

// Execute runs sql on a connection from pool. A nil pool means the caller
// has no database credentials. Every error returned is a *Error.
func (e *Executor) Execute(ctx context.Context, pool dbpool.Pool, sql string) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "query.Execute",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.system", "postgresql")),
	)
	defer span.End()

	res, err := e.execute(ctx, pool, sql)
	span.SetAttributes(attribute.String("query.outcome", Outcome(err)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Outcome(err))
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("query.row_count", res.RowCount()),
		attribute.Bool("query.truncated", res.Truncated),
	)
	return res, nil
}

func (e *Executor) execute(ctx context.Context, pool dbpool.Pool, sql string) (*Result, error) {
	if pool == nil {
		return nil, &Error{Kind: KindUnauthorized, Code: CodeNoCredentials, Message: msgNoCredentials}
	}
	if strings.TrimSpace(sql) == "" {
		return nil, &Error{Kind: KindInvalid, Code: CodeInvalidSQL, Message: msgInvalidSQL}
	}
	if !queryguard.IsReadOnly(sql) {
		return nil, &Error{Kind: KindPolicyViolation, Code: CodeReadOnlyViolation, Message: msgReadOnly}
	}
	applied := e.policy.Apply(sql)

	start := e.now()
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, classify(err, e.now().Sub(start))
	}
	defer conn.Release()

	setTimeout := fmt.Sprintf("SET statement_timeout = %d", e.policy.StatementTimeoutMillis())
	if _, err := conn.Exec(ctx, setTimeout); err != nil {
		return nil, classify(err, e.now().Sub(start))
	}

	res, err := e.collect(ctx, conn, applied)
	elapsed := e.now().Sub(start)
	if err != nil {
		return nil, classify(err, elapsed)
	}
	res.Elapsed = elapsed
	return res, nil
}

// collect reads at most RowLimit+1 rows: the extra row only signals that
// the result was truncated.
func (e *Executor) collect(ctx context.Context, conn dbpool.Conn, sql string) (*Result, error) {
	rows, err := conn.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]Column, len(fields))
	for i, f := range fields {
		columns[i] = Column{Name: f.Name, DataType: f.DataTypeOID}
	}

	limit := e.policy.RowLimit
	res := &Result{Columns: columns, Rows: make([][]any, 0)}
	for rows.Next() {
		if len(res.Rows) >= limit {
			res.Truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, normalizeRow(values))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}
