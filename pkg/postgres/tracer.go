package postgres

import (
	"context"
	"strings"

	// Packages
	pgx "github.com/jackc/pgx/v5"
	attribute "go.opentelemetry.io/otel/attribute"
	codes "go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	trace "go.opentelemetry.io/otel/trace"
)

//////////////////////////////////////////////////////////////////////////////
// TYPES

// tracer traces the statements executed on the session
type tracer struct {
	fn    TraceFn
	otel  trace.Tracer
	table string
}

type queryData struct {
	span trace.Span
	sql  string
	args []any
}

type ctxKey struct{}

// TraceFn is a function which is called when a statement has executed,
// with the execution context, the SQL and arguments, and the error
// if any was generated
type TraceFn func(context.Context, string, any, error)

//////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	// Named argument which sets the span name for a statement
	TraceSpanNameArg = "otelspan"
	defaultSpanName  = "dqueue.query"
)

//////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func newTracer(o *opt) *tracer {
	if o.trace == nil && o.tracer == nil {
		return nil
	}
	return &tracer{
		fn:    o.trace,
		otel:  o.tracer,
		table: o.table,
	}
}

//////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (t *tracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	qd := &queryData{
		sql:  data.SQL,
		args: data.Args,
	}

	if t.otel != nil {
		ctx, qd.span = t.otel.Start(ctx, spanName(qd.args),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemPostgreSQL,
				attribute.String("db.sql.table", t.table),
				attribute.String("db.statement", strings.TrimSpace(data.SQL)),
			),
		)
	}

	return context.WithValue(ctx, ctxKey{}, qd)
}

func (t *tracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	qd, ok := ctx.Value(ctxKey{}).(*queryData)
	if !ok {
		return
	}

	if qd.span != nil {
		if data.Err != nil {
			qd.span.RecordError(data.Err)
			qd.span.SetStatus(codes.Error, data.Err.Error())
		} else {
			qd.span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
		}
		qd.span.End()
	}

	if t.fn != nil {
		t.fn(ctx, strings.TrimSpace(qd.sql), args(qd.args), data.Err)
	}
}

//////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func spanName(args []any) string {
	for _, arg := range args {
		if named, ok := arg.(pgx.NamedArgs); ok {
			if v, ok := named[TraceSpanNameArg].(string); ok && v != "" {
				return v
			}
		}
	}
	return defaultSpanName
}

func args(args []any) any {
	if len(args) == 0 {
		return nil
	}
	if len(args) == 1 {
		return args[0]
	}
	return args
}
