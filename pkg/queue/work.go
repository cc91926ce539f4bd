package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	// Packages
	server "github.com/mutablelogic/go-server"
	ref "github.com/mutablelogic/go-server/pkg/ref"
	attribute "go.opentelemetry.io/otel/attribute"
	codes "go.opentelemetry.io/otel/codes"
	trace "go.opentelemetry.io/otel/trace"
)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	spanPrefix = "dqueue."
)

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// runWork executes work with an optional timeout and panic recovery. Returns
// nil when fn returns nil, even if the context is done.
func runWork(parent context.Context, timeout time.Duration, fn func(context.Context) error) (errs error) {
	ctx, cancel := contextWithTimeout(parent, timeout)
	defer cancel()

	// Catch panics
	defer func() {
		if r := recover(); r != nil {
			errs = errors.Join(errs, fmt.Errorf("panic: %v", r))
		}
	}()

	// Run the work function
	if err := fn(ctx); err != nil {
		errs = errors.Join(errs, err)
	}

	// Include the context error with a failure
	if errs != nil && ctx.Err() != nil && !errors.Is(errs, ctx.Err()) {
		errs = errors.Join(errs, ctx.Err())
	}

	return errs
}

func contextWithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return ctx, func() {}
}

// startSpan starts a span if the tracer is not nil, and returns a function
// which ends it, recording any error
func startSpan(tracer trace.Tracer, ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func spanName(op string) string {
	return spanPrefix + op
}

// logger returns the logger, or the logger from the context, or nil if
// neither is set
func logger(ctx context.Context, log server.Logger) server.Logger {
	if log != nil {
		return log
	}
	func() {
		defer func() { recover() }()
		log = ref.Log(ctx)
	}()
	return log
}
