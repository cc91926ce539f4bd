package queue

import (
	"context"
	"time"

	// Packages
	dqueue "github.com/mutablelogic/go-dqueue"
	attribute "go.opentelemetry.io/otel/attribute"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Publisher inserts entries, checking the message type against the types
// declared for the store before any round trip
type Publisher struct {
	opts
	backend dqueue.Backend
	types   dqueue.TypeSet
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewPublisher returns a publisher for a backend. The tracer and logger
// options apply.
func NewPublisher(backend dqueue.Backend, types dqueue.TypeSet, opt ...Opt) (*Publisher, error) {
	if backend == nil {
		return nil, dqueue.ErrBadParameter.With("nil backend")
	} else if types.Len() == 0 {
		return nil, dqueue.ErrBadParameter.With("no types declared")
	}
	o, err := applyOpts(opt)
	if err != nil {
		return nil, err
	}
	return &Publisher{opts: o, backend: backend, types: types}, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Publish an entry which becomes visible after the delay. Returns
// ErrConstraint for an undeclared type and ErrBadParameter for a nil
// payload.
func (p *Publisher) Publish(ctx context.Context, typ string, payload any, delay time.Duration) (result error) {
	if err := p.types.Validate(typ); err != nil {
		return err
	} else if payload == nil {
		return dqueue.ErrBadParameter.With("missing payload")
	}

	ctx, endspan := startSpan(p.tracer, ctx, spanName("publisher.publish"),
		attribute.String("type", typ),
		attribute.String("delay", delay.String()),
	)
	defer func() { endspan(result) }()

	if err := p.backend.Publish(ctx, payload, delay, typ); err != nil {
		return err
	}
	if log := logger(ctx, p.log); log != nil {
		log.With("type", typ, "delay", delay).Debug(ctx, "published")
	}

	// Return success
	return nil
}
