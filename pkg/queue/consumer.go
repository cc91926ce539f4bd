package queue

import (
	"context"
	"errors"
	"time"

	// Packages
	dqueue "github.com/mutablelogic/go-dqueue"
	attribute "go.opentelemetry.io/otel/attribute"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Consumer claims ready entries one at a time, and dispatches each to the
// handler for its type. The claim is committed when the handler succeeds,
// and rolled back, returning the entry to the queue, when it fails.
type Consumer struct {
	opts
	backend  dqueue.Backend
	handlers Handlers
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewConsumer returns a consumer which owns the session of the backend.
func NewConsumer(backend dqueue.Backend, handlers Handlers, opt ...Opt) (*Consumer, error) {
	if backend == nil {
		return nil, dqueue.ErrBadParameter.With("nil backend")
	} else if handlers == nil {
		return nil, dqueue.ErrBadParameter.With("nil handlers")
	}
	o, err := applyOpts(opt)
	if err != nil {
		return nil, err
	}
	return &Consumer{opts: o, backend: backend, handlers: handlers}, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Run claims and dispatches entries until the context is cancelled, which
// returns nil, or a cycle fails, which returns the error. After a cycle
// finds no ready entry, its transaction is committed and the consumer
// waits for the idle period before the next cycle.
func (c *Consumer) Run(ctx context.Context) error {
	log := logger(ctx, c.log)
	if log != nil {
		log.With("consumer", c.name, "idle", c.idle).Print(ctx, "started")
	}

	timer := time.NewTimer(c.idle)
	defer timer.Stop()
	for {
		if ctx.Err() != nil {
			return nil
		}

		claimed, err := c.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			if log != nil {
				log.With("consumer", c.name).Print(ctx, err)
			}
			return err
		} else if claimed {
			continue
		}

		// Idle
		timer.Reset(c.idle)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

// RunOnce runs one cycle: it claims the next ready entry and dispatches it.
// Returns true if an entry was handled and committed, or false if there was
// no ready entry. A missing handler returns ErrNotFound and a handler
// failure returns ErrHandler, after the claim is rolled back.
func (c *Consumer) RunOnce(ctx context.Context) (claimed bool, result error) {
	ctx, endspan := startSpan(c.tracer, ctx, spanName("consumer.claim"),
		attribute.String("consumer", c.name),
	)
	defer func() { endspan(result) }()

	if err := dqueue.WithTx(ctx, c.backend, func(tx dqueue.Tx) error {
		entry, err := tx.ClaimNext(ctx)
		if err != nil {
			return claimerror(err)
		} else if entry == nil {
			return nil
		}
		c.metrics.Claimed(entry.Type)
		claimed = true

		fn, exists := c.handlers.Lookup(entry.Type)
		if !exists {
			return dqueue.ErrNotFound.Withf("no handler for type %q (entry %d)", entry.Type, entry.Id)
		}
		return c.dispatch(ctx, entry, fn)
	}); err != nil {
		return false, err
	}

	if !claimed {
		c.metrics.Idle()
	}

	// Return success
	return claimed, nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (c *Consumer) dispatch(ctx context.Context, entry *dqueue.Entry, fn HandlerFunc) (result error) {
	ctx, endspan := startSpan(c.tracer, ctx, spanName("consumer.handle."+entry.Type),
		attribute.Int64("id", int64(entry.Id)),
		attribute.String("type", entry.Type),
		attribute.String("visible_at", entry.VisibleAt.Format(time.RFC3339)),
	)
	defer func() { endspan(result) }()

	if log := logger(ctx, c.log); log != nil {
		log.With("id", entry.Id, "type", entry.Type).Debug(ctx, "dispatch")
	}

	start := time.Now()
	err := runWork(ctx, c.timeout, func(ctx context.Context) error {
		return fn(ctx, entry)
	})
	c.metrics.Handled(entry.Type, time.Since(start), err)
	if err != nil {
		return dqueue.ErrHandler.Wrap(err)
	}

	// Return success
	return nil
}

// claimerror returns a claim error, keeping the code of errors which
// already carry a connection or data corruption code
func claimerror(err error) error {
	switch dqueue.Code(err) {
	case dqueue.ErrConnection, dqueue.ErrDataCorruption, dqueue.ErrClaimTransaction:
		return err
	}
	return dqueue.ErrClaimTransaction.Wrap(err)
}
