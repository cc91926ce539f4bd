package dqueue

import (
	"context"
	"errors"
	"time"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Backend is a storage engine holding the queue. Each backend owns exactly
// one session with the store and is not safe for concurrent use: at most
// one transaction may be open at any time.
type Backend interface {
	// Establish the session with the store
	Connect(context.Context) error

	// Create the queue table, index and type constraint if they do not exist
	Initialize(context.Context, TypeSet) error

	// Insert an entry which becomes visible after the delay. A zero or
	// negative delay makes the entry immediately visible. Returns
	// ErrClaimTransaction while a transaction is open.
	Publish(ctx context.Context, payload any, delay time.Duration, typ string) error

	// Open a transaction within which entries can be claimed
	Begin(context.Context) (Tx, error)

	// Return the number of entries in the store. Returns
	// ErrClaimTransaction while a transaction is open.
	Count(context.Context) (uint64, error)

	// Release the session. It is safe to call Close more than once.
	Close(context.Context) error
}

// Tx is a transaction on a backend session
type Tx interface {
	// Remove and return the ready entry with the earliest visibility time,
	// skipping entries claimed by other in-flight transactions. Returns
	// nil if there is no ready entry.
	ClaimNext(context.Context) (*Entry, error)

	// Commit the transaction, making any claim durable
	Commit(context.Context) error

	// Roll back the transaction, returning any claimed entry to the queue.
	// Calling Rollback after Commit or Rollback has no effect.
	Rollback(context.Context) error
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// WithTx begins a transaction and calls fn. The transaction is committed
// if fn returns nil, or rolled back otherwise. The transaction is also
// rolled back if fn panics, after which the panic continues. Neither the
// commit nor the rollback is cancelled with the context, so a claim which
// has been processed is not redelivered on shutdown.
func WithTx(ctx context.Context, backend Backend, fn func(Tx) error) error {
	tx, err := backend.Begin(ctx)
	if err != nil {
		return ErrClaimTransaction.Wrap(err)
	}

	// Ensure the transaction is released on panic
	committed := false
	defer func() {
		if r := recover(); r != nil {
			if !committed {
				_ = tx.Rollback(context.WithoutCancel(ctx))
			}
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		return errors.Join(err, tx.Rollback(context.WithoutCancel(ctx)))
	}
	committed = true
	if err := tx.Commit(context.WithoutCancel(ctx)); err != nil {
		return errors.Join(ErrClaimTransaction.Wrap(err), tx.Rollback(context.WithoutCancel(ctx)))
	}

	// Return success
	return nil
}
