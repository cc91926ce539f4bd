package postgres

import (
	"context"
	"errors"
	"time"

	// Packages
	pgx "github.com/jackc/pgx/v5"
	dqueue "github.com/mutablelogic/go-dqueue"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type tx struct {
	backend *Backend
	tx      pgx.Tx
}

var _ dqueue.Tx = (*tx)(nil)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// ClaimNext deletes and returns the ready entry with the earliest
// visibility time. Rows locked by other transactions are skipped, so an
// entry is never delivered to two consumers at once.
func (t *tx) ClaimNext(ctx context.Context) (*dqueue.Entry, error) {
	b := t.backend
	b.Lock()
	defer b.Unlock()

	if t.tx == nil {
		return nil, dqueue.ErrClaimTransaction.With("transaction is closed")
	}

	var (
		id      int64
		typ     string
		data    []byte
		visible time.Time
	)
	if err := t.tx.QueryRow(ctx, b.bind.Query("queue.claim"), pgx.NamedArgs{
		TraceSpanNameArg: "dqueue.claim",
	}).Scan(&id, &typ, &data, &visible); errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, dqueue.ErrClaimTransaction.Wrap(pgerror(err))
	}

	return dqueue.NewEntry(uint64(id), typ, data, visible)
}

// Commit the transaction
func (t *tx) Commit(ctx context.Context) error {
	b := t.backend
	b.Lock()
	defer b.Unlock()

	if t.tx == nil {
		return dqueue.ErrClaimTransaction.With("transaction is closed")
	}
	defer t.close()
	if err := t.tx.Commit(ctx); err != nil {
		return dqueue.ErrClaimTransaction.Wrap(pgerror(err))
	}

	// Return success
	return nil
}

// Rollback the transaction, releasing the row lock on any claimed entry.
// Has no effect if the transaction is already closed.
func (t *tx) Rollback(ctx context.Context) error {
	b := t.backend
	b.Lock()
	defer b.Unlock()
	return t.rollback(ctx)
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (t *tx) rollback(ctx context.Context) error {
	if t.tx == nil {
		return nil
	}
	defer t.close()
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return dqueue.ErrClaimTransaction.Wrap(pgerror(err))
	}
	return nil
}

func (t *tx) close() {
	t.tx = nil
	if t.backend.tx == t {
		t.backend.tx = nil
	}
}
