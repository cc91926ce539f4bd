package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	// Packages
	dqueue "github.com/mutablelogic/go-dqueue"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type tx struct {
	backend *Backend
	tx      *sql.Tx
}

var _ dqueue.Tx = (*tx)(nil)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// ClaimNext locks the ready entry with the earliest visibility time,
// skipping rows locked by other transactions, and deletes it
func (t *tx) ClaimNext(ctx context.Context) (*dqueue.Entry, error) {
	b := t.backend
	b.Lock()
	defer b.Unlock()

	if t.tx == nil {
		return nil, dqueue.ErrClaimTransaction.With("transaction is closed")
	}

	var (
		id      uint64
		typ     string
		data    []byte
		visible time.Time
	)
	if err := t.tx.QueryRowContext(ctx, b.bind.Query("queue.select")).Scan(&id, &typ, &data, &visible); errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, dqueue.ErrClaimTransaction.Wrap(sqlerror(err))
	}
	if _, err := t.tx.ExecContext(ctx, b.bind.Query("queue.delete"), id); err != nil {
		return nil, dqueue.ErrClaimTransaction.Wrap(sqlerror(err))
	}

	return dqueue.NewEntry(id, typ, data, visible)
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
	if err := t.tx.Commit(); err != nil {
		return dqueue.ErrClaimTransaction.Wrap(sqlerror(err))
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
	return t.rollback()
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (t *tx) rollback() error {
	if t.tx == nil {
		return nil
	}
	defer t.close()
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return dqueue.ErrClaimTransaction.Wrap(sqlerror(err))
	}
	return nil
}

func (t *tx) close() {
	t.tx = nil
	if t.backend.tx == t {
		t.backend.tx = nil
	}
}
