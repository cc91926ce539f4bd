package sqlite

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
	done    bool
}

var _ dqueue.Tx = (*tx)(nil)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// ClaimNext deletes and returns the ready entry with the earliest
// visibility time. There is no row locking: the store allows only one
// writer, and the file lock allows only one process.
func (t *tx) ClaimNext(ctx context.Context) (*dqueue.Entry, error) {
	b := t.backend
	b.Lock()
	defer b.Unlock()

	if t.done {
		return nil, dqueue.ErrClaimTransaction.With("transaction is closed")
	}

	var (
		id        uint64
		typ, data string
		visible   int64
	)
	if err := b.conn.QueryRowContext(ctx, b.bind.Query("queue.claim"), b.clock().Unix()).Scan(&id, &typ, &data, &visible); errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, dqueue.ErrClaimTransaction.Wrap(sqliteerror(err))
	}

	// Payload is stored as text, and must decode as JSON
	return dqueue.NewEntry(id, typ, []byte(data), time.Unix(visible, 0).UTC())
}

// Commit the transaction
func (t *tx) Commit(ctx context.Context) error {
	b := t.backend
	b.Lock()
	defer b.Unlock()

	if t.done {
		return dqueue.ErrClaimTransaction.With("transaction is closed")
	}
	if !b.autocommit {
		if _, err := b.conn.ExecContext(ctx, "COMMIT"); err != nil {
			return dqueue.ErrClaimTransaction.Wrap(sqliteerror(err))
		}
	}
	t.close()

	// Return success
	return nil
}

// Rollback the transaction, restoring any claimed entry. Has no effect
// if the transaction is already closed.
func (t *tx) Rollback(ctx context.Context) error {
	b := t.backend
	b.Lock()
	defer b.Unlock()
	return t.rollback(ctx)
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (t *tx) rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	defer t.close()
	if t.backend.autocommit {
		return nil
	}
	if _, err := t.backend.conn.ExecContext(ctx, "ROLLBACK"); err != nil {
		return dqueue.ErrClaimTransaction.Wrap(sqliteerror(err))
	}
	return nil
}

func (t *tx) close() {
	t.done = true
	if t.backend.tx == t {
		t.backend.tx = nil
	}
}
