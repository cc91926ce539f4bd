package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	// Packages
	dqueue "github.com/mutablelogic/go-dqueue"

	// Register the "sqlite" driver
	_ "modernc.org/sqlite"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Backend is a queue stored in an embedded database file. The file is
// locked exclusively when the backend connects, so only one consumer
// process can use a store at any time.
type Backend struct {
	sync.Mutex
	*opt
	bind  *dqueue.Bind
	db    *sql.DB
	conn  *sql.Conn
	tx    *tx
	types dqueue.TypeSet
}

var _ dqueue.Backend = (*Backend)(nil)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

//go:embed queries.sql
var queries string

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New returns an unconnected backend for the database file set by WithPath
func New(opts ...Opt) (*Backend, error) {
	o, err := apply(opts...)
	if err != nil {
		return nil, err
	}
	bind := dqueue.NewBind(
		"table", o.table,
		"index", o.table+"_visible_at_idx",
		"session", o.table+"_session",
		"busy_timeout", o.busyTimeout.Milliseconds(),
	).WithQueries(dqueue.MustQueries(queries))
	return &Backend{opt: o, bind: bind}, nil
}

// Connect opens the database file and takes an exclusive lock on it, which
// is held until Close. Returns ErrConnection if another process holds the
// lock.
func (b *Backend) Connect(ctx context.Context) error {
	b.Lock()
	defer b.Unlock()

	if b.conn != nil {
		return dqueue.ErrConnection.With("already connected")
	}

	// Create the parent directory
	if dir := filepath.Dir(b.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return dqueue.ErrConnection.Wrap(err)
		}
	}

	// Open the database with a single pinned connection
	db, err := sql.Open("sqlite", b.path)
	if err != nil {
		return dqueue.ErrConnection.Wrap(err)
	}
	db.SetMaxOpenConns(1)
	conn, err := db.Conn(ctx)
	if err != nil {
		return errors.Join(dqueue.ErrConnection.Wrap(err), db.Close())
	}

	// Take the lock
	if err := b.lock(ctx, conn); err != nil {
		return errors.Join(err, conn.Close(), db.Close())
	}

	b.db, b.conn = db, conn

	// Return success
	return nil
}

// Initialize creates the queue table and index if they do not exist. The
// type constraint is fixed when the table is created, so it is an error to
// declare a type which an existing table does not accept.
func (b *Backend) Initialize(ctx context.Context, types dqueue.TypeSet) error {
	b.Lock()
	defer b.Unlock()

	if b.conn == nil {
		return dqueue.ErrConnection.With("not connected")
	} else if b.tx != nil {
		return dqueue.ErrClaimTransaction.With("transaction in progress")
	} else if types.Len() == 0 {
		return dqueue.ErrBadParameter.With("no types declared")
	}

	bind := b.bind.Copy("types", types.Names())
	if err := b.transaction(ctx, func() error {
		if _, err := b.conn.ExecContext(ctx, bind.Query("queue.create_table")); err != nil {
			return err
		}
		if _, err := b.conn.ExecContext(ctx, bind.Query("queue.create_index")); err != nil {
			return err
		}
		return nil
	}); err != nil {
		return sqliteerror(err)
	}

	// Check the constraint of an existing table accepts every declared type
	if err := b.accepts(ctx, types); err != nil {
		return err
	}

	b.types = types

	// Return success
	return nil
}

// Publish inserts an entry. The visibility time is stored in whole
// seconds, rounded up for a positive delay so that an entry is never
// claimed early. Returns ErrClaimTransaction while a transaction is open.
func (b *Backend) Publish(ctx context.Context, payload any, delay time.Duration, typ string) error {
	b.Lock()
	defer b.Unlock()

	if b.conn == nil {
		return dqueue.ErrConnection.With("not connected")
	} else if b.tx != nil {
		return dqueue.ErrClaimTransaction.With("transaction in progress")
	} else if b.types.Len() > 0 {
		if err := b.types.Validate(typ); err != nil {
			return err
		}
	}

	data, err := dqueue.MarshalPayload(payload)
	if err != nil {
		return err
	}
	if _, err := b.conn.ExecContext(ctx, b.bind.Query("queue.insert"), typ, string(data), visibleAt(b.clock(), delay)); err != nil {
		return sqliteerror(err)
	}

	// Return success
	return nil
}

// Begin opens a transaction. Only one transaction can be open at a time.
func (b *Backend) Begin(ctx context.Context) (dqueue.Tx, error) {
	b.Lock()
	defer b.Unlock()

	if b.conn == nil {
		return nil, dqueue.ErrConnection.With("not connected")
	} else if b.tx != nil {
		return nil, dqueue.ErrClaimTransaction.With("transaction in progress")
	}

	if !b.autocommit {
		if _, err := b.conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
			return nil, dqueue.ErrClaimTransaction.Wrap(sqliteerror(err))
		}
	}
	b.tx = &tx{backend: b}

	// Return the transaction
	return b.tx, nil
}

// Count returns the number of entries in the queue. Returns
// ErrClaimTransaction while a transaction is open.
func (b *Backend) Count(ctx context.Context) (uint64, error) {
	b.Lock()
	defer b.Unlock()

	if b.conn == nil {
		return 0, dqueue.ErrConnection.With("not connected")
	} else if b.tx != nil {
		return 0, dqueue.ErrClaimTransaction.With("transaction in progress")
	}

	var count uint64
	if err := b.conn.QueryRowContext(ctx, b.bind.Query("queue.count")).Scan(&count); err != nil {
		return 0, sqliteerror(err)
	}
	return count, nil
}

// Close rolls back any open transaction, releases the lock and closes the
// database file
func (b *Backend) Close(ctx context.Context) error {
	b.Lock()
	defer b.Unlock()

	var result error
	if b.tx != nil {
		result = errors.Join(result, b.tx.rollback(ctx))
	}
	if b.conn != nil {
		result = errors.Join(result, b.conn.Close())
		b.conn = nil
	}
	if b.db != nil {
		result = errors.Join(result, b.db.Close())
		b.db = nil
	}
	return result
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// lock switches the connection to exclusive locking mode, and writes the
// session row so the exclusive lock is taken and then retained
func (b *Backend) lock(ctx context.Context, conn *sql.Conn) error {
	if _, err := conn.ExecContext(ctx, b.bind.Query("sqlite.busy_timeout")); err != nil {
		return dqueue.ErrConnection.Wrap(err)
	}
	if _, err := conn.ExecContext(ctx, b.bind.Query("sqlite.locking_mode")); err != nil {
		return dqueue.ErrConnection.Wrap(err)
	}
	if _, err := conn.ExecContext(ctx, "BEGIN EXCLUSIVE"); err != nil {
		if isBusy(err) {
			return dqueue.ErrConnection.Withf("%q is locked by another process", b.path)
		}
		return dqueue.ErrConnection.Wrap(err)
	}
	err := func() error {
		if _, err := conn.ExecContext(ctx, b.bind.Query("sqlite.session_table")); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, b.bind.Query("sqlite.session_clear")); err != nil {
			return err
		}
		_, err := conn.ExecContext(ctx, b.bind.Query("sqlite.session_insert"), os.Getpid(), b.clock().Unix())
		return err
	}()
	if err != nil {
		_, rollbackErr := conn.ExecContext(ctx, "ROLLBACK")
		return errors.Join(dqueue.ErrConnection.Wrap(err), rollbackErr)
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return dqueue.ErrConnection.Wrap(err)
	}

	// Return success
	return nil
}

// accepts inserts a row of each type and rolls back, returning ErrConstraint
// for the first type which the table constraint rejects
func (b *Backend) accepts(ctx context.Context, types dqueue.TypeSet) error {
	if _, err := b.conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return sqliteerror(err)
	}

	var result error
	for _, name := range types.Names() {
		if _, err := b.conn.ExecContext(ctx, b.bind.Query("queue.insert"), name, "null", 0); err != nil {
			if err = sqliteerror(err); errors.Is(err, dqueue.ErrConstraint) {
				result = dqueue.ErrConstraint.Withf("table %q does not accept type %q", b.table, name)
			} else {
				result = err
			}
			break
		}
	}
	if _, err := b.conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK"); err != nil {
		result = errors.Join(result, sqliteerror(err))
	}
	return result
}

// transaction runs fn between BEGIN IMMEDIATE and COMMIT, rolling back on error
func (b *Backend) transaction(ctx context.Context, fn func() error) error {
	if _, err := b.conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return err
	}
	if err := fn(); err != nil {
		_, rollbackErr := b.conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
		return errors.Join(err, rollbackErr)
	}
	_, err := b.conn.ExecContext(ctx, "COMMIT")
	return err
}

// visibleAt returns the epoch seconds after which an entry is claimable
func visibleAt(now time.Time, delay time.Duration) int64 {
	at := now.Add(delay)
	secs := at.Unix()
	if delay > 0 && at.Nanosecond() > 0 {
		secs++
	}
	return secs
}
