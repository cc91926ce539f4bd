package mysql

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"sync"
	"time"

	// Packages
	driver "github.com/go-sql-driver/mysql"
	dqueue "github.com/mutablelogic/go-dqueue"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Backend is a queue stored in a MySQL table. Any number of backends, in
// any number of processes, can share a table: claims skip rows locked by
// other transactions.
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

// New returns an unconnected backend
func New(opts ...Opt) (*Backend, error) {
	o, err := apply(opts...)
	if err != nil {
		return nil, err
	}
	bind := dqueue.NewBind(
		"table", o.table,
		"domain", o.table+"_type",
		"index", o.table+"_visible_at_idx",
		"fk", o.table+"_type_fk",
	).WithQueries(dqueue.MustQueries(queries))
	return &Backend{opt: o, bind: bind}, nil
}

// Connect opens the session with the server
func (b *Backend) Connect(ctx context.Context) error {
	b.Lock()
	defer b.Unlock()

	if b.conn != nil {
		return dqueue.ErrConnection.With("already connected")
	}

	connector, err := driver.NewConnector(b.config)
	if err != nil {
		return dqueue.ErrBadParameter.Wrap(err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	conn, err := db.Conn(ctx)
	if err != nil {
		return errors.Join(dqueue.ErrConnection.Wrap(err), db.Close())
	}
	if err := conn.PingContext(ctx); err != nil {
		return errors.Join(dqueue.ErrConnection.Wrap(err), conn.Close(), db.Close())
	}
	b.db, b.conn = db, conn

	// Return success
	return nil
}

// Initialize creates the type domain, table and index if they do not
// exist, and adds any declared type missing from the domain. Concurrent
// initialization of the same table is serialized with a named lock.
func (b *Backend) Initialize(ctx context.Context, types dqueue.TypeSet) (result error) {
	b.Lock()
	defer b.Unlock()

	if b.conn == nil {
		return dqueue.ErrConnection.With("not connected")
	} else if b.tx != nil {
		return dqueue.ErrClaimTransaction.With("transaction in progress")
	} else if types.Len() == 0 {
		return dqueue.ErrBadParameter.With("no types declared")
	}

	// Take the named lock, and release it on return
	var locked sql.NullInt64
	if err := b.conn.QueryRowContext(ctx, b.bind.Query("mysql.lock"), int64(b.lockTimeout/time.Second)).Scan(&locked); err != nil {
		return sqlerror(err)
	} else if locked.Int64 != 1 {
		return dqueue.ErrClaimTransaction.Withf("timeout waiting to initialize %q", b.table)
	}
	defer func() {
		if _, err := b.conn.ExecContext(context.WithoutCancel(ctx), b.bind.Query("mysql.unlock")); err != nil {
			result = errors.Join(result, sqlerror(err))
		}
	}()

	// DDL statements commit implicitly, so are executed in order
	if _, err := b.conn.ExecContext(ctx, b.bind.Query("queue.create_type")); err != nil {
		return sqlerror(err)
	}
	for _, name := range types.Names() {
		if _, err := b.conn.ExecContext(ctx, b.bind.Query("queue.add_type"), name); err != nil {
			return sqlerror(err)
		}
	}
	if _, err := b.conn.ExecContext(ctx, b.bind.Query("queue.create_table")); err != nil {
		return sqlerror(err)
	}

	b.types = types

	// Return success
	return nil
}

// Publish inserts an entry which becomes visible after the delay, relative
// to the clock of the server. Returns ErrClaimTransaction while a
// transaction is open, since the insert would be undone by its rollback.
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
	if delay < 0 {
		delay = 0
	}
	if _, err := b.conn.ExecContext(ctx, b.bind.Query("queue.insert"), typ, string(data), delay.Microseconds()); err != nil {
		return sqlerror(err)
	}

	// Return success
	return nil
}

// Begin opens a read committed transaction. Only one transaction can be
// open at a time.
func (b *Backend) Begin(ctx context.Context) (dqueue.Tx, error) {
	b.Lock()
	defer b.Unlock()

	if b.conn == nil {
		return nil, dqueue.ErrConnection.With("not connected")
	} else if b.tx != nil {
		return nil, dqueue.ErrClaimTransaction.With("transaction in progress")
	}

	sqltx, err := b.conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, dqueue.ErrClaimTransaction.Wrap(sqlerror(err))
	}
	b.tx = &tx{backend: b, tx: sqltx}

	// Return the transaction
	return b.tx, nil
}

// Count returns the number of entries in the queue, including those which
// are not yet visible or are claimed by an in-flight transaction of another
// session. Returns ErrClaimTransaction while a transaction is open.
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
		return 0, sqlerror(err)
	}
	return count, nil
}

// Close rolls back any open transaction and closes the session
func (b *Backend) Close(ctx context.Context) error {
	b.Lock()
	defer b.Unlock()

	var result error
	if b.tx != nil {
		result = errors.Join(result, b.tx.rollback())
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
