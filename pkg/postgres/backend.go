package postgres

import (
	"context"
	_ "embed"
	"errors"
	"sync"
	"time"

	// Packages
	pgx "github.com/jackc/pgx/v5"
	dqueue "github.com/mutablelogic/go-dqueue"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Backend is a queue stored in a PostgreSQL table. Any number of backends,
// in any number of processes, can share a table: claims skip rows locked
// by other transactions.
type Backend struct {
	sync.Mutex
	*opt
	bind  *dqueue.Bind
	conn  *pgx.Conn
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
		"enum", o.table+"_type",
		"index", o.table+"_visible_at_idx",
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

	config, err := pgx.ParseConfig(b.Encode())
	if err != nil {
		return dqueue.ErrBadParameter.Wrap(err)
	}
	if tracer := newTracer(b.opt); tracer != nil {
		config.Tracer = tracer
	}
	conn, err := pgx.ConnectConfig(ctx, config)
	if err != nil {
		return dqueue.ErrConnection.Wrap(err)
	}
	if err := conn.Ping(ctx); err != nil {
		return errors.Join(dqueue.ErrConnection.Wrap(err), conn.Close(context.WithoutCancel(ctx)))
	}
	b.conn = conn

	// Return success
	return nil
}

// Initialize creates the type domain, table and index if they do not
// exist, and adds any declared type missing from the domain. Concurrent
// initialization of the same table is serialized with an advisory lock.
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

	// Take the advisory lock, and release it on return
	if _, err := b.conn.Exec(ctx, b.bind.Query("postgres.lock")); err != nil {
		return pgerror(err)
	}
	defer func() {
		if _, err := b.conn.Exec(context.WithoutCancel(ctx), b.bind.Query("postgres.unlock")); err != nil {
			result = errors.Join(result, pgerror(err))
		}
	}()

	// Values are added to the enum outside of a transaction, so they can be
	// used as soon as the table exists
	if _, err := b.conn.Exec(ctx, b.bind.Query("queue.create_type")); err != nil {
		return pgerror(err)
	}
	for _, name := range types.Names() {
		if _, err := b.conn.Exec(ctx, b.bind.Copy("value", name).Query("queue.add_type")); err != nil {
			return pgerror(err)
		}
	}
	if err := pgx.BeginFunc(ctx, b.conn, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, b.bind.Query("queue.create_table")); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, b.bind.Query("queue.create_index")); err != nil {
			return err
		}
		return nil
	}); err != nil {
		return pgerror(err)
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
	if _, err := b.conn.Exec(ctx, b.bind.Query("queue.insert"), pgx.NamedArgs{
		TraceSpanNameArg: "dqueue.publish",
		"type":           typ,
		"data":           string(data),
		"delay":          delay.Seconds(),
	}); err != nil {
		return pgerror(err)
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

	pgtx, err := b.conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, dqueue.ErrClaimTransaction.Wrap(pgerror(err))
	}
	b.tx = &tx{backend: b, tx: pgtx}

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

	var count int64
	if err := b.conn.QueryRow(ctx, b.bind.Query("queue.count")).Scan(&count); err != nil {
		return 0, pgerror(err)
	}
	return uint64(count), nil
}

// Close rolls back any open transaction and closes the session
func (b *Backend) Close(ctx context.Context) error {
	b.Lock()
	defer b.Unlock()

	var result error
	if b.tx != nil {
		result = errors.Join(result, b.tx.rollback(ctx))
	}
	if b.conn != nil {
		result = errors.Join(result, b.conn.Close(ctx))
		b.conn = nil
	}
	return result
}
