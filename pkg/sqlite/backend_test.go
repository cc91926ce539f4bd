package sqlite_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	// Packages
	dqueue "github.com/mutablelogic/go-dqueue"
	sqlite "github.com/mutablelogic/go-dqueue/pkg/sqlite"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

////////////////////////////////////////////////////////////////////////////////
// HELPERS

type clock struct {
	sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Unix(1700000000, 0)}
}

func (c *clock) Now() time.Time {
	c.Lock()
	defer c.Unlock()
	return c.now
}

func (c *clock) Add(d time.Duration) {
	c.Lock()
	defer c.Unlock()
	c.now = c.now.Add(d)
}

func newBackend(t *testing.T, path string, opts ...sqlite.Opt) *sqlite.Backend {
	t.Helper()
	backend, err := sqlite.New(append([]sqlite.Opt{sqlite.WithPath(path), sqlite.WithBusyTimeout(10 * time.Millisecond)}, opts...)...)
	require.NoError(t, err)
	require.NoError(t, backend.Connect(context.TODO()))
	t.Cleanup(func() {
		_ = backend.Close(context.TODO())
	})
	return backend
}

func claim(t *testing.T, backend dqueue.Backend) *dqueue.Entry {
	t.Helper()
	var entry *dqueue.Entry
	require.NoError(t, dqueue.WithTx(context.TODO(), backend, func(tx dqueue.Tx) error {
		var err error
		entry, err = tx.ClaimNext(context.TODO())
		return err
	}))
	return entry
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE TESTS

func Test_Backend_New(t *testing.T) {
	assert := assert.New(t)

	t.Run("MissingPath", func(t *testing.T) {
		_, err := sqlite.New()
		assert.ErrorIs(err, dqueue.ErrBadParameter)
	})

	t.Run("InvalidTable", func(t *testing.T) {
		_, err := sqlite.New(sqlite.WithPath("queue.db"), sqlite.WithTable("queue; DROP"))
		assert.ErrorIs(err, dqueue.ErrBadParameter)
	})

	t.Run("NotConnected", func(t *testing.T) {
		backend, err := sqlite.New(sqlite.WithPath(filepath.Join(t.TempDir(), "queue.db")))
		assert.NoError(err)
		_, err = backend.Begin(context.TODO())
		assert.ErrorIs(err, dqueue.ErrConnection)
		assert.NoError(backend.Close(context.TODO()))
	})
}

func Test_Backend_Connect(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "data", "queue.db")
	ctx := context.TODO()

	first := newBackend(t, path)

	t.Run("SecondConnectionLocked", func(t *testing.T) {
		second, err := sqlite.New(sqlite.WithPath(path), sqlite.WithBusyTimeout(10*time.Millisecond))
		assert.NoError(err)
		err = second.Connect(ctx)
		assert.ErrorIs(err, dqueue.ErrConnection)
		assert.NoError(second.Close(ctx))
	})

	t.Run("AlreadyConnected", func(t *testing.T) {
		assert.ErrorIs(first.Connect(ctx), dqueue.ErrConnection)
	})

	t.Run("ReleasedOnClose", func(t *testing.T) {
		assert.NoError(first.Close(ctx))
		assert.NoError(first.Close(ctx))
		second := newBackend(t, path)
		assert.NotNil(second)
	})
}

func Test_Backend_Initialize(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "queue.db")
	ctx := context.TODO()

	backend := newBackend(t, path)

	t.Run("Idempotent", func(t *testing.T) {
		types := dqueue.MustTypeSet("move", "copy")
		assert.NoError(backend.Initialize(ctx, types))
		assert.NoError(backend.Initialize(ctx, types))
	})

	t.Run("SubsetOfTypes", func(t *testing.T) {
		assert.NoError(backend.Initialize(ctx, dqueue.MustTypeSet("move")))
	})

	t.Run("NewTypeRejected", func(t *testing.T) {
		err := backend.Initialize(ctx, dqueue.MustTypeSet("move", "delete"))
		assert.ErrorIs(err, dqueue.ErrConstraint)
	})

	t.Run("NoTypes", func(t *testing.T) {
		err := backend.Initialize(ctx, dqueue.TypeSet{})
		assert.ErrorIs(err, dqueue.ErrBadParameter)
	})

	t.Run("LiteralOutsideConstraint", func(t *testing.T) {
		other := newBackend(t, filepath.Join(t.TempDir(), "queue.db"))
		assert.NoError(other.Exec(ctx, `CREATE TABLE ${"table"} (
			"id"         INTEGER PRIMARY KEY AUTOINCREMENT,
			"type"       TEXT NOT NULL CHECK ("type" IN ('move')),
			"data"       TEXT NOT NULL DEFAULT 'delete',
			"visible_at" INTEGER NOT NULL
		)`))
		assert.ErrorIs(other.Initialize(ctx, dqueue.MustTypeSet("move", "delete")), dqueue.ErrConstraint)
		assert.NoError(other.Initialize(ctx, dqueue.MustTypeSet("move")))

		// The rows inserted by the check are rolled back
		count, err := other.Count(ctx)
		assert.NoError(err)
		assert.Zero(count)
	})
}

////////////////////////////////////////////////////////////////////////////////
// PUBLISH AND CLAIM TESTS

func Test_Backend_Publish(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "queue.db")
	ctx := context.TODO()

	backend := newBackend(t, path)
	assert.NoError(backend.Initialize(ctx, dqueue.MustTypeSet("move")))

	t.Run("UndeclaredType", func(t *testing.T) {
		err := backend.Publish(ctx, map[string]any{"a": "b"}, 0, "copy")
		assert.ErrorIs(err, dqueue.ErrConstraint)
		count, err := backend.Count(ctx)
		assert.NoError(err)
		assert.Zero(count)
	})

	t.Run("MissingPayload", func(t *testing.T) {
		err := backend.Publish(ctx, nil, 0, "move")
		assert.ErrorIs(err, dqueue.ErrBadParameter)
	})

	t.Run("InvalidRawPayload", func(t *testing.T) {
		err := backend.Publish(ctx, json.RawMessage(`{"a":`), 0, "move")
		assert.ErrorIs(err, dqueue.ErrBadParameter)
	})

	t.Run("StoreConstraint", func(t *testing.T) {
		// A backend which has not been initialized relies on the CHECK constraint
		assert.NoError(backend.Close(ctx))
		other := newBackend(t, path)
		err := other.Publish(ctx, map[string]any{"a": "b"}, 0, "copy")
		assert.ErrorIs(err, dqueue.ErrConstraint)
		count, err := other.Count(ctx)
		assert.NoError(err)
		assert.Zero(count)
	})
}

func Test_Backend_EndToEnd(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()

	backend := newBackend(t, filepath.Join(t.TempDir(), "queue.db"))
	assert.NoError(backend.Initialize(ctx, dqueue.MustTypeSet("move")))

	t.Run("EmptyQueue", func(t *testing.T) {
		assert.Nil(claim(t, backend))
	})

	t.Run("PublishAndClaim", func(t *testing.T) {
		assert.NoError(backend.Publish(ctx, map[string]any{"a": "b"}, 0, "move"))
		count, err := backend.Count(ctx)
		assert.NoError(err)
		assert.Equal(uint64(1), count)

		entry := claim(t, backend)
		if assert.NotNil(entry) {
			assert.NotZero(entry.Id)
			assert.Equal("move", entry.Type)
			assert.JSONEq(`{"a":"b"}`, string(entry.Payload))
		}

		count, err = backend.Count(ctx)
		assert.NoError(err)
		assert.Zero(count)
	})

	t.Run("IdsNotReused", func(t *testing.T) {
		assert.NoError(backend.Publish(ctx, "x", 0, "move"))
		first := claim(t, backend)
		assert.NoError(backend.Publish(ctx, "y", 0, "move"))
		second := claim(t, backend)
		if assert.NotNil(first) && assert.NotNil(second) {
			assert.Greater(second.Id, first.Id)
		}
	})
}

func Test_Backend_Visibility(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()
	clock := newClock()

	backend := newBackend(t, filepath.Join(t.TempDir(), "queue.db"), sqlite.WithClock(clock.Now))
	assert.NoError(backend.Initialize(ctx, dqueue.MustTypeSet("move")))

	t.Run("DelayHonored", func(t *testing.T) {
		assert.NoError(backend.Publish(ctx, "delayed", 5*time.Second, "move"))
		clock.Add(4 * time.Second)
		assert.Nil(claim(t, backend))
		clock.Add(time.Second)
		entry := claim(t, backend)
		if assert.NotNil(entry) {
			assert.Equal(clock.Now().Unix(), entry.VisibleAt.Unix())
		}
	})

	t.Run("FractionalDelayRoundsUp", func(t *testing.T) {
		clock.Add(500 * time.Millisecond)
		assert.NoError(backend.Publish(ctx, "fractional", time.Second, "move"))
		clock.Add(time.Second)
		assert.Nil(claim(t, backend))
		clock.Add(500 * time.Millisecond)
		assert.NotNil(claim(t, backend))
	})

	t.Run("NegativeDelay", func(t *testing.T) {
		assert.NoError(backend.Publish(ctx, "past", -10*time.Second, "move"))
		assert.NotNil(claim(t, backend))
	})

	t.Run("Ordering", func(t *testing.T) {
		for _, delay := range []time.Duration{3 * time.Second, time.Second, -time.Second, 2 * time.Second, 0} {
			assert.NoError(backend.Publish(ctx, delay.String(), delay, "move"))
		}
		clock.Add(3 * time.Second)

		var last time.Time
		for i := 0; i < 5; i++ {
			entry := claim(t, backend)
			if !assert.NotNil(entry) {
				break
			}
			assert.False(entry.VisibleAt.Before(last))
			last = entry.VisibleAt
		}
		assert.Nil(claim(t, backend))
	})
}

////////////////////////////////////////////////////////////////////////////////
// TRANSACTION TESTS

func Test_Backend_Rollback(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()

	backend := newBackend(t, filepath.Join(t.TempDir(), "queue.db"))
	assert.NoError(backend.Initialize(ctx, dqueue.MustTypeSet("move")))
	assert.NoError(backend.Publish(ctx, map[string]any{"a": "b"}, 0, "move"))

	t.Run("Requeue", func(t *testing.T) {
		tx, err := backend.Begin(ctx)
		assert.NoError(err)
		first, err := tx.ClaimNext(ctx)
		assert.NoError(err)
		assert.NotNil(first)
		assert.NoError(tx.Rollback(ctx))
		assert.NoError(tx.Rollback(ctx))

		second := claim(t, backend)
		if assert.NotNil(first) && assert.NotNil(second) {
			assert.Equal(first.Id, second.Id)
		}
	})

	t.Run("OneTransactionAtATime", func(t *testing.T) {
		tx, err := backend.Begin(ctx)
		assert.NoError(err)
		_, err = backend.Begin(ctx)
		assert.ErrorIs(err, dqueue.ErrClaimTransaction)
		assert.NoError(tx.Commit(ctx))
		assert.ErrorIs(tx.Commit(ctx), dqueue.ErrClaimTransaction)
		_, err = tx.ClaimNext(ctx)
		assert.ErrorIs(err, dqueue.ErrClaimTransaction)
	})

	t.Run("PublishDuringClaim", func(t *testing.T) {
		before, err := backend.Count(ctx)
		assert.NoError(err)

		tx, err := backend.Begin(ctx)
		assert.NoError(err)
		assert.ErrorIs(backend.Publish(ctx, "x", 0, "move"), dqueue.ErrClaimTransaction)
		_, err = backend.Count(ctx)
		assert.ErrorIs(err, dqueue.ErrClaimTransaction)
		assert.NoError(tx.Rollback(ctx))

		// The session is usable once the claim is released
		after, err := backend.Count(ctx)
		assert.NoError(err)
		assert.Equal(before, after)
		assert.NoError(backend.Publish(ctx, "x", 0, "move"))
		assert.NotNil(claim(t, backend))
	})

	t.Run("DataCorruption", func(t *testing.T) {
		assert.NoError(backend.Exec(ctx, `INSERT INTO ${"table"} ("type", "data", "visible_at") VALUES ('move', '{"a":', 0)`))

		tx, err := backend.Begin(ctx)
		assert.NoError(err)
		entry, err := tx.ClaimNext(ctx)
		assert.ErrorIs(err, dqueue.ErrDataCorruption)
		assert.Nil(entry)
		assert.NoError(tx.Rollback(ctx))

		count, err := backend.Count(ctx)
		assert.NoError(err)
		assert.Equal(uint64(1), count)
	})
}

func Test_Backend_Autocommit(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()

	backend := newBackend(t, filepath.Join(t.TempDir(), "queue.db"), sqlite.WithAutocommit())
	assert.NoError(backend.Initialize(ctx, dqueue.MustTypeSet("move")))
	assert.NoError(backend.Publish(ctx, map[string]any{"a": "b"}, 0, "move"))

	tx, err := backend.Begin(ctx)
	assert.NoError(err)
	entry, err := tx.ClaimNext(ctx)
	assert.NoError(err)
	assert.NotNil(entry)
	assert.NoError(tx.Rollback(ctx))

	// The claim is not undone
	count, err := backend.Count(ctx)
	assert.NoError(err)
	assert.Zero(count)
}
