package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	// Packages
	dqueue "github.com/mutablelogic/go-dqueue"
	metrics "github.com/mutablelogic/go-dqueue/pkg/metrics"
	mock "github.com/mutablelogic/go-dqueue/pkg/mock"
	queue "github.com/mutablelogic/go-dqueue/pkg/queue"
	testutil "github.com/prometheus/client_golang/prometheus/testutil"
	assert "github.com/stretchr/testify/assert"
	gomock "go.uber.org/mock/gomock"
)

////////////////////////////////////////////////////////////////////////////////
// HELPERS

func newEntry(id uint64, typ string) *dqueue.Entry {
	return &dqueue.Entry{
		Id:        id,
		Type:      typ,
		Payload:   json.RawMessage(`{}`),
		VisibleAt: time.Unix(1700000000, 0),
	}
}

func newConsumer(t *testing.T, backend dqueue.Backend, registry *queue.Registry, opts ...queue.Opt) *queue.Consumer {
	t.Helper()
	consumer, err := queue.NewConsumer(backend, registry, append([]queue.Opt{queue.WithName("test")}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return consumer
}

////////////////////////////////////////////////////////////////////////////////
// TESTS

func Test_Consumer_New(t *testing.T) {
	assert := assert.New(t)
	ctrl := gomock.NewController(t)
	backend := mock.NewMockBackend(ctrl)

	t.Run("DefaultOptions", func(t *testing.T) {
		consumer, err := queue.NewConsumer(backend, queue.NewRegistry())
		assert.NoError(err)
		assert.NotNil(consumer)
	})

	t.Run("NilBackend", func(t *testing.T) {
		_, err := queue.NewConsumer(nil, queue.NewRegistry())
		assert.ErrorIs(err, dqueue.ErrBadParameter)
	})

	t.Run("NilHandlers", func(t *testing.T) {
		_, err := queue.NewConsumer(backend, nil)
		assert.ErrorIs(err, dqueue.ErrBadParameter)
	})

	t.Run("InvalidIdle", func(t *testing.T) {
		_, err := queue.NewConsumer(backend, queue.NewRegistry(), queue.WithIdle(100*time.Microsecond))
		assert.ErrorIs(err, queue.ErrInvalidIdle)
		assert.ErrorIs(err, dqueue.ErrBadParameter)
	})

	t.Run("InvalidTimeout", func(t *testing.T) {
		_, err := queue.NewConsumer(backend, queue.NewRegistry(), queue.WithTimeout(-time.Second))
		assert.ErrorIs(err, queue.ErrInvalidTimeout)
	})
}

func Test_Consumer_RunOnce(t *testing.T) {
	assert := assert.New(t)
	ctrl := gomock.NewController(t)
	backend := mock.NewMockBackend(ctrl)
	tx := mock.NewMockTx(ctrl)

	var handled []uint64
	cause := errors.New("handler failed")
	registry := queue.NewRegistry()
	assert.NoError(registry.Register("move", func(_ context.Context, entry *dqueue.Entry) error {
		handled = append(handled, entry.Id)
		return nil
	}))
	assert.NoError(registry.Register("fail", func(context.Context, *dqueue.Entry) error {
		return cause
	}))
	assert.NoError(registry.Register("panic", func(context.Context, *dqueue.Entry) error {
		panic("boom")
	}))
	assert.NoError(registry.Register("block", func(ctx context.Context, _ *dqueue.Entry) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	m := metrics.New("test")
	consumer := newConsumer(t, backend, registry, queue.WithMetrics(m), queue.WithTimeout(50*time.Millisecond))

	t.Run("Empty", func(t *testing.T) {
		gomock.InOrder(
			backend.EXPECT().Begin(gomock.Any()).Return(tx, nil),
			tx.EXPECT().ClaimNext(gomock.Any()).Return(nil, nil),
			tx.EXPECT().Commit(gomock.Any()).Return(nil),
		)
		claimed, err := consumer.RunOnce(context.TODO())
		assert.NoError(err)
		assert.False(claimed)
		assert.NoError(testutil.CollectAndCompare(m, strings.NewReader(`
# HELP test_idle_total Number of cycles which found no ready entry
# TYPE test_idle_total counter
test_idle_total 1
`), "test_idle_total"))
	})

	t.Run("Handled", func(t *testing.T) {
		gomock.InOrder(
			backend.EXPECT().Begin(gomock.Any()).Return(tx, nil),
			tx.EXPECT().ClaimNext(gomock.Any()).Return(newEntry(1, "move"), nil),
			tx.EXPECT().Commit(gomock.Any()).Return(nil),
		)
		claimed, err := consumer.RunOnce(context.TODO())
		assert.NoError(err)
		assert.True(claimed)
		assert.Equal([]uint64{1}, handled)
	})

	t.Run("MissingHandler", func(t *testing.T) {
		gomock.InOrder(
			backend.EXPECT().Begin(gomock.Any()).Return(tx, nil),
			tx.EXPECT().ClaimNext(gomock.Any()).Return(newEntry(2, "copy"), nil),
			tx.EXPECT().Rollback(gomock.Any()).Return(nil),
		)
		claimed, err := consumer.RunOnce(context.TODO())
		assert.ErrorIs(err, dqueue.ErrNotFound)
		assert.False(claimed)
	})

	t.Run("HandlerError", func(t *testing.T) {
		gomock.InOrder(
			backend.EXPECT().Begin(gomock.Any()).Return(tx, nil),
			tx.EXPECT().ClaimNext(gomock.Any()).Return(newEntry(3, "fail"), nil),
			tx.EXPECT().Rollback(gomock.Any()).Return(nil),
		)
		_, err := consumer.RunOnce(context.TODO())
		assert.ErrorIs(err, dqueue.ErrHandler)
		assert.ErrorIs(err, cause)
	})

	t.Run("HandlerPanic", func(t *testing.T) {
		gomock.InOrder(
			backend.EXPECT().Begin(gomock.Any()).Return(tx, nil),
			tx.EXPECT().ClaimNext(gomock.Any()).Return(newEntry(4, "panic"), nil),
			tx.EXPECT().Rollback(gomock.Any()).Return(nil),
		)
		_, err := consumer.RunOnce(context.TODO())
		assert.ErrorIs(err, dqueue.ErrHandler)
		assert.ErrorContains(err, "panic: boom")
	})

	t.Run("HandlerTimeout", func(t *testing.T) {
		gomock.InOrder(
			backend.EXPECT().Begin(gomock.Any()).Return(tx, nil),
			tx.EXPECT().ClaimNext(gomock.Any()).Return(newEntry(5, "block"), nil),
			tx.EXPECT().Rollback(gomock.Any()).Return(nil),
		)
		_, err := consumer.RunOnce(context.TODO())
		assert.ErrorIs(err, dqueue.ErrHandler)
		assert.ErrorIs(err, context.DeadlineExceeded)
	})

	t.Run("BeginError", func(t *testing.T) {
		backend.EXPECT().Begin(gomock.Any()).Return(nil, errors.New("no session"))
		_, err := consumer.RunOnce(context.TODO())
		assert.ErrorIs(err, dqueue.ErrClaimTransaction)
	})

	t.Run("ClaimError", func(t *testing.T) {
		gomock.InOrder(
			backend.EXPECT().Begin(gomock.Any()).Return(tx, nil),
			tx.EXPECT().ClaimNext(gomock.Any()).Return(nil, errors.New("lock timeout")),
			tx.EXPECT().Rollback(gomock.Any()).Return(nil),
		)
		_, err := consumer.RunOnce(context.TODO())
		assert.ErrorIs(err, dqueue.ErrClaimTransaction)
	})

	t.Run("DataCorruption", func(t *testing.T) {
		gomock.InOrder(
			backend.EXPECT().Begin(gomock.Any()).Return(tx, nil),
			tx.EXPECT().ClaimNext(gomock.Any()).Return(nil, dqueue.ErrDataCorruption.With("entry 6")),
			tx.EXPECT().Rollback(gomock.Any()).Return(nil),
		)
		_, err := consumer.RunOnce(context.TODO())
		assert.ErrorIs(err, dqueue.ErrDataCorruption)
		assert.False(errors.Is(err, dqueue.ErrClaimTransaction))
	})

	t.Run("CommitError", func(t *testing.T) {
		gomock.InOrder(
			backend.EXPECT().Begin(gomock.Any()).Return(tx, nil),
			tx.EXPECT().ClaimNext(gomock.Any()).Return(newEntry(7, "move"), nil),
			tx.EXPECT().Commit(gomock.Any()).Return(errors.New("connection reset")),
			tx.EXPECT().Rollback(gomock.Any()).Return(nil),
		)
		_, err := consumer.RunOnce(context.TODO())
		assert.ErrorIs(err, dqueue.ErrClaimTransaction)
	})
}

func Test_Consumer_Success(t *testing.T) {
	assert := assert.New(t)

	t.Run("CancelledDuringHandler", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		backend := mock.NewMockBackend(ctrl)
		tx := mock.NewMockTx(ctrl)
		gomock.InOrder(
			backend.EXPECT().Begin(gomock.Any()).Return(tx, nil),
			tx.EXPECT().ClaimNext(gomock.Any()).Return(newEntry(1, "move"), nil),
			tx.EXPECT().Commit(gomock.Any()).Return(nil),
		)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		registry := queue.NewRegistry()
		assert.NoError(registry.Register("move", func(context.Context, *dqueue.Entry) error {
			cancel()
			return nil
		}))
		m := metrics.New("cancel")
		consumer := newConsumer(t, backend, registry, queue.WithMetrics(m))
		claimed, err := consumer.RunOnce(ctx)
		assert.NoError(err)
		assert.True(claimed)
		assert.NoError(testutil.CollectAndCompare(m, strings.NewReader(`
# HELP cancel_handled_total Number of entries handled, by type and result
# TYPE cancel_handled_total counter
cancel_handled_total{result="success",type="move"} 1
`), "cancel_handled_total"))
	})

	t.Run("DeadlinePassedDuringHandler", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		backend := mock.NewMockBackend(ctrl)
		tx := mock.NewMockTx(ctrl)
		gomock.InOrder(
			backend.EXPECT().Begin(gomock.Any()).Return(tx, nil),
			tx.EXPECT().ClaimNext(gomock.Any()).Return(newEntry(2, "move"), nil),
			tx.EXPECT().Commit(gomock.Any()).Return(nil),
		)

		registry := queue.NewRegistry()
		assert.NoError(registry.Register("move", func(ctx context.Context, _ *dqueue.Entry) error {
			<-ctx.Done()
			return nil
		}))
		consumer := newConsumer(t, backend, registry, queue.WithTimeout(10*time.Millisecond))
		claimed, err := consumer.RunOnce(context.Background())
		assert.NoError(err)
		assert.True(claimed)
	})
}

func Test_Consumer_Run(t *testing.T) {
	assert := assert.New(t)

	t.Run("IdleWait", func(t *testing.T) {
		const idle = 200 * time.Millisecond
		ctrl := gomock.NewController(t)
		backend := mock.NewMockBackend(ctrl)
		tx := mock.NewMockTx(ctrl)

		// Record each operation, and when it happened
		type event struct {
			op string
			at time.Time
		}
		var mu sync.Mutex
		var events []event
		record := func(op string) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, event{op, time.Now()})
		}
		backend.EXPECT().Begin(gomock.Any()).DoAndReturn(func(context.Context) (dqueue.Tx, error) {
			record("begin")
			return tx, nil
		}).AnyTimes()
		tx.EXPECT().ClaimNext(gomock.Any()).DoAndReturn(func(context.Context) (*dqueue.Entry, error) {
			record("claim")
			return nil, nil
		}).AnyTimes()
		tx.EXPECT().Commit(gomock.Any()).DoAndReturn(func(context.Context) error {
			record("commit")
			return nil
		}).AnyTimes()

		ctx, cancel := context.WithTimeout(context.Background(), 5*idle/2)
		defer cancel()
		consumer := newConsumer(t, backend, queue.NewRegistry(), queue.WithIdle(idle))
		assert.NoError(consumer.Run(ctx))

		// Each cycle commits before the idle wait, and the next cycle begins
		// no sooner than the idle period after the commit
		mu.Lock()
		defer mu.Unlock()
		if assert.GreaterOrEqual(len(events), 6) {
			for i := 0; i+2 < len(events); i += 3 {
				assert.Equal("begin", events[i].op)
				assert.Equal("claim", events[i+1].op)
				assert.Equal("commit", events[i+2].op)
				if i+3 < len(events) {
					assert.GreaterOrEqual(events[i+3].at.Sub(events[i+2].at), idle*9/10)
				}
			}
		}
		assert.LessOrEqual(len(events), 9)
	})

	t.Run("Cancel", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		backend := mock.NewMockBackend(ctrl)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		consumer := newConsumer(t, backend, queue.NewRegistry())
		assert.NoError(consumer.Run(ctx))
	})

	t.Run("Fatal", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		backend := mock.NewMockBackend(ctrl)
		tx := mock.NewMockTx(ctrl)
		gomock.InOrder(
			backend.EXPECT().Begin(gomock.Any()).Return(tx, nil),
			tx.EXPECT().ClaimNext(gomock.Any()).Return(newEntry(1, "move"), nil),
			tx.EXPECT().Commit(gomock.Any()).Return(nil),
			backend.EXPECT().Begin(gomock.Any()).Return(tx, nil),
			tx.EXPECT().ClaimNext(gomock.Any()).Return(newEntry(2, "copy"), nil),
			tx.EXPECT().Rollback(gomock.Any()).Return(nil),
		)

		registry := queue.NewRegistry()
		assert.NoError(registry.Register("move", func(context.Context, *dqueue.Entry) error { return nil }))
		consumer := newConsumer(t, backend, registry)
		assert.ErrorIs(consumer.Run(context.Background()), dqueue.ErrNotFound)
	})
}
