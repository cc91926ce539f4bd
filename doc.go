/*
Package dqueue is a delayed, at-least-once message queue stored in a
relational database.

Producers publish typed JSON payloads with a visibility delay. A consumer
claims the ready entry with the earliest visibility time, dispatches it to
the handler for its type and removes it, all within one transaction, so a
handler failure rolls back the transaction and returns the entry to the
queue.

# Backends

A Backend owns one session with a store. The following are provided:

  - pkg/postgres: multi-writer, claims with FOR UPDATE SKIP LOCKED
  - pkg/mysql: multi-writer, claims with FOR UPDATE SKIP LOCKED
  - pkg/sqlite: single-writer embedded file, one process at a time

Every backend must be initialized with the closed set of message types:

	types, err := dqueue.NewTypeSet("move", "copy")
	if err != nil {
		panic(err)
	}
	if err := backend.Connect(ctx); err != nil {
		panic(err)
	}
	defer backend.Close(ctx)
	if err := backend.Initialize(ctx, types); err != nil {
		panic(err)
	}

# Claims

Claims happen within a transaction. A claim deletes the entry, so the
commit is the acknowledgement and a rollback is the requeue:

	err := dqueue.WithTx(ctx, backend, func(tx dqueue.Tx) error {
		entry, err := tx.ClaimNext(ctx)
		if err != nil || entry == nil {
			return err
		}
		return process(entry)
	})

The consumer loop in pkg/queue turns this into a polling dispatcher.
*/
package dqueue
