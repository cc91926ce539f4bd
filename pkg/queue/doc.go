/*
Package queue provides the publisher and the consumer loop for a delayed,
at-least-once queue held in a storage backend.

# Publisher

A publisher checks the message type against the declared types:

	types := dqueue.MustTypeSet("move", "copy")
	publisher, err := queue.NewPublisher(backend, types)
	if err != nil {
		panic(err)
	}

	// Publish an entry which becomes visible in five minutes
	err = publisher.Publish(ctx, "move", map[string]any{"from": "a", "to": "b"}, 5*time.Minute)

# Consumer

Register a handler for each type, then run the consumer loop:

	registry := queue.NewRegistry()
	registry.Register("move", func(ctx context.Context, entry *dqueue.Entry) error {
		var req MoveRequest
		if err := entry.Decode(&req); err != nil {
			return err
		}
		return move(ctx, req)
	})

	consumer, err := queue.NewConsumer(backend, registry,
		queue.WithIdle(time.Second),
		queue.WithTimeout(time.Minute),
	)
	if err != nil {
		panic(err)
	}

	// Run blocks until the context is cancelled or a cycle fails
	err = consumer.Run(ctx)

Each cycle opens a transaction, claims the ready entry with the earliest
visibility time and invokes its handler. When the handler fails, the claim
is rolled back so the entry returns to the queue, and Run returns the error.
There is no retry: restart the consumer to reattempt the entry. When there
is no ready entry, the transaction is committed before the idle wait.

A consumer dispatches one entry at a time. Run more consumers, each with
its own backend, to process entries concurrently on a multi-writer store.
*/
package queue
