/*
Package postgres implements a queue backend on a PostgreSQL table.

Message types are stored in an enumerated type named after the table, so
the server rejects an undeclared type. Initializing with a type which the
enumeration does not yet hold adds it. Visibility times are computed by
the server clock, and claims use FOR UPDATE SKIP LOCKED so any number of
consumers can share a table:

	backend, err := postgres.New(postgres.WithURL("postgres://localhost/queue"))
	if err != nil {
		panic(err)
	}
	if err := backend.Connect(ctx); err != nil {
		panic(err)
	}
	defer backend.Close(ctx)

Each Backend holds a single session. Use one Backend per consumer.
*/
package postgres
