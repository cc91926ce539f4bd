/*
Package mysql implements a queue backend on a MySQL 8 table.

Message types are rows in a domain table named after the queue table, and
a foreign key rejects an undeclared type. Claims lock a row with FOR UPDATE
SKIP LOCKED inside a read committed transaction, and then delete it:

	backend, err := mysql.New(mysql.WithDSN("user:password@tcp(localhost:3306)/queue"))
	if err != nil {
		panic(err)
	}
	if err := backend.Connect(ctx); err != nil {
		panic(err)
	}
	defer backend.Close(ctx)
*/
package mysql
