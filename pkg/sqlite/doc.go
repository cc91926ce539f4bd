/*
Package sqlite implements a queue backend stored in an embedded SQLite
database file, using the pure-Go modernc.org/sqlite driver.

The store has a single writer and no row locks, so it is only safe for one
consumer process at a time. This is enforced: Connect puts the connection
into exclusive locking mode and writes a session row, and the resulting file
lock is held until Close. A second process fails to connect.

Visibility times are stored as epoch seconds computed from the caller's
clock, and payloads are stored as JSON text which is validated when an
entry is claimed.

Transactions use BEGIN IMMEDIATE, so a rollback after a claim returns the
entry to the queue. WithAutocommit disables transactions, in which case a
claim is durable immediately and a rollback does not requeue the entry.
*/
package sqlite
