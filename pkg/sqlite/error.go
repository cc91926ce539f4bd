package sqlite

import (
	"errors"

	// Packages
	dqueue "github.com/mutablelogic/go-dqueue"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// sqliteerror maps an engine error onto an error code. The extended result
// codes carry the primary code in the lower eight bits.
func sqliteerror(err error) error {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	switch sqliteErr.Code() & 0xff {
	case sqlite3.SQLITE_CONSTRAINT:
		return dqueue.ErrConstraint.Wrap(err)
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return dqueue.ErrClaimTransaction.Wrap(err)
	case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
		return dqueue.ErrDataCorruption.Wrap(err)
	}
	return err
}

func isBusy(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code() & 0xff
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}
