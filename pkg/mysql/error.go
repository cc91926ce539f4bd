package mysql

import (
	"database/sql/driver"
	"errors"

	// Packages
	mysql "github.com/go-sql-driver/mysql"
	dqueue "github.com/mutablelogic/go-dqueue"
)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

// Server error numbers
const (
	errDupEntry           = 1062
	errLockWaitTimeout    = 1205
	errLockDeadlock       = 1213
	errNoReferencedRow    = 1216
	errNoReferencedRow2   = 1452
	errBadNull            = 1048
	errCheckConstraint    = 3819
	errInvalidJSONText    = 3140
	errServerShutdown     = 1053
	errLockNotGranted     = 3572
	errCrashedOnUsage     = 1194
	errCrashedOnRepair    = 1195
	errIndexCorrupt       = 1712
	errInnodbIndexCorrupt = 1817
)

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// sqlerror maps a server or driver error onto an error code
func sqlerror(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return dqueue.ErrConnection.Wrap(err)
	}
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return err
	}
	switch myErr.Number {
	case errDupEntry, errNoReferencedRow, errNoReferencedRow2, errBadNull, errCheckConstraint, errInvalidJSONText:
		return dqueue.ErrConstraint.Wrap(err)
	case errLockWaitTimeout, errLockDeadlock, errLockNotGranted:
		return dqueue.ErrClaimTransaction.Wrap(err)
	case errServerShutdown:
		return dqueue.ErrConnection.Wrap(err)
	case errCrashedOnUsage, errCrashedOnRepair, errIndexCorrupt, errInnodbIndexCorrupt:
		return dqueue.ErrDataCorruption.Wrap(err)
	}
	return err
}
