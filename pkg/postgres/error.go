package postgres

import (
	"errors"
	"strings"

	// Packages
	pgconn "github.com/jackc/pgx/v5/pgconn"
	dqueue "github.com/mutablelogic/go-dqueue"
)

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// pgerror maps a server error onto an error code using the SQLSTATE
func pgerror(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
			return dqueue.ErrConnection.Wrap(err)
		}
		var connectErr *pgconn.ConnectError
		if errors.As(err, &connectErr) {
			return dqueue.ErrConnection.Wrap(err)
		}
		return err
	}
	switch {
	case pgErr.Code == "22P02":
		// invalid_text_representation, raised for a value outside the enum
		return dqueue.ErrConstraint.Wrap(err)
	case strings.HasPrefix(pgErr.Code, "23"):
		return dqueue.ErrConstraint.Wrap(err)
	case pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "55P03":
		return dqueue.ErrClaimTransaction.Wrap(err)
	case strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == "57P01":
		return dqueue.ErrConnection.Wrap(err)
	case pgErr.Code == "XX001", pgErr.Code == "XX002":
		return dqueue.ErrDataCorruption.Wrap(err)
	}
	return err
}
