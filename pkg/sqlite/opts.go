package sqlite

import (
	"strings"
	"time"

	// Packages
	dqueue "github.com/mutablelogic/go-dqueue"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type opt struct {
	path        string
	table       string
	clock       func() time.Time
	busyTimeout time.Duration
	autocommit  bool
}

// Opt is a function which applies options for an embedded store
type Opt func(*opt) error

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	DefaultTable       = "queue"
	DefaultBusyTimeout = 100 * time.Millisecond
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func apply(opts ...Opt) (*opt, error) {
	o := opt{
		table:       DefaultTable,
		clock:       time.Now,
		busyTimeout: DefaultBusyTimeout,
	}
	for _, fn := range opts {
		if err := fn(&o); err != nil {
			return nil, err
		}
	}
	if o.path == "" {
		return nil, dqueue.ErrBadParameter.With("missing path")
	}
	return &o, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// WithPath sets the path to the database file. It is required.
func WithPath(path string) Opt {
	return func(o *opt) error {
		if path = strings.TrimSpace(path); path == "" {
			return dqueue.ErrBadParameter.With("missing path")
		}
		o.path = path
		return nil
	}
}

// WithTable sets the name of the queue table. Defaults to "queue".
func WithTable(name string) Opt {
	return func(o *opt) error {
		if !dqueue.ValidIdentifier(name) {
			return dqueue.ErrBadParameter.Withf("invalid table name %q", name)
		}
		o.table = name
		return nil
	}
}

// WithClock sets the function which returns the current time. Visibility
// times are computed by the caller, since the store has no clock of its own.
func WithClock(fn func() time.Time) Opt {
	return func(o *opt) error {
		if fn == nil {
			return dqueue.ErrBadParameter.With("missing clock")
		}
		o.clock = fn
		return nil
	}
}

// WithBusyTimeout sets how long to wait for a lock held by another
// connection before failing
func WithBusyTimeout(d time.Duration) Opt {
	return func(o *opt) error {
		if d < 0 {
			return dqueue.ErrBadParameter.With("negative busy timeout")
		}
		o.busyTimeout = d
		return nil
	}
}

// WithAutocommit makes Begin, Commit and Rollback no-ops, so that every
// statement is committed as it is executed. In this mode a claimed entry
// is removed even when the transaction is rolled back, so entries are
// delivered at most once.
func WithAutocommit() Opt {
	return func(o *opt) error {
		o.autocommit = true
		return nil
	}
}
