package mysql

import (
	"net"
	"time"

	// Packages
	driver "github.com/go-sql-driver/mysql"
	dqueue "github.com/mutablelogic/go-dqueue"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type opt struct {
	config      *driver.Config
	table       string
	lockTimeout time.Duration
}

// Opt is a function which applies options for a server connection
type Opt func(*opt) error

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	DefaultPort        = "3306"
	DefaultTable       = "queue"
	DefaultLockTimeout = 30 * time.Second
	defaultHost        = "localhost"
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func apply(opts ...Opt) (*opt, error) {
	o := opt{
		config:      driver.NewConfig(),
		table:       DefaultTable,
		lockTimeout: DefaultLockTimeout,
	}
	o.config.Net = "tcp"
	o.config.Addr = net.JoinHostPort(defaultHost, DefaultPort)

	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	// Times are stored and compared in UTC
	o.config.ParseTime = true
	o.config.Loc = time.UTC

	return &o, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// WithDSN sets the connection parameters from a data source name, in the
// form user:password@tcp(host:port)/dbname?param=value
func WithDSN(dsn string) Opt {
	return func(o *opt) error {
		if dsn == "" {
			return nil
		}
		config, err := driver.ParseDSN(dsn)
		if err != nil {
			return dqueue.ErrBadParameter.Withf("invalid dsn: %v", err)
		}
		o.config = config
		return nil
	}
}

// WithAddr sets the host, or host:port, of the server
func WithAddr(addr string) Opt {
	return func(o *opt) error {
		if addr == "" {
			return nil
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			addr = net.JoinHostPort(addr, DefaultPort)
		}
		o.config.Net = "tcp"
		o.config.Addr = addr
		return nil
	}
}

// WithCredentials sets the user and password
func WithCredentials(user, password string) Opt {
	return func(o *opt) error {
		if user != "" {
			o.config.User = user
		}
		if password != "" {
			o.config.Passwd = password
		}
		return nil
	}
}

// WithDatabase sets the database name
func WithDatabase(name string) Opt {
	return func(o *opt) error {
		o.config.DBName = name
		return nil
	}
}

// WithTable sets the name of the queue table. The type domain is a table
// named after the queue table, with a "_type" suffix. Defaults to "queue".
func WithTable(name string) Opt {
	return func(o *opt) error {
		if !dqueue.ValidIdentifier(name) {
			return dqueue.ErrBadParameter.Withf("invalid table name %q", name)
		}
		o.table = name
		return nil
	}
}

// WithLockTimeout sets how long Initialize waits for a concurrent
// initialization of the same table to complete
func WithLockTimeout(timeout time.Duration) Opt {
	return func(o *opt) error {
		if timeout < time.Second {
			return dqueue.ErrBadParameter.With("lock timeout must be at least one second")
		}
		o.lockTimeout = timeout
		return nil
	}
}
