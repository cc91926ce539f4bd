package postgres

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"sort"
	"strings"

	// Packages
	dqueue "github.com/mutablelogic/go-dqueue"
	trace "go.opentelemetry.io/otel/trace"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type opt struct {
	url.Values
	table  string
	trace  TraceFn
	tracer trace.Tracer
}

// Opt is a function which applies options for a server connection
type Opt func(*opt) error

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	DefaultPort     = "5432"
	DefaultTable    = "queue"
	defaultHost     = "localhost"
	defaultDatabase = "postgres"
	defaultAppName  = "dqueue"
)

var (
	defaultScheme = []string{"postgres", "postgresql"}
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func apply(opts ...Opt) (*opt, error) {
	var o opt

	// Set defaults
	o.Values = make(url.Values)
	o.Set("host", defaultHost)
	o.Set("port", DefaultPort)
	o.Set("application_name", defaultAppName)
	o.table = DefaultTable

	// Apply options
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	// Return success
	return &o, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// WithURL sets connection parameters from a postgres:// URL. Query
// parameters are passed through as connection parameters.
func WithURL(value string) Opt {
	return func(o *opt) error {
		if value == "" {
			return nil
		}
		url, err := parseUrl(value)
		if err != nil {
			return err
		}
		o.Set("host", url.Hostname())
		o.Set("port", url.Port())
		o.Set("dbname", strings.TrimPrefix(url.Path, "/"))
		if user := url.User.Username(); user != "" {
			o.Set("user", user)
		}
		if password, ok := url.User.Password(); ok {
			o.Set("password", password)
		}
		for key, values := range url.Query() {
			for _, v := range values {
				o.Set(key, v)
			}
		}
		return nil
	}
}

// WithCredentials sets the user and password. If the database name is not
// set, the user name is used as the database name.
func WithCredentials(user, password string) Opt {
	return func(o *opt) error {
		if user != "" {
			o.Set("user", user)
		}
		if password != "" {
			o.Set("password", password)
		}
		if !o.Has("dbname") && user != "" {
			o.Set("dbname", user)
		}
		return nil
	}
}

// WithDatabase sets the database name
func WithDatabase(name string) Opt {
	return func(o *opt) error {
		if name == "" {
			o.Del("dbname")
		} else {
			o.Set("dbname", name)
		}
		return nil
	}
}

// WithAddr sets the host, or host:port, of the server
func WithAddr(addr string) Opt {
	return func(o *opt) error {
		if !strings.Contains(addr, ":") {
			return WithHostPort(addr, DefaultPort)(o)
		} else if host, port, err := net.SplitHostPort(addr); err != nil {
			return dqueue.ErrBadParameter.Withf("invalid address %q", addr)
		} else {
			return WithHostPort(host, port)(o)
		}
	}
}

// WithHostPort sets the hostname and port of the server
func WithHostPort(host, port string) Opt {
	return func(o *opt) error {
		if host != "" {
			o.Set("host", host)
		}
		if port != "" {
			o.Set("port", port)
		}
		return nil
	}
}

// WithSSLMode sets the SSL mode: "disable", "allow", "prefer", "require",
// "verify-ca" or "verify-full"
func WithSSLMode(mode string) Opt {
	return func(o *opt) error {
		if mode != "" {
			o.Set("sslmode", mode)
		}
		return nil
	}
}

// WithApplicationName sets the name reported in pg_stat_activity
func WithApplicationName(name string) Opt {
	return func(o *opt) error {
		if name != "" {
			o.Set("application_name", name)
		}
		return nil
	}
}

// WithSchemaSearchPath sets the schemas searched for the queue table
func WithSchemaSearchPath(schemas ...string) Opt {
	return func(o *opt) error {
		if len(schemas) > 0 {
			o.Set("search_path", strings.Join(schemas, ","))
		} else {
			o.Del("search_path")
		}
		return nil
	}
}

// WithTable sets the name of the queue table. The type domain is named
// after the table, with a "_type" suffix. Defaults to "queue".
func WithTable(name string) Opt {
	return func(o *opt) error {
		if !dqueue.ValidIdentifier(name) {
			return dqueue.ErrBadParameter.Withf("invalid table name %q", name)
		}
		o.table = name
		return nil
	}
}

// WithTrace sets a function which is called after each statement
func WithTrace(fn TraceFn) Opt {
	return func(o *opt) error {
		o.trace = fn
		return nil
	}
}

// WithTracer emits an OpenTelemetry span for each statement
func WithTracer(tracer trace.Tracer) Opt {
	return func(o *opt) error {
		o.tracer = tracer
		return nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (o *opt) encode(skip ...string) []string {
	// Sort the keys so the connection string is deterministic
	keys := make([]string, 0, len(o.Values))
	for key := range o.Values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var parts []string
	for _, key := range keys {
		if slices.Contains(skip, key) {
			continue
		}
		if value := o.Get(key); value != "" {
			parts = append(parts, fmt.Sprintf("%v=%v", key, quoteValue(value)))
		}
	}
	return parts
}

// Encode the options as a connection string
func (o *opt) Encode() string {
	return strings.Join(o.encode(), " ")
}

// quoteValue quotes a connection string value which contains spaces,
// quotes or backslashes
func quoteValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v) + "'"
}

func parseUrl(value string) (*url.URL, error) {
	url, err := url.Parse(value)
	if err != nil {
		return nil, dqueue.ErrBadParameter.Withf("invalid database url: %v", err)
	}

	// Check scheme
	if url.Scheme == "" {
		url.Scheme = defaultScheme[0]
	} else if !slices.Contains(defaultScheme, url.Scheme) {
		return nil, dqueue.ErrBadParameter.With("invalid database scheme")
	}

	// Normalize host:port
	if url.Port() == "" {
		url.Host = net.JoinHostPort(url.Host, DefaultPort)
	}
	host, port, err := net.SplitHostPort(url.Host)
	if err != nil {
		return nil, dqueue.ErrBadParameter.With("invalid database host format")
	}
	if host == "" {
		host = defaultHost
	}
	url.Host = net.JoinHostPort(host, port)

	// Use the user name as the database name when missing
	if url.User != nil {
		if user := url.User.Username(); user != "" && (url.Path == "" || url.Path == "/") {
			url.Path = "/" + user
		}
	}
	if url.Path == "" || url.Path == "/" {
		url.Path = "/" + defaultDatabase
	}

	return url, nil
}
