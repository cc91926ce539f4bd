package queue

import (
	"os"
	"time"

	// Packages
	dqueue "github.com/mutablelogic/go-dqueue"
	metrics "github.com/mutablelogic/go-dqueue/pkg/metrics"
	server "github.com/mutablelogic/go-server"
	trace "go.opentelemetry.io/otel/trace"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Opt is a functional option for consumer and publisher configuration.
type Opt func(*opts) error

type opts struct {
	name    string
	idle    time.Duration
	timeout time.Duration
	log     server.Logger
	tracer  trace.Tracer
	metrics *metrics.Metrics
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	DefaultIdle = time.Second
)

var (
	ErrInvalidIdle    = dqueue.ErrBadParameter.With("idle must be >= 1ms")
	ErrInvalidTimeout = dqueue.ErrBadParameter.With("timeout must be >= 0")
)

////////////////////////////////////////////////////////////////////////////////
// OPTIONS

// WithName sets the name used to identify this consumer in logs and spans.
// Defaults to the hostname if not specified.
func WithName(name string) Opt {
	return func(o *opts) error {
		if name != "" {
			o.name = name
		}
		return nil
	}
}

// WithIdle sets how long the consumer waits after finding no ready entry.
// Returns ErrInvalidIdle if d < 1ms.
func WithIdle(d time.Duration) Opt {
	return func(o *opts) error {
		if d < time.Millisecond {
			return ErrInvalidIdle
		}
		o.idle = d
		return nil
	}
}

// WithTimeout sets a deadline on each handler invocation. A zero timeout
// means no deadline, which is the default.
func WithTimeout(d time.Duration) Opt {
	return func(o *opts) error {
		if d < 0 {
			return ErrInvalidTimeout
		}
		o.timeout = d
		return nil
	}
}

// WithLogger sets the logger. Otherwise, the logger is taken from the
// context passed to Run, if any.
func WithLogger(log server.Logger) Opt {
	return func(o *opts) error {
		o.log = log
		return nil
	}
}

// WithTracer emits a span for each cycle and each handler invocation
func WithTracer(tracer trace.Tracer) Opt {
	return func(o *opts) error {
		o.tracer = tracer
		return nil
	}
}

// WithMetrics counts claims, handler results and idle cycles
func WithMetrics(m *metrics.Metrics) Opt {
	return func(o *opts) error {
		o.metrics = m
		return nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func applyOpts(opt []Opt) (opts, error) {
	// Get hostname
	hostname, err := os.Hostname()
	if err != nil {
		return opts{}, err
	}

	// Set defaults
	o := opts{
		name: hostname,
		idle: DefaultIdle,
	}

	// Apply options
	for _, fn := range opt {
		if err := fn(&o); err != nil {
			return opts{}, err
		}
	}

	// Return success
	return o, nil
}
