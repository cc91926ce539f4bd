package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	// Packages
	dqueue "github.com/mutablelogic/go-dqueue"
	prometheus "github.com/prometheus/client_golang/prometheus"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Metrics counts the work of consumers. It implements prometheus.Collector,
// and the hooks are no-ops on a nil receiver.
type Metrics struct {
	claimed  *prometheus.CounterVec
	handled  *prometheus.CounterVec
	idle     prometheus.Counter
	duration *prometheus.HistogramVec
	depth    *prometheus.Desc
	counter  Counter

	// Last count reported, while the store is busy with a claim
	mu    sync.Mutex
	last  uint64
	known bool
}

// Counter returns the number of entries held in a store
type Counter interface {
	Count(context.Context) (uint64, error)
}

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	DefaultNamespace = "dqueue"
	ResultSuccess    = "success"
	ResultFailure    = "failure"
	countTimeout     = 10 * time.Second
)

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New returns metrics with names prefixed by the namespace
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Metrics{
		claimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claimed_total",
			Help:      "Number of entries claimed, by type",
		}, []string{"type"}),
		handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handled_total",
			Help:      "Number of entries handled, by type and result",
		}, []string{"type", "result"}),
		idle: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idle_total",
			Help:      "Number of cycles which found no ready entry",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Time spent in handlers, by type",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		depth: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "entries"),
			"Number of entries in the store",
			nil, nil,
		),
	}
}

// WithCounter reports the number of entries held in the store on each
// collection. While the store is busy with a claim, the last count is
// reported, or none if the store has not yet been counted.
func (m *Metrics) WithCounter(counter Counter) *Metrics {
	if m != nil {
		m.counter = counter
	}
	return m
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS - COLLECTOR

// Describe sends metric descriptors to the channel
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.claimed.Describe(ch)
	m.handled.Describe(ch)
	m.idle.Describe(ch)
	m.duration.Describe(ch)
	if m.counter != nil {
		ch <- m.depth
	}
}

// Collect sends metrics to the channel
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.claimed.Collect(ch)
	m.handled.Collect(ch)
	m.idle.Collect(ch)
	m.duration.Collect(ch)
	if m.counter != nil {
		m.collectDepth(ch)
	}
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS - HOOKS

// Claimed counts an entry claimed
func (m *Metrics) Claimed(typ string) {
	if m == nil {
		return
	}
	m.claimed.WithLabelValues(typ).Inc()
}

// Handled counts an entry handled, and records the time spent in the
// handler
func (m *Metrics) Handled(typ string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.handled.WithLabelValues(typ, result).Inc()
	m.duration.WithLabelValues(typ).Observe(d.Seconds())
}

// Idle counts a cycle with no ready entry
func (m *Metrics) Idle() {
	if m == nil {
		return
	}
	m.idle.Inc()
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (m *Metrics) collectDepth(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), countTimeout)
	defer cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	count, err := m.counter.Count(ctx)
	switch {
	case errors.Is(err, dqueue.ErrClaimTransaction):
		if !m.known {
			return
		}
		count = m.last
	case err != nil:
		ch <- prometheus.NewInvalidMetric(m.depth, err)
		return
	default:
		m.last, m.known = count, true
	}
	ch <- prometheus.MustNewConstMetric(m.depth, prometheus.GaugeValue, float64(count))
}
