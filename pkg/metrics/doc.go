// Package metrics provides prometheus instrumentation for consumers, and a
// handler which serves it.
package metrics
