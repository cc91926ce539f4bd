package queue

import (
	"context"
	"slices"
	"sync"

	// Packages
	dqueue "github.com/mutablelogic/go-dqueue"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// HandlerFunc processes an entry. Return nil on success, or an error to
// roll back the claim and return the entry to the queue.
type HandlerFunc func(context.Context, *dqueue.Entry) error

// Handlers returns the handler for a message type
type Handlers interface {
	Lookup(typ string) (HandlerFunc, bool)
}

// Registry maps message types to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

var _ Handlers = (*Registry)(nil)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
	}
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Register a handler for a message type. It is an error to register a
// type more than once.
func (r *Registry) Register(typ string, fn HandlerFunc) error {
	if fn == nil {
		return dqueue.ErrBadParameter.Withf("nil handler for type %q", typ)
	} else if !dqueue.ValidTypeName(typ) {
		return dqueue.ErrBadParameter.Withf("invalid type name %q", typ)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[typ]; exists {
		return dqueue.ErrBadParameter.Withf("handler for type %q already registered", typ)
	}
	r.handlers[typ] = fn

	// Return success
	return nil
}

// Lookup returns the handler for a message type
func (r *Registry) Lookup(typ string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, exists := r.handlers[typ]
	return fn, exists
}

// Types returns the registered message types in sorted order
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for typ := range r.handlers {
		types = append(types, typ)
	}
	slices.Sort(types)
	return types
}
