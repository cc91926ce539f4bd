package main

import (
	"context"
	"errors"
	"fmt"

	// Packages
	dqueue "github.com/mutablelogic/go-dqueue"
	mysql "github.com/mutablelogic/go-dqueue/pkg/mysql"
	postgres "github.com/mutablelogic/go-dqueue/pkg/postgres"
	sqlite "github.com/mutablelogic/go-dqueue/pkg/sqlite"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type factory func(*Globals) (dqueue.Backend, error)

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

var (
	backends = map[string]factory{
		"postgres": newPostgres,
		"sqlite":   newSQLite,
		"mysql":    newMySQL,
	}
)

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// Connect creates the selected backend and connects it
func (g *Globals) Connect(ctx context.Context) (dqueue.Backend, error) {
	fn, exists := backends[g.Backend]
	if !exists {
		return nil, dqueue.ErrNotImplemented.Withf("backend %q", g.Backend)
	}
	backend, err := fn(g)
	if err != nil {
		return nil, err
	}
	if err := backend.Connect(ctx); err != nil {
		return nil, err
	}
	if g.log != nil {
		g.log.With("backend", g.Backend, "table", g.Table).Debug(ctx, "connected")
	}
	return backend, nil
}

// Open connects the backend and initializes the store with the declared
// types. The backend is closed on error.
func (g *Globals) Open(ctx context.Context) (dqueue.Backend, dqueue.TypeSet, error) {
	types, err := g.TypeSet()
	if err != nil {
		return nil, types, err
	}
	backend, err := g.Connect(ctx)
	if err != nil {
		return nil, types, err
	}
	if err := backend.Initialize(ctx, types); err != nil {
		return nil, types, errors.Join(err, backend.Close(context.WithoutCancel(ctx)))
	}
	return backend, types, nil
}

func newPostgres(g *Globals) (dqueue.Backend, error) {
	opts := []postgres.Opt{
		postgres.WithURL(g.URL),
		postgres.WithTable(g.Table),
		postgres.WithApplicationName(g.applicationName()),
		postgres.WithTracer(g.tracer),
	}
	if g.User != "" || g.Password != "" {
		opts = append(opts, postgres.WithCredentials(g.User, g.Password))
	}
	if g.Debug {
		opts = append(opts, postgres.WithTrace(func(ctx context.Context, query string, args any, err error) {
			g.log.With("args", args, "err", err).Debug(ctx, query)
		}))
	}
	return postgres.New(opts...)
}

func newSQLite(g *Globals) (dqueue.Backend, error) {
	return sqlite.New(
		sqlite.WithPath(g.Path),
		sqlite.WithTable(g.Table),
	)
}

func newMySQL(g *Globals) (dqueue.Backend, error) {
	opts := []mysql.Opt{
		mysql.WithDSN(g.URL),
		mysql.WithTable(g.Table),
	}
	if g.User != "" || g.Password != "" {
		opts = append(opts, mysql.WithCredentials(g.User, g.Password))
	}
	return mysql.New(opts...)
}

func (g *Globals) applicationName() string {
	return fmt.Sprintf("dqueue-%s", g.Backend)
}
