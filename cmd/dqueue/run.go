package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	// Packages
	dqueue "github.com/mutablelogic/go-dqueue"
	metrics "github.com/mutablelogic/go-dqueue/pkg/metrics"
	queue "github.com/mutablelogic/go-dqueue/pkg/queue"
	version "github.com/mutablelogic/go-dqueue/pkg/version"
	httpserver "github.com/mutablelogic/go-server/pkg/httpserver"
	prometheus "github.com/prometheus/client_golang/prometheus"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type RunCommand struct {
	Idle    time.Duration `name:"idle" env:"DQUEUE_IDLE" default:"1s" help:"Wait after finding no ready entry"`
	Timeout time.Duration `name:"timeout" env:"DQUEUE_TIMEOUT" default:"0s" help:"Deadline for each handler, or zero for none"`
	Exec    string        `name:"exec" env:"DQUEUE_EXEC" help:"Command which handles each entry, with the payload on stdin"`
	Metrics string        `name:"metrics" env:"DQUEUE_METRICS" help:"Listen address for prometheus metrics, such as :9090"`
	Name    string        `name:"name" help:"Consumer name, defaults to the hostname"`
}

///////////////////////////////////////////////////////////////////////////////
// COMMANDS

func (cmd *RunCommand) Run(ctx *Globals) error {
	backend, types, err := ctx.Open(ctx.ctx)
	if err != nil {
		return err
	}
	defer backend.Close(context.WithoutCancel(ctx.ctx))

	// Register a handler for every declared type
	registry := queue.NewRegistry()
	for _, typ := range types.Names() {
		var fn queue.HandlerFunc
		if args := strings.Fields(cmd.Exec); len(args) > 0 {
			fn = execHandler(args[0], args[1:]...)
		} else {
			fn = logHandler(ctx)
		}
		if err := registry.Register(typ, fn); err != nil {
			return err
		}
	}

	// Metrics
	var m *metrics.Metrics
	if cmd.Metrics != "" {
		m = metrics.New(metrics.DefaultNamespace).WithCounter(backend)
	}

	// Create the consumer
	consumer, err := queue.NewConsumer(backend, registry,
		queue.WithName(cmd.Name),
		queue.WithIdle(cmd.Idle),
		queue.WithTimeout(cmd.Timeout),
		queue.WithLogger(ctx.log),
		queue.WithTracer(ctx.tracer),
		queue.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	// We run the consumer and the metrics server concurrently
	var wg sync.WaitGroup
	var mu sync.Mutex
	var result error
	ctx.log.Print(ctx.ctx, version.ExecName(), " ", version.Version(), " consuming ", types)

	if m != nil {
		reg := prometheus.NewRegistry()
		reg.MustRegister(m)
		router := http.NewServeMux()
		metrics.RegisterHandler(router, "", reg)
		server, err := httpserver.New(cmd.Metrics, router, nil)
		if err != nil {
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx.log.Print(ctx.ctx, "metrics on http://", cmd.Metrics, "/metrics")
			if err := server.Run(ctx.ctx); err != nil {
				if !errors.Is(err, context.Canceled) {
					mu.Lock()
					result = errors.Join(result, fmt.Errorf("metrics server: %w", err))
					mu.Unlock()
				}
				ctx.cancel()
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := consumer.Run(ctx.ctx); err != nil {
			mu.Lock()
			result = errors.Join(result, err)
			mu.Unlock()
		}

		// Stop the metrics server
		ctx.cancel()
	}()

	// Wait for both to finish
	wg.Wait()

	// Terminated message
	if result == nil {
		ctx.log.Print(ctx.ctx, version.ExecName(), " terminated")
	}

	// Return any error
	return result
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// logHandler logs each entry
func logHandler(ctx *Globals) queue.HandlerFunc {
	return func(parent context.Context, entry *dqueue.Entry) error {
		ctx.log.With("id", entry.Id, "type", entry.Type, "visible_at", entry.VisibleAt).Print(parent, string(entry.Payload))
		return nil
	}
}
