package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	// Packages
	dqueue "github.com/mutablelogic/go-dqueue"
	queue "github.com/mutablelogic/go-dqueue/pkg/queue"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type InitCommand struct{}

type PublishCommand struct {
	Type    string        `arg:"" name:"type" help:"Message type"`
	Payload string        `arg:"" name:"payload" help:"Payload, as JSON"`
	Delay   time.Duration `name:"delay" help:"Delay before the entry is visible" default:"0s"`
}

type CountCommand struct{}

///////////////////////////////////////////////////////////////////////////////
// COMMANDS

func (cmd *InitCommand) Run(ctx *Globals) (err error) {
	parent, endSpan := ctx.StartSpan("InitCommand")
	defer func() { endSpan(err) }()

	backend, types, err := ctx.Open(parent)
	if err != nil {
		return err
	}
	defer backend.Close(context.WithoutCancel(parent))

	fmt.Printf("initialized %q with types %v\n", ctx.Table, types)
	return nil
}

func (cmd *PublishCommand) Run(ctx *Globals) (err error) {
	parent, endSpan := ctx.StartSpan("PublishCommand")
	defer func() { endSpan(err) }()

	// Check the payload before connecting
	if !json.Valid([]byte(cmd.Payload)) {
		return dqueue.ErrBadParameter.With("payload is not valid JSON")
	}

	backend, types, err := ctx.Open(parent)
	if err != nil {
		return err
	}
	defer backend.Close(context.WithoutCancel(parent))

	publisher, err := queue.NewPublisher(backend, types, queue.WithLogger(ctx.log), queue.WithTracer(ctx.tracer))
	if err != nil {
		return err
	}
	return publisher.Publish(parent, cmd.Type, json.RawMessage(cmd.Payload), cmd.Delay)
}

func (cmd *CountCommand) Run(ctx *Globals) (err error) {
	parent, endSpan := ctx.StartSpan("CountCommand")
	defer func() { endSpan(err) }()

	backend, err := ctx.Connect(parent)
	if err != nil {
		return err
	}
	defer backend.Close(context.WithoutCancel(parent))

	count, err := backend.Count(parent)
	if err != nil {
		return err
	}
	fmt.Println(count)
	return nil
}
