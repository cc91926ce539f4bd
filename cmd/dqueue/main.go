package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	// Packages
	kong "github.com/alecthomas/kong"
	dqueue "github.com/mutablelogic/go-dqueue"
	version "github.com/mutablelogic/go-dqueue/pkg/version"
	server "github.com/mutablelogic/go-server"
	logger "github.com/mutablelogic/go-server/pkg/logger"
	otel "go.opentelemetry.io/otel"
	codes "go.opentelemetry.io/otel/codes"
	trace "go.opentelemetry.io/otel/trace"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type Globals struct {
	// Debug option
	Debug   bool             `name:"debug" help:"Enable debug logging"`
	Version kong.VersionFlag `name:"version" help:"Print version and exit"`

	// Store options
	Backend  string   `name:"backend" env:"DQUEUE_BACKEND" enum:"postgres,sqlite,mysql" default:"sqlite" help:"Storage backend (postgres, sqlite, mysql)"`
	URL      string   `name:"url" env:"DQUEUE_URL" help:"Database URL for postgres, or DSN for mysql"`
	Path     string   `name:"path" env:"DQUEUE_PATH" default:"queue.db" help:"Database file for sqlite"`
	User     string   `name:"user" env:"DQUEUE_USER" help:"Database user"`
	Password string   `name:"password" env:"DQUEUE_PASSWORD" help:"Database password"`
	Table    string   `name:"table" env:"DQUEUE_TABLE" default:"queue" help:"Queue table name"`
	Types    []string `name:"type" env:"DQUEUE_TYPES" default:"move" help:"Declared message types"`

	// Private fields
	ctx    context.Context
	cancel context.CancelFunc
	log    server.Logger
	tracer trace.Tracer
}

type CLI struct {
	Globals
	InitCommand    InitCommand    `cmd:"" name:"init" help:"Create the queue table." group:"QUEUE"`
	PublishCommand PublishCommand `cmd:"" name:"publish" help:"Publish an entry." group:"QUEUE"`
	CountCommand   CountCommand   `cmd:"" name:"count" help:"Count entries in the queue." group:"QUEUE"`
	RunCommand     RunCommand     `cmd:"" name:"run" help:"Run a consumer." group:"CONSUMER"`
}

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func main() {
	cli := new(CLI)
	ctx := kong.Parse(cli,
		kong.Name("dqueue"),
		kong.Description("delayed message queue command line interface"),
		kong.Vars{
			"version": VersionJSON(),
		},
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	// Create the context and cancel function
	cli.Globals.ctx, cli.Globals.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cli.Globals.cancel()

	// Logging and tracing
	cli.Globals.log = logger.New(os.Stderr, logger.Text, cli.Globals.Debug)
	cli.Globals.tracer = otel.Tracer(version.ExecName())

	// Call the Run() method of the selected parsed command.
	if err := ctx.Run(&cli.Globals); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// TypeSet returns the declared message types
func (g *Globals) TypeSet() (dqueue.TypeSet, error) {
	return dqueue.NewTypeSet(g.Types...)
}

// StartSpan starts a span for a command, and returns a function which
// ends it
func (g *Globals) StartSpan(name string) (context.Context, func(error)) {
	ctx, span := g.tracer.Start(g.ctx, name)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// VersionJSON returns the build metadata and the compiled backends
func VersionJSON() string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	data, err := json.MarshalIndent(struct {
		Name      string   `json:"name"`
		Version   string   `json:"version"`
		Compiler  string   `json:"compiler"`
		Source    string   `json:"source,omitempty"`
		Branch    string   `json:"branch,omitempty"`
		Hash      string   `json:"hash,omitempty"`
		BuildTime string   `json:"build_time,omitempty"`
		Backends  []string `json:"backends"`
	}{
		Name:      version.ExecName(),
		Version:   version.Version(),
		Compiler:  version.Compiler(),
		Source:    version.GitSource,
		Branch:    version.GitBranch,
		Hash:      version.GitHash,
		BuildTime: version.GoBuildTime,
		Backends:  names,
	}, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// exitCode returns a distinct exit code for each error code
func exitCode(err error) int {
	if code := dqueue.Code(err); code > dqueue.ErrSuccess {
		return int(code)
	}
	return 1
}
