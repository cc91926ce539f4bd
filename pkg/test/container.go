package test

import (
	"context"
	"fmt"
	"time"

	// Packages
	nat "github.com/docker/go-connections/nat"
	testcontainers "github.com/testcontainers/testcontainers-go"
	wait "github.com/testcontainers/testcontainers-go/wait"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Container is a running database server in a container
type Container struct {
	testcontainers.Container
	env map[string]string
}

type opt struct {
	testcontainers.ContainerRequest
}

// Opt is a function which sets an option on a container request
type Opt func(*opt) error

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	startupTimeout = 2 * time.Minute
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewContainer starts a container from an image, and waits for it to become
// ready. The name is used as a prefix for the container name.
func NewContainer(ctx context.Context, name, image string, opts ...Opt) (*Container, error) {
	var o opt
	o.Image = image
	o.Name = fmt.Sprintf("%s-%d", name, time.Now().UnixNano())
	o.Env = make(map[string]string)
	for _, fn := range opts {
		if err := fn(&o); err != nil {
			return nil, err
		}
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: o.ContainerRequest,
		Started:          true,
	})
	if err != nil {
		return nil, err
	}

	// Record the host for clients
	host, err := container.Host(ctx)
	if err != nil {
		return nil, err
	}
	env := make(map[string]string, len(o.Env)+1)
	for k, v := range o.Env {
		env[k] = v
	}
	env["HOST"] = host

	return &Container{Container: container, env: env}, nil
}

// Close terminates the container
func (c *Container) Close(ctx context.Context) error {
	return c.Terminate(ctx)
}

////////////////////////////////////////////////////////////////////////////////
// OPTIONS

// OptEnv sets an environment variable in the container
func OptEnv(name, value string) Opt {
	return func(o *opt) error {
		o.Env[name] = value
		return nil
	}
}

// OptPorts exposes ports from the container
func OptPorts(ports ...string) Opt {
	return func(o *opt) error {
		o.ExposedPorts = append(o.ExposedPorts, ports...)
		return nil
	}
}

// OptWait sets the strategy which determines when the container is ready
func OptWait(strategy wait.Strategy) Opt {
	return func(o *opt) error {
		o.WaitingFor = strategy
		return nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// GetEnv returns an environment variable set on the container, or "HOST"
// for the host on which the mapped ports are reachable
func (c *Container) GetEnv(name string) (string, bool) {
	value, exists := c.env[name]
	return value, exists
}

// GetPort returns the host port mapped to a container port, such as
// "5432/tcp"
func (c *Container) GetPort(port string) (string, error) {
	mapped, err := c.MappedPort(context.Background(), nat.Port(port))
	if err != nil {
		return "", err
	}
	return mapped.Port(), nil
}
