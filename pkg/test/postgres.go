package test

import (
	"context"
	"fmt"

	// Packages
	wait "github.com/testcontainers/testcontainers-go/wait"
)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	postgresImage    = "postgres:17-bookworm"
	PostgresPort     = "5432/tcp"
	PostgresUser     = "postgres"
	PostgresPassword = "password"
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewPostgresContainer starts a PostgreSQL server with a database named
// after the test, and returns the container and a connection URL
func NewPostgresContainer(ctx context.Context, name string) (*Container, string, error) {
	container, err := NewContainer(ctx, name, postgresImage,
		OptPostgres(PostgresUser, PostgresPassword, name),
		OptPorts(PostgresPort),
		OptWait(wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(startupTimeout)),
	)
	if err != nil {
		return nil, "", err
	}

	host, _ := container.GetEnv("HOST")
	port, err := container.GetPort(PostgresPort)
	if err != nil {
		return nil, "", err
	}

	return container, fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", PostgresUser, PostgresPassword, host, port, name), nil
}

////////////////////////////////////////////////////////////////////////////////
// OPTIONS

// OptPostgres sets the superuser credentials and the database to create
func OptPostgres(user, password, database string) Opt {
	return func(o *opt) error {
		o.Env["POSTGRES_USER"] = user
		o.Env["POSTGRES_PASSWORD"] = password
		o.Env["POSTGRES_DB"] = database
		return nil
	}
}
