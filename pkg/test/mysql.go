package test

import (
	"context"
	"fmt"

	// Packages
	nat "github.com/docker/go-connections/nat"
	wait "github.com/testcontainers/testcontainers-go/wait"

	// Register the "mysql" driver for the readiness check
	_ "github.com/go-sql-driver/mysql"
)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	mysqlImage    = "mysql:8.0.36"
	MySQLPort     = "3306/tcp"
	MySQLUser     = "root"
	MySQLPassword = "secret"
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewMySQLContainer starts a MySQL server with a database named after the
// test, and returns the container and a DSN
func NewMySQLContainer(ctx context.Context, name string) (*Container, string, error) {
	dsn := func(host string, port nat.Port) string {
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true", MySQLUser, MySQLPassword, host, port.Port(), name)
	}
	container, err := NewContainer(ctx, name, mysqlImage,
		OptMySQL(MySQLPassword, name),
		OptPorts(MySQLPort),
		OptWait(wait.ForSQL(nat.Port(MySQLPort), "mysql", dsn).WithStartupTimeout(startupTimeout)),
	)
	if err != nil {
		return nil, "", err
	}

	host, _ := container.GetEnv("HOST")
	port, err := container.MappedPort(ctx, nat.Port(MySQLPort))
	if err != nil {
		return nil, "", err
	}

	return container, dsn(host, port), nil
}

////////////////////////////////////////////////////////////////////////////////
// OPTIONS

// OptMySQL sets the root password and the database to create
func OptMySQL(password, database string) Opt {
	return func(o *opt) error {
		o.Env["MYSQL_ROOT_PASSWORD"] = password
		o.Env["MYSQL_DATABASE"] = database
		return nil
	}
}
