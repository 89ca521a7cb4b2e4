// Package postgres runs a disposable PostgreSQL instance for system tests.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const image = "postgres:17-alpine"

// Credentials configure the database created inside the container.
type Credentials struct {
	User     string
	Password string
	Database string
}

// Start launches a PostgreSQL container and blocks until it accepts
// connections. Postgres restarts once during initdb, so readiness is the
// second "ready to accept connections" line.
func Start(ctx context.Context, creds Credentials) (*postgres.PostgresContainer, error) {
	ready := wait.ForLog("database system is ready to accept connections").
		WithOccurrence(2).
		WithStartupTimeout(30 * time.Second)

	container, err := postgres.Run(ctx, image,
		postgres.WithUsername(creds.User),
		postgres.WithPassword(creds.Password),
		postgres.WithDatabase(creds.Database),
		testcontainers.WithWaitStrategy(ready),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	state, err := container.State(ctx)
	if err != nil {
		return nil, fmt.Errorf("inspect postgres container: %w", err)
	}
	if !state.Running {
		return nil, fmt.Errorf("postgres container exited during startup: %s", state.Status)
	}
	return container, nil
}

// Stop tears the container down.
func Stop(ctx context.Context, container *postgres.PostgresContainer) error {
	if err := container.Terminate(ctx); err != nil {
		return fmt.Errorf("terminate postgres container: %w", err)
	}
	return nil
}
