//go:build integration

// Package dbtest starts a throwaway PostgreSQL container with the schema
// migrated, for integration tests.
package dbtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/MrEthical07/lmsauth/internal/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// StartPostgres runs postgres:18-alpine, applies every migration and returns
// an open pool. The container and pool are released through t.Cleanup.
// Each tune func may adjust the pool settings before it is opened.
func StartPostgres(t *testing.T, tune ...func(*db.PoolConfig)) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "lmsauth",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/lmsauth?sslmode=disable", host, port.Port())
	require.NoError(t, db.Migrate(dsn, db.Up))

	cfg := &db.PoolConfig{ConnString: dsn, MaxConns: 16, MinConns: 1}
	for _, fn := range tune {
		fn(cfg)
	}
	pool, err := db.NewPool(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}
