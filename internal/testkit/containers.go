// Package testkit starts throwaway Postgres and Mongo containers for store
// integration tests. Tests using it are skipped under -short.
package testkit

import (
	"context"
	"testing"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/mongox"
	"github.com/ariefcatur/go-realtime-checkout/internal/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.mongodb.org/mongo-driver/mongo"
)

// Postgres returns a pool on a migrated database (demo catalog included).
func Postgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test, skipped with -short")
	}
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, postgres.Migrate(dsn))

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	pool, err := postgres.Connect(connectCtx, dsn, "testkit")
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func Mongo(t *testing.T) *mongo.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test, skipped with -short")
	}
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(mongoContainer); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := mongox.Connect(ctx, uri, "testdb")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Client().Disconnect(context.Background()) })
	return db
}
