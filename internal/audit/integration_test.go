//go:build integration
// +build integration

package audit

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	redisContainer "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestRedisStore_Integration(t *testing.T) {
	ctx := context.Background()
	container, err := redisContainer.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Redis container: %v", err)
		}
	})
	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint, DB: 1})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())

	var n atomic.Int32
	runStoreSuite(t, func(*testing.T) Store {
		// A fresh prefix per subtest isolates keys without flushing.
		return NewRedisStore(client, fmt.Sprintf("finjudge-test-%d", n.Add(1)))
	})
}

func TestPostgresStore_Integration(t *testing.T) {
	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("finjudge"),
		postgres.WithUsername("finjudge"),
		postgres.WithPassword("finjudge"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Postgres container: %v", err)
		}
	})
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	runStoreSuite(t, func(*testing.T) Store {
		_, err := store.db.ExecContext(ctx, `TRUNCATE finjudge_traces, finjudge_manifests`)
		require.NoError(t, err)
		return store
	})
}
