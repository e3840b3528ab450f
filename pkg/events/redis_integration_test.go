//go:build integration
// +build integration

package events

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	redisContainer "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestRedisStreamSink_Integration(t *testing.T) {
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

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })

	sink := NewRedisStreamSink(client, "finjudge:events")
	first, err := NewEnvelope(TypeTaskScored, "test", "run-1:t1:scored", map[string]float64{"final_score": 1})
	require.NoError(t, err)
	retry, err := NewEnvelope(TypeTaskScored, "test", "run-1:t1:scored", map[string]float64{"final_score": 1})
	require.NoError(t, err)

	require.NoError(t, sink.Append(ctx, first))
	require.NoError(t, sink.Append(ctx, retry))

	n, err := client.XLen(ctx, "finjudge:events").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "duplicate idempotency key is dropped")
}
