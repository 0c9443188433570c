package metadata_test

import (
	"context"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zunokit/evm-nft-indexer/shared/redis"
	"github.com/zunokit/evm-nft-indexer/shared/testutil"
)

// TestRedisDedupeCacheAgainstRealRedis exercises the worker's dedupe
// primitives (Exists/Set with a TTL) against a real redis instance rather
// than the in-package fake. Skipped under -short since it needs a Docker
// daemon for the redis testcontainer.
func TestRedisDedupeCacheAgainstRealRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainers-backed integration test in -short mode")
	}

	ctx := context.Background()
	container, redisURL, err := testutil.SetupTestRedis(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	u, err := url.Parse(redisURL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	client, err := redis.NewRedis(redis.RedisConfig{RedisHost: u.Hostname(), RedisPort: port})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.HealthCheck(ctx))

	key := redis.MetadataFetchKey("0x0000000000000000000000000000000000000001", "7", "deadbeef")

	n, err := client.Exists(ctx, key)
	require.NoError(t, err)
	require.Zero(t, n)

	require.NoError(t, client.Set(ctx, key, "1", 200*time.Millisecond))

	n, err = client.Exists(ctx, key)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	time.Sleep(300 * time.Millisecond)

	n, err = client.Exists(ctx, key)
	require.NoError(t, err)
	require.Zero(t, n)
}
