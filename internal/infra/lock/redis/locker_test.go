package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayhub/internal/app/policies"
)

func testClient(t *testing.T) goredis.UniversalClient {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func TestLockerExcludesSecondHolder(t *testing.T) {
	client := testClient(t)
	l := New(client, 100*time.Millisecond)
	l.Prefix = "stayhub:test:" + uuid.NewString() + ":"

	release, err := l.Acquire(context.Background(), "booking:b-1")
	require.NoError(t, err)

	_, err = l.Acquire(context.Background(), "booking:b-1")
	assert.ErrorIs(t, err, policies.ErrLockTimeout)

	release()
	again, err := l.Acquire(context.Background(), "booking:b-1")
	require.NoError(t, err)
	again()
}

func TestReleaseKeepsForeignToken(t *testing.T) {
	client := testClient(t)
	l := New(client, 50*time.Millisecond)
	l.Prefix = "stayhub:test:" + uuid.NewString() + ":"
	l.TTL = 50 * time.Millisecond

	release, err := l.Acquire(context.Background(), "property:p-1")
	require.NoError(t, err)
	time.Sleep(80 * time.Millisecond)

	l.TTL = time.Minute
	other, err := l.Acquire(context.Background(), "property:p-1")
	require.NoError(t, err)
	release()

	val, err := client.Get(context.Background(), l.Prefix+"property:p-1").Result()
	require.NoError(t, err)
	assert.NotEmpty(t, val)
	other()
}
