package sessionsvc

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/session"
)

func testRedisTracker(t *testing.T, idle time.Duration) *RedisTracker {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDRESS")
	if addr == "" {
		addr = "localhost:6379"
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	rdb, err := NewRedisClient(ctx, core.RedisConfig{Address: addr, DB: 15})
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() {
		rdb.FlushDB(context.Background())
		_ = rdb.Close()
	})
	return NewRedisTracker(rdb, idle)
}

func TestRedisTracker(t *testing.T) {
	tracker := testRedisTracker(t, time.Second)
	ctx := context.Background()

	require.NoError(t, tracker.Start(ctx, "s1", "u1"))
	require.NoError(t, tracker.Start(ctx, "s2", "u1"))
	require.NoError(t, tracker.Start(ctx, "s3", "u2"))

	assert.NoError(t, tracker.Touch(ctx, "s1"))
	assert.Equal(t, session.ErrExpired, tracker.Touch(ctx, "unknown"))

	require.NoError(t, tracker.Revoke(ctx, "s1"))
	assert.Equal(t, session.ErrExpired, tracker.Touch(ctx, "s1"))
	assert.NoError(t, tracker.Revoke(ctx, "s1"), "revoking twice is a no-op")

	require.NoError(t, tracker.RevokeUser(ctx, "u1"))
	assert.Equal(t, session.ErrExpired, tracker.Touch(ctx, "s2"))
	assert.NoError(t, tracker.Touch(ctx, "s3"))

	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, session.ErrExpired, tracker.Touch(ctx, "s3"), "idle session expires")
}

func TestNewTracker(t *testing.T) {
	conf := &core.Config{Session: core.SessionConfig{Backend: "memory", IdleTimeout: time.Minute}}
	tracker, closeFn, err := NewTracker(context.Background(), conf)
	require.NoError(t, err)
	assert.IsType(t, &session.MemoryTracker{}, tracker)
	assert.NoError(t, closeFn())

	conf.Session.Backend = "memcached"
	_, _, err = NewTracker(context.Background(), conf)
	assert.Error(t, err)
}
