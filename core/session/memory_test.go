package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTracker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }
	defer func() { nowFunc = time.Now }()

	tracker := NewMemoryTracker(30 * time.Minute)
	require.NoError(t, tracker.Start(ctx, "s1", "u1"))
	require.NoError(t, tracker.Start(ctx, "s2", "u1"))
	require.NoError(t, tracker.Start(ctx, "s3", "u2"))

	t.Run("unknown session", func(t *testing.T) {
		assert.Equal(t, ErrExpired, tracker.Touch(ctx, "lol"))
	})

	t.Run("activity extends the session", func(t *testing.T) {
		now = now.Add(20 * time.Minute)
		assert.NoError(t, tracker.Touch(ctx, "s1"))
		now = now.Add(20 * time.Minute) // 40 minutes after start, 20 after last activity
		assert.NoError(t, tracker.Touch(ctx, "s1"))
	})

	t.Run("idle session expires", func(t *testing.T) {
		// s2 & s3 have been idle for 40 minutes
		assert.Equal(t, ErrExpired, tracker.Touch(ctx, "s2"))
		assert.Equal(t, ErrExpired, tracker.Touch(ctx, "s2"), "expired sessions stay expired")
	})

	t.Run("revoke", func(t *testing.T) {
		require.NoError(t, tracker.Start(ctx, "s4", "u2"))
		require.NoError(t, tracker.Revoke(ctx, "s4"))
		assert.Equal(t, ErrExpired, tracker.Touch(ctx, "s4"))
	})

	t.Run("revoke user", func(t *testing.T) {
		require.NoError(t, tracker.Start(ctx, "s5", "u1"))
		require.NoError(t, tracker.Start(ctx, "s6", "u3"))
		require.NoError(t, tracker.RevokeUser(ctx, "u1"))
		assert.Equal(t, ErrExpired, tracker.Touch(ctx, "s1"))
		assert.Equal(t, ErrExpired, tracker.Touch(ctx, "s5"))
		assert.NoError(t, tracker.Touch(ctx, "s6"))
	})

	t.Run("start collects idle sessions", func(t *testing.T) {
		now = now.Add(time.Hour)
		require.NoError(t, tracker.Start(ctx, "s7", "u4"))
		assert.Equal(t, 1, tracker.Len())
	})
}
