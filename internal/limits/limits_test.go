package limits

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRateLimiter(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryRateLimiter(2, time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	key := Key{Project: "group/app", User: "alice", SHA: "abc"}
	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "third creation within the window")

	other, err := l.Allow(ctx, Key{Project: "group/app", User: "alice", SHA: "def"})
	require.NoError(t, err)
	assert.True(t, other, "another commit has its own bucket")

	now = now.Add(31 * time.Second)
	ok, err = l.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok, "a token is refilled after window/count")
}

func TestMemoryRateLimiterDropsIdleKeys(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryRateLimiter(1, time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 100; i++ {
		ok, err := l.Allow(ctx, Key{Project: "group/app", SHA: fmt.Sprint(i)})
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 100, l.Len())

	now = now.Add(30 * time.Second)
	busy := Key{Project: "group/app", SHA: "busy"}
	_, err := l.Allow(ctx, busy)
	require.NoError(t, err)
	assert.Equal(t, 101, l.Len(), "keys used within the window are kept")

	now = now.Add(45 * time.Second)
	ok, err := l.Allow(ctx, Key{Project: "group/app", SHA: "0"})
	require.NoError(t, err)
	assert.True(t, ok, "a dropped key starts with a full bucket")
	assert.Equal(t, 2, l.Len(), "only the recent key and the new one remain")

	ok, err = l.Allow(ctx, busy)
	require.NoError(t, err)
	assert.False(t, ok, "a kept key keeps its bucket")
}

func TestMemoryRateLimiterCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryRateLimiter(1, time.Minute).Allow(ctx, Key{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestActiveJobs(t *testing.T) {
	c := NewMemoryActiveJobs()
	c.Set("group/app", 8)
	n, err := c.ActiveJobs(context.Background(), "group/app")
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	assert.False(t, Exceeds(8, 2, 10))
	assert.True(t, Exceeds(8, 3, 10))
	assert.False(t, Exceeds(1000, 1, 0))
}
