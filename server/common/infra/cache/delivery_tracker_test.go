package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) (*DeliveryTracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewDeliveryTracker(client, "test", time.Hour), mr
}

func TestDeliveryTrackerAttemptsCount(t *testing.T) {
	tracker, mr := newTestTracker(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := tracker.Attempt(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, time.Hour, mr.TTL("test:attempts:m1"))

	other, err := tracker.Attempt(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), other)
}

func TestDeliveryTrackerMarkDone(t *testing.T) {
	tracker, mr := newTestTracker(t)
	ctx := context.Background()

	done, err := tracker.IsDone(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, done)

	_, err = tracker.Attempt(ctx, "m1")
	require.NoError(t, err)
	require.NoError(t, tracker.MarkDone(ctx, "m1"))

	done, err = tracker.IsDone(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, done)
	assert.False(t, mr.Exists("test:attempts:m1"))

	mr.FastForward(2 * time.Hour)
	done, err = tracker.IsDone(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestDeliveryTrackerSurfacesRedisErrors(t *testing.T) {
	tracker, mr := newTestTracker(t)
	mr.Close()

	_, err := tracker.IsDone(context.Background(), "m1")
	assert.Error(t, err)
	_, err = tracker.Attempt(context.Background(), "m1")
	assert.Error(t, err)
}

func TestNewDeliveryTrackerDefaults(t *testing.T) {
	tracker := NewDeliveryTracker(nil, "", 0)
	assert.Equal(t, "s4:delivery:done:x", tracker.doneKey("x"))
	assert.Equal(t, defaultTrackerTTL, tracker.ttl)
}
