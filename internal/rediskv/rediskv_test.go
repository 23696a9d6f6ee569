package rediskv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/seo-autopilot/internal/progress"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestOpen(t *testing.T) {
	mr, _ := newTestRedis(t)

	client, err := Open(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer client.Close()

	_, err = Open(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestCancelFlags(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	flags := NewCancelFlags(client, "test", time.Minute)

	cancelled, err := flags.IsCancelled(ctx, "batch-1")
	require.NoError(t, err)
	assert.False(t, cancelled)

	require.NoError(t, flags.Cancel(ctx, "batch-1"))
	assert.True(t, mr.Exists("test:cancel:batch-1"))

	cancelled, err = flags.IsCancelled(ctx, "batch-1")
	require.NoError(t, err)
	assert.True(t, cancelled)

	mr.FastForward(2 * time.Minute)
	cancelled, err = flags.IsCancelled(ctx, "batch-1")
	require.NoError(t, err)
	assert.False(t, cancelled, "flag expires")

	require.NoError(t, flags.Cancel(ctx, "batch-2"))
	require.NoError(t, flags.Clear(ctx, "batch-2"))
	cancelled, err = flags.IsCancelled(ctx, "batch-2")
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestCancelFlags_RedisDown(t *testing.T) {
	mr, client := newTestRedis(t)
	mr.Close()

	_, err := NewCancelFlags(client, "", 0).IsCancelled(context.Background(), "x")
	assert.Error(t, err)
}

func TestProgressSnapshots(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	snaps := NewProgressSnapshots(client, "", time.Minute, zerolog.Nop())

	_, ok, err := snaps.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, ok)

	snaps.Emit(progress.Event{JobID: "job-1", Percent: 40, Step: "content", Message: "generating"})
	snaps.Emit(progress.Event{JobID: "job-1", Percent: 70, Step: "images", Message: "images"})
	snaps.Emit(progress.Event{Percent: 99}) // no job id: ignored

	e, ok, err := snaps.Get(ctx, "job-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 70, e.Percent)
	assert.Equal(t, "images", e.Step)

	ttl := mr.TTL("autopilot:progress:job-1")
	assert.Equal(t, time.Minute, ttl)
}
