package broker_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflowio/ltq/internal/broker"
	"github.com/taskflowio/ltq/internal/domain"
)

func newTestRedis(t *testing.T) (*broker.Redis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := broker.NewRedisWithClient(client)
	return b, func() {
		_ = client.Close()
		mr.Close()
	}
}

func TestRedis_PublishConsumeAck(t *testing.T) {
	b, cleanup := newTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	m := domain.NewMessage("t1", []any{1}, nil, time.Now())
	require.NoError(t, b.Publish(ctx, m, 0))

	n, err := b.Len(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := b.Consume(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, m.Equal(got))

	// After claim, the ready set is empty and nothing else can claim it.
	n, err = b.Len(ctx, "t1")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, b.Ack(ctx, got))
}

func TestRedis_NackDropVsRetry(t *testing.T) {
	b, cleanup := newTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	m := domain.NewMessage("t2", nil, nil, time.Now())
	require.NoError(t, b.Publish(ctx, m, 0))
	got, err := b.Consume(ctx, "t2")
	require.NoError(t, err)

	require.NoError(t, b.Nack(ctx, got, 0, true))
	n, err := b.Len(ctx, "t2")
	require.NoError(t, err)
	assert.Zero(t, n, "dropped message must not be requeued")

	m2 := domain.NewMessage("t3", nil, nil, time.Now())
	require.NoError(t, b.Publish(ctx, m2, 0))
	got2, err := b.Consume(ctx, "t3")
	require.NoError(t, err)
	require.NoError(t, b.Nack(ctx, got2, 0, false))
	n, err = b.Len(ctx, "t3")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "retried message must be requeued")
}

func TestRedis_Reclaim(t *testing.T) {
	b, cleanup := newTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	m := domain.NewMessage("t4", nil, nil, time.Now())
	require.NoError(t, b.Publish(ctx, m, 0))

	// Simulate a crash mid-processing: claim it, but never Ack/Nack.
	_, err := b.Consume(ctx, "t4")
	require.NoError(t, err)
	n, err := b.Len(ctx, "t4")
	require.NoError(t, err)
	assert.Zero(t, n)

	reclaimed, err := b.Reclaim(ctx, "t4")
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)

	n, err = b.Len(ctx, "t4")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "reclaimed message must be visible again")
}

func TestRedis_PublishBatch(t *testing.T) {
	b, cleanup := newTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	msgs := []*domain.Message{
		domain.NewMessage("batch", []any{1}, nil, time.Now()),
		domain.NewMessage("batch", []any{2}, nil, time.Now()),
		domain.NewMessage("batch", []any{3}, nil, time.Now()),
	}
	require.NoError(t, b.PublishBatch(ctx, msgs, 0))

	n, err := b.Len(ctx, "batch")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestRedis_Clear(t *testing.T) {
	b, cleanup := newTestRedis(t)
	defer cleanup()
	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, domain.NewMessage("c", nil, nil, time.Now()), 0))
	require.NoError(t, b.Clear(ctx, "c"))
	n, err := b.Len(ctx, "c")
	require.NoError(t, err)
	assert.Zero(t, n)
}
