package broker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/taskflowio/ltq/internal/domain"
)

// claimScript performs the atomic "find earliest ready member, move it into
// the processing set, remove it from the ready set" operation as a single
// server-side Lua script. A two-step insert-processing-then-remove-ready
// done as separate round-trips is not atomic and leaves a duplicate-window
// on crash; doing both inside one script closes that window.
//
// KEYS[1] = ready set (queue:{task})
// KEYS[2] = processing set (processing:{task}:{consumer})
// ARGV[1] = now (seconds, float ok)
// returns the claimed member, or false if none is ready.
const claimScript = `
local ready = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ready == 0 then
    return false
end
local member = ready[1]
redis.call('ZADD', KEYS[2], ARGV[1], member)
redis.call('ZREM', KEYS[1], member)
return member
`

// reclaimScript moves every member of this consumer's own processing set
// back into the ready set, for startup crash-recovery. It is scoped to the
// consumer's own prior instance, since a fresh consumer id never observes
// another instance's processing set.
//
// KEYS[1] = processing set
// KEYS[2] = ready set
// ARGV[1] = now (seconds)
// returns the number of members reclaimed.
const reclaimScript = `
local members = redis.call('ZRANGE', KEYS[1], 0, -1)
if #members == 0 then
    return 0
end
for _, member in ipairs(members) do
    redis.call('ZADD', KEYS[2], ARGV[1], member)
end
redis.call('DEL', KEYS[1])
return #members
`

// Redis is the durable, cross-process broker backed by a Redis sorted set
// per queue.
type Redis struct {
	client     *redis.Client
	consumerID string
	claim      *redis.Script
	reclaim    *redis.Script
	pollSleep  time.Duration
	cb         *circuitBreaker
}

// NewRedis connects to the Redis instance described by rawURL
// ("redis://host:port[/db]"). Publish, PublishBatch and the claim script
// run behind a circuit breaker so a stalled Redis doesn't pile up blocked
// goroutines across every worker's poll loop — after 5 consecutive failures
// the breaker opens for 10s and those calls fail without reaching Redis.
// Publish and PublishBatch then return at once; the claim's backoff retries
// still run against the open breaker, so Consume returns its error once that
// retry budget is spent. Ack, Nack, Len, Clear and Reclaim call Redis
// directly, without the breaker.
func NewRedis(rawURL string) (*Redis, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("broker: parse redis url: %w", err)
	}
	return NewRedisWithClient(redis.NewClient(opt)), nil
}

// NewRedisWithClient builds a Redis broker around an already-constructed
// client, letting tests point it at a miniredis instance instead of
// parsing a URL.
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{
		client:     client,
		consumerID: uuid.New().String()[:8],
		claim:      redis.NewScript(claimScript),
		reclaim:    redis.NewScript(reclaimScript),
		pollSleep:  100 * time.Millisecond,
		cb:         newCircuitBreaker("broker:redis", 5, 10*time.Second),
	}
}

func readyKey(queue string) string { return "queue:" + queue }

func (b *Redis) processingKey(queue string) string {
	return "processing:" + queue + ":" + b.consumerID
}

func (b *Redis) Publish(ctx context.Context, m *domain.Message, delay time.Duration) error {
	data, err := m.Serialize()
	if err != nil {
		return err
	}
	score := float64(time.Now().Add(delay).UnixNano()) / 1e9
	err = b.cb.call(func() error {
		return b.client.ZAdd(ctx, readyKey(m.TaskName), redis.Z{Score: score, Member: data}).Err()
	})
	if err != nil {
		return fmt.Errorf("broker: redis publish: %w", err)
	}
	return nil
}

// PublishBatch pipelines N ZADDs, one per message, all with the same score
// (now+delay, computed once for the batch). Used by Task.SendBulk to cut
// round-trips.
func (b *Redis) PublishBatch(ctx context.Context, msgs []*domain.Message, delay time.Duration) error {
	if len(msgs) == 0 {
		return nil
	}
	pipe := b.client.Pipeline()
	score := float64(time.Now().Add(delay).UnixNano()) / 1e9
	for _, m := range msgs {
		data, err := m.Serialize()
		if err != nil {
			return err
		}
		pipe.ZAdd(ctx, readyKey(m.TaskName), redis.Z{Score: score, Member: data})
	}
	err := b.cb.call(func() error {
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("broker: redis publish batch: %w", err)
	}
	return nil
}

func (b *Redis) Consume(ctx context.Context, queue string) (*domain.Message, error) {
	ticker := time.NewTicker(b.pollSleep)
	defer ticker.Stop()
	for {
		m, err := b.tryClaim(ctx, queue)
		if err != nil {
			return nil, err
		}
		if m != nil {
			return m, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *Redis) tryClaim(ctx context.Context, queue string) (*domain.Message, error) {
	now := strconv.FormatFloat(float64(time.Now().UnixNano())/1e9, 'f', -1, 64)

	var res any
	op := func() error {
		return b.cb.call(func() error {
			var cbErr error
			res, cbErr = b.claim.Run(ctx, b.client, []string{readyKey(queue), b.processingKey(queue)}, now).Result()
			// redis.Nil means the script returned Lua false: no message is
			// ready right now. That is not a transport failure, so it must
			// not count against the circuit breaker or be retried — the
			// outer poll loop will try again next tick.
			if errors.Is(cbErr, redis.Nil) {
				res = nil
				return nil
			}
			return cbErr
		})
	}
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("broker: redis consume: %w", err)
	}

	member, ok := res.(string)
	if !ok {
		return nil, nil
	}
	return domain.Deserialize(member)
}

func (b *Redis) Ack(ctx context.Context, m *domain.Message) error {
	data, err := m.Serialize()
	if err != nil {
		return err
	}
	if err := b.client.ZRem(ctx, b.processingKey(m.TaskName), data).Err(); err != nil {
		return fmt.Errorf("broker: redis ack: %w", err)
	}
	return nil
}

func (b *Redis) Nack(ctx context.Context, m *domain.Message, delay time.Duration, drop bool) error {
	data, err := m.Serialize()
	if err != nil {
		return err
	}
	if err := b.client.ZRem(ctx, b.processingKey(m.TaskName), data).Err(); err != nil {
		return fmt.Errorf("broker: redis nack: %w", err)
	}
	if drop {
		return nil
	}
	return b.Publish(ctx, m, delay)
}

func (b *Redis) Len(ctx context.Context, queue string) (int64, error) {
	n, err := b.client.ZCard(ctx, readyKey(queue)).Result()
	if err != nil {
		return 0, fmt.Errorf("broker: redis len: %w", err)
	}
	return n, nil
}

func (b *Redis) Clear(ctx context.Context, queue string) error {
	if err := b.client.Del(ctx, readyKey(queue), b.processingKey(queue)).Err(); err != nil {
		return fmt.Errorf("broker: redis clear: %w", err)
	}
	return nil
}

// Reclaim moves every message in this consumer's own processing set for
// queue back into the ready set. Call once per task at worker startup to
// recover from a prior crash of the same consumer identity; it never
// touches another consumer's processing set.
func (b *Redis) Reclaim(ctx context.Context, queue string) (int, error) {
	now := strconv.FormatFloat(float64(time.Now().UnixNano())/1e9, 'f', -1, 64)
	res, err := b.reclaim.Run(ctx, b.client, []string{b.processingKey(queue), readyKey(queue)}, now).Result()
	if err != nil {
		return 0, fmt.Errorf("broker: redis reclaim: %w", err)
	}
	n, _ := res.(int64)
	return int(n), nil
}

func (b *Redis) Close() error {
	return b.client.Close()
}
