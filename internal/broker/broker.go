// Package broker implements the durable (Redis) and in-process message
// brokers: publish/consume/ack/nack over a ready set and a per-consumer
// processing set, with atomic claim semantics.
package broker

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/taskflowio/ltq/internal/domain"
)

// Broker is the storage/transport holding messages between producers and
// consumers. Two implementations satisfy it: Redis (durable, cross-process)
// and Memory (in-process, used for tests and embedded runs).
type Broker interface {
	// Publish places m into the ready set for m.TaskName, visible after delay.
	Publish(ctx context.Context, m *domain.Message, delay time.Duration) error
	// Consume blocks until a message is visible for queue, claims it
	// atomically into this consumer's processing set, and returns it.
	Consume(ctx context.Context, queue string) (*domain.Message, error)
	// Ack removes m from the processing set; it was handled successfully.
	Ack(ctx context.Context, m *domain.Message) error
	// Nack removes m from the processing set and, unless drop, re-publishes
	// it with the given delay.
	Nack(ctx context.Context, m *domain.Message, delay time.Duration, drop bool) error
	// Len reports the ready-set cardinality for queue.
	Len(ctx context.Context, queue string) (int64, error)
	// Clear deletes both the ready set and this consumer's processing set
	// for queue.
	Clear(ctx context.Context, queue string) error
	// Close releases any underlying connection.
	Close() error
}

// FromURL parses a broker URL and constructs the matching implementation.
// scheme ∈ {memory, redis}; dispatch is by tagged scheme, never reflection.
func FromURL(rawURL string) (Broker, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("broker: parse url %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case "memory":
		return NewMemory(), nil
	case "redis":
		return NewRedis(rawURL)
	default:
		return nil, fmt.Errorf("broker: unknown scheme %q", u.Scheme)
	}
}
