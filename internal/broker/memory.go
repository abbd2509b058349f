package broker

import (
	"context"
	"sync"
	"time"

	"github.com/taskflowio/ltq/internal/domain"
)

// pollInterval is how often Consume rechecks an empty queue.
const pollInterval = 20 * time.Millisecond

// Memory is the in-process broker: a mapping from task name to
// serialized-message -> visibility score. There is no separate processing
// set — Ack is a no-op and Nack either re-publishes or drops.
type Memory struct {
	mu     sync.Mutex
	queues map[string]map[string]float64
}

// NewMemory constructs an empty in-process broker.
func NewMemory() *Memory {
	return &Memory{queues: make(map[string]map[string]float64)}
}

func (b *Memory) Publish(ctx context.Context, m *domain.Message, delay time.Duration) error {
	data, err := m.Serialize()
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[m.TaskName]
	if !ok {
		q = make(map[string]float64)
		b.queues[m.TaskName] = q
	}
	q[data] = float64(time.Now().Add(delay).UnixNano()) / 1e9
	return nil
}

func (b *Memory) Consume(ctx context.Context, queue string) (*domain.Message, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if m, ok := b.tryClaim(queue); ok {
			return m, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *Memory) tryClaim(queue string) (*domain.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[queue]
	if !ok {
		return nil, false
	}
	now := float64(time.Now().UnixNano()) / 1e9
	var earliestData string
	var earliestScore float64
	found := false
	for data, score := range q {
		if score > now {
			continue
		}
		if !found || score < earliestScore {
			earliestData, earliestScore, found = data, score, true
		}
	}
	if !found {
		return nil, false
	}
	delete(q, earliestData)
	m, err := domain.Deserialize(earliestData)
	if err != nil {
		return nil, false
	}
	return m, true
}

// Ack is a no-op: the in-process variant models no processing set.
func (b *Memory) Ack(ctx context.Context, m *domain.Message) error { return nil }

func (b *Memory) Nack(ctx context.Context, m *domain.Message, delay time.Duration, drop bool) error {
	if drop {
		return nil
	}
	return b.Publish(ctx, m, delay)
}

func (b *Memory) Len(ctx context.Context, queue string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.queues[queue])), nil
}

func (b *Memory) Clear(ctx context.Context, queue string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.queues, queue)
	return nil
}

func (b *Memory) Close() error { return nil }
