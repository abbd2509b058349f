package domain

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

var maxRatePattern = regexp.MustCompile(`^[0-9]+/[smh]$`)

func init() {
	_ = validate.RegisterValidation("maxrate", func(fl validator.FieldLevel) bool {
		v := fl.Field().String()
		if v == "" {
			return true
		}
		return maxRatePattern.MatchString(v)
	})
}

// Options is the closed set of per-task policy knobs: MaxTries, MaxAge,
// MaxRate. A nil/zero field means "no limit" for that axis.
type Options struct {
	MaxTries *int           `validate:"omitempty,gte=1"`
	MaxAge   *time.Duration `validate:"omitempty"`
	MaxRate  string         `validate:"omitempty,maxrate"`
}

// Validate rejects malformed options before a task is ever registered,
// rather than failing lazily at the first poll.
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("domain: invalid task options: %w", err)
	}
	if o.MaxAge != nil && *o.MaxAge <= 0 {
		return fmt.Errorf("domain: invalid task options: max_age must be positive")
	}
	return nil
}

// Fn is the user callable a Task binds. It receives the positional and
// keyword payload of the message that triggered it.
type Fn func(ctx context.Context, args []any, kwargs map[string]any) error

// Publisher is the subset of Broker a Task needs to enqueue messages. It is
// declared here (rather than importing the broker package) to keep domain
// free of a dependency on broker: domain defines ports, adapters implement
// them.
type Publisher interface {
	Publish(ctx context.Context, m *Message, delay time.Duration) error
}

// BatchPublisher is an optional capability a Publisher may also implement
// to pipeline a whole SendBulk call into a single round trip (the Redis
// broker does; Memory does not need to).
type BatchPublisher interface {
	PublishBatch(ctx context.Context, msgs []*Message, delay time.Duration) error
}

// Task binds a name to a callable and its options. Messages are constructed
// via Message/Send; the callable itself is invoked only by the worker,
// never by Send.
type Task struct {
	Name    string
	Fn      Fn
	Options Options

	broker Publisher
	now    func() time.Time
}

// NewTask validates opts and returns a Task bound to broker for publishing.
func NewTask(name string, fn Fn, opts Options, broker Publisher) (*Task, error) {
	if name == "" {
		return nil, fmt.Errorf("domain: task name must not be empty")
	}
	if fn == nil {
		return nil, fmt.Errorf("domain: task %q: fn must not be nil", name)
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("domain: task %q: %w", name, err)
	}
	return &Task{Name: name, Fn: fn, Options: opts, broker: broker, now: time.Now}, nil
}

// Message constructs a fresh envelope for an invocation of this task.
func (t *Task) Message(args []any, kwargs map[string]any) *Message {
	return NewMessage(t.Name, args, kwargs, t.now())
}

// Send publishes a new message for this task and returns its id.
func (t *Task) Send(ctx context.Context, args []any, kwargs map[string]any) (string, error) {
	m := t.Message(args, kwargs)
	if err := t.broker.Publish(ctx, m, 0); err != nil {
		return "", fmt.Errorf("domain: task %q: send: %w", t.Name, err)
	}
	return m.ID, nil
}

// SendBulk publishes a batch of pre-built messages, preserving per-message
// publish semantics (each keeps its own id/ctx). When the bound broker
// implements BatchPublisher, the whole batch is pipelined in one round
// trip; otherwise each message is published individually.
func (t *Task) SendBulk(ctx context.Context, msgs []*Message) ([]string, error) {
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	if bp, ok := t.broker.(BatchPublisher); ok {
		if err := bp.PublishBatch(ctx, msgs, 0); err != nil {
			return nil, fmt.Errorf("domain: task %q: send_bulk: %w", t.Name, err)
		}
		return ids, nil
	}
	for _, m := range msgs {
		if err := t.broker.Publish(ctx, m, 0); err != nil {
			return ids, fmt.Errorf("domain: task %q: send_bulk: %w", t.Name, err)
		}
	}
	return ids, nil
}

// Invoke calls the bound callable directly with the message's payload. Used
// by the worker after the middleware chain has admitted the message.
func (t *Task) Invoke(ctx context.Context, m *Message) error {
	return t.Fn(ctx, m.Args, m.Kwargs)
}

// Publish sends a pre-built message for this task unchanged. The scheduler
// uses it to publish the fresh envelope it builds with Message() for each
// firing of a job.
func (t *Task) Publish(ctx context.Context, m *Message) error {
	if err := t.broker.Publish(ctx, m, 0); err != nil {
		return fmt.Errorf("domain: task %q: publish: %w", t.Name, err)
	}
	return nil
}
