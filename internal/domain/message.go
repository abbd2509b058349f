// Package domain defines the message envelope, task binding, and the
// signalling errors the middleware chain and worker use to classify outcomes.
package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Context keys recognized in Message.Ctx.
const (
	CtxCreatedAt   = "created_at"
	CtxTries       = "tries"
	CtxRateLimited = "rate_limited"
)

// Message is the immutable envelope describing a single invocation of a task.
// Ctx is the only field mutated across attempts (tries, rate_limited).
type Message struct {
	TaskName string         `json:"task_name"`
	ID       string         `json:"id"`
	Args     []any          `json:"args"`
	Kwargs   map[string]any `json:"kwargs"`
	Ctx      map[string]any `json:"ctx"`
}

// NewMessage builds an envelope for taskName with a fresh id and
// ctx.created_at stamped to now. Args/kwargs may be nil.
func NewMessage(taskName string, args []any, kwargs map[string]any, now time.Time) *Message {
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return &Message{
		TaskName: taskName,
		ID:       ulid.Make().String(),
		Args:     args,
		Kwargs:   kwargs,
		Ctx: map[string]any{
			CtxCreatedAt: float64(now.Unix()),
		},
	}
}

// Clone returns a deep-enough copy suitable for re-publishing: args/kwargs
// are shared (caller is expected to treat them as read-only after
// construction) but Ctx is copied so mutating the clone's ctx never affects
// the original.
func (m *Message) Clone() *Message {
	ctx := make(map[string]any, len(m.Ctx))
	for k, v := range m.Ctx {
		ctx[k] = v
	}
	return &Message{
		TaskName: m.TaskName,
		ID:       m.ID,
		Args:     m.Args,
		Kwargs:   m.Kwargs,
		Ctx:      ctx,
	}
}

// Tries returns ctx.tries, defaulting to 0 when absent or of an unexpected type.
func (m *Message) Tries() int {
	return intCtx(m.Ctx, CtxTries)
}

// SetTries sets ctx.tries.
func (m *Message) SetTries(n int) {
	m.Ctx[CtxTries] = n
}

// CreatedAt returns ctx.created_at as a time.Time, the zero time if absent.
func (m *Message) CreatedAt() time.Time {
	v, ok := m.Ctx[CtxCreatedAt]
	if !ok {
		return time.Time{}
	}
	switch n := v.(type) {
	case float64:
		return time.Unix(int64(n), 0)
	case int64:
		return time.Unix(n, 0)
	case int:
		return time.Unix(int64(n), 0)
	default:
		return time.Time{}
	}
}

// RateLimited reports whether ctx.rate_limited is set and true.
func (m *Message) RateLimited() bool {
	v, ok := m.Ctx[CtxRateLimited]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// SetRateLimited sets or clears ctx.rate_limited.
func (m *Message) SetRateLimited(v bool) {
	if !v {
		delete(m.Ctx, CtxRateLimited)
		return
	}
	m.Ctx[CtxRateLimited] = true
}

func intCtx(ctx map[string]any, key string) int {
	v, ok := ctx[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}

// Serialize renders the wire format: exactly the five keys task_name, id,
// args, kwargs, ctx, per the broker key-layout contract.
func (m *Message) Serialize() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("domain: serialize message: %w", err)
	}
	return string(b), nil
}

// Deserialize parses the wire format produced by Serialize.
func Deserialize(data string) (*Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("domain: deserialize message: %w", err)
	}
	if m.Args == nil {
		m.Args = []any{}
	}
	if m.Kwargs == nil {
		m.Kwargs = map[string]any{}
	}
	if m.Ctx == nil {
		m.Ctx = map[string]any{}
	}
	return &m, nil
}

// Equal reports semantic equality over the five envelope fields, the
// round-trip invariant serialize/deserialize must preserve. Numeric ctx
// values are compared after normalizing to float64 since JSON numbers
// decode to float64 regardless of how they were stamped.
func (m *Message) Equal(other *Message) bool {
	if m == nil || other == nil {
		return m == other
	}
	if m.TaskName != other.TaskName || m.ID != other.ID {
		return false
	}
	if len(m.Args) != len(other.Args) {
		return false
	}
	a1, _ := json.Marshal(m.Args)
	a2, _ := json.Marshal(other.Args)
	if string(a1) != string(a2) {
		return false
	}
	k1, _ := json.Marshal(m.Kwargs)
	k2, _ := json.Marshal(other.Kwargs)
	if string(k1) != string(k2) {
		return false
	}
	c1, _ := json.Marshal(m.Ctx)
	c2, _ := json.Marshal(other.Ctx)
	return string(c1) == string(c2)
}
