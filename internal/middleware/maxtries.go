package middleware

import (
	"context"

	"github.com/taskflowio/ltq/internal/domain"
)

// MaxTries rejects a message once it has already been attempted Max times.
// On exit, it increments ctx.tries for any escaped error except when the
// attempt was rate-limited — a rate-limit retry is not a real attempt.
type MaxTries struct {
	Max int
}

func (mw MaxTries) Handle(ctx context.Context, m *domain.Message, next Handler) error {
	if m.Tries() >= mw.Max {
		return domain.NewReject("max tries exceeded")
	}

	err := next(ctx, m)
	// ctx.rate_limited may have been set just now, inside next, by the
	// rate-limit middleware further down the chain — check it after next
	// returns, not before.
	if err != nil && !m.RateLimited() {
		m.SetTries(m.Tries() + 1)
	}
	m.SetRateLimited(false)
	return err
}
