package middleware

import (
	"context"
	"time"

	"github.com/taskflowio/ltq/internal/domain"
)

// MaxAge rejects a message whose ctx.created_at is older than Max. It has
// no exit action.
type MaxAge struct {
	Max time.Duration
}

func (mw MaxAge) Handle(ctx context.Context, m *domain.Message, next Handler) error {
	if age := time.Since(m.CreatedAt()); age > mw.Max {
		return domain.NewReject("max age exceeded")
	}
	return next(ctx, m)
}
