package middleware

import (
	"context"
	"errors"

	"github.com/taskflowio/ltq/internal/domain"
)

// ExceptionReporter forwards an escaped exception to an external
// observability backend. Only the hook is defined here — concrete
// backends (e.g. Sentry) are an external collaborator, out of scope for
// the core library.
type ExceptionReporter interface {
	Report(ctx context.Context, m *domain.Message, err error)
}

// NoopReporter discards every report. It is the default when no reporter
// is configured.
type NoopReporter struct{}

func (NoopReporter) Report(ctx context.Context, m *domain.Message, err error) {}

// Reporter forwards any escaped, non-signalling exception to Hook and
// re-raises it unchanged. Reject and Retry are control-flow signals, not
// exceptions, and are never reported.
type Reporter struct {
	Hook ExceptionReporter
}

func (mw Reporter) Handle(ctx context.Context, m *domain.Message, next Handler) error {
	err := next(ctx, m)
	if err == nil {
		return nil
	}
	var reject *domain.Reject
	var retry *domain.Retry
	if errors.As(err, &reject) || errors.As(err, &retry) {
		return err
	}
	if mw.Hook != nil {
		mw.Hook.Report(ctx, m, err)
	}
	return err
}
