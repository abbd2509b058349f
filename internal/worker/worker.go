// Package worker drives the poll/claim/process/ack loop for a single task:
// one goroutine blocks on Broker.Consume, each claimed message is handed to
// a bounded pool of concurrent processors.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	"github.com/taskflowio/ltq/internal/adapter/observability"
	"github.com/taskflowio/ltq/internal/broker"
	"github.com/taskflowio/ltq/internal/domain"
	"github.com/taskflowio/ltq/internal/middleware"
)

// Reclaimer is implemented by brokers that can recover a consumer's own
// stale processing-set entries at startup (only Redis needs this; Memory
// has no crash window to recover from).
type Reclaimer interface {
	Reclaim(ctx context.Context, queue string) (int, error)
}

// Worker runs a single Task against a Broker, honoring the task's own
// middleware chain plus any app-wide middlewares prepended by the caller.
type Worker struct {
	Task        *domain.Task
	Broker      broker.Broker
	Middlewares []middleware.Middleware
	Concurrency int
	PollSleep   time.Duration
	Logger      *slog.Logger
}

// New constructs a Worker for task, composing its own FromOptions
// middlewares after extra (extra is typically the app-wide chain; task
// options are registered innermost-last).
func New(task *domain.Task, b broker.Broker, extra []middleware.Middleware, concurrency int, pollSleep time.Duration, logger *slog.Logger) (*Worker, error) {
	own, err := middleware.FromOptions(task.Options)
	if err != nil {
		return nil, err
	}
	mws := make([]middleware.Middleware, 0, len(extra)+len(own))
	mws = append(mws, extra...)
	mws = append(mws, own...)
	if concurrency <= 0 {
		concurrency = 250
	}
	if pollSleep <= 0 {
		pollSleep = 100 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		Task:        task,
		Broker:      b,
		Middlewares: mws,
		Concurrency: concurrency,
		PollSleep:   pollSleep,
		Logger:      logger.With(slog.String("task", task.Name)),
	}, nil
}

// Run blocks, polling Broker.Consume for task messages and dispatching each
// to the middleware chain under a semaphore bound to Concurrency, until ctx
// is canceled or Consume returns a persistent error, which Run propagates
// to its caller rather than retrying forever. It first reclaims any of this
// consumer's own stale processing-set entries left over from a prior crash.
func (w *Worker) Run(ctx context.Context) error {
	if rc, ok := w.Broker.(Reclaimer); ok {
		if n, err := rc.Reclaim(ctx, w.Task.Name); err != nil {
			w.Logger.Warn("reclaim failed", slog.Any("err", err))
		} else if n > 0 {
			w.Logger.Info("reclaimed stale messages", slog.Int("count", n))
		}
	}

	w.Logger.Info("worker starting", slog.Int("concurrency", w.Concurrency))

	sem := semaphore.NewWeighted(int64(w.Concurrency))
	// However the poll loop exits, wait for every in-flight process call to
	// finish (ack or nack) before returning.
	defer func() { _ = sem.Acquire(context.Background(), int64(w.Concurrency)) }()
	handler := middleware.Chain(w.Middlewares, func(ctx context.Context, m *domain.Message) error {
		return w.Task.Invoke(ctx, m)
	})

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		m, err := w.Broker.Consume(ctx, w.Task.Name)
		if err != nil {
			// ctx was canceled out from under Consume: this is a shutdown,
			// not a broker failure, and must not propagate as an error.
			if ctx.Err() != nil {
				return nil
			}
			// Brokers retry transient failures internally (see
			// broker.Redis.tryClaim's own backoff budget); an error reaching
			// here already exhausted that budget, so it must surface to the
			// errgroup in app.App.Run instead of being retried forever in a
			// loop the caller can never observe or cancel sibling workers
			// over.
			return fmt.Errorf("worker: consume %q: %w", w.Task.Name, err)
		}
		if m == nil {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil
		}
		go func(m *domain.Message) {
			defer sem.Release(1)
			w.process(ctx, handler, m)
		}(m)
	}
}

// process runs one message through the middleware chain and resolves the
// outcome into Ack/Nack-with-delay/Nack-drop: success acks, Retry nacks with
// its delay, and Reject (including a message whose task name does not match
// this worker's task) or any other uncaught error nacks with drop, so it is
// never retried.
func (w *Worker) process(ctx context.Context, handler middleware.Handler, m *domain.Message) {
	ctx, span := observability.Tracer().Start(ctx, "task.process")
	span.SetAttributes(attribute.String("task.name", w.Task.Name), attribute.String("message.id", m.ID))
	defer span.End()

	observability.InflightInc(w.Task.Name)
	defer observability.InflightDec(w.Task.Name)
	observability.RecordConsume(w.Task.Name)
	w.Logger.Debug("processing message", slog.String("id", m.ID))

	defer func() {
		if r := recover(); r != nil {
			w.Logger.Error("panic processing message", slog.Any("panic", r), slog.String("id", m.ID), slog.String("stack", string(debug.Stack())))
			observability.RecordReject(w.Task.Name, "panic")
			_ = w.Broker.Nack(ctx, m, 0, true)
		}
	}()

	var err error
	if m.TaskName != w.Task.Name {
		err = domain.NewReject("task name mismatch")
	} else {
		err = handler(ctx, m)
	}
	if err == nil {
		observability.RecordAck(w.Task.Name)
		if ackErr := w.Broker.Ack(ctx, m); ackErr != nil {
			w.Logger.Error("ack failed", slog.Any("err", ackErr), slog.String("id", m.ID))
		}
		return
	}

	var retry *domain.Retry
	if errors.As(err, &retry) {
		w.Logger.Warn("retrying message", slog.String("id", m.ID), slog.Duration("delay", retry.Delay), slog.String("reason", retry.Reason))
		span.SetStatus(codes.Error, retry.Error())
		observability.RecordRetry(w.Task.Name)
		if nackErr := w.Broker.Nack(ctx, m, retry.Delay, false); nackErr != nil {
			w.Logger.Error("nack failed", slog.Any("err", nackErr), slog.String("id", m.ID))
		}
		return
	}

	var reject *domain.Reject
	reason := "error"
	if errors.As(err, &reject) {
		reason = reject.Reason
		w.Logger.Warn("rejected message", slog.String("id", m.ID), slog.String("reason", reason))
	} else {
		w.Logger.Error("uncaught error processing message", slog.Any("err", err), slog.String("id", m.ID), slog.String("stack", string(debug.Stack())))
	}
	span.SetStatus(codes.Error, err.Error())
	observability.RecordReject(w.Task.Name, reason)
	if nackErr := w.Broker.Nack(ctx, m, 0, true); nackErr != nil {
		w.Logger.Error("nack (drop) failed", slog.Any("err", nackErr), slog.String("id", m.ID))
	}
}
