// Package app aggregates a set of per-task workers under a shared app-wide
// middleware chain and runs them together.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taskflowio/ltq/internal/broker"
	"github.com/taskflowio/ltq/internal/domain"
	"github.com/taskflowio/ltq/internal/middleware"
	"github.com/taskflowio/ltq/internal/worker"
)

// App owns a Broker and a registry of tasks, each run as its own Worker.
// App-wide middlewares (e.g. a Reporter hook) are prepended to every
// worker's own chain at registration time.
type App struct {
	Broker      broker.Broker
	Concurrency int
	PollSleep   time.Duration
	Logger      *slog.Logger

	middlewares []middleware.Middleware
	workers     map[string]*worker.Worker
}

// New constructs an empty App bound to b.
func New(b broker.Broker, concurrency int, pollSleep time.Duration, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		Broker:      b,
		Concurrency: concurrency,
		PollSleep:   pollSleep,
		Logger:      logger,
		workers:     make(map[string]*worker.Worker),
	}
}

// Use registers an app-wide middleware, applied to every task registered
// after this call. Tasks registered before it keep the chain they were
// built with.
func (a *App) Use(mw middleware.Middleware) {
	a.middlewares = append(a.middlewares, mw)
}

// RegisterTask builds and starts tracking a Worker for task. It is an error
// to register the same task name twice.
func (a *App) RegisterTask(task *domain.Task) error {
	if _, exists := a.workers[task.Name]; exists {
		return fmt.Errorf("app: worker %q already registered", task.Name)
	}
	w, err := worker.New(task, a.Broker, a.middlewares, a.Concurrency, a.PollSleep, a.Logger)
	if err != nil {
		return fmt.Errorf("app: register task %q: %w", task.Name, err)
	}
	a.workers[task.Name] = w
	return nil
}

// Run starts every registered worker in its own goroutine and blocks until
// ctx is canceled or any worker returns an error, at which point all other
// workers are stopped (errgroup cancels the shared context on first error)
// rather than quietly leaving the rest running with one worker gone.
func (a *App) Run(ctx context.Context) error {
	if len(a.workers) == 0 {
		return fmt.Errorf("app: no workers registered")
	}
	g, ctx := errgroup.WithContext(ctx)
	for name, w := range a.workers {
		w := w
		name := name
		g.Go(func() error {
			if err := w.Run(ctx); err != nil {
				return fmt.Errorf("app: worker %q: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
