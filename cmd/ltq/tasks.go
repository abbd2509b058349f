package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/taskflowio/ltq/internal/app"
	"github.com/taskflowio/ltq/internal/broker"
	"github.com/taskflowio/ltq/internal/domain"
)

// registerTasks wires every task this deployment runs. A real embedding
// program would list its own business tasks here; "echo" stands in as the
// one illustrative task so the binary is runnable out of the box.
func registerTasks(a *app.App, b broker.Broker) error {
	maxTries := 5
	maxAge := 10 * time.Minute

	echo, err := domain.NewTask("echo", func(ctx context.Context, args []any, kwargs map[string]any) error {
		slog.Info("echo", slog.Any("args", args), slog.Any("kwargs", kwargs))
		return nil
	}, domain.Options{MaxTries: &maxTries, MaxAge: &maxAge}, b)
	if err != nil {
		return err
	}
	return a.RegisterTask(echo)
}
