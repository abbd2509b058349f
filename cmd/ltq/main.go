package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/taskflowio/ltq/internal/adapter/observability"
	"github.com/taskflowio/ltq/internal/app"
	"github.com/taskflowio/ltq/internal/broker"
	"github.com/taskflowio/ltq/internal/config"
	"github.com/taskflowio/ltq/internal/httpserver"
	"github.com/taskflowio/ltq/internal/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("err", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	b, err := broker.FromURL(cfg.BrokerURL)
	if err != nil {
		slog.Error("broker init failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() { _ = b.Close() }()

	a := app.New(b, cfg.Concurrency, cfg.PollInterval, logger)
	a.Use(middleware.Reporter{Hook: middleware.NoopReporter{}})

	if err := registerTasks(a, b); err != nil {
		slog.Error("task registration failed", slog.Any("err", err))
		os.Exit(1)
	}

	admin := &httpserver.Server{Broker: b}
	go func() {
		slog.Info("admin http server listening", slog.String("addr", cfg.AdminAddr))
		if err := http.ListenAndServe(cfg.AdminAddr, admin.Router()); err != nil {
			slog.Error("admin http server error", slog.Any("err", err))
		}
	}()

	Execute(a)
}
