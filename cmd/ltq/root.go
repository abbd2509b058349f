// Package main provides the ltq CLI: a thin cobra wrapper that drives
// operational commands (clear, size) against whatever broker the
// embedding program configures, and an Execute entry point a program's
// own main() calls to run its App.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taskflowio/ltq/internal/app"
	"github.com/taskflowio/ltq/internal/broker"
)

var brokerURL string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ltq",
		Short: "ltq manages and runs a distributed background-task queue",
	}
	root.PersistentFlags().StringVar(&brokerURL, "broker-url", "redis://localhost:6379", "broker connection URL")
	root.AddCommand(newClearCmd(), newSizeCmd())
	return root
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <task_name>",
		Short: "Delete every message queued for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := broker.FromURL(brokerURL)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()
			if err := b.Clear(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", args[0])
			return nil
		},
	}
}

func newSizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "size <task_name>",
		Short: "Print the number of messages ready for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := broker.FromURL(brokerURL)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()
			n, err := b.Len(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

// Execute runs a as the CLI's "run" behavior. Rather than dynamically
// importing an app object by name, the caller's own main() builds its App
// (tasks registered, middlewares attached) and passes it here; Execute
// wires signal-based cancellation and parses the process's actual argv for
// the clear/size subcommands.
func Execute(a *app.App) {
	root := newRootCmd()
	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run every registered worker until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer cancel()
			slog.Info("ltq run started, send SIGTERM or SIGINT to stop")
			return a.Run(ctx)
		},
	})

	if err := root.Execute(); err != nil {
		slog.Error("ltq command failed", slog.Any("err", err))
		os.Exit(1)
	}
}
