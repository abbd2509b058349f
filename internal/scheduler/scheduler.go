// Package scheduler publishes task messages on a cron schedule. Cron
// expressions are parsed with robfig/cron/v3's standard
// parser, but the library's own background runner is not used: the
// scheduler drives its own explicit tick loop so that catch-up coalescing
// (at most one firing per job per tick) and per-job failure isolation are
// guaranteed rather than left to robfig/cron's at-most-once-per-entry
// semantics.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/taskflowio/ltq/internal/adapter/observability"
	"github.com/taskflowio/ltq/internal/domain"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

type job struct {
	name     string
	expr     string
	schedule cron.Schedule
	task     *domain.Task
	args     []any
	kwargs   map[string]any
	nextFire time.Time
}

// Scheduler ticks every PollInterval, publishing a fresh message for each
// job whose nextFire has passed.
type Scheduler struct {
	PollInterval time.Duration
	Logger       *slog.Logger

	// nowFunc is the clock Cron and tick use to compute/compare fire times.
	// It defaults to time.Now; tests substitute a fake clock so cron
	// semantics (next-fire computation, catch-up on a due job) can be
	// verified with fabricated timestamps instead of sleeping through real
	// minutes.
	nowFunc func() time.Time

	mu   sync.Mutex
	jobs []*job
}

// New constructs a Scheduler that ticks every pollInterval.
func New(pollInterval time.Duration, logger *slog.Logger) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{PollInterval: pollInterval, Logger: logger, nowFunc: time.Now}
}

// Cron registers a job firing task on expr (a standard 5-field cron
// expression), computing its first nextFire immediately.
func (s *Scheduler) Cron(expr string, task *domain.Task, args []any, kwargs map[string]any) error {
	schedule, err := parser.Parse(expr)
	if err != nil {
		return fmt.Errorf("scheduler: parse cron expr %q: %w", expr, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &job{
		name:     task.Name,
		expr:     expr,
		schedule: schedule,
		task:     task,
		args:     args,
		kwargs:   kwargs,
		nextFire: schedule.Next(s.nowFunc()),
	})
	return nil
}

// fileJob is one entry of the YAML job file loaded by LoadFile.
type fileJob struct {
	Expr   string         `yaml:"expr"`
	Task   string         `yaml:"task"`
	Args   []any          `yaml:"args"`
	Kwargs map[string]any `yaml:"kwargs"`
}

// LoadFile loads a YAML document of cron job definitions, resolving each
// entry's "task" name against registry, so schedules can be externalized
// into configuration rather than hardcoded.
func (s *Scheduler) LoadFile(path string, registry map[string]*domain.Task) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("scheduler: read job file %q: %w", path, err)
	}
	var entries []fileJob
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("scheduler: parse job file %q: %w", path, err)
	}
	for _, e := range entries {
		task, ok := registry[e.Task]
		if !ok {
			return fmt.Errorf("scheduler: job file %q: unknown task %q", path, e.Task)
		}
		if err := s.Cron(e.Expr, task, e.Args, e.Kwargs); err != nil {
			return fmt.Errorf("scheduler: job file %q: %w", path, err)
		}
	}
	return nil
}

// Run blocks, ticking every PollInterval and publishing due jobs, until ctx
// is canceled. A publish error is logged and that job's nextFire is left
// unchanged so it is retried next tick; other due jobs still fire
// independently.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	for _, j := range s.jobs {
		s.Logger.Info("scheduled job registered", slog.String("task", j.name), slog.String("expr", j.expr), slog.Time("next_fire", j.nextFire))
	}
	s.mu.Unlock()

	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx, s.nowFunc())
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	due := make([]*job, 0)
	for _, j := range s.jobs {
		if !now.Before(j.nextFire) {
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		msg := j.task.Message(j.args, j.kwargs)
		if err := j.task.Publish(ctx, msg); err != nil {
			s.Logger.Error("scheduled publish failed", slog.String("task", j.name), slog.Any("err", err))
			observability.RecordSchedulerPublishError(j.name)
			continue
		}
		observability.RecordSchedulerFire(j.name)
		s.Logger.Info("scheduled job fired", slog.String("task", j.name), slog.String("id", msg.ID))
		j.nextFire = j.schedule.Next(now)
	}
}
