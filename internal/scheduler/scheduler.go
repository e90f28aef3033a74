// Package scheduler runs cron-triggered workflow executions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gemihub/gemiflow/internal/store"
)

// Launcher starts workflow executions. Satisfied by the engine wiring
// (avoids an import cycle).
type Launcher interface {
	LaunchWorkflow(ctx context.Context, workflowID, owner string) (string, error)
}

// Scheduler polls the store for due schedules and launches them.
type Scheduler struct {
	store    store.Store
	launcher Launcher
	parser   cron.Parser
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{} // schedule IDs currently executing (dedup)
}

// New creates a Scheduler.
func New(s store.Store, launcher Launcher, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    s,
		launcher: launcher,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// Start launches the background scheduling loop with a 60s ticker.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	// Run an initial tick immediately.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick checks all enabled schedules and launches those that are due.
func (s *Scheduler) tick(ctx context.Context) {
	schedules, err := s.store.ListSchedules(ctx, true)
	if err != nil {
		s.logger.Error("failed to list schedules", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for i := range schedules {
		sched := &schedules[i]
		due, err := s.isDue(sched, now)
		if err != nil {
			s.logger.Error("invalid cron expression",
				slog.String("schedule_id", sched.ID),
				slog.String("cron", sched.CronExpr),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !due {
			continue
		}
		if !s.tryAcquire(sched.ID) {
			continue // already running (dedup)
		}
		if err := s.run(ctx, sched, now); err != nil {
			s.logger.Error("failed to run schedule",
				slog.String("schedule_id", sched.ID),
				slog.String("error", err.Error()),
			)
		}
		s.release(sched.ID)
	}
}

// isDue reports whether the schedule's next fire time from its last run (or
// creation) has passed.
func (s *Scheduler) isDue(sched *store.Schedule, now time.Time) (bool, error) {
	from := sched.CreatedAt
	if sched.LastRunAt != nil {
		from = *sched.LastRunAt
	}
	next, err := s.NextRun(sched.CronExpr, from)
	if err != nil {
		return false, err
	}
	return !next.After(now), nil
}

// run launches the schedule's workflow and records the run time.
func (s *Scheduler) run(ctx context.Context, sched *store.Schedule, now time.Time) error {
	s.logger.Info("launching scheduled workflow",
		slog.String("schedule_id", sched.ID),
		slog.String("workflow_id", sched.WorkflowID),
	)

	executionID, err := s.launcher.LaunchWorkflow(ctx, sched.WorkflowID, "scheduler")
	if err != nil {
		// Record the attempt even on failure so a broken workflow does not
		// retrigger every tick.
		_ = s.store.MarkScheduleRun(ctx, sched.ID, now)
		return err
	}

	s.logger.Info("scheduled execution started",
		slog.String("schedule_id", sched.ID),
		slog.String("execution_id", executionID),
	)
	return s.store.MarkScheduleRun(ctx, sched.ID, now)
}

// tryAcquire returns true and marks the schedule as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(id string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[id]; ok {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

// release removes the schedule from the in-flight set.
func (s *Scheduler) release(id string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, id)
}

// NextRun computes the next fire time for a cron expression.
func (s *Scheduler) NextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Validate checks a cron expression without scheduling anything.
func (s *Scheduler) Validate(cronExpr string) error {
	_, err := s.parser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}
