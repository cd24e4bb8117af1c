package accesslog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/ganymede/pkg/config"
)

// Pruner removes aged and excess records from the SQLite sink.
type Pruner struct {
	sink   *SQLiteSink
	cfg    config.SQLiteConfig
	logger *slog.Logger
}

// NewPruner creates a pruner for the sink.
func NewPruner(sink *SQLiteSink, cfg config.SQLiteConfig) *Pruner {
	return &Pruner{
		sink:   sink,
		cfg:    cfg,
		logger: slog.Default().With("component", "accesslog.pruner"),
	}
}

// Prune runs one pruning cycle: age-based first, then the row cap.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var deleted int64

	if p.cfg.RetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -p.cfg.RetentionDays)
		n, err := p.sink.PruneOlderThan(ctx, cutoff)
		if err != nil {
			return deleted, fmt.Errorf("age-based pruning: %w", err)
		}
		deleted += n
	}

	if p.cfg.MaxRecords > 0 {
		n, err := p.sink.PruneToMaxRecords(ctx, p.cfg.MaxRecords)
		if err != nil {
			return deleted, fmt.Errorf("row-cap pruning: %w", err)
		}
		deleted += n
	}

	return deleted, nil
}

// Scheduler runs the pruner on a cron schedule (e.g. "0 3 * * *" for daily
// at 3 AM).
type Scheduler struct {
	pruner  *Pruner
	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

// NewScheduler creates a scheduler for the pruner.
func NewScheduler(pruner *Pruner) *Scheduler {
	return &Scheduler{
		pruner: pruner,
		cron:   cron.New(),
		logger: slog.Default().With("component", "accesslog.scheduler"),
	}
}

// Start begins scheduled pruning. An empty schedule disables it. The
// scheduler stops itself when the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule := s.pruner.cfg.PruneSchedule
	if schedule == "" {
		s.logger.Info("prune schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}

	if _, err := s.cron.AddFunc(schedule, func() {
		s.runPruning(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("access-log retention scheduler started",
		"schedule", schedule,
		"retention_days", s.pruner.cfg.RetentionDays,
		"max_records", s.pruner.cfg.MaxRecords,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop halts scheduled pruning, waiting for a running cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("access-log retention scheduler stopped")
}

func (s *Scheduler) runPruning(ctx context.Context) {
	deleted, err := s.pruner.Prune(ctx)
	if err != nil {
		s.logger.Error("scheduled pruning failed", "error", err)
		return
	}
	s.logger.Info("scheduled pruning completed", "deleted", deleted)
}
