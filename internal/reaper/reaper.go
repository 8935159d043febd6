// Package reaper runs scheduled maintenance: jobs stuck in processing are
// failed and leftover uploads are removed.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	// StaleReason is recorded on jobs failed by a sweep.
	StaleReason = "Job exceeded processing deadline"
	// InterruptedReason is recorded on jobs orphaned by a restart.
	InterruptedReason = "Job interrupted by server restart"
)

// JobSweeper fails processing jobs created before cutoff.
type JobSweeper interface {
	FailStale(ctx context.Context, cutoff time.Time, reason string, at time.Time) (int64, error)
}

type Config struct {
	Schedule        string
	StaleAfter      time.Duration
	UploadDir       string
	UploadRetention time.Duration
}

type Reaper struct {
	jobs   JobSweeper
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func New(jobs JobSweeper, cfg Config, logger *slog.Logger) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{jobs: jobs, cfg: cfg, logger: logger, now: time.Now}
}

// Run schedules Sweep on cfg.Schedule and blocks until ctx is done. A sweep
// still running at shutdown is waited for.
func (r *Reaper) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(r.cfg.Schedule, func() { r.Sweep(ctx) }); err != nil {
		return fmt.Errorf("invalid reaper schedule %q: %w", r.cfg.Schedule, err)
	}
	c.Start()
	r.logger.InfoContext(ctx, "reaper started", "schedule", r.cfg.Schedule)
	<-ctx.Done()
	<-c.Stop().Done()
	r.logger.Info("reaper stopped")
	return nil
}

// FailInterrupted fails every job still processing that was created before
// startedAt. It is meant for process start when queued batches do not
// survive a restart, so nothing will ever pick those jobs up.
func (r *Reaper) FailInterrupted(ctx context.Context, startedAt time.Time) (int64, error) {
	n, err := r.jobs.FailStale(ctx, startedAt, InterruptedReason, r.now())
	if err != nil {
		return 0, fmt.Errorf("fail interrupted jobs: %w", err)
	}
	if n > 0 {
		r.logger.WarnContext(ctx, "failed jobs interrupted by restart", "count", n)
	}
	return n, nil
}

// Sweep performs one maintenance pass.
func (r *Reaper) Sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	now := r.now()
	if r.cfg.StaleAfter > 0 {
		n, err := r.jobs.FailStale(ctx, now.Add(-r.cfg.StaleAfter), StaleReason, now)
		switch {
		case err != nil:
			r.logger.ErrorContext(ctx, "fail stale jobs", "error", err)
		case n > 0:
			r.logger.WarnContext(ctx, "failed stale jobs", "count", n)
		}
	}
	if r.cfg.UploadDir != "" && r.cfg.UploadRetention > 0 {
		n, err := PurgeOlderThan(r.cfg.UploadDir, now.Add(-r.cfg.UploadRetention))
		if err != nil {
			r.logger.ErrorContext(ctx, "purge uploads", "dir", r.cfg.UploadDir, "error", err)
		}
		if n > 0 {
			r.logger.InfoContext(ctx, "purged uploads", "count", n)
		}
	}
}

// PurgeOlderThan removes regular files in dir last modified before cutoff.
// Subdirectories are left alone. A missing dir is not an error.
func PurgeOlderThan(dir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
