package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"NewsDigest/internal/config"
	"NewsDigest/internal/ports"
	"NewsDigest/pkg/logger"
)

// CronScheduler drives the pipeline on a fixed interval plus an optional daily cron entry.
type CronScheduler struct {
	specs      []string
	location   *time.Location
	runOnStart bool
	logger     *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler from configuration.
func NewCronScheduler(cfg config.SchedulerConfig, log *slog.Logger) *CronScheduler {
	return &CronScheduler{
		specs:      Specs(cfg),
		location:   cfg.Location(),
		runOnStart: cfg.RunOnStart,
		logger:     log,
	}
}

// Specs returns the cron expressions derived from the scheduler configuration.
func Specs(cfg config.SchedulerConfig) []string {
	specs := make([]string, 0, 2)
	if cfg.Interval > 0 {
		specs = append(specs, "@every "+cfg.Interval.String())
	}
	if cfg.DailyCron != "" {
		specs = append(specs, cfg.DailyCron)
	}
	return specs
}

// Start registers the job on every spec. Overlapping ticks are skipped while a run is in flight.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return nil
	}

	cronLogger := cron.PrintfLogger(logger.FromSlog(c.logger, "cron", slog.LevelDebug))
	runner := cron.New(
		cron.WithLocation(c.location),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	wrapped := cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		job(time.Now().In(c.location))
	})
	for _, spec := range c.specs {
		if _, err := runner.AddJob(spec, wrapped); err != nil {
			return fmt.Errorf("add cron job %q: %w", spec, err)
		}
	}

	c.cron = runner
	runner.Start()

	if c.runOnStart {
		// Routed through the chain so it is skipped if the first tick fires meanwhile.
		entries := runner.Entries()
		if len(entries) > 0 {
			go entries[0].WrappedJob.Run()
		} else {
			go wrapped.Run()
		}
	}
	return nil
}

// Stop halts the scheduler and waits for running jobs or ctx expiry.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	runner := c.cron
	c.cron = nil
	c.mu.Unlock()

	if runner == nil {
		return nil
	}

	done := runner.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
