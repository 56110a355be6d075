package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// UsageResetter resets the usage counters of every key.
type UsageResetter interface {
	ResetUsage(ctx context.Context) (int, error)
}

// Scheduler runs the periodic usage reset.
type Scheduler struct {
	resetter UsageResetter
	spec     string
	logger   *zap.Logger
	c        *cron.Cron
	timeout  time.Duration
}

// NewScheduler creates a scheduler that calls resetter on the cron spec (for example "@daily").
func NewScheduler(resetter UsageResetter, spec string, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		resetter: resetter,
		spec:     spec,
		logger:   logger.Named("scheduler"),
		c:        cron.New(cron.WithLocation(time.UTC)),
		timeout:  5 * time.Minute,
	}
}

// Start registers the reset job and starts the cron runner.
func (s *Scheduler) Start() error {
	if _, err := s.c.AddFunc(s.spec, s.runReset); err != nil {
		return fmt.Errorf("error scheduling usage reset %q: %w", s.spec, err)
	}
	s.c.Start()
	s.logger.Info("Usage reset scheduled", zap.String("schedule", s.spec))
	return nil
}

// Stop stops the runner and waits for a running job to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out while a job was running")
	}
}

func (s *Scheduler) runReset() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.logger.Info("Running scheduled usage reset")
	n, err := s.resetter.ResetUsage(ctx)
	if err != nil {
		s.logger.Error("Scheduled usage reset failed", zap.Int("keys", n), zap.Error(err))
		return
	}
	s.logger.Info("Scheduled usage reset finished", zap.Int("keys", n))
}
