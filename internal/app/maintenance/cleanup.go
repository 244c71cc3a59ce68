package maintenance

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/pointdeck/pointdeck/internal/services"
	"github.com/pointdeck/pointdeck/pkg/logger"
)

const defaultSchedule = "0 2 * * *"

// Cleaner runs the retention job that purges sessions older than the
// retention window, cascading their participants, features, and votes.
type Cleaner struct {
	cleanup  *services.CleanupService
	cron     *cron.Cron
	log      *zap.Logger
	schedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithSchedule overrides the cron specification for the retention job.
func WithSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults.
func NewCleaner(cleanup *services.CleanupService, opts ...Option) (*Cleaner, error) {
	if cleanup == nil {
		return nil, errors.New("maintenance: cleanup service is required")
	}

	cleaner := &Cleaner{
		cleanup:  cleanup,
		schedule: defaultSchedule,
		log:      logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner, nil
}

// Start registers the retention job with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if _, err := c.cron.AddFunc(c.schedule, func() {
		if err := c.RunOnce(context.Background()); err != nil {
			c.log.Warn("session cleanup failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running job to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes the retention job immediately. Used by tests and during
// graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	_, err := c.cleanup.DeleteOldSessions(ctx)
	return err
}
