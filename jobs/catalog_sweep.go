package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Sweeper is the slice of the propagation engine the sweep job drives.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
	StaleCount(ctx context.Context) (int, error)
}

// CatalogSweepJob republishes parents whose current revision still references
// an outdated child revision. Interrupted cascades leave exactly this state
// behind; the sweep converges the catalog again.
type CatalogSweepJob struct {
	Sweeper Sweeper
	Logger  *slog.Logger
}

// NewCatalogSweepJob initialises the sweep handler.
func NewCatalogSweepJob(sweeper Sweeper, logger *slog.Logger) *CatalogSweepJob {
	return &CatalogSweepJob{Sweeper: sweeper, Logger: logger}
}

// Handle executes the sweep.
func (j *CatalogSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sweeper == nil {
		return errors.New("catalog sweep: handler not configured")
	}
	var payload CatalogSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	logger := j.logger()
	start := time.Now()

	if payload.DryRun {
		stale, err := j.Sweeper.StaleCount(ctx)
		if err != nil {
			logger.Error("sweep dry run failed", slog.Any("error", err))
			return err
		}
		logger.Info("catalog sweep dry run", slog.Int("stale_refs", stale))
		return nil
	}

	republished, err := j.Sweeper.Sweep(ctx)
	if err != nil {
		logger.Error("catalog sweep failed",
			slog.Int("republished", republished),
			slog.Any("error", err))
		return err
	}
	logger.Info("catalog sweep completed",
		slog.Int("republished", republished),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *CatalogSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCatalogSweep))
	}
	return slog.Default().With(slog.String("job", TaskCatalogSweep))
}
