package services

import (
	"context"
	"errors"
	"time"

	"github.com/feed-system/photo-feed/internal/config"
	"github.com/feed-system/photo-feed/internal/models"
	"github.com/feed-system/photo-feed/pkg/logger"
)

// RetryService re-drives fan-out jobs that are partial, or that were
// persisted but never finished because the process died or the inline run
// was never started.
type RetryService struct {
	jobs      FanoutStore
	engine    *FanoutEngine
	batchSize int
	logger    *logger.Logger
	now       func() time.Time
}

func NewRetryService(jobs FanoutStore, engine *FanoutEngine, cfg *config.FanoutConfig, logger *logger.Logger) *RetryService {
	return &RetryService{
		jobs:      jobs,
		engine:    engine,
		batchSize: cfg.RetryBatchSize,
		logger:    logger,
		now:       time.Now,
	}
}

// RetryDueJobs runs one sweep and returns how many jobs finished fanning out.
func (s *RetryService) RetryDueJobs(ctx context.Context) (int, error) {
	jobs, err := s.jobs.DueJobs(ctx, s.now(), s.batchSize)
	if err != nil {
		return 0, transient("list due fanout jobs", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	completed := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		report, err := s.engine.Fanout(ctx, job.PostID)
		if err != nil {
			if !errors.Is(err, ErrPartialFanout) {
				s.logger.WithError(err).WithField("post_id", job.PostID).Error("Failed to retry fan-out")
			}
			continue
		}
		if report.State == models.FanoutFannedOut {
			completed++
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"due":       len(jobs),
		"completed": completed,
	}).Info("Fan-out retry sweep completed")
	return completed, nil
}

// StartRetryJob sweeps every interval until ctx is done. A non-positive
// interval disables the sweeper.
func (s *RetryService) StartRetryJob(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.logger.Warn("Fan-out retry job disabled: non-positive interval")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Fan-out retry job stopped")
			return
		case <-ticker.C:
			if _, err := s.RetryDueJobs(ctx); err != nil {
				s.logger.WithError(err).Error("Fan-out retry sweep failed")
			}
		}
	}
}

// GetFanoutStats counts jobs per state.
func (s *RetryService) GetFanoutStats(ctx context.Context) (map[models.FanoutState]int64, error) {
	stats, err := s.jobs.CountByState(ctx)
	if err != nil {
		return nil, transient("count fanout jobs", err)
	}
	return stats, nil
}
