package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// BulkSyncer runs one bulk sync.
type BulkSyncer interface {
	SyncMany(ctx context.Context, maxSubjects int) (*BulkSyncResult, error)
}

// Scheduler runs a bulk sync at start and then on every tick. Runs are
// sequential, so a slow run delays the next one instead of overlapping it.
type Scheduler struct {
	syncer   BulkSyncer
	interval time.Duration
	count    int
	logger   zerolog.Logger
}

func NewScheduler(syncer BulkSyncer, interval time.Duration, count int, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		syncer:   syncer,
		interval: interval,
		count:    count,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start blocks until ctx is cancelled and the running sync, if any, has
// returned.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("scheduler interval must be positive")
	}
	s.logger.Info().Dur("interval", s.interval).Int("count", s.count).Msg("scheduler started")

	s.run(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *Scheduler) run(ctx context.Context) {
	res, err := s.syncer.SyncMany(ctx, s.count)
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduled sync failed")
		return
	}
	s.logger.Info().
		Str("status", res.Status).
		Int("synced", res.Synced).
		Int("failed", res.Failed).
		Msg("scheduled sync finished")
}
