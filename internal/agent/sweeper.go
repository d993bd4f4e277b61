package agent

import (
	"context"
	"time"

	"github.com/rahul/webpilot/internal/store"
	"go.uber.org/zap"
)

// AbandonedReason is the error recorded on swept records.
const AbandonedReason = "abandoned"

// Sweeper fails records left in_progress by a process that is gone, so no
// record stays in_progress forever.
type Sweeper struct {
	Records    *store.RecordStore
	StaleAfter time.Duration
	Interval   time.Duration
	// Running reports whether this process is still working on a query.
	Running func(queryID string) bool
	logger  *zap.Logger
	now     func() time.Time
}

func NewSweeper(records *store.RecordStore, staleAfter time.Duration, running func(string) bool, logger *zap.Logger) *Sweeper {
	interval := staleAfter / 2
	if interval <= 0 || interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		Records:    records,
		StaleAfter: staleAfter,
		Interval:   interval,
		Running:    running,
		logger:     logger.Named("sweeper"),
		now:        time.Now,
	}
}

// Start sweeps once, then every Interval until ctx ends.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", zap.Duration("stale_after", s.StaleAfter))
	s.sweepAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

func (s *Sweeper) sweepAndLog(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("sweep failed", zap.Error(err))
	}
}

// Sweep marks stale in_progress records failed and returns how many it marked.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	if s.StaleAfter <= 0 {
		return 0, nil
	}
	stale, err := s.Records.ListStale(ctx, store.StatusInProgress, s.now().Add(-s.StaleAfter))
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, rec := range stale {
		if s.Running != nil && s.Running(rec.QueryID) {
			continue
		}
		if err := s.Records.MarkFailed(ctx, rec.QueryID, AbandonedReason, nil); err != nil {
			s.logger.Warn("failed to mark record abandoned", zap.String("query_id", rec.QueryID), zap.Error(err))
			continue
		}
		s.logger.Info("record abandoned", zap.String("query_id", rec.QueryID), zap.Time("updated_at", rec.UpdatedAt))
		swept++
	}
	return swept, nil
}
