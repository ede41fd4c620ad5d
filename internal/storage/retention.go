package storage

import (
	"context"
	"log/slog"
	"time"
)

// Retention purges runs older than a fixed number of days.
type Retention struct {
	store         Store
	retentionDays int
	logger        *slog.Logger
	now           func() time.Time
}

func NewRetention(store Store, retentionDays int, logger *slog.Logger) *Retention {
	return &Retention{
		store:         store,
		retentionDays: retentionDays,
		logger:        logger,
		now:           time.Now,
	}
}

// Purge deletes expired runs. A non-positive retention keeps everything.
func (r *Retention) Purge(ctx context.Context) (int64, error) {
	if r.retentionDays <= 0 {
		return 0, nil
	}
	before := r.now().AddDate(0, 0, -r.retentionDays)
	deleted, err := r.store.PurgeOldRuns(ctx, before)
	if err != nil {
		r.logger.Error("retention purge failed", "error", err)
		return 0, err
	}
	if deleted > 0 {
		r.logger.Info("retention purge completed", "deleted", deleted, "before", before.Format(time.RFC3339))
	}
	return deleted, nil
}
