package notification

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Cleaner removes notifications past the retention window.
type Cleaner struct {
	repo          *Repository
	retentionDays int
	log           *zap.Logger
}

func NewCleaner(repo *Repository, retentionDays int, log *zap.Logger) *Cleaner {
	return &Cleaner{repo: repo, retentionDays: retentionDays, log: log}
}

// RunOnce is a no-op when retention is disabled (zero days).
func (c *Cleaner) RunOnce(ctx context.Context) (int64, error) {
	if c.retentionDays <= 0 {
		return 0, nil
	}
	start := time.Now()
	deleted, err := c.repo.DeleteOlderThan(ctx, time.Duration(c.retentionDays)*24*time.Hour)
	if err != nil {
		c.log.Error("notification cleanup failed", zap.Error(err))
		return 0, err
	}
	c.log.Info("notification cleanup completed",
		zap.Int64("deleted", deleted),
		zap.Duration("took", time.Since(start)),
	)
	return deleted, nil
}

// Schedule runs RunOnce every interval until ctx is done.
func (c *Cleaner) Schedule(ctx context.Context, interval time.Duration) {
	if c.retentionDays <= 0 {
		c.log.Info("notification cleanup disabled")
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_, _ = c.RunOnce(ctx)
			case <-ctx.Done():
				c.log.Info("notification cleanup stopped")
				return
			}
		}
	}()
	c.log.Info("notification cleanup scheduled", zap.Duration("interval", interval))
}
