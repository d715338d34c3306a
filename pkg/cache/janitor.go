package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweep periodically deletes expired entries until ctx is cancelled.
// It returns immediately when interval is not positive or the cache is disabled.
func (c *Cache) Sweep(ctx context.Context, interval time.Duration) {
	if c == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Clear(ctx, true); err != nil && ctx.Err() == nil {
				c.logger.Warn("cache sweep failed", zap.Error(err))
			}
		}
	}
}
