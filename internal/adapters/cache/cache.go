package cache

import (
	"context"
	"time"

	"github.com/mikey/mail-notifier/internal/core"
	"go.uber.org/zap"
)

// Cache is a score cache with a background cleanup task
type Cache interface {
	core.ScoreCache
	// Stop ends the cleanup task and releases resources
	Stop()
}

// cleaner runs Cleanup on a fixed period until stopped
type cleaner struct {
	freq   time.Duration
	stopCh chan struct{}
	logger *zap.Logger
}

func newCleaner(freq time.Duration, logger *zap.Logger) *cleaner {
	return &cleaner{
		freq:   freq,
		stopCh: make(chan struct{}),
		logger: logger,
	}
}

// start launches the cleanup loop; a non-positive period disables it
func (c *cleaner) start(cleanup func(ctx context.Context) error) {
	if c.freq <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(c.freq)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := cleanup(context.Background()); err != nil {
					c.logger.Error("Failed to clean up cache", zap.Error(err))
				}
			case <-c.stopCh:
				return
			}
		}
	}()
}

func (c *cleaner) stop() {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
}
