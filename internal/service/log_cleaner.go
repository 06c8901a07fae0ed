package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultRetentionDays = 7

// LogCleaner periodically removes generation log rows past the retention
// window.
type LogCleaner struct {
	logs     *GenerationLogService
	settings SettingsReader
	logger   *zap.Logger
	interval time.Duration

	startOnce sync.Once
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewLogCleaner(logs *GenerationLogService, settings SettingsReader, logger *zap.Logger, interval time.Duration) *LogCleaner {
	return &LogCleaner{
		logs:     logs,
		settings: settings,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the cleanup loop until Stop is called or ctx is done. Calling
// it again has no effect.
func (c *LogCleaner) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		c.wg.Add(1)
		go c.loop(ctx)
	})
}

func (c *LogCleaner) loop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info("Starting log cleaner", zap.Duration("interval", c.interval))
	for {
		select {
		case <-c.stopCh:
			c.logger.Info("Log cleaner stopped")
			return
		case <-ctx.Done():
			c.logger.Info("Log cleaner stopped due to context cancellation")
			return
		case <-ticker.C:
			if _, err := c.RunOnce(ctx); err != nil {
				c.logger.Error("Failed to clean up generation logs", zap.Error(err))
			}
		}
	}
}

// Stop ends the loop and waits for a running cleanup to finish. It is safe
// to call more than once, and before Start.
func (c *LogCleaner) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
}

// RunOnce deletes rows older than log_retention_days.
func (c *LogCleaner) RunOnce(ctx context.Context) (int64, error) {
	days := c.settings.GetInt(ctx, KeyLogRetentionDays)
	if days <= 0 {
		days = defaultRetentionDays
	}

	deleted, err := c.logs.CleanupOld(ctx, days)
	if err != nil {
		return 0, err
	}
	c.logger.Debug("Cleaned up generation logs",
		zap.Int("retention_days", days),
		zap.Int64("deleted", deleted))
	return deleted, nil
}
