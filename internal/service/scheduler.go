package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/coverly/internal/config"
)

const defaultQueueInterval = 5 * time.Minute

// BatchRunner runs one queue batch.
type BatchRunner interface {
	RunOnce(ctx context.Context) (BatchResult, error)
}

// Syncer pulls articles from an external CMS.
type Syncer interface {
	SyncPages(ctx context.Context) error
}

type Scheduler struct {
	config   *config.SchedulerConfig
	settings SettingsReader
	batch    BatchRunner
	syncer   Syncer
	logger   *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler. syncer may be nil when no CMS is
// configured.
func NewScheduler(cfg *config.SchedulerConfig, settings SettingsReader, batch BatchRunner, syncer Syncer, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		config:   cfg,
		settings: settings,
		batch:    batch,
		syncer:   syncer,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Scheduler is disabled")
		return nil
	}

	if s.syncer != nil {
		interval, err := time.ParseDuration(s.config.SyncInterval)
		if err != nil {
			s.logger.Error("Invalid sync interval", zap.String("interval", s.config.SyncInterval), zap.Error(err))
			return err
		}
		s.wg.Add(1)
		go s.syncLoop(ctx, interval)
	}

	s.wg.Add(1)
	go s.queueLoop(ctx)

	s.logger.Info("Scheduler started",
		zap.Duration("queue_interval", s.queueInterval(ctx)),
		zap.Bool("cms_sync", s.syncer != nil))
	return nil
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
	s.logger.Info("Scheduler shutdown completed")
}

// queueInterval is re-read every cycle so a changed setting applies
// without a restart.
func (s *Scheduler) queueInterval(ctx context.Context) time.Duration {
	minutes := s.settings.GetInt(ctx, KeyQueueInterval)
	if minutes <= 0 {
		return defaultQueueInterval
	}
	return time.Duration(minutes) * time.Minute
}

func (s *Scheduler) queueLoop(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(s.queueInterval(ctx))
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			s.runBatch(ctx)
			timer.Reset(s.queueInterval(ctx))
		case <-s.stopCh:
			return
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled")
			return
		}
	}
}

func (s *Scheduler) runBatch(ctx context.Context) {
	start := time.Now()
	result, err := s.batch.RunOnce(ctx)
	if err != nil {
		s.logger.Error("Scheduled batch failed", zap.Error(err))
		return
	}
	if result.Dequeued > 0 {
		s.logger.Info("Scheduled batch completed",
			zap.Int("completed", result.Completed),
			zap.Int("failed", result.Failed),
			zap.Duration("duration", time.Since(start)))
	}
}

func (s *Scheduler) syncLoop(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()

	s.logger.Info("Running initial sync")
	s.runSync(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runSync(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runSync(ctx context.Context) {
	start := time.Now()
	err := s.syncer.SyncPages(ctx)
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("Sync failed",
			zap.Error(err),
			zap.Duration("duration", duration))
		return
	}

	s.logger.Info("Sync completed successfully",
		zap.Duration("duration", duration))
}
