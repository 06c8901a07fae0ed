package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ifuryst/coverly/internal/models"
)

const (
	DefaultBatchSize = 5

	completionSubject = "Featured Image Generation Complete"
	completionBody    = "Featured image generation has completed.\n\nCompleted: %d\nFailed: %d\n\nView details in the admin dashboard."
)

// Generator produces a featured image for one subject.
type Generator interface {
	Generate(ctx context.Context, subjectID uint, style, customPrompt string) (*models.Attachment, error)
}

// BatchResult summarizes one RunOnce call.
type BatchResult struct {
	Dequeued  int  `json:"dequeued"`
	Completed int  `json:"completed"`
	Failed    int  `json:"failed"`
	Deferred  int  `json:"deferred"`
	Skipped   int  `json:"skipped"`
	Paused    bool `json:"paused"`
	Notified  bool `json:"notified"`
}

// BatchProcessor drains the queue a batch at a time, sequentially.
type BatchProcessor struct {
	queue      *QueueService
	generator  Generator
	settings   SettingsStore
	notifier   Notifier
	logger     *zap.Logger
	sizeFilter func(int) int
}

type BatchOption func(*BatchProcessor)

// WithBatchSizeFilter adjusts the configured batch size before each run.
func WithBatchSizeFilter(filter func(int) int) BatchOption {
	return func(p *BatchProcessor) {
		p.sizeFilter = filter
	}
}

func NewBatchProcessor(queue *QueueService, generator Generator, settings SettingsStore, notifier Notifier, logger *zap.Logger, options ...BatchOption) *BatchProcessor {
	p := &BatchProcessor{
		queue:     queue,
		generator: generator,
		settings:  settings,
		notifier:  notifier,
		logger:    logger,
	}
	for _, option := range options {
		option(p)
	}
	return p
}

func (p *BatchProcessor) batchSize(ctx context.Context) int {
	size := p.settings.GetInt(ctx, KeyBatchSize)
	if size <= 0 {
		size = DefaultBatchSize
	}
	if p.sizeFilter != nil {
		size = p.sizeFilter(size)
	}
	return size
}

// RunOnce processes up to one batch of pending items. Each item is claimed
// before generation starts, so an interrupted run leaves it visibly stuck
// rather than silently retried. Items another run claimed first are skipped.
func (p *BatchProcessor) RunOnce(ctx context.Context) (BatchResult, error) {
	var result BatchResult

	if p.queue.IsPaused(ctx) {
		p.logger.Debug("Queue is paused, skipping batch")
		result.Paused = true
		return result, nil
	}

	items, err := p.queue.DequeueBatch(ctx, p.batchSize(ctx))
	if err != nil {
		return result, err
	}
	result.Dequeued = len(items)
	if len(items) > 0 {
		p.logger.Info("Processing generation batch", zap.Int("items", len(items)))
	}

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}

		claimed, err := p.queue.Claim(ctx, item.ID)
		if err != nil {
			p.logger.Error("Failed to claim queue item",
				zap.Uint("item_id", item.ID),
				zap.Error(err))
			continue
		}
		if !claimed {
			p.logger.Debug("Queue item already claimed, skipping",
				zap.Uint("item_id", item.ID),
				zap.Uint("subject_id", item.SubjectID))
			result.Skipped++
			continue
		}

		_, genErr := p.generator.Generate(ctx, item.SubjectID, "", "")

		// the outcome is recorded even if the run was cancelled meanwhile
		updateCtx := context.WithoutCancel(ctx)
		switch {
		case genErr == nil:
			err = p.queue.SetStatus(updateCtx, item.ID, models.QueueCompleted)
			result.Completed++
		case errors.Is(genErr, ErrSubjectBusy):
			err = p.queue.SetStatus(updateCtx, item.ID, models.QueuePending)
			result.Deferred++
		default:
			err = p.queue.MarkFailed(updateCtx, item.ID, genErr.Error())
			result.Failed++
		}
		if err != nil {
			p.logger.Error("Failed to update queue item",
				zap.Uint("item_id", item.ID),
				zap.Error(err))
		}
	}

	notified, err := p.notifyIfDrained(ctx)
	if err != nil {
		p.logger.Warn("Failed to send completion notification", zap.Error(err))
	}
	result.Notified = notified

	if result.Dequeued > 0 {
		p.logger.Info("Generation batch finished",
			zap.Int("completed", result.Completed),
			zap.Int("failed", result.Failed),
			zap.Int("deferred", result.Deferred),
			zap.Int("skipped", result.Skipped))
	}
	return result, nil
}

// notifyIfDrained sends the completion email once per drain. The flag is
// cleared by the next successful enqueue. An unsent notification is retried
// on the next run.
func (p *BatchProcessor) notifyIfDrained(ctx context.Context) (bool, error) {
	stats, err := p.queue.Stats(ctx)
	if err != nil {
		return false, err
	}
	if !stats.Drained() || p.settings.GetBool(ctx, KeyDrainNotified) {
		return false, nil
	}
	if !p.settings.GetBool(ctx, KeyCompletionEmail) {
		return false, nil
	}

	to := p.settings.GetString(ctx, KeyAdminEmail)
	if to == "" {
		return false, errors.New("admin email is not configured")
	}

	body := fmt.Sprintf(completionBody, stats.Completed, stats.Failed)
	if err := p.notifier.SendEmail(ctx, to, completionSubject, body); err != nil {
		return false, err
	}

	if err := p.settings.Set(ctx, KeyDrainNotified, true); err != nil {
		return true, err
	}
	return true, nil
}
