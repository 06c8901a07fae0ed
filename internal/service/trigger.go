package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/ifuryst/coverly/internal/models"
)

// TriggerMode decides which article lifecycle event enqueues generation.
type TriggerMode string

const (
	TriggerManual    TriggerMode = "manual"
	TriggerOnPublish TriggerMode = "publish"
	TriggerOnUpdate  TriggerMode = "update"
)

// Queue priorities per trigger.
const (
	PriorityPublish = 10
	PriorityUpdate  = 5
	PriorityBulk    = 0
)

func ParseTriggerMode(s string) TriggerMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "publish", "on_publish":
		return TriggerOnPublish
	case "update", "on_update":
		return TriggerOnUpdate
	default:
		return TriggerManual
	}
}

// Enqueuer is the queue insertion side used by triggers.
type Enqueuer interface {
	Enqueue(ctx context.Context, subjectID uint, priority int) (uint, error)
}

// AutoEnqueuer implements ArticleHooks by enqueueing according to the
// configured TriggerMode.
type AutoEnqueuer struct {
	queue    Enqueuer
	settings SettingsReader
	logger   *zap.Logger
}

func NewAutoEnqueuer(queue Enqueuer, settings SettingsReader, logger *zap.Logger) *AutoEnqueuer {
	return &AutoEnqueuer{
		queue:    queue,
		settings: settings,
		logger:   logger,
	}
}

func (a *AutoEnqueuer) Mode(ctx context.Context) TriggerMode {
	return ParseTriggerMode(a.settings.GetString(ctx, KeyTriggerMode))
}

func (a *AutoEnqueuer) AfterCreate(ctx context.Context, article *models.Article) {
	a.handle(ctx, article, article.Published())
}

func (a *AutoEnqueuer) AfterUpdate(ctx context.Context, before, after *models.Article) {
	a.handle(ctx, after, !before.Published() && after.Published())
}

func (a *AutoEnqueuer) handle(ctx context.Context, article *models.Article, becamePublished bool) {
	if article.HasFeaturedImage() {
		return
	}

	switch a.Mode(ctx) {
	case TriggerOnPublish:
		if becamePublished {
			a.enqueue(ctx, article.ID, PriorityPublish)
		}
	case TriggerOnUpdate:
		if article.Published() {
			a.enqueue(ctx, article.ID, PriorityUpdate)
		}
	}
}

func (a *AutoEnqueuer) enqueue(ctx context.Context, subjectID uint, priority int) {
	_, err := a.queue.Enqueue(ctx, subjectID, priority)
	switch {
	case errors.Is(err, ErrRejected):
		a.logger.Debug("Subject already queued", zap.Uint("subject_id", subjectID))
	case err != nil:
		a.logger.Error("Failed to auto-enqueue subject", zap.Uint("subject_id", subjectID), zap.Error(err))
	default:
		a.logger.Info("Auto-enqueued subject", zap.Uint("subject_id", subjectID), zap.Int("priority", priority))
	}
}
