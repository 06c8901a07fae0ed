package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ifuryst/coverly/internal/models"
)

var (
	// ErrRejected means the subject already has a pending or processing item.
	ErrRejected          = errors.New("subject already has an active queue item")
	ErrQueueItemNotFound = errors.New("queue item not found")
)

type QueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Total      int64 `json:"total"`
}

// Drained reports whether there is finished work and nothing active.
func (s QueueStats) Drained() bool {
	return s.Pending == 0 && s.Processing == 0 && s.Total > 0
}

// QueueService is the durable generation queue.
type QueueService struct {
	db       *gorm.DB
	settings SettingsStore
	logger   *zap.Logger
}

func NewQueueService(db *gorm.DB, settings SettingsStore, logger *zap.Logger) *QueueService {
	return &QueueService{
		db:       db,
		settings: settings,
		logger:   logger,
	}
}

// Enqueue adds a pending item for subjectID. It returns ErrRejected when an
// active item already exists.
func (q *QueueService) Enqueue(ctx context.Context, subjectID uint, priority int) (uint, error) {
	item := models.QueueItem{
		SubjectID: subjectID,
		Status:    models.QueuePending,
		Priority:  priority,
	}

	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := tx.Model(&models.QueueItem{}).
			Where("subject_id = ? AND status IN ?", subjectID, models.ActiveStatuses).
			Count(&active).Error; err != nil {
			return fmt.Errorf("failed to check active items: %w", err)
		}
		if active > 0 {
			return ErrRejected
		}
		if err := tx.Create(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrRejected
			}
			return fmt.Errorf("failed to create queue item: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	// New work starts a new drain cycle
	if err := q.settings.Delete(ctx, KeyDrainNotified); err != nil {
		q.logger.Warn("Failed to reset drain notification flag", zap.Error(err))
	}

	q.logger.Debug("Enqueued subject",
		zap.Uint("subject_id", subjectID),
		zap.Uint("item_id", item.ID),
		zap.Int("priority", priority))
	return item.ID, nil
}

// EnqueueBulk enqueues each subject and returns how many were added.
// Duplicates, within ids or against the queue, are skipped.
func (q *QueueService) EnqueueBulk(ctx context.Context, subjectIDs []uint, priority int) (int, error) {
	added := 0
	for _, id := range subjectIDs {
		_, err := q.Enqueue(ctx, id, priority)
		if errors.Is(err, ErrRejected) {
			continue
		}
		if err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

// DequeueBatch returns up to limit pending items, highest priority first and
// oldest first within a priority. Items are not marked; the caller must Claim
// each one before working on it.
func (q *QueueService) DequeueBatch(ctx context.Context, limit int) ([]models.QueueItem, error) {
	if limit <= 0 {
		return nil, nil
	}

	var items []models.QueueItem
	err := q.db.WithContext(ctx).
		Where("status = ?", models.QueuePending).
		Order("priority desc, created_at asc, id asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue batch: %w", err)
	}
	return items, nil
}

// Claim moves a pending item to processing. It reports false when the item
// is no longer pending, e.g. another worker claimed it first.
func (q *QueueService) Claim(ctx context.Context, id uint) (bool, error) {
	result := q.db.WithContext(ctx).Model(&models.QueueItem{}).
		Where("id = ? AND status = ?", id, models.QueuePending).
		Updates(map[string]any{
			"status":       models.QueueProcessing,
			"error":        "",
			"processed_at": time.Now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim queue item: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// SetStatus moves an item to status. Leaving pending stamps processed_at;
// returning to pending clears it along with any previous error.
func (q *QueueService) SetStatus(ctx context.Context, id uint, status models.QueueStatus) error {
	return q.update(ctx, id, status, "")
}

// MarkFailed sets Failed and keeps the error message for inspection.
func (q *QueueService) MarkFailed(ctx context.Context, id uint, message string) error {
	return q.update(ctx, id, models.QueueFailed, message)
}

func (q *QueueService) update(ctx context.Context, id uint, status models.QueueStatus, message string) error {
	if !status.Valid() {
		return fmt.Errorf("invalid queue status %q", status)
	}

	updates := map[string]any{
		"status": status,
		"error":  message,
	}
	if status == models.QueuePending {
		updates["processed_at"] = nil
	} else {
		updates["processed_at"] = time.Now()
	}

	result := q.db.WithContext(ctx).Model(&models.QueueItem{}).Where("id = ?", id).Updates(updates)
	if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return ErrRejected
	}
	if result.Error != nil {
		return fmt.Errorf("failed to update queue item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrQueueItemNotFound
	}
	return nil
}

// Requeue puts a failed or stuck processing item back to pending.
func (q *QueueService) Requeue(ctx context.Context, id uint) error {
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.QueueItem
		if err := tx.First(&item, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrQueueItemNotFound
			}
			return fmt.Errorf("failed to get queue item: %w", err)
		}

		switch item.Status {
		case models.QueuePending:
			return nil
		case models.QueueFailed, models.QueueCompleted:
			var active int64
			if err := tx.Model(&models.QueueItem{}).
				Where("subject_id = ? AND status IN ? AND id <> ?", item.SubjectID, models.ActiveStatuses, item.ID).
				Count(&active).Error; err != nil {
				return fmt.Errorf("failed to check active items: %w", err)
			}
			if active > 0 {
				return ErrRejected
			}
		}

		err := tx.Model(&item).Updates(map[string]any{
			"status":       models.QueuePending,
			"error":        "",
			"processed_at": nil,
		}).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrRejected
		}
		return err
	})
	if err != nil {
		return err
	}

	if err := q.settings.Delete(ctx, KeyDrainNotified); err != nil {
		q.logger.Warn("Failed to reset drain notification flag", zap.Error(err))
	}
	return nil
}

func (q *QueueService) Get(ctx context.Context, id uint) (*models.QueueItem, error) {
	var item models.QueueItem
	err := q.db.WithContext(ctx).First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrQueueItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}
	return &item, nil
}

// List returns the newest items, optionally filtered by status.
func (q *QueueService) List(ctx context.Context, status models.QueueStatus, limit int) ([]models.QueueItem, error) {
	var items []models.QueueItem
	query := q.db.WithContext(ctx).Order("created_at desc, id desc")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}
	return items, nil
}

func (q *QueueService) Stats(ctx context.Context) (QueueStats, error) {
	var rows []struct {
		Status models.QueueStatus
		Count  int64
	}
	err := q.db.WithContext(ctx).Model(&models.QueueItem{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return QueueStats{}, fmt.Errorf("failed to get queue stats: %w", err)
	}

	var stats QueueStats
	for _, row := range rows {
		switch row.Status {
		case models.QueuePending:
			stats.Pending = row.Count
		case models.QueueProcessing:
			stats.Processing = row.Count
		case models.QueueCompleted:
			stats.Completed = row.Count
		case models.QueueFailed:
			stats.Failed = row.Count
		}
		stats.Total += row.Count
	}
	return stats, nil
}

// ClearTerminal removes completed and failed items.
func (q *QueueService) ClearTerminal(ctx context.Context) (int64, error) {
	result := q.db.WithContext(ctx).Where("status IN ?", models.TerminalStatuses).Delete(&models.QueueItem{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to clear processed items: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (q *QueueService) ClearAll(ctx context.Context) (int64, error) {
	result := q.db.WithContext(ctx).Where("1 = 1").Delete(&models.QueueItem{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to clear queue: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (q *QueueService) Remove(ctx context.Context, id uint) error {
	result := q.db.WithContext(ctx).Delete(&models.QueueItem{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to remove queue item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrQueueItemNotFound
	}
	return nil
}

func (q *QueueService) Pause(ctx context.Context) error {
	return q.settings.Set(ctx, KeyQueuePaused, true)
}

func (q *QueueService) Resume(ctx context.Context) error {
	return q.settings.Set(ctx, KeyQueuePaused, false)
}

func (q *QueueService) IsPaused(ctx context.Context) bool {
	return q.settings.GetBool(ctx, KeyQueuePaused)
}
