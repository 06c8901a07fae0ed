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

// DefaultMaxLogs is the size of the rolling diagnostic window.
const DefaultMaxLogs = 3

var ErrLogNotFound = errors.New("log entry not found")

// GenerationLogService keeps a small rolling window of generation attempts
// plus API audit events.
type GenerationLogService struct {
	db       *gorm.DB
	settings SettingsReader
	logger   *zap.Logger
	maxLogs  int
}

func NewGenerationLogService(db *gorm.DB, settings SettingsReader, logger *zap.Logger) *GenerationLogService {
	return &GenerationLogService{
		db:       db,
		settings: settings,
		logger:   logger,
		maxLogs:  DefaultMaxLogs,
	}
}

// LogEntryOption sets optional fields on an entry.
type LogEntryOption func(*models.GenerationLog)

func WithErrorMessage(msg string) LogEntryOption {
	return func(e *models.GenerationLog) {
		e.ErrorMessage = msg
	}
}

func WithDuration(d time.Duration) LogEntryOption {
	return func(e *models.GenerationLog) {
		e.DurationSeconds = d.Seconds()
	}
}

// Log records a generation attempt. It is a no-op unless debug logging is
// enabled, and trims the table to the newest maxLogs rows afterwards.
func (s *GenerationLogService) Log(ctx context.Context, subjectID uint, detail string, status models.LogStatus, options ...LogEntryOption) error {
	if !s.settings.GetBool(ctx, KeyDebugLogging) {
		return nil
	}

	entry := &models.GenerationLog{
		SubjectID: subjectID,
		Detail:    detail,
		Status:    status,
	}
	for _, option := range options {
		option(entry)
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to write generation log: %w", err)
	}

	return s.trim(ctx)
}

// LogAPIEvent records a system-level event regardless of the debug flag.
// Only the age-based cleanup removes these.
func (s *GenerationLogService) LogAPIEvent(ctx context.Context, eventType, message string, status models.LogStatus) error {
	entry := &models.GenerationLog{
		SubjectID:    0,
		Detail:       eventType,
		Status:       status,
		ErrorMessage: message,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to write api event: %w", err)
	}

	s.logger.Info("API event recorded",
		zap.String("event", eventType),
		zap.String("status", string(status)),
		zap.String("message", message))
	return nil
}

// trim deletes generation entries older than the newest maxLogs. API events
// (subject 0) are left to CleanupOld.
func (s *GenerationLogService) trim(ctx context.Context) error {
	var keep []uint
	err := s.db.WithContext(ctx).Model(&models.GenerationLog{}).
		Where("subject_id <> 0").
		Order("id desc").
		Limit(s.maxLogs).
		Pluck("id", &keep).Error
	if err != nil {
		return fmt.Errorf("failed to select logs to keep: %w", err)
	}
	if len(keep) < s.maxLogs {
		return nil
	}

	err = s.db.WithContext(ctx).
		Where("subject_id <> 0 AND id NOT IN ?", keep).
		Delete(&models.GenerationLog{}).Error
	if err != nil {
		return fmt.Errorf("failed to trim generation logs: %w", err)
	}
	return nil
}

// CleanupOld deletes entries older than retentionDays.
func (s *GenerationLogService) CleanupOld(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.GenerationLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to cleanup generation logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *GenerationLogService) List(ctx context.Context, limit int) ([]models.GenerationLog, error) {
	var logs []models.GenerationLog
	query := s.db.WithContext(ctx).Order("created_at desc, id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list generation logs: %w", err)
	}
	return logs, nil
}

func (s *GenerationLogService) ListBySubject(ctx context.Context, subjectID uint) ([]models.GenerationLog, error) {
	var logs []models.GenerationLog
	err := s.db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Order("created_at desc, id desc").
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list generation logs: %w", err)
	}
	return logs, nil
}

func (s *GenerationLogService) Get(ctx context.Context, id uint) (*models.GenerationLog, error) {
	var entry models.GenerationLog
	err := s.db.WithContext(ctx).First(&entry, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get generation log: %w", err)
	}
	return &entry, nil
}

func (s *GenerationLogService) Clear(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&models.GenerationLog{}).Error; err != nil {
		return fmt.Errorf("failed to clear generation logs: %w", err)
	}
	return nil
}
