package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cast"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ifuryst/coverly/internal/config"
	"github.com/ifuryst/coverly/internal/models"
)

const (
	KeyAPIKey            = "gemini_api_key"
	KeyDefaultStyle      = "default_prompt_style"
	KeyContentSource     = "content_source"
	KeyImageSize         = "default_image_size"
	KeyBatchSize         = "batch_size"
	KeyDebugLogging      = "enable_debug_logging"
	KeyCompletionEmail   = "send_completion_email"
	KeyConceptExtraction = "concept_extraction"
	KeyQueueInterval     = "queue_interval"
	KeyLogRetentionDays  = "log_retention_days"
	KeyTriggerMode       = "auto_generate_trigger"
	KeyAdminEmail        = "admin_email"
	KeyQueuePaused       = "queue_paused"
	KeyDrainNotified     = "queue_drain_notified"
)

// SettingsReader is the read side of the settings store.
type SettingsReader interface {
	GetString(ctx context.Context, key string) string
	GetInt(ctx context.Context, key string) int
	GetBool(ctx context.Context, key string) bool
}

// SettingsStore adds writes.
type SettingsStore interface {
	SettingsReader
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}

// SettingsService stores runtime settings in the options table. Values not
// stored fall back to the defaults taken from configuration.
type SettingsService struct {
	db       *gorm.DB
	logger   *zap.Logger
	defaults map[string]string
}

func NewSettingsService(db *gorm.DB, cfg *config.Config, logger *zap.Logger) *SettingsService {
	gen := cfg.Generation
	defaults := map[string]string{
		KeyAPIKey:           cfg.Gemini.APIKey,
		KeyDefaultStyle:     gen.DefaultStyle,
		KeyContentSource:    gen.ContentSource,
		KeyImageSize:        gen.ImageSize,
		KeyBatchSize:        strconv.Itoa(gen.BatchSize),
		KeyDebugLogging:     strconv.FormatBool(gen.DebugLogging),
		KeyQueueInterval:    strconv.Itoa(gen.QueueIntervalMinutes),
		KeyLogRetentionDays: strconv.Itoa(gen.LogRetentionDays),
		KeyTriggerMode:      gen.TriggerMode,
		KeyAdminEmail:       gen.AdminEmail,
		KeyQueuePaused:      "false",
		KeyDrainNotified:    "false",
	}
	if gen.CompletionEmail != nil {
		defaults[KeyCompletionEmail] = strconv.FormatBool(*gen.CompletionEmail)
	}
	if gen.ConceptExtraction != nil {
		defaults[KeyConceptExtraction] = strconv.FormatBool(*gen.ConceptExtraction)
	}

	return &SettingsService{
		db:       db,
		logger:   logger,
		defaults: defaults,
	}
}

// Get returns the stored value, or the default with stored=false.
func (s *SettingsService) Get(ctx context.Context, key string) (value string, stored bool, err error) {
	var opt models.Option
	err = s.db.WithContext(ctx).Where("key = ?", key).First(&opt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.defaults[key], false, nil
	}
	if err != nil {
		return s.defaults[key], false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return opt.Value, true, nil
}

func (s *SettingsService) GetString(ctx context.Context, key string) string {
	value, _, err := s.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Falling back to default setting", zap.String("key", key), zap.Error(err))
	}
	return value
}

func (s *SettingsService) GetInt(ctx context.Context, key string) int {
	raw := s.GetString(ctx, key)
	v, err := cast.ToIntE(raw)
	if err != nil {
		s.logger.Warn("Invalid integer setting", zap.String("key", key), zap.String("value", raw))
		return cast.ToInt(s.defaults[key])
	}
	return v
}

func (s *SettingsService) GetBool(ctx context.Context, key string) bool {
	raw := s.GetString(ctx, key)
	v, err := cast.ToBoolE(raw)
	if err != nil {
		s.logger.Warn("Invalid boolean setting", zap.String("key", key), zap.String("value", raw))
		return cast.ToBool(s.defaults[key])
	}
	return v
}

func (s *SettingsService) Set(ctx context.Context, key string, value any) error {
	str, err := cast.ToStringE(value)
	if err != nil {
		return fmt.Errorf("failed to convert setting %s: %w", key, err)
	}

	opt := models.Option{Key: key, Value: str}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&opt).Error
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}

func (s *SettingsService) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("key = ?", key).Delete(&models.Option{}).Error; err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}

// All returns defaults overlaid with stored values.
func (s *SettingsService) All(ctx context.Context) (map[string]string, error) {
	var opts []models.Option
	if err := s.db.WithContext(ctx).Find(&opts).Error; err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}

	out := make(map[string]string, len(s.defaults)+len(opts))
	for k, v := range s.defaults {
		out[k] = v
	}
	for _, o := range opts {
		out[o.Key] = o.Value
	}
	return out, nil
}

// APIKey implements gemini.Credentials.
func (s *SettingsService) APIKey(ctx context.Context) (string, error) {
	value, _, err := s.Get(ctx, KeyAPIKey)
	return value, err
}
