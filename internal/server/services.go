package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ifuryst/coverly/internal/config"
	"github.com/ifuryst/coverly/internal/service"
	"github.com/ifuryst/coverly/internal/service/gemini"
	"github.com/ifuryst/coverly/internal/service/media"
	"github.com/ifuryst/coverly/internal/service/notion"
	"github.com/ifuryst/coverly/internal/service/prompt"
	"github.com/ifuryst/coverly/pkg/retryhttp"
)

// Services holds every long-lived component, shared by the HTTP server
// and the one-shot CLI commands.
type Services struct {
	DB         *gorm.DB
	Settings   *service.SettingsService
	Articles   *service.ArticleService
	Queue      *service.QueueService
	Logs       *service.GenerationLogService
	Library    *media.Library
	Engine     *service.GenerationEngine
	Batch      *service.BatchProcessor
	Scheduler  *service.Scheduler
	LogCleaner *service.LogCleaner
	Auth       *service.AuthService
	Notion     *notion.Service
	Events     service.EventPublisher

	redis *redis.Client
}

func NewServices(cfg *config.Config, logger *zap.Logger) (*Services, error) {
	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	s := &Services{DB: db}

	s.Settings = service.NewSettingsService(db, cfg, logger)
	s.Queue = service.NewQueueService(db, s.Settings, logger)
	s.Logs = service.NewGenerationLogService(db, s.Settings, logger)
	s.Articles = service.NewArticleService(db, service.NewAutoEnqueuer(s.Queue, s.Settings, logger), logger)

	backend, err := newBackend(&cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	s.Library = media.NewLibrary(db, backend, logger, media.WithThumbnails(cfg.Storage.Thumbnails))

	geminiClient, err := newGeminiClient(&cfg.Gemini, s.Settings, logger)
	if err != nil {
		return nil, err
	}

	locker, err := s.newLocker(&cfg.Redis, logger)
	if err != nil {
		return nil, err
	}

	s.Events = service.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		s.Events = service.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	}

	s.Engine = service.NewGenerationEngine(service.GenerationDeps{
		Content:     s.Articles,
		Settings:    s.Settings,
		Credentials: s.Settings,
		Images:      geminiClient,
		Prompts:     prompt.NewBuilder(geminiClient, logger),
		Media:       s.Library,
		Logs:        s.Logs,
		Locker:      locker,
		Events:      s.Events,
		Logger:      logger,
	})

	var notifier service.Notifier = service.NewLogNotifier(logger)
	if cfg.Mail.Host != "" {
		notifier = service.NewSMTPNotifier(cfg.Mail)
	}
	s.Batch = service.NewBatchProcessor(s.Queue, s.Engine, s.Settings, notifier, logger)

	var syncer service.Syncer
	if cfg.Notion.Enabled() {
		s.Notion = notion.NewService(&cfg.Notion, s.Articles, logger)
		syncer = s.Notion
	}
	s.Scheduler = service.NewScheduler(&cfg.Scheduler, s.Settings, s.Batch, syncer, logger)

	cleanupInterval, err := time.ParseDuration(cfg.Scheduler.CleanupInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid cleanup interval %q: %w", cfg.Scheduler.CleanupInterval, err)
	}
	s.LogCleaner = service.NewLogCleaner(s.Logs, s.Settings, logger, cleanupInterval)

	s.Auth, err = service.NewAuthService(cfg.Auth, logger)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func newBackend(cfg *config.StorageConfig) (media.Backend, error) {
	switch cfg.Driver {
	case "local", "":
		return media.NewLocalBackend(afero.NewOsFs(), cfg.LocalPath, cfg.PublicBaseURL), nil
	case "minio":
		m := cfg.Minio
		return media.NewMinioBackend(m.Endpoint, m.AccessKey, m.SecretKey, m.Bucket, m.UseSSL, cfg.PublicBaseURL)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

func newGeminiClient(cfg *config.GeminiConfig, creds gemini.Credentials, logger *zap.Logger) (*gemini.Client, error) {
	textTimeout, err := time.ParseDuration(cfg.TextTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid gemini text_timeout %q: %w", cfg.TextTimeout, err)
	}
	imageTimeout, err := time.ParseDuration(cfg.ImageTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid gemini image_timeout %q: %w", cfg.ImageTimeout, err)
	}
	baseDelay, err := time.ParseDuration(cfg.BaseDelay)
	if err != nil {
		return nil, fmt.Errorf("invalid gemini base_delay %q: %w", cfg.BaseDelay, err)
	}

	httpClient := retryhttp.New(logger,
		retryhttp.WithMaxRetries(cfg.MaxRetries),
		retryhttp.WithBaseDelay(baseDelay))

	return gemini.NewClient(gemini.Config{
		BaseURL:      cfg.BaseURL,
		TextModel:    cfg.TextModel,
		ImageModel:   cfg.ImageModel,
		TextAuth:     gemini.ParseAuthMode(cfg.TextAuth, gemini.AuthQuery),
		ImageAuth:    gemini.ParseAuthMode(cfg.ImageAuth, gemini.AuthHeader),
		TextTimeout:  textTimeout,
		ImageTimeout: imageTimeout,
	}, httpClient, creds, logger), nil
}

func (s *Services) newLocker(cfg *config.RedisConfig, logger *zap.Logger) (service.SubjectLocker, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return service.NewLocalLocker(), nil
	}

	ttl, err := time.ParseDuration(cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis lock_ttl %q: %w", cfg.LockTTL, err)
	}

	s.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return service.NewRedisLocker(s.redis, ttl, logger), nil
}

func (s *Services) Close() error {
	var errs []error
	if s.Events != nil {
		errs = append(errs, s.Events.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if s.DB != nil {
		if sqlDB, err := s.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
