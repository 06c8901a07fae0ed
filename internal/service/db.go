package service

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ifuryst/coverly/internal/config"
	"github.com/ifuryst/coverly/internal/models"
)

func NewDatabase(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Type == "sqlite" {
		// One connection serializes writers from the scheduler and the API
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

func dialectorFor(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Type {
	case "postgres", "":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
			cfg.Host, cfg.Username, cfg.Password, cfg.Database, cfg.Port, cfg.SSLMode, cfg.TimeZone)
		return postgres.Open(dsn), nil
	case "sqlite":
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return sqlite.Open(cfg.Path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Attachment{},
		&models.AttachmentMeta{},
		&models.Article{},
		&models.QueueItem{},
		&models.GenerationLog{},
		&models.Option{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// At most one pending or processing item per subject
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_queue_active_subject
		ON generation_queue (subject_id) WHERE status IN ('pending', 'processing')`).Error; err != nil {
		return fmt.Errorf("failed to create active queue index: %w", err)
	}
	return nil
}
