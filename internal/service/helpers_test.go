package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ifuryst/coverly/internal/config"
	"github.com/ifuryst/coverly/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDatabase(&config.DatabaseConfig{
		Type: "sqlite",
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.Database.Type = "sqlite"
	return cfg
}

func newTestSettings(t *testing.T, db *gorm.DB) *SettingsService {
	t.Helper()
	return NewSettingsService(db, newTestConfig(), zap.NewNop())
}

func createArticle(t *testing.T, db *gorm.DB, title, status string) *models.Article {
	t.Helper()
	article := &models.Article{Title: title, Status: status}
	require.NoError(t, db.Create(article).Error)
	return article
}

func mustSet(t *testing.T, s SettingsStore, key string, value any) {
	t.Helper()
	require.NoError(t, s.Set(context.Background(), key, value))
}
