package config

import (
	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/ifuryst/coverly/pkg/logger"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Logger     logger.Config    `yaml:"logger"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	Generation GenerationConfig `yaml:"generation"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Storage    StorageConfig    `yaml:"storage"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Mail       MailConfig       `yaml:"mail"`
	Auth       AuthConfig       `yaml:"auth"`
	Notion     NotionConfig     `yaml:"notion"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type"` // postgres or sqlite
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
	Path     string `yaml:"path"` // sqlite file
}

type GeminiConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	TextModel    string `yaml:"text_model"`
	ImageModel   string `yaml:"image_model"`
	TextAuth     string `yaml:"text_auth"`  // query or header
	ImageAuth    string `yaml:"image_auth"` // query or header
	TextTimeout  string `yaml:"text_timeout"`
	ImageTimeout string `yaml:"image_timeout"`
	MaxRetries   int    `yaml:"max_retries"`
	BaseDelay    string `yaml:"base_delay"`
}

// GenerationConfig holds the defaults for settings that can later be
// overridden at runtime through the settings API.
type GenerationConfig struct {
	DefaultStyle         string `yaml:"default_style"`
	ContentSource        string `yaml:"content_source"`
	ImageSize            string `yaml:"image_size"`
	BatchSize            int    `yaml:"batch_size"`
	DebugLogging         bool   `yaml:"debug_logging"`
	CompletionEmail      *bool  `yaml:"completion_email"`
	ConceptExtraction    *bool  `yaml:"concept_extraction"`
	QueueIntervalMinutes int    `yaml:"queue_interval_minutes"`
	LogRetentionDays     int    `yaml:"log_retention_days"`
	TriggerMode          string `yaml:"trigger_mode"`
	AdminEmail           string `yaml:"admin_email"`
}

type SchedulerConfig struct {
	Enabled         bool   `yaml:"enabled"`
	SyncInterval    string `yaml:"sync_interval"`
	CleanupInterval string `yaml:"cleanup_interval"`
}

type StorageConfig struct {
	Driver        string      `yaml:"driver"` // local or minio
	LocalPath     string      `yaml:"local_path"`
	PublicBaseURL string      `yaml:"public_base_url"`
	Thumbnails    bool        `yaml:"thumbnails"`
	Minio         MinioConfig `yaml:"minio"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	LockTTL  string `yaml:"lock_ttl"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type MailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type AuthConfig struct {
	Enabled    bool   `yaml:"enabled"`
	TOTPSecret string `yaml:"totp_secret"`
	JWTSecret  string `yaml:"jwt_secret"`
	SessionTTL string `yaml:"session_ttl"`
}

type NotionConfig struct {
	Token      string `yaml:"token"`
	DatabaseID string `yaml:"database_id"`
	APIVersion string `yaml:"api_version"`
	BaseURL    string `yaml:"base_url"`
}

// Enabled reports whether a Notion database is configured for sync.
func (c NotionConfig) Enabled() bool {
	return c.Token != "" && c.DatabaseID != ""
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	cfg.SetDefaults()
	return cfg, nil
}

func boolPtr(v bool) *bool { return &v }

// SetDefaults fills every unset field.
func (cfg *Config) SetDefaults() {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5334
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/coverly.db"
	}
	if cfg.Gemini.TextAuth == "" {
		cfg.Gemini.TextAuth = "query"
	}
	if cfg.Gemini.ImageAuth == "" {
		cfg.Gemini.ImageAuth = "header"
	}
	if cfg.Gemini.TextTimeout == "" {
		cfg.Gemini.TextTimeout = "30s"
	}
	if cfg.Gemini.ImageTimeout == "" {
		cfg.Gemini.ImageTimeout = "60s"
	}
	if cfg.Gemini.MaxRetries == 0 {
		cfg.Gemini.MaxRetries = 3
	}
	if cfg.Gemini.BaseDelay == "" {
		cfg.Gemini.BaseDelay = "1s"
	}
	if cfg.Generation.DefaultStyle == "" {
		cfg.Generation.DefaultStyle = "photographic"
	}
	if cfg.Generation.ContentSource == "" {
		cfg.Generation.ContentSource = "title"
	}
	if cfg.Generation.ImageSize == "" {
		cfg.Generation.ImageSize = "1200x630"
	}
	if cfg.Generation.BatchSize == 0 {
		cfg.Generation.BatchSize = 5
	}
	if cfg.Generation.CompletionEmail == nil {
		cfg.Generation.CompletionEmail = boolPtr(true)
	}
	if cfg.Generation.ConceptExtraction == nil {
		cfg.Generation.ConceptExtraction = boolPtr(true)
	}
	if cfg.Generation.QueueIntervalMinutes == 0 {
		cfg.Generation.QueueIntervalMinutes = 5
	}
	if cfg.Generation.LogRetentionDays == 0 {
		cfg.Generation.LogRetentionDays = 7
	}
	if cfg.Generation.TriggerMode == "" {
		cfg.Generation.TriggerMode = "manual"
	}
	if cfg.Scheduler.SyncInterval == "" {
		cfg.Scheduler.SyncInterval = "30m"
	}
	if cfg.Scheduler.CleanupInterval == "" {
		cfg.Scheduler.CleanupInterval = "24h"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "local"
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "data/uploads"
	}
	if cfg.Storage.PublicBaseURL == "" {
		cfg.Storage.PublicBaseURL = "/uploads"
	}
	if cfg.Storage.Minio.Bucket == "" {
		cfg.Storage.Minio.Bucket = "featured-images"
	}
	if cfg.Redis.LockTTL == "" {
		cfg.Redis.LockTTL = "5m"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "featured-image-events"
	}
	if cfg.Mail.Port == 0 {
		cfg.Mail.Port = 587
	}
	if cfg.Auth.SessionTTL == "" {
		cfg.Auth.SessionTTL = "12h"
	}
	if cfg.Notion.APIVersion == "" {
		cfg.Notion.APIVersion = "2022-06-28"
	}
	if cfg.Notion.BaseURL == "" {
		cfg.Notion.BaseURL = "https://api.notion.com/v1"
	}
}
