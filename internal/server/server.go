package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ifuryst/coverly/internal/config"
)

type Server struct {
	Config   *config.Config
	Router   *gin.Engine
	Logger   *zap.Logger
	Server   *http.Server
	Services *Services
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	gin.SetMode(cfg.Server.Mode)

	services, err := NewServices(cfg, logger)
	if err != nil {
		return nil, err
	}

	srv := &Server{
		Config:   cfg,
		Router:   gin.New(),
		Logger:   logger,
		Services: services,
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	return srv, nil
}

func (s *Server) setupMiddleware() {
	s.Router.Use(gin.Recovery())

	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/api/v1/health"},
	}))

	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})
}

func (s *Server) setupRoutes() {
	storage := s.Config.Storage
	if storage.Driver == "local" && strings.HasPrefix(storage.PublicBaseURL, "/") {
		s.Router.Static(storage.PublicBaseURL, storage.LocalPath)
	}

	api := s.Router.Group("/api/v1")
	api.Use(s.Services.Auth.AuthMiddleware("/api/v1/health", "/api/v1/auth/login"))
	{
		api.GET("/health", s.handleHealth)
		api.POST("/auth/login", s.handleLogin)

		articles := api.Group("/articles")
		{
			articles.GET("", s.handleListArticles)
			articles.POST("", s.handleCreateArticle)
			articles.GET("/:id", s.handleGetArticle)
			articles.PUT("/:id", s.handleUpdateArticle)
			articles.POST("/:id/generate", s.handleGenerate)
			articles.GET("/:id/logs", s.handleArticleLogs)
		}

		queue := api.Group("/queue")
		{
			queue.GET("", s.handleListQueue)
			queue.GET("/stats", s.handleQueueStats)
			queue.POST("", s.handleEnqueue)
			queue.POST("/process", s.handleProcessQueue)
			queue.POST("/pause", s.handlePauseQueue)
			queue.POST("/resume", s.handleResumeQueue)
			queue.POST("/:id/requeue", s.handleRequeue)
			queue.DELETE("/processed", s.handleClearProcessed)
			queue.DELETE("/:id", s.handleRemoveQueueItem)
			queue.DELETE("", s.handleClearQueue)
		}

		logs := api.Group("/logs")
		{
			logs.GET("", s.handleListLogs)
			logs.GET("/:id", s.handleGetLog)
			logs.DELETE("", s.handleClearLogs)
		}

		api.GET("/settings", s.handleGetSettings)
		api.PUT("/settings", s.handleUpdateSettings)
		api.POST("/test-connection", s.handleTestConnection)
	}
}

func (s *Server) Start(ctx context.Context) error {
	if err := s.Services.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	s.Services.LogCleaner.Start(ctx)

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.Services.Scheduler.Stop()
	s.Services.LogCleaner.Stop()
	defer func() {
		if err := s.Services.Close(); err != nil {
			s.Logger.Warn("Failed to close services", zap.Error(err))
		}
	}()

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
