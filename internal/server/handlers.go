package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ifuryst/coverly/internal/models"
	"github.com/ifuryst/coverly/internal/service"
	"github.com/ifuryst/coverly/internal/service/media"
	"github.com/ifuryst/coverly/pkg/retryhttp"
)

// editableSettings lists the keys accepted by PUT /settings.
var editableSettings = map[string]bool{
	service.KeyAPIKey:            true,
	service.KeyDefaultStyle:      true,
	service.KeyContentSource:     true,
	service.KeyImageSize:         true,
	service.KeyBatchSize:         true,
	service.KeyDebugLogging:      true,
	service.KeyCompletionEmail:   true,
	service.KeyConceptExtraction: true,
	service.KeyQueueInterval:     true,
	service.KeyLogRetentionDays:  true,
	service.KeyTriggerMode:       true,
	service.KeyAdminEmail:        true,
}

func statusFor(err error) int {
	var apiErr *retryhttp.APIError
	var transportErr *retryhttp.TransportError
	switch {
	case errors.Is(err, service.ErrNoCredential):
		return http.StatusPreconditionFailed
	case errors.Is(err, service.ErrInvalidSubject),
		errors.Is(err, service.ErrArticleNotFound),
		errors.Is(err, service.ErrQueueItemNotFound),
		errors.Is(err, service.ErrLogNotFound),
		errors.Is(err, media.ErrAttachmentNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrSubjectBusy), errors.Is(err, service.ErrRejected):
		return http.StatusConflict
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	case errors.As(err, &transportErr):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.Logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func paramID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := s.Services.Auth.Login(req.Code)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid code"})
		return
	}

	ttl := s.Services.Auth.SessionTTL()
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(service.AuthCookieName, token, int(ttl.Seconds()), "/", "", s.Config.Server.CertFile != "", true)
	c.JSON(http.StatusOK, gin.H{"token": token, "expires_in": int(ttl.Seconds())})
}

func (s *Server) handleListArticles(c *gin.Context) {
	articles, err := s.Services.Articles.List(c.Request.Context(), queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"articles": articles})
}

func (s *Server) handleCreateArticle(c *gin.Context) {
	var in service.ArticleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	article, err := s.Services.Articles.Create(c.Request.Context(), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, article)
}

func (s *Server) handleGetArticle(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	article, err := s.Services.Articles.Get(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

func (s *Server) handleUpdateArticle(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var in service.ArticleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	article, err := s.Services.Articles.Update(c.Request.Context(), id, in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

func (s *Server) handleGenerate(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req struct {
		Style        string `json:"style"`
		CustomPrompt string `json:"custom_prompt"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	attachment, err := s.Services.Engine.Generate(c.Request.Context(), id, req.Style, req.CustomPrompt)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    "Featured image generated successfully",
		"attachment": attachment,
	})
}

func (s *Server) handleArticleLogs(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	logs, err := s.Services.Logs.ListBySubject(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func (s *Server) handleListQueue(c *gin.Context) {
	status := models.QueueStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	items, err := s.Services.Queue.List(c.Request.Context(), status, queryInt(c, "limit", 50))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) handleQueueStats(c *gin.Context) {
	ctx := c.Request.Context()
	stats, err := s.Services.Queue.Stats(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stats":  stats,
		"paused": s.Services.Queue.IsPaused(ctx),
	})
}

func (s *Server) handleEnqueue(c *gin.Context) {
	var req struct {
		SubjectIDs   []uint `json:"subject_ids"`
		MissingImage bool   `json:"missing_image"`
		Priority     int    `json:"priority"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	ids := req.SubjectIDs
	if req.MissingImage {
		var err error
		if ids, err = s.Services.Articles.IDs(ctx, true); err != nil {
			s.respondError(c, err)
			return
		}
	}
	if len(ids) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no subjects to enqueue"})
		return
	}

	added, err := s.Services.Queue.EnqueueBulk(ctx, ids, req.Priority)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added, "requested": len(ids)})
}

func (s *Server) handleProcessQueue(c *gin.Context) {
	result, err := s.Services.Batch.RunOnce(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handlePauseQueue(c *gin.Context) {
	if err := s.Services.Queue.Pause(c.Request.Context()); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

func (s *Server) handleResumeQueue(c *gin.Context) {
	if err := s.Services.Queue.Resume(c.Request.Context()); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

func (s *Server) handleRequeue(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := s.Services.Queue.Requeue(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Item requeued"})
}

func (s *Server) handleRemoveQueueItem(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := s.Services.Queue.Remove(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleClearProcessed(c *gin.Context) {
	deleted, err := s.Services.Queue.ClearTerminal(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (s *Server) handleClearQueue(c *gin.Context) {
	deleted, err := s.Services.Queue.ClearAll(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (s *Server) handleListLogs(c *gin.Context) {
	logs, err := s.Services.Logs.List(c.Request.Context(), queryInt(c, "limit", 100))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func (s *Server) handleGetLog(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	entry, err := s.Services.Logs.Get(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) handleClearLogs(c *gin.Context) {
	if err := s.Services.Logs.Clear(c.Request.Context()); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleGetSettings(c *gin.Context) {
	settings, err := s.Services.Settings.All(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	out := make(map[string]any, len(settings))
	for key, value := range settings {
		if !editableSettings[key] {
			continue
		}
		out[key] = value
	}
	out[service.KeyAPIKey] = maskSecret(settings[service.KeyAPIKey])
	c.JSON(http.StatusOK, gin.H{"settings": out})
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	var req map[string]any
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for key := range req {
		if !editableSettings[key] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown setting " + key})
			return
		}
	}

	ctx := c.Request.Context()
	for key, value := range req {
		if err := s.Services.Settings.Set(ctx, key, value); err != nil {
			s.respondError(c, err)
			return
		}
	}

	if _, ok := req[service.KeyAPIKey]; ok {
		if err := s.Services.Logs.LogAPIEvent(ctx, "api_key_saved", "API key updated", models.LogInfo); err != nil {
			s.Logger.Warn("Failed to record API event", zap.Error(err))
		}
	}

	s.handleGetSettings(c)
}

func (s *Server) handleTestConnection(c *gin.Context) {
	if err := s.Services.Engine.TestConnection(c.Request.Context()); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Connection successful"})
}

func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
