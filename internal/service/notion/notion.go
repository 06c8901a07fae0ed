// Package notion syncs pages of a Notion database into articles.
package notion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/coverly/internal/config"
	"github.com/ifuryst/coverly/internal/models"
	"github.com/ifuryst/coverly/internal/service"
	"github.com/ifuryst/coverly/pkg/util"
)

type (
	DatabaseResponse struct {
		Results    []PageResponse `json:"results"`
		NextCursor string         `json:"next_cursor"`
		HasMore    bool           `json:"has_more"`
	}

	PageResponse struct {
		ID             string         `json:"id"`
		CreatedTime    string         `json:"created_time"`
		LastEditedTime string         `json:"last_edited_time"`
		Properties     map[string]any `json:"properties"`
	}
)

// ArticleStore is where synced pages land. Save must fire the article
// hooks so that auto-generation triggers see synced changes.
type ArticleStore interface {
	FindByNotionID(ctx context.Context, notionID string) (*models.Article, error)
	Save(ctx context.Context, article *models.Article) error
}

type Service struct {
	config   *config.NotionConfig
	articles ArticleStore
	logger   *zap.Logger
	client   *http.Client
}

func NewService(config *config.NotionConfig, articles ArticleStore, logger *zap.Logger) *Service {
	tr := &http.Transport{
		IdleConnTimeout:       120 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   10,
		TLSHandshakeTimeout:   20 * time.Second,
		ResponseHeaderTimeout: 20 * time.Second,
	}
	return &Service{
		config:   config,
		articles: articles,
		logger:   logger,
		client: &http.Client{
			Transport: tr,
			Timeout:   30 * time.Second,
		},
	}
}

// SyncPages implements service.Syncer.
func (s *Service) SyncPages(ctx context.Context) error {
	s.logger.Info("Starting Notion pages sync")

	cursor := ""
	for {
		response, err := s.queryDatabase(ctx, cursor)
		if err != nil {
			return fmt.Errorf("failed to query database: %w", err)
		}

		for _, page := range response.Results {
			if err := s.processPage(ctx, page); err != nil {
				s.logger.Error("Failed to process page", zap.String("page_id", page.ID), zap.Error(err))
				continue
			}
		}

		if !response.HasMore {
			break
		}
		cursor = response.NextCursor
	}

	s.logger.Info("Notion pages sync completed")
	return nil
}

func (s *Service) processPage(ctx context.Context, page PageResponse) error {
	lastModified, err := time.Parse(time.RFC3339, page.LastEditedTime)
	if err != nil {
		return fmt.Errorf("failed to parse last_edited_time: %w", err)
	}

	existing, err := s.articles.FindByNotionID(ctx, page.ID)
	if err != nil && !errors.Is(err, service.ErrArticleNotFound) {
		return fmt.Errorf("failed to query existing article: %w", err)
	}
	if existing != nil && !existing.LastModified.Before(lastModified) {
		return nil
	}

	body, err := s.getPageText(ctx, page.ID)
	if err != nil {
		s.logger.Warn("Failed to get page content", zap.String("page_id", page.ID), zap.Error(err))
	}

	title := extractTitle(page.Properties)
	article := existing
	if article == nil {
		notionID := page.ID
		article = &models.Article{NotionID: &notionID}
	}
	article.Title = title
	article.Slug = util.GenerateSlug(title)
	article.Excerpt = extractRichText(page.Properties, "Summary")
	article.Status = articleStatus(extractStatus(page.Properties))
	article.LastModified = lastModified
	if body != "" {
		article.Body = body
	}

	if err := s.articles.Save(ctx, article); err != nil {
		return fmt.Errorf("failed to save article: %w", err)
	}

	if existing == nil {
		s.logger.Info("Created article from page", zap.String("page_id", page.ID), zap.String("title", title))
	} else {
		s.logger.Info("Updated article from page", zap.String("page_id", page.ID), zap.String("title", title))
	}
	return nil
}

func (s *Service) getPageText(ctx context.Context, pageID string) (string, error) {
	blocks, err := s.getAllBlocksRecursively(ctx, pageID)
	if err != nil {
		return "", fmt.Errorf("failed to get page blocks recursively: %w", err)
	}

	var lines []string
	for _, block := range blocks {
		if text := blockText(block); text != "" {
			lines = append(lines, text)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// articleStatus maps a Notion status name onto the article lifecycle.
func articleStatus(status string) string {
	switch strings.ToLower(status) {
	case "done", "published":
		return models.ArticlePublished
	default:
		return models.ArticleDraft
	}
}
