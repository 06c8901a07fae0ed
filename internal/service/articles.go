package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ifuryst/coverly/internal/models"
	"github.com/ifuryst/coverly/pkg/util"
)

var ErrArticleNotFound = errors.New("article not found")

// Content is the subset of an article the generator reads.
type Content struct {
	Title   string
	Excerpt string
	Body    string
	Slug    string
}

// ContentLookup resolves a subject id to its content.
type ContentLookup interface {
	GetContent(ctx context.Context, subjectID uint) (*Content, error)
}

// ArticleHooks is notified after articles are saved.
type ArticleHooks interface {
	AfterCreate(ctx context.Context, article *models.Article)
	AfterUpdate(ctx context.Context, before, after *models.Article)
}

type ArticleInput struct {
	Title   string `json:"title" binding:"required"`
	Excerpt string `json:"excerpt"`
	Body    string `json:"body"`
	Slug    string `json:"slug"`
	Status  string `json:"status"`
}

type ArticleService struct {
	db     *gorm.DB
	hooks  ArticleHooks
	logger *zap.Logger
}

func NewArticleService(db *gorm.DB, hooks ArticleHooks, logger *zap.Logger) *ArticleService {
	return &ArticleService{
		db:     db,
		hooks:  hooks,
		logger: logger,
	}
}

func (s *ArticleService) GetContent(ctx context.Context, subjectID uint) (*Content, error) {
	article, err := s.Get(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	return &Content{
		Title:   article.Title,
		Excerpt: article.Excerpt,
		Body:    article.Body,
		Slug:    article.Slug,
	}, nil
}

func (s *ArticleService) Get(ctx context.Context, id uint) (*models.Article, error) {
	var article models.Article
	err := s.db.WithContext(ctx).Preload("FeaturedImage").First(&article, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrArticleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	return &article, nil
}

func (s *ArticleService) List(ctx context.Context, limit, offset int) ([]models.Article, error) {
	var articles []models.Article
	query := s.db.WithContext(ctx).Order("id desc").Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&articles).Error; err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	return articles, nil
}

// IDs returns ids of articles, optionally only those without a featured
// image. Used for bulk enqueueing.
func (s *ArticleService) IDs(ctx context.Context, missingImageOnly bool) ([]uint, error) {
	var ids []uint
	query := s.db.WithContext(ctx).Model(&models.Article{}).Order("id asc")
	if missingImageOnly {
		query = query.Where("featured_image_id IS NULL")
	}
	if err := query.Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list article ids: %w", err)
	}
	return ids, nil
}

func (s *ArticleService) Create(ctx context.Context, in ArticleInput) (*models.Article, error) {
	article := &models.Article{LastModified: time.Now()}
	applyArticleInput(article, in)

	if err := s.Save(ctx, article); err != nil {
		return nil, err
	}
	return article, nil
}

func (s *ArticleService) Update(ctx context.Context, id uint, in ArticleInput) (*models.Article, error) {
	article, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	article.LastModified = time.Now()
	applyArticleInput(article, in)

	if err := s.Save(ctx, article); err != nil {
		return nil, err
	}
	return article, nil
}

// Save creates or updates article and fires the matching hook.
func (s *ArticleService) Save(ctx context.Context, article *models.Article) error {
	if article.ID == 0 {
		if err := s.db.WithContext(ctx).Create(article).Error; err != nil {
			return fmt.Errorf("failed to create article: %w", err)
		}
		if s.hooks != nil {
			s.hooks.AfterCreate(ctx, article)
		}
		return nil
	}

	var before models.Article
	if err := s.db.WithContext(ctx).First(&before, article.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrArticleNotFound
		}
		return fmt.Errorf("failed to load article: %w", err)
	}
	// The featured image is owned by the media library, never by a content save
	article.FeaturedImageID = before.FeaturedImageID
	if err := s.db.WithContext(ctx).Omit("FeaturedImage", "FeaturedImageID").Save(article).Error; err != nil {
		return fmt.Errorf("failed to update article: %w", err)
	}
	if s.hooks != nil {
		s.hooks.AfterUpdate(ctx, &before, article)
	}
	return nil
}

// FindByNotionID returns the article synced from a Notion page, if any.
func (s *ArticleService) FindByNotionID(ctx context.Context, notionID string) (*models.Article, error) {
	var article models.Article
	err := s.db.WithContext(ctx).Where("notion_id = ?", notionID).First(&article).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrArticleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query article: %w", err)
	}
	return &article, nil
}

func applyArticleInput(article *models.Article, in ArticleInput) {
	article.Title = in.Title
	article.Excerpt = in.Excerpt
	article.Body = in.Body
	article.Slug = in.Slug
	if article.Slug == "" {
		article.Slug = util.GenerateSlug(in.Title)
	}
	if in.Status != "" {
		article.Status = in.Status
	}
	if article.Status == "" {
		article.Status = models.ArticleDraft
	}
}
