package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	ArticleDraft     = "draft"
	ArticlePublished = "published"
)

type Article struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	NotionID        *string        `gorm:"uniqueIndex;size:255" json:"notion_id,omitempty"`
	Title           string         `gorm:"not null;size:500" json:"title"`
	Slug            string         `gorm:"size:200;index" json:"slug"`
	Excerpt         string         `gorm:"type:text" json:"excerpt"`
	Body            string         `gorm:"type:text" json:"body"`
	Status          string         `gorm:"size:50;default:'draft'" json:"status"`
	FeaturedImageID *uint          `json:"featured_image_id"`
	LastModified    time.Time      `json:"last_modified"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`

	FeaturedImage *Attachment `gorm:"foreignKey:FeaturedImageID" json:"featured_image,omitempty"`
}

func (a *Article) Published() bool {
	return a.Status == ArticlePublished
}

func (a *Article) HasFeaturedImage() bool {
	return a.FeaturedImageID != nil && *a.FeaturedImageID != 0
}
