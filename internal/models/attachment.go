package models

import "time"

// Attachment is a stored media file associated with an article.
type Attachment struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubjectID    uint      `gorm:"not null;index" json:"subject_id"`
	Filename     string    `gorm:"size:255;not null" json:"filename"`
	Path         string    `gorm:"size:500;not null" json:"path"`
	URL          string    `gorm:"size:1000" json:"url"`
	MimeType     string    `gorm:"size:100" json:"mime_type"`
	Size         int64     `json:"size"`
	ThumbnailURL string    `gorm:"size:1000" json:"thumbnail_url,omitempty"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`

	Meta []AttachmentMeta `gorm:"foreignKey:AttachmentID;constraint:OnDelete:CASCADE" json:"meta,omitempty"`
}

type AttachmentMeta struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	AttachmentID uint   `gorm:"not null;uniqueIndex:idx_attachment_meta_key" json:"attachment_id"`
	Key          string `gorm:"size:100;not null;uniqueIndex:idx_attachment_meta_key" json:"key"`
	Value        string `gorm:"type:text" json:"value"`
}

func (AttachmentMeta) TableName() string {
	return "attachment_meta"
}
