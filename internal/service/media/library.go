package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ifuryst/coverly/internal/models"
)

const thumbnailSize = 150

var ErrAttachmentNotFound = errors.New("attachment not found")

// Stored describes an object written to the backend that has not yet been
// recorded as an attachment.
type Stored struct {
	Key      string
	Filename string
	URL      string
	MimeType string
	Size     int64

	data []byte
}

// Library writes image bytes to a Backend and keeps attachment rows and
// their metadata in the database.
type Library struct {
	db         *gorm.DB
	backend    Backend
	logger     *zap.Logger
	thumbnails bool
	now        func() time.Time
}

type LibraryOption func(*Library)

// WithThumbnails enables 150x150 thumbnail generation for attached images.
func WithThumbnails(enabled bool) LibraryOption {
	return func(l *Library) {
		l.thumbnails = enabled
	}
}

func WithClock(now func() time.Time) LibraryOption {
	return func(l *Library) {
		l.now = now
	}
}

func NewLibrary(db *gorm.DB, backend Backend, logger *zap.Logger, options ...LibraryOption) *Library {
	l := &Library{
		db:      db,
		backend: backend,
		logger:  logger,
		now:     time.Now,
	}
	for _, option := range options {
		option(l)
	}
	return l
}

// StoreBytes writes data under a year/month prefix.
func (l *Library) StoreBytes(ctx context.Context, filename string, data []byte) (*Stored, error) {
	if len(data) == 0 {
		return nil, errors.New("refusing to store empty file")
	}
	filename = path.Base(filename)
	key := l.now().UTC().Format("2006/01") + "/" + filename
	mimeType := DetectMimeType(data)

	url, err := l.backend.Put(ctx, key, data, mimeType)
	if err != nil {
		return nil, fmt.Errorf("failed to store %s: %w", filename, err)
	}

	return &Stored{
		Key:      key,
		Filename: filename,
		URL:      url,
		MimeType: mimeType,
		Size:     int64(len(data)),
		data:     data,
	}, nil
}

// Attach records stored as an attachment of subjectID. The stored object is
// removed again when the row cannot be written.
func (l *Library) Attach(ctx context.Context, stored *Stored, subjectID uint) (*models.Attachment, error) {
	attachment := &models.Attachment{
		SubjectID: subjectID,
		Filename:  stored.Filename,
		Path:      stored.Key,
		URL:       stored.URL,
		MimeType:  stored.MimeType,
		Size:      stored.Size,
	}

	if l.thumbnails && strings.HasPrefix(stored.MimeType, "image/") {
		if thumbURL, err := l.thumbnail(ctx, stored); err != nil {
			l.logger.Warn("Failed to create thumbnail",
				zap.String("key", stored.Key),
				zap.Error(err))
		} else {
			attachment.ThumbnailURL = thumbURL
		}
	}

	if err := l.db.WithContext(ctx).Create(attachment).Error; err != nil {
		l.removeObjects(ctx, attachment)
		return nil, fmt.Errorf("failed to create attachment: %w", err)
	}

	return attachment, nil
}

// Discard deletes an attachment row, its metadata and its stored objects.
// It undoes Attach for an image that could not be put to use.
func (l *Library) Discard(ctx context.Context, attachment *models.Attachment) error {
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("attachment_id = ?", attachment.ID).Delete(&models.AttachmentMeta{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Attachment{}, attachment.ID).Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete attachment %d: %w", attachment.ID, err)
	}

	l.removeObjects(ctx, attachment)
	return nil
}

func (l *Library) removeObjects(ctx context.Context, attachment *models.Attachment) {
	keys := []string{attachment.Path}
	if attachment.ThumbnailURL != "" {
		keys = append(keys, thumbnailKey(attachment.Path))
	}
	for _, key := range keys {
		if err := l.backend.Delete(ctx, key); err != nil {
			l.logger.Warn("Failed to remove orphaned object",
				zap.String("key", key),
				zap.Error(err))
		}
	}
}

func thumbnailKey(key string) string {
	ext := path.Ext(key)
	return fmt.Sprintf("%s-%dx%d.jpg", strings.TrimSuffix(key, ext), thumbnailSize, thumbnailSize)
}

func (l *Library) thumbnail(ctx context.Context, stored *Stored) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(stored.data))
	if err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}

	thumb := imaging.Thumbnail(img, thumbnailSize, thumbnailSize, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG); err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}

	return l.backend.Put(ctx, thumbnailKey(stored.Key), buf.Bytes(), "image/jpeg")
}

// SetAsFeatured points the article's featured image at attachmentID.
func (l *Library) SetAsFeatured(ctx context.Context, subjectID, attachmentID uint) error {
	result := l.db.WithContext(ctx).
		Model(&models.Article{}).
		Where("id = ?", subjectID).
		Update("featured_image_id", attachmentID)
	if result.Error != nil {
		return fmt.Errorf("failed to set featured image: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("failed to set featured image: article %d not found", subjectID)
	}
	return nil
}

// WriteMetadata upserts a key/value pair on an attachment.
func (l *Library) WriteMetadata(ctx context.Context, attachmentID uint, key, value string) error {
	meta := &models.AttachmentMeta{
		AttachmentID: attachmentID,
		Key:          key,
		Value:        value,
	}
	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "attachment_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(meta).Error
	if err != nil {
		return fmt.Errorf("failed to write attachment meta %s: %w", key, err)
	}
	return nil
}

// Get loads an attachment with its metadata.
func (l *Library) Get(ctx context.Context, id uint) (*models.Attachment, error) {
	var attachment models.Attachment
	err := l.db.WithContext(ctx).Preload("Meta").First(&attachment, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAttachmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return &attachment, nil
}

// Metadata returns an attachment's metadata as a map.
func (l *Library) Metadata(ctx context.Context, id uint) (map[string]string, error) {
	var rows []models.AttachmentMeta
	if err := l.db.WithContext(ctx).Where("attachment_id = ?", id).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load attachment meta: %w", err)
	}
	meta := make(map[string]string, len(rows))
	for _, row := range rows {
		meta[row.Key] = row.Value
	}
	return meta, nil
}
