package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/coverly/internal/models"
	"github.com/ifuryst/coverly/internal/service/gemini"
	"github.com/ifuryst/coverly/internal/service/media"
	"github.com/ifuryst/coverly/internal/service/prompt"
	"github.com/ifuryst/coverly/pkg/util"
)

var (
	ErrNoCredential    = gemini.ErrNoCredential
	ErrInvalidSubject  = errors.New("subject not found")
	ErrInvalidResponse = gemini.ErrInvalidResponse
	ErrEmptyImage      = gemini.ErrEmptyImage
	ErrStorage         = errors.New("failed to store image")
)

const (
	connectionTestPrompt = "A simple blue sky with white clouds"
	defaultMimeType      = "image/png"
	imageSource          = "gemini"
)

// Attachment meta keys written after a successful generation.
const (
	MetaAlt           = "alt"
	MetaGenerated     = "_fih_generated"
	MetaSource        = "_fih_source"
	MetaGeneratedDate = "_fih_generated_date"
)

// ImageGenerator calls the image model.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, aspectRatio string) (*gemini.Image, error)
}

// MediaStore persists generated images and links them to subjects.
type MediaStore interface {
	StoreBytes(ctx context.Context, filename string, data []byte) (*media.Stored, error)
	Attach(ctx context.Context, stored *media.Stored, subjectID uint) (*models.Attachment, error)
	SetAsFeatured(ctx context.Context, subjectID, attachmentID uint) error
	Discard(ctx context.Context, attachment *models.Attachment) error
	WriteMetadata(ctx context.Context, attachmentID uint, key, value string) error
}

// GenerationDeps are the collaborators of a GenerationEngine.
type GenerationDeps struct {
	Content     ContentLookup
	Settings    SettingsReader
	Credentials gemini.Credentials
	Images      ImageGenerator
	Prompts     *prompt.Builder
	Media       MediaStore
	Logs        *GenerationLogService
	Locker      SubjectLocker
	Events      EventPublisher
	Logger      *zap.Logger
	Now         func() time.Time
}

// GenerationEngine generates and attaches a featured image for one subject.
type GenerationEngine struct {
	GenerationDeps
}

func NewGenerationEngine(deps GenerationDeps) *GenerationEngine {
	if deps.Locker == nil {
		deps.Locker = NewLocalLocker()
	}
	if deps.Events == nil {
		deps.Events = NopPublisher{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &GenerationEngine{GenerationDeps: deps}
}

// Generate builds a prompt for subjectID, calls the image model and stores
// the result as the subject's featured image. An empty style uses the
// configured default; a non-empty customPrompt replaces the built prompt.
func (e *GenerationEngine) Generate(ctx context.Context, subjectID uint, style, customPrompt string) (*models.Attachment, error) {
	start := e.Now()

	if err := e.requireCredential(ctx); err != nil {
		return nil, err
	}

	release, err := e.Locker.Acquire(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	defer release()

	content, err := e.Content.GetContent(ctx, subjectID)
	if err != nil {
		if errors.Is(err, ErrArticleNotFound) {
			err = fmt.Errorf("%w: %d", ErrInvalidSubject, subjectID)
		}
		return nil, e.fail(ctx, subjectID, "", style, start, err)
	}

	if style == "" {
		style = e.Settings.GetString(ctx, KeyDefaultStyle)
	}
	choice := prompt.ChoiceFrom(style, customPrompt)

	built := e.Prompts.Build(ctx, prompt.Request{
		Subject: prompt.Subject{
			Title:   content.Title,
			Excerpt: content.Excerpt,
			Body:    content.Body,
		},
		Source:      prompt.ParseContentSource(e.Settings.GetString(ctx, KeyContentSource)),
		Choice:      choice,
		SkipConcept: !e.Settings.GetBool(ctx, KeyConceptExtraction),
	})

	aspectRatio, _ := prompt.AspectRatio(e.Settings.GetString(ctx, KeyImageSize))

	e.Logger.Info("Generating featured image",
		zap.Uint("subject_id", subjectID),
		zap.String("style", choice.String()),
		zap.String("aspect_ratio", aspectRatio),
		zap.Bool("used_concept", built.UsedConcept))

	image, err := e.Images.GenerateImage(ctx, built.Prompt, aspectRatio)
	if err != nil {
		if errors.Is(err, ErrInvalidResponse) {
			e.apiEvent(ctx, "image_generation", err.Error(), models.LogError)
		}
		return nil, e.fail(ctx, subjectID, built.Prompt, choice.String(), start, err)
	}

	mimeType := resolveMimeType(image)
	filename := fmt.Sprintf("%s-%d.%s", fileSlug(content), e.Now().Unix(), media.ExtensionFor(mimeType))

	stored, err := e.Media.StoreBytes(ctx, filename, image.Data)
	if err != nil {
		return nil, e.fail(ctx, subjectID, built.Prompt, choice.String(), start, fmt.Errorf("%w: %w", ErrStorage, err))
	}
	attachment, err := e.Media.Attach(ctx, stored, subjectID)
	if err != nil {
		return nil, e.fail(ctx, subjectID, built.Prompt, choice.String(), start, fmt.Errorf("%w: %w", ErrStorage, err))
	}
	if err := e.Media.SetAsFeatured(ctx, subjectID, attachment.ID); err != nil {
		if discardErr := e.Media.Discard(context.WithoutCancel(ctx), attachment); discardErr != nil {
			e.Logger.Warn("Failed to discard unused attachment",
				zap.Uint("subject_id", subjectID),
				zap.Uint("attachment_id", attachment.ID),
				zap.Error(discardErr))
		}
		return nil, e.fail(ctx, subjectID, built.Prompt, choice.String(), start, fmt.Errorf("%w: %w", ErrStorage, err))
	}

	meta := [][2]string{
		{MetaAlt, "Featured image for: " + content.Title},
		{MetaGenerated, "true"},
		{MetaSource, imageSource},
		{MetaGeneratedDate, e.Now().UTC().Format(time.DateTime)},
	}
	for _, kv := range meta {
		if err := e.Media.WriteMetadata(ctx, attachment.ID, kv[0], kv[1]); err != nil {
			e.Logger.Warn("Failed to write attachment metadata",
				zap.Uint("attachment_id", attachment.ID),
				zap.String("key", kv[0]),
				zap.Error(err))
		}
	}

	duration := e.Now().Sub(start)
	if err := e.Logs.Log(ctx, subjectID, built.Prompt, models.LogSuccess, WithDuration(duration)); err != nil {
		e.Logger.Warn("Failed to write generation log", zap.Error(err))
	}

	event := NewEvent(EventImageGenerated, subjectID)
	event.AttachmentID = attachment.ID
	event.Style = choice.String()
	event.DurationSeconds = duration.Seconds()
	e.publish(ctx, event)

	e.Logger.Info("Featured image generated",
		zap.Uint("subject_id", subjectID),
		zap.Uint("attachment_id", attachment.ID),
		zap.String("filename", attachment.Filename),
		zap.Duration("duration", duration))

	return attachment, nil
}

// TestConnection generates a throwaway image and records the outcome as an
// api_test event.
func (e *GenerationEngine) TestConnection(ctx context.Context) error {
	if err := e.requireCredential(ctx); err != nil {
		e.apiEvent(ctx, "api_test", "Connection test failed: "+err.Error(), models.LogError)
		return err
	}

	if _, err := e.Images.GenerateImage(ctx, connectionTestPrompt, ""); err != nil {
		e.apiEvent(ctx, "api_test", "Connection test failed: "+err.Error(), models.LogError)
		return err
	}

	e.apiEvent(ctx, "api_test", "Connection test successful", models.LogSuccess)
	return nil
}

func (e *GenerationEngine) requireCredential(ctx context.Context) error {
	key, err := e.Credentials.APIKey(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve API key: %w", err)
	}
	if strings.TrimSpace(key) == "" {
		return ErrNoCredential
	}
	return nil
}

func (e *GenerationEngine) fail(ctx context.Context, subjectID uint, detail, style string, start time.Time, err error) error {
	duration := e.Now().Sub(start)

	logErr := e.Logs.Log(ctx, subjectID, detail, models.LogError,
		WithErrorMessage(err.Error()),
		WithDuration(duration))
	if logErr != nil {
		e.Logger.Warn("Failed to write generation log", zap.Error(logErr))
	}

	event := NewEvent(EventImageFailed, subjectID)
	event.Style = style
	event.DurationSeconds = duration.Seconds()
	event.Error = err.Error()
	e.publish(ctx, event)

	e.Logger.Error("Featured image generation failed",
		zap.Uint("subject_id", subjectID),
		zap.Duration("duration", duration),
		zap.Error(err))
	return err
}

func (e *GenerationEngine) apiEvent(ctx context.Context, eventType, message string, status models.LogStatus) {
	if err := e.Logs.LogAPIEvent(ctx, eventType, message, status); err != nil {
		e.Logger.Warn("Failed to record API event", zap.String("event", eventType), zap.Error(err))
	}
}

func (e *GenerationEngine) publish(ctx context.Context, event Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.Events.Publish(ctx, event); err != nil {
		e.Logger.Warn("Failed to publish event",
			zap.String("type", event.Type),
			zap.Uint("subject_id", event.SubjectID),
			zap.Error(err))
	}
}

func resolveMimeType(image *gemini.Image) string {
	if image.MimeType != "" {
		return image.MimeType
	}
	if detected := media.DetectMimeType(image.Data); strings.HasPrefix(detected, "image/") {
		return detected
	}
	return defaultMimeType
}

func fileSlug(content *Content) string {
	slug := content.Slug
	if slug == "" {
		slug = util.GenerateSlug(content.Title)
	}
	if slug == "" {
		slug = "featured-image"
	}
	return slug
}
