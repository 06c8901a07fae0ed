// Package prompt turns article content into an image prompt in two stages:
// a text-model call that rewrites the content as a brand-neutral visual
// scene, then substitution into a style template.
package prompt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/coverly/pkg/util"
)

const conceptInstruction = `Identify any companies or organizations mentioned in this title. Determine what INDUSTRY or TYPE OF ACTIVITY that organization does (e.g., postal service, banking, retail, technology, etc.). Then describe a simple photographic scene showing INANIMATE OBJECTS or SETTINGS related to that industry. Prioritize common objects (tools, equipment, products) over people. Do NOT show company uniforms, branded products, logos, or organizational identifiers. Keep it simple and generic. Use 2-3 sentences maximum.

Title: "%s"

Visual scene:`

// ContentSource selects which article field feeds the prompt.
type ContentSource string

const (
	SourceTitle   ContentSource = "title"
	SourceExcerpt ContentSource = "excerpt"
	SourceContent ContentSource = "content"
)

const (
	excerptWords = 55
	contentWords = 100
)

func ParseContentSource(s string) ContentSource {
	switch ContentSource(strings.ToLower(strings.TrimSpace(s))) {
	case SourceExcerpt:
		return SourceExcerpt
	case SourceContent:
		return SourceContent
	default:
		return SourceTitle
	}
}

// Subject is the article text the prompt is derived from.
type Subject struct {
	Title   string
	Excerpt string
	Body    string
}

// Text returns the selected field, stripped of HTML and with whitespace
// normalized. An empty excerpt falls back to the start of the body.
func (s Subject) Text(src ContentSource) string {
	var raw string
	switch src {
	case SourceExcerpt:
		raw = s.Excerpt
		if strings.TrimSpace(util.StripTags(raw)) == "" {
			raw = util.TrimWords(s.Body, excerptWords)
		}
	case SourceContent:
		raw = util.TrimWords(s.Body, contentWords)
	default:
		raw = s.Title
	}
	return util.SanitizeText(raw)
}

// TextGenerator runs a single text-model completion.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

type Request struct {
	Subject Subject
	Source  ContentSource
	Choice  Choice
	// SkipConcept disables stage one for this request only.
	SkipConcept bool
}

type Result struct {
	Prompt string
	// Concept is what replaced the placeholder: the stage-one scene, or the
	// sanitized content when stage one was skipped or failed.
	Concept     string
	UsedConcept bool
}

type Builder struct {
	text           TextGenerator
	logger         *zap.Logger
	extractConcept bool
}

type BuilderOption func(*Builder)

// WithConceptExtraction toggles the stage-one text call. It is on by default.
func WithConceptExtraction(enabled bool) BuilderOption {
	return func(b *Builder) { b.extractConcept = enabled }
}

func NewBuilder(text TextGenerator, logger *zap.Logger, opts ...BuilderOption) *Builder {
	b := &Builder{
		text:           text,
		logger:         logger,
		extractConcept: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build never fails: a custom prompt is returned verbatim, and a failed
// concept call degrades to the literal content.
func (b *Builder) Build(ctx context.Context, req Request) Result {
	if req.Choice.IsCustom() {
		return Result{Prompt: req.Choice.custom}
	}

	content := req.Subject.Text(req.Source)
	result := Result{Concept: content}

	if b.extractConcept && !req.SkipConcept && b.text != nil {
		concept, err := b.Concept(ctx, content)
		if err != nil {
			b.logger.Warn("Visual concept generation failed, using literal content", zap.Error(err))
		} else {
			result.Concept = concept
			result.UsedConcept = true
		}
	}

	result.Prompt = req.Choice.Style().Apply(result.Concept)
	return result
}

// Concept asks the text model for a generic visual scene describing content.
func (b *Builder) Concept(ctx context.Context, content string) (string, error) {
	start := time.Now()
	answer, err := b.text.GenerateText(ctx, ConceptPrompt(content))
	if err != nil {
		return "", err
	}

	concept := util.CleanModelText(answer)
	if concept == "" {
		return "", fmt.Errorf("empty visual concept")
	}

	b.logger.Debug("Generated visual concept",
		zap.String("content", content),
		zap.String("concept", concept),
		zap.Duration("duration", time.Since(start)))
	return concept, nil
}

func ConceptPrompt(content string) string {
	return fmt.Sprintf(conceptInstruction, content)
}
