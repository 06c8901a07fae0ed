package prompt

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeText struct {
	answer  string
	err     error
	prompts []string
}

func (f *fakeText) GenerateText(_ context.Context, p string) (string, error) {
	f.prompts = append(f.prompts, p)
	return f.answer, f.err
}

var royalMail = Subject{
	Title:   "Royal Mail fined £20,000",
	Excerpt: "",
	Body:    "<p>The <em>regulator</em> said the postal operator missed delivery targets.</p>",
}

func TestBuild_CustomPromptIsVerbatim(t *testing.T) {
	text := &fakeText{answer: "ignored"}
	b := NewBuilder(text, zap.NewNop())

	for _, src := range []ContentSource{SourceTitle, SourceExcerpt, SourceContent} {
		res := b.Build(context.Background(), Request{
			Subject: royalMail,
			Source:  src,
			Choice:  ChoiceFrom("abstract", "  A lighthouse at dawn {content}"),
		})
		assert.Equal(t, "  A lighthouse at dawn {content}", res.Prompt)
	}
	assert.Empty(t, text.prompts)
}

func TestBuild_StyleMarkers(t *testing.T) {
	markers := map[Style]string{
		Photographic: "photorealistic",
		Illustration: "digital illustration",
		Abstract:     "Abstract visual representation of",
		Minimal:      "Minimalist representation of",
	}

	b := NewBuilder(&fakeText{answer: "A desk with a ledger."}, zap.NewNop())
	for style, marker := range markers {
		t.Run(string(style), func(t *testing.T) {
			res := b.Build(context.Background(), Request{Subject: royalMail, Choice: Named(style)})
			assert.Contains(t, res.Prompt, marker)
			assert.Contains(t, res.Prompt, "A desk with a ledger.")
			assert.NotContains(t, res.Prompt, placeholder)
		})
	}
}

func TestBuild_ConceptFailureFallsBackToContent(t *testing.T) {
	b := NewBuilder(&fakeText{err: errors.New("dial tcp: connection refused")}, zap.NewNop())

	res := b.Build(context.Background(), Request{Subject: royalMail, Source: SourceTitle, Choice: Named(Photographic)})

	assert.False(t, res.UsedConcept)
	assert.Equal(t, "Royal Mail fined £20,000", res.Concept)
	assert.Contains(t, res.Prompt, "Subject: Royal Mail fined £20,000")
}

func TestBuild_EmptyConceptFallsBack(t *testing.T) {
	b := NewBuilder(&fakeText{answer: `""`}, zap.NewNop())

	res := b.Build(context.Background(), Request{Subject: royalMail, Choice: Named(Minimal)})

	assert.False(t, res.UsedConcept)
	assert.Contains(t, res.Prompt, "Minimalist representation of Royal Mail fined £20,000")
}

func TestBuild_ConceptExtractionDisabled(t *testing.T) {
	text := &fakeText{answer: "unused"}
	b := NewBuilder(text, zap.NewNop(), WithConceptExtraction(false))

	res := b.Build(context.Background(), Request{Subject: royalMail, Choice: Named(Photographic)})

	assert.Empty(t, text.prompts)
	assert.Contains(t, res.Prompt, "Royal Mail")
}

func TestBuild_MasksBrandThroughConcept(t *testing.T) {
	text := &fakeText{answer: `"A red pillar box beside a stack of parcels on a sorting table."`}
	b := NewBuilder(text, zap.NewNop())

	res := b.Build(context.Background(), Request{Subject: royalMail, Choice: ChoiceFrom("photographic", "")})

	require.Len(t, text.prompts, 1)
	assert.Contains(t, text.prompts[0], `Title: "Royal Mail fined £20,000"`)
	assert.True(t, res.UsedConcept)
	assert.NotContains(t, res.Prompt, "Royal Mail")
	assert.NotContains(t, res.Prompt, placeholder)
	assert.Contains(t, res.Prompt, "Subject: A red pillar box beside a stack of parcels on a sorting table.")
}

func TestSubjectText(t *testing.T) {
	long := strings.Repeat("word ", 120)

	assert.Equal(t, "Royal Mail fined £20,000", royalMail.Text(SourceTitle))
	assert.Equal(t, "The regulator said the postal operator missed delivery targets.", royalMail.Text(SourceExcerpt))
	assert.Equal(t, "Short summary", Subject{Excerpt: "<b>Short</b>\n summary"}.Text(SourceExcerpt))

	words := strings.Fields(Subject{Body: long}.Text(SourceContent))
	assert.Len(t, words, 100)
	words = strings.Fields(Subject{Body: long}.Text(SourceExcerpt))
	assert.Len(t, words, 55)
}

func TestParseStyle(t *testing.T) {
	assert.Equal(t, Illustration, ParseStyle("Illustration"))
	assert.Equal(t, Minimal, ParseStyle(" minimal "))
	assert.Equal(t, Photographic, ParseStyle("watercolor"))
	assert.Equal(t, Photographic, ParseStyle(""))
}

func TestChoice(t *testing.T) {
	assert.Equal(t, "custom", ChoiceFrom("abstract", "my prompt").String())
	assert.Equal(t, "abstract", ChoiceFrom("abstract", " ").String())
	assert.Equal(t, Photographic, Custom("x").Style())
}

func TestParseContentSource(t *testing.T) {
	assert.Equal(t, SourceExcerpt, ParseContentSource("excerpt"))
	assert.Equal(t, SourceContent, ParseContentSource("CONTENT"))
	assert.Equal(t, SourceTitle, ParseContentSource("body"))
}

func TestBuild_SkipConceptPerRequest(t *testing.T) {
	text := &fakeText{answer: "A ledger on a desk."}
	b := NewBuilder(text, zap.NewNop())

	res := b.Build(context.Background(), Request{Subject: royalMail, Choice: Named(Photographic), SkipConcept: true})

	assert.False(t, res.UsedConcept)
	assert.Empty(t, text.prompts)
	assert.Contains(t, res.Prompt, "Subject: Royal Mail fined £20,000")
}
