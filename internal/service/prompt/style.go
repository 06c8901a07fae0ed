package prompt

import "strings"

// Style is one of the fixed stylistic framings applied to a visual concept.
type Style string

const (
	Photographic Style = "photographic"
	Illustration Style = "illustration"
	Abstract     Style = "abstract"
	Minimal      Style = "minimal"
)

const placeholder = "{content}"

var templates = map[Style]string{
	Photographic: `Style: Professional photorealistic photograph, high-quality digital photography
Perspective: Centered composition, balanced framing, professional editorial layout
Lighting: Natural, well-lit, soft professional lighting with good contrast and depth
Subject: {content}
Context: Modern, professional setting with clean background, sharp focus on main subject
Emotion: Authoritative, trustworthy, clear and informative

Rules: No text, no words, no letters, no captions`,

	Illustration: `Style: Beautiful digital illustration, artistic rendering, hand-drawn aesthetic
Perspective: Dynamic composition with interesting angles and visual flow
Lighting: Vibrant, colorful lighting with artistic highlights and shadows
Subject: {content}
Context: Rich visual details, artistic interpretation, creative elements
Emotion: Engaging, creative, visually appealing and memorable

Rules: No text, no words, no letters, no captions`,

	Abstract: `Style: Modern abstract art, bold geometric or organic shapes
Perspective: Dynamic composition with visual movement and balance
Lighting: Dramatic lighting with strong contrast, bold color relationships
Subject: Abstract visual representation of {content}
Context: Contemporary art style, sophisticated color palette, artistic interpretation
Emotion: Thought-provoking, energetic, conceptual and expressive

Rules: No text, no words, no letters, no captions`,

	Minimal: `Style: Clean minimalist design, simple geometric forms
Perspective: Symmetrical or intentionally asymmetric composition, plenty of negative space
Lighting: Soft, even lighting with subtle gradients, clean and bright
Subject: Minimalist representation of {content}
Context: Simple, elegant, uncluttered visual with essential elements only
Emotion: Calm, sophisticated, clear and purposeful

Rules: No text, no words, no letters, no captions`,
}

// Styles lists the supported styles in display order.
func Styles() []Style {
	return []Style{Photographic, Illustration, Abstract, Minimal}
}

// ParseStyle maps external input such as a stored setting to a Style.
// Unrecognized values resolve to Photographic.
func ParseStyle(s string) Style {
	style := Style(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := templates[style]; ok {
		return style
	}
	return Photographic
}

// Apply substitutes concept into the style's template.
func (s Style) Apply(concept string) string {
	tmpl, ok := templates[s]
	if !ok {
		tmpl = templates[Photographic]
	}
	return strings.ReplaceAll(tmpl, placeholder, concept)
}

// Choice is either a named Style or a verbatim custom prompt.
type Choice struct {
	style  Style
	custom string
}

func Named(s Style) Choice {
	return Choice{style: s}
}

func Custom(text string) Choice {
	return Choice{custom: text}
}

// ChoiceFrom builds a Choice from loosely typed input: a non-empty custom
// prompt wins over any style name.
func ChoiceFrom(style, custom string) Choice {
	if strings.TrimSpace(custom) != "" {
		return Custom(custom)
	}
	return Named(ParseStyle(style))
}

func (c Choice) IsCustom() bool { return c.custom != "" }

// Style returns the named style, or Photographic for custom prompts.
func (c Choice) Style() Style {
	if c.style == "" {
		return Photographic
	}
	return c.style
}

func (c Choice) String() string {
	if c.IsCustom() {
		return "custom"
	}
	return string(c.Style())
}
