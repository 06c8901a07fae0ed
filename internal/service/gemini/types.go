package gemini

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

type (
	part struct {
		Text string `json:"text,omitempty"`
	}

	content struct {
		Parts []part `json:"parts"`
	}

	thinkingConfig struct {
		ThinkingBudget int `json:"thinkingBudget"`
	}

	textGenerationConfig struct {
		Temperature     float64        `json:"temperature"`
		MaxOutputTokens int            `json:"maxOutputTokens"`
		ThinkingConfig  thinkingConfig `json:"thinkingConfig"`
	}

	tool struct {
		GoogleSearch *struct{} `json:"google_search,omitempty"`
	}

	textRequest struct {
		Contents         []content            `json:"contents"`
		GenerationConfig textGenerationConfig `json:"generationConfig"`
		Tools            []tool               `json:"tools"`
	}

	imageConfig struct {
		AspectRatio string `json:"aspectRatio"`
	}

	imageGenerationConfig struct {
		ResponseModalities []string     `json:"responseModalities"`
		ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
	}

	imageRequest struct {
		Contents         []content             `json:"contents"`
		GenerationConfig imageGenerationConfig `json:"generationConfig"`
	}
)

// responsePart keeps the raw JSON of each part so that extraction rules can
// look for either field-name variant.
type responsePart map[string]json.RawMessage

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []responsePart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (r *generateResponse) firstText() (string, bool) {
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return "", false
	}
	raw, ok := r.Candidates[0].Content.Parts[0]["text"]
	if !ok {
		return "", false
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", false
	}
	return text, true
}

// Image is a decoded inline image from the model.
type Image struct {
	Data     []byte
	MimeType string
}

// blobRule reads inline image data from a part under one naming variant.
type blobRule struct {
	field    string
	mimeType string
}

// Upstream has shipped both shapes; camelCase is current.
var blobRules = []blobRule{
	{field: "inlineData", mimeType: "mimeType"},
	{field: "inline_data", mimeType: "mime_type"},
}

func (r blobRule) match(p responsePart) (data, mimeType string, ok bool) {
	raw, found := p[r.field]
	if !found {
		return "", "", false
	}
	var blob map[string]string
	if err := json.Unmarshal(raw, &blob); err != nil {
		return "", "", false
	}
	data, found = blob["data"]
	if !found {
		return "", "", false
	}
	return data, blob[r.mimeType], true
}

// ExtractImage finds the first inline image in the first candidate. The
// MIME type is returned as sent, possibly empty.
func ExtractImage(body []byte) (*Image, error) {
	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates", ErrInvalidResponse)
	}

	for _, p := range resp.Candidates[0].Content.Parts {
		for _, rule := range blobRules {
			encoded, mimeType, ok := rule.match(p)
			if !ok {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid base64: %v", ErrInvalidResponse, err)
			}
			if len(data) == 0 {
				return nil, ErrEmptyImage
			}
			return &Image{Data: data, MimeType: mimeType}, nil
		}
	}

	return nil, ErrInvalidResponse
}
