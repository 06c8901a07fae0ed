// Package gemini speaks the generateContent REST protocol for the text and
// image models.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/coverly/pkg/retryhttp"
)

const (
	DefaultBaseURL    = "https://generativelanguage.googleapis.com/v1beta/models"
	DefaultTextModel  = "gemini-2.5-flash"
	DefaultImageModel = "gemini-2.5-flash-image"

	DefaultTextTimeout  = 30 * time.Second
	DefaultImageTimeout = 60 * time.Second

	apiKeyHeader = "x-goog-api-key"
)

var (
	ErrNoCredential    = errors.New("API key is not configured")
	ErrInvalidResponse = errors.New("no image data in API response")
	ErrEmptyImage      = errors.New("decoded image is empty")
)

// AuthMode selects where the API key travels.
type AuthMode string

const (
	AuthHeader AuthMode = "header"
	AuthQuery  AuthMode = "query"
)

func ParseAuthMode(s string, def AuthMode) AuthMode {
	switch AuthMode(strings.ToLower(s)) {
	case AuthHeader:
		return AuthHeader
	case AuthQuery:
		return AuthQuery
	default:
		return def
	}
}

// Credentials resolves the API key at call time so that a key saved at
// runtime is picked up without a restart.
type Credentials interface {
	APIKey(ctx context.Context) (string, error)
}

type Config struct {
	BaseURL      string
	TextModel    string
	ImageModel   string
	TextAuth     AuthMode
	ImageAuth    AuthMode
	TextTimeout  time.Duration
	ImageTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.TextModel == "" {
		c.TextModel = DefaultTextModel
	}
	if c.ImageModel == "" {
		c.ImageModel = DefaultImageModel
	}
	if c.TextAuth == "" {
		c.TextAuth = AuthQuery
	}
	if c.ImageAuth == "" {
		c.ImageAuth = AuthHeader
	}
	if c.TextTimeout <= 0 {
		c.TextTimeout = DefaultTextTimeout
	}
	if c.ImageTimeout <= 0 {
		c.ImageTimeout = DefaultImageTimeout
	}
}

type Client struct {
	cfg    Config
	http   *retryhttp.Client
	creds  Credentials
	logger *zap.Logger
}

func NewClient(cfg Config, httpClient *retryhttp.Client, creds Credentials, logger *zap.Logger) *Client {
	cfg.setDefaults()
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		creds:  creds,
		logger: logger,
	}
}

// GenerateText runs the text model with search grounding and returns the
// first candidate's text.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	body := textRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: textGenerationConfig{
			Temperature:     0.7,
			MaxOutputTokens: 1000,
			ThinkingConfig:  thinkingConfig{ThinkingBudget: 0},
		},
		Tools: []tool{{GoogleSearch: &struct{}{}}},
	}

	resp, err := c.post(ctx, c.cfg.TextModel, c.cfg.TextAuth, body, c.cfg.TextTimeout)
	if err != nil {
		return "", err
	}

	var decoded generateResponse
	if err := resp.Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	text, ok := decoded.firstText()
	if !ok {
		return "", fmt.Errorf("%w: no text candidate", ErrInvalidResponse)
	}
	return strings.TrimSpace(text), nil
}

// GenerateImage runs the image model. aspectRatio may be empty to let the
// model choose.
func (c *Client) GenerateImage(ctx context.Context, prompt, aspectRatio string) (*Image, error) {
	body := imageRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: imageGenerationConfig{
			ResponseModalities: []string{"Image"},
		},
	}
	if aspectRatio != "" {
		body.GenerationConfig.ImageConfig = &imageConfig{AspectRatio: aspectRatio}
	}

	resp, err := c.post(ctx, c.cfg.ImageModel, c.cfg.ImageAuth, body, c.cfg.ImageTimeout)
	if err != nil {
		return nil, err
	}

	return ExtractImage(resp.Body)
}

func (c *Client) post(ctx context.Context, model string, mode AuthMode, body any, timeout time.Duration) (*retryhttp.Response, error) {
	key, err := c.creds.APIKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve API key: %w", err)
	}
	if key == "" {
		return nil, ErrNoCredential
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s:generateContent", c.cfg.BaseURL, model)
	headers := map[string]string{}
	switch mode {
	case AuthQuery:
		endpoint += "?key=" + url.QueryEscape(key)
	default:
		headers[apiKeyHeader] = key
	}

	start := time.Now()
	resp, err := c.http.Post(ctx, endpoint, headers, payload, timeout)
	if err != nil {
		c.logger.Warn("Gemini request failed",
			zap.String("model", model),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return nil, err
	}

	c.logger.Debug("Gemini request completed",
		zap.String("model", model),
		zap.Int("response_bytes", len(resp.Body)),
		zap.Duration("duration", time.Since(start)))
	return resp, nil
}
