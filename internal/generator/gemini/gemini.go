// Package gemini implements the generator interfaces on Google's Gemini API
// through the google.golang.org/genai SDK.
//
// One Client serves all three capabilities: outfit text, photo analysis
// (multimodal prompt with inline image bytes) and image generation (the
// image model answers with an InlineData part).
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/outfit-calendar/internal/generator"
	"google.golang.org/genai"
)

const (
	DefaultTextModel  = "gemini-2.5-flash"
	DefaultImageModel = "gemini-2.5-flash-image"
)

// Config holds what New needs. BaseURL overrides the API endpoint and is
// only set by tests.
type Config struct {
	APIKey     string
	TextModel  string
	ImageModel string
	BaseURL    string
}

// Client talks to Gemini. Safe for concurrent use.
type Client struct {
	genai      *genai.Client
	textModel  string
	imageModel string
	logger     *slog.Logger
}

var (
	_ generator.TextGenerator  = (*Client)(nil)
	_ generator.ImageGenerator = (*Client)(nil)
	_ generator.PhotoAnalyzer  = (*Client)(nil)
)

// New creates a Gemini client.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if cfg.TextModel == "" {
		cfg.TextModel = DefaultTextModel
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = DefaultImageModel
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}

	return &Client{
		genai:      client,
		textModel:  cfg.TextModel,
		imageModel: cfg.ImageModel,
		logger:     logger,
	}, nil
}

// GenerateText asks the text model for an outfit suggestion.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{genai.NewPartFromText(prompt)},
	}}
	return c.generateText(ctx, contents, generator.StylistInstruction)
}

// AnalyzePhoto sends the photo inline with the analysis request.
func (c *Client) AnalyzePhoto(ctx context.Context, image []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			genai.NewPartFromText(generator.AnalysisRequest),
			genai.NewPartFromBytes(image, mimeType),
		},
	}}
	return c.generateText(ctx, contents, generator.AnalystInstruction)
}

func (c *Client) generateText(ctx context.Context, contents []*genai.Content, instruction string) (string, error) {
	result, err := c.genai.Models.GenerateContent(ctx, c.textModel, contents, &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(instruction)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("gemini: text call failed: %w", classify(err))
	}

	text := strings.TrimSpace(firstText(result))
	if text == "" {
		return "", fmt.Errorf("gemini: %w", generator.ErrEmptyResponse)
	}
	c.logger.Debug("gemini text generated",
		slog.String("model", c.textModel),
		slog.Int("chars", len(text)),
	)
	return text, nil
}

// GenerateImage asks the image model for a picture. The answer carries the
// bytes in an InlineData part; text parts (captions) are ignored.
func (c *Client) GenerateImage(ctx context.Context, prompt, _ string) (*generator.Image, error) {
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{genai.NewPartFromText(prompt)},
	}}

	result, err := c.genai.Models.GenerateContent(ctx, c.imageModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: image call failed: %w", classify(err))
	}

	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mimeType := part.InlineData.MIMEType
				if mimeType == "" {
					mimeType = http.DetectContentType(part.InlineData.Data)
				}
				c.logger.Debug("gemini image generated",
					slog.String("model", c.imageModel),
					slog.Int("bytes", len(part.InlineData.Data)),
				)
				return &generator.Image{Data: part.InlineData.Data, MimeType: mimeType}, nil
			}
		}
	}
	return nil, fmt.Errorf("gemini: no image data in response: %w", generator.ErrEmptyResponse)
}

func firstText(result *genai.GenerateContentResponse) string {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}

// classify marks client errors as permanent. 408 and 429 stay retryable,
// as does anything that is not an API error (network, 5xx).
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.Code
		if code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusRequestTimeout {
			return errors.Join(generator.ErrPermanent, err)
		}
	}
	return err
}
