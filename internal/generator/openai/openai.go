// Package openai implements generator.ImageGenerator on the OpenAI Images
// API through github.com/sashabaranov/go-openai.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/outfit-calendar/internal/generator"
	goopenai "github.com/sashabaranov/go-openai"
)

const (
	DefaultModel = "gpt-image-1"
	DefaultSize  = goopenai.CreateImageSize512x512
)

var allowedSizes = map[string]bool{
	goopenai.CreateImageSize256x256:   true,
	goopenai.CreateImageSize512x512:   true,
	goopenai.CreateImageSize1024x1024: true,
}

// NormalizeSize lower-cases and strips spaces from size and falls back to
// DefaultSize for anything the API does not accept.
func NormalizeSize(size string) string {
	s := strings.ToLower(strings.Join(strings.Fields(size), ""))
	if allowedSizes[s] {
		return s
	}
	return DefaultSize
}

// Config holds what New needs. BaseURL is for tests and proxies.
type Config struct {
	APIKey  string
	Model   string
	Size    string
	BaseURL string
}

// ImageGenerator calls the Images endpoint. Safe for concurrent use.
type ImageGenerator struct {
	client *goopenai.Client
	model  string
	size   string
	logger *slog.Logger
}

var _ generator.ImageGenerator = (*ImageGenerator)(nil)

// New creates an OpenAI image generator.
func New(cfg Config, logger *slog.Logger) (*ImageGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &ImageGenerator{
		client: goopenai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		size:   NormalizeSize(cfg.Size),
		logger: logger,
	}, nil
}

// GenerateImage requests a single image and decodes the base64 payload.
// The gender hint is already part of the prompt.
func (g *ImageGenerator) GenerateImage(ctx context.Context, prompt, _ string) (*generator.Image, error) {
	req := goopenai.ImageRequest{
		Prompt: prompt,
		Model:  g.model,
		Size:   g.size,
		N:      1,
	}
	// gpt-image models always answer in base64 and reject response_format.
	if strings.HasPrefix(g.model, "dall-e") {
		req.ResponseFormat = goopenai.CreateImageResponseFormatB64JSON
	}

	resp, err := g.client.CreateImage(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai: image generation failed: %w", classify(err))
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("openai: no b64 image in response: %w", generator.ErrEmptyResponse)
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("openai: decoding image: %w", err)
	}

	g.logger.Debug("openai image generated",
		slog.String("model", g.model),
		slog.String("size", g.size),
		slog.Int("bytes", len(data)),
	)
	return &generator.Image{Data: data, MimeType: http.DetectContentType(data)}, nil
}

func classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.HTTPStatusCode
		if code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusRequestTimeout {
			return errors.Join(generator.ErrPermanent, err)
		}
	}
	return err
}
