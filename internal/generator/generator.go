// Package generator defines the generative AI capabilities the services
// depend on. Concrete providers live in the gemini and openai sub-packages;
// services only ever see these interfaces, so the provider is picked once in
// main from configuration.
package generator

import (
	"context"
	"errors"
)

// TextGenerator turns a prompt into plain text.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// ImageGenerator produces one image for a prompt. gender is a hint some
// providers use to pick a figure; it may be ignored.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, gender string) (*Image, error)
}

// PhotoAnalyzer describes the outfit on a user's photo.
type PhotoAnalyzer interface {
	AnalyzePhoto(ctx context.Context, image []byte, mimeType string) (string, error)
}

// Image is a generated picture in its encoded form (PNG, JPEG, ...).
type Image struct {
	Data     []byte
	MimeType string
}

var (
	// ErrEmptyResponse means the provider answered but returned nothing usable.
	ErrEmptyResponse = errors.New("provider returned an empty response")

	// ErrPermanent marks failures that will not go away on retry
	// (bad request, invalid key, blocked prompt).
	ErrPermanent = errors.New("permanent provider failure")
)

// Retryable reports whether a failed call is worth repeating.
func Retryable(err error) bool {
	return err != nil && !errors.Is(err, ErrPermanent)
}
