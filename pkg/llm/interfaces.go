// Package llm provides vision-capable model clients for drawing sheet analysis.
package llm

import (
	"context"
)

// VisionClient sends one image plus a prompt to a vision-capable model and
// returns the model's text response.
// Use this interface for dependency injection to enable mocking in tests.
type VisionClient interface {
	// AnalyzeImage sends the image bytes (with their media type, e.g. "image/png")
	// and the prompt in a single user turn.
	AnalyzeImage(ctx context.Context, image []byte, mediaType, prompt string) (string, error)

	// GetModel returns the configured model name.
	GetModel() string
}

// Ensure the provider clients implement VisionClient at compile time.
var (
	_ VisionClient = (*AnthropicVisionClient)(nil)
	_ VisionClient = (*OpenAIVisionClient)(nil)
)
