package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicVisionClient analyzes images with the Anthropic Messages API.
type AnthropicVisionClient struct {
	client    *anthropic.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewAnthropicVisionClient creates a client for the Anthropic Messages API.
func NewAnthropicVisionClient(cfg *Config, logger *zap.Logger) (*AnthropicVisionClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}

	var opts []anthropic.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.Endpoint, "/")))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel
	}

	return &AnthropicVisionClient{
		client:    anthropic.NewClient(cfg.APIKey, opts...),
		model:     model,
		maxTokens: cfg.maxTokens(),
		logger:    logger.Named("anthropic-vision"),
	}, nil
}

// AnalyzeImage implements VisionClient.
func (c *AnthropicVisionClient) AnalyzeImage(ctx context.Context, image []byte, mediaType, prompt string) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(image)

	c.logger.Debug("Vision request",
		zap.String("model", c.model),
		zap.String("media_type", mediaType),
		zap.Int("image_bytes", len(image)))

	start := time.Now()

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				anthropic.NewImageMessageContent(anthropic.NewMessageContentSource(
					anthropic.MessagesContentSourceTypeBase64, mediaType, encoded)),
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		c.logger.Error("Vision request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", classifyForModel(err, c.model)
	}

	c.logger.Debug("Vision request completed",
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return textFromMessages(resp), nil
}

// GetModel implements VisionClient.
func (c *AnthropicVisionClient) GetModel() string {
	return c.model
}

// textFromMessages returns the first text block of a response.
func textFromMessages(resp anthropic.MessagesResponse) string {
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return *block.Text
		}
	}
	return ""
}
