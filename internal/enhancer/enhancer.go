// Package enhancer sends listing photos to a generative image model.
package enhancer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/prperemyshlev/photo-enhancer/internal/config"
)

// ErrNotConfigured is returned by the unavailable enhancer
var ErrNotConfigured = errors.New("image enhancer is not configured")

// Result is what the model returned. Image is nil when the model answered
// with text only.
type Result struct {
	Image    []byte
	MIMEType string
	Text     string
}

// Enhancer turns an image and a prompt into an edited image
type Enhancer interface {
	Enhance(ctx context.Context, image []byte, mimeType, prompt string) (*Result, error)
}

// GeminiEnhancer calls a Gemini image model through the genai SDK
type GeminiEnhancer struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGeminiEnhancer creates a client for cfg.Model
func NewGeminiEnhancer(ctx context.Context, cfg config.EnhancerConfig, logger *zap.Logger) (*GeminiEnhancer, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}

	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiEnhancer{
		client: client,
		model:  cfg.Model,
		logger: logger,
	}, nil
}

// Enhance sends the image followed by the prompt and asks for both text and
// image output
func (g *GeminiEnhancer) Enhance(ctx context.Context, image []byte, mimeType, prompt string) (*Result, error) {
	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{Data: image, MIMEType: mimeType}},
			{Text: prompt},
		},
	}}

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	result := extractResult(resp)
	g.logger.Debug("Gemini response received",
		zap.String("model", g.model),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("has_image", result.Image != nil),
		zap.Int("text_length", len(result.Text)),
	)

	return result, nil
}

// extractResult takes the first inline image of the first candidate and joins
// all text parts
func extractResult(resp *genai.GenerateContentResponse) *Result {
	result := &Result{}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return result
	}

	var texts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" {
			texts = append(texts, part.Text)
		}
		if result.Image == nil && part.InlineData != nil && len(part.InlineData.Data) > 0 &&
			strings.HasPrefix(part.InlineData.MIMEType, "image/") {
			result.Image = part.InlineData.Data
			result.MIMEType = part.InlineData.MIMEType
		}
	}
	result.Text = strings.Join(texts, "\n")

	return result
}

// Unavailable is used when no API key is configured. Every call fails, which
// callers treat as a soft failure.
type Unavailable struct{}

// Enhance always returns ErrNotConfigured
func (Unavailable) Enhance(context.Context, []byte, string, string) (*Result, error) {
	return nil, ErrNotConfigured
}
