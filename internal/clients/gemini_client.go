package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/adverant/nexus/segment-worker/internal/logging"
)

const geminiAttempts = 3

// GeminiClient runs prompts against the hosted Gemini API
type GeminiClient struct {
	client *genai.Client
	model  string
	logger *logging.Logger
}

// NewGeminiClient opens a Gemini client. Call Close when done.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}

	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: cl,
		model:  strings.TrimSpace(model),
		logger: logging.NewLogger("GeminiClient"),
	}, nil
}

// Name identifies the backend in logs and errors
func (c *GeminiClient) Name() string { return "gemini" }

// Close releases the underlying connection
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// Generate sends the prompt and any images, retrying transient failures
func (c *GeminiClient) Generate(ctx context.Context, req *ReasoningRequest) (string, error) {
	m := c.client.GenerativeModel(c.model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: ptrFloat32(0),
	}
	if req.JSON {
		m.GenerationConfig.ResponseMIMEType = "application/json"
	}
	if req.System != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}

	parts := []genai.Part{genai.Text(req.Prompt)}
	for _, img := range req.Images {
		parts = append(parts, &genai.Blob{MIMEType: http.DetectContentType(img), Data: img})
	}

	var lastErr error
	for attempt := 1; attempt <= geminiAttempts; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err != nil {
			lastErr = err
			c.logger.Warn("Gemini request failed, retrying",
				"attempt", attempt,
				"error", err)

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}

		txt := firstText(resp)
		if txt == "" {
			return "", fmt.Errorf("gemini: empty response")
		}
		return txt, nil
	}

	return "", fmt.Errorf("gemini: all %d attempts failed: %w", geminiAttempts, lastErr)
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
