package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/adverant/nexus/segment-worker/internal/logging"
)

// OllamaClient runs prompts against a local Ollama server
type OllamaClient struct {
	client      *api.Client
	model       string
	visionModel string
	logger      *logging.Logger
}

// NewOllamaClient creates a client for the server at ollamaURL. Prompts with
// images go to visionModel, everything else to model.
func NewOllamaClient(ollamaURL, model, visionModel string) (*OllamaClient, error) {
	parsed, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid Ollama URL %q: scheme and host are required", ollamaURL)
	}

	// Drop any path such as /api/chat; the SDK adds its own.
	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}

	return &OllamaClient{
		client:      api.NewClient(base, &http.Client{Timeout: 300 * time.Second}),
		model:       model,
		visionModel: visionModel,
		logger:      logging.NewLogger("OllamaClient"),
	}, nil
}

// Name identifies the backend in logs and errors
func (c *OllamaClient) Name() string { return "ollama" }

// Generate sends one non-streaming chat request
func (c *OllamaClient) Generate(ctx context.Context, req *ReasoningRequest) (string, error) {
	model := c.model
	if len(req.Images) > 0 && c.visionModel != "" {
		model = c.visionModel
	}

	messages := make([]api.Message, 0, 2)
	if req.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.System})
	}
	user := api.Message{Role: "user", Content: req.Prompt}
	for _, img := range req.Images {
		user.Images = append(user.Images, api.ImageData(img))
	}
	messages = append(messages, user)

	streamFalse := false
	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   &streamFalse,
		Options:  map[string]any{"temperature": 0},
	}
	if req.JSON {
		chatReq.Format = json.RawMessage(`"json"`)
	}

	start := time.Now()
	var content string
	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		content += resp.Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat error: %w", err)
	}
	if content == "" {
		return "", fmt.Errorf("empty response from ollama")
	}

	c.logger.Debug("Ollama chat complete",
		"model", model,
		"images", len(req.Images),
		"responseLength", len(content),
		"duration", time.Since(start).String())

	return content, nil
}

// HealthCheck verifies the Ollama server answers
func (c *OllamaClient) HealthCheck(ctx context.Context) error {
	if err := c.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama health check failed: %w", err)
	}
	return nil
}
