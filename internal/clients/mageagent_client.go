/**
 * MageAgent Client - reasoning through the Nexus orchestrator
 *
 * MageAgent selects the model itself; the worker only sends the task,
 * optional slide images and the expected response format.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/adverant/nexus/segment-worker/internal/logging"
)

// MageAgentClient handles communication with MageAgent service
type MageAgentClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// OrchestrateRequest represents a task sent to the orchestrator
type OrchestrateRequest struct {
	Task    string             `json:"task"`
	Context OrchestrateContext `json:"context"`
	Options OrchestrateOptions `json:"options"`
}

// OrchestrateContext carries the system instruction and images
type OrchestrateContext struct {
	System string   `json:"system,omitempty"`
	Images []string `json:"images,omitempty"` // Base64 encoded
}

// OrchestrateOptions tunes how MageAgent answers
type OrchestrateOptions struct {
	ResponseFormat string `json:"responseFormat,omitempty"` // "json" or "text"
	PreferAccuracy bool   `json:"preferAccuracy"`
}

// OrchestrateResponse represents a synchronous orchestrator answer
type OrchestrateResponse struct {
	Success bool            `json:"success"`
	Data    OrchestrateData `json:"data"`
	Message string          `json:"message"`
}

// OrchestrateData holds the model output. Result is either a JSON string or
// an inline JSON value.
type OrchestrateData struct {
	Result         json.RawMessage `json:"result"`
	ModelUsed      string          `json:"modelUsed"`
	ProcessingTime int64           `json:"processingTime"` // milliseconds
}

// NewMageAgentClient creates a new MageAgent client
func NewMageAgentClient(baseURL string) *MageAgentClient {
	return &MageAgentClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // Vision tasks can take time
		},
		logger: logging.NewLogger("MageAgentClient"),
	}
}

// Name identifies the backend in logs and errors
func (c *MageAgentClient) Name() string { return "mageagent" }

// Generate implements Reasoner on top of Orchestrate
func (c *MageAgentClient) Generate(ctx context.Context, req *ReasoningRequest) (string, error) {
	orchReq := &OrchestrateRequest{
		Task:    req.Prompt,
		Context: OrchestrateContext{System: req.System},
		Options: OrchestrateOptions{ResponseFormat: "text", PreferAccuracy: true},
	}
	if req.JSON {
		orchReq.Options.ResponseFormat = "json"
	}
	for _, img := range req.Images {
		orchReq.Context.Images = append(orchReq.Context.Images, base64.StdEncoding.EncodeToString(img))
	}

	resp, err := c.Orchestrate(ctx, orchReq)
	if err != nil {
		return "", err
	}
	return resultText(resp.Data.Result)
}

// Orchestrate posts a task to MageAgent's internal orchestration endpoint
func (c *MageAgentClient) Orchestrate(ctx context.Context, req *OrchestrateRequest) (*OrchestrateResponse, error) {
	c.logger.Debug("Sending task to MageAgent",
		"responseFormat", req.Options.ResponseFormat,
		"images", len(req.Context.Images),
		"taskLength", len(req.Task))

	// Use internal endpoint (rate-limit exempt for high throughput)
	endpoint := fmt.Sprintf("%s/api/internal/orchestrate", c.baseURL)

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Source", "segment-worker")
	httpReq.Header.Set("X-Request-ID", fmt.Sprintf("segment-%d", time.Now().UnixNano()))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to MageAgent failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("MageAgent returned error status %d: %s", resp.StatusCode, string(body))
	}

	var orchResp OrchestrateResponse
	if err := json.Unmarshal(body, &orchResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if !orchResp.Success {
		return nil, fmt.Errorf("MageAgent operation failed: %s", orchResp.Message)
	}

	c.logger.Debug("MageAgent task complete",
		"modelUsed", orchResp.Data.ModelUsed,
		"processingTime", orchResp.Data.ProcessingTime)

	return &orchResp, nil
}

// HealthCheck verifies MageAgent service is available
func (c *MageAgentClient) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/api/health", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

func resultText(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", fmt.Errorf("MageAgent returned no result")
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", fmt.Errorf("failed to decode MageAgent result: %w", err)
		}
		return s, nil
	}
	return string(trimmed), nil
}
