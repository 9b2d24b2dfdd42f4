package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// OllamaConnector implements the Connector interface for a local Ollama
// server. Ollama is the default single-path backend: free, local, and
// always the first council seat.
type OllamaConnector struct {
	baseConnector
}

// NewOllamaConnector creates a new Ollama connector.
func NewOllamaConnector(name, endpoint, model string) *OllamaConnector {
	if endpoint == "" {
		endpoint = "http://127.0.0.1:11434"
	}
	return &OllamaConnector{
		baseConnector: newBaseConnector(name, endpoint, "", model),
	}
}

// Available reports true when an endpoint is configured. Reachability is
// only known at invoke time.
func (c *OllamaConnector) Available() bool {
	return c.endpoint != ""
}

// Invoke sends the input to Ollama's chat endpoint.
func (c *OllamaConnector) Invoke(ctx context.Context, req *InvokeRequest) (*Payload, error) {
	start := time.Now()

	ollamaReq := ollamaChatRequest{
		Model: c.model,
		Messages: []ollamaMessage{
			{Role: "system", Content: intentSystemPrompt},
			{Role: "user", Content: buildUserPrompt(req)},
		},
		Stream: false,
		Format: "json",
	}

	body, err := json.Marshal(ollamaReq)
	if err != nil {
		return nil, c.failf(FailureRemote, "marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, c.failf(FailureRemote, "create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, c.classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := readLimitedBody(resp.Body, MaxErrorBodySize)
		return nil, c.failf(FailureRemote, "ollama error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	raw, err := readLimitedBody(resp.Body, MaxResponseSize)
	if err != nil {
		return nil, c.classifyTransport(ctx, err)
	}

	var ollamaResp ollamaChatResponse
	if err := json.Unmarshal(raw, &ollamaResp); err != nil {
		return nil, c.failf(FailureMalformed, "decode response: %w", err)
	}

	payload, err := parsePayloadText(ollamaResp.Message.Content)
	if err != nil {
		return nil, c.failf(FailureMalformed, "%w", err)
	}

	payload.Model = ollamaResp.Model
	payload.Latency = time.Since(start)
	return payload, nil
}

// Ollama API types
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}
