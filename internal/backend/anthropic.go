package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// AnthropicConnector implements the Connector interface for Anthropic Claude.
type AnthropicConnector struct {
	baseConnector
}

// NewAnthropicConnector creates a new Anthropic connector.
func NewAnthropicConnector(name, endpoint, apiKey, model string) *AnthropicConnector {
	if endpoint == "" {
		endpoint = "https://api.anthropic.com"
	}
	return &AnthropicConnector{
		baseConnector: newBaseConnector(name, endpoint, apiKey, model),
	}
}

// Available checks if the API key is configured.
func (c *AnthropicConnector) Available() bool {
	return c.apiKey != ""
}

// Invoke sends the input to the messages endpoint.
func (c *AnthropicConnector) Invoke(ctx context.Context, req *InvokeRequest) (*Payload, error) {
	if c.apiKey == "" {
		return nil, c.failf(FailureRemote, "Anthropic API key not configured")
	}

	start := time.Now()

	anthropicReq := anthropicChatRequest{
		Model:     c.model,
		System:    intentSystemPrompt,
		MaxTokens: 1024,
		Messages: []anthropicMessage{
			{Role: "user", Content: buildUserPrompt(req)},
		},
	}

	body, err := json.Marshal(anthropicReq)
	if err != nil {
		return nil, c.failf(FailureRemote, "marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, c.failf(FailureRemote, "create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, c.classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := readLimitedBody(resp.Body, MaxErrorBodySize)
		return nil, c.failf(FailureRemote, "Anthropic error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	raw, err := readLimitedBody(resp.Body, MaxResponseSize)
	if err != nil {
		return nil, c.classifyTransport(ctx, err)
	}

	var anthropicResp anthropicChatResponse
	if err := json.Unmarshal(raw, &anthropicResp); err != nil {
		return nil, c.failf(FailureMalformed, "decode response: %w", err)
	}

	var content string
	for _, block := range anthropicResp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	payload, err := parsePayloadText(content)
	if err != nil {
		return nil, c.failf(FailureMalformed, "%w", err)
	}

	payload.Model = anthropicResp.Model
	payload.Latency = time.Since(start)
	return payload, nil
}

// Anthropic API types
type anthropicChatRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicChatResponse struct {
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}
