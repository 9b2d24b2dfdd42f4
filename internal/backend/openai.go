package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// OpenAIConnector implements the Connector interface for OpenAI-compatible
// chat completion APIs.
type OpenAIConnector struct {
	baseConnector
}

// NewOpenAIConnector creates a new OpenAI connector.
func NewOpenAIConnector(name, endpoint, apiKey, model string) *OpenAIConnector {
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}
	return &OpenAIConnector{
		baseConnector: newBaseConnector(name, endpoint, apiKey, model),
	}
}

// Available checks if the API key is configured.
func (c *OpenAIConnector) Available() bool {
	return c.apiKey != ""
}

// Invoke sends the input to the chat completions endpoint.
func (c *OpenAIConnector) Invoke(ctx context.Context, req *InvokeRequest) (*Payload, error) {
	if c.apiKey == "" {
		return nil, c.failf(FailureRemote, "OpenAI API key not configured")
	}

	start := time.Now()

	openaiReq := openaiChatRequest{
		Model: c.model,
		Messages: []openaiMessage{
			{Role: "system", Content: intentSystemPrompt},
			{Role: "user", Content: buildUserPrompt(req)},
		},
		ResponseFormat: &openaiResponseFormat{Type: "json_object"},
	}

	body, err := json.Marshal(openaiReq)
	if err != nil {
		return nil, c.failf(FailureRemote, "marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, c.failf(FailureRemote, "create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, c.classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := readLimitedBody(resp.Body, MaxErrorBodySize)
		return nil, c.failf(FailureRemote, "OpenAI error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	raw, err := readLimitedBody(resp.Body, MaxResponseSize)
	if err != nil {
		return nil, c.classifyTransport(ctx, err)
	}

	var openaiResp openaiChatResponse
	if err := json.Unmarshal(raw, &openaiResp); err != nil {
		return nil, c.failf(FailureMalformed, "decode response: %w", err)
	}
	if len(openaiResp.Choices) == 0 {
		return nil, c.failf(FailureMalformed, "response has no choices")
	}

	payload, err := parsePayloadText(openaiResp.Choices[0].Message.Content)
	if err != nil {
		return nil, c.failf(FailureMalformed, "%w", err)
	}

	payload.Model = openaiResp.Model
	payload.Latency = time.Since(start)
	return payload, nil
}

// OpenAI API types
type openaiChatRequest struct {
	Model          string                `json:"model"`
	Messages       []openaiMessage       `json:"messages"`
	ResponseFormat *openaiResponseFormat `json:"response_format,omitempty"`
}

type openaiResponseFormat struct {
	Type string `json:"type"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      openaiMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
}
