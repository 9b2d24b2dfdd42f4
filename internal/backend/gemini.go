package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// GeminiConnector implements the Connector interface for Google Gemini.
type GeminiConnector struct {
	baseConnector
}

// NewGeminiConnector creates a new Gemini connector.
func NewGeminiConnector(name, endpoint, apiKey, model string) *GeminiConnector {
	if endpoint == "" {
		endpoint = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &GeminiConnector{
		baseConnector: newBaseConnector(name, endpoint, apiKey, model),
	}
}

// Available checks if the API key is configured.
func (c *GeminiConnector) Available() bool {
	return c.apiKey != ""
}

// Invoke sends the input to the generateContent endpoint.
func (c *GeminiConnector) Invoke(ctx context.Context, req *InvokeRequest) (*Payload, error) {
	if c.apiKey == "" {
		return nil, c.failf(FailureRemote, "Gemini API key not configured")
	}

	start := time.Now()

	geminiReq := geminiRequest{
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: intentSystemPrompt}},
		},
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: buildUserPrompt(req)}}},
		},
	}

	body, err := json.Marshal(geminiReq)
	if err != nil {
		return nil, c.failf(FailureRemote, "marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.endpoint, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
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
		return nil, c.failf(FailureRemote, "Gemini error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	raw, err := readLimitedBody(resp.Body, MaxResponseSize)
	if err != nil {
		return nil, c.classifyTransport(ctx, err)
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(raw, &geminiResp); err != nil {
		return nil, c.failf(FailureMalformed, "decode response: %w", err)
	}
	if len(geminiResp.Candidates) == 0 {
		return nil, c.failf(FailureMalformed, "response has no candidates")
	}

	var content string
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		content += part.Text
	}

	payload, err := parsePayloadText(content)
	if err != nil {
		return nil, c.failf(FailureMalformed, "%w", err)
	}

	payload.Model = c.model
	payload.Latency = time.Since(start)
	return payload, nil
}

// Gemini API types
type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}
