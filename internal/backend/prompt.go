package backend

import (
	"encoding/json"
	"fmt"
	"strings"
)

// intentSystemPrompt instructs a backend to answer with the three intent
// vector slots as a bare JSON object. Kept deliberately rigid: the parser
// rejects anything that is not the declared shape.
const intentSystemPrompt = `You decompose a request into intent vectors.
Respond with ONLY a JSON object of this exact shape, no prose:
{"explicit": [...], "implicit": [...], "deep": [...]}
"explicit" lists meaning units the text states outright.
"implicit" lists meaning units the text assumes or entails.
"deep" lists meaning units behind the request's underlying goal.
Each entry is a short lowercase token or phrase. Omit nothing stated; invent nothing.`

// buildUserPrompt renders the invocation request for a backend.
func buildUserPrompt(req *InvokeRequest) string {
	var sb strings.Builder
	sb.WriteString("Input:\n")
	sb.WriteString(req.Text)
	if len(req.Units) > 0 {
		sb.WriteString("\n\nExtracted meaning units (anchor on these):\n")
		sb.WriteString(strings.Join(req.Units, ", "))
	}
	return sb.String()
}

// parsePayloadText parses a backend's text completion into a Payload.
// Models routinely wrap JSON in code fences; everything else nonconforming
// is a malformed response.
func parsePayloadText(text string) (*Payload, error) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	// Some models prepend a sentence before the object despite instructions.
	// Recover by slicing from the first brace to the last.
	if !strings.HasPrefix(trimmed, "{") {
		start := strings.Index(trimmed, "{")
		end := strings.LastIndex(trimmed, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("no JSON object in response")
		}
		trimmed = trimmed[start : end+1]
	}

	var payload Payload
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return nil, fmt.Errorf("decode intent payload: %w", err)
	}

	payload.normalize()
	return &payload, nil
}
