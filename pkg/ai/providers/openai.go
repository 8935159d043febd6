package providers

import (
	"context"
	"net/http"
	"strings"
)

const openAIName = "OpenAI"

var openAIShape = mustShape(`{
  "type": "object",
  "required": ["choices"],
  "properties": {
    "choices": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["message"],
        "properties": {
          "message": {
            "type": "object",
            "required": ["content"],
            "properties": {"content": {"type": "string"}}
          }
        }
      }
    }
  }
}`, "choices[0].message.content", "error.message")

// OpenAI calls the chat completions API.
type OpenAI struct {
	BaseURL string
	APIKey  string
	Options Options
	HTTP    *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

func (o *OpenAI) Generate(ctx context.Context, p Prompt) (string, error) {
	if strings.TrimSpace(o.APIKey) == "" {
		return "", &Error{Provider: openAIName, Message: "OpenAI API key not configured"}
	}
	req := chatRequest{
		Model: o.Options.Model,
		Messages: []chatMessage{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
		Temperature: o.Options.Temperature,
		MaxTokens:   o.Options.MaxTokens,
	}
	url := strings.TrimRight(o.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + o.APIKey}

	body, err := postJSON(ctx, o.HTTP, openAIName, url, headers, req, openAIShape)
	if err != nil {
		return "", err
	}
	text, err := openAIShape.extract(body)
	if err != nil {
		return "", &Error{Provider: openAIName, Message: "malformed response", Err: err}
	}
	return text, nil
}
