package providers

import (
	"context"
	"net/http"
	"strings"
)

const ollamaName = "Ollama"

var ollamaShape = mustShape(`{
  "type": "object",
  "required": ["response"],
  "properties": {"response": {"type": "string"}}
}`, "response", "error")

// Ollama calls a local Ollama server's generate endpoint without streaming.
type Ollama struct {
	// URL is the server root or the full /api/generate endpoint.
	URL     string
	Options Options
	HTTP    *http.Client
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

func (o *Ollama) Generate(ctx context.Context, p Prompt) (string, error) {
	prompt := p.User
	if p.System != "" {
		prompt = p.System + "\n\n" + p.User
	}
	req := generateRequest{
		Model:  o.Options.Model,
		Prompt: prompt,
		Options: generateOptions{
			Temperature: o.Options.Temperature,
			NumPredict:  o.Options.MaxTokens,
		},
	}
	body, err := postJSON(ctx, o.HTTP, ollamaName, o.endpoint(), nil, req, ollamaShape)
	if err != nil {
		return "", err
	}
	text, err := ollamaShape.extract(body)
	if err != nil {
		return "", &Error{Provider: ollamaName, Message: "malformed response", Err: err}
	}
	return text, nil
}

func (o *Ollama) endpoint() string {
	u := strings.TrimRight(o.URL, "/")
	if strings.HasSuffix(u, "/api/generate") {
		return u
	}
	return u + "/api/generate"
}
