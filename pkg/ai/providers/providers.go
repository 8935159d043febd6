// Package providers holds the HTTP clients for the supported text
// generation backends.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// Prompt is a rendered generation request. Providers without a separate
// system role concatenate System and User.
type Prompt struct {
	System string
	User   string
}

// Options are the sampling parameters shared by every provider.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Error is returned for any failed upstream call. Message carries the
// provider's own error text when the response included one.
type Error struct {
	Provider string
	Status   int
	Message  string
	Err      error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("%s API error: status %d: %s", e.Provider, e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s API error: %s: %v", e.Provider, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s API error: %s", e.Provider, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// postJSON sends payload to url and returns the raw body. Non-2xx statuses
// are mapped to *Error using shape to pull the upstream message.
func postJSON(ctx context.Context, hc *http.Client, provider, url string, headers map[string]string, payload any, shape *responseShape) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Provider: provider, Message: "encode request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, &Error{Provider: provider, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	slog.DebugContext(ctx, "provider request", "provider", provider, "url", url, "bytes", len(b))

	resp, err := hc.Do(req)
	if err != nil {
		return nil, &Error{Provider: provider, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Provider: provider, Message: "read response", Err: err}
	}
	slog.DebugContext(ctx, "provider response", "provider", provider, "status", resp.StatusCode, "bytes", len(rb))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Provider: provider, Status: resp.StatusCode, Message: shape.upstreamMessage(rb, resp.Status)}
	}
	return rb, nil
}
