package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAI_Generate(t *testing.T) {
	t.Parallel()

	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Strong match: 82%"}}]}`))
	}))
	defer srv.Close()

	o := &OpenAI{
		BaseURL: srv.URL + "/v1/",
		APIKey:  "sk-test",
		Options: Options{Model: "gpt-3.5-turbo", Temperature: 0.7, MaxTokens: 1000},
		HTTP:    srv.Client(),
	}
	text, err := o.Generate(context.Background(), Prompt{System: "sys", User: "usr"})
	require.NoError(t, err)
	assert.Equal(t, "Strong match: 82%", text)

	assert.Equal(t, "gpt-3.5-turbo", got.Model)
	assert.Equal(t, 1000, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "usr", got.Messages[1].Content)
}

func TestOpenAI_MissingKey(t *testing.T) {
	t.Parallel()

	o := &OpenAI{BaseURL: "http://127.0.0.1:1", HTTP: http.DefaultClient}
	_, err := o.Generate(context.Background(), Prompt{User: "x"})

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "OpenAI API key not configured", pe.Message)
	assert.Zero(t, pe.Status)
}

func TestOpenAI_UpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests"}}`))
	}))
	defer srv.Close()

	o := &OpenAI{BaseURL: srv.URL, APIKey: "k", HTTP: srv.Client()}
	_, err := o.Generate(context.Background(), Prompt{User: "x"})

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusTooManyRequests, pe.Status)
	assert.Equal(t, "Rate limit reached", pe.Message)
	assert.Contains(t, err.Error(), "OpenAI API error")
}

func TestOpenAI_ShapeMismatch(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"no choices":      `{"id":"x"}`,
		"empty choices":   `{"choices":[]}`,
		"content wrong":   `{"choices":[{"message":{"content":42}}]}`,
		"not json at all": `<html>gateway</html>`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			o := &OpenAI{BaseURL: srv.URL, APIKey: "k", HTTP: srv.Client()}
			_, err := o.Generate(context.Background(), Prompt{User: "x"})

			var pe *Error
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, "malformed response", pe.Message)
			assert.Error(t, pe.Err)
		})
	}
}

func TestOllama_Generate(t *testing.T) {
	t.Parallel()

	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"model":"mistral:latest","response":"## Overall Match\n70%","done":true}`))
	}))
	defer srv.Close()

	for _, base := range []string{srv.URL, srv.URL + "/api/generate"} {
		o := &Ollama{URL: base, Options: Options{Model: "mistral:latest", MaxTokens: 2000}, HTTP: srv.Client()}
		text, err := o.Generate(context.Background(), Prompt{System: "sys", User: "usr"})
		require.NoError(t, err)
		assert.Equal(t, "## Overall Match\n70%", text)
	}
	assert.False(t, got.Stream)
	assert.Equal(t, "sys\n\nusr", got.Prompt)
	assert.Equal(t, 2000, got.Options.NumPredict)
}

func TestOllama_UpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'mistral:latest' not found"}`))
	}))
	defer srv.Close()

	o := &Ollama{URL: srv.URL, HTTP: srv.Client()}
	_, err := o.Generate(context.Background(), Prompt{User: "x"})

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "model 'mistral:latest' not found", pe.Message)
}

func TestOllama_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	o := &Ollama{URL: url, HTTP: http.DefaultClient}
	_, err := o.Generate(context.Background(), Prompt{User: "x"})

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Zero(t, pe.Status)
	assert.Error(t, pe.Err)
}
