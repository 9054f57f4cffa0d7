package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestGeminiClient_Generate(t *testing.T) {
	var gotPath, gotKey, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"{\"items\":[]}"}]}}]}`)
	}))
	defer srv.Close()

	c := NewGeminiClient(GeminiConfig{APIKey: "secret", Model: "gemini-test", BaseURL: srv.URL + "/"})
	require.True(t, c.Configured())

	text, err := c.Generate(context.Background(), "salut", CallOptions{JSONMode: true})
	require.NoError(t, err)
	assert.Equal(t, `{"items":[]}`, text)

	assert.Equal(t, "/v1beta/models/gemini-test:generateContent", gotPath)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "salut", gjson.Get(gotBody, "contents.0.parts.0.text").String())
	assert.Equal(t, "application/json", gjson.Get(gotBody, "generationConfig.response_mime_type").String())
}

func TestGeminiClient_PlainModeOmitsGenerationConfig(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"task"}]}}]}`)
	}))
	defer srv.Close()

	c := NewGeminiClient(GeminiConfig{APIKey: "k", BaseURL: srv.URL})
	text, err := c.Generate(context.Background(), "x", CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "task", text)
	assert.False(t, gjson.Get(gotBody, "generationConfig").Exists())
}

func TestGeminiClient_Errors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantMalformed bool
	}{
		{name: "server error", status: http.StatusServiceUnavailable, body: `{"error":"overloaded"}`},
		{name: "not json", status: http.StatusOK, body: `<html>`, wantMalformed: true},
		{name: "no candidates", status: http.StatusOK, body: `{"candidates":[]}`, wantMalformed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c := NewGeminiClient(GeminiConfig{APIKey: "k", BaseURL: srv.URL})
			_, err := c.Generate(context.Background(), "x", CallOptions{})
			require.Error(t, err)
			if tt.wantMalformed {
				assert.ErrorIs(t, err, ErrMalformedResponse)
			} else {
				assert.NotErrorIs(t, err, ErrMalformedResponse)
				assert.Contains(t, err.Error(), "503")
			}
		})
	}
}

func TestGeminiClient_NotConfigured(t *testing.T) {
	assert.False(t, NewGeminiClient(GeminiConfig{}).Configured())
}
