package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"
)

func TestGenerateMapsRolesAndOptions(t *testing.T) {
	req := require.New(t)

	var captured generateRequest
	var path, apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path + "?" + r.URL.RawQuery
		apiKey = r.Header.Get("x-goog-api-key")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"hello "},{"text":"there"}]}}]}`))
	}))
	defer srv.Close()

	m, err := NewChatModel(Config{APIKey: "secret", Model: "gemini-test", BaseURL: srv.URL + "/"})
	req.NoError(err)

	out, err := m.Generate(context.Background(), []*schema.Message{
		schema.SystemMessage("be kind"),
		schema.UserMessage("hi"),
		schema.AssistantMessage("hello", nil),
		schema.UserMessage("how are you"),
	}, model.WithTemperature(0))
	req.NoError(err)
	req.Equal("hello there", out.Content)
	req.Equal(schema.Assistant, out.Role)

	req.Equal("/models/gemini-test:generateContent?", path)
	req.Equal("secret", apiKey)
	req.NotNil(captured.SystemInstruction)
	req.Equal("be kind", captured.SystemInstruction.Parts[0].Text)
	req.Len(captured.Contents, 3)
	req.Equal("user", captured.Contents[0].Role)
	req.Equal("model", captured.Contents[1].Role)
	req.NotNil(captured.GenerationConfig)
	req.NotNil(captured.GenerationConfig.Temperature)
	req.Zero(*captured.GenerationConfig.Temperature)
}

func TestGenerateSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded"}}`))
	}))
	defer srv.Close()

	m, err := NewChatModel(Config{APIKey: "k", Model: "m", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "quota exceeded"))
}

func TestGenerateWithoutCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	m, err := NewChatModel(Config{APIKey: "k", Model: "m", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.ErrorIs(t, err, ErrEmptyResponse)
}

func TestTransportErrorDoesNotExposeAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	baseURL := srv.URL
	srv.Close()

	const key = "AIza-very-secret-key"
	m, err := NewChatModel(Config{APIKey: key, Model: "m", BaseURL: baseURL})
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.Error(t, err)
	require.NotContains(t, err.Error(), key)
	require.Contains(t, err.Error(), "gemini request failed")
}

func TestNewChatModelRequiresCredentials(t *testing.T) {
	_, err := NewChatModel(Config{Model: "m"})
	require.Error(t, err)
	_, err = NewChatModel(Config{APIKey: "k"})
	require.Error(t, err)
}
