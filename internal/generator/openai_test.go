package generator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-backend/internal/config/configs"
	"github.com/unclebandit/outreach-backend/internal/model"
)

func TestChatURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"https://api.openai.com/v1", "https://api.openai.com/v1/chat/completions"},
		{"https://api.openai.com/v1/", "https://api.openai.com/v1/chat/completions"},
		{"http://localhost:8080", "http://localhost:8080/v1/chat/completions"},
		{"", "https://api.openai.com/v1/chat/completions"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, chatURL(tc.base), "base=%q", tc.base)
	}
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(configs.OpenAI{Model: "gpt-4"}, configs.Sender{})
	require.Error(t, err)
	_, err = NewClient(configs.OpenAI{APIKey: "sk"}, configs.Sender{})
	require.Error(t, err)
}

func TestGenerate(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4", req.Model)

		content := "Hallo Max,\n\nText."
		if n == 2 {
			content = `"Idee für Hahn Automation"`
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
	defer srv.Close()

	c, err := NewClient(configs.OpenAI{APIKey: "sk", Model: "gpt-4"}, configs.Sender{Name: "Luis"}, WithBaseURL(srv.URL))
	require.NoError(t, err)

	subject, body, err := c.Generate(context.Background(), model.Contact{
		"email": "max@hahn.de", "first_name": "Max", "company_name": "Hahn Automation",
	})
	require.NoError(t, err)
	assert.Equal(t, "Idee für Hahn Automation", subject)
	assert.Equal(t, "Hallo Max,\n\nText.", body)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestGenerate_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":"rate limited"}`)
	}))
	defer srv.Close()

	c, err := NewClient(configs.OpenAI{APIKey: "sk", Model: "gpt-4"}, configs.Sender{}, WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, _, err = c.Generate(context.Background(), model.Contact{"email": "max@hahn.de"})
	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
}

func TestGenerate_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	c, err := NewClient(configs.OpenAI{APIKey: "sk", Model: "gpt-4"}, configs.Sender{}, WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, _, err = c.Generate(context.Background(), model.Contact{"email": "max@hahn.de"})
	assert.ErrorContains(t, err, "no choices")
}
