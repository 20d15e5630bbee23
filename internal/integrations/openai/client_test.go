package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"jailbreak-eval/internal/domain"
)

// ---------------------------------------------------------------------------
// chatURL helper
// ---------------------------------------------------------------------------

func TestChatURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"https://api.openai.com/v1", "https://api.openai.com/v1/chat/completions"},
		{"https://api.openai.com/v1/", "https://api.openai.com/v1/chat/completions"},
		{"http://localhost:11434/v1", "http://localhost:11434/v1/chat/completions"},
		{"http://localhost:8080", "http://localhost:8080/v1/chat/completions"},
		{"", "https://api.openai.com/v1/chat/completions"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, chatURL(tc.base), "base=%q", tc.base)
	}
}

// ---------------------------------------------------------------------------
// NewClient
// ---------------------------------------------------------------------------

func TestNewClient_NilKeySource(t *testing.T) {
	_, err := NewClient(nil, "http://localhost:11434/v1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "nil")
}

func TestNewClient_Valid(t *testing.T) {
	c, err := NewClient(StaticKey("k"), "http://localhost:11434/v1")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:11434/v1", c.baseURL)
	require.Equal(t, 1, c.maxAttempts)
}

// ---------------------------------------------------------------------------
// Exchange
// ---------------------------------------------------------------------------

type capturedRequest struct {
	auth string
	body chatRequest
}

func newChatServer(t *testing.T, reply string, captured *capturedRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		if captured != nil {
			captured.auth = r.Header.Get("Authorization")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured.body))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"index": 0, "message": map[string]string{"role": "assistant", "content": reply}},
			},
		})
	}))
}

func TestExchange_SeedsNewConversation(t *testing.T) {
	var captured capturedRequest
	srv := newChatServer(t, "generated", &captured)
	defer srv.Close()

	c, err := NewClient(StaticKey("secret"), srv.URL)
	require.NoError(t, err)

	text, convo, err := c.Exchange(context.Background(), domain.ExchangeRequest{
		Prompt:      "hello",
		System:      "be safe",
		Model:       "qwen2.5",
		MaxTokens:   512,
		Temperature: 0.8,
	})
	require.NoError(t, err)
	require.Equal(t, "generated", text)

	require.Equal(t, "Bearer secret", captured.auth)
	require.Equal(t, "qwen2.5", captured.body.Model)
	require.Equal(t, 512, captured.body.MaxTokens)
	require.NotNil(t, captured.body.Temperature)
	require.InDelta(t, 0.8, *captured.body.Temperature, 1e-9)
	require.Equal(t, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "be safe"},
		{Role: domain.RoleUser, Content: "hello"},
	}, captured.body.Messages)

	require.Equal(t, domain.Conversation{
		{Role: domain.RoleSystem, Content: "be safe"},
		{Role: domain.RoleUser, Content: "hello"},
		{Role: domain.RoleAssistant, Content: "generated"},
	}, convo)
}

func TestExchange_AppendsToPriorConversation(t *testing.T) {
	var captured capturedRequest
	srv := newChatServer(t, "next", &captured)
	defer srv.Close()

	c, err := NewClient(StaticKey("k"), srv.URL)
	require.NoError(t, err)

	prior := domain.Seed("sys", "q1").Append(
		domain.ChatMessage{Role: domain.RoleAssistant, Content: "a1"},
	)
	snapshot := make(domain.Conversation, len(prior))
	copy(snapshot, prior)

	_, convo, err := c.Exchange(context.Background(), domain.ExchangeRequest{
		Prompt:  "q2",
		Context: prior,
		System:  "ignored on continuation",
		Model:   "m",
	})
	require.NoError(t, err)

	// One user turn added before the request, one assistant turn appended
	// after; nothing in the prior conversation mutated.
	require.Len(t, convo, len(prior)+2)
	require.Equal(t, snapshot, prior)
	require.Equal(t, domain.RoleUser, convo[len(prior)].Role)
	require.Equal(t, "q2", convo[len(prior)].Content)
	require.Equal(t, domain.RoleAssistant, convo[len(prior)+1].Role)
	require.Equal(t, "next", convo[len(prior)+1].Content)

	// The system-instruction argument is ignored when a context exists.
	for _, m := range captured.body.Messages {
		require.NotEqual(t, "ignored on continuation", m.Content)
	}
}

func TestExchange_TrailingAssistantMessage(t *testing.T) {
	var captured capturedRequest
	srv := newChatServer(t, "done", &captured)
	defer srv.Close()

	c, err := NewClient(StaticKey("k"), srv.URL)
	require.NoError(t, err)

	_, _, err = c.Exchange(context.Background(), domain.ExchangeRequest{
		Prompt:    "continue this",
		System:    "sys",
		Assistant: "partial answer",
		Model:     "m",
	})
	require.NoError(t, err)

	last := captured.body.Messages[len(captured.body.Messages)-1]
	require.Equal(t, domain.RoleAssistant, last.Role)
	require.Equal(t, "partial answer", last.Content)
}

func TestExchange_EmptyModel(t *testing.T) {
	c, err := NewClient(StaticKey("k"), "http://localhost:1")
	require.NoError(t, err)
	_, _, err = c.Exchange(context.Background(), domain.ExchangeRequest{Prompt: "p"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "model")
}

func TestExchange_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := NewClient(StaticKey("k"), srv.URL)
	require.NoError(t, err)

	_, _, err = c.Exchange(context.Background(), domain.ExchangeRequest{Prompt: "p", Model: "m"})
	require.Error(t, err)

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}

func TestExchange_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c, err := NewClient(StaticKey("k"), srv.URL)
	require.NoError(t, err)

	_, _, err = c.Exchange(context.Background(), domain.ExchangeRequest{Prompt: "p", Model: "m"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no choices")
}

func TestExchange_KeySourceError(t *testing.T) {
	c, err := NewClient(failingKeys{}, "http://localhost:1")
	require.NoError(t, err)
	_, _, err = c.Exchange(context.Background(), domain.ExchangeRequest{Prompt: "p", Model: "m"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "key unavailable")
}

type failingKeys struct{}

func (failingKeys) APIKey(context.Context) (string, error) {
	return "", errors.New("key unavailable")
}

// ---------------------------------------------------------------------------
// Retry policy
// ---------------------------------------------------------------------------

func TestExchange_NoRetryByDefault(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(StaticKey("k"), srv.URL)
	require.NoError(t, err)

	_, _, err = c.Exchange(context.Background(), domain.ExchangeRequest{Prompt: "p", Model: "m"})
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())
}

func TestExchange_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(StaticKey("k"), srv.URL, WithRetry(3))
	require.NoError(t, err)

	text, _, err := c.Exchange(context.Background(), domain.ExchangeRequest{Prompt: "p", Model: "m"})
	require.NoError(t, err)
	require.Equal(t, "ok", text)
	require.Equal(t, int32(2), calls.Load())
}

func TestExchange_DoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := NewClient(StaticKey("k"), srv.URL, WithRetry(5))
	require.NoError(t, err)

	_, _, err = c.Exchange(context.Background(), domain.ExchangeRequest{Prompt: "p", Model: "m"})
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
}
