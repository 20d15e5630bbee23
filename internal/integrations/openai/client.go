package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"jailbreak-eval/internal/domain"
)

// chatRequest is the minimal request shape for the Chat Completions endpoint.
type chatRequest struct {
	Model       string               `json:"model"`
	Messages    []domain.ChatMessage `json:"messages"`
	MaxTokens   int                  `json:"max_tokens,omitempty"`
	Temperature *float64             `json:"temperature,omitempty"`
}

// chatResponse is the minimal response shape returned by the Chat Completions endpoint.
type chatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Choices []struct {
		Index   int                `json:"index"`
		Message domain.ChatMessage `json:"message"`
	} `json:"choices"`
}

// KeySource resolves the bearer credential for an endpoint. Implementations
// include StaticKey and the paramstore-backed source.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// StaticKey is a KeySource holding a literal credential, typically read from
// an environment variable at wiring time.
type StaticKey string

func (k StaticKey) APIKey(context.Context) (string, error) {
	return string(k), nil
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a focused OpenAI-compatible client for chat completions.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	keys        KeySource
	maxAttempts int

	keyOnce sync.Once
	apiKey  string
	keyErr  error
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRetry enables bounded exponential-backoff retries on transport errors
// and retryable statuses (429, 5xx). maxAttempts counts the first try; values
// below 2 leave the client single-shot.
func WithRetry(maxAttempts int) Option {
	return func(c *Client) {
		if maxAttempts > 1 {
			c.maxAttempts = maxAttempts
		}
	}
}

// NewClient creates a Client for one endpoint. The credential is fetched from
// the KeySource on the first Exchange and reused for the lifetime of the
// process.
func NewClient(keys KeySource, baseURL string, opts ...Option) (*Client, error) {
	if keys == nil {
		return nil, errors.New("openai: key source must not be nil")
	}
	c := &Client{
		baseURL:     strings.TrimSpace(baseURL),
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		keys:        keys,
		maxAttempts: 1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolveAPIKey fetches the credential on the first call and returns the
// cached result on every subsequent call within the same process lifetime.
func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyOnce.Do(func() {
		c.apiKey, c.keyErr = c.keys.APIKey(ctx)
	})
	return c.apiKey, c.keyErr
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 120 * time.Second}
}

func chatURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

// Exchange performs one chat-completion round. It returns the generated text
// and the conversation extended with the final assistant turn; the input
// conversation is never mutated.
func (c *Client) Exchange(ctx context.Context, req domain.ExchangeRequest) (string, domain.Conversation, error) {
	if req.Model == "" {
		return "", nil, errors.New("openai: model must not be empty")
	}

	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return "", nil, err
	}

	var messages domain.Conversation
	if len(req.Context) == 0 {
		messages = domain.Seed(req.System, req.Prompt)
	} else {
		messages = req.Context.Append(domain.ChatMessage{Role: domain.RoleUser, Content: req.Prompt})
	}
	if req.Assistant != "" {
		messages = messages.Append(domain.ChatMessage{Role: domain.RoleAssistant, Content: req.Assistant})
	}

	temperature := req.Temperature
	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return "", nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	url := chatURL(c.baseURL)

	raw, err := c.doJSONRequest(ctx, url, apiKey, body)
	if err != nil {
		return "", nil, fmt.Errorf("openai: request failed: %w", err)
	}

	var payload chatResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return "", nil, fmt.Errorf("openai: decode response: %w", decErr)
	}
	if len(payload.Choices) == 0 {
		return "", nil, errors.New("openai: no choices in response")
	}
	text := payload.Choices[0].Message.Content

	return text, messages.Append(domain.ChatMessage{Role: domain.RoleAssistant, Content: text}), nil
}

// doJSONRequest posts the body and returns the raw response payload. When
// retries are enabled, transport errors and retryable statuses back off
// exponentially up to the configured attempt budget; everything else is
// returned on the first failure.
func (c *Client) doJSONRequest(ctx context.Context, url, apiKey string, body []byte) ([]byte, error) {
	attempt := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+apiKey)

		res, doErr := c.resolvedHTTPClient().Do(req)
		if doErr != nil {
			return nil, doErr
		}
		defer func() { _ = res.Body.Close() }()

		if res.StatusCode < 200 || res.StatusCode >= 300 {
			buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
			statusErr := &HTTPStatusError{
				StatusCode: res.StatusCode,
				URL:        url,
				Body:       string(buf),
			}
			if !retryableStatus(res.StatusCode) {
				return nil, backoff.Permanent(statusErr)
			}
			return nil, statusErr
		}

		buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		return buf, nil
	}

	if c.maxAttempts <= 1 {
		raw, err := attempt()
		if err != nil {
			var perm *backoff.PermanentError
			if errors.As(err, &perm) {
				return nil, perm.Unwrap()
			}
			return nil, err
		}
		return raw, nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.maxAttempts-1)),
		ctx,
	)
	return backoff.RetryWithData(attempt, policy)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
