// Package llmgateway implements the chat-completions client consumed by
// LLM_GATEWAY tools (C6) and the output summarizer (C7): a single upstream
// service exposing an OpenAI-compatible /v1/chat/completions endpoint.
package llmgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	regerrors "github.com/toolgateway/registry/pkg/errors"
)

// Message is one chat-completions turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config configures the gateway client.
type Config struct {
	URL          string
	APIKey       string
	DefaultModel string
	Timeout      time.Duration
}

// Client calls the upstream LLM gateway's chat-completions endpoint.
type Client struct {
	httpClient   *http.Client
	url          string
	apiKey       string
	defaultModel string
	limiter      *rate.Limiter
}

// New constructs a Client.
func New(cfg Config) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		url:          cfg.URL,
		apiKey:       cfg.APIKey,
		defaultModel: cfg.DefaultModel,
		limiter:      rate.NewLimiter(rate.Limit(10), 20),
	}
}

// CompletionRequest is the subset of OpenAI-compatible chat-completion
// request fields this system ever sets.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

type completionWireRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type completionWireResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Complete sends one chat-completion request and returns the first choice's
// message content. Transient failures (connection errors, 5xx) retry with
// backoff; 4xx responses are terminal.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	operation := func() (string, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", backoff.Permanent(err)
		}

		body, err := json.Marshal(completionWireRequest{
			Model:       model,
			Messages:    req.Messages,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
		})
		if err != nil {
			return "", backoff.Permanent(fmt.Errorf("encoding chat completion request: %w", err))
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return "", backoff.Permanent(fmt.Errorf("building chat completion request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return "", err // transient
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", err
		}

		if resp.StatusCode >= 500 {
			return "", fmt.Errorf("llm gateway returned %d: %s", resp.StatusCode, respBody)
		}
		if resp.StatusCode >= 400 {
			return "", backoff.Permanent(regerrors.NewBackendError(
				fmt.Sprintf("llm gateway rejected request (status %d)", resp.StatusCode),
				fmt.Errorf("%s", respBody)))
		}

		var wire completionWireResponse
		if err := json.Unmarshal(respBody, &wire); err != nil {
			return "", backoff.Permanent(fmt.Errorf("decoding chat completion response: %w", err))
		}
		if len(wire.Choices) == 0 {
			return "", backoff.Permanent(fmt.Errorf("llm gateway returned no choices"))
		}
		return wire.Choices[0].Message.Content, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
		backoff.WithMaxElapsedTime(20*time.Second),
	)
}
