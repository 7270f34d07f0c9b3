// Package embedding implements the Embedding Client (C1) and its
// process-local cache (C2): calling an OpenAI-compatible embeddings
// endpoint, validating response shape and dimension, and retrying
// transient failures with backoff.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	regerrors "github.com/toolgateway/registry/pkg/errors"
	"github.com/toolgateway/registry/pkg/telemetry"
)

// Client calls an OpenAI-compatible embeddings endpoint (§4.1).
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	model      string
	dimension  int
	limiter    *rate.Limiter
	cache      *Cache
	recorder   telemetry.Recorder
}

// Config configures the embedding client.
type Config struct {
	Endpoint  string
	APIKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
	CacheSize int
}

// New constructs a Client. A zero CacheSize disables the cache; per §4.2,
// disabling it must not change correctness, only latency.
func New(cfg Config, recorder telemetry.Recorder) *Client {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize, recorder)
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		limiter:    rate.NewLimiter(rate.Limit(20), 40),
		cache:      cache,
		recorder:   recorder,
	}
}

// Dimension returns the configured embedding dimension, the single source
// of truth every component validates against.
func (c *Client) Dimension() int { return c.dimension }

type embeddingRequest struct {
	Input any    `json:"input"`
	Model string `json:"model"`
}

// the three response shapes the embedding endpoint may return (§4.1).
type dataItem struct {
	Embedding []float32 `json:"embedding"`
	Index     *int      `json:"index"`
}

type embeddingResponse struct {
	Data       []dataItem  `json:"data,omitempty"`
	Embeddings [][]float32 `json:"embeddings,omitempty"`
}

// Embed returns the vector for a single text, using the cache when
// present.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.cache != nil {
		if v, ok := c.cache.Get(text); ok {
			return v, nil
		}
	}
	vecs, err := c.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Put(text, vecs[0])
	}
	return vecs[0], nil
}

// EmbedBatch embeds multiple texts, preserving input order. Cache hits are
// served locally; misses are batched into one call, falling back to
// sequential calls if the backend rejects batching.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	missIdx := make([]int, 0, len(texts))
	missText := make([]string, 0, len(texts))

	if c.cache != nil {
		for i, t := range texts {
			if v, ok := c.cache.Get(t); ok {
				out[i] = v
				continue
			}
			missIdx = append(missIdx, i)
			missText = append(missText, t)
		}
	} else {
		for i, t := range texts {
			missIdx = append(missIdx, i)
			missText = append(missText, t)
		}
	}

	if len(missText) == 0 {
		return out, nil
	}

	vecs, err := c.embedBatch(ctx, missText)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		out[idx] = vecs[j]
		if c.cache != nil {
			c.cache.Put(missText[j], vecs[j])
		}
	}
	return out, nil
}

// Health reports whether the embedding endpoint is reachable.
func (c *Client) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return false
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
}

// embedBatch sends one request for all of texts, retrying transient
// failures with exponential backoff and jitter, capped at 3 attempts. If
// the backend rejects batching, it falls back to sequential per-text
// calls, preserving order.
func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := c.doEmbed(ctx, texts)
	if err == nil {
		return c.validate(vecs, len(texts))
	}
	if isBatchRejection(err) && len(texts) > 1 {
		out := make([][]float32, len(texts))
		for i, t := range texts {
			v, err := c.doEmbed(ctx, []string{t})
			if err != nil {
				return nil, err
			}
			validated, err := c.validate(v, 1)
			if err != nil {
				return nil, err
			}
			out[i] = validated[0]
		}
		return out, nil
	}
	return nil, err
}

func (c *Client) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	operation := func() ([][]float32, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}

		body, err := json.Marshal(embeddingRequest{Input: texts, Model: c.model})
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("encoding embedding request: %w", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("building embedding request: %w", err))
		}
		c.authorize(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err // transient: connection reset, timeout
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("embedding backend returned %d: %s", resp.StatusCode, respBody)
		}
		if resp.StatusCode >= 400 {
			return nil, backoff.Permanent(&batchRejectionError{msg: string(respBody), status: resp.StatusCode})
		}

		return parseEmbeddingResponse(respBody)
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
		backoff.WithMaxElapsedTime(10*time.Second),
	)
}

type batchRejectionError struct {
	msg    string
	status int
}

func (e *batchRejectionError) Error() string {
	return fmt.Sprintf("embedding backend rejected request (status %d): %s", e.status, e.msg)
}

func isBatchRejection(err error) bool {
	var rejected *batchRejectionError
	if !asBatchRejection(err, &rejected) {
		return false
	}
	lower := strings.ToLower(rejected.msg)
	return strings.Contains(lower, "batch") || strings.Contains(lower, "array")
}

func asBatchRejection(err error, target **batchRejectionError) bool {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if r, ok := err.(*batchRejectionError); ok {
			*target = r
			return true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func parseEmbeddingResponse(body []byte) ([][]float32, error) {
	var r embeddingResponse
	if err := json.Unmarshal(body, &r); err == nil && (len(r.Data) > 0 || len(r.Embeddings) > 0) {
		if len(r.Data) > 0 {
			return sortByIndex(r.Data), nil
		}
		return r.Embeddings, nil
	}

	// Bare [[...]] shape.
	var bare [][]float32
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare, nil
	}

	return nil, backoff.Permanent(fmt.Errorf("unrecognized embedding response shape"))
}

func sortByIndex(items []dataItem) [][]float32 {
	hasIndex := len(items) > 0 && items[0].Index != nil
	if hasIndex {
		sort.SliceStable(items, func(i, j int) bool {
			return *items[i].Index < *items[j].Index
		})
	}
	out := make([][]float32, len(items))
	for i, it := range items {
		out[i] = it.Embedding
	}
	return out
}

func (c *Client) validate(vecs [][]float32, wantCount int) ([][]float32, error) {
	if len(vecs) != wantCount {
		return nil, regerrors.NewEmbeddingShapeError(
			fmt.Sprintf("embedding backend returned %d vectors, expected %d", len(vecs), wantCount), nil)
	}
	for _, v := range vecs {
		if len(v) != c.dimension {
			return nil, regerrors.NewEmbeddingShapeError(
				fmt.Sprintf("embedding vector has length %d, expected configured dimension %d", len(v), c.dimension), nil)
		}
	}
	return vecs, nil
}
