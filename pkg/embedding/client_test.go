package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/toolgateway/registry/pkg/telemetry"
)

func vec(dim int, seed float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = seed + float32(i)
	}
	return v
}

func newTestClient(t *testing.T, url string, dim int) *Client {
	t.Helper()
	return New(Config{
		Endpoint:  url,
		Model:     "test-model",
		Dimension: dim,
		Timeout:   2 * time.Second,
		CacheSize: 16,
	}, telemetry.NoOp{})
}

func TestEmbed_DataShapeWithIndex(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": vec(4, 0), "index": 0},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 4)
	got, err := c.Embed(context.Background(), "add two numbers")
	require.NoError(t, err)
	require.Equal(t, vec(4, 0), got)
}

func TestEmbed_BareArrayShape(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([][]float32{vec(4, 0)})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 4)
	got, err := c.Embed(context.Background(), "add two numbers")
	require.NoError(t, err)
	require.Equal(t, vec(4, 0), got)
}

func TestEmbed_DimensionMismatchFails(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{vec(3, 0)}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 4)
	_, err := c.Embed(context.Background(), "add two numbers")
	require.Error(t, err)
	require.Contains(t, err.Error(), "dimension")
}

func TestEmbedBatch_FallsBackToSequentialOnBatchRejection(t *testing.T) {
	t.Parallel()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		inputs, _ := req.Input.([]any)
		calls++
		if len(inputs) > 1 {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "batch input not supported, use array of one"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{vec(4, float32(calls))}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 4)
	got, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 3, calls) // 1 rejected batch call + 2 sequential calls
}

func TestEmbedBatch_ConsistentWithEmbed(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		inputs, _ := req.Input.([]any)
		out := make([][]float32, len(inputs))
		for i, in := range inputs {
			s, _ := in.(string)
			out[i] = vec(4, float32(len(s)))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": out})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 4)
	single, err := c.Embed(context.Background(), "xyz")
	require.NoError(t, err)

	// Fresh client so the cache doesn't short-circuit the batch call.
	c2 := newTestClient(t, srv.URL, 4)
	batch, err := c2.EmbedBatch(context.Background(), []string{"xyz"})
	require.NoError(t, err)
	require.Equal(t, single, batch[0])
}

func TestHealth_ReportsFalseWhenUnreachable(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, "http://127.0.0.1:0", 4)
	require.False(t, c.Health(context.Background()))
}
