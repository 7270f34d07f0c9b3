// Package retrieval implements the Retrieval Engine (C5): query
// normalization, embedding, and dispatch to semantic, lexical, or hybrid
// search with threshold, category, and active-tool filtering.
package retrieval

import (
	"context"
	"sort"
	"strings"

	regerrors "github.com/toolgateway/registry/pkg/errors"
	"github.com/toolgateway/registry/pkg/registry"
	"github.com/toolgateway/registry/pkg/telemetry"
	"github.com/toolgateway/registry/pkg/vectorstore"
)

const maxQueryLen = 2000

// Embedder generates a vector for a single piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Health(ctx context.Context) bool
}

// Index performs semantic, lexical, and hybrid search over indexed tools.
type Index interface {
	SemanticSearch(ctx context.Context, queryVec []float32, limit int, minSimilarity float64, category string, activeOnly bool) ([]vectorstore.Result, error)
	LexicalSearch(ctx context.Context, queryText string, limit int, category string, activeOnly bool) ([]vectorstore.Result, error)
	HybridSearch(ctx context.Context, queryText string, queryVec []float32, limit int, alpha float64, category string, activeOnly bool) ([]vectorstore.Result, error)
	CountIndexed(ctx context.Context, activeOnly bool) (int, error)
}

// ToolLoader resolves scored tool ids back to full Tool rows.
type ToolLoader interface {
	Get(ctx context.Context, id int64) (*registry.Tool, error)
}

// Engine implements find_tool (§4.5).
type Engine struct {
	embedder Embedder
	index    Index
	tools    ToolLoader
	recorder telemetry.Recorder
	alpha    float64
}

// Config configures engine defaults; callers may override per-request.
type Config struct {
	HybridAlpha float64
}

// NewEngine wires the retrieval engine's dependencies.
func NewEngine(embedder Embedder, index Index, tools ToolLoader, recorder telemetry.Recorder, cfg Config) *Engine {
	if recorder == nil {
		recorder = telemetry.NoOp{}
	}
	alpha := cfg.HybridAlpha
	if alpha == 0 {
		alpha = 0.7
	}
	return &Engine{embedder: embedder, index: index, tools: tools, recorder: recorder, alpha: alpha}
}

// Query carries find_tool's inputs (§4.5). Defaulting of Limit/Threshold
// from config happens in the caller (the mcp facade handler), since Go's
// zero values can't distinguish "not supplied" from "explicitly zero" once
// they reach here. UseHybrid gets no default anywhere: an omitted value is
// false and selects semantic search.
type Query struct {
	Text      string
	Limit     int
	Threshold float64
	Category  string
	UseHybrid bool
}

// Match pairs a resolved tool with its score.
type Match struct {
	Tool  *registry.Tool
	Score float64
}

// Response is find_tool's result envelope.
type Response struct {
	Results  []Match
	Count    int
	Degraded bool
}

// FindTool normalizes the query, embeds it, dispatches to hybrid, semantic,
// or lexical search, filters on the semantic threshold, and returns results
// sorted by score descending, id ascending on ties (§4.5).
func (e *Engine) FindTool(ctx context.Context, q Query) (*Response, error) {
	text := normalize(q.Text)
	if text == "" {
		return nil, regerrors.NewInvalidArgumentError("query must not be empty", nil)
	}
	if len(text) > maxQueryLen {
		return nil, regerrors.NewInvalidArgumentError("query exceeds 2000 characters", nil)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 5
	}
	threshold := q.Threshold

	indexedCount, err := e.index.CountIndexed(ctx, true)
	if err != nil {
		indexedCount = -1 // unknown; don't force degraded purely on a count-query failure
	}
	if indexedCount == 0 {
		return e.lexicalOnly(ctx, text, limit, q.Category, true)
	}

	queryVec, err := e.embedder.Embed(ctx, text)
	if err != nil || !e.embedder.Health(ctx) {
		resp, lexErr := e.lexicalOnly(ctx, text, limit, q.Category, true)
		if lexErr != nil {
			return nil, lexErr
		}
		resp.Degraded = true
		e.recorder.Counter("retrieval_degraded_total", 1)
		return resp, nil
	}

	var raw []vectorstore.Result
	if q.UseHybrid {
		raw, err = e.index.HybridSearch(ctx, text, queryVec, limit*2, e.alpha, q.Category, true)
	} else {
		raw, err = e.index.SemanticSearch(ctx, queryVec, limit*2, 0, q.Category, true)
	}
	if err != nil {
		return nil, regerrors.NewBackendUnavailableError("vector search", err)
	}

	// §4.5 step 4: threshold filters the semantic component even under
	// hybrid scoring, so recompute a pure semantic pass to apply it rather
	// than filtering on the blended score.
	semantic, err := e.index.SemanticSearch(ctx, queryVec, limit*4, 0, q.Category, true)
	if err != nil {
		return nil, regerrors.NewBackendUnavailableError("vector search", err)
	}
	aboveThreshold := make(map[int64]bool, len(semantic))
	for _, r := range semantic {
		if r.Score >= threshold {
			aboveThreshold[r.ToolID] = true
		}
	}

	filtered := make([]vectorstore.Result, 0, len(raw))
	for _, r := range raw {
		if aboveThreshold[r.ToolID] {
			filtered = append(filtered, r)
		}
	}
	sortResults(filtered)
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}

	return e.hydrate(ctx, filtered, false)
}

func (e *Engine) lexicalOnly(ctx context.Context, text string, limit int, category string, activeOnly bool) (*Response, error) {
	results, err := e.index.LexicalSearch(ctx, text, limit, category, activeOnly)
	if err != nil {
		return nil, regerrors.NewBackendUnavailableError("lexical search", err)
	}
	return e.hydrate(ctx, results, false)
}

func (e *Engine) hydrate(ctx context.Context, results []vectorstore.Result, degraded bool) (*Response, error) {
	matches := make([]Match, 0, len(results))
	for _, r := range results {
		t, err := e.tools.Get(ctx, r.ToolID)
		if err != nil {
			continue // index drift: row removed from sqlite but not yet reindexed out
		}
		matches = append(matches, Match{Tool: t, Score: r.Score})
	}
	return &Response{Results: matches, Count: len(matches), Degraded: degraded}, nil
}

func sortResults(r []vectorstore.Result) {
	sort.SliceStable(r, func(i, j int) bool {
		if r[i].Score != r[j].Score {
			return r[i].Score > r[j].Score
		}
		return r[i].ToolID < r[j].ToolID
	})
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}
