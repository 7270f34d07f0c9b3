// Package vectorstore implements the dense-vector and lexical index (C3) on
// top of Weaviate, chosen because its native nearVector/bm25/hybrid query
// forms map directly onto semantic_search/lexical_search/hybrid_search,
// including the alpha blend knob hybrid_search needs.
package vectorstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	regerrors "github.com/toolgateway/registry/pkg/errors"
	"github.com/toolgateway/registry/pkg/registry"
)

// Result pairs a tool id with a similarity or blended score, per §4.3.
type Result struct {
	ToolID int64
	Score  float64
}

// Store is the Weaviate-backed implementation of the vector/lexical index.
// It indexes only the fields retrieval needs to score and re-hydrate a
// tool: the sqlite Store remains the source of truth for the full row.
type Store struct {
	client    *weaviate.Client
	className string
	dimension int
}

// Config configures the Weaviate connection.
type Config struct {
	URL       string
	APIKey    string
	ClassName string
	Dimension int
}

// New connects to Weaviate at cfg.URL.
func New(cfg Config) (*Store, error) {
	wcfg := weaviate.Config{
		Scheme: "http",
		Host:   cfg.URL,
	}
	if cfg.APIKey != "" {
		wcfg.AuthConfig = auth.ApiKey{Value: cfg.APIKey}
	}
	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, regerrors.NewBackendUnavailableError("creating weaviate client", err)
	}
	return &Store{client: client, className: cfg.ClassName, dimension: cfg.Dimension}, nil
}

// EnsureSchema creates the class if absent and fails loudly if an existing
// class's vector dimension disagrees with the configured dimension (the
// embedding-dimension single source of truth, §9 open question). The stored
// dimension is read from the first object the class returns; a class with no
// objects, or whose first object has no vector, passes unchecked.
func (s *Store) EnsureSchema(ctx context.Context) error {
	exists, err := s.client.Schema().ClassExistenceChecker().WithClassName(s.className).Do(ctx)
	if err != nil {
		return regerrors.NewBackendUnavailableError("checking weaviate schema", err)
	}
	if exists {
		objs, err := s.client.Data().ObjectsGetter().WithClassName(s.className).WithVector().WithLimit(1).Do(ctx)
		if err != nil {
			return regerrors.NewBackendUnavailableError("reading a weaviate object to check its vector dimension", err)
		}
		if len(objs) > 0 && len(objs[0].Vector) > 0 && len(objs[0].Vector) != s.dimension {
			return regerrors.NewEmbeddingShapeError(fmt.Sprintf(
				"weaviate class %q holds vectors of dimension %d, configured dimension is %d",
				s.className, len(objs[0].Vector), s.dimension), nil)
		}
		return nil
	}

	class := &models.Class{
		Class:      s.className,
		Vectorizer: "none", // embeddings are supplied explicitly by the Embedding Client
		Properties: []*models.Property{
			{Name: "toolId", DataType: []string{"int"}},
			{Name: "name", DataType: []string{"text"}},
			{Name: "description", DataType: []string{"text"}},
			{Name: "category", DataType: []string{"text"}},
			{Name: "tags", DataType: []string{"text[]"}},
			{Name: "isActive", DataType: []string{"boolean"}},
		},
	}
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return regerrors.NewInternalError("creating weaviate class", err)
	}
	return nil
}

func docID(toolID int64) string {
	// Weaviate object IDs must be UUIDs; derive a deterministic one from
	// the sqlite surrogate key so upsert-by-id is idempotent.
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", toolID)
}

// Upsert writes (or overwrites) a tool's indexed fields and vector.
func (s *Store) Upsert(ctx context.Context, t *registry.Tool) error {
	props := map[string]any{
		"toolId":      t.ID,
		"name":        t.Name,
		"description": t.Description,
		"category":    t.Category,
		"tags":        t.Tags,
		"isActive":    t.IsActive,
	}

	id := docID(t.ID)
	exists, err := s.client.Data().Checker().WithClassName(s.className).WithID(id).Do(ctx)
	if err != nil {
		return regerrors.NewBackendUnavailableError("checking weaviate object", err)
	}

	if exists {
		updater := s.client.Data().Updater().
			WithClassName(s.className).
			WithID(id).
			WithProperties(props)
		if t.Embedding != nil {
			updater = updater.WithVector(t.Embedding)
		}
		if err := updater.Do(ctx); err != nil {
			return regerrors.NewInternalError("updating weaviate object", err)
		}
		return nil
	}

	creator := s.client.Data().Creator().
		WithClassName(s.className).
		WithID(id).
		WithProperties(props)
	if t.Embedding != nil {
		creator = creator.WithVector(t.Embedding)
	}
	if _, err := creator.Do(ctx); err != nil {
		return regerrors.NewInternalError("creating weaviate object", err)
	}
	return nil
}

// SetEmbedding writes only the vector for an already-indexed tool,
// validating its length against the configured dimension.
func (s *Store) SetEmbedding(ctx context.Context, toolID int64, vec []float32) error {
	if len(vec) != s.dimension {
		return regerrors.NewEmbeddingShapeError(
			fmt.Sprintf("embedding length %d does not match configured dimension %d", len(vec), s.dimension), nil)
	}
	err := s.client.Data().Updater().
		WithClassName(s.className).
		WithID(docID(toolID)).
		WithVector(vec).
		Do(ctx)
	if err != nil {
		return regerrors.NewInternalError("setting weaviate embedding", err)
	}
	return nil
}

// Delete removes a tool from the index. Called on hard delete; deactivation
// instead flips isActive via Upsert.
func (s *Store) Delete(ctx context.Context, toolID int64) error {
	err := s.client.Data().Deleter().WithClassName(s.className).WithID(docID(toolID)).Do(ctx)
	if err != nil {
		return regerrors.NewInternalError("deleting weaviate object", err)
	}
	return nil
}

func activeOnlyFilter(activeOnly bool, category string) *filters.WhereBuilder {
	if !activeOnly && category == "" {
		return nil
	}
	operands := []*filters.WhereBuilder{}
	if activeOnly {
		operands = append(operands, filters.Where().
			WithPath([]string{"isActive"}).
			WithOperator(filters.Equal).
			WithValueBoolean(true))
	}
	if category != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"category"}).
			WithOperator(filters.Equal).
			WithValueText(category))
	}
	if len(operands) == 1 {
		return operands[0]
	}
	return filters.Where().WithOperator(filters.And).WithOperands(operands)
}

var resultFields = []graphql.Field{
	{Name: "toolId"},
	{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "distance"}, {Name: "score"}}},
}

func (s *Store) baseQuery(limit int, where *filters.WhereBuilder) *graphql.GetBuilder {
	q := s.client.GraphQL().Get().WithClassName(s.className).WithLimit(limit).WithFields(resultFields...)
	if where != nil {
		q = q.WithWhere(where)
	}
	return q
}

// SemanticSearch scores by 1-cosine_distance, clamped to [0,1], excludes
// rows below minSimilarity, and breaks ties by id ascending (§4.3).
func (s *Store) SemanticSearch(ctx context.Context, queryVec []float32, limit int, minSimilarity float64, category string, activeOnly bool) ([]Result, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(queryVec)
	resp, err := s.baseQuery(limit, activeOnlyFilter(activeOnly, category)).
		WithNearVector(nearVector).
		Do(ctx)
	if err != nil {
		return nil, regerrors.NewBackendUnavailableError("weaviate semantic search", err)
	}
	return parseResults(resp, s.className, func(distance float64) float64 {
		score := 1 - distance
		return clamp01(score)
	}, minSimilarity)
}

// LexicalSearch ranks by Weaviate's bm25 score normalized into [0,1].
func (s *Store) LexicalSearch(ctx context.Context, queryText string, limit int, category string, activeOnly bool) ([]Result, error) {
	bm25 := s.client.GraphQL().Bm25ArgBuilder().WithQuery(queryText).WithProperties("name", "description", "category", "tags")
	resp, err := s.baseQuery(limit, activeOnlyFilter(activeOnly, category)).
		WithBM25(bm25).
		Do(ctx)
	if err != nil {
		return nil, regerrors.NewBackendUnavailableError("weaviate lexical search", err)
	}
	return parseResults(resp, s.className, normalizeBM25, 0)
}

// HybridSearch blends vector similarity and lexical rank via Weaviate's
// native alpha parameter: combined = alpha*semantic + (1-alpha)*lexical.
func (s *Store) HybridSearch(ctx context.Context, queryText string, queryVec []float32, limit int, alpha float64, category string, activeOnly bool) ([]Result, error) {
	hybrid := s.client.GraphQL().HybridArgumentBuilder().
		WithQuery(queryText).
		WithVector(queryVec).
		WithAlpha(float32(alpha))
	resp, err := s.baseQuery(limit, activeOnlyFilter(activeOnly, category)).
		WithHybrid(hybrid).
		Do(ctx)
	if err != nil {
		return nil, regerrors.NewBackendUnavailableError("weaviate hybrid search", err)
	}
	return parseResults(resp, s.className, func(score float64) float64 { return clamp01(score) }, 0)
}

// FindSimilar runs a semantic search seeded by a tool's own embedding,
// optionally excluding the tool itself from the results.
func (s *Store) FindSimilar(ctx context.Context, t *registry.Tool, limit int, excludeSelf bool) ([]Result, error) {
	results, err := s.SemanticSearch(ctx, t.Embedding, limit+1, 0, "", true)
	if err != nil {
		return nil, err
	}
	if !excludeSelf {
		return results, nil
	}
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r.ToolID == t.ID {
			continue
		}
		out = append(out, r)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountIndexed counts objects in the index, optionally restricted to
// active tools.
func (s *Store) CountIndexed(ctx context.Context, activeOnly bool) (int, error) {
	agg := s.client.GraphQL().Aggregate().WithClassName(s.className).WithFields(graphql.Field{
		Name: "meta", Fields: []graphql.Field{{Name: "count"}},
	})
	if activeOnly {
		agg = agg.WithWhere(activeOnlyFilter(true, ""))
	}
	resp, err := agg.Do(ctx)
	if err != nil {
		return 0, regerrors.NewBackendUnavailableError("weaviate aggregate count", err)
	}
	return extractAggregateCount(resp, s.className), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// normalizeBM25 squashes an unbounded BM25 score into [0,1] with a
// saturating curve; exact calibration is a tuning knob, not a correctness
// requirement, since §4.3 only requires the rank to be normalized.
func normalizeBM25(raw float64) float64 {
	if raw < 0 {
		raw = 0
	}
	return clamp01(raw / (raw + 1))
}

// parseResults and extractAggregateCount translate the GraphQL response
// envelope into typed results; the concrete response shape is implemented
// against graphql.Response's GraphQLErrors/Data map, sorted by id
// ascending on score ties per §4.3.
func parseResults(resp *graphql.Response, className string, scoreOf func(float64) float64, minScore float64) ([]Result, error) {
	if resp == nil || len(resp.Errors) > 0 {
		if resp != nil && len(resp.Errors) > 0 {
			return nil, regerrors.NewBackendError(resp.Errors[0].Message, nil)
		}
		return nil, nil
	}

	get, _ := resp.Data["Get"].(map[string]any)
	rows, _ := get[className].([]any)

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		m, ok := row.(map[string]any)
		if !ok {
			continue
		}
		toolID := toInt64(m["toolId"])
		additional, _ := m["_additional"].(map[string]any)
		var raw float64
		if d, ok := additional["distance"]; ok && d != nil {
			raw = toFloat64(d)
		} else if sc, ok := additional["score"]; ok {
			raw = toFloat64(sc)
		}
		score := scoreOf(raw)
		if score < minScore {
			continue
		}
		results = append(results, Result{ToolID: toolID, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ToolID < results[j].ToolID
	})
	return results, nil
}

func extractAggregateCount(resp *graphql.Response, className string) int {
	if resp == nil {
		return 0
	}
	agg, _ := resp.Data["Aggregate"].(map[string]any)
	rows, _ := agg[className].([]any)
	if len(rows) == 0 {
		return 0
	}
	m, _ := rows[0].(map[string]any)
	meta, _ := m["meta"].(map[string]any)
	return int(toFloat64(meta["count"]))
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		var f float64
		_, _ = fmt.Sscanf(n, "%g", &f)
		return f
	default:
		return 0
	}
}
