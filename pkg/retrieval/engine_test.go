package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toolgateway/registry/pkg/registry"
	"github.com/toolgateway/registry/pkg/telemetry"
	"github.com/toolgateway/registry/pkg/vectorstore"
)

type fakeEmbedder struct {
	healthy bool
	err     error
	vec     []float32
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fakeEmbedder) Health(_ context.Context) bool { return f.healthy }

type fakeIndex struct {
	semantic []vectorstore.Result
	lexical  []vectorstore.Result
	hybrid   []vectorstore.Result
	count    int
}

func (f *fakeIndex) SemanticSearch(_ context.Context, _ []float32, limit int, minSim float64, _ string, _ bool) ([]vectorstore.Result, error) {
	out := make([]vectorstore.Result, 0, len(f.semantic))
	for _, r := range f.semantic {
		if r.Score >= minSim {
			out = append(out, r)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeIndex) LexicalSearch(_ context.Context, _ string, limit int, _ string, _ bool) ([]vectorstore.Result, error) {
	out := f.lexical
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeIndex) HybridSearch(_ context.Context, _ string, _ []float32, limit int, _ float64, _ string, _ bool) ([]vectorstore.Result, error) {
	out := f.hybrid
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeIndex) CountIndexed(_ context.Context, _ bool) (int, error) {
	return f.count, nil
}

type fakeTools struct {
	byID map[int64]*registry.Tool
}

func (f *fakeTools) Get(_ context.Context, id int64) (*registry.Tool, error) {
	t, ok := f.byID[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return t, nil
}

func toolNamed(id int64, name string) *registry.Tool {
	return &registry.Tool{ID: id, Name: name, Description: "test", Category: "math"}
}

func TestFindTool_EmptyQueryRejected(t *testing.T) {
	t.Parallel()
	e := NewEngine(&fakeEmbedder{healthy: true}, &fakeIndex{count: 1}, &fakeTools{}, telemetry.NoOp{}, Config{})
	_, err := e.FindTool(context.Background(), Query{Text: "   "})
	require.Error(t, err)
}

func TestFindTool_EmptyCatalogReturnsZeroResults(t *testing.T) {
	t.Parallel()
	e := NewEngine(&fakeEmbedder{healthy: true}, &fakeIndex{count: 0}, &fakeTools{}, telemetry.NoOp{}, Config{})
	resp, err := e.FindTool(context.Background(), Query{Text: "anything"})
	require.NoError(t, err)
	require.Equal(t, 0, resp.Count)
	require.Empty(t, resp.Results)
	require.False(t, resp.Degraded)
}

func TestFindTool_DegradedFallsBackToLexicalWhenEmbeddingFails(t *testing.T) {
	t.Parallel()
	tools := &fakeTools{byID: map[int64]*registry.Tool{1: toolNamed(1, "calculator")}}
	idx := &fakeIndex{count: 3, lexical: []vectorstore.Result{{ToolID: 1, Score: 0.4}}}
	e := NewEngine(&fakeEmbedder{err: errors.New("backend down")}, idx, tools, telemetry.NoOp{}, Config{})

	resp, err := e.FindTool(context.Background(), Query{Text: "add two numbers", Limit: 5, Threshold: 0.5, UseHybrid: true})
	require.NoError(t, err)
	require.True(t, resp.Degraded)
	require.Len(t, resp.Results, 1)
	require.Equal(t, "calculator", resp.Results[0].Tool.Name)
}

func TestFindTool_DegradedWhenEmbeddingHealthFalse(t *testing.T) {
	t.Parallel()
	tools := &fakeTools{byID: map[int64]*registry.Tool{1: toolNamed(1, "calculator")}}
	idx := &fakeIndex{count: 3, lexical: []vectorstore.Result{{ToolID: 1, Score: 0.4}}}
	e := NewEngine(&fakeEmbedder{healthy: false, vec: []float32{0.1}}, idx, tools, telemetry.NoOp{}, Config{})

	resp, err := e.FindTool(context.Background(), Query{Text: "add two numbers"})
	require.NoError(t, err)
	require.True(t, resp.Degraded)
}

func TestFindTool_FiltersBelowSemanticThreshold(t *testing.T) {
	t.Parallel()
	tools := &fakeTools{byID: map[int64]*registry.Tool{
		1: toolNamed(1, "calculator"),
		2: toolNamed(2, "weather"),
	}}
	idx := &fakeIndex{
		count:    2,
		semantic: []vectorstore.Result{{ToolID: 1, Score: 0.9}, {ToolID: 2, Score: 0.2}},
		hybrid:   []vectorstore.Result{{ToolID: 1, Score: 0.8}, {ToolID: 2, Score: 0.6}},
	}
	e := NewEngine(&fakeEmbedder{healthy: true, vec: []float32{0.1, 0.2}}, idx, tools, telemetry.NoOp{}, Config{})

	resp, err := e.FindTool(context.Background(), Query{Text: "add two numbers", Limit: 5, Threshold: 0.5, UseHybrid: true})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1, "weather scores 0.2 on the semantic leg despite a 0.6 hybrid score, so it must be dropped")
	require.Equal(t, "calculator", resp.Results[0].Tool.Name)
}

func TestFindTool_OrdersByScoreDescendingIDAscendingOnTies(t *testing.T) {
	t.Parallel()
	tools := &fakeTools{byID: map[int64]*registry.Tool{
		1: toolNamed(1, "a"),
		2: toolNamed(2, "b"),
		3: toolNamed(3, "c"),
	}}
	idx := &fakeIndex{
		count:    3,
		semantic: []vectorstore.Result{{ToolID: 1, Score: 0.9}, {ToolID: 2, Score: 0.9}, {ToolID: 3, Score: 0.5}},
		hybrid:   []vectorstore.Result{{ToolID: 2, Score: 0.9}, {ToolID: 1, Score: 0.9}, {ToolID: 3, Score: 0.5}},
	}
	e := NewEngine(&fakeEmbedder{healthy: true, vec: []float32{0.1}}, idx, tools, telemetry.NoOp{}, Config{})

	resp, err := e.FindTool(context.Background(), Query{Text: "query", Limit: 5, Threshold: 0, UseHybrid: true})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	require.Equal(t, "a", resp.Results[0].Tool.Name, "tied scores break by id ascending")
	require.Equal(t, "b", resp.Results[1].Tool.Name)
	require.Equal(t, "c", resp.Results[2].Tool.Name)
	for _, m := range resp.Results {
		require.GreaterOrEqual(t, m.Score, 0.0)
		require.LessOrEqual(t, m.Score, 1.0)
	}
}

func TestFindTool_SemanticOnlyWhenHybridDisabled(t *testing.T) {
	t.Parallel()
	tools := &fakeTools{byID: map[int64]*registry.Tool{1: toolNamed(1, "calculator")}}
	idx := &fakeIndex{
		count:    1,
		semantic: []vectorstore.Result{{ToolID: 1, Score: 0.8}},
		hybrid:   []vectorstore.Result{{ToolID: 1, Score: 0.1}}, // would fail if hybrid were used by mistake
	}
	e := NewEngine(&fakeEmbedder{healthy: true, vec: []float32{0.1}}, idx, tools, telemetry.NoOp{}, Config{})

	resp, err := e.FindTool(context.Background(), Query{Text: "query", Limit: 5, Threshold: 0.5, UseHybrid: false})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	require.InDelta(t, 0.8, resp.Results[0].Score, 1e-9)
}
