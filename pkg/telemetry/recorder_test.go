package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoOp_NeverPanics(t *testing.T) {
	t.Parallel()
	var r Recorder = NoOp{}

	ctx, end := r.StartSpan(context.Background(), "op")
	require.NotNil(t, ctx)
	end()

	r.Counter("calls", 1, "tool", "calculator")
	r.Histogram("duration_ms", 12.5, "tool", "calculator")
}

func TestNewOTel_RegistersMeterAndTracer(t *testing.T) {
	t.Parallel()
	rec, err := NewOTel()
	require.NoError(t, err)
	require.NotNil(t, rec)

	ctx, end := rec.StartSpan(context.Background(), "find_tool")
	require.NotNil(t, ctx)
	defer end()

	rec.Counter("embedding_cache_hits_total", 1, "cache", "embedding")
	rec.Histogram("call_tool_duration_ms", 42.0, "tool", "calculator")
}
