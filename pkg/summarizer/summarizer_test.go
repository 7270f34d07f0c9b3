package summarizer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toolgateway/registry/pkg/llmgateway"
)

type fakeGateway struct {
	response string
	err      error
	calls    int
}

func (f *fakeGateway) Complete(_ context.Context, _ llmgateway.CompletionRequest) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func TestSummarizeIfNeeded_UnderThresholdSkipsGateway(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{}
	s := New(gw, Config{Enabled: true})

	text, was, err := s.SummarizeIfNeeded(context.Background(), "short", 1000, "", "calculator")
	require.NoError(t, err)
	require.False(t, was)
	require.Equal(t, "short", text)
	require.Equal(t, 0, gw.calls)
}

func TestSummarizeIfNeeded_OverThresholdCallsGateway(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{response: "condensed"}
	s := New(gw, Config{Enabled: true, MaxInputChars: 10000})

	big := strings.Repeat("x", 5000)
	text, was, err := s.SummarizeIfNeeded(context.Background(), big, 100, "focus on errors", "fetcher")
	require.NoError(t, err)
	require.True(t, was)
	require.Equal(t, "condensed", text)
	require.Equal(t, 1, gw.calls)
}

func TestSummarizeIfNeeded_GatewayFailureFallsBackToTruncation(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{err: errors.New("gateway down")}
	s := New(gw, Config{Enabled: true})

	big := strings.Repeat("y", 5000)
	text, was, err := s.SummarizeIfNeeded(context.Background(), big, 100, "", "fetcher")
	require.NoError(t, err)
	require.True(t, was)
	require.Contains(t, text, truncationMarker)
}

func TestSummarizeIfNeeded_DisabledTruncatesWithoutCallingGateway(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{response: "condensed"}
	s := New(gw, Config{Enabled: false})

	big := strings.Repeat("z", 5000)
	text, was, err := s.SummarizeIfNeeded(context.Background(), big, 100, "", "")
	require.NoError(t, err)
	require.True(t, was)
	require.Contains(t, text, truncationMarker)
	require.Equal(t, 0, gw.calls)
}

func TestSerialize_StructuredValueIsJSON(t *testing.T) {
	t.Parallel()
	out := Serialize(map[string]any{"a": 1})
	require.Equal(t, `{"a":1}`, out)
}

func TestSerialize_StringPassesThrough(t *testing.T) {
	t.Parallel()
	require.Equal(t, "raw text", Serialize("raw text"))
}
