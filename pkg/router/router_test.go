package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	regerrors "github.com/toolgateway/registry/pkg/errors"
	"github.com/toolgateway/registry/pkg/registry"
	"github.com/toolgateway/registry/pkg/retrieval"
)

type fakeToolStore struct {
	tools     map[string]*registry.Tool
	recorded  []*registry.ToolExecution
}

func (f *fakeToolStore) GetByName(_ context.Context, name string) (*registry.Tool, error) {
	t, ok := f.tools[name]
	if !ok {
		return nil, regerrors.NewNotFoundError("tool not found", nil)
	}
	return t, nil
}

func (f *fakeToolStore) RecordExecution(_ context.Context, e *registry.ToolExecution) error {
	f.recorded = append(f.recorded, e)
	return nil
}

func newDispatcher(store *fakeToolStore, cfg Config) *Dispatcher {
	return New(store, nil, cfg,
		NewPythonExecutor(true, map[string]PythonFunc{
			"calc.add": func(_ context.Context, args map[string]any) (map[string]any, error) {
				return map[string]any{"result": args["a"]}, nil
			},
		}, []string{"calc"}, []string{"os", "sys"}),
		NewHTTPExecutor(""),
		NewMCPExecutor(),
		NewGatewayExecutor(nil),
		NewCommandExecutor(2),
	)
}

func TestCallTool_NotFoundWithoutSuggester(t *testing.T) {
	t.Parallel()
	store := &fakeToolStore{tools: map[string]*registry.Tool{}}
	d := newDispatcher(store, Config{DefaultCallTimeout: time.Second, MaxCallTimeout: time.Second})

	_, err := d.CallTool(context.Background(), "missing", map[string]any{})
	require.True(t, regerrors.IsNotFound(err))
}

func TestCallTool_InactiveToolRejected(t *testing.T) {
	t.Parallel()
	store := &fakeToolStore{tools: map[string]*registry.Tool{
		"calculator": {ID: 1, Name: "calculator", IsActive: false, ImplementationType: registry.PythonCallable},
	}}
	d := newDispatcher(store, Config{DefaultCallTimeout: time.Second, MaxCallTimeout: time.Second})

	_, err := d.CallTool(context.Background(), "calculator", map[string]any{})
	require.True(t, regerrors.IsToolInactive(err))
	require.Empty(t, store.recorded)
}

func TestCallTool_PythonExecutorDispatchesAndRecords(t *testing.T) {
	t.Parallel()
	store := &fakeToolStore{tools: map[string]*registry.Tool{
		"calculator": {
			ID: 1, Name: "calculator", IsActive: true,
			ImplementationType: registry.PythonCallable,
			ImplementationCode: "calc.add",
			InputSchema:         map[string]any{"type": "object"},
		},
	}}
	d := newDispatcher(store, Config{DefaultCallTimeout: time.Second, MaxCallTimeout: time.Second})

	result, err := d.CallTool(context.Background(), "calculator", map[string]any{"a": float64(2)})
	require.NoError(t, err)
	require.Equal(t, registry.StatusSuccess, result.Status)
	require.Len(t, store.recorded, 1)
	require.Equal(t, registry.StatusSuccess, store.recorded[0].Status)
}

func TestCallTool_PythonDenyListWins(t *testing.T) {
	t.Parallel()
	store := &fakeToolStore{tools: map[string]*registry.Tool{
		"danger": {
			ID: 2, Name: "danger", IsActive: true,
			ImplementationType: registry.PythonCallable,
			ImplementationCode: "os.system",
			InputSchema:         map[string]any{"type": "object"},
		},
	}}
	d := newDispatcher(store, Config{DefaultCallTimeout: time.Second, MaxCallTimeout: time.Second})

	_, err := d.CallTool(context.Background(), "danger", map[string]any{})
	require.True(t, regerrors.IsExecutorDisabled(err))
}

func TestResolveTimeout_OverrideCappedByCeiling(t *testing.T) {
	t.Parallel()
	d := &Dispatcher{config: Config{DefaultCallTimeout: 30 * time.Second, MaxCallTimeout: 60 * time.Second}}

	withOverride := &registry.Tool{TimeoutOverride: 120 * time.Second}
	require.Equal(t, 60*time.Second, d.resolveTimeout(withOverride))

	withinCeiling := &registry.Tool{TimeoutOverride: 10 * time.Second}
	require.Equal(t, 10*time.Second, d.resolveTimeout(withinCeiling))

	noOverride := &registry.Tool{}
	require.Equal(t, 30*time.Second, d.resolveTimeout(noOverride))
}

func TestValidateArguments_RejectsMismatchedSchema(t *testing.T) {
	t.Parallel()
	tool := &registry.Tool{
		Name: "calculator",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"a"},
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
			},
		},
	}
	err := validateArguments(tool, map[string]any{})
	require.True(t, regerrors.IsValidationFailed(err))
}

func TestValidateArguments_AcceptsValidSchema(t *testing.T) {
	t.Parallel()
	tool := &registry.Tool{
		Name: "calculator",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"a"},
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
			},
		},
	}
	err := validateArguments(tool, map[string]any{"a": 2})
	require.NoError(t, err)
}

type fakeSuggester struct {
	resp *retrieval.Response
}

func (f *fakeSuggester) FindTool(_ context.Context, _ retrieval.Query) (*retrieval.Response, error) {
	return f.resp, nil
}

func TestNotFoundWithSuggestions_IncludesNames(t *testing.T) {
	t.Parallel()
	store := &fakeToolStore{tools: map[string]*registry.Tool{}}
	suggester := &fakeSuggester{resp: &retrieval.Response{
		Results: []retrieval.Match{{Tool: &registry.Tool{Name: "calculator"}, Score: 0.9}},
	}}
	d := New(store, suggester, Config{DefaultCallTimeout: time.Second, MaxCallTimeout: time.Second},
		NewPythonExecutor(true, nil, nil, nil), NewHTTPExecutor(""), NewMCPExecutor(), NewGatewayExecutor(nil), NewCommandExecutor(1))

	_, err := d.CallTool(context.Background(), "calc", map[string]any{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "calculator")
}
