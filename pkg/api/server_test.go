package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toolgateway/registry/pkg/config"
	regerrors "github.com/toolgateway/registry/pkg/errors"
	"github.com/toolgateway/registry/pkg/discovery"
	"github.com/toolgateway/registry/pkg/mcpfacade"
	"github.com/toolgateway/registry/pkg/registry"
	"github.com/toolgateway/registry/pkg/retrieval"
	"github.com/toolgateway/registry/pkg/router"
)

type fakeCatalog struct {
	tools map[string]*registry.Tool
	byID  map[int64]*registry.Tool
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{tools: map[string]*registry.Tool{}, byID: map[int64]*registry.Tool{}}
}

func (f *fakeCatalog) List(_ context.Context, _ registry.ListFilter) ([]*registry.Tool, int, error) {
	var out []*registry.Tool
	for _, t := range f.tools {
		out = append(out, t)
	}
	return out, len(out), nil
}

func (f *fakeCatalog) GetByName(_ context.Context, name string) (*registry.Tool, error) {
	t, ok := f.tools[name]
	if !ok {
		return nil, regerrors.NewNotFoundError("tool not found", nil)
	}
	return t, nil
}

func (f *fakeCatalog) ListCategories(_ context.Context) ([]string, error) { return []string{"math"}, nil }
func (f *fakeCatalog) Stats(_ context.Context) (*registry.Stats, error) {
	return &registry.Stats{TotalTools: len(f.tools)}, nil
}

func (f *fakeCatalog) Register(_ context.Context, t *registry.Tool, _ bool) (*registry.Tool, error) {
	t.ID = int64(len(f.byID) + 1)
	f.tools[t.Name] = t
	f.byID[t.ID] = t
	return t, nil
}

func (f *fakeCatalog) Get(_ context.Context, id int64) (*registry.Tool, error) {
	t, ok := f.byID[id]
	if !ok {
		return nil, regerrors.NewNotFoundError("tool not found", nil)
	}
	return t, nil
}

func (f *fakeCatalog) Update(_ context.Context, current *registry.Tool, fields registry.UpdateFields) (*registry.Tool, error) {
	if fields.Description != nil {
		current.Description = *fields.Description
	}
	return current, nil
}

func (f *fakeCatalog) ReindexOne(_ context.Context, id int64) (*registry.Tool, error) {
	return f.byID[id], nil
}

func (f *fakeCatalog) Activate(_ context.Context, id int64) error {
	if t, ok := f.byID[id]; ok {
		t.IsActive = true
	}
	return nil
}

func (f *fakeCatalog) Deactivate(_ context.Context, id int64) error {
	if t, ok := f.byID[id]; ok {
		t.IsActive = false
	}
	return nil
}

func (f *fakeCatalog) Delete(_ context.Context, id int64) error {
	if t, ok := f.byID[id]; ok {
		delete(f.tools, t.Name)
		delete(f.byID, id)
	}
	return nil
}

func (f *fakeCatalog) ListExecutions(_ context.Context, _ int64, _, _ int) ([]*registry.ToolExecution, error) {
	return nil, nil
}

type fakeFinder struct{}

func (fakeFinder) FindTool(_ context.Context, _ retrieval.Query) (*retrieval.Response, error) {
	return &retrieval.Response{Count: 0}, nil
}

type fakeCaller struct{}

func (fakeCaller) CallTool(_ context.Context, name string, _ map[string]any) (*router.Result, error) {
	if name == "missing" {
		return nil, regerrors.NewNotFoundError("tool not found", nil)
	}
	return &router.Result{Output: map[string]any{"ok": true}, Status: registry.StatusSuccess}, nil
}

type fakeSummarizer struct{}

func (fakeSummarizer) SummarizeIfNeeded(_ context.Context, _ any, _ int, _, _ string) (string, bool, error) {
	return "ok", false, nil
}

type fakeDiscovery struct{}

func (fakeDiscovery) SyncAll(_ context.Context) []discovery.Summary { return []discovery.Summary{{Source: "a"}} }
func (fakeDiscovery) SyncSource(_ context.Context, name string) (discovery.Summary, error) {
	return discovery.Summary{Source: name}, nil
}
func (fakeDiscovery) LastSyncs() []discovery.Summary { return []discovery.Summary{{Source: "a"}} }

func testDeps(catalog *fakeCatalog) Deps {
	facade := mcpfacade.New(catalog, fakeFinder{}, fakeCaller{}, fakeSummarizer{}, mcpfacade.Config{DefaultFindLimit: 10, DefaultFindThreshold: 0.5, DefaultSummaryTokens: 500})
	return Deps{
		Facade:    facade,
		Tools:     catalog,
		Discovery: fakeDiscovery{},
		Health:    nil,
		Config: config.Config{
			Admin:         config.AdminConfig{APIKey: "secret"},
			RequestLimits: config.RequestLimitsConfig{MaxBodyBytes: 1 << 20, MaxArgBytes: 1 << 10},
		},
	}
}

func TestListTools_ReturnsOK(t *testing.T) {
	t.Parallel()
	catalog := newFakeCatalog()
	catalog.tools["calculator"] = &registry.Tool{Name: "calculator"}
	router := NewRouter(testDeps(catalog))

	req := httptest.NewRequest(http.MethodPost, "/mcp/list_tools", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCallTool_NotFoundReturns404(t *testing.T) {
	t.Parallel()
	router := NewRouter(testDeps(newFakeCatalog()))

	body, _ := json.Marshal(map[string]any{"tool_name": "missing", "arguments": map[string]any{}})
	req := httptest.NewRequest(http.MethodPost, "/mcp/call_tool", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCallTool_ArgumentsOverSizeCapRejected(t *testing.T) {
	t.Parallel()
	router := NewRouter(testDeps(newFakeCatalog()))

	big := make(map[string]any, 1)
	big["blob"] = make([]byte, 2048)
	body, _ := json.Marshal(map[string]any{"tool_name": "calculator", "arguments": big})
	req := httptest.NewRequest(http.MethodPost, "/mcp/call_tool", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestAdminRoutes_RequireAdminKey(t *testing.T) {
	t.Parallel()
	router := NewRouter(testDeps(newFakeCatalog()))

	req := httptest.NewRequest(http.MethodPost, "/admin/tools", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutes_RegisterToolWithValidKey(t *testing.T) {
	t.Parallel()
	router := NewRouter(testDeps(newFakeCatalog()))

	body, _ := json.Marshal(map[string]any{"name": "calculator", "implementation_type": "PYTHON_CALLABLE"})
	req := httptest.NewRequest(http.MethodPost, "/admin/tools", bytes.NewReader(body))
	req.Header.Set("X-Admin-Key", "secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestAdminRoutes_SyncAll(t *testing.T) {
	t.Parallel()
	router := NewRouter(testDeps(newFakeCatalog()))

	req := httptest.NewRequest(http.MethodPost, "/admin/mcp/sync", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("X-Admin-Key", "secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthAndLive_AlwaysOK(t *testing.T) {
	t.Parallel()
	router := NewRouter(testDeps(newFakeCatalog()))

	for _, path := range []string{"/health", "/live"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
}
