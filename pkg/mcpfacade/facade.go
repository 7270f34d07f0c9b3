// Package mcpfacade implements the MCP Protocol Facade (C9): the canonical
// list_tools/find_tool/call_tool surface, plus the summarized-call,
// schema-lookup, resource, and prompt affordances, backed by the registry,
// retrieval engine, execution router, and output summarizer.
package mcpfacade

import (
	"context"

	"github.com/toolgateway/registry/pkg/registry"
	"github.com/toolgateway/registry/pkg/retrieval"
	"github.com/toolgateway/registry/pkg/router"
	"github.com/toolgateway/registry/pkg/summarizer"
)

// ToolCatalog is the subset of registry.Service the facade reads from.
type ToolCatalog interface {
	List(ctx context.Context, f registry.ListFilter) ([]*registry.Tool, int, error)
	GetByName(ctx context.Context, name string) (*registry.Tool, error)
	ListCategories(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (*registry.Stats, error)
}

// Finder backs find_tool; satisfied by *retrieval.Engine.
type Finder interface {
	FindTool(ctx context.Context, q retrieval.Query) (*retrieval.Response, error)
}

// Caller backs call_tool; satisfied by *router.Dispatcher.
type Caller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*router.Result, error)
}

// Summarizer backs call_tool_summarized's post-processing step.
type Summarizer interface {
	SummarizeIfNeeded(ctx context.Context, output any, maxTokens int, hint, toolName string) (string, bool, error)
}

// Config supplies the facade's default deadlines and limits (§5).
type Config struct {
	DefaultFindLimit     int
	DefaultFindThreshold float64
	DefaultSummaryTokens int
}

// Facade implements §4.9's five operations over the registry, retrieval
// engine, execution router, and summarizer.
type Facade struct {
	catalog    ToolCatalog
	finder     Finder
	caller     Caller
	summarizer Summarizer
	config     Config
}

// New wires a Facade from its four collaborators.
func New(catalog ToolCatalog, finder Finder, caller Caller, summ Summarizer, config Config) *Facade {
	return &Facade{catalog: catalog, finder: finder, caller: caller, summarizer: summ, config: config}
}

// ListToolsRequest carries list_tools' filters.
type ListToolsRequest struct {
	Category   string
	ActiveOnly bool
	Limit      int
	Offset     int
}

// ListToolsResponse is list_tools' paginated result.
type ListToolsResponse struct {
	Tools []*registry.Tool
	Total int
}

// ListTools returns a page of tools matching the given filters.
func (f *Facade) ListTools(ctx context.Context, req ListToolsRequest) (*ListToolsResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	tools, total, err := f.catalog.List(ctx, registry.ListFilter{
		Category:   req.Category,
		ActiveOnly: req.ActiveOnly,
		Limit:      limit,
		Offset:     req.Offset,
	})
	if err != nil {
		return nil, err
	}
	return &ListToolsResponse{Tools: tools, Total: total}, nil
}

// FindToolRequest carries find_tool's inputs. The facade's defaults replace
// a zero Limit or Threshold; UseHybrid is passed through as given, so a
// zero value means semantic-only search.
type FindToolRequest struct {
	Query     string
	Limit     int
	Threshold float64
	Category  string
	UseHybrid bool
}

// FindTool resolves defaults and delegates to the retrieval engine.
func (f *Facade) FindTool(ctx context.Context, req FindToolRequest) (*retrieval.Response, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = f.config.DefaultFindLimit
	}
	threshold := req.Threshold
	if threshold <= 0 {
		threshold = f.config.DefaultFindThreshold
	}
	return f.finder.FindTool(ctx, retrieval.Query{
		Text:      req.Query,
		Limit:     limit,
		Threshold: threshold,
		Category:  req.Category,
		UseHybrid: req.UseHybrid,
	})
}

// CallTool delegates straight to the execution router.
func (f *Facade) CallTool(ctx context.Context, name string, args map[string]any) (*router.Result, error) {
	return f.caller.CallTool(ctx, name, args)
}

// SummarizedResult is call_tool_summarized's response envelope (§4.9):
// "response always carries was_summarized".
type SummarizedResult struct {
	Output        string
	WasSummarized bool
	Status        registry.ExecutionStatus
	DurationMS    int64
}

// CallToolSummarized runs call_tool then condenses the output via the
// summarizer when it exceeds maxTokens.
func (f *Facade) CallToolSummarized(ctx context.Context, name string, args map[string]any, maxTokens int, hint string) (*SummarizedResult, error) {
	if maxTokens <= 0 {
		maxTokens = f.config.DefaultSummaryTokens
	}
	result, err := f.caller.CallTool(ctx, name, args)
	if err != nil {
		return nil, err
	}
	summary, wasSummarized, err := f.summarizer.SummarizeIfNeeded(ctx, result.Output, maxTokens, hint, name)
	if err != nil {
		return nil, err
	}
	return &SummarizedResult{
		Output:        summary,
		WasSummarized: wasSummarized,
		Status:        result.Status,
		DurationMS:    result.DurationMS,
	}, nil
}

// ToolSchema is get_tool_schema's response.
type ToolSchema struct {
	Name         string
	InputSchema  map[string]any
	OutputSchema map[string]any
}

// GetToolSchema returns a tool's input/output schema.
func (f *Facade) GetToolSchema(ctx context.Context, name string) (*ToolSchema, error) {
	tool, err := f.catalog.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return &ToolSchema{Name: tool.Name, InputSchema: tool.InputSchema, OutputSchema: tool.OutputSchema}, nil
}

// Categories backs the tools://categories resource.
func (f *Facade) Categories(ctx context.Context) ([]string, error) {
	return f.catalog.ListCategories(ctx)
}

// Stats backs the tools://stats resource.
func (f *Facade) Stats(ctx context.Context) (*registry.Stats, error) {
	return f.catalog.Stats(ctx)
}

// ToolsByCategory backs the tools://tools/{category} resource.
func (f *Facade) ToolsByCategory(ctx context.Context, category string) ([]*registry.Tool, error) {
	tools, _, err := f.catalog.List(ctx, registry.ListFilter{Category: category, ActiveOnly: true, Limit: 500})
	if err != nil {
		return nil, err
	}
	return tools, nil
}
