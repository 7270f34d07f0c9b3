package mcpfacade

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// discoveryPromptTemplate guides a client through find_tool -> call_tool.
const discoveryPromptTemplate = `You want to find a tool that can: %s

1. Call find_tool with that description as the query.
2. Inspect the returned candidates' descriptions and scores.
3. Call get_tool_schema on the best match before calling it, so you pass
   arguments matching its input_schema.`

// executionPromptTemplate guides a client through a single call_tool.
const executionPromptTemplate = `You want to run the tool %q with these inputs: %s

Call call_tool with tool_name=%q and arguments set to the JSON object above.
If the output is large, prefer call_tool_summarized with a max_tokens budget
and a one-line hint describing what you need from the output.`

// workflowPromptTemplate guides a client through a multi-tool plan.
const workflowPromptTemplate = `You want to accomplish: %s

Break this into steps, and for each step:
1. find_tool to locate a candidate.
2. get_tool_schema to confirm its arguments.
3. call_tool (or call_tool_summarized for verbose outputs) to execute it.
Carry each step's output forward as input to the next step where needed.`

// Server wraps a Facade in an mcp-go server.MCPServer exposing the facade's
// operations as MCP tools, plus its resources and prompts.
type Server struct {
	facade *Facade
	mcp    *server.MCPServer
}

// NewServer registers every facade operation, resource, and prompt on a
// fresh server.MCPServer.
func NewServer(facade *Facade, name, version string) *Server {
	s := server.NewMCPServer(name, version, server.WithToolCapabilities(false), server.WithLogging())
	srv := &Server{facade: facade, mcp: s}
	srv.registerTools()
	srv.registerResources()
	srv.registerPrompts()
	return srv
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.Tool{
		Name:        "list_tools",
		Description: "List registered tools, optionally filtered by category or active status",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"category":    map[string]any{"type": "string", "description": "Filter by category"},
				"active_only": map[string]any{"type": "boolean", "description": "Only return active tools"},
				"limit":       map[string]any{"type": "integer", "description": "Page size"},
				"offset":      map[string]any{"type": "integer", "description": "Page offset"},
			},
		},
	}, s.handleListTools)

	s.mcp.AddTool(mcp.Tool{
		Name:        "find_tool",
		Description: "Search the registry for tools matching a natural-language query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"query":      map[string]any{"type": "string", "description": "What you want to do"},
				"limit":      map[string]any{"type": "integer"},
				"threshold":  map[string]any{"type": "number"},
				"category":   map[string]any{"type": "string"},
				"use_hybrid": map[string]any{"type": "boolean"},
			},
			Required: []string{"query"},
		},
	}, s.handleFindTool)

	s.mcp.AddTool(mcp.Tool{
		Name:        "call_tool",
		Description: "Execute a registered tool by name",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"tool_name": map[string]any{"type": "string"},
				"arguments": map[string]any{"type": "object"},
			},
			Required: []string{"tool_name"},
		},
	}, s.handleCallTool)

	s.mcp.AddTool(mcp.Tool{
		Name:        "call_tool_summarized",
		Description: "Execute a registered tool and condense its output to fit a token budget",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"tool_name":  map[string]any{"type": "string"},
				"arguments":  map[string]any{"type": "object"},
				"max_tokens": map[string]any{"type": "integer"},
				"hint":       map[string]any{"type": "string", "description": "What to focus the summary on"},
			},
			Required: []string{"tool_name"},
		},
	}, s.handleCallToolSummarized)

	s.mcp.AddTool(mcp.Tool{
		Name:        "get_tool_schema",
		Description: "Fetch a tool's input and output JSON schema",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"tool_name": map[string]any{"type": "string"},
			},
			Required: []string{"tool_name"},
		},
	}, s.handleGetToolSchema)
}

func (s *Server) handleListTools(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		Category   string `json:"category"`
		ActiveOnly bool   `json:"active_only"`
		Limit      int    `json:"limit"`
		Offset     int    `json:"offset"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse arguments: %v", err)), nil
	}
	resp, err := s.facade.ListTools(ctx, ListToolsRequest{Category: args.Category, ActiveOnly: args.ActiveOnly, Limit: args.Limit, Offset: args.Offset})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultStructuredOnly(resp), nil
}

func (s *Server) handleFindTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		Query     string  `json:"query"`
		Limit     int     `json:"limit"`
		Threshold float64 `json:"threshold"`
		Category  string  `json:"category"`
		UseHybrid bool    `json:"use_hybrid"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse arguments: %v", err)), nil
	}
	resp, err := s.facade.FindTool(ctx, FindToolRequest{Query: args.Query, Limit: args.Limit, Threshold: args.Threshold, Category: args.Category, UseHybrid: args.UseHybrid})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultStructuredOnly(resp), nil
}

func (s *Server) handleCallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		ToolName  string         `json:"tool_name"`
		Arguments map[string]any `json:"arguments"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse arguments: %v", err)), nil
	}
	result, err := s.facade.CallTool(ctx, args.ToolName, args.Arguments)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultStructuredOnly(result), nil
}

func (s *Server) handleCallToolSummarized(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		ToolName  string         `json:"tool_name"`
		Arguments map[string]any `json:"arguments"`
		MaxTokens int            `json:"max_tokens"`
		Hint      string         `json:"hint"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse arguments: %v", err)), nil
	}
	result, err := s.facade.CallToolSummarized(ctx, args.ToolName, args.Arguments, args.MaxTokens, args.Hint)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultStructuredOnly(result), nil
}

func (s *Server) handleGetToolSchema(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		ToolName string `json:"tool_name"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse arguments: %v", err)), nil
	}
	schema, err := s.facade.GetToolSchema(ctx, args.ToolName)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultStructuredOnly(schema), nil
}

func (s *Server) registerResources() {
	categories := mcp.NewResource(
		"tools://categories",
		"Tool Categories",
		mcp.WithResourceDescription("Distinct categories currently present in the registry"),
		mcp.WithMIMEType("application/json"),
	)
	s.mcp.AddResource(categories, func(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		cats, err := s.facade.Categories(ctx)
		if err != nil {
			return nil, err
		}
		body, _ := json.Marshal(cats)
		return []mcp.ResourceContents{mcp.TextResourceContents{URI: "tools://categories", MIMEType: "application/json", Text: string(body)}}, nil
	})

	stats := mcp.NewResource(
		"tools://stats",
		"Registry Statistics",
		mcp.WithResourceDescription("Catalog totals by category and implementation type"),
		mcp.WithMIMEType("application/json"),
	)
	s.mcp.AddResource(stats, func(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		st, err := s.facade.Stats(ctx)
		if err != nil {
			return nil, err
		}
		body, _ := json.Marshal(st)
		return []mcp.ResourceContents{mcp.TextResourceContents{URI: "tools://stats", MIMEType: "application/json", Text: string(body)}}, nil
	})

	byCategory := mcp.NewResourceTemplate(
		"tools://tools/{category}",
		"Tools By Category",
		mcp.WithTemplateDescription("Active tools in a single category"),
		mcp.WithTemplateMIMEType("application/json"),
	)
	s.mcp.AddResourceTemplate(byCategory, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		category := categoryFromURI(request.Params.URI)
		tools, err := s.facade.ToolsByCategory(ctx, category)
		if err != nil {
			return nil, err
		}
		body, _ := json.Marshal(tools)
		return []mcp.ResourceContents{mcp.TextResourceContents{URI: request.Params.URI, MIMEType: "application/json", Text: string(body)}}, nil
	})
}

// categoryFromURI extracts "{category}" from a "tools://tools/{category}"
// resource URI.
func categoryFromURI(uri string) string {
	const prefix = "tools://tools/"
	if len(uri) <= len(prefix) {
		return ""
	}
	return uri[len(prefix):]
}

func (s *Server) registerPrompts() {
	discovery := mcp.NewPrompt(
		"discover-tool",
		mcp.WithPromptDescription("Find and inspect a tool before calling it"),
		mcp.WithArgument("goal", mcp.ArgumentDescription("What the tool should accomplish")),
	)
	s.mcp.AddPrompt(discovery, func(_ context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		goal := request.Params.Arguments["goal"]
		return &mcp.GetPromptResult{
			Description: "Tool discovery walkthrough",
			Messages: []mcp.PromptMessage{
				{Role: mcp.RoleUser, Content: mcp.TextContent{Type: "text", Text: fmt.Sprintf(discoveryPromptTemplate, goal)}},
			},
		}, nil
	})

	execution := mcp.NewPrompt(
		"execute-tool",
		mcp.WithPromptDescription("Call a known tool with a given set of inputs"),
		mcp.WithArgument("tool_name", mcp.ArgumentDescription("Name of the tool to call")),
		mcp.WithArgument("inputs_json", mcp.ArgumentDescription("JSON object of arguments")),
	)
	s.mcp.AddPrompt(execution, func(_ context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		toolName := request.Params.Arguments["tool_name"]
		inputs := request.Params.Arguments["inputs_json"]
		return &mcp.GetPromptResult{
			Description: "Tool execution walkthrough",
			Messages: []mcp.PromptMessage{
				{Role: mcp.RoleUser, Content: mcp.TextContent{Type: "text", Text: fmt.Sprintf(executionPromptTemplate, toolName, inputs, toolName)}},
			},
		}, nil
	})

	workflow := mcp.NewPrompt(
		"plan-workflow",
		mcp.WithPromptDescription("Plan a multi-tool sequence toward a larger goal"),
		mcp.WithArgument("goal", mcp.ArgumentDescription("The overall objective")),
	)
	s.mcp.AddPrompt(workflow, func(_ context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		goal := request.Params.Arguments["goal"]
		return &mcp.GetPromptResult{
			Description: "Multi-tool workflow planning",
			Messages: []mcp.PromptMessage{
				{Role: mcp.RoleUser, Content: mcp.TextContent{Type: "text", Text: fmt.Sprintf(workflowPromptTemplate, goal)}},
			},
		}, nil
	})
}

// ServeStdio blocks serving the facade over stdio, for local/CLI MCP
// clients.
func (s *Server) ServeStdio(ctx context.Context) error {
	return server.ServeStdio(s.mcp, server.WithStdioContextFunc(func(context.Context) context.Context { return ctx }))
}

// HTTPHandler exposes the facade as a streamable-HTTP MCP endpoint mounted
// at path, for use alongside the REST facade in the same process.
func (s *Server) HTTPHandler(ctx context.Context, path string) http.Handler {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithEndpointPath(path),
		server.WithHTTPContextFunc(func(_ context.Context, _ *http.Request) context.Context { return ctx }),
	)
}
