package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/toolgateway/registry/pkg/api/errors"
	"github.com/toolgateway/registry/pkg/config"
	"github.com/toolgateway/registry/pkg/httperr"
	"github.com/toolgateway/registry/pkg/mcpfacade"
)

// mcpRoutes implements the facade's HTTP binding (§6's /mcp/* table plus
// the supplemented call_tool_summarized and get_tool_schema routes).
type mcpRoutes struct {
	facade *mcpfacade.Facade
	limits config.RequestLimitsConfig
}

func mcpRouter(facade *mcpfacade.Facade, limits config.RequestLimitsConfig) http.Handler {
	routes := mcpRoutes{facade: facade, limits: limits}

	r := chi.NewRouter()
	r.Post("/list_tools", apierrors.ErrorHandler(routes.listTools))
	r.Post("/find_tool", apierrors.ErrorHandler(routes.findTool))
	r.Post("/call_tool", apierrors.ErrorHandler(routes.callTool))
	r.Post("/call_tool_summarized", apierrors.ErrorHandler(routes.callToolSummarized))
	r.Get("/get_tool_schema/{name}", apierrors.ErrorHandler(routes.getToolSchema))
	return r
}

type listToolsRequest struct {
	Category   string `json:"category"`
	ActiveOnly bool   `json:"active_only"`
	Limit      int    `json:"limit"`
	Offset     int    `json:"offset"`
}

func (rt *mcpRoutes) listTools(w http.ResponseWriter, r *http.Request) error {
	var req listToolsRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return fmt.Errorf("invalid request body: %w", err)
		}
	}

	resp, err := rt.facade.ListTools(r.Context(), mcpfacade.ListToolsRequest{
		Category:   req.Category,
		ActiveOnly: req.ActiveOnly,
		Limit:      req.Limit,
		Offset:     req.Offset,
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, resp)
}

type findToolRequest struct {
	Query     string  `json:"query"`
	Limit     int     `json:"limit"`
	Threshold float64 `json:"threshold"`
	Category  string  `json:"category"`
	UseHybrid bool    `json:"use_hybrid"`
}

func (rt *mcpRoutes) findTool(w http.ResponseWriter, r *http.Request) error {
	var req findToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}

	resp, err := rt.facade.FindTool(r.Context(), mcpfacade.FindToolRequest{
		Query:     req.Query,
		Limit:     req.Limit,
		Threshold: req.Threshold,
		Category:  req.Category,
		UseHybrid: req.UseHybrid,
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, resp)
}

type callToolRequest struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (rt *mcpRoutes) callTool(w http.ResponseWriter, r *http.Request) error {
	var req callToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := checkArgSize(req.Arguments, rt.limits.MaxArgBytes); err != nil {
		return err
	}

	result, err := rt.facade.CallTool(r.Context(), req.ToolName, req.Arguments)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, result)
}

type callToolSummarizedRequest struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
	MaxTokens int            `json:"max_tokens"`
	Hint      string         `json:"hint,omitempty"`
}

func (rt *mcpRoutes) callToolSummarized(w http.ResponseWriter, r *http.Request) error {
	var req callToolSummarizedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := checkArgSize(req.Arguments, rt.limits.MaxArgBytes); err != nil {
		return err
	}

	result, err := rt.facade.CallToolSummarized(r.Context(), req.ToolName, req.Arguments, req.MaxTokens, req.Hint)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, result)
}

func (rt *mcpRoutes) getToolSchema(w http.ResponseWriter, r *http.Request) error {
	name := chi.URLParam(r, "name")
	schema, err := rt.facade.GetToolSchema(r.Context(), name)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, schema)
}

// checkArgSize enforces the arg-size cap independent of the whole request's
// body cap (§6: "body-size and arg-size caps" are two distinct limits).
func checkArgSize(args map[string]any, maxArgBytes int64) error {
	if maxArgBytes <= 0 || args == nil {
		return nil
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encoding arguments: %w", err)
	}
	if int64(len(encoded)) > maxArgBytes {
		return httperr.WithCode(fmt.Errorf("arguments exceed maximum size"), http.StatusRequestEntityTooLarge)
	}
	return nil
}
