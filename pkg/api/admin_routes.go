package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/toolgateway/registry/pkg/api/errors"
	"github.com/toolgateway/registry/pkg/config"
	"github.com/toolgateway/registry/pkg/discovery"
	"github.com/toolgateway/registry/pkg/httperr"
	"github.com/toolgateway/registry/pkg/registry"
)

// ToolAdmin is the subset of registry.Service the admin CRUD surface needs.
type ToolAdmin interface {
	Register(ctx context.Context, t *registry.Tool, autoEmbed bool) (*registry.Tool, error)
	Get(ctx context.Context, id int64) (*registry.Tool, error)
	Update(ctx context.Context, current *registry.Tool, f registry.UpdateFields) (*registry.Tool, error)
	ReindexOne(ctx context.Context, id int64) (*registry.Tool, error)
	Activate(ctx context.Context, id int64) error
	Deactivate(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	ListExecutions(ctx context.Context, toolID int64, limit, offset int) ([]*registry.ToolExecution, error)
}

// DiscoverySyncer is the subset of discovery.Service the admin trigger
// endpoints need.
type DiscoverySyncer interface {
	SyncAll(ctx context.Context) []discovery.Summary
	SyncSource(ctx context.Context, name string) (discovery.Summary, error)
	LastSyncs() []discovery.Summary
}

type adminRoutes struct {
	tools     ToolAdmin
	discovery DiscoverySyncer
}

func adminRouter(tools ToolAdmin, disc DiscoverySyncer, admin config.AdminConfig) http.Handler {
	routes := adminRoutes{tools: tools, discovery: disc}

	r := chi.NewRouter()
	r.Use(requireAdminKey(admin.APIKey))

	r.Route("/tools", func(r chi.Router) {
		r.Post("/", apierrors.ErrorHandler(routes.registerTool))
		r.Route("/{id}", func(r chi.Router) {
			r.Put("/", apierrors.ErrorHandler(routes.updateTool))
			r.Delete("/", apierrors.ErrorHandler(routes.deleteTool))
			r.Post("/reindex", apierrors.ErrorHandler(routes.reindexTool))
			r.Post("/activate", apierrors.ErrorHandler(routes.activateTool))
			r.Post("/deactivate", apierrors.ErrorHandler(routes.deactivateTool))
			r.Get("/executions", apierrors.ErrorHandler(routes.listExecutions))
		})
	})

	r.Route("/mcp/sync", func(r chi.Router) {
		r.Post("/", apierrors.ErrorHandler(routes.triggerSync))
		r.Get("/last", apierrors.ErrorHandler(routes.lastSync))
	})

	return r
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, httperr.WithCode(fmt.Errorf("invalid tool id"), http.StatusBadRequest)
	}
	return id, nil
}

type toolRequest struct {
	Name               string                      `json:"name"`
	Description        string                      `json:"description"`
	Category           string                      `json:"category"`
	Tags               []string                    `json:"tags"`
	InputSchema        map[string]any              `json:"input_schema"`
	OutputSchema       map[string]any              `json:"output_schema"`
	ImplementationType registry.ImplementationType `json:"implementation_type"`
	ImplementationCode string                      `json:"implementation_code"`
	Version            string                      `json:"version"`
	Metadata           map[string]any              `json:"metadata"`
	TimeoutOverrideMS  int64                       `json:"timeout_override_ms"`
}

func (rt *adminRoutes) registerTool(w http.ResponseWriter, r *http.Request) error {
	var req toolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}

	tool := &registry.Tool{
		Name:               req.Name,
		Description:        req.Description,
		Category:           req.Category,
		Tags:               req.Tags,
		InputSchema:        req.InputSchema,
		OutputSchema:       req.OutputSchema,
		ImplementationType: req.ImplementationType,
		ImplementationCode: req.ImplementationCode,
		Version:            req.Version,
		Metadata:           req.Metadata,
		IsActive:           true,
	}
	if req.TimeoutOverrideMS > 0 {
		tool.TimeoutOverride = msToDuration(req.TimeoutOverrideMS)
	}

	created, err := rt.tools.Register(r.Context(), tool, true)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, created)
}

type toolUpdateRequest struct {
	Description        *string                       `json:"description"`
	Category           *string                       `json:"category"`
	Tags               []string                      `json:"tags"`
	InputSchema        map[string]any                `json:"input_schema"`
	OutputSchema       map[string]any                `json:"output_schema"`
	ImplementationType *registry.ImplementationType  `json:"implementation_type"`
	ImplementationCode *string                       `json:"implementation_code"`
	Version            *string                       `json:"version"`
	Metadata           map[string]any                `json:"metadata"`
	TimeoutOverrideMS  *int64                         `json:"timeout_override_ms"`
}

func (rt *adminRoutes) updateTool(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	var req toolUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}

	current, err := rt.tools.Get(r.Context(), id)
	if err != nil {
		return err
	}

	updated, err := rt.tools.Update(r.Context(), current, registry.UpdateFields{
		Description:        req.Description,
		Category:           req.Category,
		Tags:               req.Tags,
		InputSchema:        req.InputSchema,
		OutputSchema:       req.OutputSchema,
		ImplementationType: req.ImplementationType,
		ImplementationCode: req.ImplementationCode,
		Version:            req.Version,
		TimeoutOverrideMS:  req.TimeoutOverrideMS,
		Metadata:           req.Metadata,
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, updated)
}

func (rt *adminRoutes) deleteTool(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	if err := rt.tools.Delete(r.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (rt *adminRoutes) reindexTool(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	tool, err := rt.tools.ReindexOne(r.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, tool)
}

func (rt *adminRoutes) activateTool(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	if err := rt.tools.Activate(r.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (rt *adminRoutes) deactivateTool(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	if err := rt.tools.Deactivate(r.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (rt *adminRoutes) listExecutions(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	executions, err := rt.tools.ListExecutions(r.Context(), id, limit, offset)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, executions)
}

type syncRequest struct {
	Source string `json:"source,omitempty"`
}

func (rt *adminRoutes) triggerSync(w http.ResponseWriter, r *http.Request) error {
	var req syncRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return fmt.Errorf("invalid request body: %w", err)
		}
	}

	if req.Source != "" {
		summary, err := rt.discovery.SyncSource(r.Context(), req.Source)
		if err != nil {
			return httperr.WithCode(err, http.StatusBadRequest)
		}
		return writeJSON(w, http.StatusOK, summary)
	}

	summaries := rt.discovery.SyncAll(r.Context())
	return writeJSON(w, http.StatusOK, summaries)
}

func (rt *adminRoutes) lastSync(w http.ResponseWriter, r *http.Request) error {
	return writeJSON(w, http.StatusOK, rt.discovery.LastSyncs())
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
