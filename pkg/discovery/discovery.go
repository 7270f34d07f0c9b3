// Package discovery implements the MCP Discovery Service (C8): it polls
// upstream MCP servers (and optionally the LLM gateway) and reconciles
// their tool lists into the local registry.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/toolgateway/registry/pkg/config"
	"github.com/toolgateway/registry/pkg/logger"
	"github.com/toolgateway/registry/pkg/registry"
)

const maxRetainedSummaries = 20

// ToolRegistry is the subset of registry.Service the reconciler needs.
type ToolRegistry interface {
	GetByName(ctx context.Context, name string) (*registry.Tool, error)
	Register(ctx context.Context, t *registry.Tool, autoEmbed bool) (*registry.Tool, error)
	Update(ctx context.Context, current *registry.Tool, f registry.UpdateFields) (*registry.Tool, error)
	Deactivate(ctx context.Context, id int64) error
	List(ctx context.Context, f registry.ListFilter) ([]*registry.Tool, int, error)
}

// Summary is a per-run or per-source reconciliation report (§4.8 step 5).
type Summary struct {
	Source      string `json:"source"`
	Fetched     int    `json:"fetched"`
	Created     int    `json:"created"`
	Updated     int    `json:"updated"`
	Deactivated int    `json:"deactivated"`
	Errors      int    `json:"errors"`
	Error       string `json:"error,omitempty"`
}

// Service reconciles every configured source into the local registry and
// retains recent run summaries for the admin `/admin/mcp/sync/last`
// endpoint (SPEC_FULL.md §C).
type Service struct {
	registry ToolRegistry
	fetcher  Fetcher
	sources  []config.MCPSource
	gateway  *config.MCPSource

	mu      sync.Mutex
	history []Summary
}

// GatewaySource builds the synthetic MCPSource describing the LLM
// gateway's own tool list, used when discovery.include_gateway is set.
func GatewaySource(gatewayURL string) config.MCPSource {
	return config.MCPSource{Name: "gateway", URL: gatewayURL, Category: "llm-gateway"}
}

// New wires the discovery service. gateway is nil unless
// DiscoveryConfig.IncludeGateway is set.
func New(reg ToolRegistry, fetcher Fetcher, sources []config.MCPSource, gateway *config.MCPSource) *Service {
	return &Service{registry: reg, fetcher: fetcher, sources: sources, gateway: gateway}
}

// SyncAll reconciles every configured source, one at a time (§5: discovery
// runs one source at a time inside a single invocation), and records the
// resulting summaries.
func (s *Service) SyncAll(ctx context.Context) []Summary {
	sources := s.sources
	if s.gateway != nil {
		sources = append(append([]config.MCPSource{}, sources...), *s.gateway)
	}

	summaries := make([]Summary, 0, len(sources))
	for _, src := range sources {
		summaries = append(summaries, s.syncSource(ctx, src))
	}
	s.record(summaries...)
	return summaries
}

// SyncSource reconciles a single named source, used by the admin trigger's
// optional `{source}` field.
func (s *Service) SyncSource(ctx context.Context, name string) (Summary, error) {
	for _, src := range s.sources {
		if src.Name == name {
			summary := s.syncSource(ctx, src)
			s.record(summary)
			return summary, nil
		}
	}
	if s.gateway != nil && s.gateway.Name == name {
		summary := s.syncSource(ctx, *s.gateway)
		s.record(summary)
		return summary, nil
	}
	return Summary{}, fmt.Errorf("unknown discovery source %q", name)
}

// LastSyncs returns the most recent recorded summaries, newest first.
func (s *Service) LastSyncs() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Summary, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Service) record(summaries ...Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, summary := range summaries {
		s.history = append([]Summary{summary}, s.history...)
	}
	if len(s.history) > maxRetainedSummaries {
		s.history = s.history[:maxRetainedSummaries]
	}
}

// syncSource runs one source's full reconciliation (§4.8 steps 1-4). A
// fetch failure is reported in the summary and never aborts other sources.
func (s *Service) syncSource(ctx context.Context, src config.MCPSource) Summary {
	summary := Summary{Source: src.Name}

	remote, err := s.fetcher.ListTools(ctx, src.URL)
	if err != nil {
		summary.Errors = 1
		summary.Error = err.Error()
		logger.Warnf("discovery: source %q fetch failed: %v", src.Name, err)
		return summary
	}
	summary.Fetched = len(remote)

	implType := registry.MCPServer
	if s.gateway != nil && src.Name == s.gateway.Name {
		implType = registry.LLMGateway
	}

	seen := make(map[string]bool, len(remote))
	for _, rt := range remote {
		name := fmt.Sprintf("%s:%s", src.Name, rt.Name)
		seen[name] = true

		normalized := normalizeTool(name, rt, src, implType)

		existing, err := s.registry.GetByName(ctx, name)
		if err != nil {
			if _, regErr := s.registry.Register(ctx, normalized, true); regErr != nil {
				summary.Errors++
				logger.Warnf("discovery: source %q registering %q failed: %v", src.Name, name, regErr)
				continue
			}
			summary.Created++
			continue
		}

		if existing.ContentHash() == normalized.ContentHash() {
			continue
		}

		desc := normalized.Description
		category := normalized.Category
		if _, err := s.registry.Update(ctx, existing, registry.UpdateFields{
			Description: &desc,
			Category:    &category,
			Tags:        normalized.Tags,
			InputSchema: normalized.InputSchema,
		}); err != nil {
			summary.Errors++
			logger.Warnf("discovery: source %q updating %q failed: %v", src.Name, name, err)
			continue
		}
		summary.Updated++
	}

	deactivated, err := s.deactivateMissing(ctx, src.Name, seen)
	if err != nil {
		summary.Errors++
		logger.Warnf("discovery: source %q deactivation scan failed: %v", src.Name, err)
	}
	summary.Deactivated = deactivated

	return summary
}

// deactivateMissing soft-deletes tools under src's name prefix that no
// longer appear in the fetched set (§4.8 step 4).
func (s *Service) deactivateMissing(ctx context.Context, sourceName string, seen map[string]bool) (int, error) {
	const pageSize = 100
	offset := 0
	deactivated := 0
	prefix := sourceName + ":"
	for {
		tools, _, err := s.registry.List(ctx, registry.ListFilter{SourcePrefix: prefix, ActiveOnly: true, Limit: pageSize, Offset: offset})
		if err != nil {
			return deactivated, err
		}
		if len(tools) == 0 {
			return deactivated, nil
		}
		for _, t := range tools {
			if seen[t.Name] {
				continue
			}
			if err := s.registry.Deactivate(ctx, t.ID); err != nil {
				logger.Warnf("discovery: deactivating %q failed: %v", t.Name, err)
				continue
			}
			deactivated++
		}
		offset += pageSize
	}
}

func normalizeTool(name string, rt RemoteTool, src config.MCPSource, implType registry.ImplementationType) *registry.Tool {
	category := src.Category
	if category == "" {
		category = "discovered"
	}
	inputSchema := rt.InputSchema
	if inputSchema == nil {
		inputSchema = map[string]any{"type": "object"}
	}

	implCode, _ := json.Marshal(map[string]string{"url": src.URL, "tool_name": rt.Name})

	return &registry.Tool{
		Name:               name,
		Description:        rt.Description,
		Category:           category,
		Tags:               src.Tags,
		InputSchema:        inputSchema,
		OutputSchema:       rt.OutputSchema,
		ImplementationType: implType,
		ImplementationCode: string(implCode),
		IsActive:           true,
	}
}
