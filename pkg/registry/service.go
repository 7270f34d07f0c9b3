package registry

import (
	"context"
	"fmt"
	"time"

	regerrors "github.com/toolgateway/registry/pkg/errors"
	"github.com/toolgateway/registry/pkg/logger"
	"github.com/toolgateway/registry/pkg/telemetry"
)

// Embedder generates a vector for a single piece of text. Satisfied by
// *embedding.Client; named here to avoid a dependency on the embedding
// package's HTTP plumbing.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Indexer mirrors the tool catalog into the derived vector/lexical index.
// Satisfied by *vectorstore.Store.
type Indexer interface {
	Upsert(ctx context.Context, t *Tool) error
	SetEmbedding(ctx context.Context, toolID int64, vec []float32) error
	Delete(ctx context.Context, toolID int64) error
}

// Service is the CRUD orchestration layer (C4): it composes the
// sqlite-backed Store, the Embedding Client and the vector index so a
// register/update call leaves all three in a consistent state.
type Service struct {
	store     *Store
	embedder  Embedder
	index     Indexer
	recorder  telemetry.Recorder
	autoEmbed bool
}

// NewService wires the registry's dependencies. defaultAutoEmbed is stored
// on the Service but not consulted: Register always acts on its own
// autoEmbed argument (§4.4's `auto_embed` field).
func NewService(store *Store, embedder Embedder, index Indexer, recorder telemetry.Recorder, defaultAutoEmbed bool) *Service {
	if recorder == nil {
		recorder = telemetry.NoOp{}
	}
	return &Service{store: store, embedder: embedder, index: index, recorder: recorder, autoEmbed: defaultAutoEmbed}
}

// Register validates and inserts a new tool, then generates and persists
// its embedding to both stores. Per §4.4, a failed embedding rolls the tool
// back unless autoEmbed is false, in which case the tool stays registered
// without a vector and is reachable by lexical search only until a later
// reindex fills it in.
func (s *Service) Register(ctx context.Context, t *Tool, autoEmbed bool) (*Tool, error) {
	if err := t.Validate(); err != nil {
		return nil, regerrors.NewInvalidArgumentError(err.Error(), err)
	}

	if _, err := s.store.Insert(ctx, t); err != nil {
		return nil, err
	}
	s.recorder.Counter("registry_tools_registered_total", 1)

	if !autoEmbed {
		if err := s.index.Upsert(ctx, t); err != nil {
			logger.Warnf("tool %q indexed without embedding; index upsert failed: %v", t.Name, err)
		}
		return t, nil
	}

	if err := s.embedAndIndex(ctx, t); err != nil {
		if delErr := s.store.Delete(ctx, t.ID); delErr != nil {
			logger.Errorf("rolling back tool %q after embedding failure also failed: %v", t.Name, delErr)
		}
		return nil, regerrors.NewBackendUnavailableError(
			fmt.Sprintf("generating embedding for tool %q", t.Name), err)
	}

	return t, nil
}

// embedAndIndex generates (if the tool doesn't already carry a vector) and
// writes a tool's embedding to both the system-of-record and the derived
// index, then upserts the indexed fields.
func (s *Service) embedAndIndex(ctx context.Context, t *Tool) error {
	if t.Embedding == nil {
		if s.embedder == nil {
			return regerrors.NewBackendUnavailableError("no embedding client configured", nil)
		}
		vec, err := s.embedder.Embed(ctx, t.EmbeddingText())
		if err != nil {
			return err
		}
		t.Embedding = vec
	}
	if err := s.store.SetEmbedding(ctx, t.ID, t.Embedding, s.embedder.Dimension()); err != nil {
		return err
	}
	if err := s.index.Upsert(ctx, t); err != nil {
		return err
	}
	return s.index.SetEmbedding(ctx, t.ID, t.Embedding)
}

// Get loads a tool by id.
func (s *Service) Get(ctx context.Context, id int64) (*Tool, error) {
	return s.store.Get(ctx, id)
}

// GetByName loads a tool by its unique name.
func (s *Service) GetByName(ctx context.Context, name string) (*Tool, error) {
	return s.store.GetByName(ctx, name)
}

// List returns a page of the catalog.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*Tool, int, error) {
	return s.store.List(ctx, f)
}

// ListCategories returns the distinct categories present in the catalog.
func (s *Service) ListCategories(ctx context.Context) ([]string, error) {
	return s.store.ListCategories(ctx)
}

// Stats summarizes the catalog.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.store.Stats(ctx)
}

// UpdateFields carries the subset of Tool fields an update call may change;
// nil pointers mean "leave unchanged."
type UpdateFields struct {
	Description        *string
	Category            *string
	Tags                []string
	InputSchema         map[string]any
	OutputSchema        map[string]any
	ImplementationType  *ImplementationType
	ImplementationCode  *string
	Version             *string
	TimeoutOverrideMS   *int64
	Metadata            map[string]any
}

// embeddingTextFields reports whether any field feeding EmbeddingText()
// changed, per §4.4's "re-embed on change to name, description, category or
// tags." Name is immutable post-registration in this system, so only the
// remaining three are checked here.
func embeddingTextFields(f UpdateFields) bool {
	return f.Description != nil || f.Category != nil || f.Tags != nil
}

// Update applies a partial update and re-embeds if description, category or
// tags changed (§4.4). The caller must have loaded the current row so the
// merge starts from live values.
func (s *Service) Update(ctx context.Context, current *Tool, f UpdateFields) (*Tool, error) {
	if f.Description != nil {
		current.Description = *f.Description
	}
	if f.Category != nil {
		current.Category = *f.Category
	}
	if f.Tags != nil {
		current.Tags = f.Tags
	}
	if f.InputSchema != nil {
		current.InputSchema = f.InputSchema
	}
	if f.OutputSchema != nil {
		current.OutputSchema = f.OutputSchema
	}
	if f.ImplementationType != nil {
		current.ImplementationType = *f.ImplementationType
	}
	if f.ImplementationCode != nil {
		current.ImplementationCode = *f.ImplementationCode
	}
	if f.Version != nil {
		current.Version = *f.Version
	}
	if f.TimeoutOverrideMS != nil {
		current.TimeoutOverride = time.Duration(*f.TimeoutOverrideMS) * time.Millisecond
	}
	if f.Metadata != nil {
		current.Metadata = f.Metadata
	}

	if err := current.Validate(); err != nil {
		return nil, regerrors.NewInvalidArgumentError(err.Error(), err)
	}

	needsReembed := embeddingTextFields(f)
	if needsReembed {
		current.Embedding = nil
	}

	if err := s.store.Update(ctx, current); err != nil {
		return nil, err
	}
	s.recorder.Counter("registry_tools_updated_total", 1)

	if needsReembed {
		if err := s.embedAndIndex(ctx, current); err != nil {
			logger.Warnf("tool %q updated without a refreshed embedding: %v", current.Name, err)
		}
	} else if err := s.index.Upsert(ctx, current); err != nil {
		logger.Warnf("tool %q index upsert failed: %v", current.Name, err)
	}

	return current, nil
}

// Deactivate soft-deletes a tool: it stops appearing in search and cannot
// be called, but its history and row survive (§3, §4.6: inactive tools are
// rejected with ToolInactive rather than ToolNotFound).
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if err := s.store.SetActive(ctx, id, false); err != nil {
		return err
	}
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.index.Upsert(ctx, t)
}

// Activate reverses Deactivate.
func (s *Service) Activate(ctx context.Context, id int64) error {
	if err := s.store.SetActive(ctx, id, true); err != nil {
		return err
	}
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.index.Upsert(ctx, t)
}

// Delete hard-deletes a tool from both stores. Execution history rows
// referencing it are left in place.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.index.Delete(ctx, id); err != nil {
		logger.Warnf("tool id %d deleted from the catalog but index delete failed: %v", id, err)
	}
	return nil
}

// Reindex regenerates the embedding and index entry for every tool in the
// catalog, active or not, used after a dimension change or to repair index
// drift.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	const pageSize = 100
	offset := 0
	reindexed := 0
	for {
		tools, _, err := s.store.List(ctx, ListFilter{Limit: pageSize, Offset: offset})
		if err != nil {
			return reindexed, err
		}
		if len(tools) == 0 {
			return reindexed, nil
		}
		for _, t := range tools {
			t.Embedding = nil
			if err := s.embedAndIndex(ctx, t); err != nil {
				logger.Warnf("reindex: tool %q skipped: %v", t.Name, err)
				continue
			}
			reindexed++
		}
		offset += pageSize
	}
}

// ReindexOne regenerates the embedding and index entry for a single tool,
// used by the admin `/admin/tools/{id}/reindex` endpoint (§6); Reindex above
// covers the whole-catalog case.
func (s *Service) ReindexOne(ctx context.Context, id int64) (*Tool, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Embedding = nil
	if err := s.embedAndIndex(ctx, t); err != nil {
		return nil, regerrors.NewBackendUnavailableError(
			fmt.Sprintf("reindexing tool %q", t.Name), err)
	}
	return t, nil
}

// RecordExecution appends an audit row for a tool call.
func (s *Service) RecordExecution(ctx context.Context, e *ToolExecution) error {
	return s.store.RecordExecution(ctx, e)
}

// ListExecutions returns a tool's recent execution history.
func (s *Service) ListExecutions(ctx context.Context, toolID int64, limit, offset int) ([]*ToolExecution, error) {
	return s.store.ListExecutions(ctx, toolID, limit, offset)
}
