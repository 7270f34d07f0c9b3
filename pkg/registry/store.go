package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver, registers "sqlite"

	regerrors "github.com/toolgateway/registry/pkg/errors"
)

// Store is the sqlite-backed system-of-record for Tool and ToolExecution
// rows (§3, §4.4). It is the single writer of truth; the vector store is a
// derived index rebuilt from rows committed here.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS tools (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL,
	description TEXT NOT NULL,
	category TEXT NOT NULL,
	tags TEXT NOT NULL DEFAULT '[]',
	input_schema TEXT NOT NULL,
	output_schema TEXT,
	implementation_type TEXT NOT NULL,
	implementation_code TEXT NOT NULL DEFAULT '',
	version TEXT NOT NULL DEFAULT '1.0.0',
	embedding_json TEXT,
	is_active INTEGER NOT NULL DEFAULT 1,
	metadata TEXT NOT NULL DEFAULT '{}',
	timeout_override_ms INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tools_category ON tools(category);
CREATE INDEX IF NOT EXISTS idx_tools_is_active ON tools(is_active);

CREATE TABLE IF NOT EXISTS tool_executions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tool_id INTEGER NOT NULL,
	tool_name TEXT NOT NULL,
	arguments TEXT,
	output TEXT,
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL,
	started_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_tool_id ON tool_executions(tool_id);
`

// Open opens (creating if absent) the sqlite database at dsn and applies
// the schema migration.
func Open(ctx context.Context, dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime time.Duration) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, regerrors.NewBackendUnavailableError("opening sqlite database", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		return nil, regerrors.NewBackendUnavailableError("pinging sqlite database", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, regerrors.NewInternalError("applying schema migration", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable, used by the /ready probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func marshalOrEmpty(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func toRow(t *Tool) (tags, inputSchema, outputSchema, embeddingJSON, metadata string) {
	tags = marshalOrEmpty(t.Tags)
	if tags == "" {
		tags = "[]"
	}
	inputSchema = marshalOrEmpty(t.InputSchema)
	if t.OutputSchema != nil {
		outputSchema = marshalOrEmpty(t.OutputSchema)
	}
	if t.Embedding != nil {
		embeddingJSON = marshalOrEmpty(t.Embedding)
	}
	metadata = marshalOrEmpty(t.Metadata)
	if metadata == "" {
		metadata = "{}"
	}
	return
}

func scanTool(row interface {
	Scan(dest ...any) error
}) (*Tool, error) {
	var (
		t                                               Tool
		tags, inputSchema, metadata                     string
		outputSchema, embeddingJSON, implementationCode sql.NullString
		implType                                        string
		isActive                                        int
		timeoutMS                                       int64
		createdAt, updatedAt                             string
	)
	if err := row.Scan(
		&t.ID, &t.Name, &t.Description, &t.Category, &tags, &inputSchema, &outputSchema,
		&implType, &implementationCode, &t.Version, &embeddingJSON, &isActive, &metadata,
		&timeoutMS, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	t.ImplementationType = ImplementationType(implType)
	t.ImplementationCode = implementationCode.String
	t.IsActive = isActive != 0
	t.TimeoutOverride = time.Duration(timeoutMS) * time.Millisecond

	_ = json.Unmarshal([]byte(tags), &t.Tags)
	_ = json.Unmarshal([]byte(inputSchema), &t.InputSchema)
	if outputSchema.Valid && outputSchema.String != "" {
		_ = json.Unmarshal([]byte(outputSchema.String), &t.OutputSchema)
	}
	if embeddingJSON.Valid && embeddingJSON.String != "" {
		_ = json.Unmarshal([]byte(embeddingJSON.String), &t.Embedding)
	}
	_ = json.Unmarshal([]byte(metadata), &t.Metadata)

	var err error
	t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, err
	}
	t.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const toolColumns = `id, name, description, category, tags, input_schema, output_schema,
	implementation_type, implementation_code, version, embedding_json, is_active, metadata,
	timeout_override_ms, created_at, updated_at`

// Insert writes a new tool row inside its own transaction and returns the
// assigned id. A new tool always starts active. Embedding is expected to be
// nil; SetEmbedding populates it once the caller has the id (§4.4: "register
// flushes to obtain id, then generates embedding inside the same
// transaction").
func (s *Store) Insert(ctx context.Context, t *Tool) (int64, error) {
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	t.IsActive = true
	tags, inputSchema, outputSchema, _, metadata := toRow(t)

	var outputSchemaArg any
	if outputSchema != "" {
		outputSchemaArg = outputSchema
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tools (name, description, category, tags, input_schema, output_schema,
			implementation_type, implementation_code, version, is_active, metadata,
			timeout_override_ms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Name, t.Description, t.Category, tags, inputSchema, outputSchemaArg,
		string(t.ImplementationType), t.ImplementationCode, t.Version, boolToInt(t.IsActive), metadata,
		t.TimeoutOverride.Milliseconds(), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return 0, regerrors.NewNameConflictError(fmt.Sprintf("tool %q already exists", t.Name), err)
		}
		return 0, regerrors.NewInternalError("inserting tool", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, regerrors.NewInternalError("reading inserted tool id", err)
	}
	t.ID = id
	return id, nil
}

// SetEmbedding writes the vector column for a tool, validating its length
// against dimension (single source of truth, enforced by the caller
// passing it in).
func (s *Store) SetEmbedding(ctx context.Context, toolID int64, vec []float32, dimension int) error {
	if len(vec) != dimension {
		return regerrors.NewEmbeddingShapeError(
			fmt.Sprintf("embedding length %d does not match configured dimension %d", len(vec), dimension), nil)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE tools SET embedding_json = ?, updated_at = ? WHERE id = ?`,
		marshalOrEmpty(vec), now, toolID)
	if err != nil {
		return regerrors.NewInternalError("setting embedding", err)
	}
	return checkAffected(res, toolID)
}

// Update applies a partial update to an existing tool. The caller is
// responsible for merging fields onto the loaded Tool before calling
// Update; this keeps the "any field changed in embedding text triggers
// re-embed" decision in the service layer, which knows the prior values.
func (s *Store) Update(ctx context.Context, t *Tool) error {
	now := time.Now().UTC()
	t.UpdatedAt = now
	tags, inputSchema, outputSchema, embeddingJSON, metadata := toRow(t)

	var outputSchemaArg, embeddingArg any
	if outputSchema != "" {
		outputSchemaArg = outputSchema
	}
	if embeddingJSON != "" {
		embeddingArg = embeddingJSON
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE tools SET description = ?, category = ?, tags = ?, input_schema = ?, output_schema = ?,
			implementation_type = ?, implementation_code = ?, version = ?, embedding_json = ?,
			is_active = ?, metadata = ?, timeout_override_ms = ?, updated_at = ?
		WHERE id = ?`,
		t.Description, t.Category, tags, inputSchema, outputSchemaArg,
		string(t.ImplementationType), t.ImplementationCode, t.Version, embeddingArg,
		boolToInt(t.IsActive), metadata, t.TimeoutOverride.Milliseconds(), now.Format(time.RFC3339Nano), t.ID,
	)
	if err != nil {
		return regerrors.NewInternalError("updating tool", err)
	}
	return checkAffected(res, t.ID)
}

// SetActive toggles the soft-delete flag.
func (s *Store) SetActive(ctx context.Context, id int64, active bool) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `UPDATE tools SET is_active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), now, id)
	if err != nil {
		return regerrors.NewInternalError("setting active flag", err)
	}
	return checkAffected(res, id)
}

// Delete hard-deletes a tool row. ToolExecution rows referencing it are
// left in place, per §3's no-cascade relationship.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tools WHERE id = ?`, id)
	if err != nil {
		return regerrors.NewInternalError("deleting tool", err)
	}
	return checkAffected(res, id)
}

// Get loads a tool by id.
func (s *Store) Get(ctx context.Context, id int64) (*Tool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+toolColumns+` FROM tools WHERE id = ?`, id)
	t, err := scanTool(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, regerrors.NewNotFoundError(fmt.Sprintf("tool id %d not found", id), err)
	}
	if err != nil {
		return nil, regerrors.NewInternalError("loading tool", err)
	}
	return t, nil
}

// GetByName loads a tool by its unique name.
func (s *Store) GetByName(ctx context.Context, name string) (*Tool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+toolColumns+` FROM tools WHERE name = ?`, name)
	t, err := scanTool(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, regerrors.NewNotFoundError(fmt.Sprintf("tool %q not found", name), err)
	}
	if err != nil {
		return nil, regerrors.NewInternalError("loading tool", err)
	}
	return t, nil
}

// ListFilter narrows List and vector-store catalog scans.
type ListFilter struct {
	Category     string
	ActiveOnly   bool
	SourcePrefix string // "{source}:" for discovery reconciliation scans
	Limit        int
	Offset       int
}

// List returns tools matching filter plus the total matching count
// (ignoring pagination), for the paginated admin/mcp list endpoints.
func (s *Store) List(ctx context.Context, f ListFilter) ([]*Tool, int, error) {
	where := "WHERE 1=1"
	args := []any{}
	if f.Category != "" {
		where += " AND category = ?"
		args = append(args, f.Category)
	}
	if f.ActiveOnly {
		where += " AND is_active = 1"
	}
	if f.SourcePrefix != "" {
		where += " AND name LIKE ?"
		args = append(args, f.SourcePrefix+"%")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tools `+where, args...).Scan(&total); err != nil {
		return nil, 0, regerrors.NewInternalError("counting tools", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + toolColumns + ` FROM tools ` + where + ` ORDER BY id ASC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, regerrors.NewInternalError("listing tools", err)
	}
	defer rows.Close()

	var out []*Tool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, 0, regerrors.NewInternalError("scanning tool row", err)
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

// ListCategories returns the distinct categories present in the catalog.
func (s *Store) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT category FROM tools ORDER BY category ASC`)
	if err != nil {
		return nil, regerrors.NewInternalError("listing categories", err)
	}
	defer rows.Close()
	var cats []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, regerrors.NewInternalError("scanning category", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// Stats summarizes the catalog by category and implementation type.
type Stats struct {
	TotalTools  int
	ByCategory  map[string]int
	ByImplType  map[string]int
	ActiveTools int
}

// Stats computes catalog totals for the tools://stats resource.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByCategory: map[string]int{}, ByImplType: map[string]int{}}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tools`).Scan(&stats.TotalTools); err != nil {
		return nil, regerrors.NewInternalError("counting tools", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tools WHERE is_active = 1`).Scan(&stats.ActiveTools); err != nil {
		return nil, regerrors.NewInternalError("counting active tools", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM tools GROUP BY category`)
	if err != nil {
		return nil, regerrors.NewInternalError("aggregating by category", err)
	}
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			rows.Close()
			return nil, regerrors.NewInternalError("scanning category aggregate", err)
		}
		stats.ByCategory[cat] = n
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT implementation_type, COUNT(*) FROM tools GROUP BY implementation_type`)
	if err != nil {
		return nil, regerrors.NewInternalError("aggregating by implementation type", err)
	}
	defer rows.Close()
	for rows.Next() {
		var impl string
		var n int
		if err := rows.Scan(&impl, &n); err != nil {
			return nil, regerrors.NewInternalError("scanning implementation aggregate", err)
		}
		stats.ByImplType[impl] = n
	}
	return stats, rows.Err()
}

// RecordExecution appends a ToolExecution audit row.
func (s *Store) RecordExecution(ctx context.Context, e *ToolExecution) error {
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_executions (tool_id, tool_name, arguments, output, status, error_message, duration_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ToolID, e.ToolName, marshalOrEmpty(e.Arguments), marshalOrEmpty(e.Output),
		string(e.Status), e.ErrorMessage, e.DurationMS, e.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return regerrors.NewInternalError("recording tool execution", err)
	}
	return nil
}

// ListExecutions returns a page of execution history for a tool, most
// recent first.
func (s *Store) ListExecutions(ctx context.Context, toolID int64, limit, offset int) ([]*ToolExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tool_id, tool_name, arguments, output, status, error_message, duration_ms, started_at
		FROM tool_executions WHERE tool_id = ? ORDER BY id DESC LIMIT ? OFFSET ?`, toolID, limit, offset)
	if err != nil {
		return nil, regerrors.NewInternalError("listing tool executions", err)
	}
	defer rows.Close()

	var out []*ToolExecution
	for rows.Next() {
		var e ToolExecution
		var args, output sql.NullString
		var startedAt string
		if err := rows.Scan(&e.ID, &e.ToolID, &e.ToolName, &args, &output, &e.Status,
			&e.ErrorMessage, &e.DurationMS, &startedAt); err != nil {
			return nil, regerrors.NewInternalError("scanning tool execution", err)
		}
		if args.Valid && args.String != "" {
			_ = json.Unmarshal([]byte(args.String), &e.Arguments)
		}
		if output.Valid && output.String != "" {
			_ = json.Unmarshal([]byte(output.String), &e.Output)
		}
		e.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func checkAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return regerrors.NewInternalError("checking rows affected", err)
	}
	if n == 0 {
		return regerrors.NewNotFoundError(fmt.Sprintf("tool id %d not found", id), nil)
	}
	return nil
}

func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
