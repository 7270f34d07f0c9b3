// Package registry implements the tool registry data model and CRUD
// orchestration (C4): the system-of-record for Tool and ToolExecution rows,
// embedding-on-write, and execution bookkeeping.
package registry

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// canonicalJSON renders v deterministically; encoding/json sorts map keys,
// which is sufficient for a stable content hash.
func canonicalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// ImplementationType identifies which executor backend runs a tool.
type ImplementationType string

// The five implementation kinds the execution router dispatches (§4.6).
const (
	PythonCallable ImplementationType = "PYTHON_CALLABLE"
	HTTPEndpoint   ImplementationType = "HTTP_ENDPOINT"
	MCPServer      ImplementationType = "MCP_SERVER"
	LLMGateway     ImplementationType = "LLM_GATEWAY"
	CommandLine    ImplementationType = "COMMAND_LINE"
)

func (t ImplementationType) valid() bool {
	switch t {
	case PythonCallable, HTTPEndpoint, MCPServer, LLMGateway, CommandLine:
		return true
	default:
		return false
	}
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9:_-]{1,255}$`)

// Tool is the registry's primary entity (§3).
type Tool struct {
	ID                 int64
	Name               string
	Description        string
	Category           string
	Tags               []string
	InputSchema        map[string]any
	OutputSchema       map[string]any
	ImplementationType ImplementationType
	ImplementationCode string
	Version            string
	Embedding          []float32
	IsActive           bool
	Metadata           map[string]any
	TimeoutOverride    time.Duration
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// EmbeddingText builds the canonical text fed to the embedding client,
// per §4.4: "{name}\n{description}\nCategory: {category}\nTags: {tags}".
func (t *Tool) EmbeddingText() string {
	tags := strings.Join(t.Tags, ",")
	return fmt.Sprintf("%s\n%s\nCategory: %s\nTags: %s", t.Name, t.Description, t.Category, tags)
}

// ContentHash returns a stable identity for the fields discovery compares
// to detect upstream changes (§4.8 step 3): description, input schema,
// tags, category.
func (t *Tool) ContentHash() string {
	return t.contentHash()
}

// contentHash is the unexported implementation behind ContentHash.
func (t *Tool) contentHash() string {
	var b strings.Builder
	b.WriteString(t.Description)
	b.WriteString("|")
	b.WriteString(t.Category)
	b.WriteString("|")
	tags := append([]string(nil), t.Tags...)
	sortStrings(tags)
	b.WriteString(strings.Join(tags, ","))
	b.WriteString("|")
	b.WriteString(canonicalJSON(t.InputSchema))
	return b.String()
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Validate checks the static invariants from §3 that don't require a DB
// round trip (uniqueness is enforced by the store).
func (t *Tool) Validate() error {
	if !namePattern.MatchString(t.Name) {
		return fmt.Errorf("name must be 1-255 chars of ASCII letters, digits, ':', '_', '-'")
	}
	if strings.TrimSpace(t.Description) == "" {
		return fmt.Errorf("description must be non-empty")
	}
	if strings.TrimSpace(t.Category) == "" {
		return fmt.Errorf("category must be non-empty")
	}
	for _, tag := range t.Tags {
		if len(tag) > 64 {
			return fmt.Errorf("tag %q exceeds 64 characters", tag)
		}
	}
	if !t.ImplementationType.valid() {
		return fmt.Errorf("implementation_type %q is not one of the supported kinds", t.ImplementationType)
	}
	if t.InputSchema == nil {
		return fmt.Errorf("input_schema is required")
	}
	if t.Version == "" {
		t.Version = "1.0.0"
	}
	return nil
}

// ExecutionStatus is the terminal state of a ToolExecution row.
type ExecutionStatus string

// Terminal execution states (§3).
const (
	StatusSuccess ExecutionStatus = "SUCCESS"
	StatusError   ExecutionStatus = "ERROR"
	StatusTimeout ExecutionStatus = "TIMEOUT"
)

// ToolExecution is an append-only audit row (§3). It references a Tool by
// id but survives the tool's deletion for auditing.
type ToolExecution struct {
	ID           int64
	ToolID       int64
	ToolName     string
	Arguments    map[string]any
	Output       map[string]any
	Status       ExecutionStatus
	ErrorMessage string
	DurationMS   int64
	StartedAt    time.Time
}
