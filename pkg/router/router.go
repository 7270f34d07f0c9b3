// Package router implements the Execution Router (C6): resolves a tool's
// implementation kind and dispatches call_tool with per-tool timeouts,
// argument validation, and execution bookkeeping.
package router

import (
	"context"
	"fmt"
	"time"

	"github.com/xeipuuv/gojsonschema"

	regerrors "github.com/toolgateway/registry/pkg/errors"
	"github.com/toolgateway/registry/pkg/logger"
	"github.com/toolgateway/registry/pkg/registry"
	"github.com/toolgateway/registry/pkg/retrieval"
)

// ToolStore is the subset of registry.Service the router needs to resolve
// and record against a tool.
type ToolStore interface {
	GetByName(ctx context.Context, name string) (*registry.Tool, error)
	RecordExecution(ctx context.Context, e *registry.ToolExecution) error
}

// Suggester backs the "not found, did you mean" path (§7): not-found
// errors return suggestions from a semantic search of the name itself.
type Suggester interface {
	FindTool(ctx context.Context, q retrieval.Query) (*retrieval.Response, error)
}

// Config configures the router's timeouts and worker pool.
type Config struct {
	DefaultCallTimeout time.Duration
	MaxCallTimeout     time.Duration
	WorkerPoolSize     int
}

// Dispatcher implements call_tool (§4.6): one entry point that resolves a
// tool by name, validates arguments, picks the executor for its
// implementation kind, and records the outcome.
type Dispatcher struct {
	tools     ToolStore
	suggester Suggester
	config    Config

	python  *pythonExecutor
	http    *httpExecutor
	mcp     *mcpExecutor
	gateway *gatewayExecutor
	command *commandExecutor
}

// Result is call_tool's outcome: the executor's output plus the bookkeeping
// fields the caller (the MCP facade) needs to build its response.
type Result struct {
	Output     map[string]any
	Status     registry.ExecutionStatus
	DurationMS int64
}

// New wires a Dispatcher from its five backend executors.
func New(tools ToolStore, suggester Suggester, config Config, python *pythonExecutor, httpExec *httpExecutor, mcpExec *mcpExecutor, gateway *gatewayExecutor, command *commandExecutor) *Dispatcher {
	return &Dispatcher{
		tools:     tools,
		suggester: suggester,
		config:    config,
		python:    python,
		http:      httpExec,
		mcp:       mcpExec,
		gateway:   gateway,
		command:   command,
	}
}

// CallTool resolves name, validates args, dispatches to the tool's
// implementation kind under a per-tool deadline, and records a
// ToolExecution row regardless of outcome.
func (d *Dispatcher) CallTool(ctx context.Context, name string, args map[string]any) (*Result, error) {
	tool, err := d.tools.GetByName(ctx, name)
	if err != nil {
		if regerrors.IsNotFound(err) {
			return nil, d.notFoundWithSuggestions(ctx, name)
		}
		return nil, err
	}

	if !tool.IsActive {
		return nil, regerrors.NewToolInactiveError(fmt.Sprintf("tool %q is deactivated", name), nil)
	}

	if err := validateArguments(tool, args); err != nil {
		return nil, err
	}

	deadline := d.resolveTimeout(tool)
	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()
	output, execErr := d.dispatch(callCtx, tool, args)
	duration := time.Since(start)

	status := registry.StatusSuccess
	errMsg := ""
	switch {
	case execErr == nil:
	case callCtx.Err() == context.DeadlineExceeded:
		status = registry.StatusTimeout
		errMsg = execErr.Error()
	default:
		status = registry.StatusError
		errMsg = execErr.Error()
	}

	record := &registry.ToolExecution{
		ToolID:       tool.ID,
		ToolName:     tool.Name,
		Arguments:    args,
		Output:       output,
		Status:       status,
		ErrorMessage: errMsg,
		DurationMS:   duration.Milliseconds(),
		StartedAt:    start.UTC(),
	}
	if recErr := d.tools.RecordExecution(ctx, record); recErr != nil {
		logger.Warnf("tool %q executed but recording its execution failed: %v", tool.Name, recErr)
	}

	if execErr != nil {
		if status == registry.StatusTimeout {
			return nil, regerrors.NewTimeoutError(fmt.Sprintf("tool %q exceeded its %s deadline", tool.Name, deadline), execErr)
		}
		return nil, execErr
	}

	return &Result{Output: output, Status: status, DurationMS: duration.Milliseconds()}, nil
}

// resolveTimeout applies the open-question resolution recorded in
// DESIGN.md: a per-tool override wins over the configured default, but
// never exceeds the configured hard ceiling.
func (d *Dispatcher) resolveTimeout(tool *registry.Tool) time.Duration {
	ceiling := d.config.MaxCallTimeout
	if tool.TimeoutOverride > 0 {
		if tool.TimeoutOverride < ceiling {
			return tool.TimeoutOverride
		}
		return ceiling
	}
	if d.config.DefaultCallTimeout < ceiling {
		return d.config.DefaultCallTimeout
	}
	return ceiling
}

func (d *Dispatcher) dispatch(ctx context.Context, tool *registry.Tool, args map[string]any) (map[string]any, error) {
	switch tool.ImplementationType {
	case registry.PythonCallable:
		return d.python.Execute(ctx, tool, args)
	case registry.HTTPEndpoint:
		return d.http.Execute(ctx, tool, args)
	case registry.MCPServer:
		return d.mcp.Execute(ctx, tool, args)
	case registry.LLMGateway:
		return d.gateway.Execute(ctx, tool, args)
	case registry.CommandLine:
		return d.command.Execute(ctx, tool, args)
	default:
		return nil, regerrors.NewInternalError(fmt.Sprintf("unsupported implementation type %q", tool.ImplementationType), nil)
	}
}

func (d *Dispatcher) notFoundWithSuggestions(ctx context.Context, name string) error {
	base := fmt.Sprintf("tool %q not found", name)
	if d.suggester == nil {
		return regerrors.NewNotFoundError(base, nil)
	}
	resp, err := d.suggester.FindTool(ctx, retrieval.Query{Text: name, Limit: 3, UseHybrid: true})
	if err != nil || resp == nil || len(resp.Results) == 0 {
		return regerrors.NewNotFoundError(base, nil)
	}
	names := make([]string, 0, len(resp.Results))
	for _, m := range resp.Results {
		names = append(names, m.Tool.Name)
	}
	return regerrors.NewNotFoundError(fmt.Sprintf("%s; did you mean: %v", base, names), nil)
}

// validateArguments checks args against the tool's input_schema before
// dispatch (§4.6).
func validateArguments(tool *registry.Tool, args map[string]any) error {
	if tool.InputSchema == nil {
		return nil
	}
	schemaLoader := gojsonschema.NewGoLoader(tool.InputSchema)
	docLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return regerrors.NewValidationFailedError(fmt.Sprintf("validating arguments for %q", tool.Name), err)
	}
	if !result.Valid() {
		if len(result.Errors()) > 0 {
			first := result.Errors()[0]
			return regerrors.NewValidationFailedError(
				fmt.Sprintf("argument %s %s", first.Field(), first.Description()), nil)
		}
		return regerrors.NewValidationFailedError("arguments do not match input_schema", nil)
	}
	return nil
}
