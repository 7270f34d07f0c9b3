package router

import (
	"context"
	"fmt"
	"strings"

	regerrors "github.com/toolgateway/registry/pkg/errors"
	"github.com/toolgateway/registry/pkg/registry"
)

// PythonFunc is a registered callable, keyed by its dotted module path
// (e.g. "calc.arithmetic.add"). §9's redesign flag replaces arbitrary
// dynamic lookup with this explicit registration table.
type PythonFunc func(ctx context.Context, args map[string]any) (map[string]any, error)

// pythonExecutor dispatches PYTHON_CALLABLE tools against a table of
// functions registered at startup, gated by an allow/deny prefix check.
type pythonExecutor struct {
	enabled       bool
	funcs         map[string]PythonFunc
	allowPrefixes []string
	denyPrefixes  []string
}

// NewPythonExecutor constructs the PYTHON_CALLABLE executor. funcs maps a
// tool's implementation_code (its dotted module path) to the Go function
// that implements it — there is no actual Python runtime here, only the
// registration-table contract the spec describes.
func NewPythonExecutor(enabled bool, funcs map[string]PythonFunc, allowPrefixes, denyPrefixes []string) *pythonExecutor {
	return &pythonExecutor{enabled: enabled, funcs: funcs, allowPrefixes: allowPrefixes, denyPrefixes: denyPrefixes}
}

// Execute looks up tool.ImplementationCode in the registration table after
// checking it against the deny-list (checked first) and the allow-list.
func (p *pythonExecutor) Execute(ctx context.Context, tool *registry.Tool, args map[string]any) (map[string]any, error) {
	if !p.enabled {
		return nil, regerrors.NewExecutorDisabledError("the python executor is disabled", nil)
	}

	modulePath := tool.ImplementationCode
	if hasPrefix(modulePath, p.denyPrefixes) {
		return nil, regerrors.NewExecutorDisabledError(fmt.Sprintf("module %q is on the deny-list", modulePath), nil)
	}
	if len(p.allowPrefixes) > 0 && !hasPrefix(modulePath, p.allowPrefixes) {
		return nil, regerrors.NewExecutorDisabledError(fmt.Sprintf("module %q is not in the allow-list", modulePath), nil)
	}

	fn, ok := p.funcs[modulePath]
	if !ok {
		return nil, regerrors.NewExecutorDisabledError(fmt.Sprintf("module %q is not registered", modulePath), nil)
	}

	return fn(ctx, args)
}

func hasPrefix(modulePath string, prefixes []string) bool {
	root := modulePath
	if i := strings.IndexByte(modulePath, '.'); i >= 0 {
		root = modulePath[:i]
	}
	for _, p := range prefixes {
		if root == p || strings.HasPrefix(modulePath, p+".") {
			return true
		}
	}
	return false
}
