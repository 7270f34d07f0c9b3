package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sync/errgroup"

	regerrors "github.com/toolgateway/registry/pkg/errors"
	"github.com/toolgateway/registry/pkg/registry"
)

// commandEndpointConfig is implementation_code's JSON shape for
// COMMAND_LINE tools: {command, working_dir?, allowed_commands, env?}.
type commandEndpointConfig struct {
	Command         string            `json:"command"`
	WorkingDir      string            `json:"working_dir"`
	AllowedCommands []string          `json:"allowed_commands"`
	Env             map[string]string `json:"env"`
}

var shellMetacharacters = []string{";", "&", "|", "$", "`", ">", "<", "(", ")", "\n", "\""}

// commandExecutor dispatches COMMAND_LINE tools as child processes, capped
// by a worker-pool semaphore so a slow tool can't exhaust the process table
// (§9 redesign flag: no blocking subprocess call inside the scheduler).
type commandExecutor struct {
	sem chan struct{}
}

// NewCommandExecutor constructs the COMMAND_LINE executor with the given
// worker-pool capacity.
func NewCommandExecutor(workerPoolSize int) *commandExecutor {
	if workerPoolSize <= 0 {
		workerPoolSize = 1
	}
	return &commandExecutor{sem: make(chan struct{}, workerPoolSize)}
}

func (c *commandExecutor) Execute(ctx context.Context, tool *registry.Tool, args map[string]any) (map[string]any, error) {
	var cfg commandEndpointConfig
	if err := json.Unmarshal([]byte(tool.ImplementationCode), &cfg); err != nil {
		return nil, regerrors.NewBackendError(fmt.Sprintf("tool %q has invalid COMMAND_LINE config", tool.Name), err)
	}

	tokens := tokenizeTemplate(cfg.Command, args)
	if len(tokens) == 0 {
		return nil, regerrors.NewBackendError(fmt.Sprintf("tool %q's command template produced no tokens", tool.Name), nil)
	}
	for _, tok := range tokens[1:] {
		if containsShellMetacharacter(tok) {
			return nil, regerrors.NewValidationFailedError(
				fmt.Sprintf("argument %q contains disallowed shell metacharacters", tok), nil)
		}
	}

	executable := tokens[0]
	if !allowedCommand(executable, cfg.AllowedCommands) {
		return nil, regerrors.NewExecutorDisabledError(fmt.Sprintf("command %q is not in the allow-list", executable), nil)
	}

	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.sem }()

	group, gctx := errgroup.WithContext(ctx)
	var stdout, stderr bytes.Buffer
	group.Go(func() error {
		cmd := exec.CommandContext(gctx, executable, tokens[1:]...)
		if cfg.WorkingDir != "" {
			cmd.Dir = cfg.WorkingDir
		}
		if len(cfg.Env) > 0 {
			env := os.Environ()
			for k, v := range cfg.Env {
				env = append(env, k+"="+v)
			}
			cmd.Env = env
		}
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		return cmd.Run()
	})

	if err := group.Wait(); err != nil {
		return nil, regerrors.NewBackendError(
			fmt.Sprintf("command %q failed: %s", executable, strings.TrimSpace(stderr.String())), err)
	}

	return map[string]any{"stdout": stdout.String(), "stderr": stderr.String()}, nil
}

// tokenizeTemplate substitutes "{key}" placeholders with each argument's
// string value, then splits on whitespace — no shell is ever invoked, so
// there is no quoting to get wrong.
func tokenizeTemplate(template string, args map[string]any) []string {
	rendered := template
	for k, v := range args {
		rendered = strings.ReplaceAll(rendered, "{"+k+"}", fmt.Sprintf("%v", v))
	}
	return strings.Fields(rendered)
}

func containsShellMetacharacter(token string) bool {
	for _, m := range shellMetacharacters {
		if strings.Contains(token, m) {
			return true
		}
	}
	return false
}

func allowedCommand(executable string, allowed []string) bool {
	for _, a := range allowed {
		if a == executable {
			return true
		}
	}
	return false
}
