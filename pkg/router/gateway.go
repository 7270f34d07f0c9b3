package router

import (
	"context"
	"encoding/json"
	"fmt"

	regerrors "github.com/toolgateway/registry/pkg/errors"
	"github.com/toolgateway/registry/pkg/llmgateway"
	"github.com/toolgateway/registry/pkg/registry"
)

// gatewayEndpointConfig is implementation_code's JSON shape for
// LLM_GATEWAY tools: {model, system_prompt?}.
type gatewayEndpointConfig struct {
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt"`
}

// GatewayClient is the subset of llmgateway.Client the executor depends on.
type GatewayClient interface {
	Complete(ctx context.Context, req llmgateway.CompletionRequest) (string, error)
}

// gatewayExecutor dispatches LLM_GATEWAY tools: the tool's arguments become
// the user message sent to the upstream chat-completions endpoint.
type gatewayExecutor struct {
	client GatewayClient
}

// NewGatewayExecutor constructs the LLM_GATEWAY executor.
func NewGatewayExecutor(client GatewayClient) *gatewayExecutor {
	return &gatewayExecutor{client: client}
}

func (g *gatewayExecutor) Execute(ctx context.Context, tool *registry.Tool, args map[string]any) (map[string]any, error) {
	var cfg gatewayEndpointConfig
	if tool.ImplementationCode != "" {
		if err := json.Unmarshal([]byte(tool.ImplementationCode), &cfg); err != nil {
			return nil, regerrors.NewBackendError(fmt.Sprintf("tool %q has invalid LLM_GATEWAY config", tool.Name), err)
		}
	}

	payload, err := json.Marshal(args)
	if err != nil {
		return nil, regerrors.NewBackendError("encoding tool arguments for the gateway", err)
	}

	messages := make([]llmgateway.Message, 0, 2)
	if cfg.SystemPrompt != "" {
		messages = append(messages, llmgateway.Message{Role: "system", Content: cfg.SystemPrompt})
	}
	messages = append(messages, llmgateway.Message{Role: "user", Content: string(payload)})

	text, err := g.client.Complete(ctx, llmgateway.CompletionRequest{Model: cfg.Model, Messages: messages})
	if err != nil {
		return nil, regerrors.NewBackendUnavailableError(fmt.Sprintf("calling the LLM gateway for tool %q", tool.Name), err)
	}

	return map[string]any{"text": text}, nil
}
