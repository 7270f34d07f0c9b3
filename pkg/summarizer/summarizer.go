// Package summarizer implements the Output Summarizer (C7): reduces large
// tool outputs via the LLM gateway, falling back to truncation when the
// gateway is unavailable or summarization is disabled.
package summarizer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/toolgateway/registry/pkg/llmgateway"
)

const truncationMarker = "[Output truncated due to length]"

const systemPrompt = "You condense tool output for an LLM agent. Preserve key data, " +
	"identifiers, and error details. Never fabricate information that is not " +
	"present in the input."

// Gateway is the subset of llmgateway.Client the summarizer depends on.
type Gateway interface {
	Complete(ctx context.Context, req llmgateway.CompletionRequest) (string, error)
}

// Config configures the summarizer.
type Config struct {
	Enabled       bool
	Model         string
	MaxInputChars int
}

// Summarizer implements summarize_if_needed (§4.7).
type Summarizer struct {
	gateway Gateway
	config  Config
}

// New constructs a Summarizer.
func New(gateway Gateway, config Config) *Summarizer {
	return &Summarizer{gateway: gateway, config: config}
}

// estimateTokens is the conservative len/4 heuristic the spec mandates.
func estimateTokens(s string) int {
	return len(s) / 4
}

// Serialize renders output to its canonical string form: JSON for
// structured values, the string itself otherwise.
func Serialize(output any) string {
	if s, ok := output.(string); ok {
		return s
	}
	b, err := json.Marshal(output)
	if err != nil {
		return fmt.Sprintf("%v", output)
	}
	return string(b)
}

// SummarizeIfNeeded serializes output, estimates its token count, and
// returns it unchanged when it already fits under maxTokens. Otherwise it
// calls the LLM gateway for a condensed version, falling back to
// truncation on any gateway failure or when summarization is disabled.
func (s *Summarizer) SummarizeIfNeeded(ctx context.Context, output any, maxTokens int, hint, toolName string) (string, bool, error) {
	serialized := Serialize(output)

	if estimateTokens(serialized) <= maxTokens {
		return serialized, false, nil
	}

	if !s.config.Enabled {
		return truncate(serialized, maxTokens), true, nil
	}

	summary, err := s.callGateway(ctx, serialized, maxTokens, hint, toolName)
	if err != nil {
		return truncate(serialized, maxTokens), true, nil
	}
	return summary, true, nil
}

func (s *Summarizer) callGateway(ctx context.Context, serialized string, maxTokens int, hint, toolName string) (string, error) {
	input := serialized
	if s.config.MaxInputChars > 0 && len(input) > s.config.MaxInputChars {
		input = input[:s.config.MaxInputChars]
	}

	summaryMaxTokens := maxTokens / 2
	if summaryMaxTokens < 500 {
		summaryMaxTokens = 500
	}

	userPrompt := buildUserPrompt(toolName, hint, input)

	return s.gateway.Complete(ctx, llmgateway.CompletionRequest{
		Model: s.config.Model,
		Messages: []llmgateway.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   summaryMaxTokens,
		Temperature: 0.1,
	})
}

func buildUserPrompt(toolName, hint, input string) string {
	prompt := ""
	if toolName != "" {
		prompt += fmt.Sprintf("Tool: %s\n", toolName)
	}
	if hint != "" {
		prompt += fmt.Sprintf("Focus: %s\n", hint)
	}
	prompt += "Output:\n" + input
	return prompt
}

func truncate(serialized string, maxTokens int) string {
	limit := maxTokens * 4
	if limit <= 0 || limit >= len(serialized) {
		return serialized + "\n" + truncationMarker
	}
	return serialized[:limit] + "\n" + truncationMarker
}
