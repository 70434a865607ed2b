// Package llm defines the completion client the bundled primary agent uses
// to turn a conversation and a tool catalog into the next assistant turn.
package llm

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/HuxJiang/ai-agent-platform/internal/domain"
)

// CompletionRequest is the input to a Complete call.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []domain.Message
	Tools       []openai.Tool
	ToolChoice  string
	Temperature float32
}

// CompletionResponse is the assistant turn produced by a provider.
type CompletionResponse struct {
	Content    string            `json:"content"`
	StopReason string            `json:"stopReason,omitempty"`
	ToolCalls  []domain.ToolCall `json:"toolCalls,omitempty"`
	Usage      Usage             `json:"usage"`
	Model      string            `json:"model,omitempty"`
	Duration   time.Duration     `json:"duration,omitempty"`
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Client is implemented by completion providers.
type Client interface {
	// Complete sends a request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string
}

// ProviderError is returned when a provider rejects or fails a request.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP status code, zero for transport failures
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }
