package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/HuxJiang/ai-agent-platform/internal/domain"
)

const providerOpenAI = "openai"

var errNoChoices = errors.New("no choices in completion response")

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a client for model. An empty baseURL targets the
// public OpenAI API.
func NewOpenAIClient(baseURL, apiKey, model string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (o *OpenAIClient) Name() string { return providerOpenAI }

// Complete sends a non-streaming chat completion request.
func (o *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = o.model
	}
	creq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(req.System, req.Messages),
		Temperature: req.Temperature,
	}
	if len(req.Tools) > 0 {
		creq.Tools = req.Tools
		if req.ToolChoice != "" {
			creq.ToolChoice = req.ToolChoice
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, providerError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Provider: providerOpenAI, Message: errNoChoices.Error(), Err: errNoChoices}
	}

	choice := resp.Choices[0]
	out := &CompletionResponse{
		Content:    choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Model:      resp.Model,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
		Duration: time.Since(start),
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
			ID:   tc.ID,
			Type: domain.ToolTypeFunction,
			Function: domain.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return out, nil
}

// toOpenAIMessages converts a conversation into chat completion messages,
// prefixed by the system prompt when one is set.
func toOpenAIMessages(system string, msgs []domain.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range msgs {
		cm := openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
		switch m.Role {
		case domain.RoleTool:
			cm.ToolCallID = m.ToolCallID
			cm.Name = m.Name
		case domain.RoleAssistant:
			for _, tc := range m.ToolCalls {
				cm.ToolCalls = append(cm.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
		}
		out = append(out, cm)
	}
	return out
}

func providerError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: providerOpenAI, Message: apiErr.Message, Code: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{Provider: providerOpenAI, Message: reqErr.Error(), Code: reqErr.HTTPStatusCode, Err: err}
	}
	return &ProviderError{Provider: providerOpenAI, Message: err.Error(), Err: err}
}
