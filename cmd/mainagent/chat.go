package main

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	openai "github.com/sashabaranov/go-openai"

	"github.com/HuxJiang/ai-agent-platform/internal/domain"
	"github.com/HuxJiang/ai-agent-platform/internal/llm"
	"github.com/HuxJiang/ai-agent-platform/internal/logging"
	"github.com/HuxJiang/ai-agent-platform/internal/version"
)

const chatToolName = "chat"

var errNoMessages = errors.New("messages must be a non-empty array")

// chatArgs is the argument object the orchestrator sends to the chat tool.
type chatArgs struct {
	Messages   []domain.Message `json:"messages"`
	Tools      []openai.Tool    `json:"tools,omitempty"`
	ToolChoice string           `json:"toolChoice,omitempty"`
}

// toolCallDirective is the flat directive shape returned in _meta.tool_calls.
type toolCallDirective struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// chatAgent answers chat tool calls with one completion per call.
type chatAgent struct {
	llm    llm.Client
	system string
	log    *logging.Logger
}

// newServer builds the MCP server exposing the chat tool.
func newServer(a *chatAgent) *server.MCPServer {
	s := server.NewMCPServer("mainagent", version.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.AddTool(mcp.NewTool(chatToolName,
		mcp.WithDescription("Continue a conversation. Returns the assistant reply and any tool calls it requests."),
		mcp.WithArray("messages", mcp.Required(), mcp.Description("Conversation so far")),
		mcp.WithArray("tools", mcp.Description("Function-calling tool definitions")),
		mcp.WithString("toolChoice", mcp.Description("Tool choice mode"), mcp.Enum("auto", "none", "required")),
	), a.handleChat)
	return s
}

func (a *chatAgent) handleChat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args chatArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}
	if len(args.Messages) == 0 {
		return mcp.NewToolResultError(errNoMessages.Error()), nil
	}

	start := time.Now()
	resp, err := a.llm.Complete(ctx, llm.CompletionRequest{
		System:     a.system,
		Messages:   args.Messages,
		Tools:      args.Tools,
		ToolChoice: args.ToolChoice,
	})
	if err != nil {
		a.log.Error().Err(err).Str("provider", a.llm.Name()).Msg("completion failed")
		return mcp.NewToolResultErrorFromErr("completion failed", err), nil
	}

	a.log.Debug().
		Int("messages", len(args.Messages)).
		Int("tools", len(args.Tools)).
		Int("toolCalls", len(resp.ToolCalls)).
		Int("inputTokens", resp.Usage.InputTokens).
		Int("outputTokens", resp.Usage.OutputTokens).
		Dur("duration", time.Since(start)).
		Msg("chat completed")

	res := mcp.NewToolResultText(resp.Content)
	if len(resp.ToolCalls) > 0 {
		directives := make([]toolCallDirective, len(resp.ToolCalls))
		for i, tc := range resp.ToolCalls {
			directives[i] = toolCallDirective{ID: tc.ID, Name: tc.Name(), Arguments: tc.Function.Arguments}
		}
		res.Meta = mcp.NewMetaFromMap(map[string]any{"tool_calls": directives})
	}
	return res, nil
}
