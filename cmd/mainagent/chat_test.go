package main

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/HuxJiang/ai-agent-platform/internal/config"
	"github.com/HuxJiang/ai-agent-platform/internal/domain"
	"github.com/HuxJiang/ai-agent-platform/internal/llm"
	"github.com/HuxJiang/ai-agent-platform/internal/logging"
	"github.com/HuxJiang/ai-agent-platform/internal/mcpclient"
	"github.com/HuxJiang/ai-agent-platform/internal/orchestrator"
	"github.com/HuxJiang/ai-agent-platform/internal/store"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func serveChat(t *testing.T, client llm.Client) *httptest.Server {
	t.Helper()
	ts := server.NewTestStreamableHTTPServer(newServer(&chatAgent{llm: client, system: "be helpful", log: silentLog()}))
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, url string) mcpclient.Session {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	sess, err := mcpclient.NewDialer(silentLog(), mcpclient.WithCallTimeout(5*time.Second)).
		Dial(ctx, domain.Endpoint{URL: url, Transport: domain.TransportStreamHTTP})
	require.NoError(t, err)
	t.Cleanup(sess.Close)
	return sess
}

func TestChatReturnsToolCallsInMeta(t *testing.T) {
	mock := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{
				Content: "looking it up",
				ToolCalls: []domain.ToolCall{{
					ID:       "call_1",
					Type:     domain.ToolTypeFunction,
					Function: domain.FunctionCall{Name: "search", Arguments: `{"q":"go"}`},
				}},
			}, nil
		},
	}
	sess := dial(t, serveChat(t, mock).URL+"/mcp")

	tools, err := sess.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, chatToolName, tools[0].Name)

	res, err := sess.CallTool(context.Background(), chatToolName, map[string]any{
		"messages":   []map[string]any{{"role": "user", "content": "find go"}},
		"tools":      []map[string]any{{"type": "function", "function": map[string]any{"name": "search", "parameters": map[string]any{"type": "object"}}}},
		"toolChoice": "auto",
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "looking it up", res.Text())
	require.Len(t, res.ToolCalls, 1)
	call := gjson.ParseBytes(res.ToolCalls[0])
	assert.Equal(t, "call_1", call.Get("id").String())
	assert.Equal(t, "search", call.Get("name").String())
	assert.Equal(t, `{"q":"go"}`, call.Get("arguments").String())

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "be helpful", reqs[0].System)
	assert.Equal(t, "auto", reqs[0].ToolChoice)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "search", reqs[0].Tools[0].Function.Name)
	assert.Equal(t, []domain.Message{{Role: domain.RoleUser, Content: "find go"}}, reqs[0].Messages)
}

func TestChatPlainReplyHasNoMeta(t *testing.T) {
	sess := dial(t, serveChat(t, &llm.MockClient{ProviderName: "mock"}).URL+"/mcp")

	res, err := sess.CallTool(context.Background(), chatToolName, map[string]any{
		"messages": []map[string]any{{"role": "user", "content": "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "mock response", res.Text())
	assert.Empty(t, res.ToolCalls)
}

func TestChatErrors(t *testing.T) {
	failing := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, &llm.ProviderError{Provider: "mock", Message: "quota exceeded", Code: 429}
		},
	}

	tests := []struct {
		name   string
		client llm.Client
		args   map[string]any
		want   string
	}{
		{"no messages", &llm.MockClient{}, map[string]any{"messages": []any{}}, "messages must be a non-empty array"},
		{"bad messages", &llm.MockClient{}, map[string]any{"messages": "hello"}, "invalid arguments"},
		{"provider failure", failing, map[string]any{"messages": []map[string]any{{"role": "user", "content": "hi"}}}, "completion failed: mock: 429 quota exceeded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := dial(t, serveChat(t, tt.client).URL+"/mcp")
			res, err := sess.CallTool(context.Background(), chatToolName, tt.args)
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Contains(t, res.Text(), tt.want)
		})
	}
}

// TestOrchestratedCall runs a full agent call over real MCP sessions: the
// chat tool requests one echo call from the sub-agent, then answers.
func TestOrchestratedCall(t *testing.T) {
	mock := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			last := req.Messages[len(req.Messages)-1]
			if last.Role == domain.RoleTool {
				return &llm.CompletionResponse{Content: "the sub-agent said: " + last.Content}, nil
			}
			return &llm.CompletionResponse{ToolCalls: []domain.ToolCall{{
				ID:       "call_echo",
				Type:     domain.ToolTypeFunction,
				Function: domain.FunctionCall{Name: "echo", Arguments: `{"text":"hi"}`},
			}}}, nil
		},
	}
	primary := serveChat(t, mock)

	sub := server.NewMCPServer("sub", "1.0.0", server.WithToolCapabilities(false))
	sub.AddTool(mcp.NewTool("echo",
		mcp.WithDescription("Echo text back"),
		mcp.WithString("text", mcp.Required()),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("echo " + req.GetString("text", "")), nil
	})
	subTS := server.NewTestStreamableHTTPServer(sub)
	t.Cleanup(subTS.Close)

	log := silentLog()
	db, err := store.OpenSQLite(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	agent, err := db.CreateAgent(context.Background(), domain.Agent{Name: "echoer", URL: subTS.URL + "/mcp"}, 1)
	require.NoError(t, err)

	svc := orchestrator.NewService(
		config.PrimaryAgentConfig{URL: primary.URL + "/mcp"},
		config.OrchestratorConfig{Timeout: 30 * time.Second},
		db,
		mcpclient.NewDialer(log, mcpclient.WithCallTimeout(5*time.Second)),
		log,
	)

	resp, err := svc.Call(context.Background(), orchestrator.CallRequest{
		AgentID:  agent.ID,
		UserID:   1,
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "say hi"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, domain.RoleAssistant, resp.Messages[0].Role)
	assert.Equal(t, "the sub-agent said: echo hi", resp.Messages[0].Content)

	reqs := mock.Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "echo", reqs[0].Tools[0].Function.Name)
	assert.Equal(t, "auto", reqs[0].ToolChoice)

	second := reqs[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, domain.RoleAssistant, second[1].Role)
	assert.True(t, second[1].HasToolCall("call_echo"))
	assert.Equal(t, domain.RoleTool, second[2].Role)
	assert.Equal(t, "call_echo", second[2].ToolCallID)
}

func TestOrchestratedCallUnauthorizedUser(t *testing.T) {
	primary := serveChat(t, &llm.MockClient{})
	log := silentLog()
	db, err := store.OpenSQLite(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	agent, err := db.CreateAgent(context.Background(), domain.Agent{Name: "private"}, 1)
	require.NoError(t, err)

	svc := orchestrator.NewService(config.PrimaryAgentConfig{URL: primary.URL + "/mcp"}, config.OrchestratorConfig{},
		db, mcpclient.NewDialer(log), log)

	_, err = svc.Call(context.Background(), orchestrator.CallRequest{
		AgentID:  agent.ID,
		UserID:   2,
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	var authErr *orchestrator.AuthorizationError
	assert.True(t, errors.As(err, &authErr))
}
