package mcpclient

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/HuxJiang/ai-agent-platform/internal/domain"
	"github.com/HuxJiang/ai-agent-platform/internal/logging"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func newToolServer() *server.MCPServer {
	s := server.NewMCPServer("test-subagent", "1.0.0", server.WithToolCapabilities(false))

	s.AddTool(
		mcp.NewTool("search",
			mcp.WithDescription("Search for things"),
			mcp.WithString("q", mcp.Required(), mcp.Description("query")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			q, err := req.RequireString("q")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText("result for " + q), nil
		},
	)

	s.AddTool(
		mcp.NewTool("chat", mcp.WithDescription("Talk to the model")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			res := mcp.NewToolResultText("let me look that up")
			res.Meta = mcp.NewMetaFromMap(map[string]any{
				"tool_calls": []any{
					map[string]any{"id": "call_1", "name": "search", "arguments": `{"q":"x"}`},
				},
			})
			return res, nil
		},
	)
	return s
}

func newStreamableServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := server.NewTestStreamableHTTPServer(newToolServer())
	t.Cleanup(ts.Close)
	return ts
}

func dialTest(t *testing.T, ep domain.Endpoint) Session {
	t.Helper()
	d := NewDialer(silentLog(), WithCallTimeout(5*time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sess, err := d.Dial(ctx, ep)
	require.NoError(t, err)
	t.Cleanup(sess.Close)
	return sess
}

func TestDialStreamableHTTP(t *testing.T) {
	ts := newStreamableServer(t)
	sess := dialTest(t, domain.Endpoint{URL: ts.URL + "/mcp", Transport: domain.TransportStreamHTTP})
	ctx := context.Background()

	tools, err := sess.ListTools(ctx)
	require.NoError(t, err)

	var names []string
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"search", "chat"}, names)

	for _, tool := range tools {
		if tool.Name == "search" {
			assert.Equal(t, "Search for things", tool.Description)
			assert.Equal(t, "string", gjson.GetBytes(tool.InputSchema, "properties.q.type").String())
			assert.Equal(t, "q", gjson.GetBytes(tool.InputSchema, "required.0").String())
		}
	}

	res, err := sess.CallTool(ctx, "search", map[string]any{"q": "x"})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "result for x", res.Text())
}

func TestCallToolReadsReservedMetaToolCalls(t *testing.T) {
	ts := newStreamableServer(t)
	sess := dialTest(t, domain.Endpoint{URL: ts.URL + "/mcp"})

	res, err := sess.CallTool(context.Background(), "chat", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "let me look that up", res.Text())
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "search", gjson.GetBytes(res.ToolCalls[0], "name").String())
	assert.Equal(t, `{"q":"x"}`, gjson.GetBytes(res.ToolCalls[0], "arguments").String())
}

func TestCallToolErrorResult(t *testing.T) {
	ts := newStreamableServer(t)
	sess := dialTest(t, domain.Endpoint{URL: ts.URL + "/mcp"})

	res, err := sess.CallTool(context.Background(), "search", map[string]any{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestCallUnknownTool(t *testing.T) {
	ts := newStreamableServer(t)
	sess := dialTest(t, domain.Endpoint{URL: ts.URL + "/mcp"})

	_, err := sess.CallTool(context.Background(), "nope", nil)
	assert.Error(t, err)
}

func TestDialSSE(t *testing.T) {
	ts := server.NewTestServer(newToolServer())
	t.Cleanup(ts.Close)

	sess := dialTest(t, domain.Endpoint{URL: ts.URL + "/sse", Transport: domain.TransportSSE})

	tools, err := sess.ListTools(context.Background())
	require.NoError(t, err)
	assert.Len(t, tools, 2)

	res, err := sess.CallTool(context.Background(), "search", map[string]any{"q": "sse"})
	require.NoError(t, err)
	assert.Equal(t, "result for sse", res.Text())
}

func TestDialFailures(t *testing.T) {
	d := NewDialer(silentLog(), WithCallTimeout(2*time.Second))

	tests := []struct {
		name string
		ep   domain.Endpoint
	}{
		{"unreachable", domain.Endpoint{URL: "http://127.0.0.1:1/mcp"}},
		{"unsupported transport", domain.Endpoint{URL: "http://127.0.0.1:1/mcp", Transport: "grpc"}},
		{"unreachable sse", domain.Endpoint{URL: "http://127.0.0.1:1/sse", Transport: domain.TransportSSE}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := d.Dial(context.Background(), tt.ep)
			require.Error(t, err)
			assert.Nil(t, sess)
			assert.ErrorIs(t, err, ErrConnect)
			assert.Contains(t, err.Error(), tt.ep.URL)
		})
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	ts := newStreamableServer(t)
	d := NewDialer(silentLog())
	sess, err := d.Dial(context.Background(), domain.Endpoint{URL: ts.URL + "/mcp"})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		sess.Close()
		sess.Close()
	})
}
