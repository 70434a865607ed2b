// Package mcpclient opens scoped Model Context Protocol sessions to agent
// endpoints and exposes the tool listing and tool calling operations the
// orchestrator needs.
package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/HuxJiang/ai-agent-platform/internal/domain"
)

var (
	// ErrConnect is returned by Dial when the transport or handshake fails.
	ErrConnect = errors.New("mcp connect failed")
	// ErrMalformedResult is returned when a response body is not valid JSON.
	ErrMalformedResult = errors.New("mcp result is not valid JSON")
)

// Dialer establishes sessions to MCP endpoints.
type Dialer interface {
	Dial(ctx context.Context, ep domain.Endpoint) (Session, error)
}

// Session is a connected MCP client. Close never fails; problems while
// tearing down are logged by the implementation.
type Session interface {
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	CallTool(ctx context.Context, name string, args any) (*CallResult, error)
	Close()
}

// ToolDescriptor is a tool declared by a remote endpoint. InputSchema holds
// the raw JSON schema as sent, from either inputSchema or input_schema.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// ContentPart is one element of a tool result's content list.
type ContentPart struct {
	Type string
	Text string
	Raw  json.RawMessage
}

// IsText reports whether the part carries text.
func (p ContentPart) IsText() bool { return p.Type == "text" }

// CallResult is the parsed result of a tools/call request.
type CallResult struct {
	Content    []ContentPart
	Structured json.RawMessage
	IsError    bool
	Metadata   json.RawMessage
	// ToolCalls holds follow-up tool-call directives found in the metadata,
	// unmodified.
	ToolCalls []json.RawMessage
	Raw       json.RawMessage
}

// Text joins the text parts of the result.
func (r *CallResult) Text() string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Content {
		if p.IsText() {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// RPCError is a JSON-RPC error returned by the remote endpoint.
type RPCError struct {
	Method  string
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("mcp %s: rpc error %d: %s", e.Method, e.Code, e.Message)
}
