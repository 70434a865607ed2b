// Package domain holds the types shared by the orchestrator, its collaborators
// and the HTTP surface.
package domain

// Role classifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// Sentinel contents substituted into the conversation.
const (
	EmptyContent    = "[empty]"
	ToolCallFailed  = "[tool call failed]"
	ToolCallErrored = "[tool call error]"
)

// ToolTypeFunction is the only tool-call type the primary agent emits.
const ToolTypeFunction = "function"

// Message is a single turn in a conversation.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	To         string     `json:"to,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a canonical request from the primary agent to run a named tool.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the tool and carries its serialized arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Name returns the tool name of the call.
func (c ToolCall) Name() string { return c.Function.Name }

// Arguments returns the serialized argument payload of the call.
func (c ToolCall) Arguments() string { return c.Function.Arguments }

// HasToolCall reports whether the message requested a call with the given id.
func (m Message) HasToolCall(id string) bool {
	for _, c := range m.ToolCalls {
		if c.ID == id {
			return true
		}
	}
	return false
}

// Clone returns a copy of the message that shares no slices with the original.
func (m Message) Clone() Message {
	out := m
	if len(m.ToolCalls) > 0 {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		copy(out.ToolCalls, m.ToolCalls)
	}
	return out
}
