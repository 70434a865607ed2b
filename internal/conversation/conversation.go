// Package conversation holds the ordered message log of one agent call.
package conversation

import (
	"errors"
	"fmt"

	"github.com/HuxJiang/ai-agent-platform/internal/domain"
)

var (
	// ErrOrphanToolReply is returned when a tool message does not answer a
	// call of the latest assistant message.
	ErrOrphanToolReply = errors.New("tool reply does not match a pending tool call")
	// ErrDuplicateToolReply is returned when a tool call is answered twice.
	ErrDuplicateToolReply = errors.New("tool call already answered")
)

// Conversation is an append-only message log. A tool message is accepted
// only when it answers a tool call of the most recent assistant message and
// no later assistant message exists.
type Conversation struct {
	msgs          []domain.Message
	lastAssistant int
	answered      map[string]bool
}

// New returns a conversation seeded with the caller's turns. Seed messages
// are taken as given.
func New(seed []domain.Message) *Conversation {
	c := &Conversation{
		msgs:          make([]domain.Message, 0, len(seed)+8),
		lastAssistant: -1,
		answered:      make(map[string]bool),
	}
	for _, m := range seed {
		c.msgs = append(c.msgs, m.Clone())
		if m.Role == domain.RoleAssistant {
			c.markAssistant()
		}
	}
	return c
}

func (c *Conversation) markAssistant() {
	c.lastAssistant = len(c.msgs) - 1
	clear(c.answered)
}

// Append adds msg, enforcing the tool reply ordering.
func (c *Conversation) Append(msg domain.Message) error {
	if msg.Role == domain.RoleTool {
		if c.lastAssistant < 0 || msg.ToolCallID == "" || !c.msgs[c.lastAssistant].HasToolCall(msg.ToolCallID) {
			return fmt.Errorf("%w: %q", ErrOrphanToolReply, msg.ToolCallID)
		}
		if c.answered[msg.ToolCallID] {
			return fmt.Errorf("%w: %q", ErrDuplicateToolReply, msg.ToolCallID)
		}
		c.answered[msg.ToolCallID] = true
	}

	c.msgs = append(c.msgs, msg.Clone())
	if msg.Role == domain.RoleAssistant {
		c.markAssistant()
	}
	return nil
}

// AppendAssistant records a primary agent reply and returns the stored message.
func (c *Conversation) AppendAssistant(content string, calls []domain.ToolCall) domain.Message {
	msg := domain.Message{Role: domain.RoleAssistant, Content: content}
	if len(calls) > 0 {
		msg.ToolCalls = calls
	}
	// assistant messages are always accepted
	_ = c.Append(msg)
	return msg
}

// AppendToolReply records the result of call.
func (c *Conversation) AppendToolReply(call domain.ToolCall, content string) error {
	return c.Append(domain.Message{
		Role:       domain.RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		Name:       call.Name(),
		To:         string(domain.RoleAssistant),
	})
}

// Pending returns the ids of tool calls in the latest assistant message that
// have no reply yet, in call order.
func (c *Conversation) Pending() []string {
	if c.lastAssistant < 0 {
		return nil
	}
	var ids []string
	for _, call := range c.msgs[c.lastAssistant].ToolCalls {
		if !c.answered[call.ID] {
			ids = append(ids, call.ID)
		}
	}
	return ids
}

// Messages returns a copy of the log.
func (c *Conversation) Messages() []domain.Message {
	out := make([]domain.Message, len(c.msgs))
	for i, m := range c.msgs {
		out[i] = m.Clone()
	}
	return out
}

// Last returns the most recent message.
func (c *Conversation) Last() (domain.Message, bool) {
	if len(c.msgs) == 0 {
		return domain.Message{}, false
	}
	return c.msgs[len(c.msgs)-1].Clone(), true
}

// Len returns the number of messages.
func (c *Conversation) Len() int { return len(c.msgs) }
