package orchestrator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/HuxJiang/ai-agent-platform/internal/domain"
)

// Limits on caller-supplied conversations.
const (
	MaxMessages      = 100
	MaxRoleLength    = 32
	MaxContentLength = 65535
)

// CallRequest asks the orchestrator to run a conversation against an agent.
type CallRequest struct {
	AgentID  int64            `json:"agentId"`
	UserID   int64            `json:"userId"`
	Messages []domain.Message `json:"messages"`
}

// CallResponse carries the final message of the conversation.
type CallResponse struct {
	Messages []domain.Message `json:"messages"`
}

// Validate checks the request and returns a copy whose messages carry only a
// trimmed role and content.
func (r CallRequest) Validate() (CallRequest, error) {
	if r.AgentID <= 0 {
		return CallRequest{}, positiveInteger("agentId")
	}
	if r.UserID <= 0 {
		return CallRequest{}, positiveInteger("userId")
	}
	if err := checkCount(len(r.Messages)); err != nil {
		return CallRequest{}, err
	}

	out := CallRequest{
		AgentID:  r.AgentID,
		UserID:   r.UserID,
		Messages: make([]domain.Message, len(r.Messages)),
	}
	for i, m := range r.Messages {
		msg, err := checkMessage(i, string(m.Role), m.Content)
		if err != nil {
			return CallRequest{}, err
		}
		out.Messages[i] = msg
	}
	return out, nil
}

// ParseCallRequest decodes and validates a JSON request body. Unlike a plain
// json.Unmarshal it reports wrongly typed fields as validation errors.
func ParseCallRequest(body []byte) (CallRequest, error) {
	if !gjson.ValidBytes(body) {
		return CallRequest{}, &ValidationError{Message: "Invalid payload"}
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return CallRequest{}, &ValidationError{Message: "Invalid payload"}
	}

	agentID, ok := integer(root.Get("agentId"))
	if !ok {
		return CallRequest{}, positiveInteger("agentId")
	}
	userID, ok := integer(root.Get("userId"))
	if !ok {
		return CallRequest{}, positiveInteger("userId")
	}

	msgs := root.Get("messages")
	if !msgs.IsArray() {
		return CallRequest{}, &ValidationError{Field: "messages", Message: "messages must be a non-empty array"}
	}
	items := msgs.Array()
	req := CallRequest{
		AgentID:  agentID,
		UserID:   userID,
		Messages: make([]domain.Message, 0, len(items)),
	}
	for i, item := range items {
		role, content := item.Get("role"), item.Get("content")
		if !item.IsObject() || role.Type != gjson.String || content.Type != gjson.String {
			return CallRequest{}, invalidMessage(i)
		}
		req.Messages = append(req.Messages, domain.Message{
			Role:    domain.Role(role.Str),
			Content: content.Str,
		})
	}
	return req.Validate()
}

// integer accepts a JSON number holding a positive whole value.
func integer(v gjson.Result) (int64, bool) {
	if v.Type != gjson.Number {
		return 0, false
	}
	n := v.Int()
	if n <= 0 || float64(n) != v.Num {
		return 0, false
	}
	return n, true
}

func checkCount(n int) error {
	if n == 0 {
		return &ValidationError{Field: "messages", Message: "messages must be a non-empty array"}
	}
	if n > MaxMessages {
		return &ValidationError{
			Field:   "messages",
			Message: fmt.Sprintf("messages must contain at most %d items", MaxMessages),
		}
	}
	return nil
}

// checkMessage applies the length limits to the untrimmed values and the
// blank check to the trimmed ones.
func checkMessage(i int, role, content string) (domain.Message, error) {
	if utf8.RuneCountInString(role) > MaxRoleLength || utf8.RuneCountInString(content) > MaxContentLength {
		return domain.Message{}, invalidMessage(i)
	}
	role, content = strings.TrimSpace(role), strings.TrimSpace(content)
	if role == "" || content == "" {
		return domain.Message{}, invalidMessage(i)
	}
	return domain.Message{Role: domain.Role(role), Content: content}, nil
}

func positiveInteger(field string) error {
	return &ValidationError{Field: field, Message: field + " must be a positive integer"}
}

func invalidMessage(i int) error {
	return &ValidationError{Field: "messages", Message: fmt.Sprintf("Invalid message at index %d", i)}
}
