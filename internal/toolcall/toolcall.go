// Package toolcall converts the tool-call directives a primary agent emits
// into canonical domain.ToolCall records.
package toolcall

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/HuxJiang/ai-agent-platform/internal/domain"
)

// IDPrefix starts every generated tool-call id.
const IDPrefix = "call_"

// NewID returns a fresh tool-call id.
func NewID() string {
	return IDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Normalize converts raw directives into canonical tool calls, preserving
// order. Both flat {id, name, arguments} directives and the nested
// {id, function: {name, arguments}} form are accepted. Directives without a
// name or arguments are dropped.
func Normalize(raw []json.RawMessage) []domain.ToolCall {
	calls := make([]domain.ToolCall, 0, len(raw))
	for _, r := range raw {
		if call, ok := normalize(r); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

func normalize(raw json.RawMessage) (domain.ToolCall, bool) {
	if !gjson.ValidBytes(raw) {
		return domain.ToolCall{}, false
	}
	directive := gjson.ParseBytes(raw)
	if !directive.IsObject() {
		return domain.ToolCall{}, false
	}

	fn := directive
	if nested := directive.Get("function"); nested.IsObject() {
		fn = nested
	}

	name := fn.Get("name")
	if name.Type != gjson.String || strings.TrimSpace(name.String()) == "" {
		return domain.ToolCall{}, false
	}
	args, ok := arguments(fn.Get("arguments"))
	if !ok {
		return domain.ToolCall{}, false
	}

	id := ""
	if v := directive.Get("id"); v.Type == gjson.String {
		id = strings.TrimSpace(v.String())
	}
	if id == "" {
		id = NewID()
	}

	return domain.ToolCall{
		ID:   id,
		Type: domain.ToolTypeFunction,
		Function: domain.FunctionCall{
			Name:      strings.TrimSpace(name.String()),
			Arguments: args,
		},
	}, true
}

// arguments returns the serialized argument payload. Structured values are
// re-encoded as compact JSON text.
func arguments(v gjson.Result) (string, bool) {
	switch v.Type {
	case gjson.String:
		s := v.String()
		return s, s != ""
	case gjson.JSON:
		var buf bytes.Buffer
		if err := json.Compact(&buf, []byte(v.Raw)); err != nil {
			return "", false
		}
		return buf.String(), true
	case gjson.Number, gjson.True:
		return v.Raw, true
	default:
		return "", false
	}
}
