package mcpclient

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// ParseTools extracts tool descriptors from a tools/list result and returns
// the pagination cursor, if any.
func ParseTools(raw []byte) ([]ToolDescriptor, string, error) {
	if !gjson.ValidBytes(raw) {
		return nil, "", ErrMalformedResult
	}
	res := gjson.ParseBytes(raw)

	var tools []ToolDescriptor
	list := res.Get("tools")
	if !list.IsArray() {
		return nil, res.Get("nextCursor").String(), nil
	}
	list.ForEach(func(_, t gjson.Result) bool {
		if !t.IsObject() {
			return true
		}
		desc := ToolDescriptor{
			Name:        t.Get("name").String(),
			Description: t.Get("description").String(),
		}
		schema := t.Get("inputSchema")
		if !schema.IsObject() {
			schema = t.Get("input_schema")
		}
		if schema.IsObject() {
			desc.InputSchema = json.RawMessage(schema.Raw)
		}
		tools = append(tools, desc)
		return true
	})
	return tools, res.Get("nextCursor").String(), nil
}

// ParseCallResult decodes a tools/call result. Non-standard fields such as a
// top-level metadata object are preserved alongside the reserved _meta.
func ParseCallResult(raw []byte) (*CallResult, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrMalformedResult
	}
	res := gjson.ParseBytes(raw)
	out := &CallResult{
		Raw:     append(json.RawMessage(nil), raw...),
		IsError: res.Get("isError").Bool(),
	}

	content := res.Get("content")
	switch {
	case content.IsArray():
		content.ForEach(func(_, part gjson.Result) bool {
			p := ContentPart{Type: part.Get("type").String(), Raw: json.RawMessage(part.Raw)}
			if text := part.Get("text"); text.Type == gjson.String {
				p.Text = text.String()
			} else if p.IsText() {
				p.Type = ""
			}
			out.Content = append(out.Content, p)
			return true
		})
	case content.Type == gjson.String:
		out.Content = []ContentPart{{Type: "text", Text: content.String(), Raw: json.RawMessage(content.Raw)}}
	}

	if sc := res.Get("structuredContent"); sc.Exists() && sc.Type != gjson.Null {
		out.Structured = json.RawMessage(sc.Raw)
	}

	meta := res.Get("metadata")
	if !meta.IsObject() {
		meta = res.Get("_meta")
	}
	if meta.IsObject() {
		out.Metadata = json.RawMessage(meta.Raw)
		if calls := meta.Get("tool_calls"); calls.IsArray() {
			calls.ForEach(func(_, c gjson.Result) bool {
				out.ToolCalls = append(out.ToolCalls, json.RawMessage(c.Raw))
				return true
			})
		}
	}
	return out, nil
}
