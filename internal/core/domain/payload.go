package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleFunction  Role = "function"
	RoleDeveloper Role = "developer"
)

// Message is one conversational turn in a request payload.
//
// Role is empty when the role key is missing, empty or not a string; such a
// raw role value is kept in Extra so it survives a round trip. Content is nil when the
// content key is absent. Extra carries every other key (name, tool_call_id,
// tool_calls, ...).
//
// A messages element that is not a JSON object is kept verbatim in Opaque and
// IsRecord reports false for it.
type Message struct {
	Role    Role
	Content any
	Extra   map[string]any
	Opaque  any

	hasContent bool
	opaque     bool
}

// NewMessage creates a structured message with the given role and content.
func NewMessage(role Role, content any) *Message {
	return &Message{Role: role, Content: content, hasContent: true}
}

// NewOpaqueMessage wraps a messages element that is not a structured record.
func NewOpaqueMessage(v any) *Message {
	return &Message{Opaque: v, opaque: true}
}

// IsRecord reports whether the message was a structured record.
func (m *Message) IsRecord() bool {
	return m != nil && !m.opaque
}

// HasContent reports whether the content key is present.
func (m *Message) HasContent() bool {
	return m.hasContent
}

// SetContent assigns content and marks the key as present.
func (m *Message) SetContent(content any) {
	m.Content = content
	m.hasContent = true
}

// Has reports whether the message carries the named key.
func (m *Message) Has(field string) bool {
	if !m.IsRecord() {
		return false
	}
	switch field {
	case "role":
		_, nonString := m.Extra["role"]
		return m.Role != "" || nonString
	case "content":
		return m.hasContent
	}
	_, ok := m.Extra[field]
	return ok
}

// Delete removes an extension field. It reports whether the field existed.
func (m *Message) Delete(field string) bool {
	if !m.IsRecord() || field == "role" || field == "content" {
		return false
	}
	if _, ok := m.Extra[field]; !ok {
		return false
	}
	delete(m.Extra, field)
	return true
}

// Fields returns the message as a flat key/value map.
func (m *Message) Fields() map[string]any {
	out := make(map[string]any, len(m.Extra)+2)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.Role != "" {
		out["role"] = string(m.Role)
	}
	if m.hasContent {
		out["content"] = m.Content
	}
	return out
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := &Message{
		Role:       m.Role,
		Content:    deepCopy(m.Content),
		Opaque:     deepCopy(m.Opaque),
		hasContent: m.hasContent,
		opaque:     m.opaque,
	}
	if m.Extra != nil {
		c.Extra = deepCopyMap(m.Extra)
	}
	return c
}

func (m *Message) MarshalJSON() ([]byte, error) {
	if m.opaque {
		return json.Marshal(m.Opaque)
	}
	return json.Marshal(m.Fields())
}

func (m *Message) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		v, err := decodeValue(data)
		if err != nil {
			return err
		}
		*m = Message{Opaque: v, opaque: true}
		return nil
	}

	var fields map[string]any
	if err := unmarshalUseNumber(data, &fields); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	*m = Message{}
	if raw, ok := fields["role"]; ok {
		if s, isString := raw.(string); isString && s != "" {
			m.Role = Role(s)
			delete(fields, "role")
		}
	}
	if c, ok := fields["content"]; ok {
		m.Content = c
		m.hasContent = true
		delete(fields, "content")
	}
	if len(fields) > 0 {
		m.Extra = fields
	}
	return nil
}

// Payload is a request body on its way to a provider.
//
// HasMessages is true only when the messages key is present and holds an
// array. Anything else under messages stays in Params untouched, which makes
// the payload invalid for message-level stages.
type Payload struct {
	Messages    []*Message
	HasMessages bool
	Params      map[string]any
}

// NewPayload builds a payload from a model name and messages.
func NewPayload(model string, msgs ...*Message) *Payload {
	p := &Payload{Messages: msgs, HasMessages: true, Params: map[string]any{}}
	if model != "" {
		p.Params["model"] = model
	}
	return p
}

// Model returns the model parameter, or "" when it is absent or not a string.
func (p *Payload) Model() string {
	if p == nil {
		return ""
	}
	s, _ := p.Params["model"].(string)
	return s
}

// Clone returns a deep copy of the payload. Mutating the copy never affects
// the original.
func (p *Payload) Clone() *Payload {
	if p == nil {
		return nil
	}
	c := &Payload{HasMessages: p.HasMessages}
	if p.Params != nil {
		c.Params = deepCopyMap(p.Params)
	}
	if p.Messages != nil {
		c.Messages = make([]*Message, len(p.Messages))
		for i, m := range p.Messages {
			c.Messages[i] = m.Clone()
		}
	}
	return c
}

func (p *Payload) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Params)+1)
	for k, v := range p.Params {
		out[k] = v
	}
	if p.HasMessages {
		msgs := p.Messages
		if msgs == nil {
			msgs = []*Message{}
		}
		out["messages"] = msgs
	}
	return json.Marshal(out)
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	*p = Payload{Params: make(map[string]any, len(top))}
	for k, raw := range top {
		if k == "messages" {
			trimmed := bytes.TrimSpace(raw)
			if len(trimmed) > 0 && trimmed[0] == '[' {
				if err := json.Unmarshal(trimmed, &p.Messages); err != nil {
					return err
				}
				if p.Messages == nil {
					p.Messages = []*Message{}
				}
				for i, m := range p.Messages {
					// encoding/json stores a null element as a nil pointer.
					if m == nil {
						p.Messages[i] = NewOpaqueMessage(nil)
					}
				}
				p.HasMessages = true
				continue
			}
		}
		v, err := decodeValue(raw)
		if err != nil {
			return fmt.Errorf("decode %s: %w", k, err)
		}
		p.Params[k] = v
	}
	return nil
}

func decodeValue(data []byte) (any, error) {
	var v any
	if err := unmarshalUseNumber(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// unmarshalUseNumber keeps numeric parameters such as seeds exact.
func unmarshalUseNumber(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	case []*Message:
		out := make([]*Message, len(t))
		for i, m := range t {
			out[i] = m.Clone()
		}
		return out
	default:
		return v
	}
}

// ContentText renders message content as plain text. Nil is "", strings are
// returned as is and arrays of text parts are concatenated. Any other shape
// cannot be flattened and yields an error.
func ContentText(content any) (string, error) {
	switch c := content.(type) {
	case nil:
		return "", nil
	case string:
		return c, nil
	case []any:
		var b strings.Builder
		for i, part := range c {
			obj, ok := part.(map[string]any)
			if !ok {
				return "", fmt.Errorf("content part %d is %T", i, part)
			}
			if t, _ := obj["type"].(string); t != "text" {
				return "", fmt.Errorf("content part %d has type %v", i, obj["type"])
			}
			text, _ := obj["text"].(string)
			b.WriteString(text)
		}
		return b.String(), nil
	default:
		return "", fmt.Errorf("unsupported content type %T", content)
	}
}
