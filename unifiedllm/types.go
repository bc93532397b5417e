package unifiedllm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentKind is the discriminator tag for ContentPart.
type ContentKind string

const (
	ContentText       ContentKind = "text"
	ContentToolCall   ContentKind = "tool_call"
	ContentToolResult ContentKind = "tool_result"
)

// ToolCall is a model-initiated tool invocation. ID is the correlation token
// the provider expects back on the matching ToolResult.
type ToolCall struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Arguments    map[string]any `json:"arguments"`
	RawArguments string         `json:"raw_arguments,omitempty"`
}

// ToolStatus discriminates successful and failed tool results.
type ToolStatus string

const (
	ToolStatusOK    ToolStatus = "ok"
	ToolStatusError ToolStatus = "error"
)

// ToolResult is the outcome of executing exactly one ToolCall.
type ToolResult struct {
	CallID  string     `json:"call_id"`
	Name    string     `json:"name"`
	Status  ToolStatus `json:"status"`
	Payload any        `json:"payload"`
}

// IsError reports whether the result carries a failure.
func (r ToolResult) IsError() bool {
	return r.Status == ToolStatusError
}

// PayloadString renders the payload for providers that only accept text.
// Strings pass through unchanged; everything else is JSON encoded.
func (r ToolResult) PayloadString() string {
	switch v := r.Payload.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case error:
		return v.Error()
	}
	data, err := json.Marshal(r.Payload)
	if err != nil {
		return fmt.Sprint(r.Payload)
	}
	return string(data)
}

// Envelope wraps the payload in the {"result": ...} / {"error": ...} shape
// used by providers without a native error flag.
func (r ToolResult) Envelope() map[string]any {
	if r.IsError() {
		return map[string]any{"error": r.PayloadString()}
	}
	switch v := r.Payload.(type) {
	case nil:
		return map[string]any{"result": ""}
	case string, bool, float64, int, int64, map[string]any, []any:
		return map[string]any{"result": v}
	}
	// Normalize structs and typed slices to plain JSON values.
	var generic any
	if data, err := json.Marshal(r.Payload); err == nil && json.Unmarshal(data, &generic) == nil {
		return map[string]any{"result": generic}
	}
	return map[string]any{"result": r.PayloadString()}
}

// EnvelopeJSON is Envelope encoded as a JSON string.
func (r ToolResult) EnvelopeJSON() string {
	data, err := json.Marshal(r.Envelope())
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(data)
}

// ContentPart is a tagged union representing one part of a message.
type ContentPart struct {
	Kind       ContentKind `json:"kind"`
	Text       string      `json:"text,omitempty"`
	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// TextPart creates a text ContentPart.
func TextPart(text string) ContentPart {
	return ContentPart{Kind: ContentText, Text: text}
}

// ToolCallPart creates a tool call ContentPart.
func ToolCallPart(call ToolCall) ContentPart {
	return ContentPart{Kind: ContentToolCall, ToolCall: &call}
}

// ToolResultPart creates a tool result ContentPart.
func ToolResultPart(result ToolResult) ContentPart {
	return ContentPart{Kind: ContentToolResult, ToolResult: &result}
}

// Message is the fundamental unit of conversation.
type Message struct {
	Role    Role          `json:"role"`
	Content []ContentPart `json:"content"`
}

// TextContent returns the concatenation of all text content parts.
func (m Message) TextContent() string {
	var sb strings.Builder
	for _, part := range m.Content {
		if part.Kind == ContentText {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// ToolCalls extracts all tool calls from the message content, in order.
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, part := range m.Content {
		if part.Kind == ContentToolCall && part.ToolCall != nil {
			calls = append(calls, *part.ToolCall)
		}
	}
	return calls
}

// ToolResults extracts all tool results from the message content, in order.
func (m Message) ToolResults() []ToolResult {
	var results []ToolResult
	for _, part := range m.Content {
		if part.Kind == ContentToolResult && part.ToolResult != nil {
			results = append(results, *part.ToolResult)
		}
	}
	return results
}

// Clone returns a deep copy of the message. Tool call arguments are copied
// at the top level; nested values are shared.
func (m Message) Clone() Message {
	out := Message{Role: m.Role, Content: make([]ContentPart, len(m.Content))}
	for i, part := range m.Content {
		cp := part
		if part.ToolCall != nil {
			tc := *part.ToolCall
			if tc.Arguments != nil {
				args := make(map[string]any, len(tc.Arguments))
				for k, v := range tc.Arguments {
					args[k] = v
				}
				tc.Arguments = args
			}
			cp.ToolCall = &tc
		}
		if part.ToolResult != nil {
			tr := *part.ToolResult
			cp.ToolResult = &tr
		}
		out.Content[i] = cp
	}
	return out
}

// UserMessage creates a user Message with text content.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []ContentPart{TextPart(text)}}
}

// AssistantMessage creates an assistant Message with optional text followed
// by tool call parts.
func AssistantMessage(text string, calls ...ToolCall) Message {
	msg := Message{Role: RoleAssistant}
	if text != "" {
		msg.Content = append(msg.Content, TextPart(text))
	}
	for _, call := range calls {
		msg.Content = append(msg.Content, ToolCallPart(call))
	}
	return msg
}

// ToolResultMessage creates a tool Message carrying one result.
func ToolResultMessage(result ToolResult) Message {
	return Message{Role: RoleTool, Content: []ContentPart{ToolResultPart(result)}}
}

// StopReason is the provider-independent classification of why a turn ended.
type StopReason string

const (
	StopToolUse         StopReason = "tool_use"
	StopNatural         StopReason = "natural_stop"
	StopMaxTokens       StopReason = "max_tokens"
	StopContentFiltered StopReason = "content_filtered"
	StopError           StopReason = "error"
)

// ToolDefinition is the serializable tool listing advertised to providers.
type ToolDefinition struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parameters  *Schema `json:"parameters"`
}

// Request is the input to ProviderAdapter.Complete. Messages holds the full
// conversation; providers are stateless between calls.
type Request struct {
	Model       string           `json:"model"`
	Provider    string           `json:"provider,omitempty"`
	System      string           `json:"system,omitempty"`
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	MaxTokens   *int             `json:"max_tokens,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add returns a new Usage that is the sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}

// Response is a parsed provider turn.
type Response struct {
	ID            string     `json:"id"`
	Model         string     `json:"model"`
	Provider      string     `json:"provider"`
	Message       Message    `json:"message"`
	StopReason    StopReason `json:"stop_reason"`
	RawStopReason string     `json:"raw_stop_reason,omitempty"`
	Usage         Usage      `json:"usage"`
}

// Text returns the concatenated text of the response.
func (r Response) Text() string {
	return r.Message.TextContent()
}

// ToolCalls returns the tool calls of the response in provider order.
func (r Response) ToolCalls() []ToolCall {
	return r.Message.ToolCalls()
}

// decodeArguments parses a JSON argument object. An empty string decodes to
// an empty map. Non-object payloads are reported as an error so the executor
// can surface them to the model.
func decodeArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// ArgumentMap returns the decoded arguments, parsing RawArguments when the
// adapter could not. The error names arguments that are not a JSON object.
func (c ToolCall) ArgumentMap() (map[string]any, error) {
	if c.Arguments != nil {
		return c.Arguments, nil
	}
	return decodeArguments(c.RawArguments)
}

// encodeArguments is the inverse of decodeArguments.
func encodeArguments(call ToolCall) string {
	if call.RawArguments != "" {
		return call.RawArguments
	}
	if call.Arguments == nil {
		return "{}"
	}
	data, err := json.Marshal(call.Arguments)
	if err != nil {
		return "{}"
	}
	return string(data)
}
