package unifiedllm

import (
	"encoding/json"
	"testing"
)

func TestMessageConstructors(t *testing.T) {
	t.Run("UserMessage", func(t *testing.T) {
		msg := UserMessage("Hello")
		if msg.Role != RoleUser {
			t.Errorf("expected role %q, got %q", RoleUser, msg.Role)
		}
		if msg.TextContent() != "Hello" {
			t.Errorf("expected text %q, got %q", "Hello", msg.TextContent())
		}
	})

	t.Run("AssistantMessage with calls", func(t *testing.T) {
		msg := AssistantMessage("Looking", ToolCall{ID: "c1", Name: "list_dir"}, ToolCall{ID: "c2", Name: "read_file"})
		if msg.Role != RoleAssistant {
			t.Errorf("expected role %q, got %q", RoleAssistant, msg.Role)
		}
		if len(msg.Content) != 3 {
			t.Fatalf("expected 3 parts, got %d", len(msg.Content))
		}
		calls := msg.ToolCalls()
		if len(calls) != 2 || calls[0].ID != "c1" || calls[1].ID != "c2" {
			t.Errorf("unexpected tool calls %+v", calls)
		}
	})

	t.Run("AssistantMessage without text", func(t *testing.T) {
		msg := AssistantMessage("", ToolCall{ID: "c1", Name: "list_dir"})
		if len(msg.Content) != 1 || msg.Content[0].Kind != ContentToolCall {
			t.Errorf("expected a single tool call part, got %+v", msg.Content)
		}
	})

	t.Run("ToolResultMessage", func(t *testing.T) {
		msg := ToolResultMessage(ToolResult{CallID: "call_123", Name: "weather", Status: ToolStatusOK, Payload: "72F"})
		if msg.Role != RoleTool {
			t.Errorf("expected role %q, got %q", RoleTool, msg.Role)
		}
		results := msg.ToolResults()
		if len(results) != 1 || results[0].CallID != "call_123" {
			t.Fatalf("unexpected results %+v", results)
		}
	})
}

func TestToolResultPayloadString(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		want    string
	}{
		{"nil", nil, ""},
		{"string", "plain", "plain"},
		{"bytes", []byte("raw"), "raw"},
		{"slice", []string{"a", "b"}, `["a","b"]`},
		{"map", map[string]int{"n": 1}, `{"n":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToolResult{Payload: tt.payload}.PayloadString()
			if got != tt.want {
				t.Errorf("PayloadString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToolResultEnvelope(t *testing.T) {
	ok := ToolResult{Status: ToolStatusOK, Payload: []string{"a.txt"}}
	env := ok.Envelope()
	list, isList := env["result"].([]any)
	if !isList || len(list) != 1 || list[0] != "a.txt" {
		t.Errorf("expected normalized result list, got %#v", env)
	}

	failed := ToolResult{Status: ToolStatusError, Payload: "no such file"}
	if got := failed.EnvelopeJSON(); got != `{"error":"no such file"}` {
		t.Errorf("unexpected error envelope %s", got)
	}
}

func TestMessageCloneIsDeep(t *testing.T) {
	orig := AssistantMessage("", ToolCall{ID: "c1", Name: "t", Arguments: map[string]any{"path": "/tmp"}})
	clone := orig.Clone()
	clone.Content[0].ToolCall.Arguments["path"] = "/etc"
	clone.Content[0].ToolCall.ID = "changed"

	if orig.Content[0].ToolCall.Arguments["path"] != "/tmp" {
		t.Error("clone shares argument map with original")
	}
	if orig.Content[0].ToolCall.ID != "c1" {
		t.Error("clone shares tool call with original")
	}
}

func TestUsageAdd(t *testing.T) {
	a := Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30}
	b := Usage{InputTokens: 5, OutputTokens: 15, TotalTokens: 20}
	c := a.Add(b)
	if c.InputTokens != 15 || c.OutputTokens != 35 || c.TotalTokens != 50 {
		t.Errorf("unexpected sum %+v", c)
	}
}

func TestResponseAccessors(t *testing.T) {
	resp := Response{
		Message: AssistantMessage("Checking.", ToolCall{ID: "call_1", Name: "list_dir", Arguments: map[string]any{"path": "/tmp"}}),
	}
	if resp.Text() != "Checking." {
		t.Errorf("expected text %q, got %q", "Checking.", resp.Text())
	}
	calls := resp.ToolCalls()
	if len(calls) != 1 || calls[0].Name != "list_dir" {
		t.Fatalf("unexpected calls %+v", calls)
	}
}

func TestDecodeArguments(t *testing.T) {
	args, err := decodeArguments(`{"path": "/tmp", "depth": 2}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if args["path"] != "/tmp" || args["depth"] != float64(2) {
		t.Errorf("unexpected args %v", args)
	}

	for _, empty := range []string{"", "  ", "null"} {
		args, err := decodeArguments(empty)
		if err != nil || args == nil || len(args) != 0 {
			t.Errorf("decodeArguments(%q) = %v, %v; want empty map", empty, args, err)
		}
	}

	if _, err := decodeArguments(`["not", "an", "object"]`); err == nil {
		t.Error("expected error for array arguments")
	}
}

func TestEncodeArgumentsPrefersRaw(t *testing.T) {
	call := ToolCall{Arguments: map[string]any{"a": 1}, RawArguments: `{"a":1}`}
	if got := encodeArguments(call); got != `{"a":1}` {
		t.Errorf("expected raw arguments, got %s", got)
	}
	call.RawArguments = ""
	var round map[string]any
	if err := json.Unmarshal([]byte(encodeArguments(call)), &round); err != nil || round["a"] != float64(1) {
		t.Errorf("unexpected encoding %v %v", round, err)
	}
	if got := encodeArguments(ToolCall{}); got != "{}" {
		t.Errorf("expected {} for nil arguments, got %s", got)
	}
}

func TestToolCallArgumentMap(t *testing.T) {
	args, err := ToolCall{Arguments: map[string]any{"path": "/tmp"}}.ArgumentMap()
	if err != nil || args["path"] != "/tmp" {
		t.Errorf("expected decoded arguments to pass through, got %v %v", args, err)
	}
	args, err = ToolCall{RawArguments: `{"path":"/var"}`}.ArgumentMap()
	if err != nil || args["path"] != "/var" {
		t.Errorf("expected raw arguments to be parsed, got %v %v", args, err)
	}
	args, err = ToolCall{}.ArgumentMap()
	if err != nil || len(args) != 0 || args == nil {
		t.Errorf("expected empty map for missing arguments, got %v %v", args, err)
	}
	if _, err := (ToolCall{RawArguments: `["a"]`}).ArgumentMap(); err == nil {
		t.Error("expected an error for non-object arguments")
	}
}
