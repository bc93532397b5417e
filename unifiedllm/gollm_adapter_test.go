package unifiedllm

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestGollmAdapterTranslateError(t *testing.T) {
	adapter := &GollmAdapter{backend: "openai", logger: slog.Default()}

	tests := []struct {
		errMsg string
		want   ErrorKind
	}{
		{"401 Unauthorized", KindAuthentication},
		{"invalid api key", KindAuthentication},
		{"403 Forbidden", KindAccessDenied},
		{"404 not found", KindNotFound},
		{"429 rate limit exceeded", KindRateLimit},
		{"context length exceeded", KindContextLength},
		{"500 internal server error", KindServer},
		{"timeout waiting for response", KindTimeout},
		{"content filter triggered", KindContentFilter},
		{"something unknown", KindProvider},
	}

	for _, tt := range tests {
		err := adapter.translateError(errors.New(tt.errMsg))
		if got := KindOf(err); got != tt.want {
			t.Errorf("%q: kind = %q, want %q", tt.errMsg, got, tt.want)
		}
	}
}

func TestParseTextToolCalls(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantCalls  []string
		wantBefore string
	}{
		{"plain text", "The directory has two files.", nil, "The directory has two files."},
		{"bare array", `[{"name": "list_dir", "arguments": {"path": "/tmp"}}]`, []string{"list_dir"}, ""},
		{"array after prose", "Let me check.\n[{\"name\": \"list_dir\", \"arguments\": {}}]", []string{"list_dir"}, "Let me check."},
		{"wrapper object", `{"tool_calls": [{"name": "read_file", "arguments": {"path": "a"}}, {"name": "list_dir", "arguments": {}}]}`, []string{"read_file", "list_dir"}, ""},
		{"broken json", `[{"name": "list_dir", "arguments": {`, nil, `[{"name": "list_dir", "arguments": {`},
		{"nameless entries", `[{"arguments": {}}]`, nil, `[{"arguments": {}}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls, before := parseTextToolCalls(tt.text)
			if len(calls) != len(tt.wantCalls) {
				t.Fatalf("got %d calls, want %d", len(calls), len(tt.wantCalls))
			}
			for i, name := range tt.wantCalls {
				if calls[i].Name != name {
					t.Errorf("call %d name = %q, want %q", i, calls[i].Name, name)
				}
				if !strings.HasPrefix(calls[i].ID, "call_") {
					t.Errorf("call %d has unexpected ID %q", i, calls[i].ID)
				}
			}
			if before != tt.wantBefore {
				t.Errorf("before = %q, want %q", before, tt.wantBefore)
			}
		})
	}
}

func TestGollmParseResponse(t *testing.T) {
	a := &GollmAdapter{backend: "openai", model: "gpt-4o-mini", logger: slog.Default()}

	resp, err := a.ParseResponse("All done.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StopReason != StopNatural || resp.Text() != "All done." {
		t.Errorf("unexpected response %+v", resp)
	}

	resp, err = a.ParseResponse(`[{"name": "list_dir", "arguments": {"path": "/tmp"}}]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StopReason != StopToolUse {
		t.Errorf("expected tool_use, got %q", resp.StopReason)
	}
	calls := resp.ToolCalls()
	if len(calls) != 1 || calls[0].Arguments["path"] != "/tmp" {
		t.Errorf("unexpected calls %+v", calls)
	}
	if resp.Provider != ProviderGollm || resp.Model != "gpt-4o-mini" {
		t.Errorf("unexpected provider or model %q %q", resp.Provider, resp.Model)
	}
}

func TestGollmBuildRequest(t *testing.T) {
	a := &GollmAdapter{backend: "openai", logger: slog.Default()}
	msgs := append(listDirConversation(),
		AssistantMessage("", ToolCall{ID: "c2", Name: "read_file", Arguments: map[string]any{"path": "/tmp/a.txt"}}),
		ToolResultMessage(ToolResult{CallID: "c2", Name: "read_file", Status: ToolStatusError, Payload: "permission denied"}),
	)
	prompt := a.BuildRequest(Request{System: "be brief", Messages: msgs, Tools: []ToolDefinition{listDirTool()}})

	for _, want := range []string{
		"list files in /tmp",
		`[Assistant called list_dir]: {"path":"/tmp"}`,
		`[Tool Result list_dir]: ["a.txt","b.txt"]`,
		"[Tool Error read_file]: permission denied",
	} {
		if !strings.Contains(prompt.Input, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt.Input)
		}
	}
	if !strings.HasPrefix(prompt.SystemPrompt, "be brief") || !strings.Contains(prompt.SystemPrompt, "JSON array") {
		t.Errorf("expected tool protocol in system prompt, got %q", prompt.SystemPrompt)
	}
	if len(prompt.Tools) != 1 {
		t.Errorf("expected one tool, got %d", len(prompt.Tools))
	}
}

func TestEstimateTokens(t *testing.T) {
	req := Request{
		System:   "be brief and precise",
		Messages: []Message{UserMessage("Hello world, this is a test message.")},
	}
	if tokens := estimateTokens(req); tokens <= 0 {
		t.Errorf("expected positive token estimate, got %d", tokens)
	}
	if tokens := estimateTokens(Request{}); tokens != 0 {
		t.Errorf("expected zero for an empty request, got %d", tokens)
	}
}
