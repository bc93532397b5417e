package unifiedllm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ollama/ollama/api"
)

func TestOllamaBuildRequest(t *testing.T) {
	a, err := NewOllamaAdapter(WithBaseURL("http://127.0.0.1:11434"), WithModel("llama3.1"), WithMaxTokens(512))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req, err := a.BuildRequest(Request{
		System:   "be brief",
		Messages: listDirConversation(),
		Tools:    []ToolDefinition{listDirTool()},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Model != "llama3.1" || req.Stream == nil || *req.Stream {
		t.Errorf("unexpected model or stream flag: %q %v", req.Model, req.Stream)
	}
	if req.Options["num_predict"] != 512 {
		t.Errorf("unexpected options %v", req.Options)
	}
	if len(req.Messages) != 4 {
		t.Fatalf("expected system, user, assistant and tool messages, got %d", len(req.Messages))
	}
	if req.Messages[2].Role != "assistant" || len(req.Messages[2].ToolCalls) != 1 {
		t.Fatalf("unexpected assistant message %+v", req.Messages[2])
	}
	if req.Messages[2].ToolCalls[0].Function.Name != "list_dir" {
		t.Errorf("unexpected call %+v", req.Messages[2].ToolCalls[0])
	}
	tool := req.Messages[3]
	if tool.Role != "tool" || tool.Content != `["a.txt","b.txt"]` {
		t.Errorf("unexpected tool message %+v", tool)
	}
	if len(req.Tools) != 1 || req.Tools[0].Function.Name != "list_dir" {
		t.Errorf("unexpected tools %+v", req.Tools)
	}
}

func TestOllamaParseResponse(t *testing.T) {
	a := &OllamaAdapter{model: "llama3.1"}
	decode := func(body string) api.ChatResponse {
		t.Helper()
		var resp api.ChatResponse
		if err := json.Unmarshal([]byte(body), &resp); err != nil {
			t.Fatalf("fixture: %v", err)
		}
		return resp
	}

	resp, err := a.ParseResponse(decode(`{"model":"llama3.1","message":{"role":"assistant","content":"",
		"tool_calls":[{"function":{"name":"list_dir","arguments":{"path":"/tmp"}}}]},
		"done":true,"done_reason":"stop","prompt_eval_count":12,"eval_count":8}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StopReason != StopToolUse {
		t.Errorf("stop with calls should map to tool_use, got %q", resp.StopReason)
	}
	calls := resp.ToolCalls()
	if len(calls) != 1 || !strings.HasPrefix(calls[0].ID, "call_") || calls[0].Arguments["path"] != "/tmp" {
		t.Fatalf("unexpected calls %+v", calls)
	}
	if resp.Usage.TotalTokens != 20 {
		t.Errorf("unexpected usage %+v", resp.Usage)
	}

	resp, err = a.ParseResponse(decode(`{"model":"llama3.1","message":{"role":"assistant","content":"Done."},"done":true,"done_reason":"stop"}`))
	if err != nil || resp.StopReason != StopNatural || resp.Text() != "Done." {
		t.Errorf("expected natural stop, got %+v %v", resp, err)
	}
	resp, err = a.ParseResponse(decode(`{"model":"llama3.1","message":{"role":"assistant","content":"Do"},"done":true,"done_reason":"length"}`))
	if err != nil || resp.StopReason != StopMaxTokens {
		t.Errorf("expected max_tokens, got %+v %v", resp, err)
	}

	for _, raw := range []string{"load", "unload", ""} {
		_, err := a.ParseResponse(api.ChatResponse{DoneReason: raw})
		var unmapped *UnmappedStopReasonError
		if !errors.As(err, &unmapped) {
			t.Errorf("%q: expected UnmappedStopReasonError, got %v", raw, err)
		}
	}
}

func TestOllamaCompleteOverHTTP(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"model":"llama3.1","message":{"role":"assistant","content":"Two files."},"done":true,"done_reason":"stop"}`+"\n")
	}))
	defer srv.Close()

	a, err := NewOllamaAdapter(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, err := a.Complete(context.Background(), Request{Messages: listDirConversation()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "Two files." || resp.StopReason != StopNatural {
		t.Errorf("unexpected response %+v", resp)
	}
	if captured["stream"] != false {
		t.Errorf("expected non-streaming request, got %v", captured["stream"])
	}
}

func TestOllamaCompleteMapsStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"model \"nope\" not found, try pulling it first"}`)
	}))
	defer srv.Close()

	a, err := NewOllamaAdapter(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()), WithModel("nope"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = a.Complete(context.Background(), Request{Messages: []Message{UserMessage("hi")}})
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected not found, got %T %v", err, err)
	}
}
