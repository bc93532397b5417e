package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/martinemde/sfagent/internal/config"
	"github.com/martinemde/sfagent/unifiedllm"
)

// isolate keeps the developer's config files and credentials out of the
// test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{"SFAGENT_PROVIDER", "SFAGENT_MODEL", "SFAGENT_MAX_ITERATIONS", "SFAGENT_LOG_LEVEL", "SFAGENT_WORKDIR", "OLLAMA_HOST"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	return dir
}

type fakeCompleter struct {
	mu        sync.Mutex
	responses []*unifiedllm.Response
	requests  []unifiedllm.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req unifiedllm.Request) (*unifiedllm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	i := min(len(f.requests)-1, len(f.responses)-1)
	return f.responses[i], nil
}

func (f *fakeCompleter) factory(closed *bool) completerFactory {
	return func(context.Context, *config.Config, *slog.Logger) (unifiedllm.Completer, func() error, error) {
		return f, func() error { *closed = true; return nil }, nil
	}
}

func toolTurn(call unifiedllm.ToolCall) *unifiedllm.Response {
	return &unifiedllm.Response{Message: unifiedllm.AssistantMessage("", call), StopReason: unifiedllm.StopToolUse}
}

func TestParseArgs(t *testing.T) {
	var stderr bytes.Buffer
	o, err := parseArgs([]string{
		"-p", "scrape it", "-c", "3", "--model", "sonnet", "-o", "out.md",
		"-mcp-command", "npx a", "-mcp-command", "uvx b",
	}, &stderr)
	if err != nil {
		t.Fatal(err)
	}
	if o.prompt != "scrape it" || o.computeLimit != 3 || o.model != "sonnet" || o.outputPath != "out.md" {
		t.Errorf("options = %+v", o)
	}
	if len(o.mcpCommands) != 2 {
		t.Errorf("mcp commands = %v", o.mcpCommands)
	}
	for _, name := range []string{"prompt", "compute-limit", "model", "output-file-path", "mcp-command"} {
		if !o.set[name] {
			t.Errorf("%s not recorded as set", name)
		}
	}

	cfg := config.Default()
	cfg.Model = "from-file"
	cfg.LogLevel = "debug"
	o.apply(cfg)
	if cfg.MaxIterations != 3 || cfg.Model != "sonnet" || len(cfg.MCPServers) != 2 {
		t.Errorf("applied config = %+v", cfg)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("unset flag overrode log level: %q", cfg.LogLevel)
	}
}

func TestParseArgsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing prompt", []string{"-c", "3"}, "prompt is required"},
		{"zero compute limit", []string{"-p", "x", "-c", "0"}, "compute limit must be at least 1"},
		{"stray argument", []string{"-p", "x", "extra"}, "unexpected arguments: extra"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseArgs(tt.args, &bytes.Buffer{})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestRunHelp(t *testing.T) {
	var stderr bytes.Buffer
	if err := run(context.Background(), &bytes.Buffer{}, &stderr, []string{"-h"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stderr.String(), "-compute-limit") {
		t.Errorf("usage missing flags: %q", stderr.String())
	}
}

func TestBuildPrompt(t *testing.T) {
	if got := buildPrompt("task", ""); got != "task" {
		t.Errorf("buildPrompt = %q", got)
	}
	if got := buildPrompt("task\n", "out.md"); got != "task\n\nWrite the final result to out.md." {
		t.Errorf("buildPrompt = %q", got)
	}
}

func TestExecuteCompletesTask(t *testing.T) {
	dir := isolate(t)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	completer := &fakeCompleter{responses: []*unifiedllm.Response{
		toolTurn(unifiedllm.ToolCall{ID: "c1", Name: "list_dir", Arguments: map[string]any{"path": "."}}),
		toolTurn(unifiedllm.ToolCall{ID: "c2", Name: "complete_task", Arguments: map[string]any{"reasoning": "Found notes.txt."}}),
	}}
	var closed bool
	var stdout, stderr bytes.Buffer
	err := execute(context.Background(), &stdout, &stderr,
		[]string{"-p", "what files are here?", "-provider", "ollama", "-workdir", dir, "-log-format", "json"},
		completer.factory(&closed))
	if err != nil {
		t.Fatalf("execute: %v\n%s", err, stderr.String())
	}

	if strings.TrimSpace(stdout.String()) != "Found notes.txt." {
		t.Errorf("stdout = %q", stdout.String())
	}
	if !closed {
		t.Error("provider client not closed")
	}
	if len(completer.requests) != 2 {
		t.Fatalf("requests = %d", len(completer.requests))
	}
	first := completer.requests[0]
	if first.Provider != "ollama" || first.Model == "" {
		t.Errorf("request provider/model = %q/%q", first.Provider, first.Model)
	}
	if !strings.Contains(first.System, "complete_task") {
		t.Error("system prompt does not mention the finish tool")
	}
	second := completer.requests[1]
	if !strings.Contains(second.Messages[len(second.Messages)-1].ToolResults()[0].PayloadString(), "notes.txt") {
		t.Errorf("list_dir result missing from conversation: %+v", second.Messages)
	}
	if !strings.Contains(stderr.String(), `"msg":"agent finished"`) {
		t.Errorf("missing JSON log record: %s", stderr.String())
	}
}

func TestExecuteComputeLimit(t *testing.T) {
	dir := isolate(t)
	completer := &fakeCompleter{responses: []*unifiedllm.Response{
		toolTurn(unifiedllm.ToolCall{ID: "c1", Name: "list_dir", Arguments: map[string]any{"path": "."}}),
	}}
	var closed bool
	err := execute(context.Background(), &bytes.Buffer{}, &bytes.Buffer{},
		[]string{"-p", "loop forever", "-provider", "ollama", "-workdir", dir, "-c", "2"},
		completer.factory(&closed))
	if err == nil || !strings.Contains(err.Error(), "compute limit of 2 iterations") {
		t.Errorf("err = %v", err)
	}
	if len(completer.requests) != 2 {
		t.Errorf("requests = %d, want 2", len(completer.requests))
	}
}

func TestExecuteRejectsInvalidConfig(t *testing.T) {
	isolate(t)
	t.Setenv("GROQ_API_KEY", "")
	os.Unsetenv("GROQ_API_KEY")

	called := false
	factory := func(context.Context, *config.Config, *slog.Logger) (unifiedllm.Completer, func() error, error) {
		called = true
		return nil, nil, errors.New("unreachable")
	}
	err := execute(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, []string{"-p", "x", "-provider", "groq"}, factory)
	if err == nil || !strings.Contains(err.Error(), "GROQ_API_KEY") {
		t.Errorf("err = %v", err)
	}
	if called {
		t.Error("provider built despite invalid config")
	}
}

func TestResolveWorkDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if got, err := resolveWorkDir(dir); err != nil || got != dir {
		t.Errorf("resolveWorkDir(dir) = %q, %v", got, err)
	}
	if _, err := resolveWorkDir(file); err == nil {
		t.Error("file accepted as workdir")
	}
	if _, err := resolveWorkDir(filepath.Join(dir, "missing")); err == nil {
		t.Error("missing dir accepted")
	}
}
