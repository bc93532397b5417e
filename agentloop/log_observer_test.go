package agentloop

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/martinemde/sfagent/unifiedllm"
)

func TestLogObserverWritesSessionRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	completer := &scriptedCompleter{steps: []scriptStep{
		reply(unifiedllm.StopToolUse, "", unifiedllm.ToolCall{ID: "c1", Name: "missing", Arguments: map[string]any{}}),
		reply(unifiedllm.StopNatural, "Done."),
	}}
	session := NewSession(completer, listDirRegistry(t, nil), testConfig(5), NewLogObserver(logger))
	session.Run(context.Background(), "go")

	var msgs []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		if rec["session_id"] != session.ID() {
			t.Errorf("record %v missing session_id", rec)
		}
		msgs = append(msgs, rec["msg"].(string))
	}

	for _, want := range []string{"session started", "calling provider", "provider responded", "tool call", "tool failed", "session finished"} {
		found := false
		for _, m := range msgs {
			if m == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("no %q record in %v", want, msgs)
		}
	}
	if strings.Contains(buf.String(), "assistant text") {
		t.Error("trace records written at debug level")
	}
}

func TestLogObserverTraceLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: levelTrace}))
	NewLogObserver(logger).OnEvent(SessionEvent{
		Kind: EventUserInput, SessionID: "s1", Data: map[string]any{"content": "list files"},
	})
	if !strings.Contains(buf.String(), "list files") {
		t.Errorf("trace record missing: %q", buf.String())
	}
}

func TestEventEmitterDropsWhenFull(t *testing.T) {
	e := NewEventEmitter(1)
	e.OnEvent(SessionEvent{Kind: EventSessionStart})
	e.OnEvent(SessionEvent{Kind: EventSessionEnd})
	e.Close()
	e.Close()
	e.OnEvent(SessionEvent{Kind: EventError})

	var kinds []EventKind
	for ev := range e.Events() {
		kinds = append(kinds, ev.Kind)
	}
	if len(kinds) != 1 || kinds[0] != EventSessionStart {
		t.Errorf("events = %v", kinds)
	}
}
