package agentloop

import (
	"context"
	"log/slog"
)

// levelTrace matches config.LevelTrace; full payloads are logged there.
const levelTrace = slog.Level(-8)

// LogObserver writes session events as structured log records.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver returns an Observer that logs through logger, or through
// slog.Default when logger is nil.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger}
}

func (o *LogObserver) OnEvent(e SessionEvent) {
	ctx := context.Background()
	attrs := []any{"session_id", e.SessionID, "iteration", e.Iteration}

	switch e.Kind {
	case EventSessionStart:
		o.logger.Info("session started", append(attrs, "model", e.Data["model"], "tools", e.Data["tools"])...)
	case EventUserInput:
		o.logger.Log(ctx, levelTrace, "user input", append(attrs, "content", e.Data["content"])...)
	case EventProviderRequest:
		o.logger.Debug("calling provider", append(attrs, "messages", e.Data["messages"])...)
	case EventProviderResponse:
		o.logger.Debug("provider responded",
			append(attrs,
				"stop_reason", e.Data["stop_reason"],
				"raw_stop_reason", e.Data["raw_stop_reason"],
				"tool_calls", e.Data["tool_calls"],
				"input_tokens", e.Data["input_tokens"],
				"output_tokens", e.Data["output_tokens"],
			)...)
		o.logger.Log(ctx, levelTrace, "assistant text", append(attrs, "text", e.Data["text"])...)
	case EventToolCallStart:
		o.logger.Info("tool call", append(attrs, "tool", e.Data["tool"], "call_id", e.Data["call_id"])...)
		o.logger.Log(ctx, levelTrace, "tool arguments", append(attrs, "call_id", e.Data["call_id"], "arguments", e.Data["arguments"])...)
	case EventToolCallEnd:
		if e.Data["status"] == "error" {
			o.logger.Warn("tool failed", append(attrs, "tool", e.Data["tool"], "call_id", e.Data["call_id"], "error", e.Data["payload"])...)
		} else {
			o.logger.Debug("tool succeeded", append(attrs, "tool", e.Data["tool"], "call_id", e.Data["call_id"], "duration_ms", e.Data["duration_ms"])...)
			o.logger.Log(ctx, levelTrace, "tool output", append(attrs, "call_id", e.Data["call_id"], "payload", e.Data["payload"])...)
		}
	case EventSteeringInjected:
		o.logger.Info("steering message injected", append(attrs, "reason", e.Data["reason"])...)
	case EventLoopDetection:
		o.logger.Warn("tool call loop detected", append(attrs, "window", e.Data["window"])...)
	case EventError:
		o.logger.Error("session error", append(attrs, "kind", e.Data["kind"], "error", e.Data["error"])...)
	case EventSessionEnd:
		o.logger.Info("session finished",
			append(attrs,
				"status", e.Data["status"],
				"error_kind", e.Data["error_kind"],
				"total_tokens", e.Data["total_tokens"],
			)...)
	default:
		o.logger.Debug("session event", append(attrs, "kind", e.Kind)...)
	}
}
