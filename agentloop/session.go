package agentloop

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/martinemde/sfagent/unifiedllm"
)

// CompleteTaskToolName is the default finish tool.
const CompleteTaskToolName = "complete_task"

// Steering and continuation messages appended as user turns.
const (
	continueAfterMaxTokens = "Your response was cut off by the output token limit. Continue where you left off."
	continueAfterFilter    = "Your previous response was blocked by the content filter. Try a different approach."
	continueWithoutCall    = "No tool call was received. Call one of the available tools, or call %s when the task is done."
	loopSteering           = "Loop detected: the last %d tool calls follow a repeating pattern. Try a different approach."
)

// SessionConfig holds configuration for a session.
type SessionConfig struct {
	Model        string `json:"model"`
	Provider     string `json:"provider,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`

	MaxIterations int      `json:"max_iterations"`
	MaxTokens     int      `json:"max_tokens,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`

	// FinishTool names the tool whose successful call completes the task.
	// Empty disables finish-tool completion.
	FinishTool string `json:"finish_tool"`

	ParallelTools   bool          `json:"parallel_tools"`
	ProviderTimeout time.Duration `json:"provider_timeout,omitempty"`
	ToolTimeout     time.Duration `json:"tool_timeout,omitempty"`

	ToolOutputLimits map[string]int `json:"tool_output_limits,omitempty"`
	ToolLineLimits   map[string]int `json:"tool_line_limits,omitempty"`

	EnableLoopDetection bool `json:"enable_loop_detection"`
	LoopDetectionWindow int  `json:"loop_detection_window"`
}

// DefaultSessionConfig returns the default configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxIterations:       10,
		FinishTool:          CompleteTaskToolName,
		EnableLoopDetection: true,
		LoopDetectionWindow: 10,
	}
}

// Status is the terminal state of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusExhausted Status = "exhausted"
	StatusFailed    Status = "failed"
)

// Outcome reports how a run ended. Iterations counts provider calls that
// were attempted.
type Outcome struct {
	Status     Status               `json:"status"`
	Reason     CompletionReason     `json:"reason,omitempty"`
	FinalText  string               `json:"final_text,omitempty"`
	Iterations int                  `json:"iterations"`
	ErrorKind  unifiedllm.ErrorKind `json:"error_kind,omitempty"`
	Err        error                `json:"-"`
	Usage      unifiedllm.Usage     `json:"usage"`
}

// Succeeded reports whether the task completed.
func (o Outcome) Succeeded() bool { return o.Status == StatusCompleted }

// Session drives one task through the provider and the tool registry.
type Session struct {
	id           string
	completer    unifiedllm.Completer
	registry     *ToolRegistry
	executor     *ToolExecutor
	detector     CompletionDetector
	conversation *Conversation
	observers    []Observer
	config       SessionConfig
	started      atomic.Bool
}

// NewSession creates a session. A nil cfg uses DefaultSessionConfig; zero
// MaxIterations and LoopDetectionWindow fall back to their defaults.
func NewSession(completer unifiedllm.Completer, registry *ToolRegistry, cfg *SessionConfig, observers ...Observer) *Session {
	config := DefaultSessionConfig()
	if cfg != nil {
		config = *cfg
	}
	defaults := DefaultSessionConfig()
	if config.MaxIterations <= 0 {
		config.MaxIterations = defaults.MaxIterations
	}
	if config.LoopDetectionWindow <= 0 {
		config.LoopDetectionWindow = defaults.LoopDetectionWindow
	}
	if registry == nil {
		registry = NewToolRegistry()
	}

	opts := []ExecutorOption{WithToolTimeout(config.ToolTimeout)}
	if config.ToolOutputLimits != nil || config.ToolLineLimits != nil {
		opts = append(opts, WithOutputLimits(config.ToolOutputLimits, config.ToolLineLimits))
	}

	return &Session{
		id:           uuid.New().String(),
		completer:    completer,
		registry:     registry,
		executor:     NewToolExecutor(registry, opts...),
		detector:     CompletionDetector{FinishTool: config.FinishTool},
		conversation: NewConversation(),
		observers:    observers,
		config:       config,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Config returns the effective configuration.
func (s *Session) Config() SessionConfig { return s.config }

// Conversation returns the session's conversation. It stays readable after
// Run returns.
func (s *Session) Conversation() *Conversation { return s.conversation }

// Run executes the task until it completes, fails, or exhausts the
// iteration budget. A Session runs at most once.
func (s *Session) Run(ctx context.Context, prompt string) Outcome {
	if !s.started.CompareAndSwap(false, true) {
		return Outcome{Status: StatusFailed, ErrorKind: unifiedllm.KindConfiguration, Err: ErrSessionAlreadyRun}
	}

	s.emit(EventSessionStart, 0, map[string]any{
		"model":    s.config.Model,
		"provider": s.config.Provider,
		"tools":    s.registry.Names(),
	})
	s.conversation.Append(unifiedllm.UserMessage(prompt))
	s.emit(EventUserInput, 0, map[string]any{"content": prompt})

	outcome := s.loop(ctx)

	data := map[string]any{
		"status":       string(outcome.Status),
		"iterations":   outcome.Iterations,
		"total_tokens": outcome.Usage.TotalTokens,
	}
	if outcome.Err != nil {
		data["error_kind"] = string(outcome.ErrorKind)
		data["error"] = outcome.Err.Error()
	}
	s.emit(EventSessionEnd, outcome.Iterations, data)
	return outcome
}

func (s *Session) loop(ctx context.Context) Outcome {
	var usage unifiedllm.Usage
	tools := s.registry.Definitions()

	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return s.fail(n, usage, unifiedllm.KindCancelled, err)
		}
		if n >= s.config.MaxIterations {
			return Outcome{Status: StatusExhausted, Iterations: n, Err: ErrMaxIterations, Usage: usage}
		}

		resp, err := s.complete(ctx, n+1, tools)
		if err != nil {
			kind := unifiedllm.KindOf(err)
			if kind == unifiedllm.KindUnknown && ctx.Err() != nil {
				kind = unifiedllm.KindCancelled
			}
			return s.fail(n+1, usage, kind, err)
		}
		usage = usage.Add(resp.Usage)

		calls := resp.ToolCalls()
		if resp.StopReason == unifiedllm.StopError {
			// Calls from a failed turn never run, so only its text is kept.
			s.conversation.Append(unifiedllm.AssistantMessage(resp.Text()))
		} else {
			s.conversation.Append(resp.Message)
		}
		s.emit(EventProviderResponse, n+1, map[string]any{
			"stop_reason":     string(resp.StopReason),
			"raw_stop_reason": resp.RawStopReason,
			"tool_calls":      len(calls),
			"input_tokens":    resp.Usage.InputTokens,
			"output_tokens":   resp.Usage.OutputTokens,
			"text":            resp.Text(),
		})

		if resp.StopReason == unifiedllm.StopError {
			err := fmt.Errorf("%w (raw stop reason %q)", ErrProviderStop, resp.RawStopReason)
			return s.fail(n+1, usage, unifiedllm.KindProvider, err)
		}

		results := s.runTools(ctx, n+1, calls)
		for _, res := range results {
			s.conversation.Append(unifiedllm.ToolResultMessage(res))
		}

		if done := s.detector.Check(resp, results); done.Done {
			return Outcome{
				Status:     StatusCompleted,
				Reason:     done.Reason,
				FinalText:  done.FinalText,
				Iterations: n + 1,
				Usage:      usage,
			}
		}

		if len(calls) == 0 {
			s.steer(n+1, "continuation", s.continuation(resp.StopReason))
			continue
		}
		if s.config.EnableLoopDetection && DetectLoop(s.conversation.ToolCalls(), s.config.LoopDetectionWindow) {
			s.emit(EventLoopDetection, n+1, map[string]any{"window": s.config.LoopDetectionWindow})
			s.steer(n+1, "loop_detection", fmt.Sprintf(loopSteering, s.config.LoopDetectionWindow))
		}
	}
}

func (s *Session) complete(ctx context.Context, iteration int, tools []unifiedllm.ToolDefinition) (*unifiedllm.Response, error) {
	req := unifiedllm.Request{
		Model:       s.config.Model,
		Provider:    s.config.Provider,
		System:      s.config.SystemPrompt,
		Messages:    s.conversation.Messages(),
		Tools:       tools,
		Temperature: s.config.Temperature,
	}
	if s.config.MaxTokens > 0 {
		maxTokens := s.config.MaxTokens
		req.MaxTokens = &maxTokens
	}

	s.emit(EventProviderRequest, iteration, map[string]any{"messages": len(req.Messages)})

	if s.config.ProviderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ProviderTimeout)
		defer cancel()
	}
	resp, err := s.completer.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, &unifiedllm.SDKError{Message: "provider returned no response"}
	}
	return resp, nil
}

func (s *Session) runTools(ctx context.Context, iteration int, calls []unifiedllm.ToolCall) []unifiedllm.ToolResult {
	if len(calls) == 0 {
		return nil
	}
	return s.executor.ExecuteAll(ctx, calls, s.config.ParallelTools, CallHooks{
		Before: func(call unifiedllm.ToolCall) {
			s.emit(EventToolCallStart, iteration, map[string]any{
				"tool":      call.Name,
				"call_id":   call.ID,
				"arguments": call.Arguments,
			})
		},
		After: func(call unifiedllm.ToolCall, res unifiedllm.ToolResult, elapsed time.Duration) {
			s.emit(EventToolCallEnd, iteration, map[string]any{
				"tool":        call.Name,
				"call_id":     call.ID,
				"status":      string(res.Status),
				"payload":     res.PayloadString(),
				"duration_ms": elapsed.Milliseconds(),
			})
		},
	})
}

func (s *Session) continuation(reason unifiedllm.StopReason) string {
	finish := s.config.FinishTool
	if finish == "" {
		finish = "no tool"
	}
	switch reason {
	case unifiedllm.StopMaxTokens:
		return continueAfterMaxTokens
	case unifiedllm.StopContentFiltered:
		return continueAfterFilter
	}
	return fmt.Sprintf(continueWithoutCall, finish)
}

func (s *Session) steer(iteration int, reason, text string) {
	s.conversation.Append(unifiedllm.UserMessage(text))
	s.emit(EventSteeringInjected, iteration, map[string]any{"reason": reason, "content": text})
}

func (s *Session) fail(iterations int, usage unifiedllm.Usage, kind unifiedllm.ErrorKind, err error) Outcome {
	s.emit(EventError, iterations, map[string]any{"kind": string(kind), "error": err.Error()})
	return Outcome{Status: StatusFailed, Iterations: iterations, ErrorKind: kind, Err: err, Usage: usage}
}

func (s *Session) emit(kind EventKind, iteration int, data map[string]any) {
	if len(s.observers) == 0 {
		return
	}
	event := SessionEvent{
		Kind:      kind,
		Timestamp: time.Now(),
		SessionID: s.id,
		Iteration: iteration,
		Data:      data,
	}
	for _, o := range s.observers {
		o.OnEvent(event)
	}
}

// IsCancelled reports whether the outcome failed because ctx ended.
func (o Outcome) IsCancelled() bool {
	return o.ErrorKind == unifiedllm.KindCancelled || errors.Is(o.Err, context.Canceled)
}
