package agentloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/martinemde/sfagent/unifiedllm"
)

// ToolExecutor validates and runs tool calls. Every call yields exactly one
// ToolResult; no failure escapes as an error or panic.
type ToolExecutor struct {
	registry   *ToolRegistry
	timeout    time.Duration
	charLimits map[string]int
	lineLimits map[string]int
	redact     func(string) string
}

// ExecutorOption configures a ToolExecutor.
type ExecutorOption func(*ToolExecutor)

// WithToolTimeout bounds each handler invocation. Zero means no bound beyond
// the caller's context.
func WithToolTimeout(d time.Duration) ExecutorOption {
	return func(e *ToolExecutor) { e.timeout = d }
}

// WithOutputLimits overrides the per-tool character and line limits.
func WithOutputLimits(chars, lines map[string]int) ExecutorOption {
	return func(e *ToolExecutor) {
		e.charLimits = chars
		e.lineLimits = lines
	}
}

// WithRedactor replaces RedactSecrets as the scrubber applied to error
// messages and tool output.
func WithRedactor(fn func(string) string) ExecutorOption {
	return func(e *ToolExecutor) { e.redact = fn }
}

// NewToolExecutor creates an executor over registry.
func NewToolExecutor(registry *ToolRegistry, opts ...ExecutorOption) *ToolExecutor {
	e := &ToolExecutor{registry: registry, redact: RedactSecrets}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute resolves, validates and runs one call.
func (e *ToolExecutor) Execute(ctx context.Context, call unifiedllm.ToolCall) unifiedllm.ToolResult {
	def, err := e.registry.Get(call.Name)
	if err != nil {
		return e.failure(call, err)
	}

	args, err := call.ArgumentMap()
	if err != nil {
		return e.failure(call, &unifiedllm.SchemaValidationError{Reason: err.Error()})
	}
	if err := def.Parameters.Validate(args); err != nil {
		return e.failure(call, err)
	}

	payload, err := e.invoke(ctx, def, args)
	if err != nil {
		return e.failure(call, err)
	}
	return unifiedllm.ToolResult{CallID: call.ID, Name: call.Name, Status: unifiedllm.ToolStatusOK, Payload: e.shape(call.Name, payload)}
}

// shape redacts and truncates output. A structured payload keeps its type
// unless redaction or truncation changes its rendering, in which case the
// rendered string replaces it.
func (e *ToolExecutor) shape(tool string, payload any) any {
	if s, ok := payload.(string); ok {
		return TruncateToolOutput(e.redact(s), tool, e.charLimits, e.lineLimits)
	}
	if payload == nil {
		return nil
	}
	rendered := unifiedllm.ToolResult{Payload: payload}.PayloadString()
	shaped := TruncateToolOutput(e.redact(rendered), tool, e.charLimits, e.lineLimits)
	if shaped != rendered {
		return shaped
	}
	return payload
}

// CallHooks observe the calls run by ExecuteAll. Either hook may be nil.
// With parallel execution they are called from several goroutines.
type CallHooks struct {
	Before func(call unifiedllm.ToolCall)
	After  func(call unifiedllm.ToolCall, res unifiedllm.ToolResult, elapsed time.Duration)
}

// ExecuteAll runs calls and returns results in call order. With parallel set
// the handlers run concurrently.
func (e *ToolExecutor) ExecuteAll(ctx context.Context, calls []unifiedllm.ToolCall, parallel bool, hooks CallHooks) []unifiedllm.ToolResult {
	run := func(call unifiedllm.ToolCall) unifiedllm.ToolResult {
		if hooks.Before != nil {
			hooks.Before(call)
		}
		start := time.Now()
		res := e.Execute(ctx, call)
		if hooks.After != nil {
			hooks.After(call, res, time.Since(start))
		}
		return res
	}

	results := make([]unifiedllm.ToolResult, len(calls))
	if !parallel || len(calls) < 2 {
		for i, call := range calls {
			results[i] = run(call)
		}
		return results
	}
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = run(call)
		}()
	}
	wg.Wait()
	return results
}

type handlerOutcome struct {
	payload any
	err     error
}

// invoke runs the handler in its own goroutine so panics and hangs stay
// inside the boundary.
func (e *ToolExecutor) invoke(ctx context.Context, def ToolDefinition, args map[string]any) (any, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	done := make(chan handlerOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- handlerOutcome{err: &ToolExecutionError{
					Tool:     def.Name,
					Message:  e.redact(fmt.Sprint(r)),
					Panicked: true,
				}}
			}
		}()
		payload, err := def.Handler(ctx, args)
		done <- handlerOutcome{payload: payload, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			var execErr *ToolExecutionError
			if errors.As(out.err, &execErr) {
				redacted := *execErr
				redacted.Message = e.redact(execErr.Message)
				return nil, &redacted
			}
			return nil, &ToolExecutionError{
				Tool:     def.Name,
				Message:  e.redact(out.err.Error()),
				TimedOut: errors.Is(out.err, context.DeadlineExceeded),
				Cause:    out.err,
			}
		}
		return out.payload, nil
	case <-ctx.Done():
		return nil, &ToolExecutionError{
			Tool:     def.Name,
			Message:  ctx.Err().Error(),
			TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
			Cause:    ctx.Err(),
		}
	}
}

func (e *ToolExecutor) failure(call unifiedllm.ToolCall, err error) unifiedllm.ToolResult {
	return unifiedllm.ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Status:  unifiedllm.ToolStatusError,
		Payload: e.redact(err.Error()),
	}
}
