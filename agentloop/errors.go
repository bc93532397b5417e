package agentloop

import (
	"errors"
	"fmt"
)

var (
	// ErrMaxIterations is carried by an Exhausted outcome.
	ErrMaxIterations = errors.New("agentloop: max iterations exceeded")

	// ErrSessionAlreadyRun is returned when Run is called a second time.
	ErrSessionAlreadyRun = errors.New("agentloop: session has already run")

	// ErrProviderStop marks a response whose stop reason was "error".
	ErrProviderStop = errors.New("agentloop: provider ended the turn with an error")
)

// DuplicateToolError is returned by ToolRegistry.Register when the name is
// already taken.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool %q is already registered", e.Name)
}

// UnknownToolError is returned by ToolRegistry.Get for names that were never
// registered. The executor turns it into an error result.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// InvalidToolError reports a definition that cannot be registered.
type InvalidToolError struct {
	Name   string
	Reason string
}

func (e *InvalidToolError) Error() string {
	if e.Name == "" {
		return "invalid tool: " + e.Reason
	}
	return fmt.Sprintf("invalid tool %q: %s", e.Name, e.Reason)
}

// ToolExecutionError describes a handler failure: a returned error, a panic,
// or a timeout. Message has already been redacted.
type ToolExecutionError struct {
	Tool     string
	Message  string
	Panicked bool
	TimedOut bool
	Cause    error
}

func (e *ToolExecutionError) Error() string {
	switch {
	case e.Panicked:
		return fmt.Sprintf("tool %s panicked: %s", e.Tool, e.Message)
	case e.TimedOut:
		return fmt.Sprintf("tool %s timed out: %s", e.Tool, e.Message)
	}
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}

func (e *ToolExecutionError) Unwrap() error { return e.Cause }
