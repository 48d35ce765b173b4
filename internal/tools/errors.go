// Package tools provides the tool registry the agent calls during its
// reasoning loop.
//
// This file defines sentinel error types for tool execution.
package tools

import "fmt"

// ErrInvalidArguments is returned when a tool call's arguments fail
// schema validation. The tool body never runs; the message is safe to
// feed back to the model as a tool result so it can correct the call.
type ErrInvalidArguments struct {
	ToolName string
	Reason   string
}

func (e *ErrInvalidArguments) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.ToolName, e.Reason)
}

// ErrExecutionFailed is returned when a tool's arguments were valid but
// the underlying query failed. Callers may retry once before reporting
// the failure to the model.
type ErrExecutionFailed struct {
	ToolName string
	Err      error
}

func (e *ErrExecutionFailed) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.ToolName, e.Err)
}

func (e *ErrExecutionFailed) Unwrap() error { return e.Err }

// ErrToolUnavailable is returned when a tool call targets a tool that
// is not in the registry. This is a capability mismatch, not a
// transient failure; callers should not retry.
type ErrToolUnavailable struct {
	ToolName string
}

func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available", e.ToolName)
}
