package domain

import (
	"fmt"
	"strings"
)

// DependencyInstallError reports a non-zero exit from the dependency
// install command while preparing a build environment.
type DependencyInstallError struct {
	Output string
	Err    error
}

func (e *DependencyInstallError) Error() string {
	return fmt.Sprintf("installing dependencies: %v", e.Err)
}

func (e *DependencyInstallError) Unwrap() error { return e.Err }

// TestError reports a failing test command. Output carries the captured
// stdout/stderr so callers can surface the failing test's diagnostics.
type TestError struct {
	Output string
	Err    error
}

func (e *TestError) Error() string {
	return fmt.Sprintf("tests failed: %v", e.Err)
}

func (e *TestError) Unwrap() error { return e.Err }

// BuildError reports a non-zero exit from the build command.
type BuildError struct {
	Output string
	Err    error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed: %v", e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// DuplicateSlotError reports a second registration of a slot name within
// one environment binding, regardless of direction.
type DuplicateSlotError struct {
	Name string
}

func (e *DuplicateSlotError) Error() string {
	return fmt.Sprintf("slot %q already registered", e.Name)
}

// UnboundOutputError reports a request for an output slot that was never
// declared, or one read before the run reached completion.
type UnboundOutputError struct {
	Name string
}

func (e *UnboundOutputError) Error() string {
	return fmt.Sprintf("output %q is not bound", e.Name)
}

// IncompleteRunError reports an engine that signalled completion while one
// or more declared outputs were left unpopulated. Fatal; never retried.
type IncompleteRunError struct {
	Missing []string
}

func (e *IncompleteRunError) Error() string {
	return fmt.Sprintf("run completed with unpopulated outputs: %s", strings.Join(e.Missing, ", "))
}

// AgentExecutionError wraps a terminal failure reported by the execution
// engine.
type AgentExecutionError struct {
	Err error
}

func (e *AgentExecutionError) Error() string {
	return fmt.Sprintf("agent execution failed: %v", e.Err)
}

func (e *AgentExecutionError) Unwrap() error { return e.Err }

// ValidationError reports that the agent's completed workspace failed the
// test gate. The broken tree is discarded; it never reaches the caller.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("agent result rejected by test gate: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IssueNotFoundError reports an issue the tracker could not return, either
// because it does not exist or the credential is not authorized to read it.
type IssueNotFoundError struct {
	Repository string
	Number     int
}

func (e *IssueNotFoundError) Error() string {
	return fmt.Sprintf("issue #%d not found in %s", e.Number, e.Repository)
}
