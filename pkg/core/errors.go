package core

import (
	"errors"
	"fmt"
)

// Not-found sentinels.
var (
	ErrJobNotFound       = errors.New("automation: job not found")
	ErrWorkflowNotFound  = errors.New("automation: workflow not found")
	ErrExecutionNotFound = errors.New("automation: execution not found")
	ErrTemplateNotFound  = errors.New("automation: workflow template not found")
)

// InvalidTransitionError indicates the requested edge is not in the
// transition table, or the job's state changed under a concurrent call.
type InvalidTransitionError struct {
	From JobState
	To   JobState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

// ValidationError indicates a malformed request field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}
