package task

import "errors"

// Domain errors for billable tasks.
var (
	ErrTaskNotFound          = errors.New("task not found")
	ErrInvalidInput          = errors.New("invalid task input")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrMissingClassification = errors.New("failure transition requires an error classification")
	ErrPoolExhausted         = errors.New("provider credit pool exhausted")
)
