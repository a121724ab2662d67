package pipeline

import (
	"errors"
	"fmt"

	"longform-transcriber/internal/domain"
)

// ErrNoChunks reports that a stage was asked to evaluate an empty chunk set.
// An empty set is an upstream invariant violation, not a partial failure.
var ErrNoChunks = errors.New("no chunks to process")

// PipelineError is a stage-aware error for failures that end a run.
type PipelineError struct {
	Stage   domain.Stage `json:"stage"`
	Message string       `json:"message"`
	Err     error        `json:"-"`
}

// Error formats pipeline failures for logs and UI.
func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
