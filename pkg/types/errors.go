package types

import (
	"context"
	"errors"
	"fmt"
)

// Domain errors
var (
	// Collaborator errors
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	ErrRateLimited             = errors.New("rate limited")
	ErrMalformedResponse       = errors.New("malformed response")

	// Pipeline errors
	ErrStageTimeout      = errors.New("stage timeout")
	ErrInvalidQuery      = errors.New("invalid query")
	ErrExtractionFailed  = errors.New("metadata extraction failed")
	ErrCorruptStatistics = errors.New("corpus statistics corrupted")

	// Validation errors
	ErrInvalidMetadata = errors.New("invalid metadata")
	ErrEmptyContent    = errors.New("content cannot be empty")
)

// Pipeline stage names
const (
	StageAnalysis  = "analysis"
	StageExpansion = "expansion"
	StageSearch    = "search"
	StageReranking = "reranking"
)

// StageError reports the pipeline stage a request failed in
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ExtractionError is returned once every attempt and fallback model is exhausted
type ExtractionError struct {
	ID       string
	Model    string
	Attempts int
	Err      error // last underlying cause
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract metadata for %q (model %s, %d attempts): %v", e.ID, e.Model, e.Attempts, e.Err)
}

// Unwrap exposes both the sentinel and the last cause to errors.Is
func (e *ExtractionError) Unwrap() []error {
	return []error{ErrExtractionFailed, e.Err}
}

// IsRetryable reports whether err is a transient collaborator failure
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrCollaboratorUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}
