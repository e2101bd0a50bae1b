package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDocument      = errors.New("invalid document")
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
	ErrAgentUnavailable     = errors.New("agent service unavailable")
	ErrValidationRejected   = errors.New("validation rejected")
	ErrCancelled            = errors.New("analysis cancelled")
)

// Messages stored in AnalysisResult.Error.
const (
	MsgInvalidDocument = "corrupt or unreadable PDF"
	MsgCancelled       = "cancelled"
)

// AnalysisError carries the error kind (one of the sentinels above) and the
// underlying cause. errors.Is matches both.
type AnalysisError struct {
	Kind    error
	Message string
	Cause   error
}

func (e *AnalysisError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *AnalysisError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func NewAnalysisError(kind error, message string, cause error) *AnalysisError {
	return &AnalysisError{Kind: kind, Message: message, Cause: cause}
}
