package leave

import (
	"errors"
	"strings"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("leave request not found")
	ErrStateConflict = errors.New("state conflict")
)

type Issue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError carries per-field issues and matches ErrValidation.
type ValidationError struct {
	Message string
	Issues  []Issue
}

func (e *ValidationError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = ErrValidation.Error()
	}
	if len(e.Issues) == 0 {
		return msg
	}
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.Field+" "+issue.Reason)
	}
	return msg + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(message string, issues ...Issue) error {
	return &ValidationError{Message: message, Issues: issues}
}
