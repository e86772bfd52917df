package domain

import (
	"fmt"
	"strings"
	"time"
)

// FieldViolation describes one invalid or missing field in a request.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports client-fixable input problems. It always carries
// every violation found, not only the first, so callers can surface all
// problems at once.
type ValidationError struct {
	Fields []FieldViolation
}

// NewValidationError builds a ValidationError from the supplied violations.
func NewValidationError(fields ...FieldViolation) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ScopeError reports an authorization failure: the principal's bound
// organization node does not exist, or the requested target lies outside the
// principal's resolved scope. Scope errors are never retried.
type ScopeError struct {
	Principal string
	Target    string
	Reason    string
}

func (e *ScopeError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("principal %s: %s", e.Principal, e.Reason)
	}
	return fmt.Sprintf("principal %s may not act on %s: %s", e.Principal, e.Target, e.Reason)
}

// ConflictError reports an optimistic-version mismatch. The caller should
// refetch the current state and retry with backoff.
type ConflictError struct {
	Entity      EntityType
	ID          string
	BaseVersion int64
	Version     int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: version conflict (base %d, current %d)", e.Entity, e.ID, e.BaseVersion, e.Version)
}

// NotFoundError is returned when an operation references an entity id that
// does not exist, possibly because it was deleted concurrently.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// StorageError wraps a transient backing-store failure. Retryable errors are
// eligible for bounded retry with backoff; the original cause is preserved
// for unwrapping once retries exhaust.
type StorageError struct {
	Op        string
	Err       error
	Retryable bool
	Elapsed   time.Duration
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
