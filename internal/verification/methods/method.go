// Package methods holds the independent checks the scoring engine runs
// against a credential. Each method turns its expected failure modes into
// a result; a returned error means the method itself broke.
package methods

import (
	"context"
	"errors"
	"fmt"

	"credtrust/internal/verification/models"
)

// Method is one independent verification check.
type Method interface {
	Name() models.Method
	Evaluate(ctx context.Context, req models.Request) (models.MethodResult, error)
}

// ErrorCategory defines the normalized failure taxonomy.
type ErrorCategory string

const (
	// ErrorTimeout indicates the method did not finish within its budget.
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorUnavailable indicates a dependency (registry, keyring) could not be reached.
	ErrorUnavailable ErrorCategory = "unavailable"

	// ErrorBadData indicates the submitted evidence could not be interpreted.
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorInternal indicates an unexpected failure, including panics.
	ErrorInternal ErrorCategory = "internal"
)

// MethodError wraps method failures with normalized categorization.
type MethodError struct {
	Category   ErrorCategory
	Method     models.Method
	Message    string
	Underlying error
}

func (e *MethodError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("method %s [%s]: %s: %v", e.Method, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("method %s [%s]: %s", e.Method, e.Category, e.Message)
}

func (e *MethodError) Unwrap() error {
	return e.Underlying
}

// NewMethodError creates a new normalized method error.
func NewMethodError(category ErrorCategory, method models.Method, message string, underlying error) *MethodError {
	return &MethodError{
		Category:   category,
		Method:     method,
		Message:    message,
		Underlying: underlying,
	}
}

// CategoryOf extracts the error category, defaulting to internal.
func CategoryOf(err error) ErrorCategory {
	var me *MethodError
	if errors.As(err, &me) {
		return me.Category
	}
	return ErrorInternal
}

// Contained reports whether a failure should surface as a skipped result
// rather than a failed one.
func Contained(err error) bool {
	switch CategoryOf(err) {
	case ErrorTimeout, ErrorUnavailable:
		return true
	}
	return false
}
