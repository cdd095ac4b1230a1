package modal

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidInput is matched by every validation failure. Use errors.Is to test for it.
	ErrInvalidInput = errors.New("invalid input")
	// ErrComputation is matched by every numerical failure that happens after validation.
	ErrComputation = errors.New("computation error")
	// ErrSingularMatrix is the cause of a ComputationError when the mass matrix cannot be inverted.
	ErrSingularMatrix = errors.New("mass matrix is singular")
)

// InvalidInputError describes a rejected parameter. The message is meant to be shown to a user as is.
type InvalidInputError struct {
	Field   string
	Message string
}

func (e *InvalidInputError) Error() string {
	return e.Message
}

// Is lets errors.Is(err, ErrInvalidInput) succeed.
func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func newInvalidInputError(field, format string, args ...interface{}) error {
	return &InvalidInputError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ComputationError wraps a failure of the linear algebra routines.
type ComputationError struct {
	Err error
}

func (e *ComputationError) Error() string {
	return "error computing natural frequencies: " + e.Err.Error()
}

// Unwrap returns the numerical cause.
func (e *ComputationError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrComputation) succeed.
func (e *ComputationError) Is(target error) bool {
	return target == ErrComputation
}

func newComputationError(err error) error {
	return &ComputationError{Err: err}
}
