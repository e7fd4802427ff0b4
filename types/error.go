package types

import (
	stderrors "errors"

	"github.com/juju/errors"
)

var (
	_ error = &ValidationError{}
	_ error = &ExecutionError{}
	_ error = &RecursionError{}
)

// ValidationError reports malformed configuration: a bad graph shape, a
// missing required action field or an unresolvable CALL_FLOW target.
type ValidationError struct {
	*baseError
}

// ExecutionError reports a runtime failure of a side effect or an unknown
// node, operator or action type.
type ExecutionError struct {
	*baseError
}

// RecursionError reports an exhausted flow depth or a flow call loop.
type RecursionError struct {
	*baseError
}

func NewValidationError(otherErr error) error {
	return &ValidationError{baseError: newBaseErr(otherErr)}
}

func NewValidationErrorf(format string, args ...interface{}) error {
	return NewValidationError(errors.Errorf(format, args...))
}

func NewExecutionError(otherErr error) error {
	return &ExecutionError{baseError: newBaseErr(otherErr)}
}

func NewExecutionErrorf(format string, args ...interface{}) error {
	return NewExecutionError(errors.Errorf(format, args...))
}

func NewRecursionError(otherErr error) error {
	return &RecursionError{baseError: newBaseErr(otherErr)}
}

func NewRecursionErrorf(format string, args ...interface{}) error {
	return NewRecursionError(errors.Errorf(format, args...))
}

func IsValidationError(err error) bool {
	var e *ValidationError
	return stderrors.As(err, &e)
}

func IsExecutionError(err error) bool {
	var e *ExecutionError
	return stderrors.As(err, &e)
}

func IsRecursionError(err error) bool {
	var e *RecursionError
	return stderrors.As(err, &e)
}

func newBaseErr(otherErr error) *baseError {
	return &baseError{unwrapErr(otherErr)}
}

func unwrapErr(err error) error {
	if err == nil {
		return nil
	}
	if ue, ok := err.(wrappedErr); ok {
		return unwrapErr(ue.UnwrapLocal())
	}
	return err
}

type wrappedErr interface {
	UnwrapLocal() error
}

type baseError struct {
	BaseErr error
}

func (e *baseError) Error() string {
	return e.BaseErr.Error()
}

func (e *baseError) UnwrapLocal() error {
	return e.BaseErr
}
