package cache

import (
	"errors"
	"fmt"
	"strings"
)

// OpErrorCode categorizes operation errors.
type OpErrorCode string

const (
	// ErrCodePolicyFunction indicates a user-supplied read or merge
	// function returned an error. The enclosing operation was aborted;
	// for writes, no mutation became visible.
	ErrCodePolicyFunction OpErrorCode = "POLICY_FUNCTION"

	// ErrCodeStorageKey indicates a storage key could not be computed
	// for a field, typically from a failing key-argument function.
	ErrCodeStorageKey OpErrorCode = "STORAGE_KEY"

	// ErrCodeBadRequest indicates a malformed request or response
	// shape, such as a selection applied to a non-object.
	ErrCodeBadRequest OpErrorCode = "BAD_REQUEST"
)

// OpError is an error raised during one read or write operation. It
// carries the (type, field) pair being dispatched and the response path
// where the failure occurred.
type OpError struct {
	Code     OpErrorCode
	Message  string
	TypeName string
	Field    string
	Path     []string
	Err      error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	loc := ""
	if e.TypeName != "" && e.Field != "" {
		loc = fmt.Sprintf(" (type=%s, field=%s)", e.TypeName, e.Field)
	}
	if len(e.Path) > 0 {
		loc += fmt.Sprintf(" at %s", strings.Join(e.Path, "."))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s%s: %v", e.Code, e.Message, loc, e.Err)
	}
	return fmt.Sprintf("%s: %s%s", e.Code, e.Message, loc)
}

// Unwrap exposes the wrapped cause.
func (e *OpError) Unwrap() error {
	return e.Err
}

// IsPolicyFunctionError reports whether err came from a user-supplied
// read or merge function. Uses errors.As to handle wrapped errors.
func IsPolicyFunctionError(err error) bool {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Code == ErrCodePolicyFunction
	}
	return false
}

// policyFuncError wraps a policy function failure with its dispatch
// coordinates.
func policyFuncError(kind, typeName, field string, path []string, err error) *OpError {
	return &OpError{
		Code:     ErrCodePolicyFunction,
		Message:  kind + " function failed",
		TypeName: typeName,
		Field:    field,
		Path:     append([]string(nil), path...),
		Err:      err,
	}
}
