package policy

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes policy-layer errors.
type ErrorCode string

const (
	// ErrCodeNotNormalizable indicates an object lacked the key-field
	// values its type declares. Non-fatal: the write degrades to
	// embedding the object inline.
	ErrCodeNotNormalizable ErrorCode = "NOT_NORMALIZABLE"

	// ErrCodeKeyArgs indicates a key-argument specification could not
	// be applied to the supplied arguments.
	ErrCodeKeyArgs ErrorCode = "KEY_ARGS"

	// ErrCodeKeyFields indicates a key-field value could not be
	// canonically serialized.
	ErrCodeKeyFields ErrorCode = "KEY_FIELDS"
)

// Error is a structured policy error with the (type, field) coordinates
// it occurred at.
type Error struct {
	Code     ErrorCode
	Message  string
	TypeName string
	Field    string
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.TypeName != "" && e.Field != "":
		return fmt.Sprintf("%s: %s (type=%s, field=%s)", e.Code, e.Message, e.TypeName, e.Field)
	case e.TypeName != "":
		return fmt.Sprintf("%s: %s (type=%s)", e.Code, e.Message, e.TypeName)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsNotNormalizable reports whether err marks an object that could not
// be given an identity. Uses errors.As to handle wrapped errors.
func IsNotNormalizable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeNotNormalizable
	}
	return false
}

// NewNotNormalizableError reports a missing key-field value.
func NewNotNormalizableError(typeName, keyPath string) *Error {
	return &Error{
		Code:     ErrCodeNotNormalizable,
		Message:  fmt.Sprintf("missing key field %q", keyPath),
		TypeName: typeName,
	}
}
