package schema

import (
	"errors"
	"fmt"

	"github.com/roach88/lattice/internal/ir"
)

// ErrorCode classifies schema errors.
type ErrorCode string

const (
	// CodeSchemaPathDoesNotExist: a record segment names an undeclared field.
	CodeSchemaPathDoesNotExist ErrorCode = "SCHEMA_PATH_DOES_NOT_EXIST"
	// CodeInvalidSchemaPath: the path continues past a register or a set element.
	CodeInvalidSchemaPath ErrorCode = "INVALID_SCHEMA_PATH"
	// CodeInvalidSchemaType: an unrecognized serialized type tag.
	CodeInvalidSchemaType ErrorCode = "INVALID_SCHEMA_TYPE"
	// CodeInvalidSetType: a set over something other than string or number.
	CodeInvalidSetType ErrorCode = "INVALID_SET_TYPE"
	// CodeInvalidValue: a value that does not fit the declared type.
	CodeInvalidValue ErrorCode = "INVALID_VALUE"
	// CodeMissingValue: a required field without value or default.
	CodeMissingValue ErrorCode = "MISSING_VALUE"
	// CodeSchemaVersionRegressed: a definition older than the stored one.
	CodeSchemaVersionRegressed ErrorCode = "SCHEMA_VERSION_REGRESSED"
	// CodeUnknownDefault: a default function name with no registered provider.
	CodeUnknownDefault ErrorCode = "UNKNOWN_DEFAULT"
	// CodeInvalidDefinition: a structurally invalid schema or definition.
	CodeInvalidDefinition ErrorCode = "INVALID_DEFINITION"
)

// Error is the error type returned by schema navigation, construction and
// coercion.
type Error struct {
	Code    ErrorCode
	Message string
	Path    ir.Attribute // attribute path where the error was detected, if any
	Type    string       // offending type tag, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if len(e.Path) > 0 {
		msg += " at " + e.Path.Key()
	}
	return msg
}

// Is matches any *Error with the same code, so the sentinels below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrSchemaPathDoesNotExist = &Error{Code: CodeSchemaPathDoesNotExist}
	ErrInvalidSchemaPath      = &Error{Code: CodeInvalidSchemaPath}
	ErrInvalidSchemaType      = &Error{Code: CodeInvalidSchemaType}
	ErrInvalidSetType         = &Error{Code: CodeInvalidSetType}
	ErrInvalidValue           = &Error{Code: CodeInvalidValue}
	ErrMissingValue           = &Error{Code: CodeMissingValue}
	ErrSchemaVersionRegressed = &Error{Code: CodeSchemaVersionRegressed}
	ErrUnknownDefault         = &Error{Code: CodeUnknownDefault}
	ErrInvalidDefinition      = &Error{Code: CodeInvalidDefinition}
)

// NewError creates an Error at path.
func NewError(code ErrorCode, path ir.Attribute, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Path: path}
}

// NewPathDoesNotExistError reports an undeclared field.
func NewPathDoesNotExistError(path ir.Attribute, field string) *Error {
	return NewError(CodeSchemaPathDoesNotExist, path, "field %q is not declared", field)
}

// NewInvalidPathError reports a path that continues past a terminal node.
func NewInvalidPathError(path ir.Attribute, format string, args ...any) *Error {
	return NewError(CodeInvalidSchemaPath, path, format, args...)
}

// NewInvalidTypeError reports an unrecognized type tag.
func NewInvalidTypeError(path ir.Attribute, tag string) *Error {
	return &Error{
		Code:    CodeInvalidSchemaType,
		Message: fmt.Sprintf("unknown type %q", tag),
		Path:    path,
		Type:    tag,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsPathError reports whether err is a path resolution failure.
func IsPathError(err error) bool {
	return errors.Is(err, ErrSchemaPathDoesNotExist) || errors.Is(err, ErrInvalidSchemaPath)
}
