package engine

import (
	"errors"
	"fmt"
)

// RuntimeError is an error detected by the engine itself rather than by
// schema validation.
//
// Schema errors (unknown attribute, invalid value, version regression) are
// returned as *schema.Error, wrapped with the operation that failed.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Collection is the collection the operation addressed.
	Collection string

	// EntityID is the plain id of the affected entity, if any.
	EntityID string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownCollection indicates the collection is not in the
	// current schema.
	ErrCodeUnknownCollection RuntimeErrorCode = "UNKNOWN_COLLECTION"

	// ErrCodeEntityNotFound indicates the entity does not exist or is
	// deleted.
	ErrCodeEntityNotFound RuntimeErrorCode = "ENTITY_NOT_FOUND"

	// ErrCodeNoSchema indicates a write was attempted before any schema
	// was installed.
	ErrCodeNoSchema RuntimeErrorCode = "NO_SCHEMA"

	// ErrCodeInvalidID indicates an entity id that cannot be stored.
	ErrCodeInvalidID RuntimeErrorCode = "INVALID_ID"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Collection != "" && e.EntityID != "" {
		return fmt.Sprintf("%s: %s (collection=%s, id=%s)", e.Code, e.Message, e.Collection, e.EntityID)
	}
	if e.Collection != "" {
		return fmt.Sprintf("%s: %s (collection=%s)", e.Code, e.Message, e.Collection)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsNotFound reports whether err is an entity-not-found error.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeEntityNotFound)
}

// IsUnknownCollection reports whether err is an unknown-collection error.
func IsUnknownCollection(err error) bool {
	return hasCode(err, ErrCodeUnknownCollection)
}

// NewNotFoundError creates a RuntimeError for a missing entity.
func NewNotFoundError(collection, id string) *RuntimeError {
	return &RuntimeError{
		Code:       ErrCodeEntityNotFound,
		Message:    "entity does not exist",
		Collection: collection,
		EntityID:   id,
	}
}

// NewUnknownCollectionError creates a RuntimeError for a collection missing
// from the schema.
func NewUnknownCollectionError(collection string) *RuntimeError {
	return &RuntimeError{
		Code:       ErrCodeUnknownCollection,
		Message:    "collection is not defined in the schema",
		Collection: collection,
	}
}
