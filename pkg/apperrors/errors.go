package apperrors

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Kind classifies a domain error
type Kind string

const (
	AlreadyExists        Kind = "already_exists"
	InvalidReference     Kind = "invalid_reference"
	MissingRequiredField Kind = "missing_required_field"
	ValidationFailed     Kind = "validation_failed"
	NotFound             Kind = "not_found"
	Internal             Kind = "internal"
)

// Postgres error codes translated into domain kinds
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgNotNullViolation    = "23502"
	pgCheckViolation      = "23514"
)

// Error is a domain error with a classification kind
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a domain error with the given kind and message
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a domain error with a formatted message
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a domain error that preserves the underlying cause
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf returns the kind of a domain error, or Internal for anything else
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return Internal
}

// IsKind reports whether err is a domain error of the given kind
func IsKind(err error, kind Kind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

// Translate converts storage-layer errors into domain errors.
// Constraint violations map onto the domain kinds; sql.ErrNoRows maps
// onto NotFound; anything unrecognized becomes Internal with the cause
// preserved for logging.
func Translate(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return Wrap(NotFound, op+": not found", err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgUniqueViolation:
			return Wrap(AlreadyExists, op+": already exists", err)
		case pgForeignKeyViolation:
			return Wrap(InvalidReference, op+": referenced row does not exist", err)
		case pgNotNullViolation:
			return Wrap(MissingRequiredField, op+": required field missing", err)
		case pgCheckViolation:
			return Wrap(ValidationFailed, op+": check constraint violated", err)
		}
	}

	return Wrap(Internal, op+": storage error", err)
}
