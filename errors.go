package veil

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a write targets a document that does
	// not exist. Reads report absence as a nil document, not an error.
	ErrNotFound = errors.New("veil: document not found")

	// ErrNotUnique is returned when a query that expects at most one
	// result observes more than one.
	ErrNotUnique = errors.New("veil: document not unique")

	// ErrInsertDenied is returned when a security rule rejects an insert.
	ErrInsertDenied = errors.New("veil: insert denied")
)

// NotFoundError represents a write against a missing document.
type NotFoundError struct {
	table string
	id    ID
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.table != "" {
		return fmt.Sprintf("veil: document %q not found in table %q", e.id, e.table)
	}
	return fmt.Sprintf("veil: document %q not found", e.id)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Table returns the table name, if known.
func (e *NotFoundError) Table() string { return e.table }

// ID returns the identifier that was targeted.
func (e *NotFoundError) ID() ID { return e.id }

// NewNotFoundError returns a new NotFoundError for the given table and id.
func NewNotFoundError(table string, id ID) *NotFoundError {
	return &NotFoundError{table: table, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// NotUniqueError represents a Unique query that observed more than one
// surviving document.
type NotUniqueError struct {
	table string
	count int // Number of surviving documents (-1 if unknown)
}

// Error returns the error string.
func (e *NotUniqueError) Error() string {
	if e.count >= 0 {
		return fmt.Sprintf("veil: query on %q not unique (got %d documents, expected at most 1)", e.table, e.count)
	}
	return fmt.Sprintf("veil: query on %q not unique", e.table)
}

// Is reports whether the target error matches NotUniqueError.
// This allows errors.Is(notUniqueErr, ErrNotUnique) to return true.
func (e *NotUniqueError) Is(err error) bool {
	return err == ErrNotUnique
}

// Table returns the queried table.
func (e *NotUniqueError) Table() string { return e.table }

// Count returns the number of surviving documents, or -1 if unknown.
func (e *NotUniqueError) Count() int { return e.count }

// NewNotUniqueError returns a new NotUniqueError for the given table.
func NewNotUniqueError(table string) *NotUniqueError {
	return &NotUniqueError{table: table, count: -1}
}

// NewNotUniqueErrorWithCount returns a new NotUniqueError with the observed
// document count.
func NewNotUniqueErrorWithCount(table string, count int) *NotUniqueError {
	return &NotUniqueError{table: table, count: count}
}

// IsNotUnique returns true if the error is a NotUniqueError.
func IsNotUnique(err error) bool {
	if err == nil {
		return false
	}
	var e *NotUniqueError
	return errors.As(err, &e) || errors.Is(err, ErrNotUnique)
}

// InsertDeniedError represents an insert rejected by a security rule.
// Unlike denied reads and updates, which are silent, a denied insert fails
// the calling operation so the caller cannot mistake it for a success.
type InsertDeniedError struct {
	table string
}

// Error returns the error string.
func (e *InsertDeniedError) Error() string {
	return fmt.Sprintf("veil: insert into %q denied by security rule", e.table)
}

// Is reports whether the target error matches InsertDeniedError.
// This allows errors.Is(insertDeniedErr, ErrInsertDenied) to return true.
func (e *InsertDeniedError) Is(err error) bool {
	return err == ErrInsertDenied
}

// Table returns the table the insert targeted.
func (e *InsertDeniedError) Table() string { return e.table }

// NewInsertDeniedError returns a new InsertDeniedError for the given table.
func NewInsertDeniedError(table string) *InsertDeniedError {
	return &InsertDeniedError{table: table}
}

// IsInsertDenied returns true if the error is an InsertDeniedError.
func IsInsertDenied(err error) bool {
	if err == nil {
		return false
	}
	var e *InsertDeniedError
	return errors.As(err, &e) || errors.Is(err, ErrInsertDenied)
}
