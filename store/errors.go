package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced table, record or field does not exist.
	// The more specific not-found errors below all match it with errors.Is.
	ErrNotFound = errors.New("tablekv: not found")

	// ErrTableNotFound is returned when the named table does not exist.
	ErrTableNotFound = fmt.Errorf("%w: table", ErrNotFound)

	// ErrRecordNotFound is returned when the record key does not exist in the table.
	ErrRecordNotFound = fmt.Errorf("%w: record", ErrNotFound)

	// ErrFieldNotFound is returned when update targets a field that was never inserted.
	ErrFieldNotFound = fmt.Errorf("%w: field", ErrNotFound)

	// ErrAlreadyExists is returned when creating a table whose name is taken.
	ErrAlreadyExists = errors.New("tablekv: table already exists")

	// ErrInvalidName is returned for empty, oversized or separator-bearing table names.
	ErrInvalidName = errors.New("tablekv: invalid table name")

	// ErrInvalidInput is returned for empty or malformed keys and field names.
	ErrInvalidInput = errors.New("tablekv: invalid input")

	// ErrReadOnly is returned when a mutation is attempted inside View.
	ErrReadOnly = errors.New("tablekv: transaction is read-only")
)
