package query

import "fmt"

// UnknownEntityError reports a query against an undeclared entity type.
type UnknownEntityError struct {
	Type string
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("unknown entity type: %s", e.Type)
}

// UnsupportedOperatorError reports a filter operator the compiler cannot
// translate.
type UnsupportedOperatorError struct {
	Op string
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("unsupported filter operator: %s", e.Op)
}

// InvalidFilterError reports a malformed filter expression.
type InvalidFilterError struct {
	Reason string
}

func (e *InvalidFilterError) Error() string {
	return fmt.Sprintf("invalid filter: %s", e.Reason)
}

// NotFoundError reports an update/delete target that does not exist.
type NotFoundError struct {
	Type string
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Type, e.ID)
}

// ValidationError reports create/update data that does not fit the schema:
// an unknown field name or a reference that does not resolve.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid entity data: %s", e.Reason)
}

// StorageError wraps a fault raised by the storage layer.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
