package repositories

import "fmt"

// StoreErrorCode enumerates the categories surfaced through RepositoryError.
type StoreErrorCode string

const (
	// StoreErrorNotFound indicates the requested record does not exist.
	StoreErrorNotFound StoreErrorCode = "not_found"
	// StoreErrorConflict indicates a conditional write was rejected.
	StoreErrorConflict StoreErrorCode = "conflict"
	// StoreErrorUnavailable indicates the backing store could not be reached.
	StoreErrorUnavailable StoreErrorCode = "unavailable"
)

// StoreError is the RepositoryError returned by stores that have no native error type.
type StoreError struct {
	Op      string
	Code    StoreErrorCode
	Message string
	Err     error
}

var _ RepositoryError = (*StoreError)(nil)

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *StoreError) IsNotFound() bool    { return e != nil && e.Code == StoreErrorNotFound }
func (e *StoreError) IsConflict() bool    { return e != nil && e.Code == StoreErrorConflict }
func (e *StoreError) IsUnavailable() bool { return e != nil && e.Code == StoreErrorUnavailable }

// NewNotFoundError reports a missing record for the operation.
func NewNotFoundError(op, message string) *StoreError {
	return newStoreError(op, StoreErrorNotFound, message, nil)
}

// NewConflictError reports a rejected conditional write.
func NewConflictError(op, message string) *StoreError {
	return newStoreError(op, StoreErrorConflict, message, nil)
}

// NewUnavailableError wraps a transport or backend failure.
func NewUnavailableError(op string, err error) *StoreError {
	message := "store unavailable"
	if err != nil {
		message = err.Error()
	}
	return newStoreError(op, StoreErrorUnavailable, message, err)
}

func newStoreError(op string, code StoreErrorCode, message string, err error) *StoreError {
	if message == "" {
		message = string(code)
	}
	return &StoreError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
