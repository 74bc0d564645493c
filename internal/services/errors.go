package services

import (
	"errors"
	"fmt"

	"github.com/storefront/api/internal/repositories"
)

var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrInternal     = errors.New("internal error")
)

// Error carries a human-readable message alongside one of the sentinel kinds above.
type Error struct {
	Kind    error
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(kind error, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: cause}
}

func badRequest(code, message string) *Error {
	return newError(ErrBadRequest, code, message, nil)
}

func unauthorized(code, message string) *Error {
	return newError(ErrUnauthorized, code, message, nil)
}

func forbidden(code, message string) *Error {
	return newError(ErrForbidden, code, message, nil)
}

func notFound(code, message string) *Error {
	return newError(ErrNotFound, code, message, nil)
}

func internal(code, message string, cause error) *Error {
	return newError(ErrInternal, code, message, cause)
}

// AsError extracts a service error from err.
func AsError(err error) (*Error, bool) {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr, true
	}
	return nil, false
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// storeError maps a repository failure that the caller did not expect into an internal error.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}
	return internal("store_error", op+" failed", err)
}
