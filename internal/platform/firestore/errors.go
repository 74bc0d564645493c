package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/storefront/api/internal/repositories"
)

// WrapError maps Firestore gRPC status codes onto repository error categories. Context
// cancellation passes through unchanged and errors already carrying a category are kept.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return err
	}

	switch status.Code(err) {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	case codes.NotFound:
		return &repositories.StoreError{Op: op, Code: repositories.StoreErrorNotFound, Message: "document not found", Err: err}
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
		return &repositories.StoreError{Op: op, Code: repositories.StoreErrorConflict, Message: status.Convert(err).Message(), Err: err}
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.Unauthenticated, codes.PermissionDenied:
		return repositories.NewUnavailableError(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
