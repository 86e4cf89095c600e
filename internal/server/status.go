package server

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/voidecho/voidecho-server-go/internal/game"
	"github.com/voidecho/voidecho-server-go/internal/store"
)

// CodeFromError classifies an engine or store error.
func CodeFromError(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if s, ok := status.FromError(err); ok {
		return s.Code()
	}
	switch {
	case errors.Is(err, store.ErrGameNotFound),
		errors.Is(err, store.ErrDeckNotFound),
		errors.Is(err, game.ErrReplayNotFound):
		return codes.NotFound
	case errors.Is(err, store.ErrOptimisticLock):
		return codes.Aborted
	case errors.Is(err, store.ErrPersistenceUnavailable):
		return codes.Unavailable
	case errors.Is(err, store.ErrInvalidConfig):
		return codes.InvalidArgument
	case errors.Is(err, game.ErrNotSeated):
		return codes.PermissionDenied
	case errors.Is(err, game.ErrTimerNotExpired):
		return codes.FailedPrecondition
	case errors.Is(err, store.ErrCorruptSnapshot):
		return codes.DataLoss
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	}
	return codes.Internal
}

// StatusFromError converts err into a gRPC status error. Internal errors
// lose their message so storage details do not leak to clients.
func StatusFromError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := CodeFromError(err)
	if code == codes.Internal {
		return status.Error(code, "internal error")
	}
	return status.Error(code, err.Error())
}

// httpStatus maps a gRPC code onto the closest HTTP status.
func httpStatus(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.NotFound:
		return http.StatusNotFound
	case codes.Aborted:
		return http.StatusConflict
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.FailedPrecondition:
		return http.StatusPreconditionFailed
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
