package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RefreshRejectedMessage is the only text returned for a failed refresh.
const RefreshRejectedMessage = "invalid or expired refresh token"

// toStatus maps a service error onto a gRPC status. Validation, conflict
// and not-found messages are passed through, authentication failures get a
// fixed text, everything else is logged and hidden.
func (s *GRPCServer) toStatus(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, common.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, common.ErrUnauthenticated):
		s.logger.Info(ctx, "authentication rejected", "operation", op, "error", err)
		return status.Error(codes.Unauthenticated, unauthenticatedMessage(op))
	case errors.Is(err, common.ErrForbidden):
		return status.Error(codes.PermissionDenied, "forbidden")
	case errors.Is(err, common.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, common.ErrTransientStore):
		s.logger.Warn(ctx, "store unavailable", "operation", op, "error", err)
		return status.Error(codes.Unavailable, "service temporarily unavailable")
	default:
		s.logger.Error(ctx, "request failed", "operation", op, "error", err)
		return status.Error(codes.Internal, common.ErrorInternal.Error())
	}
}

// unauthenticatedMessage is fixed per operation so callers cannot tell an
// unknown token from a revoked or expired one.
func unauthenticatedMessage(op string) string {
	switch op {
	case "login":
		return common.InvalidCredentialsMessage
	case "refresh":
		return RefreshRejectedMessage
	default:
		return "unauthorized"
	}
}
