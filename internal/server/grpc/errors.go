package grpc

import (
	"errors"

	"github.com/dmitrijs2005/catalogkeeper/internal/common"
	"github.com/dmitrijs2005/catalogkeeper/internal/cryptox"
	"github.com/dmitrijs2005/catalogkeeper/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Message sent with codes.DataLoss when a stored description cannot be
// decrypted.
const undisplayableMessage = "could not display this item"

// toStatus maps service errors onto gRPC statuses. Details of unexpected
// errors stay in the server log.
func toStatus(err error) error {
	var verr *services.ValidationError

	switch {
	case errors.As(err, &verr):
		return status.Error(codes.InvalidArgument, verr.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrorAlreadyExists):
		return status.Error(codes.AlreadyExists, "email is already registered")
	case errors.Is(err, common.ErrRefreshTokenExpired):
		return status.Error(codes.Unauthenticated, common.ErrRefreshTokenExpired.Error())
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidToken):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, cryptox.ErrDecode):
		return status.Error(codes.DataLoss, undisplayableMessage)
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
