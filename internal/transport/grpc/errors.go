package grpc

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"bookly/backend/internal/domain"
	"bookly/backend/internal/lifecycle"
	"bookly/backend/internal/reservation"
	"bookly/backend/internal/service/booking"
	"bookly/backend/internal/store"
)

const (
	msgSlotTaken       = "Someone else just took that slot. Pick a different time."
	msgHoldExpired     = "Your hold on this slot expired. Pick the slot again to continue."
	msgHoldNotOwned    = "That slot is being held by someone else right now."
	msgActionNotValid  = "That action isn't available for this appointment right now."
	msgNotPermitted    = "You don't have permission to do that."
	msgReasonRequired  = "Please tell us why before continuing."
	msgVersionConflict = "This appointment was just updated. Reload it and try again."
	msgKeyReused       = "This request was already used for a different booking. Try again."
)

// toStatus maps service errors to gRPC statuses with user-facing copy.
// Errors that are already statuses pass through unchanged.
func toStatus(log *slog.Logger, err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}

	var vErr *booking.ValidationError
	var inErr *reservation.InputError
	var tErr *lifecycle.TransitionError

	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", slog.Any("err", err))
		return status.Error(codes.InvalidArgument, vErr.Error())
	case errors.As(err, &inErr):
		log.Warn("invalid request", slog.Any("err", err))
		return status.Error(codes.InvalidArgument, inErr.Error())
	case errors.As(err, &tErr):
		log.Info("transition refused", slog.String("kind", string(tErr.Kind)), slog.Any("err", err))
		switch tErr.Kind {
		case lifecycle.KindIllegalTransition:
			return status.Error(codes.FailedPrecondition, msgActionNotValid)
		case lifecycle.KindInsufficientPermission:
			return status.Error(codes.PermissionDenied, msgNotPermitted)
		case lifecycle.KindReasonRequired:
			return status.Error(codes.InvalidArgument, msgReasonRequired)
		default:
			return status.Error(codes.InvalidArgument, tErr.Error())
		}
	case errors.Is(err, booking.ErrSlotUnavailable), errors.Is(err, store.ErrConflict):
		log.Info("slot unavailable", slog.Any("err", err))
		return status.Error(codes.FailedPrecondition, msgSlotTaken)
	case errors.Is(err, booking.ErrHoldExpired):
		log.Info("hold expired", slog.Any("err", err))
		return status.Error(codes.FailedPrecondition, msgHoldExpired)
	case errors.Is(err, booking.ErrHoldNotOwned):
		log.Info("hold not owned", slog.Any("err", err))
		return status.Error(codes.PermissionDenied, msgHoldNotOwned)
	case errors.Is(err, store.ErrVersionConflict):
		log.Info("version conflict", slog.Any("err", err))
		return status.Error(codes.Aborted, msgVersionConflict)
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info("idempotency conflict", slog.Any("err", err))
		return status.Error(codes.FailedPrecondition, msgKeyReused)
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, domain.ErrInvalidDate), errors.Is(err, domain.ErrInvalidClock),
		errors.Is(err, domain.ErrInvalidInterval), errors.Is(err, domain.ErrInvalidDuration),
		errors.Is(err, domain.ErrInvalidSchedule):
		log.Warn("invalid request", slog.Any("err", err))
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("request timed out", slog.Any("err", err))
		return status.Error(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	}

	log.Error("request failed", slog.Any("err", err))
	return status.Error(codes.Internal, "internal error")
}
