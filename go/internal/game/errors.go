package game

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/ankianan/passingstone/go/internal/models"
)

// connectError maps the game error taxonomy onto connect codes
func connectError(err error) *connect.Error {
	var ce *connect.Error
	if errors.As(err, &ce) {
		return ce
	}

	code := connect.CodeInternal
	switch {
	case errors.Is(err, models.ErrRoomNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, models.ErrDuplicateGuess):
		code = connect.CodeAlreadyExists
	case errors.Is(err, models.ErrNotParticipant):
		code = connect.CodePermissionDenied
	case errors.Is(err, models.ErrIllegalTransition),
		errors.Is(err, models.ErrInvalidPhaseTransition),
		errors.Is(err, models.ErrInsufficientParticipants),
		errors.Is(err, models.ErrRoomClosed):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, models.ErrInvalidArgument):
		code = connect.CodeInvalidArgument
	case errors.Is(err, models.ErrJoinCodeExhausted):
		code = connect.CodeResourceExhausted
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	}
	return connect.NewError(code, err)
}
