package models

import "errors"

var (
	// ErrIllegalTransition is returned when a stone move is not permitted for the
	// caller in the current state.
	ErrIllegalTransition = errors.New("illegal transition")
	// ErrInvalidPhaseTransition is returned for duplicate or out-of-order phase
	// triggers. Callers treat it as an idempotent no-op.
	ErrInvalidPhaseTransition   = errors.New("invalid phase transition")
	ErrInsufficientParticipants = errors.New("insufficient participants")
	ErrRoomClosed               = errors.New("room closed")
	ErrRoomNotFound             = errors.New("room not found")
	ErrDuplicateGuess           = errors.New("duplicate guess")
	ErrNotParticipant           = errors.New("not a participant")
	ErrJoinCodeExhausted        = errors.New("join code space exhausted")
	ErrInvalidArgument          = errors.New("invalid argument")
)
