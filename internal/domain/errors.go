package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every domain error unwraps to exactly one of these.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("unavailable")
)

var (
	ErrCircleNotFound      = newError(ErrNotFound, "Circle not found")
	ErrCircleClosed        = newError(ErrConflict, "Circle is no longer active")
	ErrCircleFull          = newError(ErrConflict, "Circle is full")
	ErrCircleQuotaExceeded = newError(ErrConflict, "You already have an active circle")
	ErrInvalidJoinCode     = newError(ErrForbidden, "Invalid join code")
	ErrNotCircleMember     = newError(ErrForbidden, "You are not a member of this circle")
	ErrNotCircleHost       = newError(ErrForbidden, "Only the host can perform this action")
	ErrDuplicateJoinCode   = newError(ErrConflict, "Join code already in use")
	ErrDuplicateChannel    = newError(ErrConflict, "Channel name already in use")
	ErrJoinCodeExhausted   = newError(ErrUnavailable, "Could not allocate a unique join code, please try again")
	ErrAudioUnavailable    = newError(ErrUnavailable, "Audio is not available right now")

	ErrSessionNotFound    = newError(ErrNotFound, "Game session not found")
	ErrSessionEnded       = newError(ErrConflict, "Game session has ended")
	ErrGameTypeMismatch   = newError(ErrConflict, "Game type does not match this circle")
	ErrNotPlayer          = newError(ErrForbidden, "You are not a player in this game")
	ErrInvalidTransition  = newError(ErrConflict, "Game cannot move to that state")
	ErrUnauthenticated    = newError(ErrForbidden, "Missing or invalid authentication")
	ErrInvalidGameDataKey = newError(ErrInvalidInput, "Game data keys must not be empty, contain '.' or start with '$'")
)

type kindError struct {
	kind error
	msg  string
}

func newError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

func (e *kindError) Error() string {
	return e.msg
}

func (e *kindError) Unwrap() error {
	return e.kind
}

// Validationf builds an input error whose message is shown to the caller as is.
func Validationf(format string, args ...any) error {
	return newError(ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Conflictf builds a conflict error whose message is shown to the caller as is.
func Conflictf(format string, args ...any) error {
	return newError(ErrConflict, fmt.Sprintf(format, args...))
}

// IsKnown reports whether err carries one of the domain kinds.
func IsKnown(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrUnavailable)
}
