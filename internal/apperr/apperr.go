// Package apperr defines the error taxonomy shared by the reservation and scheduling
// services. Every rejection carries a stable Code and a human-readable Message so that
// expected outcomes such as a full session are distinguishable from real failures.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindForbidden
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// HTTPStatus maps the kind to a response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified application error.
type Error struct {
	Kind    Kind
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

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so that a wrapped copy of a sentinel still satisfies errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Wrap returns a copy of e carrying err as its cause.
func (e *Error) Wrap(err error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: err}
}

// New creates a classified error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Validation builds a ValidationError with a formatted message.
func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Code: "invalid_input", Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected failure, typically from storage.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Code: "internal", Message: msg, Err: err}
}

// KindOf returns the Kind of err, or KindInternal if err is not classified.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// As extracts the classified error, classifying unknown errors as internal.
func As(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal("internal error", err)
}

var (
	ErrUnauthenticated = New(KindAuth, "unauthenticated", "missing or invalid credentials")

	ErrSessionNotFound = New(KindNotFound, "session_not_found", "session not found")
	ErrMatchNotFound   = New(KindNotFound, "match_not_found", "match not found")

	ErrCancelled        = New(KindConflict, "cancelled", "session has been cancelled")
	ErrFull             = New(KindConflict, "full", "session is full")
	ErrAlreadyAdmitted  = New(KindConflict, "already_admitted", "player has already joined this session")
	ErrAlreadyStarted   = New(KindConflict, "already_started", "session has already started")
	ErrNotStarted       = New(KindConflict, "not_started", "session has not started")
	ErrNotParticipating = New(KindConflict, "not_participating", "player is not in this session")
	ErrRosterChanged    = New(KindConflict, "roster_changed", "participants changed while the event was starting")

	ErrFriendsOnly      = New(KindForbidden, "friends_only", "session is restricted to friends of the owner")
	ErrNotParticipant   = New(KindForbidden, "not_a_participant", "only participants can invite players")
	ErrNotOwner         = New(KindForbidden, "not_owner", "only the session owner can do that")
	ErrNotInMatch       = New(KindForbidden, "not_in_match", "only the owner or players in the match can submit scores")
	ErrOwnerCannotLeave = New(KindForbidden, "owner_cannot_leave", "the session owner cannot leave")

	ErrNotEnoughPlayers = New(KindValidation, "not_enough_players", "not enough players to start")

	// ErrCapacityLeak means a seat was claimed but neither the participant row nor the
	// compensating release could be written.
	ErrCapacityLeak = New(KindInternal, "capacity_leak", "failed to release a claimed seat")
)
