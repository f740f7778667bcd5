package domain

import (
	"errors"
	"fmt"
)

// Sentinel domain failures. All are caller-recoverable; storage and transport
// errors are wrapped separately and never masquerade as one of these.
var (
	ErrInvalidRange = errors.New("invalid date range")
	ErrRoomNotFound = errors.New("room not found")
	ErrNotFound     = errors.New("reservation not found")
	ErrStaleVersion = errors.New("stale version")
	ErrTerminal     = errors.New("reservation is in a terminal state")
)

// UnavailableError reports a booking conflict with the reservation(s) that
// currently hold the overlapping interval, so callers can show what blocks them.
type UnavailableError struct {
	RoomID      int64
	ConflictIDs []int64
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("room %d unavailable, conflicts with reservations %v", e.RoomID, e.ConflictIDs)
}

// IsUnavailable unwraps err as an UnavailableError.
func IsUnavailable(err error) (*UnavailableError, bool) {
	var ue *UnavailableError
	ok := errors.As(err, &ue)
	return ue, ok
}

// TransitionError reports an illegal status edge.
type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}

func IsIllegalTransition(err error) (*TransitionError, bool) {
	var te *TransitionError
	ok := errors.As(err, &te)
	return te, ok
}
