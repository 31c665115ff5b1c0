package domain

import "errors"

var (
	// ErrInvalidAmount signals a negative token estimate or actual.
	ErrInvalidAmount = errors.New("invalid token amount")
	// ErrUnknownPriority signals a priority tier the governor does not know.
	ErrUnknownPriority = errors.New("unknown priority")
	// ErrInvalidConfig signals an unusable governor configuration.
	ErrInvalidConfig = errors.New("invalid governor config")

	// ErrPersistence signals that usage could not be durably recorded.
	// The in-memory state is left at the last durably saved value.
	ErrPersistence = errors.New("usage not durably recorded")
	// ErrStateNotFound signals that the store holds no governor state yet.
	ErrStateNotFound = errors.New("governor state not found")
	// ErrCorruptState signals that stored governor state cannot be parsed.
	ErrCorruptState = errors.New("governor state corrupt")

	// ErrBudgetExceeded signals a refused admission (callers map it to "try later").
	ErrBudgetExceeded = errors.New("token budget exceeded")
	// ErrReservationNotFound signals an unknown or already finished reservation.
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrProviderError signals a completion provider failure.
	ErrProviderError = errors.New("completion provider error")
)
