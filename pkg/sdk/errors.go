package tokgov

import "github.com/kailas-cloud/tokgov/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidAmount       = domain.ErrInvalidAmount
	ErrUnknownPriority     = domain.ErrUnknownPriority
	ErrInvalidConfig       = domain.ErrInvalidConfig
	ErrPersistence         = domain.ErrPersistence
	ErrReservationNotFound = domain.ErrReservationNotFound
)
