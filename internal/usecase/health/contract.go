package health

import "context"

// StorePinger checks state store availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// PeriodKeeper persists a pending period rollover.
type PeriodKeeper interface {
	EnsureCurrentPeriod(ctx context.Context) error
}

// ProviderChecker checks completion provider availability.
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}
