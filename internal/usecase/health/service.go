package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates usage can no longer be recorded.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Check names.
const (
	CheckStateStore = "state_store"
	CheckGovernor   = "governor"
	CheckProvider   = "provider"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	store    StorePinger
	period   PeriodKeeper
	provider ProviderChecker
}

// New creates a Service. period and provider can be nil.
func New(store StorePinger, period PeriodKeeper, provider ProviderChecker) *Service {
	return &Service{store: store, period: period, provider: provider}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	checks[CheckStateStore] = result(s.store.Ping(ctx))
	if s.period != nil {
		checks[CheckGovernor] = result(s.period.EnsureCurrentPeriod(ctx))
	}
	if s.provider != nil {
		checks[CheckProvider] = result(s.provider.HealthCheck(ctx))
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if checks[CheckStateStore] == CheckError && checks[CheckGovernor] != CheckOK {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
