package usage

import (
	"github.com/kailas-cloud/tokgov/internal/domain/governor/mode"
	"github.com/kailas-cloud/tokgov/internal/domain/usage/budget"
	"github.com/kailas-cloud/tokgov/internal/domain/usage/metrics"
)

// Period is the aggregation granularity.
type Period string

// PeriodDay is the only accounting period: the reference-timezone calendar day.
const PeriodDay Period = "day"

// Report is a token usage report for the active accounting period.
type Report struct {
	period      Period
	periodStart int64
	periodEnd   int64
	mode        mode.Mode
	metrics     metrics.Metrics
	budget      budget.Budget
}

// NewReport creates a usage report.
func NewReport(period Period, start, end int64, md mode.Mode, m metrics.Metrics, b budget.Budget) Report {
	return Report{
		period:      period,
		periodStart: start,
		periodEnd:   end,
		mode:        md,
		metrics:     m,
		budget:      b,
	}
}

// Period returns the aggregation granularity.
func (r *Report) Period() Period { return r.period }

// PeriodStart returns the period start timestamp (unix millis).
func (r *Report) PeriodStart() int64 { return r.periodStart }

// PeriodEnd returns the period end timestamp (unix millis).
func (r *Report) PeriodEnd() int64 { return r.periodEnd }

// Mode returns the operating mode at report time.
func (r *Report) Mode() mode.Mode { return r.mode }

// Metrics returns the usage metrics.
func (r *Report) Metrics() metrics.Metrics { return r.metrics }

// Budget returns the budget status.
func (r *Report) Budget() budget.Budget { return r.budget }
