package tokgov

import (
	"context"
	"time"

	domusage "github.com/kailas-cloud/tokgov/internal/domain/usage"
)

// UsageReport contains token usage for the current period.
type UsageReport struct {
	Period      string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Mode        Mode
	Metrics     UsageMetrics
	Budget      BudgetStatus
}

// UsageMetrics tracks token consumption.
type UsageMetrics struct {
	Tokens           int64
	CostMillidollars int64
}

// BudgetStatus tracks token quota state.
type BudgetStatus struct {
	TokensLimit      int64
	TokensRemaining  int64
	LowPriorityLimit int64
	IsExhausted      bool
	ResetsAt         time.Time
}

// Usage returns a usage report for the current day.
// Observer always records success: the report is built in memory.
func (c *Client) Usage(ctx context.Context) UsageReport {
	start := time.Now()
	defer func() { c.obs.observe("usage", start, nil) }()

	report := c.usageSvc.GetReport(ctx)
	m := report.Metrics()
	b := report.Budget()

	return UsageReport{
		Period:      string(report.Period()),
		PeriodStart: time.UnixMilli(report.PeriodStart()).UTC(),
		PeriodEnd:   time.UnixMilli(report.PeriodEnd()).UTC(),
		Mode:        report.Mode(),
		Metrics: UsageMetrics{
			Tokens:           m.Tokens(),
			CostMillidollars: m.CostMillidollars(),
		},
		Budget: BudgetStatus{
			TokensLimit:      b.TokensLimit(),
			TokensRemaining:  b.TokensRemaining(),
			LowPriorityLimit: b.LowPriorityLimit(),
			IsExhausted:      b.IsExhausted(),
			ResetsAt:         time.UnixMilli(b.ResetsAt()).UTC(),
		},
	}
}

// usageUseCase is the internal interface for usage reports.
type usageUseCase interface {
	GetReport(ctx context.Context) domusage.Report
}
