package usage

import (
	"context"
	"math"

	domusage "github.com/kailas-cloud/tokgov/internal/domain/usage"
	"github.com/kailas-cloud/tokgov/internal/domain/usage/budget"
	"github.com/kailas-cloud/tokgov/internal/domain/usage/metrics"
)

// Service handles usage reporting.
type Service struct {
	sr StatusReader
}

// New creates a Service.
func New(sr StatusReader) *Service {
	return &Service{sr: sr}
}

// GetReport builds a usage report for the active accounting day.
func (s *Service) GetReport(ctx context.Context) domusage.Report {
	st := s.sr.Status(ctx)

	start := st.StartsAt.UnixMilli()
	end := st.ResetsAt.UnixMilli()

	exhausted := st.DailyBudget > 0 && st.Remaining <= 0
	b := budget.New(st.DailyBudget, st.Remaining, st.LowPriorityLimit, exhausted, end)
	m := metrics.New(st.TokensUsed, int64(math.Round(st.EstimatedCost*1000)))

	return domusage.NewReport(domusage.PeriodDay, start, end, st.Mode, m, b)
}
