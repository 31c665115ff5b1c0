package governor

import (
	"time"

	"github.com/kailas-cloud/tokgov/internal/domain/governor/mode"
)

// Status is a read-only snapshot of the governor.
type Status struct {
	TokensUsed           int64
	DailyBudget          int64
	Mode                 mode.Mode
	CompletionPercentage float64 // may exceed 100 when actuals overran estimates
	Remaining            int64   // clamped at 0
	Reserved             int64
	LowPriorityLimit     int64
	EstimatedCost        float64
	PeriodStart          Day
	StartsAt             time.Time // midnight opening PeriodStart
	ResetsAt             time.Time // next midnight
}
