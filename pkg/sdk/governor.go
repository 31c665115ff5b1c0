package tokgov

import (
	"context"
	"time"

	domgov "github.com/kailas-cloud/tokgov/internal/domain/governor"
	"github.com/kailas-cloud/tokgov/internal/domain/governor/mode"
	"github.com/kailas-cloud/tokgov/internal/domain/governor/priority"
)

// Priority is the importance tier of a request.
type Priority = priority.Priority

// Priority constants.
const (
	PriorityNormal = priority.Normal
	PriorityLow    = priority.Low
)

// ParsePriority converts user input into a Priority. Empty means PriorityNormal;
// matching is case-insensitive.
func ParsePriority(s string) (Priority, error) {
	return priority.Parse(s)
}

// Mode is the governor operating mode.
type Mode = mode.Mode

// Mode constants.
const (
	ModePerformance = mode.Performance
	ModeSaver       = mode.Saver
)

// Status is a read-only snapshot of the governor.
type Status struct {
	TokensUsed           int64
	DailyBudget          int64
	Mode                 Mode
	CompletionPercentage float64
	Remaining            int64
	Reserved             int64
	LowPriorityLimit     int64
	EstimatedCost        float64
	PeriodStart          string // YYYY-MM-DD
	ResetsAt             time.Time
}

// Reservation is an admitted hold on part of the remaining budget.
type Reservation struct {
	ID        string
	Estimate  int64
	Priority  Priority
	Period    string
	ExpiresAt time.Time
}

// CanConsume reports whether estimate tokens at priority p fit the remaining budget.
// It never records anything.
func (c *Client) CanConsume(ctx context.Context, estimate int64, p Priority) (ok bool, err error) {
	start := time.Now()
	defer func() {
		c.obs.observe("can_consume", start, err, "estimate", estimate, "priority", p, "admitted", ok)
	}()

	ok, err = c.gov.CanConsume(ctx, estimate, p)
	if err == nil {
		c.obs.admission("can_consume", p, ok)
	}
	return ok, err
}

// RecordConsumption durably adds actual tokens to today's usage.
// An error wrapping ErrPersistence means nothing was recorded.
func (c *Client) RecordConsumption(ctx context.Context, actual int64) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("record_consumption", start, err, "tokens", actual) }()

	if err = c.gov.RecordConsumption(ctx, actual); err == nil {
		c.obs.recordedTokens(actual)
	}
	return err
}

// Mode returns the current operating mode.
func (c *Client) Mode(ctx context.Context) Mode {
	return c.gov.CurrentMode(ctx)
}

// Status returns a snapshot of usage, limits and mode.
func (c *Client) Status(ctx context.Context) Status {
	return statusFromDomain(c.gov.Status(ctx))
}

// Reserve admits estimate at priority p and holds it until Settle or Release.
// ok is false when the budget cannot fit the estimate.
func (c *Client) Reserve(ctx context.Context, estimate int64, p Priority) (r Reservation, ok bool, err error) {
	start := time.Now()
	defer func() {
		c.obs.observe("reserve", start, err, "estimate", estimate, "priority", p, "admitted", ok, "id", r.ID)
	}()

	res, ok, err := c.gov.Reserve(ctx, estimate, p)
	if err != nil {
		return Reservation{}, false, err
	}
	c.obs.admission("reserve", p, ok)
	if !ok {
		return Reservation{}, false, nil
	}
	return Reservation{
		ID:        res.ID,
		Estimate:  res.Estimate,
		Priority:  res.Priority,
		Period:    string(res.Period),
		ExpiresAt: res.ExpiresAt,
	}, true, nil
}

// Settle releases the reservation and records the actual cost.
func (c *Client) Settle(ctx context.Context, id string, actual int64) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("settle", start, err, "id", id, "tokens", actual) }()

	if err = c.gov.Settle(ctx, id, actual); err == nil {
		c.obs.recordedTokens(actual)
	}
	return err
}

// Release drops the reservation without recording anything.
func (c *Client) Release(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("release", start, err, "id", id) }()

	return c.gov.Release(ctx, id)
}

// EnsureCurrentPeriod persists a pending day rollover.
// Long-running callers that rarely record usage can call it periodically.
func (c *Client) EnsureCurrentPeriod(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ensure_period", start, err) }()

	return c.gov.EnsureCurrentPeriod(ctx)
}

func statusFromDomain(st domgov.Status) Status {
	return Status{
		TokensUsed:           st.TokensUsed,
		DailyBudget:          st.DailyBudget,
		Mode:                 st.Mode,
		CompletionPercentage: st.CompletionPercentage,
		Remaining:            st.Remaining,
		Reserved:             st.Reserved,
		LowPriorityLimit:     st.LowPriorityLimit,
		EstimatedCost:        st.EstimatedCost,
		PeriodStart:          string(st.PeriodStart),
		ResetsAt:             st.ResetsAt,
	}
}
