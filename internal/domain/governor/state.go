package governor

import (
	"fmt"
	"math"
	"time"

	"github.com/kailas-cloud/tokgov/internal/domain"
)

// dayLayout is the calendar-day wire format.
const dayLayout = "2006-01-02"

// Day is a calendar date (YYYY-MM-DD) in the reference timezone.
// Days in this format order lexicographically.
type Day string

// DayOf returns the calendar day of t in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	return Day(t.In(loc).Format(dayLayout))
}

// ParseDay validates a stored day string.
func ParseDay(s string) (Day, error) {
	if _, err := time.Parse(dayLayout, s); err != nil {
		return "", err //nolint:wrapcheck // caller adds context
	}
	return Day(s), nil
}

// Before reports whether d is an earlier calendar day than other.
func (d Day) Before(other Day) bool { return d < other }

// Start returns midnight of d in loc.
func (d Day) Start(loc *time.Location) time.Time {
	t, err := time.ParseInLocation(dayLayout, string(d), loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Next returns the following calendar day.
func (d Day) Next(loc *time.Location) Day {
	s := d.Start(loc)
	return Day(time.Date(s.Year(), s.Month(), s.Day()+1, 0, 0, 0, 0, loc).Format(dayLayout))
}

// State is the persisted accounting record.
type State struct {
	TokensUsed int64
	LastReset  Day
}

// Fresh returns the zero-usage state for a period starting on day.
func Fresh(day Day) State {
	return State{TokensUsed: 0, LastReset: day}
}

// Rolled returns the state as seen on day: a fresh state when day is later
// than LastReset, otherwise s unchanged. An earlier day never rolls back.
func (s State) Rolled(day Day) (State, bool) {
	if s.LastReset.Before(day) {
		return Fresh(day), true
	}
	return s, false
}

// Add returns s with delta more tokens used. A delta that would carry
// TokensUsed past math.MaxInt64 is refused with domain.ErrInvalidAmount.
func (s State) Add(delta int64) (State, error) {
	if delta < 0 {
		return s, fmt.Errorf("%w: delta must not be negative, got %d", domain.ErrInvalidAmount, delta)
	}
	if s.TokensUsed > math.MaxInt64-delta {
		return s, fmt.Errorf("%w: %d more tokens overflow tokens_used %d", domain.ErrInvalidAmount, delta, s.TokensUsed)
	}
	s.TokensUsed += delta
	return s, nil
}
