package governor

import "time"

const (
	defaultWriteTimeout   = 2 * time.Second
	defaultReservationTTL = 15 * time.Minute
)

// Option configures a Governor.
type Option func(*Governor)

// WithClock replaces the wall clock (tests simulate rollover with it).
func WithClock(c Clock) Option {
	return func(g *Governor) {
		if c != nil {
			g.clock = c
		}
	}
}

// WithLocation sets the reference timezone for calendar days. Default UTC.
func WithLocation(loc *time.Location) Option {
	return func(g *Governor) {
		if loc != nil {
			g.loc = loc
		}
	}
}

// WithWriteTimeout bounds every durable write.
func WithWriteTimeout(d time.Duration) Option {
	return func(g *Governor) {
		if d > 0 {
			g.writeTimeout = d
		}
	}
}

// WithReservationTTL sets how long an unsettled reservation keeps its hold.
func WithReservationTTL(d time.Duration) Option {
	return func(g *Governor) {
		if d > 0 {
			g.reservationTTL = d
		}
	}
}
