package governor

import (
	"context"
	"time"

	domgov "github.com/kailas-cloud/tokgov/internal/domain/governor"
)

// Store is the persistence substrate holding exactly one governor state.
// Load returns domain.ErrStateNotFound when nothing was saved yet and
// domain.ErrCorruptState when the stored record cannot be parsed.
type Store interface {
	Load(ctx context.Context) (domgov.State, error)
	Save(ctx context.Context, s domgov.State) error
}

// AtomicRecorder is implemented by stores shared between processes.
// Record rolls the stored state to day when it is older, adds delta and
// returns the resulting state, all in one atomic step on the store side.
type AtomicRecorder interface {
	Record(ctx context.Context, day domgov.Day, delta int64) (domgov.State, error)
}

// Clock is the single time source for day-boundary decisions.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)
