package governor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tokgov/internal/domain"
	domgov "github.com/kailas-cloud/tokgov/internal/domain/governor"
	"github.com/kailas-cloud/tokgov/internal/domain/governor/priority"
	"github.com/kailas-cloud/tokgov/internal/metrics"
)

// Reservation is an admitted hold on part of the remaining budget.
type Reservation struct {
	ID        string
	Estimate  int64
	Priority  priority.Priority
	Period    domgov.Day
	ExpiresAt time.Time
}

// reservation is the in-memory hold. Holds are process-local and not persisted.
type reservation struct {
	Reservation
	createdAt time.Time
}

// Reserve admits estimate at priority p and holds it until Settle or Release.
// Unlike CanConsume followed by RecordConsumption, concurrent Reserve calls
// cannot be admitted against the same headroom.
func (g *Governor) Reserve(_ context.Context, estimate int64, p priority.Priority) (Reservation, bool, error) {
	if err := validateAmount("estimate", estimate); err != nil {
		return Reservation{}, false, err
	}
	if !p.IsValid() {
		return Reservation{}, false, fmt.Errorf("%w: %q", domain.ErrUnknownPriority, p)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.ensureCurrentPeriod()
	ok := g.admits(estimate, p)
	observeAdmission(p, ok)
	if !ok {
		return Reservation{}, false, nil
	}

	now := g.clock.Now()
	r := &reservation{
		Reservation: Reservation{
			ID:        uuid.NewString(),
			Estimate:  estimate,
			Priority:  p,
			Period:    g.state.LastReset,
			ExpiresAt: now.Add(g.reservationTTL),
		},
		createdAt: now,
	}
	g.reservations[r.ID] = r
	g.reserved += estimate
	metrics.GovernorReservedTokens.Set(float64(g.reserved))

	return r.Reservation, true, nil
}

// Settle releases the hold and durably records the actual cost.
// On a persistence failure the hold is restored so the caller can retry.
func (g *Governor) Settle(ctx context.Context, id string, actual int64) error {
	if err := validateAmount("actual", actual); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.reservations[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrReservationNotFound, id)
	}

	g.ensureCurrentPeriod()
	g.drop(r)

	if err := g.record(ctx, actual); err != nil {
		g.restore(r)
		return err
	}
	return nil
}

// Release drops the hold without recording anything.
func (g *Governor) Release(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.reservations[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrReservationNotFound, id)
	}

	g.ensureCurrentPeriod()
	g.drop(r)
	metrics.GovernorReservedTokens.Set(float64(g.reserved))
	return nil
}

// drop removes r and its hold. Caller holds g.mu.
func (g *Governor) drop(r *reservation) {
	delete(g.reservations, r.ID)
	if r.Period == g.state.LastReset {
		g.reserved -= r.Estimate
	}
}

// restore undoes drop. Caller holds g.mu.
func (g *Governor) restore(r *reservation) {
	g.reservations[r.ID] = r
	if r.Period == g.state.LastReset {
		g.reserved += r.Estimate
	}
}

// ExpireReservations releases holds whose TTL elapsed and returns how many.
func (g *Governor) ExpireReservations() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.ensureCurrentPeriod()
	now := g.clock.Now()
	expired := 0
	for _, r := range g.reservations {
		if now.Before(r.ExpiresAt) {
			continue
		}
		g.drop(r)
		expired++
		g.logger.Warn("Reservation expired without settlement",
			zap.String("id", r.ID),
			zap.Int64("estimate", r.Estimate),
			zap.Duration("age", now.Sub(r.createdAt)),
		)
	}
	if expired > 0 {
		metrics.GovernorReservedTokens.Set(float64(g.reserved))
	}
	return expired
}

// Outstanding returns the number of unsettled reservations.
func (g *Governor) Outstanding() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.reservations)
}
