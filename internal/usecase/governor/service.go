package governor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tokgov/internal/domain"
	domgov "github.com/kailas-cloud/tokgov/internal/domain/governor"
	"github.com/kailas-cloud/tokgov/internal/domain/governor/mode"
	"github.com/kailas-cloud/tokgov/internal/domain/governor/priority"
	"github.com/kailas-cloud/tokgov/internal/metrics"
)

// Governor is the admission-control and accounting engine for the daily token budget.
//
// All state lives behind one mutex. Read paths (CanConsume, CurrentMode, Status,
// Reserve) never touch the store: a pending rollover is applied in memory and
// written by the next RecordConsumption/Settle or by the period watcher.
// Write paths persist before returning; a failed write restores the last
// durably saved state.
type Governor struct {
	mu sync.Mutex

	cfg            domgov.Config
	store          Store
	clock          Clock
	loc            *time.Location
	writeTimeout   time.Duration
	reservationTTL time.Duration
	logger         *zap.Logger

	state   domgov.State // what callers observe
	saved   domgov.State // last state the store acknowledged
	pending bool         // state differs from saved only by a rollover

	reservations map[string]*reservation
	reserved     int64 // sum of holds made in the current period
}

// New creates a Governor and loads its state from the store.
// A missing, corrupt or unreadable record starts a fresh period instead of failing.
func New(ctx context.Context, cfg domgov.Config, store Store, logger *zap.Logger, opts ...Option) (*Governor, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("governor: store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Governor{
		cfg:            cfg,
		store:          store,
		clock:          SystemClock,
		loc:            time.UTC,
		writeTimeout:   defaultWriteTimeout,
		reservationTTL: defaultReservationTTL,
		logger:         logger,
		reservations:   make(map[string]*reservation),
	}
	for _, o := range opts {
		o(g)
	}

	g.load(ctx)
	metrics.GovernorDailyBudget.Set(float64(cfg.DailyBudget))
	g.publish()
	return g, nil
}

func (g *Governor) load(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	today := g.today()
	st, err := g.store.Load(ctx)
	switch {
	case err == nil:
		g.state, g.saved = st, st
		g.logger.Info("Governor state loaded",
			zap.Int64("tokens_used", st.TokensUsed),
			zap.String("last_reset", string(st.LastReset)),
		)
	case errors.Is(err, domain.ErrStateNotFound), errors.Is(err, domain.ErrCorruptState):
		g.logger.Warn("Starting fresh accounting period", zap.Error(err))
		g.state = domgov.Fresh(today)
		g.saved = g.state
		g.pending = true
		if err := g.persist(ctx); err != nil {
			g.logger.Warn("Failed to save initial governor state", zap.Error(err))
		}
		return
	default:
		// Transient read failure: keep the stored record untouched.
		metrics.GovernorPersistenceErrorsTotal.WithLabelValues("load").Inc()
		g.logger.Warn("Failed to load governor state, starting fresh in memory", zap.Error(err))
		g.state = domgov.Fresh(today)
		g.saved = g.state
		return
	}

	g.ensureCurrentPeriod()
}

// today returns the reference-clock calendar day.
func (g *Governor) today() domgov.Day {
	return domgov.DayOf(g.clock.Now(), g.loc)
}

// ensureCurrentPeriod rolls the in-memory state over when the day changed.
// It is the only path that decreases TokensUsed. Caller holds g.mu.
func (g *Governor) ensureCurrentPeriod() domgov.Day {
	today := g.today()
	next, rolled := g.state.Rolled(today)
	if !rolled {
		return today
	}

	g.logger.Info("Accounting period rolled over",
		zap.String("from", string(g.state.LastReset)),
		zap.String("to", string(today)),
		zap.Int64("tokens_used", g.state.TokensUsed),
	)
	g.state = next
	g.pending = true
	g.reserved = 0 // holds from the previous period no longer narrow admission
	return today
}

// EnsureCurrentPeriod applies and durably saves a pending rollover.
func (g *Governor) EnsureCurrentPeriod(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.ensureCurrentPeriod()
	if !g.pending {
		return nil
	}
	if err := g.persist(ctx); err != nil {
		return err
	}
	g.publish()
	return nil
}

// persist saves g.state. On failure it restores g.saved. Caller holds g.mu.
func (g *Governor) persist(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.writeTimeout)
	defer cancel()

	if err := g.store.Save(ctx, g.state); err != nil {
		metrics.GovernorPersistenceErrorsTotal.WithLabelValues("save").Inc()
		g.logger.Error("Failed to persist governor state",
			zap.Int64("tokens_used", g.state.TokensUsed),
			zap.String("last_reset", string(g.state.LastReset)),
			zap.Error(err),
		)
		g.state = g.saved
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	g.markSaved(g.state)
	return nil
}

// markSaved records st as durably stored. A saved day change counts once
// as a rollover. Caller holds g.mu.
func (g *Governor) markSaved(st domgov.State) {
	if g.saved.LastReset.Before(st.LastReset) {
		metrics.GovernorRolloversTotal.Inc()
	}
	g.state, g.saved = st, st
	g.pending = false
}

// CanConsume reports whether estimate tokens at priority p fit the remaining budget.
// It is a pure in-memory query: calling it repeatedly yields the same answer
// until usage changes. Outstanding reservation holds count against the limit.
func (g *Governor) CanConsume(_ context.Context, estimate int64, p priority.Priority) (bool, error) {
	if err := validateAmount("estimate", estimate); err != nil {
		return false, err
	}
	if !p.IsValid() {
		return false, fmt.Errorf("%w: %q", domain.ErrUnknownPriority, p)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.ensureCurrentPeriod()
	ok := g.admits(estimate, p)
	observeAdmission(p, ok)
	return ok, nil
}

// admits applies the admission rule. The sum is never formed in int64:
// the estimate is compared against the headroom left under the limit.
// Caller holds g.mu.
func (g *Governor) admits(estimate int64, p priority.Priority) bool {
	headroom := g.cfg.Limit(p) - float64(g.state.TokensUsed) - float64(g.reserved)
	return float64(estimate) <= headroom
}

// RecordConsumption durably adds actual tokens to the current period.
// The limit is not re-checked: actuals are authoritative even when they overrun.
// An error wrapping domain.ErrPersistence means the usage was NOT recorded.
func (g *Governor) RecordConsumption(ctx context.Context, actual int64) error {
	if err := validateAmount("actual", actual); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	return g.record(ctx, actual)
}

// record applies actual to the state and persists it. Caller holds g.mu.
func (g *Governor) record(ctx context.Context, actual int64) error {
	today := g.ensureCurrentPeriod()

	if rec, ok := g.store.(AtomicRecorder); ok {
		if err := g.recordAtomic(ctx, rec, today, actual); err != nil {
			return err
		}
	} else {
		next, err := g.state.Add(actual)
		if err != nil {
			return err
		}
		g.state = next
		if err := g.persist(ctx); err != nil {
			return err
		}
	}

	metrics.GovernorRecordedTokensTotal.Add(float64(actual))
	g.publish()
	g.logger.Debug("Consumption recorded",
		zap.Int64("tokens", actual),
		zap.Int64("tokens_used", g.state.TokensUsed),
	)
	return nil
}

// recordAtomic lets a shared store apply the increment; the store's answer
// becomes the in-memory state. Caller holds g.mu.
func (g *Governor) recordAtomic(ctx context.Context, rec AtomicRecorder, today domgov.Day, actual int64) error {
	ctx, cancel := context.WithTimeout(ctx, g.writeTimeout)
	defer cancel()

	st, err := rec.Record(ctx, today, actual)
	if errors.Is(err, domain.ErrInvalidAmount) {
		return err
	}
	if err != nil {
		metrics.GovernorPersistenceErrorsTotal.WithLabelValues("record").Inc()
		g.logger.Error("Failed to record consumption in shared store",
			zap.Int64("tokens", actual),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	if st.LastReset != g.state.LastReset {
		g.reserved = 0
	}
	g.markSaved(st)
	return nil
}

// CurrentMode returns the mode derived from current usage.
func (g *Governor) CurrentMode(_ context.Context) mode.Mode {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.ensureCurrentPeriod()
	return g.mode()
}

func (g *Governor) mode() mode.Mode {
	return mode.For(g.state.TokensUsed, g.cfg.DailyBudget, g.cfg.SaverModeThreshold)
}

// Status returns a read-only snapshot.
func (g *Governor) Status(_ context.Context) domgov.Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.ensureCurrentPeriod()
	used := g.state.TokensUsed
	remaining := g.cfg.DailyBudget - used
	if remaining < 0 {
		remaining = 0
	}
	return domgov.Status{
		TokensUsed:           used,
		DailyBudget:          g.cfg.DailyBudget,
		Mode:                 g.mode(),
		CompletionPercentage: 100 * float64(used) / float64(g.cfg.DailyBudget),
		Remaining:            remaining,
		Reserved:             g.reserved,
		LowPriorityLimit:     int64(g.cfg.Limit(priority.Low)),
		EstimatedCost:        g.cfg.Cost(used),
		PeriodStart:          g.state.LastReset,
		StartsAt:             g.state.LastReset.Start(g.loc),
		ResetsAt:             g.state.LastReset.Next(g.loc).Start(g.loc),
	}
}

// Config returns the immutable configuration.
func (g *Governor) Config() domgov.Config { return g.cfg }

// publish mirrors the state into gauges. Caller holds g.mu.
func (g *Governor) publish() {
	metrics.GovernorTokensUsed.Set(float64(g.state.TokensUsed))
	metrics.GovernorReservedTokens.Set(float64(g.reserved))
	saver := 0.0
	if g.mode() == mode.Saver {
		saver = 1
	}
	metrics.GovernorSaverMode.Set(saver)
}

func observeAdmission(p priority.Priority, ok bool) {
	result := "refused"
	if ok {
		result = "admitted"
	}
	metrics.GovernorAdmissionsTotal.WithLabelValues(string(p), result).Inc()
}

func validateAmount(name string, v int64) error {
	if v < 0 {
		return fmt.Errorf("%w: %s must not be negative, got %d", domain.ErrInvalidAmount, name, v)
	}
	return nil
}
