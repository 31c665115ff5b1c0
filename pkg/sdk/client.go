package tokgov

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	dbRedis "github.com/kailas-cloud/tokgov/internal/db/redis"
	domgov "github.com/kailas-cloud/tokgov/internal/domain/governor"
	"github.com/kailas-cloud/tokgov/internal/domain/governor/mode"
	"github.com/kailas-cloud/tokgov/internal/domain/governor/priority"
	budgetrepo "github.com/kailas-cloud/tokgov/internal/repository/budget"
	governoruc "github.com/kailas-cloud/tokgov/internal/usecase/governor"
	healthuc "github.com/kailas-cloud/tokgov/internal/usecase/health"
	usageuc "github.com/kailas-cloud/tokgov/internal/usecase/usage"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultKeyPrefix        = "tokgov:"
)

// Internal interfaces so tests can substitute the governor.
type governorUseCase interface {
	CanConsume(ctx context.Context, estimate int64, p priority.Priority) (bool, error)
	RecordConsumption(ctx context.Context, actual int64) error
	CurrentMode(ctx context.Context) mode.Mode
	Status(ctx context.Context) domgov.Status
	Reserve(ctx context.Context, estimate int64, p priority.Priority) (governoruc.Reservation, bool, error)
	Settle(ctx context.Context, id string, actual int64) error
	Release(ctx context.Context, id string) error
	EnsureCurrentPeriod(ctx context.Context) error
}

type stateStore interface {
	governoruc.Store
	healthuc.StorePinger
}

// Client is the tokgov SDK entry point.
type Client struct {
	store     stateStore
	closeFn   func() error
	gov       governorUseCase
	healthSvc healthUseCase
	usageSvc  usageUseCase
	obs       *observer
}

// New opens the configured store, loads the governor state and returns a Client.
// The provided context bounds the initial connection and load.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{keyPrefix: defaultKeyPrefix}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.driver == "" {
		return nil, errors.New("tokgov: state store required (use WithFile, WithBadger, WithRedis or WithValkey)")
	}
	if cfg.budget <= 0 {
		return nil, fmt.Errorf("%w: daily budget must be positive (use WithBudget)", ErrInvalidConfig)
	}

	loc := time.UTC
	if cfg.timezone != "" {
		l, err := time.LoadLocation(cfg.timezone)
		if err != nil {
			return nil, fmt.Errorf("%w: timezone %q: %w", ErrInvalidConfig, cfg.timezone, err)
		}
		loc = l
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	store, closeFn, err := createStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	govOpts := []governoruc.Option{governoruc.WithLocation(loc)}
	if cfg.now != nil {
		govOpts = append(govOpts, governoruc.WithClock(governoruc.ClockFunc(cfg.now)))
	}
	if cfg.reservationTTL > 0 {
		govOpts = append(govOpts, governoruc.WithReservationTTL(cfg.reservationTTL))
	}

	gov, err := governoruc.New(ctx, domgov.Config{
		DailyBudget:          cfg.budget,
		CostPerThousandUnits: cfg.costPerThousand,
		LowPriorityFraction:  cfg.lowFraction,
		SaverModeThreshold:   cfg.saverThreshold,
	}, store, zap.NewNop(), govOpts...)
	if err != nil {
		_ = closeFn()
		return nil, fmt.Errorf("tokgov: %w", err)
	}

	return &Client{
		store:     store,
		closeFn:   closeFn,
		gov:       gov,
		healthSvc: healthuc.New(store, gov, nil),
		usageSvc:  usageuc.New(gov),
		obs:       obs,
	}, nil
}

func createStore(ctx context.Context, cfg *clientConfig) (stateStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.driver {
	case driverFile:
		if cfg.path == "" {
			return nil, nil, errors.New("tokgov: file path required")
		}
		return budgetrepo.NewFileStore(cfg.path), noop, nil
	case driverBadger:
		bdb, err := budgetrepo.OpenBadger(cfg.path)
		if err != nil {
			return nil, nil, fmt.Errorf("tokgov: open badger: %w", err)
		}
		return budgetrepo.NewBadgerStore(bdb, ""), bdb.Close, nil
	case driverRedis, driverValkey:
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:      cfg.addrs,
			Password:   cfg.password,
			Standalone: cfg.standalone,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("tokgov: create %s store: %w", cfg.driver, err)
		}
		if err := s.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("tokgov: %s not ready: %w", cfg.driver, err)
		}
		return budgetrepo.NewKVStore(s, cfg.keyPrefix), func() error { s.Close(); return nil }, nil
	default:
		return nil, nil, fmt.Errorf("tokgov: unknown driver %q", cfg.driver)
	}
}

// Close persists a pending period rollover and releases the store.
func (c *Client) Close() error {
	if c.gov != nil {
		ctx, cancel := context.WithTimeout(context.Background(), defaultReadinessTimeout)
		defer cancel()
		_ = c.gov.EnsureCurrentPeriod(ctx)
	}
	if c.closeFn != nil {
		return c.closeFn()
	}
	return nil
}

// Ping checks state store connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}
