package tokgov

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

const (
	driverFile   = "file"
	driverBadger = "badger"
	driverRedis  = "redis"
	driverValkey = "valkey"
)

type clientConfig struct {
	driver     string
	path       string // file path or badger directory
	addrs      []string
	password   string
	keyPrefix  string
	standalone bool

	budget          int64
	lowFraction     float64
	saverThreshold  float64
	costPerThousand float64
	timezone        string
	reservationTTL  time.Duration
	now             func() time.Time

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithFile persists state as a JSON file at path.
func WithFile(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverFile
		c.path = path
	})
}

// WithBadger persists state in an embedded Badger database under dir.
func WithBadger(dir string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverBadger
		c.path = dir
	})
}

// WithValkey shares state through a Valkey instance.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverValkey
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithRedis shares state through a Redis instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverRedis
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithStandalone disables cluster topology discovery.
func WithStandalone() Option {
	return optionFunc(func(c *clientConfig) {
		c.standalone = true
	})
}

// WithKeyPrefix sets the Redis/Valkey key prefix. Default: "tokgov:".
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.keyPrefix = prefix
	})
}

// WithBudget sets the daily token budget. Required.
func WithBudget(tokens int64) Option {
	return optionFunc(func(c *clientConfig) {
		c.budget = tokens
	})
}

// WithLowPriorityFraction caps LOW priority admission at fraction*budget.
// Default: 0.5.
func WithLowPriorityFraction(fraction float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.lowFraction = fraction
	})
}

// WithSaverThreshold switches to SAVER mode above threshold*budget.
// Default: 0.8.
func WithSaverThreshold(threshold float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.saverThreshold = threshold
	})
}

// WithCostPerThousand sets the advisory cost per 1000 tokens reported in Status.
func WithCostPerThousand(cost float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.costPerThousand = cost
	})
}

// WithTimezone sets the IANA zone whose midnight starts a new period.
// Default: UTC.
func WithTimezone(name string) Option {
	return optionFunc(func(c *clientConfig) {
		c.timezone = name
	})
}

// WithReservationTTL sets how long an unsettled reservation holds budget.
// Default: 15 minutes.
func WithReservationTTL(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.reservationTTL = d
	})
}

// WithClock replaces the wall clock used for period boundaries.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(c *clientConfig) {
		c.now = now
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithMetrics registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithMetrics(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
