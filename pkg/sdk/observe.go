package tokgov

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation outcomes. "rejected" is bad caller input the governor refused
// without touching state; "error" is a store failure.
const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

// sdkMetrics holds the collectors an embedding process scrapes.
type sdkMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	admissions *prometheus.CounterVec
	recorded   prometheus.Counter
}

func newSDKMetrics(reg prometheus.Registerer) (*sdkMetrics, error) {
	m := &sdkMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tokgov",
			Subsystem: "sdk",
			Name:      "operations_total",
			Help:      "Governor calls by operation and outcome (ok, rejected, error).",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tokgov",
			Subsystem: "sdk",
			Name:      "operation_duration_seconds",
			Help:      "Governor call duration in seconds. Writes include the durable store round trip.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 2},
		}, []string{"operation"}),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tokgov",
			Subsystem: "sdk",
			Name:      "admissions_total",
			Help:      "Admission decisions by operation, priority and result.",
		}, []string{"operation", "priority", "result"}),
		recorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tokgov",
			Subsystem: "sdk",
			Name:      "recorded_tokens_total",
			Help:      "Tokens durably recorded through this process.",
		}),
	}
	if err := registerOrReuse(reg, &m.operations); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.duration); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.admissions); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.recorded); err != nil {
		return nil, err
	}
	return m, nil
}

// registerOrReuse registers a collector or adopts the one already registered,
// so several clients in one process share their series.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	if err := reg.Register(*c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			existing, ok := are.ExistingCollector.(T)
			if !ok {
				return fmt.Errorf("tokgov: metric already registered with incompatible type: %T", are.ExistingCollector)
			}
			*c = existing
			return nil
		}
		return fmt.Errorf("tokgov: register metric: %w", err)
	}
	return nil
}

// outcome classifies a governor error.
func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrUnknownPriority), errors.Is(err, ErrReservationNotFound):
		return outcomeRejected
	default:
		return outcomeError
	}
}

// observer logs and counts governor calls made through the client.
type observer struct {
	logger  *slog.Logger
	metrics *sdkMetrics
}

func newObserver(logger *slog.Logger, reg prometheus.Registerer) (*observer, error) {
	var m *sdkMetrics
	if reg != nil {
		var err error
		m, err = newSDKMetrics(reg)
		if err != nil {
			return nil, err
		}
	}
	return &observer{logger: logger, metrics: m}, nil
}

// observe records one call. attrs are added to the log line.
func (o *observer) observe(op string, start time.Time, err error, attrs ...any) {
	if o == nil {
		return
	}
	dur := time.Since(start)
	status := outcome(err)

	if o.metrics != nil {
		o.metrics.operations.WithLabelValues(op, status).Inc()
		o.metrics.duration.WithLabelValues(op).Observe(dur.Seconds())
	}

	if o.logger == nil {
		return
	}
	args := append([]any{"op", op, "duration", dur}, attrs...)
	switch status {
	case outcomeError:
		// Usage may be under-counted until the store recovers.
		o.logger.Error("governor store failure", append(args, "error", err)...)
	case outcomeRejected:
		o.logger.Warn("governor call rejected", append(args, "error", err)...)
	default:
		o.logger.Debug("governor call completed", args...)
	}
}

// admission counts a CanConsume or Reserve decision.
func (o *observer) admission(op string, p Priority, admitted bool) {
	if o == nil || o.metrics == nil {
		return
	}
	result := "refused"
	if admitted {
		result = "admitted"
	}
	o.metrics.admissions.WithLabelValues(op, string(p), result).Inc()
}

// recordedTokens counts tokens that reached the store.
func (o *observer) recordedTokens(n int64) {
	if o == nil || o.metrics == nil {
		return
	}
	o.metrics.recorded.Add(float64(n))
}
