package governor

import (
	"fmt"

	"github.com/kailas-cloud/tokgov/internal/domain"
	"github.com/kailas-cloud/tokgov/internal/domain/governor/priority"
)

// Defaults for the optional config fields.
const (
	DefaultLowPriorityFraction = 0.5
	DefaultSaverModeThreshold  = 0.8
)

// Config is the immutable governor configuration. It is never persisted.
type Config struct {
	DailyBudget          int64
	CostPerThousandUnits float64 // advisory, reported in status only
	LowPriorityFraction  float64
	SaverModeThreshold   float64
}

// WithDefaults returns a copy with zero optional fields set to their defaults.
func (c Config) WithDefaults() Config {
	if c.LowPriorityFraction == 0 {
		c.LowPriorityFraction = DefaultLowPriorityFraction
	}
	if c.SaverModeThreshold == 0 {
		c.SaverModeThreshold = DefaultSaverModeThreshold
	}
	return c
}

// Validate checks the configuration ranges.
func (c Config) Validate() error {
	if c.DailyBudget <= 0 {
		return fmt.Errorf("%w: daily budget must be positive, got %d", domain.ErrInvalidConfig, c.DailyBudget)
	}
	if c.CostPerThousandUnits < 0 {
		return fmt.Errorf("%w: cost per thousand must not be negative, got %v",
			domain.ErrInvalidConfig, c.CostPerThousandUnits)
	}
	if c.LowPriorityFraction <= 0 || c.LowPriorityFraction > 1 {
		return fmt.Errorf("%w: low priority fraction must be in (0,1], got %v",
			domain.ErrInvalidConfig, c.LowPriorityFraction)
	}
	if c.SaverModeThreshold <= 0 || c.SaverModeThreshold > 1 {
		return fmt.Errorf("%w: saver mode threshold must be in (0,1], got %v",
			domain.ErrInvalidConfig, c.SaverModeThreshold)
	}
	return nil
}

// Limit returns the admission limit for a priority tier.
func (c Config) Limit(p priority.Priority) float64 {
	if p == priority.Low {
		return c.LowPriorityFraction * float64(c.DailyBudget)
	}
	return float64(c.DailyBudget)
}

// Cost returns the advisory cost of the given token count.
func (c Config) Cost(tokens int64) float64 {
	return float64(tokens) / 1000 * c.CostPerThousandUnits
}
