package priority

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/tokgov/internal/domain"
)

// Priority is the caller-declared class that selects the admission limit.
type Priority string

// Priority tiers.
const (
	// Normal is admitted against the whole daily budget.
	Normal Priority = "NORMAL"
	// Low is admitted against a fraction of the daily budget.
	Low Priority = "LOW"
)

// IsValid checks if the priority is one of the supported tiers.
func (p Priority) IsValid() bool {
	return p == Normal || p == Low
}

// Parse converts user input into a Priority. An empty string means Normal.
// Matching is case-insensitive; anything else is rejected, never coerced.
func Parse(s string) (Priority, error) {
	if s == "" {
		return Normal, nil
	}
	p := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownPriority, s)
	}
	return p, nil
}
