package mode

// Mode is the governor operating mode, derived from usage on every query.
type Mode string

// Mode constants.
const (
	// Performance is the normal operating mode.
	Performance Mode = "PERFORMANCE"
	// Saver signals callers to reduce or defer low-value work.
	Saver Mode = "SAVER"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Performance || m == Saver
}

// For derives the mode from usage: Saver strictly above threshold*budget.
func For(used, budget int64, threshold float64) Mode {
	if float64(used) > threshold*float64(budget) {
		return Saver
	}
	return Performance
}
