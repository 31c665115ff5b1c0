package metrics

// Metrics holds token usage for a period.
type Metrics struct {
	tokens           int64
	costMillidollars int64
}

// New creates a Metrics snapshot.
func New(tokens, costMillidollars int64) Metrics {
	return Metrics{tokens: tokens, costMillidollars: costMillidollars}
}

// Tokens returns the total tokens consumed.
func (m Metrics) Tokens() int64 { return m.tokens }

// CostMillidollars returns cost in thousandths of a currency unit (1 USD = 1000).
func (m Metrics) CostMillidollars() int64 { return m.costMillidollars }
