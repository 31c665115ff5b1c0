package domain

import "context"

type tokenUsageKey struct{}

// TokenUsage collects governed token usage for a single HTTP request.
// The handler puts a mutable pointer into the context before calling the service;
// the service writes after settling; the handler reads it for response headers.
type TokenUsage struct {
	TotalTokens int
	Mode        string
	Used        bool // true once a provider call was settled, even with 0 tokens
}

// NewContextWithUsage returns a context with an embedded usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *TokenUsage) {
	u := &TokenUsage{}
	return context.WithValue(ctx, tokenUsageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *TokenUsage {
	u, _ := ctx.Value(tokenUsageKey{}).(*TokenUsage)
	return u
}

// AddTokens records consumed tokens.
func (u *TokenUsage) AddTokens(n int) {
	if u != nil {
		u.TotalTokens += n
		u.Used = true
	}
}

// SetMode records the mode the request ran under.
func (u *TokenUsage) SetMode(m string) {
	if u != nil {
		u.Mode = m
	}
}
