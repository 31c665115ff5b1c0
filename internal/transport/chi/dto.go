package chi

import "time"

// ErrorCode is a machine-readable error identifier.
type ErrorCode string

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest          ErrorCode = "bad_request"
	CodeUnauthorized        ErrorCode = "unauthorized"
	CodeValidationFailed    ErrorCode = "validation_failed"
	CodeBudgetExceeded      ErrorCode = "budget_exceeded"
	CodeReservationNotFound ErrorCode = "reservation_not_found"
	CodePersistenceFailed   ErrorCode = "persistence_failed"
	CodeProviderError       ErrorCode = "provider_error"
	CodeNotImplemented      ErrorCode = "not_implemented"
	CodeInternalError       ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// StatusResponse mirrors the governor status snapshot.
type StatusResponse struct {
	TokensUsed           int64     `json:"tokens_used"`
	BudgetLimit          int64     `json:"budget_limit"`
	Mode                 string    `json:"mode"`
	CompletionPercentage float64   `json:"completion_percentage"`
	Remaining            int64     `json:"remaining"`
	Reserved             int64     `json:"reserved"`
	LowPriorityLimit     int64     `json:"low_priority_limit"`
	EstimatedCost        float64   `json:"estimated_cost"`
	PeriodStart          string    `json:"period_start"`
	ResetsAt             time.Time `json:"resets_at"`
}

// ModeResponse is the body of GET /v1/governor/mode.
type ModeResponse struct {
	Mode string `json:"mode"`
}

// AdmissionRequest asks whether an estimate fits the budget.
type AdmissionRequest struct {
	Estimate *int64 `json:"estimate"`
	Priority string `json:"priority,omitempty"`
}

// AdmissionResponse is the admission decision.
type AdmissionResponse struct {
	Admitted bool   `json:"admitted"`
	Mode     string `json:"mode"`
}

// ConsumptionRequest reports actual tokens consumed.
type ConsumptionRequest struct {
	Tokens *int64 `json:"tokens"`
}

// ReservationResponse describes an admitted hold.
type ReservationResponse struct {
	ID        string    `json:"id"`
	Estimate  int64     `json:"estimate"`
	Priority  string    `json:"priority"`
	Period    string    `json:"period"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CompletionRequest is the body of POST /v1/completions.
type CompletionRequest struct {
	System    string `json:"system,omitempty"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens,omitempty"`
	Priority  string `json:"priority,omitempty"`
}

// CompletionResponse carries the provider answer and the governance applied.
type CompletionResponse struct {
	Text         string          `json:"text"`
	Model        string          `json:"model"`
	FinishReason string          `json:"finish_reason,omitempty"`
	Mode         string          `json:"mode"`
	MaxTokens    int             `json:"max_tokens"`
	Usage        CompletionUsage `json:"usage"`
}

// CompletionUsage is provider-reported token usage.
type CompletionUsage struct {
	Estimate         int64 `json:"estimate"`
	PromptTokens     int   `json:"prompt_tokens"`
	CompletionTokens int   `json:"completion_tokens"`
	TotalTokens      int   `json:"total_tokens"`
}

// UsageResponse is the body of GET /v1/usage.
type UsageResponse struct {
	Period        string       `json:"period"`
	PeriodStartAt *time.Time   `json:"period_start_at,omitempty"`
	PeriodEndAt   *time.Time   `json:"period_end_at,omitempty"`
	Mode          string       `json:"mode"`
	Usage         UsageMetrics `json:"usage"`
	Budget        BudgetStatus `json:"budget"`
}

// UsageMetrics is token usage for the period.
type UsageMetrics struct {
	Tokens           int64  `json:"tokens"`
	CostMillidollars *int64 `json:"cost_millidollars,omitempty"`
}

// BudgetStatus is the budget state for the period.
type BudgetStatus struct {
	TokensLimit      int64      `json:"tokens_limit"`
	TokensRemaining  int64      `json:"tokens_remaining"`
	LowPriorityLimit int64      `json:"low_priority_limit"`
	IsExhausted      bool       `json:"is_exhausted"`
	ResetsAt         *time.Time `json:"resets_at,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
