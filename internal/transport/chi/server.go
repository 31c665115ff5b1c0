package chi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tokgov/internal/domain"
	domgov "github.com/kailas-cloud/tokgov/internal/domain/governor"
	"github.com/kailas-cloud/tokgov/internal/domain/governor/mode"
	"github.com/kailas-cloud/tokgov/internal/domain/governor/priority"
	domusage "github.com/kailas-cloud/tokgov/internal/domain/usage"
	completionuc "github.com/kailas-cloud/tokgov/internal/usecase/completion"
	governoruc "github.com/kailas-cloud/tokgov/internal/usecase/governor"
	healthuc "github.com/kailas-cloud/tokgov/internal/usecase/health"
)

// Governor is the admission and accounting surface exposed over HTTP.
type Governor interface {
	CanConsume(ctx context.Context, estimate int64, p priority.Priority) (bool, error)
	RecordConsumption(ctx context.Context, actual int64) error
	CurrentMode(ctx context.Context) mode.Mode
	Status(ctx context.Context) domgov.Status
	Reserve(ctx context.Context, estimate int64, p priority.Priority) (governoruc.Reservation, bool, error)
	Settle(ctx context.Context, id string, actual int64) error
	Release(ctx context.Context, id string) error
}

// Completer runs governed completions.
type Completer interface {
	Complete(ctx context.Context, req completionuc.Request) (completionuc.Result, error)
}

// UsageReporter builds usage reports.
type UsageReporter interface {
	GetReport(ctx context.Context) domusage.Report
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Server holds the HTTP handlers.
type Server struct {
	gov           Governor
	completions   Completer // nil when no provider is configured
	usage         UsageReporter
	health        HealthChecker
	logger        *zap.Logger
	now           func() time.Time
	errorHandlers []errorHandler
}

// Option configures a Server.
type Option func(*Server)

// WithCompleter enables POST /v1/completions.
func WithCompleter(c Completer) Option {
	return func(s *Server) { s.completions = c }
}

// WithNow overrides the clock used for Retry-After.
func WithNow(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer creates an HTTP API server.
func NewServer(
	gov Governor,
	usage UsageReporter,
	health HealthChecker,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		gov:    gov,
		usage:  usage,
		health: health,
		logger: logger,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.errorHandlers = []errorHandler{
		s.budgetExceededHandler,
		sentinelHandler(domain.ErrInvalidAmount, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrUnknownPriority, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrReservationNotFound, http.StatusNotFound, CodeReservationNotFound),
		sentinelHandler(domain.ErrPersistence, http.StatusServiceUnavailable, CodePersistenceFailed),
		sentinelHandler(domain.ErrProviderError, http.StatusBadGateway, CodeProviderError),
	}
	return s
}

// Routes registers the API on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/usage", s.GetUsage)
		r.Post("/completions", s.CreateCompletion)

		r.Route("/governor", func(r chi.Router) {
			r.Get("/status", s.GetStatus)
			r.Get("/mode", s.GetMode)
			r.Post("/admissions", s.CheckAdmission)
			r.Post("/consumption", s.RecordConsumption)
			r.Post("/reservations", s.CreateReservation)
			r.Post("/reservations/{id}/settle", s.SettleReservation)
			r.Delete("/reservations/{id}", s.ReleaseReservation)
		})
	})
}

// GetStatus handles GET /v1/governor/status.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusToDTO(s.gov.Status(r.Context())))
}

// GetMode handles GET /v1/governor/mode.
func (s *Server) GetMode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ModeResponse{Mode: string(s.gov.CurrentMode(r.Context()))})
}

// CheckAdmission handles POST /v1/governor/admissions.
func (s *Server) CheckAdmission(w http.ResponseWriter, r *http.Request) {
	var req AdmissionRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Estimate == nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "estimate is required")
		return
	}
	p, err := priority.Parse(req.Priority)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	ok, err := s.gov.CanConsume(r.Context(), *req.Estimate, p)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AdmissionResponse{
		Admitted: ok,
		Mode:     string(s.gov.CurrentMode(r.Context())),
	})
}

// RecordConsumption handles POST /v1/governor/consumption.
func (s *Server) RecordConsumption(w http.ResponseWriter, r *http.Request) {
	var req ConsumptionRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Tokens == nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "tokens is required")
		return
	}

	if err := s.gov.RecordConsumption(r.Context(), *req.Tokens); err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statusToDTO(s.gov.Status(r.Context())))
}

// CreateReservation handles POST /v1/governor/reservations.
func (s *Server) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req AdmissionRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Estimate == nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "estimate is required")
		return
	}
	p, err := priority.Parse(req.Priority)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	res, ok, err := s.gov.Reserve(r.Context(), *req.Estimate, p)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if !ok {
		s.handleDomainError(w, fmt.Errorf("%w: estimate %d at %s", domain.ErrBudgetExceeded, *req.Estimate, p))
		return
	}

	w.Header().Set("Location", "/v1/governor/reservations/"+res.ID)
	writeJSON(w, http.StatusCreated, ReservationResponse{
		ID:        res.ID,
		Estimate:  res.Estimate,
		Priority:  string(res.Priority),
		Period:    string(res.Period),
		ExpiresAt: res.ExpiresAt.UTC(),
	})
}

// SettleReservation handles POST /v1/governor/reservations/{id}/settle.
func (s *Server) SettleReservation(w http.ResponseWriter, r *http.Request) {
	var req ConsumptionRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Tokens == nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "tokens is required")
		return
	}

	if err := s.gov.Settle(r.Context(), chi.URLParam(r, "id"), *req.Tokens); err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statusToDTO(s.gov.Status(r.Context())))
}

// ReleaseReservation handles DELETE /v1/governor/reservations/{id}.
func (s *Server) ReleaseReservation(w http.ResponseWriter, r *http.Request) {
	if err := s.gov.Release(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateCompletion handles POST /v1/completions.
func (s *Server) CreateCompletion(w http.ResponseWriter, r *http.Request) {
	if s.completions == nil {
		writeError(w, http.StatusNotImplemented, CodeNotImplemented, "completion provider is not configured")
		return
	}

	var req CompletionRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "prompt is required")
		return
	}
	p, err := priority.Parse(req.Priority)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	res, err := s.completions.Complete(ctx, completionuc.Request{
		System:    req.System,
		Prompt:    req.Prompt,
		MaxTokens: req.MaxTokens,
		Priority:  p,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	setUsageHeaders(w, usage)
	writeJSON(w, http.StatusOK, CompletionResponse{
		Text:         res.Text,
		Model:        res.Model,
		FinishReason: res.FinishReason,
		Mode:         string(res.Mode),
		MaxTokens:    res.MaxTokens,
		Usage: CompletionUsage{
			Estimate:         res.Estimate,
			PromptTokens:     res.PromptTokens,
			CompletionTokens: res.CompletionTokens,
			TotalTokens:      res.TotalTokens,
		},
	})
}

// GetUsage handles GET /v1/usage.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	report := s.usage.GetReport(r.Context())

	resp := UsageResponse{
		Period: string(report.Period()),
		Mode:   string(report.Mode()),
		Usage: UsageMetrics{
			Tokens: report.Metrics().Tokens(),
		},
		Budget: BudgetStatus{
			TokensLimit:      report.Budget().TokensLimit(),
			TokensRemaining:  report.Budget().TokensRemaining(),
			LowPriorityLimit: report.Budget().LowPriorityLimit(),
			IsExhausted:      report.Budget().IsExhausted(),
		},
	}

	if report.Metrics().CostMillidollars() > 0 {
		cost := report.Metrics().CostMillidollars()
		resp.Usage.CostMillidollars = &cost
	}

	if report.PeriodStart() > 0 {
		start := time.UnixMilli(report.PeriodStart()).UTC()
		end := time.UnixMilli(report.PeriodEnd()).UTC()
		resp.PeriodStartAt = &start
		resp.PeriodEndAt = &end
	}

	if report.Budget().ResetsAt() > 0 {
		resetsAt := time.UnixMilli(report.Budget().ResetsAt()).UTC()
		resp.Budget.ResetsAt = &resetsAt
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func setUsageHeaders(w http.ResponseWriter, usage *domain.TokenUsage) {
	if usage != nil && usage.Used {
		w.Header().Set("X-Tokens-Used", strconv.Itoa(usage.TotalTokens))
		w.Header().Set("X-Governor-Mode", usage.Mode)
	}
}

func statusToDTO(st domgov.Status) StatusResponse {
	return StatusResponse{
		TokensUsed:           st.TokensUsed,
		BudgetLimit:          st.DailyBudget,
		Mode:                 string(st.Mode),
		CompletionPercentage: st.CompletionPercentage,
		Remaining:            st.Remaining,
		Reserved:             st.Reserved,
		LowPriorityLimit:     st.LowPriorityLimit,
		EstimatedCost:        st.EstimatedCost,
		PeriodStart:          string(st.PeriodStart),
		ResetsAt:             st.ResetsAt.UTC(),
	}
}
