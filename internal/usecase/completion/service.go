package completion

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tokgov/internal/domain"
	"github.com/kailas-cloud/tokgov/internal/domain/governor/mode"
	"github.com/kailas-cloud/tokgov/internal/domain/governor/priority"
)

// charsPerToken is the rough prompt-size heuristic used for estimates.
const charsPerToken = 4

// Config holds model selection per mode.
type Config struct {
	Provider         string
	Model            string
	DefaultMaxTokens int
	SaverModel       string // empty keeps Model in SAVER mode
	SaverMaxTokens   int    // 0 disables the SAVER cap
}

// Request is a governed completion request.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
	Priority  priority.Priority
}

// Result is the provider answer plus the governance applied to it.
type Result struct {
	domain.CompletionResult
	Mode      mode.Mode
	Estimate  int64
	MaxTokens int
}

// Service wraps a Completer with reserve/settle budget enforcement and logging.
// Transport metrics (requests, duration, tokens) are recorded in transport/openai.
type Service struct {
	inner  domain.Completer
	gov    Governor
	cfg    Config
	logger *zap.Logger
}

// New creates a governed completion service.
func New(inner domain.Completer, gov Governor, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{inner: inner, gov: gov, cfg: cfg, logger: logger}
}

// EstimateTokens returns ceil(chars/4) + maxTokens.
func EstimateTokens(text string, maxTokens int) int64 {
	chars := utf8.RuneCountInString(text)
	return int64((chars+charsPerToken-1)/charsPerToken + maxTokens)
}

// Complete reserves the estimate, calls the provider and settles with the reported usage.
// A refused reservation returns domain.ErrBudgetExceeded without calling the provider.
func (s *Service) Complete(ctx context.Context, req Request) (Result, error) {
	if req.MaxTokens < 0 {
		return Result{}, fmt.Errorf("%w: max_tokens must not be negative", domain.ErrInvalidAmount)
	}
	p := req.Priority
	if p == "" {
		p = priority.Normal
	}

	md := s.gov.CurrentMode(ctx)
	model, maxTokens := s.plan(md, req.MaxTokens)
	estimate := EstimateTokens(req.System+req.Prompt, maxTokens)

	r, ok, err := s.gov.Reserve(ctx, estimate, p)
	if err != nil {
		return Result{}, fmt.Errorf("reserve: %w", err)
	}
	if !ok {
		s.logger.Warn("Budget exceeded",
			zap.String("provider", s.cfg.Provider),
			zap.String("priority", string(p)),
			zap.Int64("estimate", estimate),
			zap.String("mode", string(md)),
		)
		return Result{}, fmt.Errorf("%w: estimate %d at %s", domain.ErrBudgetExceeded, estimate, p)
	}

	start := time.Now()

	res, err := s.inner.Complete(ctx, domain.CompletionRequest{
		Model:     model,
		System:    req.System,
		Prompt:    req.Prompt,
		MaxTokens: maxTokens,
	})

	duration := time.Since(start)

	// The provider call is over: accounting must finish even if the caller went away.
	acctCtx := context.WithoutCancel(ctx)

	if err != nil {
		if rerr := s.gov.Release(acctCtx, r.ID); rerr != nil {
			s.logger.Warn("Failed to release reservation", zap.String("id", r.ID), zap.Error(rerr))
		}
		s.logger.Error("Completion request failed",
			zap.String("provider", s.cfg.Provider),
			zap.String("model", model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return Result{}, fmt.Errorf("complete: %w", err)
	}

	actual := int64(res.TotalTokens)
	if actual <= 0 {
		// Provider did not report usage; charge the estimate.
		actual = estimate
	}
	if err := s.gov.Settle(acctCtx, r.ID, actual); err != nil {
		s.logger.Error("Failed to settle completion",
			zap.String("id", r.ID),
			zap.Int64("actual", actual),
			zap.Error(err),
		)
		return Result{}, fmt.Errorf("settle: %w", err)
	}

	u := domain.UsageFromContext(ctx)
	u.AddTokens(int(actual))
	u.SetMode(string(md))

	s.logger.Debug("Completion request completed",
		zap.String("provider", s.cfg.Provider),
		zap.String("model", model),
		zap.String("mode", string(md)),
		zap.Duration("duration", duration),
		zap.Int64("estimate", estimate),
		zap.Int("prompt_tokens", res.PromptTokens),
		zap.Int("total_tokens", res.TotalTokens),
	)

	return Result{CompletionResult: res, Mode: md, Estimate: estimate, MaxTokens: maxTokens}, nil
}

// plan picks the model and output cap for the mode.
func (s *Service) plan(md mode.Mode, requested int) (string, int) {
	model := s.cfg.Model
	maxTokens := requested
	if maxTokens == 0 {
		maxTokens = s.cfg.DefaultMaxTokens
	}
	if md != mode.Saver {
		return model, maxTokens
	}
	if s.cfg.SaverModel != "" {
		model = s.cfg.SaverModel
	}
	if s.cfg.SaverMaxTokens > 0 && (maxTokens == 0 || maxTokens > s.cfg.SaverMaxTokens) {
		maxTokens = s.cfg.SaverMaxTokens
	}
	return model, maxTokens
}
