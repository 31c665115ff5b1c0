package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tokgov/internal/domain"
	domgov "github.com/kailas-cloud/tokgov/internal/domain/governor"
	"github.com/kailas-cloud/tokgov/internal/domain/governor/mode"
	completionuc "github.com/kailas-cloud/tokgov/internal/usecase/completion"
	governoruc "github.com/kailas-cloud/tokgov/internal/usecase/governor"
	healthuc "github.com/kailas-cloud/tokgov/internal/usecase/health"
	usageuc "github.com/kailas-cloud/tokgov/internal/usecase/usage"
)

// --- Test doubles ---

type memStore struct {
	mu      sync.Mutex
	st      domgov.State
	ok      bool
	saveErr error
	pingErr error
}

func (m *memStore) Load(_ context.Context) (domgov.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ok {
		return domgov.State{}, domain.ErrStateNotFound
	}
	return m.st, nil
}

func (m *memStore) Save(_ context.Context, st domgov.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.st, m.ok = st, true
	return nil
}

func (m *memStore) Ping(_ context.Context) error { return m.pingErr }

type stubCompleter struct {
	result completionuc.Result
	err    error
}

func (s *stubCompleter) Complete(ctx context.Context, _ completionuc.Request) (completionuc.Result, error) {
	if s.err != nil {
		return completionuc.Result{}, s.err
	}
	if u := domain.UsageFromContext(ctx); u != nil {
		u.AddTokens(s.result.TotalTokens)
		u.SetMode(string(s.result.Mode))
	}
	return s.result, nil
}

var testNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	store  *memStore
	gov    *governoruc.Governor
	router http.Handler
}

func newTestEnv(t *testing.T, budget, used int64, opts ...Option) *testEnv {
	t.Helper()
	store := &memStore{st: domgov.State{TokensUsed: used, LastReset: "2024-01-01"}, ok: true}
	gov, err := governoruc.New(context.Background(), domgov.Config{DailyBudget: budget}, store, zap.NewNop(),
		governoruc.WithClock(governoruc.ClockFunc(func() time.Time { return testNow })))
	if err != nil {
		t.Fatalf("governor.New: %v", err)
	}

	opts = append([]Option{WithNow(func() time.Time { return testNow })}, opts...)
	srv := NewServer(gov, usageuc.New(gov), healthuc.New(store, gov, nil), zap.NewNop(), opts...)
	r := chi.NewRouter()
	srv.Routes(r)
	return &testEnv{store: store, gov: gov, router: r}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
	return v
}

// --- Tests ---

func TestGetStatus(t *testing.T) {
	env := newTestEnv(t, 1000, 250)

	rr := env.do(t, http.MethodGet, "/v1/governor/status", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	resp := decodeBody[StatusResponse](t, rr)
	if resp.TokensUsed != 250 || resp.BudgetLimit != 1000 || resp.Remaining != 750 {
		t.Errorf("unexpected status: %+v", resp)
	}
	if resp.Mode != string(mode.Performance) {
		t.Errorf("mode: got %s, want %s", resp.Mode, mode.Performance)
	}
	if resp.CompletionPercentage != 25 {
		t.Errorf("completion_percentage: got %v, want 25", resp.CompletionPercentage)
	}
	if !resp.ResetsAt.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("resets_at: got %v", resp.ResetsAt)
	}
}

func TestGetMode_Saver(t *testing.T) {
	env := newTestEnv(t, 1000, 800)

	rr := env.do(t, http.MethodGet, "/v1/governor/mode", "")
	resp := decodeBody[ModeResponse](t, rr)
	if resp.Mode != string(mode.Saver) {
		t.Errorf("mode: got %s, want %s", resp.Mode, mode.Saver)
	}
}

func TestCheckAdmission(t *testing.T) {
	env := newTestEnv(t, 1000, 400)

	tests := []struct {
		name string
		body string
		want bool
	}{
		{"normal fits", `{"estimate":600}`, true},
		{"normal over", `{"estimate":601}`, false},
		{"low at limit", `{"estimate":100,"priority":"low"}`, true},
		{"low over", `{"estimate":101,"priority":"LOW"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/v1/governor/admissions", tt.body)
			if rr.Code != http.StatusOK {
				t.Fatalf("status: got %d, want 200", rr.Code)
			}
			if got := decodeBody[AdmissionResponse](t, rr).Admitted; got != tt.want {
				t.Errorf("admitted: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckAdmission_ValidationErrors(t *testing.T) {
	env := newTestEnv(t, 1000, 0)

	tests := []struct {
		name string
		body string
		code ErrorCode
	}{
		{"missing estimate", `{}`, CodeValidationFailed},
		{"negative estimate", `{"estimate":-1}`, CodeValidationFailed},
		{"unknown priority", `{"estimate":1,"priority":"urgent"}`, CodeValidationFailed},
		{"malformed body", `{"estimate":`, CodeBadRequest},
		{"unknown field", `{"estimate":1,"tokens":2}`, CodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/v1/governor/admissions", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d, want 400", rr.Code)
			}
			if got := decodeBody[ErrorResponse](t, rr).Code; got != tt.code {
				t.Errorf("code: got %s, want %s", got, tt.code)
			}
		})
	}
}

func TestRecordConsumption(t *testing.T) {
	env := newTestEnv(t, 1000, 100)

	rr := env.do(t, http.MethodPost, "/v1/governor/consumption", `{"tokens":150}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if got := decodeBody[StatusResponse](t, rr).TokensUsed; got != 250 {
		t.Errorf("tokens_used: got %d, want 250", got)
	}
	if env.store.st.TokensUsed != 250 {
		t.Errorf("stored tokens: got %d, want 250", env.store.st.TokensUsed)
	}
}

func TestRecordConsumption_PersistenceFailure(t *testing.T) {
	env := newTestEnv(t, 1000, 100)
	env.store.saveErr = errors.New("disk full")

	rr := env.do(t, http.MethodPost, "/v1/governor/consumption", `{"tokens":50}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want 503", rr.Code)
	}
	resp := decodeBody[ErrorResponse](t, rr)
	if resp.Code != CodePersistenceFailed {
		t.Errorf("code: got %s, want %s", resp.Code, CodePersistenceFailed)
	}
	if strings.Contains(resp.Message, "disk full") {
		t.Errorf("message leaks internals: %q", resp.Message)
	}
	if used := env.gov.Status(context.Background()).TokensUsed; used != 100 {
		t.Errorf("tokens_used after failure: got %d, want 100", used)
	}
}

func TestReservationLifecycle(t *testing.T) {
	env := newTestEnv(t, 1000, 0)

	rr := env.do(t, http.MethodPost, "/v1/governor/reservations", `{"estimate":700}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("reserve: got %d, want 201", rr.Code)
	}
	res := decodeBody[ReservationResponse](t, rr)
	if res.ID == "" || res.Estimate != 700 || res.Period != "2024-01-01" {
		t.Errorf("unexpected reservation: %+v", res)
	}
	if loc := rr.Header().Get("Location"); loc != "/v1/governor/reservations/"+res.ID {
		t.Errorf("Location: got %q", loc)
	}

	rr = env.do(t, http.MethodPost, "/v1/governor/reservations", `{"estimate":400}`)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second reserve: got %d, want 429", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "43200" {
		t.Errorf("Retry-After: got %q, want 43200", got)
	}
	if got := decodeBody[ErrorResponse](t, rr).Code; got != CodeBudgetExceeded {
		t.Errorf("code: got %s, want %s", got, CodeBudgetExceeded)
	}

	rr = env.do(t, http.MethodPost, "/v1/governor/reservations/"+res.ID+"/settle", `{"tokens":650}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("settle: got %d, want 200", rr.Code)
	}
	st := decodeBody[StatusResponse](t, rr)
	if st.TokensUsed != 650 || st.Reserved != 0 {
		t.Errorf("after settle: used=%d reserved=%d, want 650/0", st.TokensUsed, st.Reserved)
	}

	rr = env.do(t, http.MethodPost, "/v1/governor/reservations/"+res.ID+"/settle", `{"tokens":1}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("double settle: got %d, want 404", rr.Code)
	}
}

func TestReleaseReservation(t *testing.T) {
	env := newTestEnv(t, 1000, 0)

	rr := env.do(t, http.MethodPost, "/v1/governor/reservations", `{"estimate":300}`)
	res := decodeBody[ReservationResponse](t, rr)

	rr = env.do(t, http.MethodDelete, "/v1/governor/reservations/"+res.ID, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("release: got %d, want 204", rr.Code)
	}
	if st := env.gov.Status(context.Background()); st.Reserved != 0 || st.TokensUsed != 0 {
		t.Errorf("after release: %+v", st)
	}

	rr = env.do(t, http.MethodDelete, "/v1/governor/reservations/"+res.ID, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("second release: got %d, want 404", rr.Code)
	}
	if got := decodeBody[ErrorResponse](t, rr).Code; got != CodeReservationNotFound {
		t.Errorf("code: got %s, want %s", got, CodeReservationNotFound)
	}
}

func TestCreateCompletion_NotConfigured(t *testing.T) {
	env := newTestEnv(t, 1000, 0)

	rr := env.do(t, http.MethodPost, "/v1/completions", `{"prompt":"hi"}`)
	if rr.Code != http.StatusNotImplemented {
		t.Errorf("status: got %d, want 501", rr.Code)
	}
}

func TestCreateCompletion(t *testing.T) {
	stub := &stubCompleter{result: completionuc.Result{
		CompletionResult: domain.CompletionResult{
			Text:             "hello",
			Model:            "small-model",
			FinishReason:     "stop",
			PromptTokens:     5,
			CompletionTokens: 7,
			TotalTokens:      12,
		},
		Mode:      mode.Saver,
		Estimate:  70,
		MaxTokens: 64,
	}}
	env := newTestEnv(t, 1000, 0, WithCompleter(stub))

	rr := env.do(t, http.MethodPost, "/v1/completions", `{"prompt":"hi","priority":"low"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("X-Tokens-Used"); got != "12" {
		t.Errorf("X-Tokens-Used: got %q, want 12", got)
	}
	if got := rr.Header().Get("X-Governor-Mode"); got != string(mode.Saver) {
		t.Errorf("X-Governor-Mode: got %q", got)
	}
	resp := decodeBody[CompletionResponse](t, rr)
	if resp.Text != "hello" || resp.Usage.TotalTokens != 12 || resp.Usage.Estimate != 70 || resp.MaxTokens != 64 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestCreateCompletion_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   ErrorCode
	}{
		{"budget", fmt.Errorf("%w: estimate 600", domain.ErrBudgetExceeded), http.StatusTooManyRequests, CodeBudgetExceeded},
		{"provider", fmt.Errorf("%w: 500 upstream", domain.ErrProviderError), http.StatusBadGateway, CodeProviderError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, 1000, 0, WithCompleter(&stubCompleter{err: tt.err}))

			rr := env.do(t, http.MethodPost, "/v1/completions", `{"prompt":"hi"}`)
			if rr.Code != tt.status {
				t.Fatalf("status: got %d, want %d", rr.Code, tt.status)
			}
			if got := decodeBody[ErrorResponse](t, rr).Code; got != tt.code {
				t.Errorf("code: got %s, want %s", got, tt.code)
			}
		})
	}
}

func TestCreateCompletion_EmptyPrompt(t *testing.T) {
	env := newTestEnv(t, 1000, 0, WithCompleter(&stubCompleter{}))

	rr := env.do(t, http.MethodPost, "/v1/completions", `{"prompt":""}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rr.Code)
	}
}

func TestGetUsage(t *testing.T) {
	env := newTestEnv(t, 1000, 1000)

	rr := env.do(t, http.MethodGet, "/v1/usage", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	resp := decodeBody[UsageResponse](t, rr)
	if resp.Period != "day" {
		t.Errorf("period: got %q, want day", resp.Period)
	}
	if resp.Usage.Tokens != 1000 || !resp.Budget.IsExhausted || resp.Budget.TokensRemaining != 0 {
		t.Errorf("unexpected usage: %+v", resp)
	}
	if resp.PeriodStartAt == nil || !resp.PeriodStartAt.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("period_start_at: got %v", resp.PeriodStartAt)
	}
	if resp.Budget.ResetsAt == nil || !resp.Budget.ResetsAt.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("resets_at: got %v", resp.Budget.ResetsAt)
	}
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, 1000, 0)

	rr := env.do(t, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	resp := decodeBody[HealthResponse](t, rr)
	if resp.Status != string(healthuc.Healthy) || resp.Checks[healthuc.CheckStateStore] != string(healthuc.CheckOK) {
		t.Errorf("unexpected health: %+v", resp)
	}
}

func TestHealthCheck_StoreDown(t *testing.T) {
	env := newTestEnv(t, 1000, 0)
	env.store.pingErr = errors.New("connection refused")

	rr := env.do(t, http.MethodGet, "/health", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want 503", rr.Code)
	}
	resp := decodeBody[HealthResponse](t, rr)
	if resp.Status != string(healthuc.Degraded) {
		t.Errorf("status: got %s, want %s", resp.Status, healthuc.Degraded)
	}
}

func TestJSONRecoverer(t *testing.T) {
	h := JSONRecoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want 500", rr.Code)
	}
	if got := decodeBody[ErrorResponse](t, rr).Code; got != CodeInternalError {
		t.Errorf("code: got %s, want %s", got, CodeInternalError)
	}
}
