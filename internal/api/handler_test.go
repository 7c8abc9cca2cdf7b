//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/alexi/internal/agent"
	"github.com/ashureev/alexi/internal/catalog"
	"github.com/ashureev/alexi/internal/domain"
	"github.com/ashureev/alexi/internal/history"
	"github.com/ashureev/alexi/internal/progression"
	"github.com/ashureev/alexi/internal/secure"
	"github.com/ashureev/alexi/internal/store"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusTeapot, "short and stout")

	if w.Code != http.StatusTeapot {
		t.Errorf("Expected status 418, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), `"error":"short and stout"`) {
		t.Errorf("Unexpected body %s", w.Body.String())
	}
}

type stubProcessor struct {
	review    agent.Review
	reviewErr error
	answered  int
}

func (s *stubProcessor) ReviewAnswer(context.Context, agent.AnswerReview) (agent.Review, error) {
	return s.review, s.reviewErr
}

func (s *stubProcessor) TrackProgress(context.Context, agent.ProgressRequest) (agent.ProgressResult, error) {
	return agent.ProgressResult{Count: s.answered}, nil
}

func (s *stubProcessor) Close() {}

type testEnv struct {
	router http.Handler
	repo   store.Repository
	mem    *store.MemoryStore
}

func newTestEnv(t *testing.T, p agent.Processor, wrap func(*store.MemoryStore) store.Repository) *testEnv {
	t.Helper()
	c, err := catalog.New([]catalog.Theme{
		{Name: "A", Questions: []catalog.Question{{Text: "q0"}, {Text: "q1"}}},
		{Name: "B", Questions: []catalog.Question{{Text: "q2"}}},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := store.NewMemory()
	var repo store.Repository = mem
	if wrap != nil {
		repo = wrap(mem)
	}
	engine := progression.NewEngine(c, repo, logger)
	reader := history.NewReader(repo, 2, logger)
	svc := agent.NewService(p, engine, reader, logger)

	r := chi.NewRouter()
	NewHandler(engine, reader, svc, logger).RegisterRoutes(r, nil)
	NewHealthHandler(repo, 0).RegisterHealth(r)
	return &testEnv{router: r, repo: repo, mem: mem}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestNextQuestionRouteWalksCatalog(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	want := []string{"q0", "q1", "q2"}
	for _, text := range want {
		w := env.do(t, http.MethodPost, "/api/users/u1/questions/next", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
		}
		turn := decodeBody[agent.Turn](t, w)
		if turn.Kind != agent.TurnQuestion || turn.Question.Text != text {
			t.Fatalf("turn = %+v, want question %q", turn, text)
		}
	}

	w := env.do(t, http.MethodPost, "/api/users/u1/questions/next", `{"user_response":"done"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("exhausted status = %d", w.Code)
	}
	if turn := decodeBody[agent.Turn](t, w); turn.Kind != agent.TurnExhausted {
		t.Errorf("kind = %s", turn.Kind)
	}
}

func TestNextQuestionRouteFollowUp(t *testing.T) {
	env := newTestEnv(t, &stubProcessor{review: agent.Review{FollowUp: "go on"}}, nil)

	env.do(t, http.MethodPost, "/api/users/u1/questions/next", "")
	w := env.do(t, http.MethodPost, "/api/users/u1/questions/next", `{"user_response":"hm"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	turn := decodeBody[agent.Turn](t, w)
	if turn.Kind != agent.TurnFollowUp || turn.FollowUp != "go on" {
		t.Errorf("turn = %+v", turn)
	}
}

func TestNextQuestionRouteAgentDown(t *testing.T) {
	env := newTestEnv(t, &stubProcessor{reviewErr: errors.New("unavailable")}, nil)

	env.do(t, http.MethodPost, "/api/users/u1/questions/next", "")
	w := env.do(t, http.MethodPost, "/api/users/u1/questions/next", `{"user_response":"hm"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", w.Code)
	}
}

type conflictRepo struct{ *store.MemoryStore }

func (conflictRepo) MergeUser(context.Context, string, map[string]any, int64) (int64, error) {
	return 0, store.ErrVersionConflict
}

func TestNextQuestionRouteConflict(t *testing.T) {
	env := newTestEnv(t, nil, func(m *store.MemoryStore) store.Repository { return conflictRepo{m} })

	w := env.do(t, http.MethodPost, "/api/users/u1/questions/next", "")
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d", w.Code)
	}
}

func TestNextQuestionRouteBadBody(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, http.MethodPost, "/api/users/u1/questions/next", `{"user_response":`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestCurrentQuestionRoutes(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	if w := env.do(t, http.MethodGet, "/api/users/u1/questions/current", ""); w.Code != http.StatusNotFound {
		t.Fatalf("before start status = %d", w.Code)
	}

	w := env.do(t, http.MethodPut, "/api/users/u1/questions/current", `{"theme":"B","index":0}`)
	if w.Code != http.StatusOK {
		t.Fatalf("set status = %d body=%s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/api/users/u1/questions/current", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	got := decodeBody[domain.QuestionPointer](t, w)
	if got != (domain.QuestionPointer{Theme: "B", Index: 0, Text: "q2"}) {
		t.Errorf("pointer = %+v", got)
	}
}

func TestSetCurrentQuestionRouteValidation(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing index", `{"theme":"A"}`, http.StatusBadRequest},
		{"negative index", `{"theme":"A","index":-1}`, http.StatusBadRequest},
		{"missing theme", `{"index":0}`, http.StatusBadRequest},
		{"unknown field", `{"theme":"A","index":0,"extra":true}`, http.StatusBadRequest},
		{"out of range", `{"theme":"A","index":5}`, http.StatusNotFound},
		{"unknown theme", `{"theme":"Z","index":0}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPut, "/api/users/u1/questions/current", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}

	user, _ := env.repo.GetUser(context.Background(), "u1")
	if user != nil {
		t.Error("rejected jumps must not create the user")
	}
}

func TestProgressRoutes(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	if w := env.do(t, http.MethodPut, "/api/users/u1/progress", `{"count":-2}`); w.Code != http.StatusBadRequest {
		t.Errorf("negative status = %d", w.Code)
	}
	if w := env.do(t, http.MethodPut, "/api/users/u1/progress", `{"count":3}`); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}

	w := env.do(t, http.MethodGet, "/api/users/u1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status route = %d", w.Code)
	}
	body := decodeBody[struct {
		Status    progression.Status `json:"status"`
		AIEnabled bool               `json:"ai_enabled"`
	}](t, w)
	if body.Status.Progress != 3 || body.Status.TotalQuestions != 3 || body.AIEnabled {
		t.Errorf("status body = %+v", body)
	}
}

func TestTrackProgressRoute(t *testing.T) {
	if w := newTestEnv(t, nil, nil).do(t, http.MethodPost, "/api/users/u1/progress/track", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("no agent status = %d", w.Code)
	}

	env := newTestEnv(t, &stubProcessor{answered: 1}, nil)
	if w := env.do(t, http.MethodPost, "/api/users/u1/progress/track", ""); w.Code != http.StatusNotFound {
		t.Errorf("no history status = %d", w.Code)
	}

	env.mem.Seed("u1", map[string]any{
		domain.FieldEmail:       "a@example.com",
		domain.FieldUserHistory: []any{map[string]any{"message": "hi"}},
	})
	w := env.do(t, http.MethodPost, "/api/users/u1/progress/track", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if got := decodeBody[agent.ProgressResult](t, w); got.Count != 1 {
		t.Errorf("result = %+v", got)
	}
}

func TestTrackProgressRouteRejectsInvalidAgentCount(t *testing.T) {
	env := newTestEnv(t, &stubProcessor{answered: -1}, nil)
	env.mem.Seed("u1", map[string]any{
		domain.FieldEmail:       "a@example.com",
		domain.FieldUserHistory: []any{map[string]any{"message": "hi"}},
	})
	if w := env.do(t, http.MethodPost, "/api/users/u1/progress/track", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("negative count status = %d, want 503", w.Code)
	}
}

func TestHistoryRoute(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	if w := env.do(t, http.MethodGet, "/api/users/ghost/history", ""); w.Code != http.StatusNotFound {
		t.Errorf("absent user status = %d", w.Code)
	}

	env.mem.Seed("u1", map[string]any{
		domain.FieldEmail: "a@example.com",
		domain.FieldUserHistory: []any{
			map[string]any{history.FieldEncryptedMessage: mustEncrypt(t, "hello", "a@example.com")},
			map[string]any{history.FieldEncryptedMessage: "garbage"},
		},
	})
	w := env.do(t, http.MethodGet, "/api/users/u1/history", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody[struct {
		Entries []map[string]any `json:"entries"`
	}](t, w)
	if len(body.Entries) != 2 {
		t.Fatalf("entries = %v", body.Entries)
	}
	if body.Entries[0]["message"] != "hello" {
		t.Errorf("entry 0 = %v", body.Entries[0])
	}
	if body.Entries[1]["message"] != history.UndecryptableMessage {
		t.Errorf("entry 1 = %v", body.Entries[1])
	}
}

func TestInvalidUserIDRejected(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	if w := env.do(t, http.MethodGet, "/api/users/bad$id/status", ""); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestCatalogAndHealthRoutes(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, http.MethodGet, "/api/catalog", "")
	if w.Code != http.StatusOK {
		t.Fatalf("catalog status = %d", w.Code)
	}
	body := decodeBody[struct {
		Themes []catalog.Theme `json:"themes"`
		Total  int             `json:"total_questions"`
	}](t, w)
	if len(body.Themes) != 2 || body.Themes[0].Name != "A" || body.Total != 3 {
		t.Errorf("catalog body = %+v", body)
	}

	if w := env.do(t, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Errorf("healthz status = %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/metrics", ""); w.Code != http.StatusOK {
		t.Errorf("metrics status = %d", w.Code)
	}
}

func mustEncrypt(t *testing.T, plaintext, secret string) string {
	t.Helper()
	env, err := secure.Encrypt(plaintext, secret)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	return env
}
