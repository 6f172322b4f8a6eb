package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"algoverse/internal/app/service"
	"algoverse/internal/common/security"
	"algoverse/internal/domain/repository"
	"algoverse/internal/platform/executor"
	"algoverse/internal/platform/queue"
	"algoverse/internal/platform/store"
	"algoverse/internal/platform/store/memstore"
)

var testSecret = []byte("test-secret-that-is-long-enough-for-hs256")

// countingRunner answers from a table keyed by stdin.
type countingRunner struct {
	calls   atomic.Int32
	answers map[string]string
}

func (r *countingRunner) Execute(_ context.Context, _, _, stdin string) executor.Outcome {
	r.calls.Add(1)
	return executor.Outcome{Kind: executor.Success, Output: r.answers[stdin]}
}

type testServer struct {
	t        *testing.T
	handler  http.Handler
	gw       *memstore.Store
	runner   *countingRunner
	resolver *security.JWTResolver
}

func newTestServer(t *testing.T, opts RouterOptions) *testServer {
	t.Helper()
	gw := memstore.New().Unique("user_progress", "user_id", "problem_id")
	require.NoError(t, gw.Seed("languages", store.Record{"slug": "python", "executor_key": "python3"}))
	require.NoError(t, gw.Seed("problems",
		store.Record{"id": "p1", "slug": "double", "title": "Double", "difficulty": "easy", "tags": []string{}},
		store.Record{"id": "p2", "slug": "empty", "title": "Empty", "difficulty": "easy", "tags": []string{}},
	))
	require.NoError(t, gw.Seed("testcases",
		store.Record{"id": "t1", "problem_id": "p1", "input": "1", "expected_output": "2", "is_sample": true, "points": 10},
		store.Record{"id": "t2", "problem_id": "p1", "input": "5", "expected_output": "10", "is_sample": false, "points": 20},
	))

	runner := &countingRunner{answers: map[string]string{"1": "2", "5": "10"}}
	resolver := security.NewJWTResolver(testSecret)
	log := zap.NewNop()

	userRepo := repository.NewUserRepository(gw)
	problemRepo := repository.NewProblemRepository(gw)
	submissionRepo := repository.NewSubmissionRepository(gw)
	progressRepo := repository.NewProgressRepository(gw)
	progress := service.NewProgressService(progressRepo)

	authService := service.NewAuthService(resolver, userRepo, func(email string) bool { return email == "boss@example.com" }, log)
	router := NewRouter(log,
		authService,
		service.NewProblemService(problemRepo, progressRepo),
		service.NewSubmissionService(submissionRepo, problemRepo, progress, runner, nil, log),
		service.NewAdminService(userRepo, problemRepo, submissionRepo, progressRepo),
		opts,
	)
	return &testServer{t: t, handler: router, gw: gw, runner: runner, resolver: resolver}
}

func (s *testServer) token(userID, email string) string {
	tok, err := s.resolver.GenerateToken(userID, email, time.Hour)
	require.NoError(s.t, err)
	return tok
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(s.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	rec := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestPublicProblemRoutes(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	rec := s.do(http.MethodGet, "/problems", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["problems"], 2)

	rec = s.do(http.MethodGet, "/problems/p1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Double", body["problem"].(map[string]any)["title"])
	assert.Len(t, body["sample_testcases"], 1)

	rec = s.do(http.MethodGet, "/problems/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["error"])

	rec = s.do(http.MethodGet, "/languages", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"python"}, decode(t, rec)["languages"])
}

func TestRunWithUnknownLanguageNeverCallsExecutor(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	rec := s.do(http.MethodPost, "/run/p1", "", map[string]string{"language": "cobol", "code": "DISPLAY 1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "invalid language selected")
	assert.Zero(t, s.runner.calls.Load())

	rec = s.do(http.MethodPost, "/run/p1", "", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, s.runner.calls.Load())
}

func TestRunSample(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	rec := s.do(http.MethodPost, "/run/p1", "", map[string]string{"language": "python", "code": "print(2)"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{
		"input": "1", "expected": "2", "output": "2", "passed": true, "is_error": false,
	}, decode(t, rec))
	assert.EqualValues(t, 1, s.runner.calls.Load())
	assert.Empty(t, s.gw.Rows("submissions"))
}

func TestSubmitRequiresBearerToken(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	payload := map[string]string{"language": "python", "code": "x"}

	rec := s.do(http.MethodPost, "/submit/p1", "", payload)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/submit/p1", strings.NewReader(`{"language":"python","code":"x"}`))
	req.Header.Set("Authorization", "Token "+s.token("u1", "u1@example.com"))
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "malformed prefix")

	rec = s.do(http.MethodPost, "/submit/p1", "garbage", payload)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, s.runner.calls.Load())
}

func TestSubmitWithoutTestCasesStoresNothing(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	rec := s.do(http.MethodPost, "/submit/p2", s.token("u1", "u1@example.com"), map[string]string{"language": "python", "code": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, s.gw.Rows("submissions"))
	assert.Zero(t, s.runner.calls.Load())
}

func TestSubmitAndHistory(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	tok := s.token("u1", "u1@example.com")

	rec := s.do(http.MethodPost, "/submit/p1", tok, map[string]string{"language": "python", "code": "x"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode(t, rec)
	assert.Equal(t, true, report["passed"])
	assert.EqualValues(t, 30, report["score"])
	assert.EqualValues(t, 2, report["total_tests"])
	assert.EqualValues(t, 2, report["passed_tests"])
	assert.Len(t, report["results"], 2)
	id := report["submission_id"].(string)

	rec = s.do(http.MethodGet, "/submissions?problem_id=p1", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["submissions"], 1)

	rec = s.do(http.MethodGet, "/submissions/"+id, tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["results"], 2)

	rec = s.do(http.MethodGet, "/submissions/"+id, s.token("u2", "u2@example.com"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/problems?user_id=u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode(t, rec)["problems"].([]any)[0].(map[string]any)
	assert.Equal(t, true, first["solved"])
	assert.EqualValues(t, 1, first["attempts"])
}

func TestRunIsRateLimited(t *testing.T) {
	s := newTestServer(t, RouterOptions{RunLimiter: queue.NewLocalLimiter(1, time.Minute)})
	payload := map[string]string{"language": "python", "code": "x"}

	rec := s.do(http.MethodPost, "/run/p1", "", payload)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(http.MethodPost, "/run/p1", "", payload)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.EqualValues(t, 1, s.runner.calls.Load(), "rejected before execution")
}

func TestMeProvisionsProfile(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	rec := s.do(http.MethodGet, "/auth/me", s.token("u1", "jane@example.com"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "jane", body["username"])
	assert.Equal(t, "Jane", body["display_name"])
	assert.Equal(t, "coder", body["role"])
	assert.Equal(t, "jane@example.com", body["email"])

	rec = s.do(http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	boss := s.token("admin-1", "boss@example.com")
	coder := s.token("u1", "u1@example.com")

	rec := s.do(http.MethodGet, "/admin/stats", boss, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "no profile yet")

	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/auth/me", boss, nil).Code)
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/auth/me", coder, nil).Code)

	rec = s.do(http.MethodGet, "/admin/stats", coder, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "admin access required")

	rec = s.do(http.MethodPost, "/admin/problems", boss, map[string]any{"title": "Reverse String", "difficulty": "easy"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	problem := created["problem"].(map[string]any)
	assert.Equal(t, "reverse-string", problem["slug"])
	assert.NotEmpty(t, created["message"])
	problemID := problem["id"].(string)

	rec = s.do(http.MethodPost, "/admin/testcases", boss, map[string]any{"problem_id": problemID, "input": "ab", "expected_output": "ba"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.EqualValues(t, 10, decode(t, rec)["testcase"].(map[string]any)["points"])

	rec = s.do(http.MethodGet, "/admin/problems/"+problemID+"/testcases", boss, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["testcases"], 1)

	rec = s.do(http.MethodPut, "/admin/problems/"+problemID, boss, map[string]any{"title": "Reverse", "difficulty": "medium"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "medium", decode(t, rec)["problem"].(map[string]any)["difficulty"])

	rec = s.do(http.MethodGet, "/admin/stats", boss, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode(t, rec)
	assert.EqualValues(t, 1, stats["total_users"])
	assert.EqualValues(t, 3, stats["total_problems"])

	rec = s.do(http.MethodGet, "/admin/users", boss, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["users"], 1)

	rec = s.do(http.MethodDelete, "/admin/problems/"+problemID, boss, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(http.MethodDelete, "/admin/problems/"+problemID, boss, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, RouterOptions{CORSAllowedOrigins: []string{"https://app.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/submit/p1", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
