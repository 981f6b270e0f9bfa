package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/Wellbeing/internal/catalog"
	"github.com/soaringjerry/Wellbeing/internal/middleware"
	"github.com/soaringjerry/Wellbeing/internal/services"
)

const testSecret = "router-test-secret-0123456789abcdef"

func newTestHandler(t *testing.T, opts Options) (http.Handler, *Router) {
	t.Helper()
	j := middleware.NewJWT(testSecret)
	opts.Signer = j.Sign
	rt := NewRouter(opts)
	mux := http.NewServeMux()
	rt.Register(mux)
	return middleware.LocaleMiddleware(j.WithAuth(mux)), rt
}

type call struct {
	method, path string
	body         any
	token        string
	session      string
}

func do(t *testing.T, h http.Handler, c call) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.session != "" {
		req.Header.Set("X-Session-ID", c.session)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func register(t *testing.T, h http.Handler, email string) string {
	t.Helper()
	rec := do(t, h, call{method: http.MethodPost, path: "/api/auth/register", body: map[string]string{"email": email, "password": "Secret123", "name": "Test"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tok, _ := decode(t, rec)["token"].(string)
	require.NotEmpty(t, tok)
	return tok
}

// completeAll answers every question with rating and advances through all categories.
func completeAll(t *testing.T, h http.Handler, base call, rating int) map[string]any {
	t.Helper()
	start := base
	start.method, start.path = http.MethodPost, "/api/assessment/start"
	require.Equal(t, http.StatusCreated, do(t, h, start).Code)

	answers := map[string]int{}
	for _, q := range catalog.All() {
		answers[q.ID] = rating
	}
	ans := base
	ans.method, ans.path, ans.body = http.MethodPost, "/api/assessment/answers", map[string]any{"answers": answers}
	require.Equal(t, http.StatusOK, do(t, h, ans).Code)

	next := base
	next.method, next.path = http.MethodPost, "/api/assessment/next"
	var last map[string]any
	for i := 0; i < catalog.Steps(); i++ {
		rec := do(t, h, next)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		last = decode(t, rec)
	}
	return last
}

func TestCatalogAndScore(t *testing.T) {
	h, _ := newTestHandler(t, Options{})

	rec := do(t, h, call{method: http.MethodGet, path: "/api/catalog?lang=ar"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	cats := body["categories"].([]any)
	require.Len(t, cats, 5)
	first := cats[0].(map[string]any)
	assert.Equal(t, "psychology", first["id"])
	assert.Equal(t, "الجانب النفسي", first["label"])
	assert.Len(t, first["questions"].([]any), 5)

	// Scenario: psy1..psy5 = 5,4,3,2,1 gives psychology 60; no other answers.
	rec = do(t, h, call{method: http.MethodPost, path: "/api/score", body: map[string]any{
		"answers": map[string]int{"psy1": 5, "psy2": 4, "psy3": 3, "psy4": 2, "psy5": 1},
	}})
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	scores := body["scores"].(map[string]any)
	assert.EqualValues(t, 60, scores["psychology"])
	assert.EqualValues(t, 0, scores["health"])
	assert.EqualValues(t, 60, body["overall_weighted"])
	assert.EqualValues(t, 12, body["overall_category_mean"])
	assert.Equal(t, "good", body["tiers"].(map[string]any)["psychology"])

	rec = do(t, h, call{method: http.MethodPost, path: "/api/score", body: map[string]any{"answers": map[string]int{"psy1": 6}}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, call{method: http.MethodPost, path: "/api/score", body: map[string]any{"answers": map[string]int{"zzz": 3}}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, call{method: http.MethodGet, path: "/api/score"})
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAnonymousFlowComputesButDoesNotPersist(t *testing.T) {
	h, _ := newTestHandler(t, Options{})
	anon := call{session: "browser-1"}

	rec := do(t, h, call{method: http.MethodPost, path: "/api/assessment/start"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "session header required for anonymous callers")

	last := completeAll(t, h, anon, 4)
	assert.Equal(t, true, last["completed"])
	assert.Equal(t, false, last["persisted"])
	assert.Equal(t, "completed", last["state"])
	result := last["result"].(map[string]any)
	assert.EqualValues(t, 80, result["overall_score"])

	rec = do(t, h, call{method: http.MethodGet, path: "/api/assessment", session: "browser-1"})
	assert.Equal(t, "idle", decode(t, rec)["state"])
}

func TestSignedInFlowHistoryAnalyticsExport(t *testing.T) {
	h, _ := newTestHandler(t, Options{})
	tok := register(t, h, "amal@example.com")
	user := call{token: tok}

	last := completeAll(t, h, user, 5)
	assert.Equal(t, true, last["persisted"])
	assessment := last["assessment"].(map[string]any)
	id := assessment["id"].(string)
	assert.EqualValues(t, 100, assessment["overall_score"])

	completeAll(t, h, user, 2)

	rec := do(t, h, call{method: http.MethodGet, path: "/api/history", token: tok})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["count"])

	rec = do(t, h, call{method: http.MethodGet, path: "/api/history/latest", token: tok})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 40, decode(t, rec)["overall_score"])

	rec = do(t, h, call{method: http.MethodGet, path: "/api/history/export?format=wide", token: tok})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "wellbeing_history_wide_")
	rows, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	rec = do(t, h, call{method: http.MethodGet, path: "/api/analytics/kpi", token: tok})
	require.Equal(t, http.StatusOK, rec.Code)
	kpi := decode(t, rec)
	assert.EqualValues(t, 2, kpi["count"])
	assert.EqualValues(t, -60, kpi["delta_from_previous"])

	rec = do(t, h, call{method: http.MethodGet, path: "/api/analytics/trend", token: tok})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["points"].([]any), 2)

	rec = do(t, h, call{method: http.MethodGet, path: "/api/analytics/reliability", token: tok})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["categories"].([]any), 5)

	rec = do(t, h, call{method: http.MethodGet, path: "/api/recommendations?category=health&assessment_id=" + id, token: tok})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	recs := decode(t, rec)["recommendations"].([]any)
	require.Len(t, recs, 1)
	assert.Equal(t, "excellent", recs[0].(map[string]any)["tier"])

	rec = do(t, h, call{method: http.MethodGet, path: "/api/recommendations", token: tok})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["recommendations"].([]any), 5)

	rec = do(t, h, call{method: http.MethodGet, path: "/api/recommendations?assessment_id=missing", token: tok})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryRequiresAuthAndIsolatesOwners(t *testing.T) {
	h, _ := newTestHandler(t, Options{})
	rec := do(t, h, call{method: http.MethodGet, path: "/api/history"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	a := register(t, h, "a@example.com")
	b := register(t, h, "b@example.com")
	completeAll(t, h, call{token: a}, 3)

	rec = do(t, h, call{method: http.MethodGet, path: "/api/history", token: b})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode(t, rec)["count"])

	rec = do(t, h, call{method: http.MethodGet, path: "/api/history/latest", token: b})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNavigationErrors(t *testing.T) {
	h, _ := newTestHandler(t, Options{})
	s := call{session: "nav"}

	rec := do(t, h, call{method: http.MethodPost, path: "/api/assessment/next", session: s.session})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, call{method: http.MethodPost, path: "/api/assessment/answers", session: s.session, body: map[string]any{"question_id": "psy1", "rating": 3}})
	assert.Equal(t, http.StatusConflict, rec.Code, "answers need a started assessment")

	require.Equal(t, http.StatusCreated, do(t, h, call{method: http.MethodPost, path: "/api/assessment/start", session: s.session}).Code)

	rec = do(t, h, call{method: http.MethodPost, path: "/api/assessment/previous", session: s.session})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, true, decode(t, rec)["exit"])

	rec = do(t, h, call{method: http.MethodPost, path: "/api/assessment/answers", session: s.session, body: map[string]any{"answers": map[string]int{"psy1": 3, "psy2": 0}}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, call{method: http.MethodGet, path: "/api/assessment", session: s.session})
	assert.Empty(t, decode(t, rec)["answers"], "a rejected batch applies nothing")

	require.Equal(t, http.StatusOK, do(t, h, call{method: http.MethodPost, path: "/api/assessment/next", session: s.session}).Code)
	rec = do(t, h, call{method: http.MethodPost, path: "/api/assessment/previous", session: s.session})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode(t, rec)["step"])

	rec = do(t, h, call{method: http.MethodDelete, path: "/api/assessment", session: s.session})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "idle", decode(t, rec)["state"])
}

type failingDrafts struct{}

func (failingDrafts) GetDraft(string) (*services.Draft, error) { return nil, nil }
func (failingDrafts) SaveDraft(string, *services.Draft) error  { return errors.New("disk full") }
func (failingDrafts) DeleteDraft(string) error                 { return nil }

func TestDraftSaveFailureIsAWarning(t *testing.T) {
	h, _ := newTestHandler(t, Options{Drafts: failingDrafts{}})
	rec := do(t, h, call{method: http.MethodPost, path: "/api/assessment/start", session: "w"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["warning"])

	rec = do(t, h, call{method: http.MethodPost, path: "/api/assessment/answers", session: "w", body: map[string]any{"question_id": "hea1", "rating": 4}})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.NotEmpty(t, body["warning"])
	assert.EqualValues(t, 4, body["answers"].(map[string]any)["hea1"])
}

// flakyStore fails history appends while down is set. With lostAck the next
// append commits and still reports a failure.
type flakyStore struct {
	Store
	down    bool
	lostAck bool
}

func (s *flakyStore) AddAssessment(ctx context.Context, a *AssessmentRecord) error {
	if s.down {
		return errors.New("database is locked")
	}
	if s.lostAck {
		s.lostAck = false
		if err := s.Store.AddAssessment(ctx, a); err != nil {
			return err
		}
		return errors.New("connection reset after commit")
	}
	return s.Store.AddAssessment(ctx, a)
}

func TestHistoryFailureKeepsDraftForRetry(t *testing.T) {
	store := &flakyStore{Store: newMemoryStore(), down: true}
	h, _ := newTestHandler(t, Options{Store: store})
	tok := register(t, h, "retry@example.com")
	user := call{token: tok}

	require.Equal(t, http.StatusCreated, do(t, h, call{method: http.MethodPost, path: "/api/assessment/start", token: tok}).Code)
	next := call{method: http.MethodPost, path: "/api/assessment/next", token: user.token}
	for i := 0; i < catalog.Steps()-1; i++ {
		require.Equal(t, http.StatusOK, do(t, h, next).Code)
	}
	rec := do(t, h, next)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["retry"])
	assert.NotNil(t, body["result"])

	rec = do(t, h, call{method: http.MethodGet, path: "/api/assessment", token: tok})
	snap := decode(t, rec)
	assert.Equal(t, "in_progress", snap["state"])
	assert.Equal(t, true, snap["is_last_step"])

	store.down = false
	rec = do(t, h, next)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["persisted"])
}

func TestRetryAfterCommittedAppendKeepsOneRecord(t *testing.T) {
	store := &flakyStore{Store: newMemoryStore(), lostAck: true}
	h, _ := newTestHandler(t, Options{Store: store})
	tok := register(t, h, "lostack@example.com")

	require.Equal(t, http.StatusCreated, do(t, h, call{method: http.MethodPost, path: "/api/assessment/start", token: tok}).Code)
	next := call{method: http.MethodPost, path: "/api/assessment/next", token: tok}
	for i := 0; i < catalog.Steps()-1; i++ {
		require.Equal(t, http.StatusOK, do(t, h, next).Code)
	}
	require.Equal(t, http.StatusServiceUnavailable, do(t, h, next).Code)

	rec := do(t, h, next)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["persisted"])

	rec = do(t, h, call{method: http.MethodGet, path: "/api/history", token: tok})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["count"])
}

func TestAccountExportAndDelete(t *testing.T) {
	h, _ := newTestHandler(t, Options{})
	tok := register(t, h, "gone@example.com")
	completeAll(t, h, call{token: tok}, 3)

	rec := do(t, h, call{method: http.MethodGet, path: "/api/account", token: tok})
	require.Equal(t, http.StatusOK, rec.Code)
	exp := decode(t, rec)
	assert.Equal(t, "gone@example.com", exp["profile"].(map[string]any)["email"])
	assert.Len(t, exp["assessments"].([]any), 1)

	require.Equal(t, http.StatusOK, do(t, h, call{method: http.MethodDelete, path: "/api/account", token: tok}).Code)
	rec = do(t, h, call{method: http.MethodGet, path: "/api/history", token: tok})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode(t, rec)["count"])

	rec = do(t, h, call{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{"email": "gone@example.com", "password": "Secret123"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouteLabel(t *testing.T) {
	_, rt := newTestHandler(t, Options{})
	assert.Equal(t, "/api/catalog", rt.RouteLabel(httptest.NewRequest(http.MethodGet, "/api/catalog", nil)))
	assert.Equal(t, "/metrics", rt.RouteLabel(httptest.NewRequest(http.MethodGet, "/metrics", nil)))
	assert.Equal(t, "other", rt.RouteLabel(httptest.NewRequest(http.MethodGet, "/assets/x.js", nil)))
}
