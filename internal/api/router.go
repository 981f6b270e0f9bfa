package api

import (
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/soaringjerry/Wellbeing/internal/catalog"
	"github.com/soaringjerry/Wellbeing/internal/middleware"
	"github.com/soaringjerry/Wellbeing/internal/services"
	"github.com/soaringjerry/Wellbeing/internal/utils"
)

// Options wires the router to storage and collaborators. Zero values select defaults.
type Options struct {
	Store Store
	// Drafts overrides where drafts live; nil keeps them in Store.
	Drafts         services.DraftStore
	Formula        services.OverallFormula
	HistoryTimeout time.Duration
	Signer         services.TokenSigner
	TokenTTL       time.Duration
	Recommendation services.RecommendationOptions
	HTTPClient     services.HTTPClient
	Now            func() time.Time
	Observability  services.Observability
}

type Router struct {
	assessments *services.AssessmentService
	history     *services.HistoryService
	analytics   *services.AnalyticsService
	export      *services.ExportService
	recommend   *services.RecommendationService
	auth        *services.AuthService
	accounts    *services.AccountService
	formula     services.OverallFormula
	log         *zap.Logger
	routes      map[string]bool
}

func NewRouter(opts Options) *Router {
	if opts.Store == nil {
		opts.Store = newMemoryStore()
	}
	drafts := opts.Drafts
	if drafts == nil {
		drafts = NewDraftStoreAdapter(opts.Store)
	}
	if opts.Formula == "" {
		opts.Formula = services.FormulaWeighted
	}
	log := opts.Observability.Log
	if log == nil {
		log = zap.NewNop()
	}
	history := services.NewHistoryService(NewHistoryStoreAdapter(opts.Store), opts.HistoryTimeout, opts.Observability)
	assessments := services.NewAssessmentService(drafts, history, services.LifecycleOptions{
		Formula:       opts.Formula,
		Now:           opts.Now,
		Observability: opts.Observability,
	})
	return &Router{
		assessments: assessments,
		history:     history,
		analytics:   services.NewAnalyticsService(history),
		export:      services.NewExportService(history),
		recommend:   services.NewRecommendationService(opts.HTTPClient, opts.Recommendation, opts.Observability),
		auth:        services.NewAuthService(newAuthStoreAdapter(opts.Store), opts.Signer, opts.TokenTTL),
		accounts:    services.NewAccountService(newAccountStoreAdapter(opts.Store), history, drafts, assessments, opts.Observability),
		formula:     opts.Formula,
		log:         log,
		routes:      map[string]bool{},
	}
}

// Assessments exposes the session registry so the server can prune idle sessions.
func (rt *Router) Assessments() *services.AssessmentService { return rt.assessments }

func (rt *Router) handle(mux *http.ServeMux, path string, h http.Handler) {
	rt.routes[path] = true
	mux.Handle(path, h)
}

func (rt *Router) Register(mux *http.ServeMux) {
	authed := func(f http.HandlerFunc) http.Handler { return middleware.RequireAuth(f) }

	rt.handle(mux, "/api/auth/register", http.HandlerFunc(rt.handleRegister)) // POST
	rt.handle(mux, "/api/auth/login", http.HandlerFunc(rt.handleLogin))       // POST
	rt.handle(mux, "/api/catalog", http.HandlerFunc(rt.handleCatalog))        // GET
	rt.handle(mux, "/api/score", http.HandlerFunc(rt.handleScore))            // POST

	rt.handle(mux, "/api/assessment", http.HandlerFunc(rt.handleAssessment))        // GET, DELETE
	rt.handle(mux, "/api/assessment/start", http.HandlerFunc(rt.handleStart))       // POST
	rt.handle(mux, "/api/assessment/answers", http.HandlerFunc(rt.handleAnswers))   // POST
	rt.handle(mux, "/api/assessment/next", http.HandlerFunc(rt.handleNext))         // POST
	rt.handle(mux, "/api/assessment/previous", http.HandlerFunc(rt.handlePrevious)) // POST

	rt.handle(mux, "/api/history", authed(rt.handleHistory))              // GET
	rt.handle(mux, "/api/history/latest", authed(rt.handleHistoryLatest)) // GET
	rt.handle(mux, "/api/history/export", authed(rt.handleHistoryExport)) // GET ?format=wide|long

	rt.handle(mux, "/api/analytics/trend", authed(rt.handleTrend))             // GET
	rt.handle(mux, "/api/analytics/kpi", authed(rt.handleKPI))                 // GET
	rt.handle(mux, "/api/analytics/reliability", authed(rt.handleReliability)) // GET

	rt.handle(mux, "/api/recommendations", authed(rt.handleRecommendations)) // GET ?assessment_id=&category=
	rt.handle(mux, "/api/account", authed(rt.handleAccount))                 // GET, DELETE
}

// RouteLabel maps a request to its registered path for metrics; unknown paths collapse to "other".
func (rt *Router) RouteLabel(r *http.Request) string {
	if rt.routes[r.URL.Path] {
		return r.URL.Path
	}
	switch r.URL.Path {
	case "/health", "/version", "/metrics":
		return r.URL.Path
	}
	return "other"
}

func uid(r *http.Request) string {
	id, _ := middleware.UserIDFromContext(r.Context())
	return id
}

// session resolves the caller's lifecycle: the user id when signed in, otherwise
// the X-Session-ID header namespaced so it cannot collide with a user id.
func (rt *Router) session(r *http.Request) (*services.Lifecycle, error) {
	if id := uid(r); id != "" {
		return rt.assessments.Session(id, id)
	}
	sid := strings.TrimSpace(r.Header.Get("X-Session-ID"))
	if sid == "" {
		return nil, services.NewInvalidError("sign in or send an X-Session-ID header")
	}
	return rt.assessments.Session("anon:"+sid, "")
}

// draftWarning turns ErrDraftNotSaved into a response warning; other errors pass through.
func draftWarning(r *http.Request, err error) (string, error) {
	if err == nil {
		return "", nil
	}
	if errors.Is(err, services.ErrDraftNotSaved) {
		return utils.T(middleware.LocaleFromContext(r.Context()), "warning.draft_not_saved"), nil
	}
	return "", err
}

type snapshotResponse struct {
	services.Snapshot
	Warning string `json:"warning,omitempty"`
}

// POST /api/auth/register
func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err, nil)
		return
	}
	res, err := rt.auth.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		rt.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// POST /api/auth/login
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err, nil)
		return
	}
	res, err := rt.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		rt.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /api/catalog
func (rt *Router) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	type outQuestion struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}
	type outCategory struct {
		ID        catalog.Category `json:"id"`
		Label     string           `json:"label"`
		Step      int              `json:"step"`
		Questions []outQuestion    `json:"questions"`
	}
	cats := make([]outCategory, 0, catalog.Steps())
	for i, c := range catalog.CategoryOrder() {
		oc := outCategory{ID: c, Label: utils.T(locale, "category."+string(c)), Step: i}
		for _, q := range catalog.QuestionsByCategory(c) {
			oc.Questions = append(oc.Questions, outQuestion{ID: q.ID, Text: q.Text})
		}
		cats = append(cats, oc)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": cats,
		"rating":     map[string]int{"min": services.MinRating, "max": services.MaxRating},
		"locale":     locale,
	})
}

type scoreResponse struct {
	Scores              map[catalog.Category]int                 `json:"scores"`
	OverallScore        int                                      `json:"overall_score"`
	Formula             services.OverallFormula                  `json:"formula"`
	OverallWeighted     int                                      `json:"overall_weighted"`
	OverallCategoryMean int                                      `json:"overall_category_mean"`
	Tiers               map[catalog.Category]services.AdviceTier `json:"tiers"`
	Advice              map[catalog.Category]string              `json:"advice"`
}

func (rt *Router) scoreBody(locale string, scores map[catalog.Category]int, answers services.AnswerMap) scoreResponse {
	out := scoreResponse{
		Scores:              scores,
		OverallScore:        rt.formula.Overall(answers),
		Formula:             rt.formula,
		OverallWeighted:     services.OverallScoreWeighted(answers),
		OverallCategoryMean: services.OverallScoreCategoryMean(answers),
		Tiers:               map[catalog.Category]services.AdviceTier{},
		Advice:              map[catalog.Category]string{},
	}
	for _, c := range catalog.CategoryOrder() {
		out.Tiers[c] = services.AdviceTierFor(scores[c])
		out.Advice[c] = services.Advice(locale, c, scores[c])
	}
	return out
}

// POST /api/score {answers: {question_id: rating}}
// Stateless scoring; nothing is stored.
func (rt *Router) handleScore(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Answers services.AnswerMap `json:"answers"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err, nil)
		return
	}
	if err := services.ValidateAnswers(req.Answers); err != nil {
		rt.writeError(w, r, err, nil)
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	writeJSON(w, http.StatusOK, rt.scoreBody(locale, services.ComputeScores(req.Answers), req.Answers))
}

// GET /api/assessment reports the flow state; DELETE abandons the draft.
func (rt *Router) handleAssessment(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet, http.MethodDelete) {
		return
	}
	lc, err := rt.session(r)
	if err != nil {
		rt.writeError(w, r, err, nil)
		return
	}
	if r.Method == http.MethodDelete {
		warning, err := draftWarning(r, lc.Abandon())
		if err != nil {
			rt.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, snapshotResponse{Snapshot: lc.Snapshot(), Warning: warning})
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse{Snapshot: lc.Snapshot()})
}

// POST /api/assessment/start
func (rt *Router) handleStart(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	lc, err := rt.session(r)
	if err != nil {
		rt.writeError(w, r, err, nil)
		return
	}
	snap, err := lc.Start()
	warning, err := draftWarning(r, err)
	if err != nil {
		rt.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, snapshotResponse{Snapshot: snap, Warning: warning})
}

// POST /api/assessment/answers {question_id, rating} or {answers: {question_id: rating}}
// A batch is validated as a whole before any rating is applied.
func (rt *Router) handleAnswers(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req struct {
		QuestionID string             `json:"question_id"`
		Rating     int                `json:"rating"`
		Answers    services.AnswerMap `json:"answers"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err, nil)
		return
	}
	answers := req.Answers
	if answers == nil {
		answers = services.AnswerMap{}
	}
	if req.QuestionID != "" {
		answers[req.QuestionID] = req.Rating
	}
	if len(answers) == 0 {
		rt.writeError(w, r, services.NewInvalidError("question_id or answers required"), nil)
		return
	}
	if err := services.ValidateAnswers(answers); err != nil {
		rt.writeError(w, r, err, nil)
		return
	}
	lc, err := rt.session(r)
	if err != nil {
		rt.writeError(w, r, err, nil)
		return
	}
	ids := make([]string, 0, len(answers))
	for id := range answers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var snap services.Snapshot
	warning := ""
	for _, id := range ids {
		var serr error
		snap, serr = lc.SetAnswer(id, answers[id])
		wmsg, err := draftWarning(r, serr)
		if err != nil {
			rt.writeError(w, r, err, nil)
			return
		}
		if wmsg != "" {
			warning = wmsg
		}
	}
	writeJSON(w, http.StatusOK, snapshotResponse{Snapshot: snap, Warning: warning})
}

type advanceResponse struct {
	*services.AdvanceResult
	Result  *scoreResponse `json:"result,omitempty"`
	Warning string         `json:"warning,omitempty"`
}

// POST /api/assessment/next
// Moves to the next category, or finalizes after the last one.
func (rt *Router) handleNext(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	lc, err := rt.session(r)
	if err != nil {
		rt.writeError(w, r, err, nil)
		return
	}
	res, aerr := lc.Advance(r.Context())
	resp := advanceResponse{AdvanceResult: res}
	if res != nil && res.Assessment != nil {
		body := rt.scoreBody(middleware.LocaleFromContext(r.Context()), res.Assessment.Scores, res.Assessment.Answers)
		body.OverallScore = res.Assessment.OverallScore
		resp.Result = &body
	}
	if errors.Is(aerr, services.ErrHistoryUnavailable) {
		// Scores are still shown; the draft stays on the last step for a retry.
		var a *services.Assessment
		if res != nil {
			a = res.Assessment
		}
		rt.writeError(w, r, aerr, map[string]any{"result": resp.Result, "assessment": a, "retry": true})
		return
	}
	warning, err := draftWarning(r, aerr)
	if err != nil {
		rt.writeError(w, r, err, nil)
		return
	}
	resp.Warning = warning
	writeJSON(w, http.StatusOK, resp)
}

// POST /api/assessment/previous
// At the first category the response is 409 with exit=true; the client leaves the flow.
func (rt *Router) handlePrevious(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	lc, err := rt.session(r)
	if err != nil {
		rt.writeError(w, r, err, nil)
		return
	}
	snap, perr := lc.Previous()
	if errors.Is(perr, services.ErrAtFirstCategory) {
		rt.writeError(w, r, perr, map[string]any{"exit": true, "snapshot": snap})
		return
	}
	warning, err := draftWarning(r, perr)
	if err != nil {
		rt.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse{Snapshot: snap, Warning: warning})
}

// GET /api/history
func (rt *Router) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	list, err := rt.history.ListForOwner(r.Context(), uid(r))
	if err != nil {
		rt.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assessments": list, "count": len(list)})
}

// GET /api/history/latest
func (rt *Router) handleHistoryLatest(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	a, err := rt.history.Latest(r.Context(), uid(r))
	if err != nil {
		rt.writeError(w, r, err, nil)
		return
	}
	if a == nil {
		rt.writeError(w, r, services.ErrAssessmentNotFound, nil)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// GET /api/history/export?format=wide|long
func (rt *Router) handleHistoryExport(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	res, err := rt.export.ExportCSV(r.Context(), services.ExportParams{OwnerID: uid(r), Format: r.URL.Query().Get("format")})
	if err != nil {
		rt.writeError(w, r, err, nil)
		return
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+res.Filename)
	_, _ = w.Write(res.Data)
}

// GET /api/analytics/trend
func (rt *Router) handleTrend(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	points, err := rt.analytics.Trend(r.Context(), uid(r))
	if err != nil {
		rt.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": points})
}

// GET /api/analytics/kpi
func (rt *Router) handleKPI(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	kpi, err := rt.analytics.KPI(r.Context(), uid(r))
	if err != nil {
		rt.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, kpi)
}

// GET /api/analytics/reliability
func (rt *Router) handleReliability(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	rel, err := rt.analytics.Reliability(r.Context(), uid(r))
	if err != nil {
		rt.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": rel})
}

// GET /api/recommendations?assessment_id=...&category=...
// Without assessment_id the latest assessment is used; without category every category is returned.
func (rt *Router) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()
	owner := uid(r)
	q := r.URL.Query()
	var (
		a   *services.Assessment
		err error
	)
	if id := q.Get("assessment_id"); id != "" {
		a, err = rt.history.Get(ctx, owner, id)
	} else {
		a, err = rt.history.Latest(ctx, owner)
		if err == nil && a == nil {
			err = services.ErrAssessmentNotFound
		}
	}
	if err != nil {
		rt.writeError(w, r, err, nil)
		return
	}
	locale := middleware.LocaleFromContext(ctx)
	if raw := q.Get("category"); raw != "" {
		c, ok := catalog.ParseCategory(raw)
		if !ok {
			rt.writeError(w, r, services.NewInvalidError("unknown category"), nil)
			return
		}
		rec, err := rt.recommend.Recommend(ctx, a, c, locale)
		if err != nil {
			rt.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"assessment_id": a.ID, "recommendations": []*services.Recommendation{rec}})
		return
	}
	recs, err := rt.recommend.RecommendAll(ctx, a, locale)
	if err != nil {
		rt.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assessment_id": a.ID, "recommendations": recs})
}

// GET /api/account exports the caller's data; DELETE erases it.
func (rt *Router) handleAccount(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet, http.MethodDelete) {
		return
	}
	if r.Method == http.MethodDelete {
		if err := rt.accounts.Delete(r.Context(), uid(r)); err != nil {
			rt.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	exp, err := rt.accounts.Export(r.Context(), uid(r))
	if err != nil {
		rt.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}
