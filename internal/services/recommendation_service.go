package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/soaringjerry/Wellbeing/internal/catalog"
	"github.com/soaringjerry/Wellbeing/internal/utils"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type RecommendationOptions struct {
	URL         string
	APIKey      string
	Model       string
	Timeout     time.Duration
	Concurrency int
}

type Recommendation struct {
	Category   catalog.Category `json:"category"`
	Score      int              `json:"score"`
	Tier       AdviceTier       `json:"tier"`
	Title      string           `json:"title"`
	Advice     string           `json:"advice"`
	References []string         `json:"references,omitempty"`
	Actions    []string         `json:"actions,omitempty"`
	Source     string           `json:"source"`
}

// RecommendationService asks an external advisor for per-category guidance.
// Without a configured URL it answers from the local advice table.
type RecommendationService struct {
	client HTTPClient
	opts   RecommendationOptions
	obs    Observability
}

func NewRecommendationService(client HTTPClient, opts RecommendationOptions, obs Observability) *RecommendationService {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	return &RecommendationService{client: client, opts: opts, obs: obs}
}

type recommendationRequest struct {
	Model    string         `json:"model,omitempty"`
	Locale   string         `json:"locale"`
	Category string         `json:"category"`
	Score    int            `json:"score"`
	Tier     string         `json:"tier"`
	Answers  map[string]int `json:"answers"`
}

type recommendationResponse struct {
	Title      string   `json:"title"`
	Advice     string   `json:"advice"`
	References []string `json:"references"`
	Actions    []string `json:"actions"`
}

// Recommend returns guidance for one category of a completed assessment.
func (s *RecommendationService) Recommend(ctx context.Context, a *Assessment, c catalog.Category, locale string) (*Recommendation, error) {
	if a == nil || a.Scores == nil {
		return nil, NewInvalidError("completed assessment required")
	}
	if _, ok := catalog.ParseCategory(string(c)); !ok {
		return nil, NewInvalidError("unknown category")
	}
	score := a.Scores[c]
	rec := &Recommendation{
		Category: c,
		Score:    score,
		Tier:     AdviceTierFor(score),
		Title:    utils.T(locale, "category."+string(c)),
	}
	if strings.TrimSpace(s.opts.URL) == "" {
		rec.Advice = Advice(locale, c, score)
		rec.Source = "local"
		return rec, nil
	}

	answers := map[string]int{}
	for _, q := range catalog.QuestionsByCategory(c) {
		if v, ok := a.Answers[q.ID]; ok {
			answers[q.ID] = v
		}
	}
	body, err := json.Marshal(recommendationRequest{
		Model:    s.opts.Model,
		Locale:   locale,
		Category: string(c),
		Score:    score,
		Tier:     string(rec.Tier),
		Answers:  answers,
	})
	if err != nil {
		return nil, err
	}
	out, err := s.post(ctx, body)
	if err != nil {
		s.obs.Metrics.RecommendationFailed()
		s.obs.logger().Warn("recommendation request failed",
			zap.String("category", string(c)), zap.Error(err))
		return nil, err
	}
	if out.Title != "" {
		rec.Title = out.Title
	}
	rec.Advice = out.Advice
	rec.References = out.References
	rec.Actions = out.Actions
	rec.Source = "remote"
	return rec, nil
}

func (s *RecommendationService) post(ctx context.Context, body []byte) (*recommendationResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.opts.APIKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, NewBadGatewayError(err.Error())
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, NewBadGatewayError(fmt.Sprintf("advisor returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b))))
	}
	var out recommendationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, NewBadGatewayError("invalid JSON from advisor")
	}
	if strings.TrimSpace(out.Advice) == "" {
		return nil, NewBadGatewayError("advisor returned no advice")
	}
	return &out, nil
}

// RecommendAll fetches every category in catalog order. The first failure cancels the rest.
func (s *RecommendationService) RecommendAll(ctx context.Context, a *Assessment, locale string) ([]*Recommendation, error) {
	order := catalog.CategoryOrder()
	out := make([]*Recommendation, len(order))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, c := range order {
		g.Go(func() error {
			rec, err := s.Recommend(gctx, a, c, locale)
			if err != nil {
				return err
			}
			out[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
