package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soaringjerry/Wellbeing/internal/catalog"
)

type stubHTTPClient struct {
	err error
}

func (c *stubHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return nil, c.err
}

func TestRecommendLocalFallback(t *testing.T) {
	svc := NewRecommendationService(nil, RecommendationOptions{}, Observability{})
	a := finalized("A1", 1, 2)
	rec, err := svc.Recommend(context.Background(), a, catalog.Health, "en")
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if rec.Source != "local" || rec.Tier != TierOnTrack || rec.Score != 40 {
		t.Fatalf("unexpected %+v", rec)
	}
	if !strings.Contains(rec.Advice, "health") {
		t.Fatalf("advice %q", rec.Advice)
	}
}

func TestRecommendRemote(t *testing.T) {
	var got recommendationRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"title":      "Money habits",
			"advice":     "Track spending for a week.",
			"references": []string{"ref-1"},
			"actions":    []string{"open a savings jar"},
		})
	}))
	defer srv.Close()

	svc := NewRecommendationService(srv.Client(), RecommendationOptions{URL: srv.URL, APIKey: "k1", Model: "m"}, Observability{})
	rec, err := svc.Recommend(context.Background(), finalized("A1", 1, 5), catalog.Finances, "ar")
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if rec.Source != "remote" || rec.Title != "Money habits" || len(rec.Actions) != 1 {
		t.Fatalf("unexpected %+v", rec)
	}
	if got.Category != "finances" || got.Score != 100 || got.Locale != "ar" || len(got.Answers) != 4 || got.Model != "m" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestRecommendUpstreamFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := finalized("A1", 1, 3)
	for name, svc := range map[string]*RecommendationService{
		"status":    NewRecommendationService(srv.Client(), RecommendationOptions{URL: srv.URL}, Observability{}),
		"transport": NewRecommendationService(&stubHTTPClient{err: errors.New("dial")}, RecommendationOptions{URL: "http://advisor"}, Observability{}),
	} {
		_, err := svc.Recommend(context.Background(), a, catalog.Health, "en")
		se, ok := AsServiceError(err)
		if !ok || se.Code != ErrorBadGateway {
			t.Fatalf("%s: expected bad gateway, got %v", name, err)
		}
	}
	if a.Scores[catalog.Health] != 60 {
		t.Fatalf("assessment mutated")
	}
}

func TestRecommendTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()
	svc := NewRecommendationService(srv.Client(), RecommendationOptions{URL: srv.URL, Timeout: 50 * time.Millisecond}, Observability{})
	if _, err := svc.Recommend(context.Background(), finalized("A1", 1, 3), catalog.Health, "en"); err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestRecommendAllKeepsCategoryOrder(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		var in recommendationRequest
		_ = json.NewDecoder(r.Body).Decode(&in)
		_ = json.NewEncoder(w).Encode(map[string]any{"advice": "advice for " + in.Category})
	}))
	defer srv.Close()

	svc := NewRecommendationService(srv.Client(), RecommendationOptions{URL: srv.URL, Concurrency: 3}, Observability{})
	recs, err := svc.RecommendAll(context.Background(), finalized("A1", 1, 4), "en")
	if err != nil {
		t.Fatalf("RecommendAll: %v", err)
	}
	if atomic.LoadInt32(&calls) != 5 || len(recs) != 5 {
		t.Fatalf("calls=%d recs=%d", calls, len(recs))
	}
	for i, c := range catalog.CategoryOrder() {
		if recs[i].Category != c || recs[i].Advice != "advice for "+string(c) {
			t.Fatalf("rec %d: %+v", i, recs[i])
		}
	}
}

func TestRecommendRejectsBadInput(t *testing.T) {
	svc := NewRecommendationService(nil, RecommendationOptions{}, Observability{})
	if _, err := svc.Recommend(context.Background(), nil, catalog.Health, "en"); err == nil {
		t.Fatalf("expected error for nil assessment")
	}
	if _, err := svc.Recommend(context.Background(), finalized("A1", 1, 3), catalog.Category("sleep"), "en"); err == nil {
		t.Fatalf("expected error for unknown category")
	}
}
