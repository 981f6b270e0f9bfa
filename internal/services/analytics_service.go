package services

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/soaringjerry/Wellbeing/internal/catalog"
)

// HistoryReader is the read side of the history repository.
type HistoryReader interface {
	ListForOwner(ctx context.Context, ownerID string) ([]*Assessment, error)
}

type AnalyticsService struct {
	history HistoryReader
}

type TrendPoint struct {
	AssessmentID string                   `json:"assessment_id"`
	Date         time.Time                `json:"date"`
	Scores       map[catalog.Category]int `json:"scores"`
	OverallScore int                      `json:"overall_score"`
}

type KPISummary struct {
	Count             int                             `json:"count"`
	LatestOverall     int                             `json:"latest_overall"`
	LatestDate        *time.Time                      `json:"latest_date,omitempty"`
	BestOverall       int                             `json:"best_overall"`
	AverageOverall    int                             `json:"average_overall"`
	DeltaFromPrevious *int                            `json:"delta_from_previous,omitempty"`
	CategoryAverages  map[catalog.Category]int        `json:"category_averages"`
	Strongest         catalog.Category                `json:"strongest,omitempty"`
	Weakest           catalog.Category                `json:"weakest,omitempty"`
	LatestTiers       map[catalog.Category]AdviceTier `json:"latest_tiers,omitempty"`
}

type CategoryReliability struct {
	Category catalog.Category `json:"category"`
	Items    int              `json:"items"`
	Alpha    float64          `json:"alpha"`
	N        int              `json:"n"`
}

func NewAnalyticsService(history HistoryReader) *AnalyticsService {
	return &AnalyticsService{history: history}
}

// byDate returns the owner's history sorted by completion date, oldest first.
// Records completed at the same instant keep append order.
func (s *AnalyticsService) byDate(ctx context.Context, ownerID string) ([]*Assessment, error) {
	list, err := s.history.ListForOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Date.Before(list[j].Date) })
	return list, nil
}

// Trend returns one point per completed assessment.
func (s *AnalyticsService) Trend(ctx context.Context, ownerID string) ([]TrendPoint, error) {
	list, err := s.byDate(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]TrendPoint, 0, len(list))
	for _, a := range list {
		out = append(out, TrendPoint{AssessmentID: a.ID, Date: a.Date, Scores: a.Scores, OverallScore: a.OverallScore})
	}
	return out, nil
}

// KPI summarizes the owner's history for dashboard cards.
func (s *AnalyticsService) KPI(ctx context.Context, ownerID string) (*KPISummary, error) {
	list, err := s.byDate(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	sum := &KPISummary{Count: len(list), CategoryAverages: map[catalog.Category]int{}}
	if len(list) == 0 {
		return sum, nil
	}
	totalOverall := 0
	catTotals := map[catalog.Category]int{}
	for _, a := range list {
		totalOverall += a.OverallScore
		if a.OverallScore > sum.BestOverall {
			sum.BestOverall = a.OverallScore
		}
		for _, c := range catalog.CategoryOrder() {
			catTotals[c] += a.Scores[c]
		}
	}
	n := float64(len(list))
	sum.AverageOverall = int(math.Round(float64(totalOverall) / n))
	for _, c := range catalog.CategoryOrder() {
		sum.CategoryAverages[c] = int(math.Round(float64(catTotals[c]) / n))
	}

	latest := list[len(list)-1]
	date := latest.Date
	sum.LatestOverall = latest.OverallScore
	sum.LatestDate = &date
	if len(list) > 1 {
		d := latest.OverallScore - list[len(list)-2].OverallScore
		sum.DeltaFromPrevious = &d
	}
	sum.LatestTiers = map[catalog.Category]AdviceTier{}
	for i, c := range catalog.CategoryOrder() {
		score := latest.Scores[c]
		sum.LatestTiers[c] = AdviceTierFor(score)
		if i == 0 || score > latest.Scores[sum.Strongest] {
			sum.Strongest = c
		}
		if i == 0 || score < latest.Scores[sum.Weakest] {
			sum.Weakest = c
		}
	}
	return sum, nil
}

// Reliability computes Cronbach's alpha per category over the owner's completed
// assessments, using only assessments that answered every question of the category.
func (s *AnalyticsService) Reliability(ctx context.Context, ownerID string) ([]CategoryReliability, error) {
	list, err := s.byDate(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]CategoryReliability, 0, catalog.Steps())
	for _, c := range catalog.CategoryOrder() {
		qs := catalog.QuestionsByCategory(c)
		matrix := buildAlphaMatrix(qs, list)
		out = append(out, CategoryReliability{
			Category: c,
			Items:    len(qs),
			Alpha:    CronbachAlpha(matrix),
			N:        len(matrix),
		})
	}
	return out, nil
}

func buildAlphaMatrix(qs []catalog.Question, list []*Assessment) [][]float64 {
	matrix := make([][]float64, 0, len(list))
	for _, a := range list {
		row := make([]float64, 0, len(qs))
		complete := true
		for _, q := range qs {
			v, ok := a.Answers[q.ID]
			if !ok || v < MinRating {
				complete = false
				break
			}
			row = append(row, float64(v))
		}
		if complete {
			matrix = append(matrix, row)
		}
	}
	return matrix
}
