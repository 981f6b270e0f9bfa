package services

import (
	"fmt"
	"math"

	"github.com/soaringjerry/Wellbeing/internal/catalog"
	"github.com/soaringjerry/Wellbeing/internal/utils"
)

// clampRating normalizes a stored rating. Non-positive values mean "unanswered"
// and report ok=false; values above MaxRating are clamped.
func clampRating(raw int) (int, bool) {
	if raw < MinRating {
		return 0, false
	}
	if raw > MaxRating {
		return MaxRating, true
	}
	return raw, true
}

// percent mirrors round(total / (n * MaxRating) * 100) in that evaluation order.
func percent(total, n int) int {
	if n == 0 {
		return 0
	}
	return int(math.Round(float64(total) / float64(n*MaxRating) * 100))
}

// CategoryScore is the percentage of the maximum rating reached on the answered
// questions of category c. Unanswered questions are left out of both sums.
func CategoryScore(c catalog.Category, answers AnswerMap) int {
	total, answered := 0, 0
	for _, q := range catalog.QuestionsByCategory(c) {
		v, ok := clampRating(answers[q.ID])
		if !ok {
			continue
		}
		total += v
		answered++
	}
	return percent(total, answered)
}

// ComputeScores returns CategoryScore for every category.
func ComputeScores(answers AnswerMap) map[catalog.Category]int {
	out := make(map[catalog.Category]int, catalog.Steps())
	for _, c := range catalog.CategoryOrder() {
		out[c] = CategoryScore(c, answers)
	}
	return out
}

// OverallScoreWeighted averages every answered question directly, so categories
// with more answers weigh more.
func OverallScoreWeighted(answers AnswerMap) int {
	total, answered := 0, 0
	for _, raw := range answers {
		v, ok := clampRating(raw)
		if !ok {
			continue
		}
		total += v
		answered++
	}
	return percent(total, answered)
}

// OverallScoreCategoryMean is the rounded arithmetic mean of the five category percentages.
func OverallScoreCategoryMean(answers AnswerMap) int {
	order := catalog.CategoryOrder()
	sum := 0
	for _, c := range order {
		sum += CategoryScore(c, answers)
	}
	return int(math.Round(float64(sum) / float64(len(order))))
}

// OverallFormula names one of the two overall-score operations.
type OverallFormula string

const (
	FormulaWeighted     OverallFormula = "weighted"
	FormulaCategoryMean OverallFormula = "category_mean"
)

// ParseOverallFormula maps a config value to a formula; empty selects weighted.
func ParseOverallFormula(s string) (OverallFormula, error) {
	switch OverallFormula(s) {
	case "", FormulaWeighted:
		return FormulaWeighted, nil
	case FormulaCategoryMean:
		return FormulaCategoryMean, nil
	}
	return "", NewInvalidError(fmt.Sprintf("unknown overall formula %q", s))
}

// Overall evaluates the named formula.
func (f OverallFormula) Overall(answers AnswerMap) int {
	if f == FormulaCategoryMean {
		return OverallScoreCategoryMean(answers)
	}
	return OverallScoreWeighted(answers)
}

// AdviceTier bands a percentage; each bound is inclusive.
type AdviceTier string

const (
	TierExcellent      AdviceTier = "excellent"
	TierGood           AdviceTier = "good"
	TierOnTrack        AdviceTier = "on_track"
	TierNeedsAttention AdviceTier = "needs_attention"
)

func AdviceTierFor(score int) AdviceTier {
	switch {
	case score >= 80:
		return TierExcellent
	case score >= 60:
		return TierGood
	case score >= 40:
		return TierOnTrack
	default:
		return TierNeedsAttention
	}
}

// Advice renders the tier text for category c in locale.
func Advice(locale string, c catalog.Category, score int) string {
	label := utils.T(locale, "category."+string(c))
	return fmt.Sprintf(utils.T(locale, "advice."+string(AdviceTierFor(score))), label)
}
