package services

import (
	"strings"
	"testing"

	"github.com/soaringjerry/Wellbeing/internal/catalog"
)

func fillCategory(answers AnswerMap, c catalog.Category, rating int) AnswerMap {
	for _, q := range catalog.QuestionsByCategory(c) {
		answers[q.ID] = rating
	}
	return answers
}

func TestCategoryScoreScenarios(t *testing.T) {
	cases := []struct {
		name    string
		c       catalog.Category
		answers AnswerMap
		want    int
	}{
		{"all fives", catalog.Psychology, AnswerMap{"psy1": 5, "psy2": 5, "psy3": 5, "psy4": 5, "psy5": 5}, 100},
		{"single three", catalog.Psychology, AnswerMap{"psy1": 3}, 60},
		{"other category ignored", catalog.Health, AnswerMap{"psy1": 3}, 0},
		{"mixed", catalog.Finances, AnswerMap{"fin1": 1, "fin2": 2}, 30},
		{"two of three", catalog.Relationships, AnswerMap{"rel1": 4, "rel2": 5, "rel3": 4}, 87},
		{"zero is unanswered", catalog.Psychology, AnswerMap{"psy1": 0, "psy2": 4}, 80},
		{"clamped above max", catalog.Psychology, AnswerMap{"psy1": 9}, 100},
	}
	for _, c := range cases {
		if got := CategoryScore(c.c, c.answers); got != c.want {
			t.Fatalf("%s: CategoryScore(%s)=%d, want %d", c.name, c.c, got, c.want)
		}
	}
}

func TestEmptyAnswersScoreZero(t *testing.T) {
	for _, c := range catalog.CategoryOrder() {
		if got := CategoryScore(c, AnswerMap{}); got != 0 {
			t.Fatalf("CategoryScore(%s, {})=%d, want 0", c, got)
		}
		if got := CategoryScore(c, nil); got != 0 {
			t.Fatalf("CategoryScore(%s, nil)=%d, want 0", c, got)
		}
	}
	if got := OverallScoreWeighted(AnswerMap{}); got != 0 {
		t.Fatalf("OverallScoreWeighted({})=%d, want 0", got)
	}
	if got := OverallScoreCategoryMean(AnswerMap{}); got != 0 {
		t.Fatalf("OverallScoreCategoryMean({})=%d, want 0", got)
	}
}

func TestFullMarksCeiling(t *testing.T) {
	for _, c := range catalog.CategoryOrder() {
		answers := fillCategory(AnswerMap{}, c, 5)
		if got := CategoryScore(c, answers); got != 100 {
			t.Fatalf("CategoryScore(%s) all fives=%d, want 100", c, got)
		}
	}
}

func TestCategoryScoreBoundsAndMonotonic(t *testing.T) {
	qs := catalog.QuestionsByCategory(catalog.Health)
	// Enumerate every rating vector over the first three questions, others unanswered.
	for a := 0; a <= MaxRating; a++ {
		for b := 0; b <= MaxRating; b++ {
			for c := 0; c <= MaxRating; c++ {
				answers := AnswerMap{}
				for i, v := range []int{a, b, c} {
					if v > 0 {
						answers[qs[i].ID] = v
					}
				}
				score := CategoryScore(catalog.Health, answers)
				if score < 0 || score > 100 {
					t.Fatalf("score %d out of bounds for %v", score, answers)
				}
				for id, v := range answers {
					if v == MaxRating {
						continue
					}
					bumped := answers.Clone()
					bumped[id] = v + 1
					if got := CategoryScore(catalog.Health, bumped); got < score {
						t.Fatalf("raising %s from %d decreased score %d -> %d", id, v, score, got)
					}
				}
			}
		}
	}
}

func TestOverallFormulasDiffer(t *testing.T) {
	answers := AnswerMap{"psy1": 3}
	if got := OverallScoreWeighted(answers); got != 60 {
		t.Fatalf("OverallScoreWeighted=%d, want 60", got)
	}
	// 60 for psychology, 0 for four unanswered categories.
	if got := OverallScoreCategoryMean(answers); got != 12 {
		t.Fatalf("OverallScoreCategoryMean=%d, want 12", got)
	}

	answers = fillCategory(AnswerMap{}, catalog.Psychology, 5)
	answers = fillCategory(answers, catalog.Finances, 1)
	// weighted: (25 + 4) / (9*5) = 64.44 -> 64; mean: (100 + 20) / 5 = 24
	if got := OverallScoreWeighted(answers); got != 64 {
		t.Fatalf("OverallScoreWeighted=%d, want 64", got)
	}
	if got := FormulaCategoryMean.Overall(answers); got != 24 {
		t.Fatalf("category mean=%d, want 24", got)
	}
}

func TestAllFoursIsEighty(t *testing.T) {
	answers := AnswerMap{}
	for _, q := range catalog.All() {
		answers[q.ID] = 4
	}
	if got := OverallScoreWeighted(answers); got != 80 {
		t.Fatalf("OverallScoreWeighted=%d, want 80", got)
	}
	if got := OverallScoreCategoryMean(answers); got != 80 {
		t.Fatalf("OverallScoreCategoryMean=%d, want 80", got)
	}
}

func TestAdviceTiers(t *testing.T) {
	cases := []struct {
		score int
		want  AdviceTier
	}{
		{100, TierExcellent}, {80, TierExcellent}, {79, TierGood}, {60, TierGood},
		{59, TierOnTrack}, {40, TierOnTrack}, {39, TierNeedsAttention}, {0, TierNeedsAttention},
	}
	for _, c := range cases {
		if got := AdviceTierFor(c.score); got != c.want {
			t.Fatalf("AdviceTierFor(%d)=%s, want %s", c.score, got, c.want)
		}
	}
	txt := Advice("en", catalog.Finances, 0)
	if !strings.Contains(txt, "needs attention") || !strings.Contains(txt, "finances") {
		t.Fatalf("Advice(en, finances, 0)=%q", txt)
	}
	if ar := Advice("ar", catalog.Finances, 90); !strings.Contains(ar, "المال") {
		t.Fatalf("Advice(ar, finances, 90)=%q", ar)
	}
}

func TestParseOverallFormula(t *testing.T) {
	if f, err := ParseOverallFormula(""); err != nil || f != FormulaWeighted {
		t.Fatalf("empty formula=%q,%v", f, err)
	}
	if f, err := ParseOverallFormula("category_mean"); err != nil || f != FormulaCategoryMean {
		t.Fatalf("category_mean=%q,%v", f, err)
	}
	if _, err := ParseOverallFormula("median"); err == nil {
		t.Fatalf("expected error for unknown formula")
	}
}
