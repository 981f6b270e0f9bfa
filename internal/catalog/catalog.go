// Package catalog holds the fixed set of scoring questions and the order in
// which their categories are presented.
package catalog

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Category is one of the five life dimensions scored by an assessment.
type Category string

const (
	Psychology    Category = "psychology"
	Health        Category = "health"
	Spirituality  Category = "spirituality"
	Relationships Category = "relationships"
	Finances      Category = "finances"
)

// Question is a single Likert item. Questions are immutable once loaded.
type Question struct {
	ID       string   `yaml:"id" json:"id"`
	Text     string   `yaml:"text" json:"text"`
	Category Category `yaml:"category" json:"category"`
}

//go:embed questions.yaml
var questionsYAML []byte

type catalogFile struct {
	Categories []Category `yaml:"categories"`
	Questions  []Question `yaml:"questions"`
}

var (
	order     []Category
	questions []Question
	byID      map[string]Question
)

func init() {
	cf, err := parse(questionsYAML)
	if err != nil {
		panic(fmt.Sprintf("catalog: %v", err))
	}
	order = cf.Categories
	questions = cf.Questions
	byID = make(map[string]Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
}

func parse(data []byte) (*catalogFile, error) {
	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	known := map[Category]int{}
	for _, c := range cf.Categories {
		if !isKnown(c) {
			return nil, fmt.Errorf("unknown category %q", c)
		}
		if _, dup := known[c]; dup {
			return nil, fmt.Errorf("duplicate category %q", c)
		}
		known[c] = 0
	}
	if len(known) != len(allCategories) {
		return nil, fmt.Errorf("expected %d categories, got %d", len(allCategories), len(known))
	}
	seen := map[string]struct{}{}
	for _, q := range cf.Questions {
		if q.ID == "" {
			return nil, fmt.Errorf("question without id")
		}
		if _, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %q", q.ID)
		}
		seen[q.ID] = struct{}{}
		if _, ok := known[q.Category]; !ok {
			return nil, fmt.Errorf("question %s: unknown category %q", q.ID, q.Category)
		}
		known[q.Category]++
	}
	for c, n := range known {
		if n == 0 {
			return nil, fmt.Errorf("category %q has no questions", c)
		}
	}
	return &cf, nil
}

var allCategories = []Category{Psychology, Health, Spirituality, Relationships, Finances}

func isKnown(c Category) bool {
	for _, k := range allCategories {
		if k == c {
			return true
		}
	}
	return false
}

// ParseCategory validates s against the closed set of categories.
func ParseCategory(s string) (Category, bool) {
	c := Category(s)
	return c, isKnown(c)
}

// CategoryOrder returns the step-by-step traversal order of the assessment.
func CategoryOrder() []Category {
	return append([]Category(nil), order...)
}

// CategoryAt returns the category shown at step i.
func CategoryAt(i int) (Category, bool) {
	if i < 0 || i >= len(order) {
		return "", false
	}
	return order[i], true
}

// IsLastStep reports whether step i is the final category of the flow.
func IsLastStep(i int) bool { return i == len(order)-1 }

// Steps is the number of categories in the flow.
func Steps() int { return len(order) }

// All returns every question in definition order.
func All() []Question {
	return append([]Question(nil), questions...)
}

// QuestionsByCategory filters the catalog, keeping definition order.
func QuestionsByCategory(c Category) []Question {
	out := []Question{}
	for _, q := range questions {
		if q.Category == c {
			out = append(out, q)
		}
	}
	return out
}

// Lookup finds a question by id.
func Lookup(id string) (Question, bool) {
	q, ok := byID[id]
	return q, ok
}
