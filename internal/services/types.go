package services

import (
	"time"

	"github.com/soaringjerry/Wellbeing/internal/catalog"
)

const (
	MinRating = 1
	MaxRating = 5
)

// AnswerMap maps question id to a rating for one assessment attempt.
type AnswerMap map[string]int

// Clone returns an independent copy; a nil map clones to an empty one.
func (m AnswerMap) Clone() AnswerMap {
	out := make(AnswerMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Assessment is either the draft being answered or a completed, immutable record.
// Date is the finalization instant on completed records; StartedAt keeps the creation time.
type Assessment struct {
	ID           string                   `json:"id"`
	OwnerID      string                   `json:"owner_id,omitempty"`
	StartedAt    time.Time                `json:"started_at"`
	Date         time.Time                `json:"date"`
	Answers      AnswerMap                `json:"answers"`
	Scores       map[catalog.Category]int `json:"scores,omitempty"`
	OverallScore int                      `json:"overall_score"`
}

// Clone deep-copies the record so callers cannot mutate stored state.
func (a *Assessment) Clone() *Assessment {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Answers = a.Answers.Clone()
	if a.Scores != nil {
		cp.Scores = make(map[catalog.Category]int, len(a.Scores))
		for k, v := range a.Scores {
			cp.Scores[k] = v
		}
	}
	return &cp
}

// Draft is the persisted form of an in-progress assessment. Step indexes catalog.CategoryOrder().
type Draft struct {
	Assessment Assessment `json:"assessment"`
	Step       int        `json:"step"`
}

// State of a session's assessment flow.
type State string

const (
	StateIdle       State = "idle"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
)
