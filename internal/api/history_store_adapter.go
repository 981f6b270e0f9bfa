package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/soaringjerry/Wellbeing/internal/catalog"
	"github.com/soaringjerry/Wellbeing/internal/services"
)

type historyStoreAdapter struct {
	store Store
}

func NewHistoryStoreAdapter(store Store) services.HistoryStore {
	return &historyStoreAdapter{store: store}
}

func (a *historyStoreAdapter) AppendAssessment(ctx context.Context, as *services.Assessment) error {
	rec, err := toAssessmentRecord(as)
	if err != nil {
		return err
	}
	if err := a.store.AddAssessment(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return a.resolveDuplicate(ctx, rec)
		}
		return err
	}
	return nil
}

// resolveDuplicate accepts a repeated append of a record the owner already has.
// An earlier attempt may have committed before reporting an error.
func (a *historyStoreAdapter) resolveDuplicate(ctx context.Context, rec *AssessmentRecord) error {
	existing, err := a.store.ListAssessmentsByOwner(ctx, rec.OwnerID)
	if err != nil {
		return err
	}
	for _, r := range existing {
		if r.ID == rec.ID {
			return nil
		}
	}
	return services.NewConflictError("assessment already recorded")
}

func (a *historyStoreAdapter) ListAssessments(ctx context.Context, ownerID string) ([]*services.Assessment, error) {
	recs, err := a.store.ListAssessmentsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]*services.Assessment, 0, len(recs))
	for _, r := range recs {
		out = append(out, fromAssessmentRecord(r))
	}
	return out, nil
}

// scoreColumn returns the record column holding category c.
func scoreColumn(r *AssessmentRecord, c catalog.Category) (*int, error) {
	switch c {
	case catalog.Psychology:
		return &r.Psychology, nil
	case catalog.Health:
		return &r.Health, nil
	case catalog.Spirituality:
		return &r.Spirituality, nil
	case catalog.Relationships:
		return &r.Relationships, nil
	case catalog.Finances:
		return &r.Finances, nil
	}
	return nil, fmt.Errorf("no column for category %q", c)
}

func toAssessmentRecord(a *services.Assessment) (*AssessmentRecord, error) {
	if a == nil {
		return nil, services.NewInvalidError("assessment required")
	}
	rec := &AssessmentRecord{
		ID:          a.ID,
		OwnerID:     a.OwnerID,
		StartedAt:   a.StartedAt,
		CompletedAt: a.Date,
		Answers:     cloneAnswers(a.Answers),
		Overall:     a.OverallScore,
	}
	for _, c := range catalog.CategoryOrder() {
		col, err := scoreColumn(rec, c)
		if err != nil {
			return nil, err
		}
		*col = a.Scores[c]
	}
	return rec, nil
}

func fromAssessmentRecord(r *AssessmentRecord) *services.Assessment {
	out := &services.Assessment{
		ID:           r.ID,
		OwnerID:      r.OwnerID,
		StartedAt:    r.StartedAt,
		Date:         r.CompletedAt,
		Answers:      services.AnswerMap(cloneAnswers(r.Answers)),
		Scores:       make(map[catalog.Category]int, catalog.Steps()),
		OverallScore: r.Overall,
	}
	for _, c := range catalog.CategoryOrder() {
		if col, err := scoreColumn(r, c); err == nil {
			out.Scores[c] = *col
		}
	}
	return out
}

var _ services.HistoryStore = (*historyStoreAdapter)(nil)
