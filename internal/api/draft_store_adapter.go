package api

import (
	"context"
	"time"

	"github.com/soaringjerry/Wellbeing/internal/catalog"
	"github.com/soaringjerry/Wellbeing/internal/services"
)

// draftStoreAdapter serves services.DraftStore from the main Store. Draft calls
// carry no request context, so each uses a background one.
type draftStoreAdapter struct {
	store Store
	now   func() time.Time
}

func NewDraftStoreAdapter(store Store) services.DraftStore {
	return &draftStoreAdapter{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (a *draftStoreAdapter) GetDraft(sessionID string) (*services.Draft, error) {
	d, err := a.store.GetDraft(context.Background(), sessionID)
	if err != nil || d == nil {
		return nil, err
	}
	return &services.Draft{
		Assessment: services.Assessment{
			ID:        d.AssessmentID,
			OwnerID:   d.OwnerID,
			StartedAt: d.StartedAt,
			Date:      d.StartedAt,
			Answers:   services.AnswerMap(cloneAnswers(d.Answers)),
			Scores:    map[catalog.Category]int{},
		},
		Step: d.Step,
	}, nil
}

func (a *draftStoreAdapter) SaveDraft(sessionID string, d *services.Draft) error {
	if d == nil {
		return services.NewInvalidError("draft required")
	}
	return a.store.UpsertDraft(context.Background(), &DraftRecord{
		SessionID:    sessionID,
		AssessmentID: d.Assessment.ID,
		OwnerID:      d.Assessment.OwnerID,
		Step:         d.Step,
		Answers:      cloneAnswers(d.Assessment.Answers),
		StartedAt:    d.Assessment.StartedAt,
		UpdatedAt:    a.now(),
	})
}

func (a *draftStoreAdapter) DeleteDraft(sessionID string) error {
	return a.store.DeleteDraft(context.Background(), sessionID)
}

var _ services.DraftStore = (*draftStoreAdapter)(nil)
