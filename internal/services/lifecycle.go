package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soaringjerry/Wellbeing/internal/catalog"
)

// DraftStore persists the single in-progress draft of a session.
// GetDraft returns (nil, nil) when the session has no draft.
type DraftStore interface {
	GetDraft(sessionID string) (*Draft, error)
	SaveDraft(sessionID string, d *Draft) error
	DeleteDraft(sessionID string) error
}

// HistoryWriter receives finalized assessments.
type HistoryWriter interface {
	Append(ctx context.Context, a *Assessment) error
}

// LifecycleOptions configures a Lifecycle. Zero values select the defaults.
type LifecycleOptions struct {
	Formula OverallFormula
	Now     func() time.Time
	NewID   func() string
	Observability
}

func (o LifecycleOptions) withDefaults() LifecycleOptions {
	if o.Formula == "" {
		o.Formula = FormulaWeighted
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.NewID == nil {
		o.NewID = newAssessmentID
	}
	return o
}

// newAssessmentID returns a time-ordered UUIDv7, falling back to v4 if the clock source fails.
func newAssessmentID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// Snapshot is a read-only view of a session's flow.
type Snapshot struct {
	State        State            `json:"state"`
	Step         int              `json:"step"`
	Steps        int              `json:"steps"`
	Category     catalog.Category `json:"category,omitempty"`
	IsLastStep   bool             `json:"is_last_step"`
	AssessmentID string           `json:"assessment_id,omitempty"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	Answers      AnswerMap        `json:"answers"`
}

// AdvanceResult reports the outcome of Advance. Assessment is set once scores were computed.
type AdvanceResult struct {
	Snapshot
	Completed  bool        `json:"completed"`
	Persisted  bool        `json:"persisted"`
	Assessment *Assessment `json:"assessment,omitempty"`
}

// Lifecycle drives one session through Idle -> InProgress(step) -> Completed.
// Each session has a single writer; the mutex only serializes overlapping requests.
type Lifecycle struct {
	mu        sync.Mutex
	sessionID string
	ownerID   string
	drafts    DraftStore
	history   HistoryWriter
	opts      LifecycleOptions
	draft     *Draft
	lastUsed  time.Time
	// staleDraft names an assessment whose stored draft must not come back; its
	// delete failed and is retried before the store is read or pruned.
	staleDraft string
}

// NewLifecycle builds an idle lifecycle. ownerID may be empty for anonymous sessions,
// which can score assessments but never write history.
func NewLifecycle(sessionID, ownerID string, drafts DraftStore, history HistoryWriter, opts LifecycleOptions) *Lifecycle {
	opts = opts.withDefaults()
	return &Lifecycle{
		sessionID: sessionID,
		ownerID:   ownerID,
		drafts:    drafts,
		history:   history,
		opts:      opts,
		lastUsed:  opts.Now(),
	}
}

func (l *Lifecycle) log() *zap.Logger {
	return l.opts.logger().With(zap.String("session", l.sessionID))
}

// OwnerID is the user the session finalizes into; empty means anonymous.
func (l *Lifecycle) OwnerID() string { return l.ownerID }

// Restore re-hydrates the in-progress draft saved by an earlier process or page load.
func (l *Lifecycle) Restore() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.drafts == nil {
		return nil
	}
	_ = l.flushStaleLocked()
	d, err := l.drafts.GetDraft(l.sessionID)
	if err != nil {
		return fmt.Errorf("load draft: %w", err)
	}
	if d == nil || (l.staleDraft != "" && d.Assessment.ID == l.staleDraft) {
		l.draft = nil
		return nil
	}
	clean := AnswerMap{}
	for id, rating := range d.Assessment.Answers {
		if validateAnswer(id, rating) != nil {
			l.log().Warn("dropping invalid answer from restored draft", zap.String("question", id), zap.Int("rating", rating))
			continue
		}
		clean[id] = rating
	}
	d.Assessment.Answers = clean
	if d.Step < 0 || d.Step >= catalog.Steps() {
		d.Step = 0
	}
	if d.Assessment.OwnerID == "" {
		d.Assessment.OwnerID = l.ownerID
	}
	l.draft = d
	return nil
}

// Snapshot reports the current state.
func (l *Lifecycle) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Lifecycle) snapshotLocked() Snapshot {
	s := Snapshot{State: StateIdle, Steps: catalog.Steps(), Answers: AnswerMap{}}
	if l.draft == nil {
		return s
	}
	started := l.draft.Assessment.StartedAt
	s.State = StateInProgress
	s.Step = l.draft.Step
	s.Category, _ = catalog.CategoryAt(l.draft.Step)
	s.IsLastStep = catalog.IsLastStep(l.draft.Step)
	s.AssessmentID = l.draft.Assessment.ID
	s.StartedAt = &started
	s.Answers = l.draft.Assessment.Answers.Clone()
	return s
}

func (l *Lifecycle) touch() { l.lastUsed = l.opts.Now() }

// saveLocked persists the whole draft. A failure leaves memory authoritative.
func (l *Lifecycle) saveLocked() error {
	if l.drafts == nil {
		return nil
	}
	cp := &Draft{Assessment: *l.draft.Assessment.Clone(), Step: l.draft.Step}
	if err := l.drafts.SaveDraft(l.sessionID, cp); err != nil {
		l.opts.Metrics.DraftSaveFailed()
		l.log().Warn("draft save failed", zap.String("assessment", l.draft.Assessment.ID), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDraftNotSaved, err)
	}
	// The stored slot now holds the live draft.
	l.staleDraft = ""
	return nil
}

// flushStaleLocked retries the delete of a discarded draft.
func (l *Lifecycle) flushStaleLocked() error {
	if l.staleDraft == "" {
		return nil
	}
	if l.drafts == nil {
		l.staleDraft = ""
		return nil
	}
	if err := l.drafts.DeleteDraft(l.sessionID); err != nil {
		l.log().Warn("draft delete failed", zap.String("assessment", l.staleDraft), zap.Error(err))
		return err
	}
	l.staleDraft = ""
	return nil
}

// discardLocked drops the in-memory draft and deletes the stored copy.
func (l *Lifecycle) discardLocked() error {
	l.staleDraft = l.draft.Assessment.ID
	l.draft = nil
	return l.flushStaleLocked()
}

// settle retries a pending draft delete. It returns the assessment id still owed a
// delete, or "" when the session can be forgotten.
func (l *Lifecycle) settle() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.flushStaleLocked()
	return l.staleDraft
}

// Start begins a new assessment at the first category, replacing any unfinished draft.
func (l *Lifecycle) Start() (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.touch()
	_ = l.flushStaleLocked()
	overwrote := l.draft != nil
	now := l.opts.Now()
	l.draft = &Draft{
		Assessment: Assessment{
			ID:        l.opts.NewID(),
			OwnerID:   l.ownerID,
			StartedAt: now,
			Date:      now,
			Answers:   AnswerMap{},
			Scores:    map[catalog.Category]int{},
		},
	}
	l.opts.Metrics.AssessmentStarted(overwrote)
	l.log().Debug("assessment started", zap.String("assessment", l.draft.Assessment.ID), zap.Bool("overwrote", overwrote))
	return l.snapshotLocked(), l.saveLocked()
}

func validateAnswer(questionID string, rating int) error {
	if _, ok := catalog.Lookup(questionID); !ok {
		return ErrUnknownQuestion
	}
	if rating < MinRating || rating > MaxRating {
		return ErrInvalidRating
	}
	return nil
}

// ValidateAnswers checks a whole answer set with the same rules as SetAnswer.
func ValidateAnswers(answers AnswerMap) error {
	for id, v := range answers {
		if err := validateAnswer(id, v); err != nil {
			return fmt.Errorf("%s: %w", id, err)
		}
	}
	return nil
}

// SetAnswer records or overwrites one rating and re-persists the draft.
// Validation happens before any mutation. An error wrapping ErrDraftNotSaved means
// the answer applied in memory but may not survive a reload.
func (l *Lifecycle) SetAnswer(questionID string, rating int) (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.touch()
	if l.draft == nil {
		return l.snapshotLocked(), ErrNoActiveAssessment
	}
	if err := validateAnswer(questionID, rating); err != nil {
		return l.snapshotLocked(), err
	}
	l.draft.Assessment.Answers[questionID] = rating
	return l.snapshotLocked(), l.saveLocked()
}

// Previous steps back one category. At the first category it returns ErrAtFirstCategory
// and the caller leaves the flow.
func (l *Lifecycle) Previous() (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.touch()
	if l.draft == nil {
		return l.snapshotLocked(), ErrNoActiveAssessment
	}
	if l.draft.Step == 0 {
		return l.snapshotLocked(), ErrAtFirstCategory
	}
	l.draft.Step--
	return l.snapshotLocked(), l.saveLocked()
}

// Advance moves to the next category, or finalizes after the last one: scores are
// computed, Date is stamped with the finalization time, the record is appended to
// history for signed-in owners and the draft is cleared. Unanswered questions do not
// block advancing.
//
// When the history append fails the computed assessment is still returned, the draft
// stays at the last step and the error wraps ErrHistoryUnavailable so the caller can retry.
func (l *Lifecycle) Advance(ctx context.Context) (*AdvanceResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.touch()
	if l.draft == nil {
		return &AdvanceResult{Snapshot: l.snapshotLocked()}, ErrNoActiveAssessment
	}
	if !catalog.IsLastStep(l.draft.Step) {
		l.draft.Step++
		return &AdvanceResult{Snapshot: l.snapshotLocked()}, l.saveLocked()
	}

	final := l.draft.Assessment.Clone()
	final.OwnerID = l.ownerID
	final.Scores = ComputeScores(final.Answers)
	final.OverallScore = l.opts.Formula.Overall(final.Answers)
	final.Date = l.opts.Now()

	persisted := false
	if l.ownerID != "" && l.history != nil {
		if err := l.history.Append(ctx, final.Clone()); err != nil {
			l.log().Error("history append failed; draft kept for retry", zap.String("assessment", final.ID), zap.Error(err))
			if !errors.Is(err, ErrHistoryUnavailable) {
				err = fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
			}
			return &AdvanceResult{Snapshot: l.snapshotLocked(), Assessment: final}, err
		}
		persisted = true
	}

	// A failed delete is retried later; the record is already final.
	_ = l.discardLocked()
	l.opts.Metrics.AssessmentFinalized(persisted)
	l.log().Info("assessment finalized",
		zap.String("assessment", final.ID),
		zap.Int("overall", final.OverallScore),
		zap.Bool("persisted", persisted))

	snap := l.snapshotLocked()
	snap.State = StateCompleted
	return &AdvanceResult{Snapshot: snap, Completed: true, Persisted: persisted, Assessment: final}, nil
}

// Abandon discards the draft and returns to Idle. If the stored copy cannot be
// deleted the error wraps ErrDraftNotSaved and the delete is retried on the next
// Start, Restore or prune; the abandoned draft is never restored.
func (l *Lifecycle) Abandon() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.touch()
	var err error
	if l.draft == nil {
		err = l.flushStaleLocked()
	} else {
		err = l.discardLocked()
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDraftNotSaved, err)
	}
	return nil
}

func (l *Lifecycle) idleSince() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastUsed
}
