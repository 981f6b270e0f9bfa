package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HistoryStore is the durable storage behind the append-only history.
// ListAssessments returns an owner's records ordered by completion time, then insertion.
type HistoryStore interface {
	AppendAssessment(ctx context.Context, a *Assessment) error
	ListAssessments(ctx context.Context, ownerID string) ([]*Assessment, error)
}

// HistoryService is the append-only repository of completed assessments.
type HistoryService struct {
	store   HistoryStore
	timeout time.Duration
	obs     Observability
}

const defaultHistoryTimeout = 5 * time.Second

func NewHistoryService(store HistoryStore, timeout time.Duration, obs Observability) *HistoryService {
	if timeout <= 0 {
		timeout = defaultHistoryTimeout
	}
	return &HistoryService{store: store, timeout: timeout, obs: obs}
}

func (s *HistoryService) fail(op string, err error) error {
	s.obs.Metrics.HistoryFailed(op)
	s.obs.logger().Warn("history store error", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
}

// Append stores one finalized assessment. Existing records are never touched.
func (s *HistoryService) Append(ctx context.Context, a *Assessment) error {
	if a == nil || strings.TrimSpace(a.ID) == "" {
		return NewInvalidError("assessment id required")
	}
	if strings.TrimSpace(a.OwnerID) == "" {
		return NewInvalidError("owner id required to persist history")
	}
	if a.Scores == nil {
		return NewInvalidError("assessment is not finalized")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.AppendAssessment(ctx, a.Clone()); err != nil {
		return s.fail("append", err)
	}
	return nil
}

// ListForOwner returns the owner's full history in append order. Callers may re-sort.
func (s *HistoryService) ListForOwner(ctx context.Context, ownerID string) ([]*Assessment, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, NewUnauthorizedError("sign in to view history")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	list, err := s.store.ListAssessments(ctx, ownerID)
	if err != nil {
		return nil, s.fail("list", err)
	}
	out := make([]*Assessment, 0, len(list))
	for _, a := range list {
		out = append(out, a.Clone())
	}
	return out, nil
}

// Latest returns the last appended assessment, or nil when the history is empty.
func (s *HistoryService) Latest(ctx context.Context, ownerID string) (*Assessment, error) {
	list, err := s.ListForOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[len(list)-1], nil
}

// Get finds one of the owner's completed assessments by id.
func (s *HistoryService) Get(ctx context.Context, ownerID, id string) (*Assessment, error) {
	list, err := s.ListForOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for _, a := range list {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, ErrAssessmentNotFound
}
