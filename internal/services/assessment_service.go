package services

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AssessmentService keeps one Lifecycle per session, restoring drafts on first use.
type AssessmentService struct {
	mu       sync.Mutex
	sessions map[string]*Lifecycle
	drafts   DraftStore
	history  HistoryWriter
	opts     LifecycleOptions
}

func NewAssessmentService(drafts DraftStore, history HistoryWriter, opts LifecycleOptions) *AssessmentService {
	return &AssessmentService{
		sessions: map[string]*Lifecycle{},
		drafts:   drafts,
		history:  history,
		opts:     opts.withDefaults(),
	}
}

// Session returns the lifecycle for sessionID. A session that changes owner (for
// example an anonymous id later presented with a different user) gets a fresh lifecycle.
func (s *AssessmentService) Session(sessionID, ownerID string) (*Lifecycle, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, NewInvalidError("session id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stale := ""
	if lc, ok := s.sessions[sessionID]; ok {
		if lc.OwnerID() == ownerID {
			return lc, nil
		}
		stale = lc.settle()
	}
	lc := NewLifecycle(sessionID, ownerID, s.drafts, s.history, s.opts)
	lc.staleDraft = stale
	if err := lc.Restore(); err != nil {
		// Start() overwrites drafts anyway; an unreadable one is treated as absent.
		s.opts.logger().Warn("draft restore failed", zap.String("session", sessionID), zap.Error(err))
	}
	s.sessions[sessionID] = lc
	return lc, nil
}

// Prune drops lifecycles unused for maxIdle. Their drafts stay in the DraftStore and
// are restored on the next request. A lifecycle still owing a draft delete is kept.
func (s *AssessmentService) Prune(maxIdle time.Duration) int {
	cutoff := s.opts.Now().Add(-maxIdle)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, lc := range s.sessions {
		if lc.idleSince().Before(cutoff) && lc.settle() == "" {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Forget drops the in-memory lifecycle for sessionID without touching its draft.
func (s *AssessmentService) Forget(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}
