package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type AccountStore interface {
	GetUser(ctx context.Context, id string) (*User, error)
	// DeleteUserData removes the user row and every completed assessment they own.
	DeleteUserData(ctx context.Context, id string) (bool, error)
}

// AccountService serves a signed-in user's own data: a full export and erasure.
type AccountService struct {
	store    AccountStore
	history  HistoryReader
	drafts   DraftStore
	sessions *AssessmentService
	obs      Observability
}

func NewAccountService(store AccountStore, history HistoryReader, drafts DraftStore, sessions *AssessmentService, obs Observability) *AccountService {
	return &AccountService{store: store, history: history, drafts: drafts, sessions: sessions, obs: obs}
}

type AccountProfile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type AccountExport struct {
	Profile     AccountProfile `json:"profile"`
	Assessments []*Assessment  `json:"assessments"`
	Draft       *Draft         `json:"draft,omitempty"`
}

func (s *AccountService) Export(ctx context.Context, uid string) (*AccountExport, error) {
	if uid == "" {
		return nil, NewUnauthorizedError("unauthorized")
	}
	u, err := s.store.GetUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, NewNotFoundError("not found")
	}
	list, err := s.history.ListForOwner(ctx, uid)
	if err != nil {
		return nil, err
	}
	out := &AccountExport{
		Profile:     AccountProfile{ID: u.ID, Email: u.Email, Name: u.Name, CreatedAt: u.CreatedAt},
		Assessments: list,
	}
	if s.drafts != nil {
		d, err := s.drafts.GetDraft(uid)
		if err != nil {
			s.obs.logger().Warn("account export: draft unreadable", zap.String("user", uid), zap.Error(err))
		} else {
			out.Draft = d
		}
	}
	return out, nil
}

// Delete erases the user's draft, history and account. The signed-in session id is
// the user id, so the live lifecycle is dropped as well.
func (s *AccountService) Delete(ctx context.Context, uid string) error {
	if uid == "" {
		return NewUnauthorizedError("unauthorized")
	}
	if s.drafts != nil {
		if err := s.drafts.DeleteDraft(uid); err != nil {
			return err
		}
	}
	ok, err := s.store.DeleteUserData(ctx, uid)
	if err != nil {
		return err
	}
	if !ok {
		return NewNotFoundError("not found")
	}
	if s.sessions != nil {
		s.sessions.Forget(uid)
	}
	s.obs.logger().Info("account deleted", zap.String("user", uid))
	return nil
}
