package api

import (
	"context"
	"errors"
)

// ErrDuplicate is returned when a record with the same key already exists.
var ErrDuplicate = errors.New("duplicate record")

// Store is the persistence boundary shared by the in-memory and SQLite backends.
// Assessments are append-only: there is no update path.
type Store interface {
	GetDraft(ctx context.Context, sessionID string) (*DraftRecord, error)
	UpsertDraft(ctx context.Context, d *DraftRecord) error
	DeleteDraft(ctx context.Context, sessionID string) error

	AddAssessment(ctx context.Context, a *AssessmentRecord) error
	// ListAssessmentsByOwner orders by completion time, then insertion.
	ListAssessmentsByOwner(ctx context.Context, ownerID string) ([]*AssessmentRecord, error)

	AddUser(ctx context.Context, u *User) error
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	// DeleteUserData removes the user, their drafts and their assessments.
	DeleteUserData(ctx context.Context, id string) (bool, error)

	Close() error
}

var _ Store = (*memoryStore)(nil)
