package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/soaringjerry/Wellbeing/internal/filelock"
)

// DraftRecord is the stored form of an in-progress assessment.
type DraftRecord struct {
	SessionID    string         `json:"session_id"`
	AssessmentID string         `json:"assessment_id"`
	OwnerID      string         `json:"owner_id,omitempty"`
	Step         int            `json:"step"`
	Answers      map[string]int `json:"answers"`
	StartedAt    time.Time      `json:"started_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// AssessmentRecord is one completed assessment with a column per category.
type AssessmentRecord struct {
	ID            string         `json:"id"`
	OwnerID       string         `json:"owner_id"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   time.Time      `json:"completed_at"`
	Answers       map[string]int `json:"answers"`
	Psychology    int            `json:"psychology"`
	Health        int            `json:"health"`
	Spirituality  int            `json:"spirituality"`
	Relationships int            `json:"relationships"`
	Finances      int            `json:"finances"`
	Overall       int            `json:"overall"`
}

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	PassHash  []byte    `json:"pass_hash"`
	CreatedAt time.Time `json:"created_at"`
}

func cloneAnswers(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (d *DraftRecord) clone() *DraftRecord {
	cp := *d
	cp.Answers = cloneAnswers(d.Answers)
	return &cp
}

func (a *AssessmentRecord) clone() *AssessmentRecord {
	cp := *a
	cp.Answers = cloneAnswers(a.Answers)
	return &cp
}

func (u *User) clone() *User {
	cp := *u
	cp.PassHash = append([]byte(nil), u.PassHash...)
	return &cp
}

// memoryStore keeps everything in process. With a snapshot path every write is
// flushed to a JSON file so a restart (or the sqlite migration) can pick it up.
type memoryStore struct {
	mu           sync.RWMutex
	path         string
	drafts       map[string]*DraftRecord
	assessments  []*AssessmentRecord
	usersByID    map[string]*User
	usersByEmail map[string]*User
}

// LegacySnapshot is the on-disk JSON layout of the memory store.
type LegacySnapshot struct {
	Drafts      []*DraftRecord      `json:"drafts"`
	Assessments []*AssessmentRecord `json:"assessments"`
	Users       []*User             `json:"users"`
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		drafts:       map[string]*DraftRecord{},
		assessments:  []*AssessmentRecord{},
		usersByID:    map[string]*User{},
		usersByEmail: map[string]*User{},
	}
}

// NewMemoryStore returns an in-process Store. An empty path disables the snapshot file.
func NewMemoryStore(path string) (Store, error) {
	s := newMemoryStore()
	s.path = path
	if path == "" {
		return s, nil
	}
	if err := s.load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return s, nil
}

// NewMemoryStoreFromPath loads an existing snapshot; it fails with os.ErrNotExist
// when there is nothing to load.
func NewMemoryStoreFromPath(path string) (*memoryStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, os.ErrNotExist
	}
	s := newMemoryStore()
	s.path = path
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// MemoryStoreSnapshot copies the store's content in insertion order.
func MemoryStoreSnapshot(s *memoryStore) *LegacySnapshot {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *memoryStore) snapshotLocked() *LegacySnapshot {
	snap := &LegacySnapshot{
		Drafts:      make([]*DraftRecord, 0, len(s.drafts)),
		Assessments: make([]*AssessmentRecord, 0, len(s.assessments)),
		Users:       make([]*User, 0, len(s.usersByID)),
	}
	for _, d := range s.drafts {
		snap.Drafts = append(snap.Drafts, d.clone())
	}
	sort.Slice(snap.Drafts, func(i, j int) bool { return snap.Drafts[i].SessionID < snap.Drafts[j].SessionID })
	for _, a := range s.assessments {
		snap.Assessments = append(snap.Assessments, a.clone())
	}
	for _, u := range s.usersByID {
		snap.Users = append(snap.Users, u.clone())
	}
	sort.Slice(snap.Users, func(i, j int) bool { return snap.Users[i].CreatedAt.Before(snap.Users[j].CreatedAt) })
	return snap
}

func (s *memoryStore) load() error {
	b, err := filelock.ReadFile(s.path)
	if err != nil {
		return err
	}
	var snap LegacySnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return fmt.Errorf("decode snapshot %s: %w", s.path, err)
	}
	for _, d := range snap.Drafts {
		if d != nil && d.SessionID != "" {
			s.drafts[d.SessionID] = d
		}
	}
	for _, a := range snap.Assessments {
		if a != nil {
			s.assessments = append(s.assessments, a)
		}
	}
	for _, u := range snap.Users {
		if u != nil {
			s.usersByID[u.ID] = u
			s.usersByEmail[strings.ToLower(u.Email)] = u
		}
	}
	return nil
}

// persistLocked writes the snapshot while the write lock is held.
func (s *memoryStore) persistLocked() error {
	if s.path == "" {
		return nil
	}
	b, err := json.MarshalIndent(s.snapshotLocked(), "", "  ")
	if err != nil {
		return err
	}
	return filelock.WriteFile(s.path, b)
}

func (s *memoryStore) GetDraft(_ context.Context, sessionID string) (*DraftRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drafts[sessionID]
	if !ok {
		return nil, nil
	}
	return d.clone(), nil
}

func (s *memoryStore) UpsertDraft(_ context.Context, d *DraftRecord) error {
	if d == nil || d.SessionID == "" {
		return errors.New("draft session id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.drafts[d.SessionID]
	s.drafts[d.SessionID] = d.clone()
	if err := s.persistLocked(); err != nil {
		if had {
			s.drafts[d.SessionID] = prev
		} else {
			delete(s.drafts, d.SessionID)
		}
		return err
	}
	return nil
}

func (s *memoryStore) DeleteDraft(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.drafts[sessionID]
	if !ok {
		return nil
	}
	delete(s.drafts, sessionID)
	if err := s.persistLocked(); err != nil {
		s.drafts[sessionID] = prev
		return err
	}
	return nil
}

func (s *memoryStore) AddAssessment(ctx context.Context, a *AssessmentRecord) error {
	if a == nil || a.ID == "" {
		return errors.New("assessment id required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.assessments {
		if existing.ID == a.ID {
			return fmt.Errorf("assessment %s: %w", a.ID, ErrDuplicate)
		}
	}
	s.assessments = append(s.assessments, a.clone())
	if err := s.persistLocked(); err != nil {
		s.assessments = s.assessments[:len(s.assessments)-1]
		return err
	}
	return nil
}

func (s *memoryStore) ListAssessmentsByOwner(ctx context.Context, ownerID string) ([]*AssessmentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*AssessmentRecord{}
	for _, a := range s.assessments {
		if a.OwnerID == ownerID {
			out = append(out, a.clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CompletedAt.Before(out[j].CompletedAt) })
	return out, nil
}

func (s *memoryStore) AddUser(_ context.Context, u *User) error {
	if u == nil || u.ID == "" {
		return errors.New("user id required")
	}
	key := strings.ToLower(u.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.usersByEmail[key]; ok {
		return fmt.Errorf("user %s: %w", key, ErrDuplicate)
	}
	cp := u.clone()
	s.usersByID[u.ID] = cp
	s.usersByEmail[key] = cp
	if err := s.persistLocked(); err != nil {
		delete(s.usersByID, u.ID)
		delete(s.usersByEmail, key)
		return err
	}
	return nil
}

func (s *memoryStore) FindUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.usersByEmail[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	return u.clone(), nil
}

func (s *memoryStore) GetUser(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.usersByID[id]
	if !ok {
		return nil, nil
	}
	return u.clone(), nil
}

func (s *memoryStore) DeleteUserData(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.usersByID[id]
	if !ok {
		return false, nil
	}
	prevAssessments := s.assessments
	removedDrafts := map[string]*DraftRecord{}
	delete(s.usersByID, id)
	delete(s.usersByEmail, strings.ToLower(u.Email))
	kept := make([]*AssessmentRecord, 0, len(s.assessments))
	for _, a := range s.assessments {
		if a.OwnerID != id {
			kept = append(kept, a)
		}
	}
	s.assessments = kept
	for sid, d := range s.drafts {
		if d.OwnerID == id {
			removedDrafts[sid] = d
			delete(s.drafts, sid)
		}
	}
	if err := s.persistLocked(); err != nil {
		s.usersByID[id] = u
		s.usersByEmail[strings.ToLower(u.Email)] = u
		s.assessments = prevAssessments
		for sid, d := range removedDrafts {
			s.drafts[sid] = d
		}
		return false, err
	}
	return true, nil
}

func (s *memoryStore) Close() error { return nil }
