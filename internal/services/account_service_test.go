package services

import (
	"context"
	"testing"
	"time"
)

type stubAccountStore struct {
	users   map[string]*User
	deleted []string
}

func (s *stubAccountStore) GetUser(ctx context.Context, id string) (*User, error) {
	if u, ok := s.users[id]; ok {
		copy := *u
		return &copy, nil
	}
	return nil, nil
}

func (s *stubAccountStore) DeleteUserData(ctx context.Context, id string) (bool, error) {
	if _, ok := s.users[id]; !ok {
		return false, nil
	}
	delete(s.users, id)
	s.deleted = append(s.deleted, id)
	return true, nil
}

func TestAccountExportAndDelete(t *testing.T) {
	ctx := context.Background()
	store := &stubAccountStore{users: map[string]*User{
		"U1": {ID: "U1", Email: "u1@example.com", Name: "Amal", CreatedAt: time.Unix(10, 0)},
	}}
	drafts := newStubDraftStore()
	_ = drafts.SaveDraft("U1", &Draft{Assessment: Assessment{ID: "D1", OwnerID: "U1", Answers: AnswerMap{"psy1": 3}}, Step: 0})
	sessions := NewAssessmentService(drafts, nil, LifecycleOptions{})
	_, _ = sessions.Session("U1", "U1")
	reader := &stubHistoryReader{list: []*Assessment{finalized("A1", 1, 4)}}
	svc := NewAccountService(store, reader, drafts, sessions, Observability{})

	exp, err := svc.Export(ctx, "U1")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if exp.Profile.Email != "u1@example.com" || len(exp.Assessments) != 1 || exp.Draft == nil || exp.Draft.Assessment.ID != "D1" {
		t.Fatalf("unexpected export %+v", exp)
	}

	if err := svc.Delete(ctx, "U1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if d, _ := drafts.GetDraft("U1"); d != nil {
		t.Fatalf("draft should be deleted")
	}
	if _, ok := sessions.sessions["U1"]; ok {
		t.Fatalf("lifecycle should be forgotten")
	}
	err = svc.Delete(ctx, "U1")
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorNotFound {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := svc.Export(ctx, ""); err == nil {
		t.Fatalf("expected unauthorized")
	}
}
