package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSessionReusesLifecycle(t *testing.T) {
	drafts := newStubDraftStore()
	svc := NewAssessmentService(drafts, NewHistoryService(&stubHistoryStore{}, 0, Observability{}), LifecycleOptions{})

	if _, err := svc.Session("  ", "U1"); err == nil {
		t.Fatalf("expected error for empty session id")
	}
	a, err := svc.Session("U1", "U1")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	b, _ := svc.Session("U1", "U1")
	if a != b {
		t.Fatalf("expected same lifecycle for same session")
	}
	c, _ := svc.Session("U1", "someone-else")
	if c == a {
		t.Fatalf("owner change should yield a fresh lifecycle")
	}
}

func TestSessionRestoresDraftAfterRestart(t *testing.T) {
	drafts := newStubDraftStore()
	hist := NewHistoryService(&stubHistoryStore{}, 0, Observability{})

	first := NewAssessmentService(drafts, hist, LifecycleOptions{})
	lc, _ := first.Session("U1", "U1")
	_, _ = lc.Start()
	_, _ = lc.SetAnswer("psy1", 5)
	_, _ = lc.SetAnswer("psy4", 1)

	second := NewAssessmentService(drafts, hist, LifecycleOptions{})
	lc2, _ := second.Session("U1", "U1")
	snap := lc2.Snapshot()
	if snap.State != StateInProgress || len(snap.Answers) != 2 || snap.Answers["psy4"] != 1 {
		t.Fatalf("restored %+v", snap)
	}
}

func TestSessionRestoreFailureStartsIdle(t *testing.T) {
	drafts := newStubDraftStore()
	drafts.getErr = errors.New("unreadable")
	svc := NewAssessmentService(drafts, nil, LifecycleOptions{})
	lc, err := svc.Session("anon-1", "")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if lc.Snapshot().State != StateIdle {
		t.Fatalf("expected idle lifecycle")
	}
	if _, err := lc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	res, err := lc.Advance(context.Background())
	if err != nil || res.Completed {
		t.Fatalf("Advance: %+v %v", res, err)
	}
}

func TestPrune(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	svc := NewAssessmentService(newStubDraftStore(), nil, LifecycleOptions{Now: clock})
	_, _ = svc.Session("old", "")
	now = now.Add(2 * time.Hour)
	_, _ = svc.Session("fresh", "")

	if removed := svc.Prune(time.Hour); removed != 1 {
		t.Fatalf("Prune removed %d, want 1", removed)
	}
	if _, ok := svc.sessions["fresh"]; !ok {
		t.Fatalf("fresh session pruned")
	}
}

func TestPruneKeepsSessionOwingDraftDelete(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	drafts := newStubDraftStore()
	svc := NewAssessmentService(drafts, nil, LifecycleOptions{Now: clock})
	lc, _ := svc.Session("s1", "U1")
	_, _ = lc.Start()
	drafts.deleteErr = errors.New("disk full")
	_ = lc.Abandon()

	now = now.Add(2 * time.Hour)
	if removed := svc.Prune(time.Hour); removed != 0 {
		t.Fatalf("Prune removed %d, want 0", removed)
	}

	drafts.deleteErr = nil
	if removed := svc.Prune(time.Hour); removed != 1 {
		t.Fatalf("Prune removed %d, want 1", removed)
	}
	again, _ := svc.Session("s1", "U1")
	if again.Snapshot().State != StateIdle {
		t.Fatalf("abandoned draft restored after prune")
	}
}
