package handoffs

import (
	"context"
	"testing"

	"github.com/HendryAvila/twining/internal/apperr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir())
}

func mustCreate(t *testing.T, s *Store, r Record) *Record {
	t.Helper()
	rec, err := s.Create(context.Background(), r)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return rec
}

// ─── ResultStatus ────────────────────────────────────────────────────────────

func TestResultStatus(t *testing.T) {
	tests := []struct {
		name    string
		results []Result
		want    string
	}{
		{"empty", nil, StatusCompleted},
		{"uniform", []Result{{Status: StatusBlocked}, {Status: StatusBlocked}}, StatusBlocked},
		{"mixed", []Result{{Status: StatusCompleted}, {Status: StatusFailed}}, StatusMixed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResultStatus(tt.results); got != tt.want {
				t.Errorf("ResultStatus = %q, want %q", got, tt.want)
			}
		})
	}
}

// ─── Store ───────────────────────────────────────────────────────────────────

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	rec := mustCreate(t, s, Record{
		SourceAgent: "alice",
		Summary:     "auth done",
		Results:     []Result{{Description: "jwt", Status: StatusPartial}},
	})

	got, err := s.Get(rec.ID)
	if err != nil || got == nil {
		t.Fatalf("Get: %v, %v", got, err)
	}
	if got.Scope != "project" {
		t.Errorf("Scope = %q, want project", got.Scope)
	}
	if got.ContextSnapshot.DecisionIDs == nil {
		t.Error("snapshot lists should default to empty")
	}

	list, _ := s.List(ListOptions{})
	if len(list) != 1 || list[0].ResultStatus != StatusPartial || list[0].Acknowledged {
		t.Errorf("index = %+v", list)
	}

	if missing, _ := s.Get("ghost"); missing != nil {
		t.Error("missing handoff should be nil")
	}
}

func TestList_FiltersAndOrder(t *testing.T) {
	s := newTestStore(t)
	a := mustCreate(t, s, Record{SourceAgent: "alice", TargetAgent: "bob", Scope: "src/auth/", Summary: "a"})
	b := mustCreate(t, s, Record{SourceAgent: "alice", Scope: "src/db/", Summary: "b"})
	c := mustCreate(t, s, Record{SourceAgent: "carol", Scope: "src/auth/jwt.go", Summary: "c"})

	all, _ := s.List(ListOptions{})
	if len(all) != 3 || all[0].ID != c.ID || all[2].ID != a.ID {
		t.Errorf("order = %+v, want newest first", all)
	}

	got, _ := s.List(ListOptions{SourceAgent: "alice"})
	if len(got) != 2 {
		t.Errorf("source filter = %d, want 2", len(got))
	}
	got, _ = s.List(ListOptions{TargetAgent: "bob"})
	if len(got) != 1 || got[0].ID != a.ID {
		t.Errorf("target filter = %+v", got)
	}
	got, _ = s.List(ListOptions{Scope: "src/auth/"})
	if len(got) != 2 {
		t.Errorf("scope filter = %d, want 2", len(got))
	}
	got, _ = s.List(ListOptions{Limit: 1})
	if len(got) != 1 || got[0].ID != c.ID {
		t.Errorf("limit = %+v", got)
	}
	_ = b
}

func TestAcknowledge(t *testing.T) {
	s := newTestStore(t)
	rec := mustCreate(t, s, Record{SourceAgent: "alice", Summary: "x"})

	got, err := s.Acknowledge(context.Background(), rec.ID, "bob")
	if err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if got.AcknowledgedBy != "bob" || got.AcknowledgedAt == "" {
		t.Errorf("record = %+v", got)
	}
	list, _ := s.List(ListOptions{})
	if !list[0].Acknowledged {
		t.Error("index entry should be acknowledged")
	}
	onDisk, _ := s.Get(rec.ID)
	if onDisk.AcknowledgedBy != "bob" {
		t.Error("record file not updated")
	}

	if _, err := s.Acknowledge(context.Background(), "ghost", "bob"); !apperr.Is(err, apperr.CodeNotFound) {
		t.Errorf("missing err = %v", err)
	}
}
