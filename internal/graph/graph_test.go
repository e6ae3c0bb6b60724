package graph

import (
	"context"
	"sort"
	"testing"

	"github.com/HendryAvila/twining/internal/apperr"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(NewStore(t.TempDir()))
}

func mustEntity(t *testing.T, e *Engine, name, typ string) Entity {
	t.Helper()
	ent, err := e.AddEntity(context.Background(), name, typ, nil)
	if err != nil {
		t.Fatalf("AddEntity(%s): %v", name, err)
	}
	return ent
}

func mustRelate(t *testing.T, e *Engine, src, dst, typ string) Relation {
	t.Helper()
	r, err := e.AddRelation(context.Background(), src, dst, typ, nil)
	if err != nil {
		t.Fatalf("AddRelation(%s -> %s): %v", src, dst, err)
	}
	return r
}

func names(ns []Neighbor) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.Entity.Name
	}
	sort.Strings(out)
	return out
}

// ─── Store ───────────────────────────────────────────────────────────────────

func TestAddEntity_UpsertMergesProperties(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	first, _ := e.AddEntity(ctx, "auth", "module", map[string]string{"lang": "go"})
	second, err := e.AddEntity(ctx, "auth", "module", map[string]string{"owner": "team-a"})
	if err != nil {
		t.Fatalf("AddEntity: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("upsert created a new id: %s vs %s", second.ID, first.ID)
	}
	if second.Properties["lang"] != "go" || second.Properties["owner"] != "team-a" {
		t.Errorf("properties = %v", second.Properties)
	}
	if second.UpdatedAt < first.UpdatedAt {
		t.Error("updated_at went backwards")
	}

	// Same name, different type is a different entity.
	other := mustEntity(t, e, "auth", "concept")
	if other.ID == first.ID {
		t.Error("(name,type) should be the unique key")
	}
	all, _ := e.Store().Entities()
	if len(all) != 2 {
		t.Errorf("entities = %d, want 2", len(all))
	}
}

func TestAddEntity_EmptyType(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddEntity(context.Background(), "x", "  ", nil)
	if !apperr.Is(err, apperr.CodeInvalidInput) {
		t.Errorf("err = %v, want INVALID_INPUT", err)
	}
}

func TestAddEntity_UnlistedTypeAccepted(t *testing.T) {
	e := newTestEngine(t)
	ent, err := e.AddEntity(context.Background(), "billing", "service", nil)
	if err != nil {
		t.Fatalf("AddEntity: %v", err)
	}
	if ent.Type != "service" {
		t.Errorf("Type = %q, want service", ent.Type)
	}
}

func TestAddRelation_UnlistedTypeAccepted(t *testing.T) {
	e := newTestEngine(t)
	mustEntity(t, e, "pkg", "module")
	mustEntity(t, e, "pkg/file.go", "file")
	rel, err := e.AddRelation(context.Background(), "pkg", "pkg/file.go", "contains", nil)
	if err != nil {
		t.Fatalf("AddRelation: %v", err)
	}
	if rel.Type != "contains" {
		t.Errorf("Type = %q, want contains", rel.Type)
	}

	_, err = e.AddRelation(context.Background(), "pkg", "pkg/file.go", "", nil)
	if !apperr.Is(err, apperr.CodeInvalidInput) {
		t.Errorf("empty type: err = %v, want INVALID_INPUT", err)
	}
}

func TestAddRelation_Resolution(t *testing.T) {
	e := newTestEngine(t)
	a := mustEntity(t, e, "a", "module")
	mustEntity(t, e, "b", "module")
	mustEntity(t, e, "dup", "module")
	mustEntity(t, e, "dup", "file")

	r := mustRelate(t, e, a.ID, "b", "depends_on")
	if r.Source != a.ID {
		t.Errorf("Source = %s, want %s", r.Source, a.ID)
	}

	_, err := e.AddRelation(context.Background(), "a", "ghost", "calls", nil)
	if !apperr.Is(err, apperr.CodeNotFound) || apperr.MessageOf(err) != `Entity not found: "ghost"` {
		t.Errorf("missing target err = %v", err)
	}

	_, err = e.AddRelation(context.Background(), "a", "dup", "calls", nil)
	if !apperr.Is(err, apperr.CodeAmbiguousEntity) {
		t.Fatalf("ambiguous err = %v", err)
	}
	want := `Ambiguous entity name "dup" matches: dup (module), dup (file)`
	if apperr.MessageOf(err) != want {
		t.Errorf("message = %q, want %q", apperr.MessageOf(err), want)
	}
}

func TestRemoveEntities_Cascades(t *testing.T) {
	e := newTestEngine(t)
	a := mustEntity(t, e, "a", "module")
	mustEntity(t, e, "b", "module")
	mustEntity(t, e, "c", "module")
	mustRelate(t, e, "a", "b", "calls")
	mustRelate(t, e, "c", "a", "imports")
	mustRelate(t, e, "b", "c", "calls")

	res, err := e.Store().RemoveEntities(context.Background(), []string{a.ID})
	if err != nil {
		t.Fatalf("RemoveEntities: %v", err)
	}
	if res.Entities != 1 || res.Relations != 2 {
		t.Errorf("res = %+v, want 1 entity, 2 relations", res)
	}
	rs, _ := e.Store().Relations()
	if len(rs) != 1 {
		t.Errorf("relations left = %d, want 1", len(rs))
	}
}

// ─── Neighbors ───────────────────────────────────────────────────────────────

func TestNeighbors_CycleTerminates(t *testing.T) {
	e := newTestEngine(t)
	mustEntity(t, e, "A", "module")
	mustEntity(t, e, "B", "module")
	mustEntity(t, e, "C", "module")
	mustRelate(t, e, "A", "B", "depends_on")
	mustRelate(t, e, "B", "C", "depends_on")
	mustRelate(t, e, "C", "A", "depends_on")

	res, err := e.Neighbors(context.Background(), "A", 3, nil)
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	got := names(res.Neighbors)
	if len(got) != 2 || got[0] != "B" || got[1] != "C" {
		t.Errorf("neighbors = %v, want [B C]", got)
	}
	if res.Center.Name != "A" {
		t.Errorf("center = %s", res.Center.Name)
	}
}

func TestNeighbors_DepthAndDirection(t *testing.T) {
	e := newTestEngine(t)
	for _, n := range []string{"a", "b", "c", "d", "e"} {
		mustEntity(t, e, n, "module")
	}
	mustRelate(t, e, "a", "b", "calls")
	mustRelate(t, e, "b", "c", "calls")
	mustRelate(t, e, "c", "d", "calls")
	mustRelate(t, e, "d", "e", "calls")

	res, _ := e.Neighbors(context.Background(), "b", 0, nil)
	if len(res.Neighbors) != 2 {
		t.Fatalf("depth 0 clamps to 1: got %v", names(res.Neighbors))
	}
	for _, n := range res.Neighbors {
		switch n.Entity.Name {
		case "a":
			if n.Direction != Incoming {
				t.Errorf("a direction = %s, want incoming", n.Direction)
			}
		case "c":
			if n.Direction != Outgoing {
				t.Errorf("c direction = %s, want outgoing", n.Direction)
			}
		}
	}

	res, _ = e.Neighbors(context.Background(), "a", 10, nil)
	if len(res.Neighbors) != 3 {
		t.Errorf("depth clamps to 3: got %v", names(res.Neighbors))
	}
	for _, n := range res.Neighbors {
		if n.Entity.Name == "d" && n.Depth != 3 {
			t.Errorf("d depth = %d, want 3", n.Depth)
		}
	}
}

func TestNeighbors_RelationFilterAndMissing(t *testing.T) {
	e := newTestEngine(t)
	mustEntity(t, e, "a", "module")
	mustEntity(t, e, "b", "module")
	mustEntity(t, e, "c", "module")
	mustRelate(t, e, "a", "b", "calls")
	mustRelate(t, e, "a", "c", "imports")

	res, _ := e.Neighbors(context.Background(), "a", 1, []string{"imports"})
	if got := names(res.Neighbors); len(got) != 1 || got[0] != "c" {
		t.Errorf("filtered = %v, want [c]", got)
	}

	_, err := e.Neighbors(context.Background(), "nope", 1, nil)
	if !apperr.Is(err, apperr.CodeNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

// ─── Query / coverage / prune ────────────────────────────────────────────────

func TestQuery(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	_, _ = e.AddEntity(ctx, "AuthService", "class", nil)
	_, _ = e.AddEntity(ctx, "login.go", "file", map[string]string{"purpose": "handles AUTH flow"})
	_, _ = e.AddEntity(ctx, "db", "module", nil)

	got, _ := e.Query(ctx, "auth", nil, 0)
	if len(got) != 2 {
		t.Errorf("query = %d results, want 2", len(got))
	}
	got, _ = e.Query(ctx, "auth", []string{"file"}, 0)
	if len(got) != 1 || got[0].Name != "login.go" {
		t.Errorf("typed query = %+v", got)
	}
	got, _ = e.Query(ctx, "auth", nil, 1)
	if len(got) != 1 {
		t.Errorf("limit ignored: %d", len(got))
	}
}

func TestTestCoverage(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	mustEntity(t, e, "src/auth.go", "file")
	mustEntity(t, e, "auth_test.go", "file")
	mustRelate(t, e, "src/auth.go", "auth_test.go", "tested_by")
	mustEntity(t, e, "src/db.go", "file")

	cov, err := e.TestCoverage(ctx, []CoverageSubject{
		{ID: "d1", Summary: "auth", AffectedFiles: []string{"src/auth.go"}},
		{ID: "d2", Summary: "db", AffectedFiles: []string{"src/db.go"}},
	})
	if err != nil {
		t.Fatalf("TestCoverage: %v", err)
	}
	if cov.DecisionsInScope != 2 || cov.DecisionsWithTestedBy != 1 {
		t.Errorf("cov = %+v", cov)
	}
	if len(cov.Uncovered) != 1 || cov.Uncovered[0].ID != "d2" {
		t.Errorf("uncovered = %+v", cov.Uncovered)
	}
}

func TestPrune(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	mustEntity(t, e, "a", "module")
	mustEntity(t, e, "b", "module")
	mustEntity(t, e, "lonely", "concept")
	mustEntity(t, e, "alone.go", "file")
	mustRelate(t, e, "a", "b", "calls")

	dry, err := e.Prune(ctx, nil, true)
	if err != nil {
		t.Fatalf("Prune(dry): %v", err)
	}
	if len(dry.Orphans) != 2 || dry.Removed.Entities != 0 {
		t.Errorf("dry = %+v", dry)
	}

	res, _ := e.Prune(ctx, []string{"concept"}, false)
	if len(res.Orphans) != 1 || res.Removed.Entities != 1 {
		t.Errorf("res = %+v", res)
	}
	all, _ := e.Store().Entities()
	if len(all) != 3 {
		t.Errorf("entities left = %d, want 3", len(all))
	}
}
