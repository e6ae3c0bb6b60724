package export

import (
	"context"
	"strings"
	"testing"

	"github.com/HendryAvila/twining/internal/blackboard"
	"github.com/HendryAvila/twining/internal/decisions"
	"github.com/HendryAvila/twining/internal/graph"
	"github.com/HendryAvila/twining/internal/templates"
)

func newTestExporter(t *testing.T) (*Exporter, *blackboard.Engine, *decisions.Engine, *graph.Store) {
	t.Helper()
	dir := t.TempDir()
	board := blackboard.NewEngine(blackboard.NewStore(dir))
	dstore := decisions.NewStore(dir)
	gstore := graph.NewStore(dir)
	r, err := templates.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return New(board.Store(), dstore, gstore, r), board, decisions.NewEngine(dstore, board), gstore
}

func seed(t *testing.T, board *blackboard.Engine, dec *decisions.Engine, g *graph.Store) {
	t.Helper()
	ctx := context.Background()
	if _, err := dec.Decide(ctx, decisions.DecideInput{
		Domain: "arch", Scope: "src/auth/", Summary: "Use JWT", Context: "stateless", Rationale: "scales",
		Alternatives: []decisions.Alternative{{Option: "sessions", ReasonRejected: "sticky"}},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := board.Post(ctx, blackboard.PostInput{EntryType: blackboard.TypeFinding, Summary: "db is slow", Scope: "src/db/"}); err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddEntity(ctx, "src/auth/jwt.go", "file", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddEntity(ctx, "jwt_test.go", "file", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddEntity(ctx, "src/db/pool.go", "file", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddRelation(ctx, "src/auth/jwt.go", "jwt_test.go", "tested_by", nil); err != nil {
		t.Fatal(err)
	}
}

func TestMarkdown_All(t *testing.T) {
	x, board, dec, g := newTestExporter(t)
	seed(t, board, dec, g)

	res, err := x.Markdown(context.Background(), "")
	if err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	// Decision cross-post plus the finding.
	want := Stats{BlackboardEntries: 2, Decisions: 1, GraphEntities: 3, GraphRelations: 1, Scope: "all"}
	if res.Stats != want {
		t.Errorf("Stats = %+v, want %+v", res.Stats, want)
	}
	for _, check := range []string{
		"### Use JWT",
		"- sessions: sticky",
		"| src/auth/jwt.go | tested_by | jwt_test.go |",
		"db is slow",
	} {
		if !strings.Contains(res.Markdown, check) {
			t.Errorf("markdown missing %q", check)
		}
	}
}

func TestMarkdown_Scoped(t *testing.T) {
	x, board, dec, g := newTestExporter(t)
	seed(t, board, dec, g)

	res, err := x.Markdown(context.Background(), "src/auth/")
	if err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	want := Stats{BlackboardEntries: 1, Decisions: 1, GraphEntities: 1, GraphRelations: 1, Scope: "src/auth/"}
	if res.Stats != want {
		t.Errorf("Stats = %+v, want %+v", res.Stats, want)
	}
	if strings.Contains(res.Markdown, "db is slow") || strings.Contains(res.Markdown, "pool.go") {
		t.Error("scoped export leaked out-of-scope records")
	}
	if !strings.Contains(res.Markdown, "*Scope: src/auth/*") {
		t.Error("scoped export should print its scope")
	}
}

func TestMarkdown_Empty(t *testing.T) {
	x, _, _, _ := newTestExporter(t)
	res, err := x.Markdown(context.Background(), "")
	if err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	if !strings.Contains(res.Markdown, "*No decisions recorded.*") {
		t.Error("empty export should say no decisions")
	}
}
