package pending

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/HendryAvila/twining/internal/archive"
	"github.com/HendryAvila/twining/internal/blackboard"
)

func writeQueue(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_PostsAndActions(t *testing.T) {
	dir := t.TempDir()
	board := blackboard.NewEngine(blackboard.NewStore(dir))
	p := New(dir, board, archive.New(dir, board))

	posts := writeQueue(t, dir, PostsFile,
		`{"entry_type":"finding","summary":"from a hook","tags":["hook"]}`+"\n"+
			`{"entry_type":"decision","summary":"reserved type"}`+"\n"+
			"not json\n"+
			`{"entry_type":"warning","summary":"scoped","scope":"src/","agent_id":"ci"}`+"\n")
	actions := writeQueue(t, dir, ActionsFile,
		`{"action":"archive","before":"2000-01-01T00:00:00.000Z"}`+"\n"+
			`{"action":"unknown"}`+"\n")

	res := p.Run(context.Background())
	if res.PostsProcessed != 2 {
		t.Errorf("PostsProcessed = %d, want 2", res.PostsProcessed)
	}
	if res.ActionsProcessed != 2 {
		t.Errorf("ActionsProcessed = %d, want 2", res.ActionsProcessed)
	}

	all, _ := board.Store().All()
	if len(all) != 2 {
		t.Fatalf("blackboard has %d entries, want 2", len(all))
	}
	if all[0].AgentID != defaultAgent || all[0].Scope != "project" {
		t.Errorf("defaults not applied: %+v", all[0])
	}
	if all[1].AgentID != "ci" || all[1].Scope != "src/" {
		t.Errorf("explicit fields lost: %+v", all[1])
	}

	for _, path := range []string{posts, actions} {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if len(data) != 0 {
			t.Errorf("%s not truncated: %q", filepath.Base(path), data)
		}
	}
}

func TestRun_NoQueues(t *testing.T) {
	dir := t.TempDir()
	board := blackboard.NewEngine(blackboard.NewStore(dir))
	res := New(dir, board, nil).Run(context.Background())
	if res != (Result{}) {
		t.Errorf("Run on empty dir = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(dir, PostsFile)); !os.IsNotExist(err) {
		t.Error("Run should not create queue files")
	}
}
