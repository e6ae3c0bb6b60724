package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/HendryAvila/twining/internal/blackboard"
)

func TestTailer_ReportsNewEntriesOnce(t *testing.T) {
	dir := t.TempDir()
	store := blackboard.NewStore(dir)
	ctx := context.Background()

	if _, err := store.Append(ctx, blackboard.Entry{EntryType: blackboard.TypeFinding, Summary: "before"}); err != nil {
		t.Fatal(err)
	}

	tl := New(dir)
	tl.debounce = 20 * time.Millisecond

	var mu sync.Mutex
	var got []string
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- tl.Run(runCtx, func(e blackboard.Entry) {
			mu.Lock()
			got = append(got, e.Summary)
			mu.Unlock()
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	for _, s := range []string{"one", "two"} {
		if _, err := store.Append(ctx, blackboard.Entry{EntryType: blackboard.TypeFinding, Summary: s}); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Errorf("reported = %v, want [one two]", got)
	}
}

func TestScan_ForgetsRemovedEntries(t *testing.T) {
	dir := t.TempDir()
	store := blackboard.NewStore(dir)
	ctx := context.Background()
	e, err := store.Append(ctx, blackboard.Entry{EntryType: blackboard.TypeFinding, Summary: "x"})
	if err != nil {
		t.Fatal(err)
	}

	tl := New(dir)
	if fresh, _ := tl.scan(); len(fresh) != 1 {
		t.Fatalf("first scan = %d entries", len(fresh))
	}
	if fresh, _ := tl.scan(); len(fresh) != 0 {
		t.Fatalf("second scan = %d entries, want 0", len(fresh))
	}
	if _, err := store.Dismiss(ctx, []string{e.ID}); err != nil {
		t.Fatal(err)
	}
	if _, err := tl.scan(); err != nil {
		t.Fatal(err)
	}
	if tl.seen[e.ID] {
		t.Error("dismissed entry should be forgotten")
	}
}
