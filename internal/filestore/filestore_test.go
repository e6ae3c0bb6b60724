package filestore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/HendryAvila/twining/internal/apperr"
)

type item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// fastLock keeps failing-path tests quick.
var fastLock = LockOptions{
	Retries:    2,
	MinTimeout: time.Millisecond,
	MaxTimeout: 2 * time.Millisecond,
	Factor:     1.5,
	Stale:      time.Hour,
}

// ─── Locking ────────────────────────────────────────────────────────────────

func TestWithLock_SerializesWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter.json")
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithLock(ctx, path, func() error {
				var n int
				if _, err := ReadJSON(path, &n); err != nil {
					return err
				}
				return WriteJSON(path, n+1)
			})
			if err != nil {
				t.Errorf("WithLock: %v", err)
			}
		}()
	}
	wg.Wait()

	var n int
	if _, err := ReadJSON(path, &n); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if n != writers {
		t.Errorf("counter = %d, want %d", n, writers)
	}
	if _, err := os.Stat(path + ".lock"); !os.IsNotExist(err) {
		t.Error("lockfile should be removed after release")
	}
}

func TestWithLock_ExhaustionIsInternalError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "held.json")
	if err := os.WriteFile(path+".lock", []byte("999999"), 0o644); err != nil {
		t.Fatal(err)
	}

	called := false
	err := WithLockOptions(context.Background(), path, fastLock, func() error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected lock exhaustion error")
	}
	if called {
		t.Error("fn must not run without the lock")
	}
	if code := apperr.CodeOf(err); code != apperr.CodeInternal {
		t.Errorf("code = %q, want %q", code, apperr.CodeInternal)
	}
}

func TestWithLock_RetriesFollowFirstAttempt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "held.json")
	if err := os.WriteFile(path+".lock", []byte("999999"), 0o644); err != nil {
		t.Fatal(err)
	}

	attempts := 0
	prev := tryLockFn
	tryLockFn = func(lockPath string, stale time.Duration) error {
		attempts++
		return prev(lockPath, stale)
	}
	t.Cleanup(func() { tryLockFn = prev })

	_ = WithLockOptions(context.Background(), path, fastLock, func() error { return nil })
	if want := fastLock.Retries + 1; attempts != want {
		t.Errorf("attempts = %d, want %d", attempts, want)
	}
}

func TestWithLock_ReclaimsStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stale.json")
	lockPath := path + ".lock"
	if err := os.WriteFile(lockPath, []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Minute)
	if err := os.Chtimes(lockPath, old, old); err != nil {
		t.Fatal(err)
	}

	opts := fastLock
	opts.Stale = 10 * time.Second
	called := false
	err := WithLockOptions(context.Background(), path, opts, func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("WithLockOptions: %v", err)
	}
	if !called {
		t.Error("fn should run after reclaiming a stale lock")
	}
}

func TestWithLock_PropagatesFnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.json")
	want := apperr.Invalid("bad input")
	err := WithLock(context.Background(), path, func() error { return want })
	if err != want {
		t.Errorf("err = %v, want %v", err, want)
	}
}

// ─── JSON / JSONL ───────────────────────────────────────────────────────────

func TestReadJSON_MissingFile(t *testing.T) {
	var v []item
	found, err := ReadJSON(filepath.Join(t.TempDir(), "nope.json"), &v)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if found {
		t.Error("found = true for missing file")
	}
	if v != nil {
		t.Errorf("v = %v, want nil", v)
	}
}

func TestReadJSONL_SkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	content := `{"id":"1","name":"a"}
not json at all
{"id":"2","name":"b"}

{"id":"3",
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := ReadJSONL[item](path)
	if err != nil {
		t.Fatalf("ReadJSONL: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "1" || got[1].ID != "2" {
		t.Errorf("got = %+v", got)
	}
}

func TestReadJSONL_MissingFileIsEmpty(t *testing.T) {
	got, err := ReadJSONL[item](filepath.Join(t.TempDir(), "missing.jsonl"))
	if err != nil {
		t.Fatalf("ReadJSONL: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestAppendAndWriteJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "log.jsonl")
	for _, id := range []string{"a", "b", "c"} {
		if err := AppendJSONL(path, item{ID: id}); err != nil {
			t.Fatalf("AppendJSONL: %v", err)
		}
	}
	got, _ := ReadJSONL[item](path)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}

	if err := WriteJSONL(path, got[1:]); err != nil {
		t.Fatalf("WriteJSONL: %v", err)
	}
	got, _ = ReadJSONL[item](path)
	if len(got) != 2 || got[0].ID != "b" {
		t.Errorf("after rewrite got = %+v", got)
	}
}

// ─── Cache ──────────────────────────────────────────────────────────────────

func TestCache_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	loads := 0
	c := NewCache(path, func(p string) ([]item, error) {
		loads++
		var v []item
		_, err := ReadJSON(p, &v)
		return v, err
	})

	got, err := c.Get()
	if err != nil || len(got) != 0 {
		t.Fatalf("Get on missing file = %v, %v", got, err)
	}

	if err := WriteJSON(path, []item{{ID: "1"}}); err != nil {
		t.Fatal(err)
	}
	got, _ = c.Get()
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	before := loads

	got, _ = c.Get()
	if loads != before {
		t.Errorf("unchanged file reloaded (%d loads, want %d)", loads, before)
	}
	if len(got) != 1 {
		t.Errorf("cached len = %d", len(got))
	}

	if err := WriteJSON(path, []item{{ID: "1"}, {ID: "2"}}); err != nil {
		t.Fatal(err)
	}
	got, _ = c.Get()
	if len(got) != 2 {
		t.Errorf("len after change = %d, want 2", len(got))
	}
}

func TestCache_Invalidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	if err := WriteJSON(path, []item{{ID: "1"}}); err != nil {
		t.Fatal(err)
	}
	loads := 0
	c := NewCache(path, func(p string) ([]item, error) {
		loads++
		var v []item
		_, err := ReadJSON(p, &v)
		return v, err
	})

	_, _ = c.Get()
	c.Invalidate()
	_, _ = c.Get()
	if loads != 2 {
		t.Errorf("loads = %d, want 2", loads)
	}
}
