// Package watch tails the blackboard log, reporting each new entry once.
//
// The twining directory is watched rather than the file itself because
// rewrites (dismiss, archive) replace the file. Bursts of writes are
// debounced into a single rescan.
package watch

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/HendryAvila/twining/internal/blackboard"
	"github.com/HendryAvila/twining/internal/filestore"
)

const defaultDebounce = 100 * time.Millisecond

// Tailer reports entries appended to blackboard.jsonl.
type Tailer struct {
	dir      string
	path     string
	debounce time.Duration
	seen     map[string]bool
}

// New creates a Tailer for twiningDir.
func New(twiningDir string) *Tailer {
	return &Tailer{
		dir:      twiningDir,
		path:     filepath.Join(twiningDir, blackboard.FileName),
		debounce: defaultDebounce,
		seen:     make(map[string]bool),
	}
}

// Run calls fn for every entry that appears after Run starts, in log order,
// until ctx is cancelled. Entries present at start are not reported.
func (t *Tailer) Run(ctx context.Context, fn func(blackboard.Entry)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(t.dir); err != nil {
		return fmt.Errorf("watch: add %s: %w", t.dir, err)
	}

	if _, err := t.scan(); err != nil {
		return err
	}

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != blackboard.FileName {
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(t.debounce)
		case <-timer.C:
			fresh, err := t.scan()
			if err != nil {
				log.Printf("WARNING: watch: %v", err)
				continue
			}
			for _, e := range fresh {
				fn(e)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Printf("WARNING: watch: watcher error: %v", err)
		}
	}
}

// scan rereads the log and returns entries not seen before. The seen set
// is replaced with the current ids so removed entries are forgotten.
func (t *Tailer) scan() ([]blackboard.Entry, error) {
	entries, err := filestore.ReadJSONL[blackboard.Entry](t.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", t.path, err)
	}
	next := make(map[string]bool, len(entries))
	var fresh []blackboard.Entry
	for _, e := range entries {
		next[e.ID] = true
		if !t.seen[e.ID] {
			fresh = append(fresh, e)
		}
	}
	t.seen = next
	return fresh, nil
}
