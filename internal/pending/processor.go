// Package pending drains work queued on disk while no server was running.
//
// Hooks and scripts that cannot reach the server append JSON lines to
// pending-posts.jsonl (blackboard post inputs) or pending-actions.jsonl
// ({"action":"archive","before":...}). On startup each line is applied and
// both files are truncated. A bad line is logged and skipped.
package pending

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"

	"github.com/HendryAvila/twining/internal/archive"
	"github.com/HendryAvila/twining/internal/blackboard"
	"github.com/HendryAvila/twining/internal/filestore"
	"github.com/HendryAvila/twining/internal/scope"
)

// File names relative to the twining directory.
const (
	PostsFile   = "pending-posts.jsonl"
	ActionsFile = "pending-actions.jsonl"
)

const defaultAgent = "pending-processor"

// Action is one queued action line.
type Action struct {
	Action string `json:"action"`
	Before string `json:"before,omitempty"`
}

// Result counts the lines applied.
type Result struct {
	PostsProcessed   int `json:"posts_processed"`
	ActionsProcessed int `json:"actions_processed"`
}

// Processor applies queued posts and actions.
type Processor struct {
	dir      string
	board    *blackboard.Engine
	archiver *archive.Archiver
}

// New creates a Processor. archiver may be nil, in which case archive
// actions are consumed without effect.
func New(twiningDir string, board *blackboard.Engine, archiver *archive.Archiver) *Processor {
	return &Processor{dir: twiningDir, board: board, archiver: archiver}
}

// Run drains both queues. It never fails; problems are logged.
func (p *Processor) Run(ctx context.Context) Result {
	var res Result

	p.drain(ctx, filepath.Join(p.dir, PostsFile), func(raw json.RawMessage) error {
		var in blackboard.PostInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return err
		}
		in.Scope = scope.OrProject(in.Scope)
		if in.AgentID == "" {
			in.AgentID = defaultAgent
		}
		if _, err := p.board.Post(ctx, in); err != nil {
			return err
		}
		res.PostsProcessed++
		return nil
	})

	p.drain(ctx, filepath.Join(p.dir, ActionsFile), func(raw json.RawMessage) error {
		var a Action
		if err := json.Unmarshal(raw, &a); err != nil {
			return err
		}
		if a.Action == "archive" && p.archiver != nil {
			if _, err := p.archiver.Archive(ctx, archive.Input{Before: a.Before}); err != nil {
				return err
			}
		}
		res.ActionsProcessed++
		return nil
	})

	return res
}

// drain applies fn to every line of path, then truncates it, all under the
// file's lock so concurrent appenders are not lost.
func (p *Processor) drain(ctx context.Context, path string, fn func(json.RawMessage) error) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	err := filestore.WithLock(ctx, path, func() error {
		lines, err := filestore.ReadJSONL[json.RawMessage](path)
		if err != nil {
			return err
		}
		for _, raw := range lines {
			if err := fn(raw); err != nil {
				log.Printf("WARNING: pending: skipping line in %s: %v", filepath.Base(path), err)
			}
		}
		return os.WriteFile(path, nil, 0o644)
	})
	if err != nil {
		log.Printf("WARNING: pending: drain %s: %v", filepath.Base(path), err)
	}
}
