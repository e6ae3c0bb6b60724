// Package archive moves old blackboard entries out of the live log.
//
// Decision entries stay by default so the rationale trail is never lost.
// Archived entries are appended to archive/{date}-blackboard.jsonl and a
// summary finding is posted back to the blackboard.
package archive

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/HendryAvila/twining/internal/apperr"
	"github.com/HendryAvila/twining/internal/blackboard"
	"github.com/HendryAvila/twining/internal/config"
	"github.com/HendryAvila/twining/internal/filestore"
	"github.com/HendryAvila/twining/internal/ids"
	"github.com/HendryAvila/twining/internal/scope"
)

// DirName is the archive directory relative to the twining directory.
const DirName = "archive"

const maxSummaryChars = 2000

var timeNow = time.Now

// Input controls one archive run. Nil booleans default to true; an empty
// Before means now.
type Input struct {
	Before        string `json:"before,omitempty"`
	KeepDecisions *bool  `json:"keep_decisions,omitempty"`
	Summarize     *bool  `json:"summarize,omitempty"`
}

// Result reports what moved.
type Result struct {
	ArchivedCount int    `json:"archived_count"`
	ArchiveFile   string `json:"archive_file"`
	Summary       string `json:"summary,omitempty"`
}

// Archiver owns the archive directory.
type Archiver struct {
	dir   string
	board *blackboard.Engine
}

// New creates an Archiver rooted at twiningDir.
func New(twiningDir string, board *blackboard.Engine) *Archiver {
	return &Archiver{dir: filepath.Join(twiningDir, DirName), board: board}
}

// Dir returns the archive directory.
func (a *Archiver) Dir() string { return a.dir }

// Archive moves entries older than the cutoff into the dated archive file.
func (a *Archiver) Archive(ctx context.Context, in Input) (Result, error) {
	cutoff := timeNow()
	if in.Before != "" {
		t, err := ids.Parse(in.Before)
		if err != nil {
			return Result{}, apperr.Invalid("invalid before timestamp %q", in.Before)
		}
		cutoff = t
	}
	before := ids.Format(cutoff)
	keepDecisions := in.KeepDecisions == nil || *in.KeepDecisions
	summarize := in.Summarize == nil || *in.Summarize

	file := filepath.Join(a.dir, before[:10]+"-blackboard.jsonl")
	var moved []blackboard.Entry
	err := a.board.Store().Rewrite(ctx, func(entries []blackboard.Entry) ([]blackboard.Entry, error) {
		kept := make([]blackboard.Entry, 0, len(entries))
		moved = moved[:0]
		for _, e := range entries {
			old := e.Timestamp < before
			if !old || (keepDecisions && e.EntryType == blackboard.TypeDecision) {
				kept = append(kept, e)
				continue
			}
			moved = append(moved, e)
		}
		if len(moved) == 0 {
			return entries, nil
		}
		// The archive is written before the live log so a crash duplicates
		// entries rather than losing them.
		if err := os.MkdirAll(a.dir, 0o755); err != nil {
			return nil, fmt.Errorf("archive: create dir: %w", err)
		}
		for _, e := range moved {
			if err := filestore.AppendJSONL(file, e); err != nil {
				return nil, fmt.Errorf("archive: write %s: %w", file, err)
			}
		}
		return kept, nil
	})
	if err != nil {
		return Result{}, err
	}
	if len(moved) == 0 {
		return Result{ArchiveFile: ""}, nil
	}

	movedIDs := make([]string, len(moved))
	for i, e := range moved {
		movedIDs[i] = e.ID
	}
	a.board.Unindex(ctx, movedIDs)

	res := Result{ArchivedCount: len(moved), ArchiveFile: file}
	if summarize {
		res.Summary = Summarize(moved)
		_, err := a.board.Record(ctx, blackboard.Entry{
			EntryType: blackboard.TypeFinding,
			Summary:   fmt.Sprintf("Archive: %d entries archived", len(moved)),
			Detail:    res.Summary,
			Tags:      []string{"archive"},
			Scope:     scope.Project,
			AgentID:   "archiver",
		})
		if err != nil {
			log.Printf("WARNING: archive: post summary: %v", err)
		}
	}
	return res, nil
}

// Summarize groups archived entries by type, listing the three newest
// summaries of each. The result is capped at 2000 characters.
func Summarize(entries []blackboard.Entry) string {
	groups := make(map[string][]blackboard.Entry)
	var order []string
	for _, e := range entries {
		if _, ok := groups[e.EntryType]; !ok {
			order = append(order, e.EntryType)
		}
		groups[e.EntryType] = append(groups[e.EntryType], e)
	}

	parts := []string{fmt.Sprintf("Archive summary: %d entries archived.", len(entries))}
	for _, typ := range order {
		g := groups[typ]
		blackboard.SortNewestFirst(g)
		n := len(g)
		if n > 3 {
			n = 3
		}
		top := make([]string, 0, n)
		for _, e := range g[:n] {
			top = append(top, e.Summary)
		}
		parts = append(parts, fmt.Sprintf("%s: %d entries (%s).", typ, len(g), strings.Join(top, "; ")))
	}

	out := strings.Join(parts, " ")
	if utf8.RuneCountInString(out) > maxSummaryChars {
		r := []rune(out)
		out = string(r[:maxSummaryChars-3]) + "..."
	}
	return out
}

// NeedsArchive reports whether count has reached the configured threshold.
func NeedsArchive(count int, cfg config.Config) bool {
	limit := cfg.Archive.MaxBlackboardEntriesBeforeArchive
	return limit > 0 && count >= limit
}

// Files lists archive files, oldest first.
func (a *Archiver) Files() ([]string, error) {
	entries, err := os.ReadDir(a.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), "-blackboard.jsonl") {
			out = append(out, filepath.Join(a.dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
