// Package handoffs stores the records agents leave for each other when work
// changes hands.
package handoffs

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/HendryAvila/twining/internal/apperr"
	"github.com/HendryAvila/twining/internal/filestore"
	"github.com/HendryAvila/twining/internal/ids"
	"github.com/HendryAvila/twining/internal/scope"
)

// Result statuses.
const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusBlocked   = "blocked"
	StatusFailed    = "failed"
	StatusMixed     = "mixed"
)

// ValidResultStatus reports whether s may be used on a single result.
func ValidResultStatus(s string) bool {
	switch s {
	case StatusCompleted, StatusPartial, StatusBlocked, StatusFailed:
		return true
	}
	return false
}

// Result is one unit of work reported in a handoff.
type Result struct {
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Artifacts   []string `json:"artifacts,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

// Snapshot captures the context that was relevant when the handoff was made.
type Snapshot struct {
	DecisionIDs []string `json:"decision_ids"`
	WarningIDs  []string `json:"warning_ids"`
	FindingIDs  []string `json:"finding_ids"`
	Summaries   []string `json:"summaries"`
}

// Record is the full handoff.
type Record struct {
	ID              string   `json:"id"`
	CreatedAt       string   `json:"created_at"`
	SourceAgent     string   `json:"source_agent"`
	TargetAgent     string   `json:"target_agent,omitempty"`
	Scope           string   `json:"scope"`
	Summary         string   `json:"summary"`
	Results         []Result `json:"results"`
	ContextSnapshot Snapshot `json:"context_snapshot"`
	AcknowledgedBy  string   `json:"acknowledged_by,omitempty"`
	AcknowledgedAt  string   `json:"acknowledged_at,omitempty"`
}

// IndexEntry is one line of handoffs/index.jsonl.
type IndexEntry struct {
	ID           string `json:"id"`
	CreatedAt    string `json:"created_at"`
	SourceAgent  string `json:"source_agent"`
	TargetAgent  string `json:"target_agent,omitempty"`
	Scope        string `json:"scope"`
	Summary      string `json:"summary"`
	ResultStatus string `json:"result_status"`
	Acknowledged bool   `json:"acknowledged"`
}

// ListOptions filters List. Zero values mean no filter.
type ListOptions struct {
	SourceAgent string
	TargetAgent string
	Scope       string
	Since       string
	Limit       int
}

// ResultStatus aggregates result statuses: the shared status when all agree,
// mixed when they differ, completed when there are none.
func ResultStatus(results []Result) string {
	if len(results) == 0 {
		return StatusCompleted
	}
	first := results[0].Status
	for _, r := range results[1:] {
		if r.Status != first {
			return StatusMixed
		}
	}
	return first
}

func indexEntryOf(r *Record) IndexEntry {
	return IndexEntry{
		ID:           r.ID,
		CreatedAt:    r.CreatedAt,
		SourceAgent:  r.SourceAgent,
		TargetAgent:  r.TargetAgent,
		Scope:        r.Scope,
		Summary:      r.Summary,
		ResultStatus: ResultStatus(r.Results),
		Acknowledged: r.AcknowledgedBy != "",
	}
}

// Store persists handoff files and their JSONL index.
type Store struct {
	dir       string
	indexPath string
	cache     *filestore.Cache[[]IndexEntry]
}

// NewStore creates a Store rooted at twiningDir.
func NewStore(twiningDir string) *Store {
	dir := filepath.Join(twiningDir, "handoffs")
	indexPath := filepath.Join(dir, "index.jsonl")
	return &Store{
		dir:       dir,
		indexPath: indexPath,
		cache:     filestore.NewCache(indexPath, filestore.ReadJSONL[IndexEntry]),
	}
}

func (s *Store) filePath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Create assigns id and created_at, writes the record and appends its index line.
func (s *Store) Create(ctx context.Context, r Record) (*Record, error) {
	r.ID = ids.New()
	r.CreatedAt = ids.Timestamp()
	r.Scope = scope.OrProject(r.Scope)
	if r.Results == nil {
		r.Results = []Result{}
	}
	for _, l := range []*[]string{&r.ContextSnapshot.DecisionIDs, &r.ContextSnapshot.WarningIDs, &r.ContextSnapshot.FindingIDs, &r.ContextSnapshot.Summaries} {
		if *l == nil {
			*l = []string{}
		}
	}

	if err := filestore.WriteJSON(s.filePath(r.ID), r); err != nil {
		return nil, fmt.Errorf("handoffs: write record: %w", err)
	}
	err := filestore.WithLock(ctx, s.indexPath, func() error {
		return filestore.AppendJSONL(s.indexPath, indexEntryOf(&r))
	})
	s.cache.Invalidate()
	if err != nil {
		return nil, fmt.Errorf("handoffs: write index: %w", err)
	}
	return &r, nil
}

// Get returns the handoff with id, or nil.
func (s *Store) Get(id string) (*Record, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return nil, nil
	}
	var r Record
	found, err := filestore.ReadJSON(s.filePath(id), &r)
	if err != nil {
		return nil, fmt.Errorf("handoffs: get %s: %w", id, err)
	}
	if !found {
		return nil, nil
	}
	return &r, nil
}

// List returns index entries matching opts, newest first.
func (s *Store) List(opts ListOptions) ([]IndexEntry, error) {
	all, err := s.cache.Get()
	if err != nil {
		return nil, fmt.Errorf("handoffs: read index: %w", err)
	}
	out := make([]IndexEntry, 0, len(all))
	for _, e := range all {
		if opts.SourceAgent != "" && e.SourceAgent != opts.SourceAgent {
			continue
		}
		if opts.TargetAgent != "" && e.TargetAgent != opts.TargetAgent {
			continue
		}
		if opts.Scope != "" && !scope.Overlaps(e.Scope, opts.Scope) {
			continue
		}
		if opts.Since != "" && e.CreatedAt < opts.Since {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID > out[j].ID
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Acknowledge records that agent picked up the handoff. The record file and
// the index line are both rewritten under the index lock.
func (s *Store) Acknowledge(ctx context.Context, id, agent string) (*Record, error) {
	rec, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperr.NotFound("Handoff not found: %s", id)
	}

	err = filestore.WithLock(ctx, s.indexPath, func() error {
		rec.AcknowledgedBy = agent
		rec.AcknowledgedAt = ids.Timestamp()
		if err := filestore.WriteJSON(s.filePath(id), rec); err != nil {
			return err
		}
		entries, err := filestore.ReadJSONL[IndexEntry](s.indexPath)
		if err != nil {
			return err
		}
		for i := range entries {
			if entries[i].ID == id {
				entries[i].Acknowledged = true
			}
		}
		return filestore.WriteJSONL(s.indexPath, entries)
	})
	s.cache.Invalidate()
	if err != nil {
		return nil, fmt.Errorf("handoffs: acknowledge %s: %w", id, err)
	}
	return rec, nil
}
