// Package blackboard implements the shared message log agents post to.
//
// Store owns .twining/blackboard.jsonl: an append-only log of typed entries.
// Engine validates caller input, fans new entries out to the search index
// and event publisher, and answers relevance queries.
package blackboard

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/HendryAvila/twining/internal/filestore"
	"github.com/HendryAvila/twining/internal/ids"
	"github.com/HendryAvila/twining/internal/scope"
)

// FileName is the blackboard log relative to the twining directory.
const FileName = "blackboard.jsonl"

// ─── Types ───────────────────────────────────────────────────────────────────

// Entry types.
const (
	TypeNeed       = "need"
	TypeOffer      = "offer"
	TypeFinding    = "finding"
	TypeDecision   = "decision"
	TypeConstraint = "constraint"
	TypeQuestion   = "question"
	TypeAnswer     = "answer"
	TypeStatus     = "status"
	TypeArtifact   = "artifact"
	TypeWarning    = "warning"
)

// EntryTypes lists every valid entry type.
var EntryTypes = []string{
	TypeNeed, TypeOffer, TypeFinding, TypeDecision, TypeConstraint,
	TypeQuestion, TypeAnswer, TypeStatus, TypeArtifact, TypeWarning,
}

// ValidEntryType reports whether t is one of EntryTypes.
func ValidEntryType(t string) bool {
	for _, v := range EntryTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Entry is one blackboard message.
type Entry struct {
	ID         string      `json:"id"`
	Timestamp  string      `json:"timestamp"`
	AgentID    string      `json:"agent_id"`
	EntryType  string      `json:"entry_type"`
	Summary    string      `json:"summary"`
	Detail     string      `json:"detail"`
	Tags       []string    `json:"tags"`
	Scope      string      `json:"scope"`
	RelatesTo  []string    `json:"relates_to,omitempty"`
	Delegation *Delegation `json:"delegation,omitempty"`
}

// Delegation is the typed metadata carried by a delegation need.
type Delegation struct {
	Type                 string   `json:"type"`
	RequiredCapabilities []string `json:"required_capabilities"`
	Urgency              string   `json:"urgency"`
	ExpiresAt            string   `json:"expires_at"`
	TimeoutMs            int64    `json:"timeout_ms,omitempty"`
}

// ReadOptions filters Read. Zero values mean "no filter"; Limit defaults to 50.
type ReadOptions struct {
	EntryTypes []string
	Tags       []string
	Scope      string
	Since      string
	Limit      int
}

// ReadResult is the filtered, limited view of the log.
type ReadResult struct {
	Entries    []Entry `json:"entries"`
	TotalCount int     `json:"total_count"`
}

// DismissResult reports which ids were removed.
type DismissResult struct {
	Dismissed []string `json:"dismissed"`
	NotFound  []string `json:"not_found"`
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store persists entries to the blackboard log.
type Store struct {
	path  string
	cache *filestore.Cache[[]Entry]
}

// NewStore creates a Store rooted at twiningDir.
func NewStore(twiningDir string) *Store {
	path := filepath.Join(twiningDir, FileName)
	return &Store{
		path:  path,
		cache: filestore.NewCache(path, filestore.ReadJSONL[Entry]),
	}
}

// Path returns the log file path.
func (s *Store) Path() string { return s.path }

// Append assigns id and timestamp and appends e to the log.
func (s *Store) Append(ctx context.Context, e Entry) (Entry, error) {
	if e.Tags == nil {
		e.Tags = []string{}
	}
	e.Scope = scope.OrProject(e.Scope)

	err := filestore.WithLock(ctx, s.path, func() error {
		e.ID = ids.New()
		e.Timestamp = ids.Timestamp()
		if err := filestore.AppendJSONL(s.path, e); err != nil {
			return fmt.Errorf("blackboard: append: %w", err)
		}
		return nil
	})
	s.cache.Invalidate()
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

// All returns every entry in log order. The slice is shared; do not modify.
func (s *Store) All() ([]Entry, error) {
	entries, err := s.cache.Get()
	if err != nil {
		return nil, fmt.Errorf("blackboard: read: %w", err)
	}
	return entries, nil
}

// Read filters the log. TotalCount is taken before the limit; the newest
// Limit entries are returned in log order.
func (s *Store) Read(opts ReadOptions) (ReadResult, error) {
	all, err := s.All()
	if err != nil {
		return ReadResult{}, err
	}

	filtered := make([]Entry, 0, len(all))
	for _, e := range all {
		if matches(e, opts) {
			filtered = append(filtered, e)
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	total := len(filtered)
	if len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return ReadResult{Entries: filtered, TotalCount: total}, nil
}

func matches(e Entry, opts ReadOptions) bool {
	if len(opts.EntryTypes) > 0 && !contains(opts.EntryTypes, e.EntryType) {
		return false
	}
	if len(opts.Tags) > 0 {
		hit := false
		for _, t := range opts.Tags {
			if contains(e.Tags, t) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if opts.Scope != "" && !scope.Overlaps(e.Scope, opts.Scope) {
		return false
	}
	if opts.Since != "" && e.Timestamp < opts.Since {
		return false
	}
	return true
}

// Recent returns up to n entries newest first, optionally restricted to types.
func (s *Store) Recent(n int, types []string) ([]Entry, error) {
	if n <= 0 {
		n = 20
	}
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, n)
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		if len(types) > 0 && !contains(types, all[i].EntryType) {
			continue
		}
		out = append(out, all[i])
	}
	return out, nil
}

// Get returns the entry with id, or nil.
func (s *Store) Get(id string) (*Entry, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			e := all[i]
			return &e, nil
		}
	}
	return nil, nil
}

// Dismiss removes the given ids from the log.
func (s *Store) Dismiss(ctx context.Context, idList []string) (DismissResult, error) {
	res := DismissResult{Dismissed: []string{}, NotFound: []string{}}
	err := s.Rewrite(ctx, func(entries []Entry) ([]Entry, error) {
		drop := make(map[string]bool, len(idList))
		for _, id := range idList {
			drop[id] = true
		}
		present := make(map[string]bool, len(entries))
		kept := entries[:0:0]
		for _, e := range entries {
			present[e.ID] = true
			if !drop[e.ID] {
				kept = append(kept, e)
			}
		}
		for _, id := range idList {
			if present[id] {
				res.Dismissed = append(res.Dismissed, id)
			} else {
				res.NotFound = append(res.NotFound, id)
			}
		}
		return kept, nil
	})
	return res, err
}

// Rewrite replaces the log with fn's result while holding the log lock.
// fn receives a fresh, private copy of the entries.
func (s *Store) Rewrite(ctx context.Context, fn func([]Entry) ([]Entry, error)) error {
	err := filestore.WithLock(ctx, s.path, func() error {
		entries, err := filestore.ReadJSONL[Entry](s.path)
		if err != nil {
			return fmt.Errorf("blackboard: read: %w", err)
		}
		next, err := fn(entries)
		if err != nil {
			return err
		}
		if err := filestore.WriteJSONL(s.path, next); err != nil {
			return fmt.Errorf("blackboard: rewrite: %w", err)
		}
		return nil
	})
	s.cache.Invalidate()
	return err
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// SortNewestFirst orders entries by timestamp then id, newest first.
func SortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp != entries[j].Timestamp {
			return entries[i].Timestamp > entries[j].Timestamp
		}
		return entries[i].ID > entries[j].ID
	})
}
