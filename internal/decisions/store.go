// Package decisions records architectural decisions and their lifecycle.
//
// Every decision lives in its own file under .twining/decisions/ and is
// summarized in decisions/index.json for fast scanning. The record file is
// always written before the index so the index never points at a file that
// does not exist yet. Decisions are never deleted; they only move between
// statuses, and superseded/overridden are terminal.
package decisions

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

// ─── Types ───────────────────────────────────────────────────────────────────

// Status values.
const (
	StatusActive      = "active"
	StatusProvisional = "provisional"
	StatusSuperseded  = "superseded"
	StatusOverridden  = "overridden"
)

// Confidence values.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// InForce reports whether status denotes a decision currently in effect.
func InForce(status string) bool {
	return status == StatusActive || status == StatusProvisional
}

// Terminal reports whether status can never change again.
func Terminal(status string) bool {
	return status == StatusSuperseded || status == StatusOverridden
}

// Alternative is an option that was considered and rejected.
type Alternative struct {
	Option         string   `json:"option"`
	Pros           []string `json:"pros"`
	Cons           []string `json:"cons"`
	ReasonRejected string   `json:"reason_rejected"`
}

// Decision is the full decision record.
type Decision struct {
	ID              string        `json:"id"`
	Timestamp       string        `json:"timestamp"`
	AgentID         string        `json:"agent_id"`
	Domain          string        `json:"domain"`
	Scope           string        `json:"scope"`
	Summary         string        `json:"summary"`
	Context         string        `json:"context"`
	Rationale       string        `json:"rationale"`
	Constraints     []string      `json:"constraints"`
	Alternatives    []Alternative `json:"alternatives"`
	DependsOn       []string      `json:"depends_on"`
	Supersedes      string        `json:"supersedes,omitempty"`
	Confidence      string        `json:"confidence"`
	Status          string        `json:"status"`
	Reversible      bool          `json:"reversible"`
	AffectedFiles   []string      `json:"affected_files"`
	AffectedSymbols []string      `json:"affected_symbols"`
	CommitHashes    []string      `json:"commit_hashes"`
	OverriddenBy    string        `json:"overridden_by,omitempty"`
	OverrideReason  string        `json:"override_reason,omitempty"`
	AssembledBefore *bool         `json:"assembled_before,omitempty"`
	ConflictsWith   []string      `json:"conflicts_with,omitempty"`
}

// IndexEntry is the lightweight summary kept in index.json.
type IndexEntry struct {
	ID              string   `json:"id"`
	Timestamp       string   `json:"timestamp"`
	Domain          string   `json:"domain"`
	Scope           string   `json:"scope"`
	Summary         string   `json:"summary"`
	Confidence      string   `json:"confidence"`
	Status          string   `json:"status"`
	AffectedFiles   []string `json:"affected_files"`
	AffectedSymbols []string `json:"affected_symbols"`
	CommitHashes    []string `json:"commit_hashes"`
}

func indexEntryOf(d *Decision) IndexEntry {
	return IndexEntry{
		ID:              d.ID,
		Timestamp:       d.Timestamp,
		Domain:          d.Domain,
		Scope:           d.Scope,
		Summary:         d.Summary,
		Confidence:      d.Confidence,
		Status:          d.Status,
		AffectedFiles:   d.AffectedFiles,
		AffectedSymbols: d.AffectedSymbols,
		CommitHashes:    d.CommitHashes,
	}
}

// StatusUpdate carries optional fields written alongside a status change.
type StatusUpdate struct {
	OverriddenBy   string
	OverrideReason string
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store persists decision files and their index.
type Store struct {
	dir       string
	indexPath string
	cache     *filestore.Cache[[]IndexEntry]
}

// NewStore creates a Store rooted at twiningDir.
func NewStore(twiningDir string) *Store {
	dir := filepath.Join(twiningDir, "decisions")
	indexPath := filepath.Join(dir, "index.json")
	return &Store{
		dir:       dir,
		indexPath: indexPath,
		cache:     filestore.NewCache(indexPath, loadIndex),
	}
}

func loadIndex(path string) ([]IndexEntry, error) {
	var idx []IndexEntry
	if _, err := filestore.ReadJSON(path, &idx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (s *Store) filePath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// validID rejects ids that could escape the decisions directory.
func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && !strings.Contains(id, "..")
}

// Create assigns id and timestamp, writes the record file and then appends
// the index entry. Status defaults to active.
func (s *Store) Create(ctx context.Context, d Decision) (*Decision, error) {
	d.ID = ids.New()
	d.Timestamp = ids.Timestamp()
	if d.Status == "" {
		d.Status = StatusActive
	}
	normalize(&d)

	if err := filestore.WriteJSON(s.filePath(d.ID), d); err != nil {
		return nil, fmt.Errorf("decisions: write record: %w", err)
	}

	err := filestore.WithLock(ctx, s.indexPath, func() error {
		idx, err := loadIndex(s.indexPath)
		if err != nil {
			return err
		}
		idx = append(idx, indexEntryOf(&d))
		return filestore.WriteJSON(s.indexPath, idx)
	})
	s.cache.Invalidate()
	if err != nil {
		return nil, fmt.Errorf("decisions: write index: %w", err)
	}
	return &d, nil
}

func normalize(d *Decision) {
	if d.Constraints == nil {
		d.Constraints = []string{}
	}
	if d.Alternatives == nil {
		d.Alternatives = []Alternative{}
	}
	for i := range d.Alternatives {
		if d.Alternatives[i].Pros == nil {
			d.Alternatives[i].Pros = []string{}
		}
		if d.Alternatives[i].Cons == nil {
			d.Alternatives[i].Cons = []string{}
		}
	}
	if d.DependsOn == nil {
		d.DependsOn = []string{}
	}
	if d.AffectedFiles == nil {
		d.AffectedFiles = []string{}
	}
	if d.AffectedSymbols == nil {
		d.AffectedSymbols = []string{}
	}
	if d.CommitHashes == nil {
		d.CommitHashes = []string{}
	}
}

// Get returns the decision with id, or nil when it does not exist.
func (s *Store) Get(id string) (*Decision, error) {
	if !validID(id) {
		return nil, nil
	}
	var d Decision
	found, err := filestore.ReadJSON(s.filePath(id), &d)
	if err != nil {
		return nil, fmt.Errorf("decisions: get %s: %w", id, err)
	}
	if !found {
		return nil, nil
	}
	return &d, nil
}

// Index returns the cached index. The slice is shared; do not modify.
func (s *Store) Index() ([]IndexEntry, error) {
	idx, err := s.cache.Get()
	if err != nil {
		return nil, fmt.Errorf("decisions: read index: %w", err)
	}
	return idx, nil
}

// All loads every indexed decision in index order.
func (s *Store) All() ([]Decision, error) {
	idx, err := s.Index()
	if err != nil {
		return nil, err
	}
	return s.load(idx, func(IndexEntry) bool { return true })
}

func (s *Store) load(idx []IndexEntry, keep func(IndexEntry) bool) ([]Decision, error) {
	out := make([]Decision, 0, len(idx))
	for _, e := range idx {
		if !keep(e) {
			continue
		}
		d, err := s.Get(e.ID)
		if err != nil {
			return nil, err
		}
		if d != nil {
			out = append(out, *d)
		}
	}
	return out, nil
}

// MatchesScope reports whether an index entry is relevant to q: scope
// overlap, an affected file overlapping q, or an affected symbol equal to q.
func MatchesScope(e IndexEntry, q string) bool {
	if scope.Overlaps(e.Scope, q) {
		return true
	}
	for _, f := range e.AffectedFiles {
		if scope.Overlaps(f, q) {
			return true
		}
	}
	for _, sym := range e.AffectedSymbols {
		if sym == q {
			return true
		}
	}
	return false
}

// GetByScope returns decisions matching q, newest first (timestamp desc,
// then id desc).
func (s *Store) GetByScope(q string) ([]Decision, error) {
	idx, err := s.Index()
	if err != nil {
		return nil, err
	}
	out, err := s.load(idx, func(e IndexEntry) bool { return MatchesScope(e, q) })
	if err != nil {
		return nil, err
	}
	SortNewestFirst(out)
	return out, nil
}

// SortNewestFirst orders decisions by timestamp desc, then id desc.
func SortNewestFirst(ds []Decision) {
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].Timestamp != ds[j].Timestamp {
			return ds[i].Timestamp > ds[j].Timestamp
		}
		return ds[i].ID > ds[j].ID
	})
}

// GetByCommitHash returns decisions linked to hash.
func (s *Store) GetByCommitHash(hash string) ([]Decision, error) {
	idx, err := s.Index()
	if err != nil {
		return nil, err
	}
	return s.load(idx, func(e IndexEntry) bool {
		for _, h := range e.CommitHashes {
			if h == hash {
				return true
			}
		}
		return false
	})
}

// UpdateStatus changes a decision's status in its file and then in the
// index. Setting the current status again is a no-op; leaving a terminal
// status is rejected before any write.
func (s *Store) UpdateStatus(ctx context.Context, id, status string, extra *StatusUpdate) (*Decision, error) {
	return s.mutate(ctx, id, func(d *Decision) (bool, error) {
		if d.Status == status && extra == nil {
			return false, nil
		}
		if Terminal(d.Status) && d.Status != status {
			return false, apperr.Invalid("Decision %s is %s and cannot change status", id, d.Status)
		}
		d.Status = status
		if extra != nil {
			if extra.OverriddenBy != "" {
				d.OverriddenBy = extra.OverriddenBy
			}
			if extra.OverrideReason != "" {
				d.OverrideReason = extra.OverrideReason
			}
		}
		return true, nil
	})
}

// LinkCommit appends hash to the decision's commit_hashes unless present.
func (s *Store) LinkCommit(ctx context.Context, id, hash string) (*Decision, error) {
	return s.mutate(ctx, id, func(d *Decision) (bool, error) {
		for _, h := range d.CommitHashes {
			if h == hash {
				return false, nil
			}
		}
		d.CommitHashes = append(d.CommitHashes, hash)
		return true, nil
	})
}

// mutate applies fn to the record under the file lock, then mirrors the
// result into the index under the index lock.
func (s *Store) mutate(ctx context.Context, id string, fn func(*Decision) (bool, error)) (*Decision, error) {
	if !validID(id) {
		return nil, apperr.NotFound("Decision not found: %s", id)
	}

	var out Decision
	changed := false
	path := s.filePath(id)
	err := filestore.WithLock(ctx, path, func() error {
		found, err := filestore.ReadJSON(path, &out)
		if err != nil {
			return err
		}
		if !found {
			return apperr.NotFound("Decision not found: %s", id)
		}
		changed, err = fn(&out)
		if err != nil || !changed {
			return err
		}
		return filestore.WriteJSON(path, out)
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return &out, nil
	}

	err = filestore.WithLock(ctx, s.indexPath, func() error {
		idx, err := loadIndex(s.indexPath)
		if err != nil {
			return err
		}
		for i := range idx {
			if idx[i].ID == id {
				idx[i] = indexEntryOf(&out)
			}
		}
		return filestore.WriteJSON(s.indexPath, idx)
	})
	s.cache.Invalidate()
	if err != nil {
		return nil, fmt.Errorf("decisions: update index: %w", err)
	}
	return &out, nil
}
