package blackboard

import (
	"context"
	"log"
	"unicode/utf8"

	"github.com/HendryAvila/twining/internal/apperr"
	"github.com/HendryAvila/twining/internal/search"
)

// MaxSummaryLen is the longest summary an entry may carry, in characters.
const MaxSummaryLen = 200

// Searcher ranks entries and keeps their index current.
type Searcher interface {
	search.Ranker
	Upsert(ctx context.Context, doc search.Document) error
	Remove(ctx context.Context, ids []string) error
}

// Notifier receives best-effort change events.
type Notifier interface {
	Publish(ctx context.Context, event string, payload any)
}

// PostInput is the caller-facing shape of a new entry.
type PostInput struct {
	EntryType string   `json:"entry_type"`
	Summary   string   `json:"summary"`
	Detail    string   `json:"detail,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Scope     string   `json:"scope,omitempty"`
	RelatesTo []string `json:"relates_to,omitempty"`
	AgentID   string   `json:"agent_id,omitempty"`
}

// PostResult identifies a posted entry.
type PostResult struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
}

// QueryResult is one relevance-ranked entry.
type QueryResult struct {
	Entry     Entry   `json:"entry"`
	Relevance float64 `json:"relevance"`
}

// Engine is the validated entry point to the blackboard.
type Engine struct {
	store    *Store
	searcher Searcher
	notifier Notifier
}

// NewEngine creates an Engine over store using keyword ranking until
// SetSearcher installs an index.
func NewEngine(store *Store) *Engine {
	return &Engine{store: store, searcher: search.Keyword{}}
}

// SetSearcher installs the search backend. A nil searcher restores keyword ranking.
func (e *Engine) SetSearcher(s Searcher) {
	if s == nil {
		s = search.Keyword{}
	}
	e.searcher = s
}

// SetNotifier installs the event publisher. Nil disables publishing.
func (e *Engine) SetNotifier(n Notifier) { e.notifier = n }

// Store exposes the underlying store for read-only consumers.
func (e *Engine) Store() *Store { return e.store }

// Post validates and appends a caller-supplied entry. "decision" entries
// are rejected: they are only produced by recording a decision.
func (e *Engine) Post(ctx context.Context, in PostInput) (PostResult, error) {
	if !ValidEntryType(in.EntryType) {
		return PostResult{}, apperr.Invalid("Invalid entry_type %q. Must be one of: need, offer, finding, constraint, question, answer, status, artifact, warning", in.EntryType)
	}
	if in.EntryType == TypeDecision {
		return PostResult{}, apperr.Invalid(`entry_type "decision" is reserved; use twining_decide to record decisions`)
	}
	if err := validateSummary(in.Summary); err != nil {
		return PostResult{}, err
	}

	entry, err := e.Record(ctx, Entry{
		AgentID:   in.AgentID,
		EntryType: in.EntryType,
		Summary:   in.Summary,
		Detail:    in.Detail,
		Tags:      in.Tags,
		Scope:     in.Scope,
		RelatesTo: in.RelatesTo,
	})
	if err != nil {
		return PostResult{}, err
	}
	return PostResult{ID: entry.ID, Timestamp: entry.Timestamp}, nil
}

// Record appends an entry produced by another engine (decision cross-posts,
// conflict warnings, archive summaries). Any entry type is accepted and an
// over-long summary is truncated rather than rejected.
func (e *Engine) Record(ctx context.Context, entry Entry) (Entry, error) {
	if entry.AgentID == "" {
		entry.AgentID = "main"
	}
	entry.Summary = truncate(entry.Summary, MaxSummaryLen)

	saved, err := e.store.Append(ctx, entry)
	if err != nil {
		return Entry{}, err
	}

	if err := e.searcher.Upsert(ctx, search.Document{ID: saved.ID, Kind: "entry", Text: saved.Summary + " " + saved.Detail}); err != nil {
		log.Printf("WARNING: blackboard: index entry %s: %v", saved.ID, err)
	}
	if e.notifier != nil {
		e.notifier.Publish(ctx, "entry_posted", saved)
	}
	return saved, nil
}

// Read filters the log.
func (e *Engine) Read(opts ReadOptions) (ReadResult, error) {
	return e.store.Read(opts)
}

// Recent returns the newest entries first.
func (e *Engine) Recent(n int, types []string) ([]Entry, error) {
	return e.store.Recent(n, types)
}

// Query ranks entries against free text. limit defaults to 10.
func (e *Engine) Query(ctx context.Context, query string, types []string, limit int) ([]QueryResult, error) {
	if limit <= 0 {
		limit = 10
	}
	all, err := e.store.All()
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Entry, len(all))
	docs := make([]search.Document, 0, len(all))
	for _, en := range all {
		if len(types) > 0 && !contains(types, en.EntryType) {
			continue
		}
		byID[en.ID] = en
		docs = append(docs, search.Document{ID: en.ID, Kind: "entry", Text: en.Summary + " " + en.Detail})
	}

	ranked, err := e.searcher.Rank(ctx, query, docs)
	if err != nil {
		log.Printf("WARNING: blackboard: ranker failed, using keywords: %v", err)
		ranked = search.KeywordRank(query, docs, 0)
	}

	out := make([]QueryResult, 0, limit)
	for _, r := range ranked {
		if len(out) == limit {
			break
		}
		out = append(out, QueryResult{Entry: byID[r.ID], Relevance: r.Score})
	}
	return out, nil
}

// Dismiss removes entries by id. The search index is pruned best-effort.
func (e *Engine) Dismiss(ctx context.Context, idList []string) (DismissResult, error) {
	if len(idList) == 0 {
		return DismissResult{}, apperr.Invalid("ids must not be empty")
	}
	res, err := e.store.Dismiss(ctx, idList)
	if err != nil {
		return res, err
	}
	if err := e.searcher.Remove(ctx, res.Dismissed); err != nil {
		log.Printf("WARNING: blackboard: prune index: %v", err)
	}
	return res, nil
}

// Unindex drops entries from the search index, best-effort. Used after
// entries leave the log by some other route, such as archiving.
func (e *Engine) Unindex(ctx context.Context, idList []string) {
	if len(idList) == 0 {
		return
	}
	if err := e.searcher.Remove(ctx, idList); err != nil {
		log.Printf("WARNING: blackboard: prune index: %v", err)
	}
}

func validateSummary(s string) error {
	if s == "" {
		return apperr.Invalid("summary is required")
	}
	if n := utf8.RuneCountInString(s); n > MaxSummaryLen {
		return apperr.Invalid("summary must be %d characters or less (got %d)", MaxSummaryLen, n)
	}
	return nil
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-3]) + "..."
}
