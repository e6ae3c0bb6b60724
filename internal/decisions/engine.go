package decisions

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/HendryAvila/twining/internal/apperr"
	"github.com/HendryAvila/twining/internal/blackboard"
	"github.com/HendryAvila/twining/internal/scope"
	"github.com/HendryAvila/twining/internal/search"
)

// Poster records blackboard entries on behalf of the engine.
type Poster interface {
	Record(ctx context.Context, entry blackboard.Entry) (blackboard.Entry, error)
}

// Searcher keeps the relevance index current.
type Searcher interface {
	search.Ranker
	Upsert(ctx context.Context, doc search.Document) error
	Remove(ctx context.Context, ids []string) error
}

// Notifier receives best-effort change events.
type Notifier interface {
	Publish(ctx context.Context, event string, payload any)
}

// AssemblyChecker reports whether an agent assembled context before deciding.
type AssemblyChecker interface {
	HasAssembled(agentID string) bool
}

// SearchText is the text a decision is indexed and ranked by.
func SearchText(d *Decision) string {
	return d.Summary + " " + d.Rationale + " " + d.Context
}

// ─── Inputs & results ────────────────────────────────────────────────────────

// DecideInput is the caller-facing shape of a new decision.
type DecideInput struct {
	Domain          string        `json:"domain"`
	Scope           string        `json:"scope"`
	Summary         string        `json:"summary"`
	Context         string        `json:"context"`
	Rationale       string        `json:"rationale"`
	Constraints     []string      `json:"constraints,omitempty"`
	Alternatives    []Alternative `json:"alternatives,omitempty"`
	DependsOn       []string      `json:"depends_on,omitempty"`
	Supersedes      string        `json:"supersedes,omitempty"`
	Confidence      string        `json:"confidence,omitempty"`
	Reversible      *bool         `json:"reversible,omitempty"`
	AffectedFiles   []string      `json:"affected_files,omitempty"`
	AffectedSymbols []string      `json:"affected_symbols,omitempty"`
	AgentID         string        `json:"agent_id,omitempty"`
	CommitHash      string        `json:"commit_hash,omitempty"`
}

// ConflictInfo names an existing decision that conflicts with a new one.
type ConflictInfo struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
}

// DecideResult is returned by Decide.
type DecideResult struct {
	ID        string         `json:"id"`
	Timestamp string         `json:"timestamp"`
	Status    string         `json:"status"`
	Conflicts []ConflictInfo `json:"conflicts,omitempty"`
}

// WhyDecision is one decision in a Why answer.
type WhyDecision struct {
	ID                string   `json:"id"`
	Summary           string   `json:"summary"`
	Status            string   `json:"status"`
	Confidence        string   `json:"confidence"`
	Timestamp         string   `json:"timestamp"`
	AlternativesCount int      `json:"alternatives_count"`
	CommitHashes      []string `json:"commit_hashes"`
}

// WhyResult explains the decisions behind a scope.
type WhyResult struct {
	Scope            string        `json:"scope"`
	Decisions        []WhyDecision `json:"decisions"`
	ActiveCount      int           `json:"active_count"`
	ProvisionalCount int           `json:"provisional_count"`
}

// TraceLink is one decision reached while tracing dependencies.
type TraceLink struct {
	ID        string `json:"id"`
	Summary   string `json:"summary"`
	Status    string `json:"status"`
	Direction string `json:"direction"`
	Depth     int    `json:"depth"`
}

// TraceResult holds the dependency chain of a decision. Chain lists every
// reached decision once, upstream links first; Upstream and Downstream are
// the same links split by direction.
type TraceResult struct {
	DecisionID string      `json:"decision_id"`
	Chain      []TraceLink `json:"chain"`
	Upstream   []TraceLink `json:"upstream"`
	Downstream []TraceLink `json:"downstream"`
}

// Trace directions.
const (
	DirectionUpstream   = "upstream"
	DirectionDownstream = "downstream"
	DirectionBoth       = "both"
)

// ReconsiderResult is returned by Reconsider.
type ReconsiderResult struct {
	Flagged         bool   `json:"flagged"`
	DecisionID      string `json:"decision_id"`
	DownstreamCount int    `json:"downstream_count"`
	Reason          string `json:"reason"`
}

// OverrideInput describes a human override.
type OverrideInput struct {
	DecisionID   string `json:"decision_id"`
	Reason       string `json:"reason"`
	NewSummary   string `json:"new_summary,omitempty"`
	OverriddenBy string `json:"overridden_by,omitempty"`
}

// OverrideResult is returned by Override.
type OverrideResult struct {
	OverriddenID  string `json:"overridden_id"`
	NewDecisionID string `json:"new_decision_id,omitempty"`
}

// WrongStatus names a decision that could not be promoted.
type WrongStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// PromoteResult is returned by Promote.
type PromoteResult struct {
	Promoted      []string      `json:"promoted"`
	AlreadyActive []string      `json:"already_active"`
	NotFound      []string      `json:"not_found"`
	WrongStatus   []WrongStatus `json:"wrong_status"`
}

// ─── Engine ──────────────────────────────────────────────────────────────────

// Engine applies the decision lifecycle rules on top of Store.
type Engine struct {
	store    *Store
	board    Poster
	searcher Searcher
	notifier Notifier
	tracker  AssemblyChecker
}

// NewEngine creates an Engine. board receives cross-posted entries.
func NewEngine(store *Store, board Poster) *Engine {
	return &Engine{store: store, board: board, searcher: search.Keyword{}}
}

// SetSearcher installs the search backend. Nil restores keyword ranking.
func (e *Engine) SetSearcher(s Searcher) {
	if s == nil {
		s = search.Keyword{}
	}
	e.searcher = s
}

// SetNotifier installs the event publisher.
func (e *Engine) SetNotifier(n Notifier) { e.notifier = n }

// SetAssemblyChecker installs the tracker consulted for assembled_before.
func (e *Engine) SetAssemblyChecker(c AssemblyChecker) { e.tracker = c }

// Store exposes the underlying store.
func (e *Engine) Store() *Store { return e.store }

// Decide validates and records a new decision.
func (e *Engine) Decide(ctx context.Context, in DecideInput) (DecideResult, error) {
	if err := validateDecide(&in); err != nil {
		return DecideResult{}, err
	}

	if in.Supersedes != "" {
		old, err := e.store.Get(in.Supersedes)
		if err != nil {
			return DecideResult{}, err
		}
		if old == nil {
			return DecideResult{}, apperr.NotFound("Decision not found: %s", in.Supersedes)
		}
		if Terminal(old.Status) {
			return DecideResult{}, apperr.Invalid("Decision %s is %s and cannot be superseded", old.ID, old.Status)
		}
	}

	conflicts, err := e.findConflicts(in)
	if err != nil {
		return DecideResult{}, err
	}

	d := Decision{
		AgentID:         in.AgentID,
		Domain:          in.Domain,
		Scope:           in.Scope,
		Summary:         in.Summary,
		Context:         in.Context,
		Rationale:       in.Rationale,
		Constraints:     in.Constraints,
		Alternatives:    in.Alternatives,
		DependsOn:       in.DependsOn,
		Supersedes:      in.Supersedes,
		Confidence:      in.Confidence,
		Status:          StatusActive,
		Reversible:      *in.Reversible,
		AffectedFiles:   in.AffectedFiles,
		AffectedSymbols: in.AffectedSymbols,
	}
	if in.CommitHash != "" {
		d.CommitHashes = []string{in.CommitHash}
	}
	if e.tracker != nil {
		assembled := e.tracker.HasAssembled(in.AgentID)
		d.AssembledBefore = &assembled
	}
	if len(conflicts) > 0 {
		d.Status = StatusProvisional
		for _, c := range conflicts {
			d.ConflictsWith = append(d.ConflictsWith, c.ID)
		}
	}

	saved, err := e.store.Create(ctx, d)
	if err != nil {
		return DecideResult{}, err
	}

	if in.Supersedes != "" {
		if _, err := e.store.UpdateStatus(ctx, in.Supersedes, StatusSuperseded, nil); err != nil {
			return DecideResult{}, err
		}
	}

	if _, err := e.board.Record(ctx, blackboard.Entry{
		AgentID:   saved.AgentID,
		EntryType: blackboard.TypeDecision,
		Summary:   saved.Summary,
		Detail:    saved.Rationale,
		Tags:      []string{saved.Domain},
		Scope:     saved.Scope,
		RelatesTo: []string{saved.ID},
	}); err != nil {
		return DecideResult{}, err
	}

	if len(conflicts) > 0 {
		if err := e.postConflictWarning(ctx, saved, conflicts); err != nil {
			return DecideResult{}, err
		}
	}

	if err := e.searcher.Upsert(ctx, search.Document{ID: saved.ID, Kind: "decision", Text: SearchText(saved)}); err != nil {
		log.Printf("WARNING: decisions: index %s: %v", saved.ID, err)
	}
	e.publish(ctx, "decision_recorded", saved)

	return DecideResult{
		ID:        saved.ID,
		Timestamp: saved.Timestamp,
		Status:    saved.Status,
		Conflicts: conflicts,
	}, nil
}

func validateDecide(in *DecideInput) error {
	for _, f := range []struct{ name, value string }{
		{"domain", in.Domain},
		{"scope", in.Scope},
		{"summary", in.Summary},
		{"context", in.Context},
		{"rationale", in.Rationale},
	} {
		if strings.TrimSpace(f.value) == "" {
			return apperr.Invalid("%s is required", f.name)
		}
	}
	switch in.Confidence {
	case "":
		in.Confidence = ConfidenceMedium
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
	default:
		return apperr.Invalid("Invalid confidence %q. Must be one of: high, medium, low", in.Confidence)
	}
	if in.Reversible == nil {
		t := true
		in.Reversible = &t
	}
	if in.AgentID == "" {
		in.AgentID = "main"
	}
	for i, a := range in.Alternatives {
		if strings.TrimSpace(a.Option) == "" {
			return apperr.Invalid("alternatives[%d].option is required", i)
		}
	}
	return nil
}

// findConflicts applies the conflict rule: same domain, overlapping scope,
// in force, different summary. The decision being superseded never counts.
func (e *Engine) findConflicts(in DecideInput) ([]ConflictInfo, error) {
	idx, err := e.store.Index()
	if err != nil {
		return nil, err
	}
	var out []ConflictInfo
	for _, x := range idx {
		if x.ID == in.Supersedes || x.Domain != in.Domain || !InForce(x.Status) {
			continue
		}
		if !scope.Overlaps(x.Scope, in.Scope) || x.Summary == in.Summary {
			continue
		}
		out = append(out, ConflictInfo{ID: x.ID, Summary: x.Summary})
	}
	return out, nil
}

func (e *Engine) postConflictWarning(ctx context.Context, d *Decision, conflicts []ConflictInfo) error {
	var b strings.Builder
	b.WriteString("New decision ")
	b.WriteString(d.ID)
	b.WriteString(" conflicts with:\n")
	related := []string{d.ID}
	for _, c := range conflicts {
		fmt.Fprintf(&b, "- %s: %s\n", c.ID, c.Summary)
		related = append(related, c.ID)
	}
	_, err := e.board.Record(ctx, blackboard.Entry{
		AgentID:   d.AgentID,
		EntryType: blackboard.TypeWarning,
		Summary:   fmt.Sprintf("Potential conflict: %q vs %d existing decision(s)", d.Summary, len(conflicts)),
		Detail:    b.String(),
		Tags:      []string{d.Domain, "conflict"},
		Scope:     d.Scope,
		RelatesTo: related,
	})
	return err
}

// Why lists the decisions that affect scope, newest first.
func (e *Engine) Why(ctx context.Context, q string) (WhyResult, error) {
	if strings.TrimSpace(q) == "" {
		return WhyResult{}, apperr.Invalid("scope is required")
	}
	ds, err := e.store.GetByScope(q)
	if err != nil {
		return WhyResult{}, err
	}
	res := WhyResult{Scope: q, Decisions: make([]WhyDecision, 0, len(ds))}
	for _, d := range ds {
		res.Decisions = append(res.Decisions, WhyDecision{
			ID:                d.ID,
			Summary:           d.Summary,
			Status:            d.Status,
			Confidence:        d.Confidence,
			Timestamp:         d.Timestamp,
			AlternativesCount: len(d.Alternatives),
			CommitHashes:      d.CommitHashes,
		})
		switch d.Status {
		case StatusActive:
			res.ActiveCount++
		case StatusProvisional:
			res.ProvisionalCount++
		}
	}
	return res, nil
}

// Trace walks depends_on edges breadth-first. Upstream follows depends_on,
// downstream follows the reverse. Both walks share one visited set, so a
// decision appears at most once in the whole result.
func (e *Engine) Trace(ctx context.Context, id, direction string) (TraceResult, error) {
	switch direction {
	case "":
		direction = DirectionBoth
	case DirectionUpstream, DirectionDownstream, DirectionBoth:
	default:
		return TraceResult{}, apperr.Invalid("Invalid direction %q. Must be one of: upstream, downstream, both", direction)
	}

	all, err := e.store.All()
	if err != nil {
		return TraceResult{}, err
	}
	byID := make(map[string]*Decision, len(all))
	dependents := make(map[string][]string)
	for i := range all {
		d := &all[i]
		byID[d.ID] = d
		for _, dep := range d.DependsOn {
			dependents[dep] = append(dependents[dep], d.ID)
		}
	}
	root, ok := byID[id]
	if !ok {
		return TraceResult{}, apperr.NotFound("Decision not found: %s", id)
	}

	visited := map[string]bool{root.ID: true}
	res := TraceResult{DecisionID: id, Upstream: []TraceLink{}, Downstream: []TraceLink{}}
	if direction != DirectionDownstream {
		res.Upstream = walk(root.ID, DirectionUpstream, func(x string) []string {
			if d := byID[x]; d != nil {
				return d.DependsOn
			}
			return nil
		}, byID, visited)
	}
	if direction != DirectionUpstream {
		res.Downstream = walk(root.ID, DirectionDownstream, func(x string) []string { return dependents[x] }, byID, visited)
	}
	res.Chain = make([]TraceLink, 0, len(res.Upstream)+len(res.Downstream))
	res.Chain = append(res.Chain, res.Upstream...)
	res.Chain = append(res.Chain, res.Downstream...)
	return res, nil
}

func walk(start, direction string, next func(string) []string, byID map[string]*Decision, visited map[string]bool) []TraceLink {
	type item struct {
		id    string
		depth int
	}
	out := []TraceLink{}
	queue := []item{{start, 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range next(cur.id) {
			if visited[n] {
				continue
			}
			d := byID[n]
			if d == nil {
				continue
			}
			visited[n] = true
			out = append(out, TraceLink{ID: d.ID, Summary: d.Summary, Status: d.Status, Direction: direction, Depth: cur.depth + 1})
			queue = append(queue, item{n, cur.depth + 1})
		}
	}
	return out
}

// Reconsider flags an active decision as provisional and warns about the
// decisions that depend on it.
func (e *Engine) Reconsider(ctx context.Context, id, newContext, agentID string) (ReconsiderResult, error) {
	if strings.TrimSpace(newContext) == "" {
		return ReconsiderResult{}, apperr.Invalid("new_context is required")
	}
	d, err := e.store.Get(id)
	if err != nil {
		return ReconsiderResult{}, err
	}
	if d == nil {
		return ReconsiderResult{}, apperr.NotFound("Decision not found: %s", id)
	}
	if Terminal(d.Status) {
		return ReconsiderResult{}, apperr.Invalid("Decision %s is %s and cannot be reconsidered", id, d.Status)
	}
	if d.Status == StatusProvisional {
		return ReconsiderResult{
			Flagged:    false,
			DecisionID: id,
			Reason:     "Decision is already provisional; not flagged",
		}, nil
	}

	trace, err := e.Trace(ctx, id, DirectionDownstream)
	if err != nil {
		return ReconsiderResult{}, err
	}
	if _, err := e.store.UpdateStatus(ctx, id, StatusProvisional, nil); err != nil {
		return ReconsiderResult{}, err
	}

	n := len(trace.Downstream)
	if agentID == "" {
		agentID = "main"
	}
	if _, err := e.board.Record(ctx, blackboard.Entry{
		AgentID:   agentID,
		EntryType: blackboard.TypeWarning,
		Summary:   fmt.Sprintf("Reconsidering: %s", d.Summary),
		Detail:    fmt.Sprintf("New context: %s\n%d downstream decision(s) may be affected.", newContext, n),
		Tags:      []string{d.Domain, "reconsider"},
		Scope:     d.Scope,
		RelatesTo: []string{id},
	}); err != nil {
		return ReconsiderResult{}, err
	}
	e.publish(ctx, "decision_reconsidered", map[string]any{"id": id, "downstream_count": n})

	return ReconsiderResult{
		Flagged:         true,
		DecisionID:      id,
		DownstreamCount: n,
		Reason:          fmt.Sprintf("Flagged for reconsideration with %d downstream decision(s)", n),
	}, nil
}

// Override marks a decision overridden and optionally records a replacement
// with the same domain and scope.
func (e *Engine) Override(ctx context.Context, in OverrideInput) (OverrideResult, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return OverrideResult{}, apperr.Invalid("reason is required")
	}
	if in.OverriddenBy == "" {
		in.OverriddenBy = "human"
	}
	d, err := e.store.Get(in.DecisionID)
	if err != nil {
		return OverrideResult{}, err
	}
	if d == nil {
		return OverrideResult{}, apperr.NotFound("Decision not found: %s", in.DecisionID)
	}
	if Terminal(d.Status) {
		return OverrideResult{}, apperr.Invalid("Decision %s is already %s", d.ID, d.Status)
	}

	if _, err := e.store.UpdateStatus(ctx, d.ID, StatusOverridden, &StatusUpdate{
		OverriddenBy:   in.OverriddenBy,
		OverrideReason: in.Reason,
	}); err != nil {
		return OverrideResult{}, err
	}

	if _, err := e.board.Record(ctx, blackboard.Entry{
		AgentID:   in.OverriddenBy,
		EntryType: blackboard.TypeDecision,
		Summary:   fmt.Sprintf("Override: %s", d.Summary),
		Detail:    in.Reason,
		Tags:      []string{d.Domain, "override"},
		Scope:     d.Scope,
		RelatesTo: []string{d.ID},
	}); err != nil {
		return OverrideResult{}, err
	}

	res := OverrideResult{OverriddenID: d.ID}
	if in.NewSummary != "" {
		replacement, err := e.Decide(ctx, DecideInput{
			Domain:    d.Domain,
			Scope:     d.Scope,
			Summary:   in.NewSummary,
			Context:   fmt.Sprintf("Replaces overridden decision %s: %s", d.ID, d.Summary),
			Rationale: in.Reason,
			AgentID:   in.OverriddenBy,
		})
		if err != nil {
			return res, err
		}
		res.NewDecisionID = replacement.ID
	}
	e.publish(ctx, "decision_overridden", res)
	return res, nil
}

// Promote turns provisional decisions active.
func (e *Engine) Promote(ctx context.Context, idList []string, agentID string) (PromoteResult, error) {
	if len(idList) == 0 {
		return PromoteResult{}, apperr.Invalid("decision_ids must not be empty")
	}
	res := PromoteResult{
		Promoted:      []string{},
		AlreadyActive: []string{},
		NotFound:      []string{},
		WrongStatus:   []WrongStatus{},
	}
	var summaries []string
	for _, id := range idList {
		d, err := e.store.Get(id)
		if err != nil {
			return res, err
		}
		switch {
		case d == nil:
			res.NotFound = append(res.NotFound, id)
		case d.Status == StatusActive:
			res.AlreadyActive = append(res.AlreadyActive, id)
		case d.Status != StatusProvisional:
			res.WrongStatus = append(res.WrongStatus, WrongStatus{ID: id, Status: d.Status})
		default:
			if _, err := e.store.UpdateStatus(ctx, id, StatusActive, nil); err != nil {
				return res, err
			}
			res.Promoted = append(res.Promoted, id)
			summaries = append(summaries, d.Summary)
		}
	}

	if len(res.Promoted) > 0 {
		if agentID == "" {
			agentID = "main"
		}
		if _, err := e.board.Record(ctx, blackboard.Entry{
			AgentID:   agentID,
			EntryType: blackboard.TypeStatus,
			Summary:   fmt.Sprintf("Promoted %d provisional decision(s) to active", len(res.Promoted)),
			Detail:    strings.Join(summaries, "\n"),
			Tags:      []string{"promote"},
			RelatesTo: res.Promoted,
		}); err != nil {
			return res, err
		}
	}
	return res, nil
}

// LinkCommit attaches a commit hash to a decision and announces it.
func (e *Engine) LinkCommit(ctx context.Context, id, hash, agentID string) (*Decision, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return nil, apperr.Invalid("commit_hash is required")
	}
	d, err := e.store.LinkCommit(ctx, id, hash)
	if err != nil {
		return nil, err
	}
	if agentID == "" {
		agentID = "main"
	}
	short := hash
	if len(short) > 7 {
		short = short[:7]
	}
	if _, err := e.board.Record(ctx, blackboard.Entry{
		AgentID:   agentID,
		EntryType: blackboard.TypeStatus,
		Summary:   fmt.Sprintf("Linked commit %s to %q", short, d.Summary),
		Tags:      []string{"commit"},
		Scope:     d.Scope,
		RelatesTo: []string{d.ID},
	}); err != nil {
		return nil, err
	}
	return d, nil
}

// CommitDecisions returns the decisions linked to hash.
func (e *Engine) CommitDecisions(ctx context.Context, hash string) ([]Decision, error) {
	if strings.TrimSpace(hash) == "" {
		return nil, apperr.Invalid("commit_hash is required")
	}
	return e.store.GetByCommitHash(hash)
}

func (e *Engine) publish(ctx context.Context, event string, payload any) {
	if e.notifier != nil {
		e.notifier.Publish(ctx, event, payload)
	}
}
