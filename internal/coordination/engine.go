// Package coordination ranks agents for work, posts delegation requests and
// manages handoffs between agents.
package coordination

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/HendryAvila/twining/internal/agents"
	"github.com/HendryAvila/twining/internal/apperr"
	"github.com/HendryAvila/twining/internal/blackboard"
	"github.com/HendryAvila/twining/internal/config"
	"github.com/HendryAvila/twining/internal/decisions"
	"github.com/HendryAvila/twining/internal/handoffs"
	"github.com/HendryAvila/twining/internal/ids"
	"github.com/HendryAvila/twining/internal/scope"
)

var timeNow = time.Now

// Urgency levels.
const (
	UrgencyHigh   = "high"
	UrgencyNormal = "normal"
	UrgencyLow    = "low"
)

const snapshotLimit = 10

// AgentScore is an agent ranked against required capabilities.
type AgentScore struct {
	AgentID             string   `json:"agent_id"`
	Capabilities        []string `json:"capabilities"`
	Role                string   `json:"role,omitempty"`
	Description         string   `json:"description,omitempty"`
	Liveness            string   `json:"liveness"`
	CapabilityOverlap   float64  `json:"capability_overlap"`
	LivenessScore       float64  `json:"liveness_score"`
	TotalScore          float64  `json:"total_score"`
	MatchedCapabilities []string `json:"matched_capabilities"`
}

// DiscoverInput filters Discover. IncludeGone defaults to true.
type DiscoverInput struct {
	RequiredCapabilities []string `json:"required_capabilities"`
	IncludeGone          *bool    `json:"include_gone,omitempty"`
	MinScore             float64  `json:"min_score,omitempty"`
}

// DiscoverResult lists ranked agents. TotalRegistered ignores filtering.
type DiscoverResult struct {
	Agents          []AgentScore `json:"agents"`
	TotalRegistered int          `json:"total_registered"`
}

// DelegationInput describes a request for another agent to pick up work.
type DelegationInput struct {
	Summary              string   `json:"summary"`
	RequiredCapabilities []string `json:"required_capabilities"`
	Urgency              string   `json:"urgency,omitempty"`
	TimeoutMs            int64    `json:"timeout_ms,omitempty"`
	Scope                string   `json:"scope,omitempty"`
	Tags                 []string `json:"tags,omitempty"`
	AgentID              string   `json:"agent_id,omitempty"`
}

// DelegationResult is returned by PostDelegation.
type DelegationResult struct {
	EntryID         string       `json:"entry_id"`
	Timestamp       string       `json:"timestamp"`
	ExpiresAt       string       `json:"expires_at"`
	SuggestedAgents []AgentScore `json:"suggested_agents"`
}

// HandoffInput describes a handoff to create. AutoSnapshot defaults to true
// and is ignored when ContextSnapshot is given.
type HandoffInput struct {
	SourceAgent     string             `json:"source_agent"`
	TargetAgent     string             `json:"target_agent,omitempty"`
	Scope           string             `json:"scope,omitempty"`
	Summary         string             `json:"summary"`
	Results         []handoffs.Result  `json:"results"`
	AutoSnapshot    *bool              `json:"auto_snapshot,omitempty"`
	ContextSnapshot *handoffs.Snapshot `json:"context_snapshot,omitempty"`
}

// Engine coordinates agents over the shared stores.
type Engine struct {
	agents    *agents.Store
	handoffs  *handoffs.Store
	board     *blackboard.Engine
	decisions *decisions.Store
	cfg       config.Config
}

// NewEngine wires the coordination engine.
func NewEngine(a *agents.Store, h *handoffs.Store, board *blackboard.Engine, d *decisions.Store, cfg config.Config) *Engine {
	return &Engine{agents: a, handoffs: h, board: board, decisions: d, cfg: cfg}
}

// Agents exposes the agent store.
func (e *Engine) Agents() *agents.Store { return e.agents }

// Handoffs exposes the handoff store.
func (e *Engine) Handoffs() *handoffs.Store { return e.handoffs }

// ─── Scoring ─────────────────────────────────────────────────────────────────

// LivenessScore maps a liveness state to its score.
func LivenessScore(state string) float64 {
	switch state {
	case agents.Active:
		return 1.0
	case agents.Idle:
		return 0.5
	default:
		return 0.1
	}
}

// ScoreAgent rates agent as 70% capability overlap plus 30% liveness.
// With no required capabilities the overlap is 0.
func ScoreAgent(agent agents.Record, required []string, th config.LivenessConfig, now time.Time) AgentScore {
	req := scope.NormalizeTags(required)
	have := make(map[string]bool, len(agent.Capabilities))
	for _, c := range agent.Capabilities {
		have[c] = true
	}
	matched := []string{}
	for _, r := range req {
		if have[r] {
			matched = append(matched, r)
		}
	}
	overlap := 0.0
	if len(req) > 0 {
		overlap = float64(len(matched)) / float64(len(req))
	}
	state := agents.Liveness(agent.LastActive, now, th)
	ls := LivenessScore(state)

	caps := agent.Capabilities
	if caps == nil {
		caps = []string{}
	}
	return AgentScore{
		AgentID:             agent.AgentID,
		Capabilities:        caps,
		Role:                agent.Role,
		Description:         agent.Description,
		Liveness:            state,
		CapabilityOverlap:   overlap,
		LivenessScore:       ls,
		TotalScore:          0.7*overlap + 0.3*ls,
		MatchedCapabilities: matched,
	}
}

// Discover scores every registered agent and returns them best first
// (total score desc, then agent id asc).
func (e *Engine) Discover(ctx context.Context, in DiscoverInput) (DiscoverResult, error) {
	all, err := e.agents.All()
	if err != nil {
		return DiscoverResult{}, err
	}
	includeGone := in.IncludeGone == nil || *in.IncludeGone
	now := timeNow()

	out := []AgentScore{}
	for _, a := range all {
		s := ScoreAgent(a, in.RequiredCapabilities, e.cfg.Agents.Liveness, now)
		if !includeGone && s.Liveness == agents.Gone {
			continue
		}
		if s.TotalScore < in.MinScore {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalScore != out[j].TotalScore {
			return out[i].TotalScore > out[j].TotalScore
		}
		return out[i].AgentID < out[j].AgentID
	})
	return DiscoverResult{Agents: out, TotalRegistered: len(all)}, nil
}

// Register upserts an agent record.
func (e *Engine) Register(ctx context.Context, reg agents.Registration) (agents.Record, error) {
	if strings.TrimSpace(reg.AgentID) == "" {
		return agents.Record{}, apperr.Invalid("agent_id is required")
	}
	return e.agents.Upsert(ctx, reg)
}

// ─── Delegation ──────────────────────────────────────────────────────────────

// Timeout returns the expiry window for urgency, preferring override when set.
func (e *Engine) Timeout(urgency string, overrideMs int64) time.Duration {
	if overrideMs > 0 {
		return time.Duration(overrideMs) * time.Millisecond
	}
	t := e.cfg.Delegations.Timeouts
	switch urgency {
	case UrgencyHigh:
		return time.Duration(t.HighMs) * time.Millisecond
	case UrgencyLow:
		return time.Duration(t.LowMs) * time.Millisecond
	default:
		return time.Duration(t.NormalMs) * time.Millisecond
	}
}

// PostDelegation posts a need entry carrying delegation metadata and
// suggests agents that are not gone.
func (e *Engine) PostDelegation(ctx context.Context, in DelegationInput) (DelegationResult, error) {
	if strings.TrimSpace(in.Summary) == "" {
		return DelegationResult{}, apperr.Invalid("summary is required")
	}
	switch in.Urgency {
	case "":
		in.Urgency = UrgencyNormal
	case UrgencyHigh, UrgencyNormal, UrgencyLow:
	default:
		return DelegationResult{}, apperr.Invalid("Invalid urgency %q. Must be one of: high, normal, low", in.Urgency)
	}
	if in.TimeoutMs < 0 {
		return DelegationResult{}, apperr.Invalid("timeout_ms must be positive")
	}
	caps := scope.NormalizeTags(in.RequiredCapabilities)
	expires := ids.Format(timeNow().Add(e.Timeout(in.Urgency, in.TimeoutMs)))

	tags := append([]string{"delegation", in.Urgency}, in.Tags...)
	entry, err := e.board.Record(ctx, blackboard.Entry{
		AgentID:   in.AgentID,
		EntryType: blackboard.TypeNeed,
		Summary:   in.Summary,
		Detail:    fmt.Sprintf("Delegation request (%s urgency). Required capabilities: %s. Expires at %s.", in.Urgency, strings.Join(caps, ", "), expires),
		Tags:      tags,
		Scope:     in.Scope,
		Delegation: &blackboard.Delegation{
			Type:                 "delegation",
			RequiredCapabilities: caps,
			Urgency:              in.Urgency,
			ExpiresAt:            expires,
			TimeoutMs:            in.TimeoutMs,
		},
	})
	if err != nil {
		return DelegationResult{}, err
	}

	no := false
	found, err := e.Discover(ctx, DiscoverInput{RequiredCapabilities: caps, IncludeGone: &no})
	if err != nil {
		return DelegationResult{}, err
	}
	return DelegationResult{
		EntryID:         entry.ID,
		Timestamp:       entry.Timestamp,
		ExpiresAt:       expires,
		SuggestedAgents: found.Agents,
	}, nil
}

// IsExpired reports whether a delegation has passed its expiry.
func IsExpired(d *blackboard.Delegation, now time.Time) bool {
	if d == nil {
		return false
	}
	t, err := ids.Parse(d.ExpiresAt)
	if err != nil {
		return false
	}
	return !now.Before(t)
}

// ─── Handoffs ────────────────────────────────────────────────────────────────

// CreateHandoff records a handoff, building a context snapshot from the
// scope when none is supplied, and announces it on the blackboard.
func (e *Engine) CreateHandoff(ctx context.Context, in HandoffInput) (*handoffs.Record, error) {
	if strings.TrimSpace(in.Summary) == "" {
		return nil, apperr.Invalid("summary is required")
	}
	if strings.TrimSpace(in.SourceAgent) == "" {
		return nil, apperr.Invalid("source_agent is required")
	}
	for i, r := range in.Results {
		if strings.TrimSpace(r.Description) == "" {
			return nil, apperr.Invalid("results[%d].description is required", i)
		}
		if !handoffs.ValidResultStatus(r.Status) {
			return nil, apperr.Invalid("Invalid result status %q. Must be one of: completed, partial, blocked, failed", r.Status)
		}
	}
	in.Scope = scope.OrProject(in.Scope)

	var snap handoffs.Snapshot
	switch {
	case in.ContextSnapshot != nil:
		snap = *in.ContextSnapshot
	case in.AutoSnapshot == nil || *in.AutoSnapshot:
		s, err := e.snapshot(in.Scope)
		if err != nil {
			return nil, err
		}
		snap = s
	}

	rec, err := e.handoffs.Create(ctx, handoffs.Record{
		SourceAgent:     in.SourceAgent,
		TargetAgent:     in.TargetAgent,
		Scope:           in.Scope,
		Summary:         in.Summary,
		Results:         in.Results,
		ContextSnapshot: snap,
	})
	if err != nil {
		return nil, err
	}

	target := in.TargetAgent
	if target == "" {
		target = "any agent"
	}
	if _, err := e.board.Record(ctx, blackboard.Entry{
		AgentID:   in.SourceAgent,
		EntryType: blackboard.TypeStatus,
		Summary:   fmt.Sprintf("Handoff to %s: %s", target, in.Summary),
		Detail:    fmt.Sprintf("Handoff %s (%s)", rec.ID, handoffs.ResultStatus(rec.Results)),
		Tags:      []string{"handoff"},
		Scope:     in.Scope,
	}); err != nil {
		return nil, err
	}
	return rec, nil
}

// snapshot gathers in-force decisions and warning/finding entries for scope.
func (e *Engine) snapshot(sc string) (handoffs.Snapshot, error) {
	snap := handoffs.Snapshot{
		DecisionIDs: []string{},
		WarningIDs:  []string{},
		FindingIDs:  []string{},
		Summaries:   []string{},
	}

	ds, err := e.decisions.GetByScope(sc)
	if err != nil {
		return snap, err
	}
	for _, d := range ds {
		if len(snap.DecisionIDs) == snapshotLimit {
			break
		}
		if !decisions.InForce(d.Status) {
			continue
		}
		snap.DecisionIDs = append(snap.DecisionIDs, d.ID)
		snap.Summaries = append(snap.Summaries, "Decision: "+d.Summary)
	}

	res, err := e.board.Read(blackboard.ReadOptions{
		EntryTypes: []string{blackboard.TypeWarning, blackboard.TypeFinding},
		Scope:      sc,
		Limit:      1 << 30,
	})
	if err != nil {
		return snap, err
	}
	for i := len(res.Entries) - 1; i >= 0; i-- {
		en := res.Entries[i]
		switch {
		case en.EntryType == blackboard.TypeWarning && len(snap.WarningIDs) < snapshotLimit:
			snap.WarningIDs = append(snap.WarningIDs, en.ID)
			snap.Summaries = append(snap.Summaries, "Warning: "+en.Summary)
		case en.EntryType == blackboard.TypeFinding && len(snap.FindingIDs) < snapshotLimit:
			snap.FindingIDs = append(snap.FindingIDs, en.ID)
			snap.Summaries = append(snap.Summaries, "Finding: "+en.Summary)
		}
	}
	return snap, nil
}

// AcknowledgeHandoff marks a handoff as picked up by agentID.
func (e *Engine) AcknowledgeHandoff(ctx context.Context, id, agentID string) (*handoffs.Record, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, apperr.Invalid("agent_id is required")
	}
	return e.handoffs.Acknowledge(ctx, id, agentID)
}

// ListHandoffs returns handoff index entries, newest first.
func (e *Engine) ListHandoffs(opts handoffs.ListOptions) ([]handoffs.IndexEntry, error) {
	return e.handoffs.List(opts)
}
