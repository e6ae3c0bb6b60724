package assemble

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/twining/internal/agents"
	"github.com/HendryAvila/twining/internal/apperr"
	"github.com/HendryAvila/twining/internal/blackboard"
	"github.com/HendryAvila/twining/internal/config"
	"github.com/HendryAvila/twining/internal/decisions"
	"github.com/HendryAvila/twining/internal/graph"
	"github.com/HendryAvila/twining/internal/handoffs"
	"github.com/HendryAvila/twining/internal/ids"
	"github.com/HendryAvila/twining/internal/planning"
)

type fixture struct {
	dir       string
	asm       *Assembler
	board     *blackboard.Engine
	decisions *decisions.Engine
	graph     *graph.Engine
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	board := blackboard.NewEngine(blackboard.NewStore(dir))
	dstore := decisions.NewStore(dir)
	g := graph.NewEngine(graph.NewStore(dir))
	return fixture{
		dir:       dir,
		asm:       New(dstore, board.Store(), g, config.Default()),
		board:     board,
		decisions: decisions.NewEngine(dstore, board),
		graph:     g,
	}
}

func (f fixture) post(t *testing.T, typ, summary, detail, sc string) string {
	t.Helper()
	res, err := f.board.Post(context.Background(), blackboard.PostInput{
		EntryType: typ, Summary: summary, Detail: detail, Scope: sc,
	})
	require.NoError(t, err)
	return res.ID
}

func entryIDs(items []EntryItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

// ─── Assemble ────────────────────────────────────────────────────────────────

func TestAssemble_WarningWinsTightBudget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Costs: warning 19 tokens, finding 20 tokens; both cannot fit in 30.
	warn := f.post(t, blackboard.TypeWarning, "Token refresh race in auth",
		"Concurrent logins can double-refresh the token", "src/auth/")
	f.post(t, blackboard.TypeFinding, "Token refresh race in auth seen",
		"Concurrent logins can double-refresh the token", "src/auth/")

	out, err := f.asm.Assemble(ctx, Input{Task: "fix token refresh", Scope: "src/auth/", MaxTokens: 30})
	require.NoError(t, err)

	assert.Equal(t, []string{warn}, entryIDs(out.ActiveWarnings))
	assert.Empty(t, out.RecentFindings)
	assert.LessOrEqual(t, out.TokenEstimate, 30)
	assert.Equal(t, 19, out.TokenEstimate)
	assert.Equal(t, "src/auth/", out.Scope)
	assert.NotEmpty(t, out.ActiveWarnings[0].Detail)
}

func TestAssemble_BucketsAndDecisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dec, err := f.decisions.Decide(ctx, decisions.DecideInput{
		Domain: "arch", Scope: "src/auth/", Summary: "Use JWT for sessions",
		Context: "stateless", Rationale: "scales horizontally", AffectedFiles: []string{"src/auth/jwt.go"},
	})
	require.NoError(t, err)
	need := f.post(t, blackboard.TypeNeed, "need a refresh endpoint", "", "src/auth/")
	q := f.post(t, blackboard.TypeQuestion, "who owns sessions?", "", "src/auth/")
	f.post(t, blackboard.TypeFinding, "unrelated db note", "", "src/db/")

	out, err := f.asm.Assemble(ctx, Input{Task: "sessions", Scope: "src/auth/", MaxTokens: 4000})
	require.NoError(t, err)

	require.Len(t, out.ActiveDecisions, 1)
	assert.Equal(t, dec.ID, out.ActiveDecisions[0].ID)
	assert.Equal(t, []string{"src/auth/jwt.go"}, out.ActiveDecisions[0].AffectedFiles)
	assert.Equal(t, decisions.ConfidenceMedium, out.ActiveDecisions[0].Confidence)
	assert.Equal(t, []string{need}, entryIDs(out.OpenNeeds))
	assert.Equal(t, []string{q}, entryIDs(out.RecentQuestions))
	assert.Empty(t, out.OpenNeeds[0].Detail)
	for _, fnd := range out.RecentFindings {
		assert.NotEqual(t, "unrelated db note", fnd.Summary)
	}
	assert.NotEmpty(t, out.AssembledAt)
}

func TestAssemble_ExcludesTerminalDecisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old, err := f.decisions.Decide(ctx, decisions.DecideInput{
		Domain: "arch", Scope: "src/", Summary: "Use sessions", Context: "c", Rationale: "r",
	})
	require.NoError(t, err)
	_, err = f.decisions.Override(ctx, decisions.OverrideInput{DecisionID: old.ID, Reason: "changed mind"})
	require.NoError(t, err)

	out, err := f.asm.Assemble(ctx, Input{Task: "sessions", Scope: "src/"})
	require.NoError(t, err)
	assert.Empty(t, out.ActiveDecisions)
}

func TestAssemble_Deterministic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		f.post(t, blackboard.TypeFinding, "same summary", "", "project")
	}
	freezeTime(t, time.Now().Add(time.Hour))

	a, err := f.asm.Assemble(ctx, Input{Task: "summary", MaxTokens: 12})
	require.NoError(t, err)
	b, err := f.asm.Assemble(ctx, Input{Task: "summary", MaxTokens: 12})
	require.NoError(t, err)
	assert.Equal(t, entryIDs(a.RecentFindings), entryIDs(b.RecentFindings))
	assert.LessOrEqual(t, a.TokenEstimate, 12)
}

func TestAssemble_RecordsTracker(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.asm.Tracker().HasAssembled("alice"))
	_, err := f.asm.Assemble(context.Background(), Input{Task: "x", AgentID: "alice"})
	require.NoError(t, err)
	assert.True(t, f.asm.Tracker().HasAssembled("alice"))
	assert.False(t, f.asm.Tracker().HasAssembled("bob"))
}

func TestAssemble_RelatedEntities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.graph.AddEntity(ctx, "src/auth/jwt.go", "file", nil)
	require.NoError(t, err)
	_, err = f.graph.AddEntity(ctx, "signToken", "function", nil)
	require.NoError(t, err)
	_, err = f.graph.AddRelation(ctx, "src/auth/jwt.go", "signToken", "contains", nil)
	require.NoError(t, err)

	out, err := f.asm.Assemble(ctx, Input{Task: "jwt", Scope: "src/auth/"})
	require.NoError(t, err)
	require.Len(t, out.RelatedEntities, 1)
	assert.Equal(t, "src/auth/jwt.go", out.RelatedEntities[0].Name)
	assert.Equal(t, []string{"contains: signToken"}, out.RelatedEntities[0].Relations)
}

func TestAssemble_HandoffsAgentsPlanning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hs := handoffs.NewStore(f.dir)
	_, err := hs.Create(ctx, handoffs.Record{SourceAgent: "alice", Scope: "src/auth/", Summary: "auth half done"})
	require.NoError(t, err)
	_, err = hs.Create(ctx, handoffs.Record{SourceAgent: "alice", Scope: "src/db/", Summary: "db"})
	require.NoError(t, err)
	f.asm.SetHandoffs(hs)

	as := agents.NewStore(f.dir)
	_, err = as.Upsert(ctx, agents.Registration{AgentID: "tester", Capabilities: []string{"testing"}})
	require.NoError(t, err)
	_, err = as.Upsert(ctx, agents.Registration{AgentID: "writer", Capabilities: []string{"docs"}})
	require.NoError(t, err)
	f.asm.SetAgents(as)

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".planning"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".planning", "STATE.md"),
		[]byte("Phase: 2 of 4\nProgress: 50%\n"), 0o644))
	f.asm.SetPlanning(planning.NewBridge(root))

	out, err := f.asm.Assemble(ctx, Input{Task: "add testing for auth", Scope: "src/auth/"})
	require.NoError(t, err)

	require.Len(t, out.RecentHandoffs, 1)
	assert.Equal(t, "auth half done", out.RecentHandoffs[0].Summary)

	require.Len(t, out.SuggestedAgents, 1)
	assert.Equal(t, "tester", out.SuggestedAgents[0].AgentID)
	assert.Equal(t, []string{"testing"}, out.SuggestedAgents[0].MatchedCapabilities)

	require.NotNil(t, out.PlanningState)
	assert.Equal(t, "2 of 4", out.PlanningState.CurrentPhase)
	assert.Contains(t, entryIDs(out.RecentFindings), planningItemID)
}

// ─── Budget fill ─────────────────────────────────────────────────────────────

func TestFill(t *testing.T) {
	cands := []*candidate{
		{id: "f1", kind: blackboard.TypeFinding, score: 0.9, cost: 6},
		{id: "w1", kind: blackboard.TypeWarning, score: 0.5, cost: 5},
		{id: "n1", kind: blackboard.TypeNeed, score: 0.4, cost: 4},
		{id: "f2", kind: blackboard.TypeFinding, score: 0.3, cost: 1},
	}
	got, used := fill(cands, 10)
	var picked []string
	for _, c := range got {
		picked = append(picked, c.id)
	}
	// w1 first (5), f1 no longer fits (11), n1 fits (9), f2 fits (10).
	assert.Equal(t, []string{"w1", "n1", "f2"}, picked)
	assert.Equal(t, 10, used)

	got, used = fill(cands, 0)
	assert.Empty(t, got)
	assert.Zero(t, used)
}

func TestRecencyAndConfidence(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.InDelta(t, 1.0, recency(ids.Format(now), now), 1e-9)
	assert.InDelta(t, 0.3679, recency(ids.Format(now.Add(-168*time.Hour)), now), 1e-3)
	assert.Zero(t, recency("garbage", now))

	assert.Equal(t, 1.0, confidence("high"))
	assert.Equal(t, 0.6, confidence("medium"))
	assert.Equal(t, 0.3, confidence("low"))
}

// ─── Summarize / WhatChanged ─────────────────────────────────────────────────

func TestSummarize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.decisions.Decide(ctx, decisions.DecideInput{
		Domain: "arch", Scope: "src/", Summary: "Use Go", Context: "c", Rationale: "r",
	})
	require.NoError(t, err)
	f.post(t, blackboard.TypeNeed, "n", "", "src/api/")
	f.post(t, blackboard.TypeWarning, "w", "", "src/")
	q := f.post(t, blackboard.TypeQuestion, "q1", "", "src/")
	f.post(t, blackboard.TypeQuestion, "q2", "", "src/")
	_, err = f.board.Post(ctx, blackboard.PostInput{EntryType: blackboard.TypeAnswer, Summary: "a", Scope: "src/", RelatesTo: []string{q}})
	require.NoError(t, err)

	s, err := f.asm.Summarize(ctx, "src/")
	require.NoError(t, err)
	assert.Equal(t, 1, s.ActiveDecisions)
	assert.Equal(t, 0, s.ProvisionalDecisions)
	assert.Equal(t, 1, s.OpenNeeds)
	assert.Equal(t, 1, s.ActiveWarnings)
	assert.Equal(t, 1, s.UnansweredQuestions)
	// Two questions and an answer are not counted as findings or warnings.
	assert.Equal(t, "In the last 24 hours: 1 decision made, 0 findings posted, 1 warning raised.", s.RecentActivitySummary)
	assert.Empty(t, s.CurrentPhase)
}

func TestSummarize_RecentActivityCountsByType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, summary := range []string{"Use Go", "Use JSONL"} {
		_, err := f.decisions.Decide(ctx, decisions.DecideInput{
			Domain: "arch", Scope: "src/" + summary, Summary: summary, Context: "c", Rationale: "r",
		})
		require.NoError(t, err)
	}
	f.post(t, blackboard.TypeFinding, "f1", "", "src/")
	f.post(t, blackboard.TypeFinding, "f2", "", "src/")
	f.post(t, blackboard.TypeFinding, "f3", "", "src/")

	s, err := f.asm.Summarize(ctx, "project")
	require.NoError(t, err)
	assert.Equal(t, "In the last 24 hours: 2 decisions made, 3 findings posted, 0 warnings raised.", s.RecentActivitySummary)
}

func TestWhatChanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before := ids.Format(time.Now().Add(-time.Minute))
	f.post(t, blackboard.TypeFinding, "found it", "", "src/")
	dec, err := f.decisions.Decide(ctx, decisions.DecideInput{
		Domain: "arch", Scope: "src/", Summary: "Use Go", Context: "c", Rationale: "r",
	})
	require.NoError(t, err)

	ch, err := f.asm.WhatChanged(ctx, before, "")
	require.NoError(t, err)
	require.Len(t, ch.NewDecisions, 1)
	assert.Equal(t, dec.ID, ch.NewDecisions[0].ID)
	// The finding plus the decision's cross-post.
	assert.Len(t, ch.NewEntries, 2)
	assert.Empty(t, ch.OverriddenDecisions)

	later, err := f.asm.WhatChanged(ctx, ids.Format(time.Now().Add(time.Hour)), "")
	require.NoError(t, err)
	assert.Empty(t, later.NewEntries)
	assert.Empty(t, later.NewDecisions)
}

func TestWhatChanged_OverrideReasonDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before := ids.Format(time.Now().Add(-time.Minute))
	dec, err := f.decisions.Decide(ctx, decisions.DecideInput{
		Domain: "arch", Scope: "src/", Summary: "Use Go", Context: "c", Rationale: "r",
	})
	require.NoError(t, err)
	// Written without a reason, as another process might.
	_, err = f.decisions.Store().UpdateStatus(ctx, dec.ID, decisions.StatusOverridden, nil)
	require.NoError(t, err)

	ch, err := f.asm.WhatChanged(ctx, before, "")
	require.NoError(t, err)
	require.Len(t, ch.OverriddenDecisions, 1)
	assert.Equal(t, dec.ID, ch.OverriddenDecisions[0].ID)
	assert.Equal(t, "No reason provided", ch.OverriddenDecisions[0].Reason)
}

func TestWhatChanged_InvalidSince(t *testing.T) {
	f := newFixture(t)
	_, err := f.asm.WhatChanged(context.Background(), "yesterday", "")
	assert.True(t, apperr.Is(err, apperr.CodeInvalidInput))
}

func freezeTime(t *testing.T, now time.Time) {
	t.Helper()
	prev := timeNow
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = prev })
}
