package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/twining/internal/agents"
	"github.com/HendryAvila/twining/internal/apperr"
	"github.com/HendryAvila/twining/internal/blackboard"
	"github.com/HendryAvila/twining/internal/config"
	"github.com/HendryAvila/twining/internal/decisions"
	"github.com/HendryAvila/twining/internal/handoffs"
	"github.com/HendryAvila/twining/internal/ids"
)

type fixture struct {
	engine    *Engine
	board     *blackboard.Engine
	decisions *decisions.Engine
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	board := blackboard.NewEngine(blackboard.NewStore(dir))
	dstore := decisions.NewStore(dir)
	return fixture{
		engine:    NewEngine(agents.NewStore(dir), handoffs.NewStore(dir), board, dstore, config.Default()),
		board:     board,
		decisions: decisions.NewEngine(dstore, board),
	}
}

func freezeTime(t *testing.T, now time.Time) {
	t.Helper()
	prev := timeNow
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = prev })
}

// ─── ScoreAgent ──────────────────────────────────────────────────────────────

func TestScoreAgent(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	th := config.Default().Agents.Liveness
	agent := agents.Record{
		AgentID:      "alice",
		Capabilities: []string{"code", "review"},
		LastActive:   ids.Format(now.Add(-time.Minute)),
	}

	s := ScoreAgent(agent, []string{"  CODE ", "test"}, th, now)
	assert.Equal(t, agents.Active, s.Liveness)
	assert.InDelta(t, 0.5, s.CapabilityOverlap, 1e-9)
	assert.InDelta(t, 0.7*0.5+0.3*1.0, s.TotalScore, 1e-9)
	assert.Equal(t, []string{"code"}, s.MatchedCapabilities)

	none := ScoreAgent(agent, nil, th, now)
	assert.Equal(t, 0.0, none.CapabilityOverlap, "no requirements means zero overlap")
	assert.InDelta(t, 0.3, none.TotalScore, 1e-9)

	stale := agent
	stale.LastActive = ids.Format(now.Add(-10 * time.Minute))
	assert.Equal(t, 0.5, ScoreAgent(stale, nil, th, now).LivenessScore)
	stale.LastActive = ids.Format(now.Add(-2 * time.Hour))
	assert.Equal(t, 0.1, ScoreAgent(stale, nil, th, now).LivenessScore)
}

// ─── Discover ────────────────────────────────────────────────────────────────

func TestDiscover_OrdersFullPartialNone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, reg := range []agents.Registration{
		{AgentID: "none", Capabilities: []string{"docs"}},
		{AgentID: "partial", Capabilities: []string{"code"}},
		{AgentID: "full", Capabilities: []string{"CODE", "test"}},
	} {
		_, err := f.engine.Register(ctx, reg)
		require.NoError(t, err)
	}

	res, err := f.engine.Discover(ctx, DiscoverInput{RequiredCapabilities: []string{"code", "test"}})
	require.NoError(t, err)
	require.Len(t, res.Agents, 3)
	assert.Equal(t, 3, res.TotalRegistered)
	assert.Equal(t, "full", res.Agents[0].AgentID)
	assert.Equal(t, "partial", res.Agents[1].AgentID)
	assert.Equal(t, "none", res.Agents[2].AgentID)
	assert.Greater(t, res.Agents[0].TotalScore, res.Agents[1].TotalScore)
	assert.Greater(t, res.Agents[1].TotalScore, res.Agents[2].TotalScore)
}

func TestDiscover_FiltersKeepTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.engine.Register(ctx, agents.Registration{AgentID: "a", Capabilities: []string{"code"}})
	_, _ = f.engine.Register(ctx, agents.Registration{AgentID: "b"})

	// Two hours later both agents are gone.
	freezeTime(t, time.Now().Add(2*time.Hour))
	no := false
	res, err := f.engine.Discover(ctx, DiscoverInput{RequiredCapabilities: []string{"code"}, IncludeGone: &no})
	require.NoError(t, err)
	assert.Empty(t, res.Agents)
	assert.Equal(t, 2, res.TotalRegistered)

	res, err = f.engine.Discover(ctx, DiscoverInput{RequiredCapabilities: []string{"code"}, MinScore: 0.5})
	require.NoError(t, err)
	require.Len(t, res.Agents, 1)
	assert.Equal(t, "a", res.Agents[0].AgentID)
}

func TestRegister_RequiresID(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Register(context.Background(), agents.Registration{AgentID: "  "})
	assert.True(t, apperr.Is(err, apperr.CodeInvalidInput))
}

// ─── Delegation ──────────────────────────────────────────────────────────────

func TestPostDelegation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.engine.Register(ctx, agents.Registration{AgentID: "tester", Capabilities: []string{"test"}})

	res, err := f.engine.PostDelegation(ctx, DelegationInput{
		Summary:              "write integration tests",
		RequiredCapabilities: []string{" Test "},
		Urgency:              UrgencyHigh,
		Tags:                 []string{"qa"},
	})
	require.NoError(t, err)

	entry, err := f.board.Store().Get(res.EntryID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, blackboard.TypeNeed, entry.EntryType)
	assert.Equal(t, []string{"delegation", "high", "qa"}, entry.Tags)
	require.NotNil(t, entry.Delegation)
	assert.Equal(t, []string{"test"}, entry.Delegation.RequiredCapabilities)
	assert.Equal(t, res.ExpiresAt, entry.Delegation.ExpiresAt)

	posted, _ := ids.Parse(res.Timestamp)
	expires, _ := ids.Parse(res.ExpiresAt)
	assert.InDelta(t, (5 * time.Minute).Seconds(), expires.Sub(posted).Seconds(), 1.0)

	require.Len(t, res.SuggestedAgents, 1)
	assert.Equal(t, "tester", res.SuggestedAgents[0].AgentID)
}

func TestPostDelegation_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.PostDelegation(context.Background(), DelegationInput{Summary: "x", Urgency: "asap"})
	assert.True(t, apperr.Is(err, apperr.CodeInvalidInput))
	_, err = f.engine.PostDelegation(context.Background(), DelegationInput{})
	assert.True(t, apperr.Is(err, apperr.CodeInvalidInput))
}

func TestTimeout(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, 5*time.Minute, f.engine.Timeout(UrgencyHigh, 0))
	assert.Equal(t, 30*time.Minute, f.engine.Timeout(UrgencyNormal, 0))
	assert.Equal(t, 4*time.Hour, f.engine.Timeout(UrgencyLow, 0))
	assert.Equal(t, time.Second, f.engine.Timeout(UrgencyLow, 1000))
}

func TestIsExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := &blackboard.Delegation{ExpiresAt: ids.Format(now)}
	assert.True(t, IsExpired(d, now))
	assert.False(t, IsExpired(d, now.Add(-time.Second)))
	assert.False(t, IsExpired(nil, now))
}

// ─── Handoffs ────────────────────────────────────────────────────────────────

func TestCreateHandoff_AutoSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dec, err := f.decisions.Decide(ctx, decisions.DecideInput{
		Domain: "arch", Scope: "src/auth/", Summary: "Use JWT", Context: "c", Rationale: "r",
	})
	require.NoError(t, err)
	_, err = f.board.Post(ctx, blackboard.PostInput{EntryType: blackboard.TypeWarning, Summary: "token leak", Scope: "src/auth/jwt.go"})
	require.NoError(t, err)
	_, err = f.board.Post(ctx, blackboard.PostInput{EntryType: blackboard.TypeFinding, Summary: "db slow", Scope: "src/db/"})
	require.NoError(t, err)

	rec, err := f.engine.CreateHandoff(ctx, HandoffInput{
		SourceAgent: "alice",
		TargetAgent: "bob",
		Scope:       "src/auth/",
		Summary:     "auth half done",
		Results:     []handoffs.Result{{Description: "jwt", Status: handoffs.StatusPartial}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{dec.ID}, rec.ContextSnapshot.DecisionIDs)
	assert.Len(t, rec.ContextSnapshot.WarningIDs, 1)
	assert.Empty(t, rec.ContextSnapshot.FindingIDs)
	assert.Contains(t, rec.ContextSnapshot.Summaries, "Warning: token leak")

	statuses, _ := f.board.Recent(5, []string{blackboard.TypeStatus})
	require.Len(t, statuses, 1)
	assert.Equal(t, "Handoff to bob: auth half done", statuses[0].Summary)
	assert.Equal(t, []string{"handoff"}, statuses[0].Tags)
}

func TestCreateHandoff_ManualAndDisabledSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.board.Post(ctx, blackboard.PostInput{EntryType: blackboard.TypeWarning, Summary: "w"})

	no := false
	rec, err := f.engine.CreateHandoff(ctx, HandoffInput{SourceAgent: "a", Summary: "s", AutoSnapshot: &no})
	require.NoError(t, err)
	assert.Empty(t, rec.ContextSnapshot.WarningIDs)

	manual := &handoffs.Snapshot{DecisionIDs: []string{"d1"}}
	rec, err = f.engine.CreateHandoff(ctx, HandoffInput{SourceAgent: "a", Summary: "s", ContextSnapshot: manual})
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, rec.ContextSnapshot.DecisionIDs)
}

func TestCreateHandoff_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.CreateHandoff(ctx, HandoffInput{Summary: "s"})
	assert.True(t, apperr.Is(err, apperr.CodeInvalidInput))
	_, err = f.engine.CreateHandoff(ctx, HandoffInput{SourceAgent: "a", Summary: "s", Results: []handoffs.Result{{Description: "d", Status: "done"}}})
	assert.True(t, apperr.Is(err, apperr.CodeInvalidInput))
}

func TestAcknowledgeHandoff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, err := f.engine.CreateHandoff(ctx, HandoffInput{SourceAgent: "a", Summary: "s"})
	require.NoError(t, err)

	got, err := f.engine.AcknowledgeHandoff(ctx, rec.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", got.AcknowledgedBy)

	list, err := f.engine.ListHandoffs(handoffs.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Acknowledged)
	assert.Equal(t, handoffs.StatusCompleted, list[0].ResultStatus)
}
