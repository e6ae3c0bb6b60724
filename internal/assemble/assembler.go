// Package assemble builds task-specific context packages within a token
// budget, and answers summary and change-feed questions over the stores.
//
// Candidates are scope matches plus relevance-ranked matches from the
// search collaborator. Each is scored on recency, relevance, confidence,
// warning status and (for decisions) graph connectivity, then selected
// greedily into the budget: warnings first, everything else next, and any
// leftover need last.
package assemble

import (
	"context"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HendryAvila/twining/internal/agents"
	"github.com/HendryAvila/twining/internal/blackboard"
	"github.com/HendryAvila/twining/internal/config"
	"github.com/HendryAvila/twining/internal/decisions"
	"github.com/HendryAvila/twining/internal/graph"
	"github.com/HendryAvila/twining/internal/handoffs"
	"github.com/HendryAvila/twining/internal/ids"
	"github.com/HendryAvila/twining/internal/planning"
	"github.com/HendryAvila/twining/internal/scope"
	"github.com/HendryAvila/twining/internal/search"
	"github.com/HendryAvila/twining/internal/tokens"
)

var timeNow = time.Now

const (
	recencyHalfLifeHours = 168.0
	scopeOnlyRelevance   = 0.5
	maxHandoffs          = 5
	planningItemID       = "planning-state"
)

// ─── Output shapes ───────────────────────────────────────────────────────────

// DecisionItem is a selected decision.
type DecisionItem struct {
	ID            string   `json:"id"`
	Summary       string   `json:"summary"`
	Rationale     string   `json:"rationale"`
	Confidence    string   `json:"confidence"`
	AffectedFiles []string `json:"affected_files"`
}

// EntryItem is a selected blackboard entry.
type EntryItem struct {
	ID        string `json:"id"`
	Summary   string `json:"summary"`
	Detail    string `json:"detail,omitempty"`
	Scope     string `json:"scope"`
	Timestamp string `json:"timestamp"`
}

// RelatedEntity is a graph entity near the scope with its 1-hop relations
// rendered as "type: name".
type RelatedEntity struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Relations []string `json:"relations"`
}

// HandoffItem is a recent handoff touching the scope.
type HandoffItem struct {
	ID           string `json:"id"`
	CreatedAt    string `json:"created_at"`
	SourceAgent  string `json:"source_agent"`
	TargetAgent  string `json:"target_agent,omitempty"`
	Summary      string `json:"summary"`
	ResultStatus string `json:"result_status"`
	Acknowledged bool   `json:"acknowledged"`
}

// SuggestedAgent is an agent whose capabilities match words in the task.
type SuggestedAgent struct {
	AgentID             string   `json:"agent_id"`
	Role                string   `json:"role,omitempty"`
	Liveness            string   `json:"liveness"`
	MatchedCapabilities []string `json:"matched_capabilities"`
}

// Context is the assembled package.
type Context struct {
	AssembledAt     string           `json:"assembled_at"`
	Task            string           `json:"task"`
	Scope           string           `json:"scope"`
	TokenEstimate   int              `json:"token_estimate"`
	ActiveDecisions []DecisionItem   `json:"active_decisions"`
	OpenNeeds       []EntryItem      `json:"open_needs"`
	RecentFindings  []EntryItem      `json:"recent_findings"`
	ActiveWarnings  []EntryItem      `json:"active_warnings"`
	RecentQuestions []EntryItem      `json:"recent_questions"`
	RelatedEntities []RelatedEntity  `json:"related_entities"`
	PlanningState   *planning.State  `json:"planning_state,omitempty"`
	RecentHandoffs  []HandoffItem    `json:"recent_handoffs,omitempty"`
	SuggestedAgents []SuggestedAgent `json:"suggested_agents,omitempty"`
}

// Input is the request to Assemble. MaxTokens <= 0 uses the configured default.
type Input struct {
	Task      string
	Scope     string
	MaxTokens int
	AgentID   string
}

// ─── Assembler ───────────────────────────────────────────────────────────────

// Assembler reads every store; it never writes.
type Assembler struct {
	decisions *decisions.Store
	board     *blackboard.Store
	graph     *graph.Engine
	handoffs  *handoffs.Store
	agents    *agents.Store
	planning  *planning.Bridge
	ranker    search.Ranker
	counter   tokens.Counter
	cfg       config.Config
	tracker   *Tracker
}

// New creates an Assembler. graph may be nil.
func New(d *decisions.Store, b *blackboard.Store, g *graph.Engine, cfg config.Config) *Assembler {
	return &Assembler{
		decisions: d,
		board:     b,
		graph:     g,
		ranker:    search.Keyword{},
		counter:   tokens.Heuristic{},
		cfg:       cfg,
		tracker:   NewTracker(),
	}
}

// SetRanker installs the relevance collaborator. Nil restores keyword ranking.
func (a *Assembler) SetRanker(r search.Ranker) {
	if r == nil {
		r = search.Keyword{}
	}
	a.ranker = r
}

// SetCounter installs the token counter. Nil restores the heuristic.
func (a *Assembler) SetCounter(c tokens.Counter) {
	if c == nil {
		c = tokens.Heuristic{}
	}
	a.counter = c
}

// SetHandoffs enables recent_handoffs.
func (a *Assembler) SetHandoffs(h *handoffs.Store) { a.handoffs = h }

// SetAgents enables suggested_agents.
func (a *Assembler) SetAgents(s *agents.Store) { a.agents = s }

// SetPlanning enables planning_state.
func (a *Assembler) SetPlanning(p *planning.Bridge) { a.planning = p }

// Tracker returns the session assembly tracker.
func (a *Assembler) Tracker() *Tracker { return a.tracker }

type candidate struct {
	id        string
	kind      string // "decision" or an entry type
	score     float64
	cost      int
	decision  *decisions.Decision
	entry     *blackboard.Entry
	timestamp string
}

type gathered struct {
	scopeDecisions []decisions.Decision
	allInForce     []decisions.Decision
	scopeEntries   []blackboard.Entry
	allEntries     []blackboard.Entry
	handoffs       []handoffs.IndexEntry
	agents         []agents.Record
	planning       *planning.State
	scopeEntities  []graph.Entity
}

func (a *Assembler) gather(ctx context.Context, sc string) (*gathered, error) {
	g := &gathered{}
	eg, _ := errgroup.WithContext(ctx)

	eg.Go(func() error {
		ds, err := a.decisions.GetByScope(sc)
		if err != nil {
			return err
		}
		g.scopeDecisions = inForce(ds)
		return nil
	})
	eg.Go(func() error {
		ds, err := a.decisions.All()
		if err != nil {
			return err
		}
		g.allInForce = inForce(ds)
		return nil
	})
	eg.Go(func() error {
		res, err := a.board.Read(blackboard.ReadOptions{Scope: sc})
		if err != nil {
			return err
		}
		g.scopeEntries = res.Entries
		return nil
	})
	eg.Go(func() error {
		es, err := a.board.All()
		if err != nil {
			return err
		}
		g.allEntries = es
		return nil
	})
	if a.handoffs != nil {
		eg.Go(func() error {
			hs, err := a.handoffs.List(handoffs.ListOptions{Scope: sc, Limit: maxHandoffs})
			if err != nil {
				log.Printf("WARNING: assemble: list handoffs: %v", err)
				return nil
			}
			g.handoffs = hs
			return nil
		})
	}
	if a.agents != nil {
		eg.Go(func() error {
			rs, err := a.agents.All()
			if err != nil {
				log.Printf("WARNING: assemble: read agents: %v", err)
				return nil
			}
			g.agents = rs
			return nil
		})
	}
	if a.planning != nil {
		eg.Go(func() error {
			g.planning = a.planning.Read()
			return nil
		})
	}
	if a.graph != nil && sc != "" {
		eg.Go(func() error {
			es, err := a.graph.Query(ctx, sc, nil, 10)
			if err != nil {
				log.Printf("WARNING: assemble: graph query: %v", err)
				return nil
			}
			g.scopeEntities = es
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return g, nil
}

func inForce(ds []decisions.Decision) []decisions.Decision {
	out := ds[:0:0]
	for _, d := range ds {
		if decisions.InForce(d.Status) {
			out = append(out, d)
		}
	}
	return out
}

// Assemble builds the context package for a task in a scope.
func (a *Assembler) Assemble(ctx context.Context, in Input) (*Context, error) {
	budget := in.MaxTokens
	if budget <= 0 {
		budget = a.cfg.ContextAssembly.DefaultMaxTokens
	}
	sc := scope.OrProject(in.Scope)
	now := timeNow()

	g, err := a.gather(ctx, scope.Filter(sc))
	if err != nil {
		return nil, err
	}

	cands := a.candidates(ctx, in.Task, g, now)
	selected, used := fill(cands, budget)

	out := &Context{
		AssembledAt:     ids.Format(now),
		Task:            in.Task,
		Scope:           sc,
		TokenEstimate:   used,
		ActiveDecisions: []DecisionItem{},
		OpenNeeds:       []EntryItem{},
		RecentFindings:  []EntryItem{},
		ActiveWarnings:  []EntryItem{},
		RecentQuestions: []EntryItem{},
		PlanningState:   g.planning,
	}
	for _, c := range selected {
		bucket(out, c)
	}

	out.RelatedEntities = a.relatedEntities(ctx, scope.Filter(sc))
	out.RecentHandoffs = handoffItems(g.handoffs)
	out.SuggestedAgents = suggestAgents(in.Task, g.agents, a.cfg.Agents.Liveness, now)

	a.tracker.Record(in.AgentID)
	return out, nil
}

// candidates merges scope and relevance matches and scores them.
func (a *Assembler) candidates(ctx context.Context, task string, g *gathered, now time.Time) []*candidate {
	w := a.cfg.ContextAssembly.PriorityWeights

	decDocs := make([]search.Document, 0, len(g.allInForce))
	decByID := make(map[string]*decisions.Decision, len(g.allInForce))
	for i := range g.allInForce {
		d := &g.allInForce[i]
		decByID[d.ID] = d
		decDocs = append(decDocs, search.Document{ID: d.ID, Kind: "decision", Text: decisions.SearchText(d)})
	}
	decRel := a.rank(ctx, task, decDocs)

	entryDocs := make([]search.Document, 0, len(g.allEntries))
	entryByID := make(map[string]*blackboard.Entry, len(g.allEntries))
	for i := range g.allEntries {
		e := &g.allEntries[i]
		entryByID[e.ID] = e
		entryDocs = append(entryDocs, search.Document{ID: e.ID, Kind: "entry", Text: e.Summary + " " + e.Detail})
	}
	entryRel := a.rank(ctx, task, entryDocs)

	// Union by id: scope matches default to neutral relevance.
	mergedDec := make(map[string]*decisions.Decision)
	for i := range g.scopeDecisions {
		d := &g.scopeDecisions[i]
		mergedDec[d.ID] = d
		if _, ok := decRel[d.ID]; !ok {
			decRel[d.ID] = scopeOnlyRelevance
		}
	}
	for id := range decRel {
		if d, ok := decByID[id]; ok {
			if _, seen := mergedDec[id]; !seen {
				mergedDec[id] = d
			}
		}
	}
	mergedEntries := make(map[string]*blackboard.Entry)
	for i := range g.scopeEntries {
		e := &g.scopeEntries[i]
		mergedEntries[e.ID] = e
		if _, ok := entryRel[e.ID]; !ok {
			entryRel[e.ID] = scopeOnlyRelevance
		}
	}
	for id := range entryRel {
		if e, ok := entryByID[id]; ok {
			if _, seen := mergedEntries[id]; !seen {
				mergedEntries[id] = e
			}
		}
	}

	var conn map[string]float64
	if w.GraphConnectivity > 0 && a.graph != nil && len(g.scopeEntities) > 0 {
		conn = a.connectivity(ctx, mergedDec, g.scopeEntities)
	}

	out := make([]*candidate, 0, len(mergedDec)+len(mergedEntries)+1)
	for id, d := range mergedDec {
		score := recency(d.Timestamp, now)*w.Recency +
			decRel[id]*w.Relevance +
			confidence(d.Confidence)*w.DecisionConfidence
		if conn != nil {
			score += conn[id] * w.GraphConnectivity
		}
		text := d.Summary + " " + d.Rationale + " " + d.Confidence + " " + strings.Join(d.AffectedFiles, ", ")
		out = append(out, &candidate{
			id: id, kind: blackboard.TypeDecision, score: score,
			cost: a.counter.Count(text), decision: d, timestamp: d.Timestamp,
		})
	}
	for id, e := range mergedEntries {
		out = append(out, a.entryCandidate(e, entryRel[id], now))
	}
	if g.planning != nil {
		synthetic := &blackboard.Entry{
			ID:        planningItemID,
			Timestamp: ids.Format(now),
			EntryType: blackboard.TypeFinding,
			Summary:   g.planning.Summary(),
			Scope:     scope.Project,
		}
		out = append(out, a.entryCandidate(synthetic, scopeOnlyRelevance, now))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].id > out[j].id
	})
	return out
}

func (a *Assembler) entryCandidate(e *blackboard.Entry, relevance float64, now time.Time) *candidate {
	w := a.cfg.ContextAssembly.PriorityWeights
	boost := 0.0
	if e.EntryType == blackboard.TypeWarning {
		boost = 1.0
	}
	score := recency(e.Timestamp, now)*w.Recency +
		relevance*w.Relevance +
		0.5*w.DecisionConfidence +
		boost*w.WarningBoost
	return &candidate{
		id: e.ID, kind: e.EntryType, score: score,
		cost: a.counter.Count(e.Summary + " " + e.Detail), entry: e, timestamp: e.Timestamp,
	}
}

// rank asks the ranker for relevance scores, falling back to keywords.
func (a *Assembler) rank(ctx context.Context, task string, docs []search.Document) map[string]float64 {
	out := make(map[string]float64)
	if strings.TrimSpace(task) == "" || len(docs) == 0 {
		return out
	}
	res, err := a.ranker.Rank(ctx, task, docs)
	if err != nil {
		log.Printf("WARNING: assemble: ranker failed, using keywords: %v", err)
		res = search.KeywordRank(task, docs, 0)
	}
	for _, r := range res {
		s := r.Score
		if s > 1 {
			s = 1
		}
		out[r.ID] = s
	}
	return out
}

// connectivity scores each decision by how many 1-hop neighbors of its
// file/symbol entities fall inside the scope entity set.
func (a *Assembler) connectivity(ctx context.Context, decs map[string]*decisions.Decision, scopeEntities []graph.Entity) map[string]float64 {
	inScope := make(map[string]bool, len(scopeEntities))
	for _, e := range scopeEntities {
		inScope[e.ID] = true
	}
	all, err := a.graph.Store().Entities()
	if err != nil {
		log.Printf("WARNING: assemble: graph entities: %v", err)
		return nil
	}
	byName := make(map[string][]string)
	for _, e := range all {
		byName[e.Name] = append(byName[e.Name], e.ID)
	}

	out := make(map[string]float64, len(decs))
	for id, d := range decs {
		refs := append(append([]string{}, d.AffectedFiles...), d.AffectedSymbols...)
		count := 0
		seen := make(map[string]bool)
		for _, ref := range refs {
			for _, eid := range byName[ref] {
				res, err := a.graph.Neighbors(ctx, eid, 1, nil)
				if err != nil {
					continue
				}
				for _, n := range res.Neighbors {
					if inScope[n.Entity.ID] && !seen[n.Entity.ID] {
						seen[n.Entity.ID] = true
						count++
					}
				}
			}
		}
		out[id] = math.Min(1, math.Log2(float64(count)+1)/3)
	}
	return out
}

// fill selects candidates into the budget. cands must already be sorted.
// Warnings go first against the whole budget, then everything else, then
// any need still missing.
func fill(cands []*candidate, budget int) ([]*candidate, int) {
	used := 0
	picked := make(map[string]bool, len(cands))
	take := func(c *candidate) {
		if !picked[c.id] && used+c.cost <= budget {
			picked[c.id] = true
			used += c.cost
		}
	}
	for _, c := range cands {
		if c.kind == blackboard.TypeWarning {
			take(c)
		}
	}
	for _, c := range cands {
		if c.kind != blackboard.TypeWarning {
			take(c)
		}
	}
	for _, c := range cands {
		if c.kind == blackboard.TypeNeed {
			take(c)
		}
	}

	out := make([]*candidate, 0, len(picked))
	for _, c := range cands {
		if picked[c.id] {
			out = append(out, c)
		}
	}
	return out, used
}

func bucket(out *Context, c *candidate) {
	if c.decision != nil {
		d := c.decision
		files := d.AffectedFiles
		if files == nil {
			files = []string{}
		}
		out.ActiveDecisions = append(out.ActiveDecisions, DecisionItem{
			ID: d.ID, Summary: d.Summary, Rationale: d.Rationale, Confidence: d.Confidence, AffectedFiles: files,
		})
		return
	}
	e := c.entry
	item := EntryItem{ID: e.ID, Summary: e.Summary, Scope: e.Scope, Timestamp: e.Timestamp}
	switch e.EntryType {
	case blackboard.TypeNeed:
		out.OpenNeeds = append(out.OpenNeeds, item)
	case blackboard.TypeQuestion:
		out.RecentQuestions = append(out.RecentQuestions, item)
	case blackboard.TypeWarning:
		item.Detail = e.Detail
		out.ActiveWarnings = append(out.ActiveWarnings, item)
	default:
		item.Detail = e.Detail
		out.RecentFindings = append(out.RecentFindings, item)
	}
}

func (a *Assembler) relatedEntities(ctx context.Context, sc string) []RelatedEntity {
	out := []RelatedEntity{}
	if a.graph == nil || sc == "" {
		return out
	}
	es, err := a.graph.Query(ctx, sc, nil, 5)
	if err != nil {
		log.Printf("WARNING: assemble: related entities: %v", err)
		return out
	}
	for _, e := range es {
		rel := RelatedEntity{Name: e.Name, Type: e.Type, Relations: []string{}}
		res, err := a.graph.Neighbors(ctx, e.ID, 1, nil)
		if err == nil {
			for _, n := range res.Neighbors {
				rel.Relations = append(rel.Relations, n.Relation.Type+": "+n.Entity.Name)
			}
		}
		out = append(out, rel)
	}
	return out
}

func handoffItems(hs []handoffs.IndexEntry) []HandoffItem {
	if len(hs) == 0 {
		return nil
	}
	out := make([]HandoffItem, 0, len(hs))
	for _, h := range hs {
		out = append(out, HandoffItem{
			ID:           h.ID,
			CreatedAt:    h.CreatedAt,
			SourceAgent:  h.SourceAgent,
			TargetAgent:  h.TargetAgent,
			Summary:      h.Summary,
			ResultStatus: h.ResultStatus,
			Acknowledged: h.Acknowledged,
		})
	}
	return out
}

// suggestAgents returns agents that are not gone and hold a capability
// equal to one of the task's words.
func suggestAgents(task string, rs []agents.Record, th config.LivenessConfig, now time.Time) []SuggestedAgent {
	if len(rs) == 0 {
		return nil
	}
	words := make(map[string]bool)
	for _, w := range scope.Words(task) {
		words[w] = true
	}
	var out []SuggestedAgent
	for _, r := range rs {
		var matched []string
		for _, c := range r.Capabilities {
			if words[c] {
				matched = append(matched, c)
			}
		}
		if len(matched) == 0 {
			continue
		}
		state := agents.Liveness(r.LastActive, now, th)
		if state == agents.Gone {
			continue
		}
		out = append(out, SuggestedAgent{AgentID: r.AgentID, Role: r.Role, Liveness: state, MatchedCapabilities: matched})
	}
	return out
}

func recency(ts string, now time.Time) float64 {
	t, err := ids.Parse(ts)
	if err != nil {
		return 0
	}
	hours := now.Sub(t).Hours()
	if hours < 0 {
		hours = 0
	}
	return math.Exp(-hours / recencyHalfLifeHours)
}

func confidence(c string) float64 {
	switch c {
	case decisions.ConfidenceHigh:
		return 1.0
	case decisions.ConfidenceMedium:
		return 0.6
	case decisions.ConfidenceLow:
		return 0.3
	}
	return 0.5
}
