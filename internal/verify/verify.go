// Package verify grades how rigorously work in a scope was done: are the
// decisions covered by tests, were warnings acted on, did agents assemble
// context before deciding.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/HendryAvila/twining/internal/apperr"
	"github.com/HendryAvila/twining/internal/blackboard"
	"github.com/HendryAvila/twining/internal/decisions"
	"github.com/HendryAvila/twining/internal/graph"
	"github.com/HendryAvila/twining/internal/ids"
	"github.com/HendryAvila/twining/internal/scope"
)

var timeNow = time.Now

// Check names, in report order.
const (
	CheckTestCoverage = "test_coverage"
	CheckWarnings     = "warnings"
	CheckAssembly     = "assembly"
	CheckDrift        = "drift"
	CheckConstraints  = "constraints"
)

// AllChecks lists every check in report order.
var AllChecks = []string{CheckTestCoverage, CheckWarnings, CheckAssembly, CheckDrift, CheckConstraints}

// Check outcomes.
const (
	Pass = "pass"
	Warn = "warn"
	Fail = "fail"
	Skip = "skip"
)

// TestCoverageCheck reports tested_by coverage of in-force decisions.
type TestCoverageCheck struct {
	Status                string                  `json:"status"`
	DecisionsInScope      int                     `json:"decisions_in_scope"`
	DecisionsWithTestedBy int                     `json:"decisions_with_tested_by"`
	Uncovered             []graph.CoverageSubject `json:"uncovered"`
}

// IgnoredWarning is a warning nothing responded to.
type IgnoredWarning struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
}

// WarningsCheck reports how warnings in scope were handled.
type WarningsCheck struct {
	Status          string           `json:"status"`
	WarningsInScope int              `json:"warnings_in_scope"`
	Acknowledged    int              `json:"acknowledged"`
	Resolved        int              `json:"resolved"`
	SilentlyIgnored int              `json:"silently_ignored"`
	IgnoredDetails  []IgnoredWarning `json:"ignored_details"`
}

// BlindDecision is a decision made without assembling context first.
type BlindDecision struct {
	DecisionID string `json:"decision_id"`
	Summary    string `json:"summary"`
	AgentID    string `json:"agent_id"`
}

// AssemblyCheck reports whether decisions were made after assembling context.
type AssemblyCheck struct {
	Status           string          `json:"status"`
	DecisionsByAgent int             `json:"decisions_by_agent"`
	AssembledBefore  int             `json:"assembled_before"`
	BlindDecisions   []BlindDecision `json:"blind_decisions"`
}

// SkippedCheck is a check this engine does not run.
type SkippedCheck struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// Checks holds the checks that ran.
type Checks struct {
	TestCoverage *TestCoverageCheck `json:"test_coverage,omitempty"`
	Warnings     *WarningsCheck     `json:"warnings,omitempty"`
	Assembly     *AssemblyCheck     `json:"assembly,omitempty"`
	Drift        *SkippedCheck      `json:"drift,omitempty"`
	Constraints  *SkippedCheck      `json:"constraints,omitempty"`
}

// Input selects the scope and checks. Empty Checks runs all of them.
type Input struct {
	Scope   string   `json:"scope"`
	Checks  []string `json:"checks,omitempty"`
	AgentID string   `json:"agent_id,omitempty"`
}

// Result is the verification report.
type Result struct {
	Scope      string `json:"scope"`
	VerifiedAt string `json:"verified_at"`
	Checks     Checks `json:"checks"`
	Summary    string `json:"summary"`
}

// Engine runs verification checks.
type Engine struct {
	decisions *decisions.Store
	board     *blackboard.Engine
	graph     *graph.Engine
}

// NewEngine creates an Engine. graph may be nil, which fails coverage soft.
func NewEngine(d *decisions.Store, board *blackboard.Engine, g *graph.Engine) *Engine {
	return &Engine{decisions: d, board: board, graph: g}
}

// Verify runs the requested checks and posts the outcome as a finding.
func (e *Engine) Verify(ctx context.Context, in Input) (*Result, error) {
	if strings.TrimSpace(in.Scope) == "" {
		return nil, apperr.Invalid("scope is required")
	}
	run := make(map[string]bool)
	for _, c := range in.Checks {
		run[c] = true
	}
	if len(run) == 0 {
		for _, c := range AllChecks {
			run[c] = true
		}
	}

	filter := scope.Filter(in.Scope)
	ds, err := e.decisions.GetByScope(filter)
	if err != nil {
		return nil, err
	}
	var inForce []decisions.Decision
	for _, d := range ds {
		if decisions.InForce(d.Status) {
			inForce = append(inForce, d)
		}
	}

	res := &Result{Scope: in.Scope, VerifiedAt: ids.Format(timeNow())}
	if run[CheckTestCoverage] {
		if res.Checks.TestCoverage, err = e.testCoverage(ctx, inForce); err != nil {
			return nil, err
		}
	}
	if run[CheckWarnings] {
		if res.Checks.Warnings, err = e.warnings(filter); err != nil {
			return nil, err
		}
	}
	if run[CheckAssembly] {
		res.Checks.Assembly = assembly(inForce, in.AgentID)
	}
	if run[CheckDrift] {
		res.Checks.Drift = &SkippedCheck{Status: Skip, Reason: "git history inspection is not available"}
	}
	if run[CheckConstraints] {
		res.Checks.Constraints = &SkippedCheck{Status: Skip, Reason: "constraint commands are not executed"}
	}
	res.Summary = summary(res.Checks)

	agent := in.AgentID
	if agent == "" {
		agent = "verify-engine"
	}
	detail, _ := json.MarshalIndent(res.Checks, "", "  ")
	if _, err := e.board.Record(ctx, blackboard.Entry{
		EntryType: blackboard.TypeFinding,
		Summary:   "Verification: " + res.Summary,
		Detail:    string(detail),
		Tags:      []string{"verify"},
		Scope:     in.Scope,
		AgentID:   agent,
	}); err != nil {
		log.Printf("WARNING: verify: post finding: %v", err)
	}
	return res, nil
}

func summary(c Checks) string {
	var parts []string
	add := func(name, status string) { parts = append(parts, fmt.Sprintf("%s: %s", name, status)) }
	if c.TestCoverage != nil {
		add(CheckTestCoverage, c.TestCoverage.Status)
	}
	if c.Warnings != nil {
		add(CheckWarnings, c.Warnings.Status)
	}
	if c.Assembly != nil {
		add(CheckAssembly, c.Assembly.Status)
	}
	if c.Drift != nil {
		add(CheckDrift, c.Drift.Status)
	}
	if c.Constraints != nil {
		add(CheckConstraints, c.Constraints.Status)
	}
	return strings.Join(parts, ", ")
}

func (e *Engine) testCoverage(ctx context.Context, ds []decisions.Decision) (*TestCoverageCheck, error) {
	subjects := make([]graph.CoverageSubject, 0, len(ds))
	for _, d := range ds {
		files := d.AffectedFiles
		if files == nil {
			files = []string{}
		}
		subjects = append(subjects, graph.CoverageSubject{ID: d.ID, Summary: d.Summary, AffectedFiles: files})
	}
	if e.graph == nil {
		return &TestCoverageCheck{Status: Warn, DecisionsInScope: len(subjects), Uncovered: subjects}, nil
	}

	cov, err := e.graph.TestCoverage(ctx, subjects)
	if err != nil {
		return nil, err
	}
	status := Pass
	if len(cov.Uncovered) > 0 {
		ratio := float64(cov.DecisionsWithTestedBy) / float64(max(cov.DecisionsInScope, 1))
		status = Fail
		if ratio >= 0.5 {
			status = Warn
		}
	}
	return &TestCoverageCheck{
		Status:                status,
		DecisionsInScope:      cov.DecisionsInScope,
		DecisionsWithTestedBy: cov.DecisionsWithTestedBy,
		Uncovered:             cov.Uncovered,
	}, nil
}

// warnings treats an answer or finding relating to a warning as an
// acknowledgement, and a status relating to it as a resolution.
func (e *Engine) warnings(filter string) (*WarningsCheck, error) {
	all, err := e.board.Store().All()
	if err != nil {
		return nil, err
	}
	acked := make(map[string]bool)
	resolved := make(map[string]bool)
	var warns []blackboard.Entry
	for _, en := range all {
		if !scope.Overlaps(en.Scope, filter) {
			continue
		}
		if en.EntryType == blackboard.TypeWarning {
			warns = append(warns, en)
		}
		for _, ref := range en.RelatesTo {
			switch en.EntryType {
			case blackboard.TypeAnswer, blackboard.TypeFinding:
				acked[ref] = true
			case blackboard.TypeStatus:
				resolved[ref] = true
			}
		}
	}

	out := &WarningsCheck{WarningsInScope: len(warns), IgnoredDetails: []IgnoredWarning{}}
	for _, w := range warns {
		if acked[w.ID] {
			out.Acknowledged++
		}
		if resolved[w.ID] {
			out.Resolved++
		}
		if !acked[w.ID] && !resolved[w.ID] {
			out.IgnoredDetails = append(out.IgnoredDetails, IgnoredWarning{ID: w.ID, Summary: w.Summary})
		}
	}
	out.SilentlyIgnored = len(out.IgnoredDetails)
	switch {
	case out.SilentlyIgnored == 0:
		out.Status = Pass
	case out.SilentlyIgnored <= 2:
		out.Status = Warn
	default:
		out.Status = Fail
	}
	return out, nil
}

func assembly(ds []decisions.Decision, agentID string) *AssemblyCheck {
	out := &AssemblyCheck{BlindDecisions: []BlindDecision{}}
	for _, d := range ds {
		if agentID != "" && d.AgentID != agentID {
			continue
		}
		out.DecisionsByAgent++
		if d.AssembledBefore != nil && *d.AssembledBefore {
			out.AssembledBefore++
			continue
		}
		out.BlindDecisions = append(out.BlindDecisions, BlindDecision{DecisionID: d.ID, Summary: d.Summary, AgentID: d.AgentID})
	}
	switch {
	case len(out.BlindDecisions) == 0:
		out.Status = Pass
	case float64(out.AssembledBefore) >= float64(out.DecisionsByAgent)/2:
		out.Status = Warn
	default:
		out.Status = Fail
	}
	return out
}
