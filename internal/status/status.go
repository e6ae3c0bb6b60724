// Package status reports overall health of a twining directory.
package status

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/HendryAvila/twining/internal/agents"
	"github.com/HendryAvila/twining/internal/archive"
	"github.com/HendryAvila/twining/internal/blackboard"
	"github.com/HendryAvila/twining/internal/config"
	"github.com/HendryAvila/twining/internal/decisions"
	"github.com/HendryAvila/twining/internal/graph"
	"github.com/HendryAvila/twining/internal/ids"
	"github.com/HendryAvila/twining/internal/templates"
)

var timeNow = time.Now

const staleProvisionalAge = 7 * 24 * time.Hour

// Report is the health snapshot.
type Report struct {
	Project              string   `json:"project"`
	BlackboardEntries    int      `json:"blackboard_entries"`
	ActiveDecisions      int      `json:"active_decisions"`
	ProvisionalDecisions int      `json:"provisional_decisions"`
	GraphEntities        int      `json:"graph_entities"`
	GraphRelations       int      `json:"graph_relations"`
	RegisteredAgents     int      `json:"registered_agents"`
	ActiveAgents         int      `json:"active_agents"`
	LastActivity         string   `json:"last_activity"`
	NeedsArchiving       bool     `json:"needs_archiving"`
	Warnings             []string `json:"warnings"`
	Summary              string   `json:"summary"`
}

// Reporter reads every store.
type Reporter struct {
	project   string
	board     *blackboard.Store
	decisions *decisions.Store
	graph     *graph.Store
	agents    *agents.Store
	cfg       config.Config
}

// New creates a Reporter for the project at projectRoot. agents may be nil.
func New(projectRoot string, b *blackboard.Store, d *decisions.Store, g *graph.Store, a *agents.Store, cfg config.Config) *Reporter {
	return &Reporter{project: filepath.Base(projectRoot), board: b, decisions: d, graph: g, agents: a, cfg: cfg}
}

// Report gathers the counts and derives actionable warnings.
func (r *Reporter) Report(ctx context.Context) (*Report, error) {
	now := timeNow()
	rep := &Report{Project: r.project, LastActivity: "none", Warnings: []string{}}

	entries, err := r.board.All()
	if err != nil {
		return nil, err
	}
	rep.BlackboardEntries = len(entries)
	latest := ""
	for _, e := range entries {
		if e.Timestamp > latest {
			latest = e.Timestamp
		}
	}

	idx, err := r.decisions.Index()
	if err != nil {
		return nil, err
	}
	staleBefore := ids.Format(now.Add(-staleProvisionalAge))
	stale := 0
	for _, e := range idx {
		switch e.Status {
		case decisions.StatusActive:
			rep.ActiveDecisions++
		case decisions.StatusProvisional:
			rep.ProvisionalDecisions++
			if e.Timestamp < staleBefore {
				stale++
			}
		}
		if e.Timestamp > latest {
			latest = e.Timestamp
		}
	}
	if latest != "" {
		rep.LastActivity = latest
	}

	es, err := r.graph.Entities()
	if err != nil {
		return nil, err
	}
	rs, err := r.graph.Relations()
	if err != nil {
		return nil, err
	}
	rep.GraphEntities, rep.GraphRelations = len(es), len(rs)

	if r.agents != nil {
		as, err := r.agents.All()
		if err != nil {
			return nil, err
		}
		rep.RegisteredAgents = len(as)
		for _, a := range as {
			if agents.Liveness(a.LastActive, now, r.cfg.Agents.Liveness) == agents.Active {
				rep.ActiveAgents++
			}
		}
	}

	rep.NeedsArchiving = archive.NeedsArchive(rep.BlackboardEntries, r.cfg)
	if stale > 0 {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("%d provisional decisions older than 7 days need resolution", stale))
	}
	if rep.NeedsArchiving {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("Blackboard has %d entries, archive recommended (threshold: %d)",
			rep.BlackboardEntries, r.cfg.Archive.MaxBlackboardEntriesBeforeArchive))
	}
	if n := orphans(es, rs); n > 0 {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("%d graph entities have no relations", n))
	}

	health := "Healthy"
	if len(rep.Warnings) > 0 {
		health = "Needs attention"
	}
	rep.Summary = fmt.Sprintf("%s. %d blackboard entries, %d active decisions, %d graph entities. %d registered agents (%d active).",
		health, rep.BlackboardEntries, rep.ActiveDecisions, rep.GraphEntities, rep.RegisteredAgents, rep.ActiveAgents)
	if len(rep.Warnings) > 0 {
		rep.Summary += " " + strings.Join(rep.Warnings, ". ") + "."
	}
	return rep, nil
}

// Markdown renders rep with the status template.
func Markdown(r templates.Renderer, rep *Report) (string, error) {
	last := rep.LastActivity
	if last == "none" {
		last = ""
	}
	return r.Render(templates.Status, templates.StatusData{
		Project:        rep.Project,
		Entries:        rep.BlackboardEntries,
		Decisions:      rep.ActiveDecisions + rep.ProvisionalDecisions,
		Active:         rep.ActiveDecisions,
		Provisional:    rep.ProvisionalDecisions,
		Entities:       rep.GraphEntities,
		Relations:      rep.GraphRelations,
		Agents:         rep.RegisteredAgents,
		ActiveAgents:   rep.ActiveAgents,
		LastActivity:   last,
		NeedsArchiving: rep.NeedsArchiving,
		Warnings:       rep.Warnings,
		Summary:        rep.Summary,
	})
}

func orphans(es []graph.Entity, rs []graph.Relation) int {
	connected := make(map[string]bool, len(rs)*2)
	for _, r := range rs {
		connected[r.Source] = true
		connected[r.Target] = true
	}
	n := 0
	for _, e := range es {
		if !connected[e.ID] {
			n++
		}
	}
	return n
}
