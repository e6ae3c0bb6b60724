// Package export renders the whole twining state, optionally narrowed to a
// scope, as one markdown document.
package export

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/HendryAvila/twining/internal/blackboard"
	"github.com/HendryAvila/twining/internal/decisions"
	"github.com/HendryAvila/twining/internal/graph"
	"github.com/HendryAvila/twining/internal/ids"
	"github.com/HendryAvila/twining/internal/scope"
	"github.com/HendryAvila/twining/internal/templates"
)

var timeNow = time.Now

// Stats counts what the export contains.
type Stats struct {
	BlackboardEntries int    `json:"blackboard_entries"`
	Decisions         int    `json:"decisions"`
	GraphEntities     int    `json:"graph_entities"`
	GraphRelations    int    `json:"graph_relations"`
	Scope             string `json:"scope"`
}

// Result is the rendered export.
type Result struct {
	Markdown string `json:"markdown"`
	Stats    Stats  `json:"stats"`
}

// Exporter reads the three stores.
type Exporter struct {
	board     *blackboard.Store
	decisions *decisions.Store
	graph     *graph.Store
	renderer  templates.Renderer
}

// New creates an Exporter.
func New(b *blackboard.Store, d *decisions.Store, g *graph.Store, r templates.Renderer) *Exporter {
	return &Exporter{board: b, decisions: d, graph: g, renderer: r}
}

// Markdown renders the state. An empty sc exports everything; otherwise
// entries and decisions are matched by scope overlap and entities by a
// substring of their name or any property value.
func (x *Exporter) Markdown(ctx context.Context, sc string) (*Result, error) {
	sc = strings.TrimSpace(sc)

	all, err := x.board.All()
	if err != nil {
		return nil, err
	}
	entries := make([]blackboard.Entry, 0, len(all))
	for _, e := range all {
		if sc == "" || scope.Overlaps(e.Scope, sc) {
			entries = append(entries, e)
		}
	}
	blackboard.SortNewestFirst(entries)

	var ds []decisions.Decision
	if sc == "" {
		ds, err = x.decisions.All()
		decisions.SortNewestFirst(ds)
	} else {
		ds, err = x.decisions.GetByScope(sc)
	}
	if err != nil {
		return nil, err
	}

	allEntities, err := x.graph.Entities()
	if err != nil {
		return nil, err
	}
	allRelations, err := x.graph.Relations()
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(allEntities))
	for _, e := range allEntities {
		names[e.ID] = e.Name
	}
	var entities []graph.Entity
	included := make(map[string]bool)
	for _, e := range allEntities {
		if sc == "" || entityMentions(e, sc) {
			entities = append(entities, e)
			included[e.ID] = true
		}
	}
	sort.SliceStable(entities, func(i, j int) bool { return entities[i].Name < entities[j].Name })
	var relations []graph.Relation
	for _, r := range allRelations {
		if sc == "" || included[r.Source] || included[r.Target] {
			relations = append(relations, r)
		}
	}

	label := sc
	if label == "" {
		label = "all"
	}
	data := templates.ExportData{
		ExportedAt: ids.Format(timeNow()),
		Scope:      label,
		Entries:    len(entries),
	}
	for _, d := range ds {
		switch d.Status {
		case decisions.StatusActive:
			data.Status.Active++
		case decisions.StatusProvisional:
			data.Status.Provisional++
		case decisions.StatusSuperseded:
			data.Status.Superseded++
		case decisions.StatusOverridden:
			data.Status.Overridden++
		}
		item := templates.ExportDecision{
			ID: d.ID, Summary: d.Summary, Domain: d.Domain, Scope: d.Scope, Status: d.Status,
			Confidence: d.Confidence, Timestamp: d.Timestamp, Context: d.Context, Rationale: d.Rationale,
			Commits: d.CommitHashes,
		}
		for _, alt := range d.Alternatives {
			item.Alternatives = append(item.Alternatives, templates.ExportAlternative{Option: alt.Option, ReasonRejected: alt.ReasonRejected})
		}
		data.Decisions = append(data.Decisions, item)
	}
	for _, e := range entries {
		data.Board = append(data.Board, templates.ExportEntry{Timestamp: e.Timestamp, Type: e.EntryType, Summary: e.Summary, Scope: e.Scope})
	}
	for _, e := range entities {
		props, _ := json.Marshal(e.Properties)
		if e.Properties == nil {
			props = []byte("{}")
		}
		data.Entities = append(data.Entities, templates.ExportEntity{Name: e.Name, Type: e.Type, Properties: string(props)})
	}
	for _, r := range relations {
		data.Relations = append(data.Relations, templates.ExportRelation{Source: nameOr(names, r.Source), Type: r.Type, Target: nameOr(names, r.Target)})
	}

	md, err := x.renderer.Render(templates.Export, data)
	if err != nil {
		return nil, err
	}
	return &Result{
		Markdown: md,
		Stats: Stats{
			BlackboardEntries: len(entries),
			Decisions:         len(ds),
			GraphEntities:     len(entities),
			GraphRelations:    len(relations),
			Scope:             label,
		},
	}, nil
}

func entityMentions(e graph.Entity, sc string) bool {
	if strings.Contains(e.Name, sc) {
		return true
	}
	for _, v := range e.Properties {
		if strings.Contains(v, sc) {
			return true
		}
	}
	return false
}

func nameOr(names map[string]string, id string) string {
	if n, ok := names[id]; ok {
		return n
	}
	return id
}
