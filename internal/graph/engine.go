package graph

import (
	"context"
	"strings"

	"github.com/HendryAvila/twining/internal/apperr"
)

// Neighbor directions relative to the center entity.
const (
	Outgoing = "outgoing"
	Incoming = "incoming"
)

// Neighbor is an entity reached during traversal.
type Neighbor struct {
	Entity    Entity   `json:"entity"`
	Relation  Relation `json:"relation"`
	Direction string   `json:"direction"`
	Depth     int      `json:"depth"`
}

// NeighborsResult is the outcome of a traversal.
type NeighborsResult struct {
	Center    Entity     `json:"center"`
	Neighbors []Neighbor `json:"neighbors"`
}

// CoverageSubject is the part of a decision coverage is computed from.
type CoverageSubject struct {
	ID            string   `json:"decision_id"`
	Summary       string   `json:"summary"`
	AffectedFiles []string `json:"affected_files"`
}

// Coverage reports which decisions have tested_by relations.
type Coverage struct {
	DecisionsInScope      int               `json:"decisions_in_scope"`
	DecisionsWithTestedBy int               `json:"decisions_with_tested_by"`
	Uncovered             []CoverageSubject `json:"uncovered"`
}

// PruneResult lists entities without relations and what was removed.
type PruneResult struct {
	Orphans []Entity     `json:"orphans"`
	DryRun  bool         `json:"dry_run"`
	Removed RemoveResult `json:"removed"`
}

// Engine answers traversal and search questions over a Store.
type Engine struct {
	store *Store
}

// NewEngine creates an Engine over store.
func NewEngine(store *Store) *Engine {
	return &Engine{store: store}
}

// Store exposes the underlying store.
func (e *Engine) Store() *Store { return e.store }

// AddEntity upserts an entity.
func (e *Engine) AddEntity(ctx context.Context, name, typ string, props map[string]string) (Entity, error) {
	return e.store.AddEntity(ctx, name, typ, props)
}

// AddRelation links two entities.
func (e *Engine) AddRelation(ctx context.Context, source, target, typ string, props map[string]string) (Relation, error) {
	return e.store.AddRelation(ctx, source, target, typ, props)
}

type edge struct {
	to        string
	rel       Relation
	direction string
}

// Neighbors walks outgoing and incoming relations breadth-first from the
// entity named by ref. depth is clamped to [1, 3]; each entity is reported
// once, at the depth it was first reached.
func (e *Engine) Neighbors(ctx context.Context, ref string, depth int, relationTypes []string) (NeighborsResult, error) {
	es, err := e.store.Entities()
	if err != nil {
		return NeighborsResult{}, err
	}
	center := resolveFirst(es, ref)
	if center == nil {
		return NeighborsResult{}, apperr.NotFound("Entity not found: %q", ref)
	}
	rs, err := e.store.Relations()
	if err != nil {
		return NeighborsResult{}, err
	}

	if depth < 1 {
		depth = 1
	}
	if depth > 3 {
		depth = 3
	}

	byID := make(map[string]Entity, len(es))
	for _, x := range es {
		byID[x.ID] = x
	}
	adj := make(map[string][]edge)
	for _, r := range rs {
		if len(relationTypes) > 0 && !oneOf(relationTypes, r.Type) {
			continue
		}
		adj[r.Source] = append(adj[r.Source], edge{to: r.Target, rel: r, direction: Outgoing})
		adj[r.Target] = append(adj[r.Target], edge{to: r.Source, rel: r, direction: Incoming})
	}

	visited := map[string]bool{center.ID: true}
	out := []Neighbor{}
	frontier := []string{center.ID}
	for d := 1; d <= depth && len(frontier) > 0; d++ {
		var next []string
		for _, id := range frontier {
			for _, ed := range adj[id] {
				if visited[ed.to] {
					continue
				}
				visited[ed.to] = true
				ent, ok := byID[ed.to]
				if !ok {
					continue
				}
				out = append(out, Neighbor{Entity: ent, Relation: ed.rel, Direction: ed.direction, Depth: d})
				next = append(next, ed.to)
			}
		}
		frontier = next
	}
	return NeighborsResult{Center: *center, Neighbors: out}, nil
}

// resolveFirst finds an entity by id, then by the first name match.
func resolveFirst(es []Entity, ref string) *Entity {
	for i := range es {
		if es[i].ID == ref {
			return &es[i]
		}
	}
	for i := range es {
		if es[i].Name == ref {
			return &es[i]
		}
	}
	return nil
}

// Query returns entities whose name or any property value contains text,
// case-insensitively. limit defaults to 10.
func (e *Engine) Query(ctx context.Context, text string, types []string, limit int) ([]Entity, error) {
	if limit <= 0 {
		limit = 10
	}
	es, err := e.store.Entities()
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(text)
	out := []Entity{}
	for _, x := range es {
		if len(out) == limit {
			break
		}
		if len(types) > 0 && !oneOf(types, x.Type) {
			continue
		}
		if matchesQuery(x, q) {
			out = append(out, x)
		}
	}
	return out, nil
}

func matchesQuery(x Entity, q string) bool {
	if strings.Contains(strings.ToLower(x.Name), q) {
		return true
	}
	for _, v := range x.Properties {
		if strings.Contains(strings.ToLower(v), q) {
			return true
		}
	}
	return false
}

// TestCoverage reports, for each decision, whether an entity tied to it
// (one of its affected files by name, or an entity whose decision_id
// property names it) has an outgoing tested_by relation.
func (e *Engine) TestCoverage(ctx context.Context, subjects []CoverageSubject) (Coverage, error) {
	es, err := e.store.Entities()
	if err != nil {
		return Coverage{}, err
	}
	rs, err := e.store.Relations()
	if err != nil {
		return Coverage{}, err
	}

	tested := make(map[string]bool)
	for _, r := range rs {
		if r.Type == "tested_by" {
			tested[r.Source] = true
		}
	}

	res := Coverage{DecisionsInScope: len(subjects), Uncovered: []CoverageSubject{}}
	for _, s := range subjects {
		covered := false
		for _, x := range es {
			if !tested[x.ID] {
				continue
			}
			if x.Properties["decision_id"] == s.ID || oneOf(s.AffectedFiles, x.Name) {
				covered = true
				break
			}
		}
		if covered {
			res.DecisionsWithTestedBy++
		} else {
			res.Uncovered = append(res.Uncovered, s)
		}
	}
	return res, nil
}

// Orphans returns entities that no relation touches, optionally restricted
// to types.
func (e *Engine) Orphans(types []string) ([]Entity, error) {
	es, err := e.store.Entities()
	if err != nil {
		return nil, err
	}
	rs, err := e.store.Relations()
	if err != nil {
		return nil, err
	}
	linked := make(map[string]bool, len(rs)*2)
	for _, r := range rs {
		linked[r.Source] = true
		linked[r.Target] = true
	}
	out := []Entity{}
	for _, x := range es {
		if linked[x.ID] {
			continue
		}
		if len(types) > 0 && !oneOf(types, x.Type) {
			continue
		}
		out = append(out, x)
	}
	return out, nil
}

// Prune removes orphan entities. With dryRun nothing is written.
func (e *Engine) Prune(ctx context.Context, types []string, dryRun bool) (PruneResult, error) {
	orphans, err := e.Orphans(types)
	if err != nil {
		return PruneResult{}, err
	}
	res := PruneResult{Orphans: orphans, DryRun: dryRun}
	if dryRun || len(orphans) == 0 {
		return res, nil
	}
	idList := make([]string, len(orphans))
	for i, o := range orphans {
		idList[i] = o.ID
	}
	res.Removed, err = e.store.RemoveEntities(ctx, idList)
	return res, err
}
