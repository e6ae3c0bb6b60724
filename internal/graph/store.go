// Package graph stores the knowledge graph of code entities and their
// relations, and answers traversal and coverage questions over it.
package graph

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/HendryAvila/twining/internal/apperr"
	"github.com/HendryAvila/twining/internal/filestore"
	"github.com/HendryAvila/twining/internal/ids"
)

// EntityTypes are the entity types agents are expected to use. Other
// non-empty types are stored as given.
var EntityTypes = []string{
	"module", "function", "class", "file", "concept", "pattern", "dependency", "api_endpoint",
}

// RelationTypes are the conventional relation types. Like entity types,
// the set is open.
var RelationTypes = []string{
	"depends_on", "implements", "decided_by", "affects", "tested_by", "calls", "imports", "related_to",
}

func oneOf(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// Entity is a node in the graph. (Name, Type) is unique.
type Entity struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties"`
	CreatedAt  string            `json:"created_at"`
	UpdatedAt  string            `json:"updated_at"`
}

// Relation is a directed, typed edge between two entities.
type Relation struct {
	ID         string            `json:"id"`
	Source     string            `json:"source"`
	Target     string            `json:"target"`
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties"`
	CreatedAt  string            `json:"created_at"`
}

// RemoveResult counts what RemoveEntities deleted.
type RemoveResult struct {
	Entities  int `json:"entities"`
	Relations int `json:"relations"`
}

// Store persists graph/entities.json and graph/relations.json.
type Store struct {
	entitiesPath  string
	relationsPath string
	entities      *filestore.Cache[[]Entity]
	relations     *filestore.Cache[[]Relation]
}

// NewStore creates a Store rooted at twiningDir.
func NewStore(twiningDir string) *Store {
	dir := filepath.Join(twiningDir, "graph")
	ep := filepath.Join(dir, "entities.json")
	rp := filepath.Join(dir, "relations.json")
	return &Store{
		entitiesPath:  ep,
		relationsPath: rp,
		entities:      filestore.NewCache(ep, loadList[Entity]),
		relations:     filestore.NewCache(rp, loadList[Relation]),
	}
}

func loadList[T any](path string) ([]T, error) {
	var out []T
	if _, err := filestore.ReadJSON(path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Entities returns every entity. The slice is shared; do not modify.
func (s *Store) Entities() ([]Entity, error) {
	es, err := s.entities.Get()
	if err != nil {
		return nil, fmt.Errorf("graph: read entities: %w", err)
	}
	return es, nil
}

// Relations returns every relation. The slice is shared; do not modify.
func (s *Store) Relations() ([]Relation, error) {
	rs, err := s.relations.Get()
	if err != nil {
		return nil, fmt.Errorf("graph: read relations: %w", err)
	}
	return rs, nil
}

// GetEntity returns the entity with id, or nil.
func (s *Store) GetEntity(id string) (*Entity, error) {
	es, err := s.Entities()
	if err != nil {
		return nil, err
	}
	for i := range es {
		if es[i].ID == id {
			e := es[i]
			return &e, nil
		}
	}
	return nil, nil
}

// AddEntity inserts an entity or, when (name, type) already exists, merges
// the new properties into it and bumps updated_at.
func (s *Store) AddEntity(ctx context.Context, name, typ string, props map[string]string) (Entity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Entity{}, apperr.Invalid("name is required")
	}
	typ = strings.TrimSpace(typ)
	if typ == "" {
		return Entity{}, apperr.Invalid("type is required")
	}

	var out Entity
	err := filestore.WithLock(ctx, s.entitiesPath, func() error {
		es, err := loadList[Entity](s.entitiesPath)
		if err != nil {
			return err
		}
		now := ids.Timestamp()
		for i := range es {
			if es[i].Name == name && es[i].Type == typ {
				if es[i].Properties == nil {
					es[i].Properties = map[string]string{}
				}
				for k, v := range props {
					es[i].Properties[k] = v
				}
				es[i].UpdatedAt = now
				out = es[i]
				return filestore.WriteJSON(s.entitiesPath, es)
			}
		}
		if props == nil {
			props = map[string]string{}
		}
		out = Entity{ID: ids.New(), Name: name, Type: typ, Properties: props, CreatedAt: now, UpdatedAt: now}
		return filestore.WriteJSON(s.entitiesPath, append(es, out))
	})
	s.entities.Invalidate()
	if err != nil {
		return Entity{}, fmt.Errorf("graph: add entity: %w", err)
	}
	return out, nil
}

// Resolve finds an entity by id, then by unique name.
func Resolve(es []Entity, ref string) (*Entity, error) {
	for i := range es {
		if es[i].ID == ref {
			return &es[i], nil
		}
	}
	var matches []*Entity
	for i := range es {
		if es[i].Name == ref {
			matches = append(matches, &es[i])
		}
	}
	switch len(matches) {
	case 0:
		return nil, apperr.NotFound("Entity not found: %q", ref)
	case 1:
		return matches[0], nil
	}
	parts := make([]string, len(matches))
	for i, m := range matches {
		parts[i] = fmt.Sprintf("%s (%s)", m.Name, m.Type)
	}
	return nil, apperr.Ambiguous("Ambiguous entity name %q matches: %s", ref, strings.Join(parts, ", "))
}

// AddRelation links two entities referenced by id or unique name.
func (s *Store) AddRelation(ctx context.Context, source, target, typ string, props map[string]string) (Relation, error) {
	typ = strings.TrimSpace(typ)
	if typ == "" {
		return Relation{}, apperr.Invalid("type is required")
	}
	es, err := s.Entities()
	if err != nil {
		return Relation{}, err
	}
	src, err := Resolve(es, source)
	if err != nil {
		return Relation{}, err
	}
	dst, err := Resolve(es, target)
	if err != nil {
		return Relation{}, err
	}
	if props == nil {
		props = map[string]string{}
	}

	rel := Relation{
		ID:         ids.New(),
		Source:     src.ID,
		Target:     dst.ID,
		Type:       typ,
		Properties: props,
		CreatedAt:  ids.Timestamp(),
	}
	err = filestore.WithLock(ctx, s.relationsPath, func() error {
		rs, err := loadList[Relation](s.relationsPath)
		if err != nil {
			return err
		}
		return filestore.WriteJSON(s.relationsPath, append(rs, rel))
	})
	s.relations.Invalidate()
	if err != nil {
		return Relation{}, fmt.Errorf("graph: add relation: %w", err)
	}
	return rel, nil
}

// RemoveEntities deletes the entities and every relation touching them.
func (s *Store) RemoveEntities(ctx context.Context, idList []string) (RemoveResult, error) {
	drop := make(map[string]bool, len(idList))
	for _, id := range idList {
		drop[id] = true
	}
	var res RemoveResult

	err := filestore.WithLock(ctx, s.entitiesPath, func() error {
		es, err := loadList[Entity](s.entitiesPath)
		if err != nil {
			return err
		}
		kept := es[:0:0]
		for _, e := range es {
			if drop[e.ID] {
				res.Entities++
				continue
			}
			kept = append(kept, e)
		}
		if res.Entities == 0 {
			return nil
		}
		return filestore.WriteJSON(s.entitiesPath, kept)
	})
	s.entities.Invalidate()
	if err != nil {
		return res, fmt.Errorf("graph: remove entities: %w", err)
	}

	err = filestore.WithLock(ctx, s.relationsPath, func() error {
		rs, err := loadList[Relation](s.relationsPath)
		if err != nil {
			return err
		}
		kept := rs[:0:0]
		for _, r := range rs {
			if drop[r.Source] || drop[r.Target] {
				res.Relations++
				continue
			}
			kept = append(kept, r)
		}
		if res.Relations == 0 {
			return nil
		}
		return filestore.WriteJSON(s.relationsPath, kept)
	})
	s.relations.Invalidate()
	if err != nil {
		return res, fmt.Errorf("graph: remove relations: %w", err)
	}
	return res, nil
}
