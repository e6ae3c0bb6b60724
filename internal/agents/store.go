// Package agents keeps the registry of agents that have worked on the
// project and computes how recently each was seen.
package agents

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/HendryAvila/twining/internal/config"
	"github.com/HendryAvila/twining/internal/filestore"
	"github.com/HendryAvila/twining/internal/ids"
	"github.com/HendryAvila/twining/internal/scope"
)

// Liveness states.
const (
	Active = "active"
	Idle   = "idle"
	Gone   = "gone"
)

// Record is one registered agent.
type Record struct {
	AgentID      string   `json:"agent_id"`
	Capabilities []string `json:"capabilities"`
	Role         string   `json:"role,omitempty"`
	Description  string   `json:"description,omitempty"`
	RegisteredAt string   `json:"registered_at"`
	LastActive   string   `json:"last_active"`
}

// Registration is the input to Upsert. Nil Role/Description leave the
// stored values untouched.
type Registration struct {
	AgentID      string
	Capabilities []string
	Role         *string
	Description  *string
}

// Liveness classifies lastActive against the thresholds. An unparseable
// timestamp counts as gone.
func Liveness(lastActive string, now time.Time, th config.LivenessConfig) string {
	t, err := ids.Parse(lastActive)
	if err != nil {
		return Gone
	}
	elapsed := now.Sub(t)
	switch {
	case elapsed < th.IdleAfter():
		return Active
	case elapsed < th.GoneAfter():
		return Idle
	default:
		return Gone
	}
}

// Store persists agents/registry.json.
type Store struct {
	path  string
	cache *filestore.Cache[[]Record]
}

// NewStore creates a Store rooted at twiningDir.
func NewStore(twiningDir string) *Store {
	path := filepath.Join(twiningDir, "agents", "registry.json")
	return &Store{path: path, cache: filestore.NewCache(path, loadRegistry)}
}

func loadRegistry(path string) ([]Record, error) {
	var rs []Record
	if _, err := filestore.ReadJSON(path, &rs); err != nil {
		return nil, err
	}
	return rs, nil
}

func (s *Store) update(ctx context.Context, fn func([]Record) ([]Record, Record)) (Record, error) {
	var out Record
	err := filestore.WithLock(ctx, s.path, func() error {
		rs, err := loadRegistry(s.path)
		if err != nil {
			return err
		}
		rs, out = fn(rs)
		return filestore.WriteJSON(s.path, rs)
	})
	s.cache.Invalidate()
	if err != nil {
		return Record{}, fmt.Errorf("agents: write registry: %w", err)
	}
	return out, nil
}

// Upsert registers an agent or merges into the existing record:
// capabilities are unioned, role and description overwritten when given.
func (s *Store) Upsert(ctx context.Context, reg Registration) (Record, error) {
	caps := scope.NormalizeTags(reg.Capabilities)
	return s.update(ctx, func(rs []Record) ([]Record, Record) {
		now := ids.Timestamp()
		for i := range rs {
			if rs[i].AgentID != reg.AgentID {
				continue
			}
			rs[i].Capabilities = scope.NormalizeTags(append(rs[i].Capabilities, caps...))
			if reg.Role != nil {
				rs[i].Role = *reg.Role
			}
			if reg.Description != nil {
				rs[i].Description = *reg.Description
			}
			rs[i].LastActive = now
			return rs, rs[i]
		}
		r := Record{AgentID: reg.AgentID, Capabilities: caps, RegisteredAt: now, LastActive: now}
		if reg.Role != nil {
			r.Role = *reg.Role
		}
		if reg.Description != nil {
			r.Description = *reg.Description
		}
		return append(rs, r), r
	})
}

// Touch bumps last_active, registering a minimal record for unknown agents.
func (s *Store) Touch(ctx context.Context, agentID string) (Record, error) {
	return s.update(ctx, func(rs []Record) ([]Record, Record) {
		now := ids.Timestamp()
		for i := range rs {
			if rs[i].AgentID == agentID {
				rs[i].LastActive = now
				return rs, rs[i]
			}
		}
		r := Record{AgentID: agentID, Capabilities: []string{}, RegisteredAt: now, LastActive: now}
		return append(rs, r), r
	})
}

// Get returns the agent, or nil.
func (s *Store) Get(agentID string) (*Record, error) {
	rs, err := s.All()
	if err != nil {
		return nil, err
	}
	for i := range rs {
		if rs[i].AgentID == agentID {
			r := rs[i]
			return &r, nil
		}
	}
	return nil, nil
}

// All returns every registered agent. The slice is shared; do not modify.
func (s *Store) All() ([]Record, error) {
	rs, err := s.cache.Get()
	if err != nil {
		return nil, fmt.Errorf("agents: read registry: %w", err)
	}
	return rs, nil
}

// FindByCapabilities returns agents holding any of tags after normalization.
func (s *Store) FindByCapabilities(tags []string) ([]Record, error) {
	want := scope.NormalizeTags(tags)
	if len(want) == 0 {
		return []Record{}, nil
	}
	rs, err := s.All()
	if err != nil {
		return nil, err
	}
	out := []Record{}
	for _, r := range rs {
		if hasAny(r.Capabilities, want) {
			out = append(out, r)
		}
	}
	return out, nil
}

func hasAny(caps, want []string) bool {
	for _, c := range caps {
		for _, w := range want {
			if c == w {
				return true
			}
		}
	}
	return false
}
