package assemble

import (
	"context"
	"fmt"
	"time"

	"github.com/HendryAvila/twining/internal/apperr"
	"github.com/HendryAvila/twining/internal/blackboard"
	"github.com/HendryAvila/twining/internal/decisions"
	"github.com/HendryAvila/twining/internal/ids"
	"github.com/HendryAvila/twining/internal/scope"
)

// Summary is the high-level count view of a scope.
type Summary struct {
	Scope                 string `json:"scope"`
	ActiveDecisions       int    `json:"active_decisions"`
	ProvisionalDecisions  int    `json:"provisional_decisions"`
	OpenNeeds             int    `json:"open_needs"`
	ActiveWarnings        int    `json:"active_warnings"`
	UnansweredQuestions   int    `json:"unanswered_questions"`
	RecentActivitySummary string `json:"recent_activity_summary"`
	CurrentPhase          string `json:"current_phase,omitempty"`
}

// Summarize counts the state of a scope and describes the last 24 hours.
func (a *Assembler) Summarize(ctx context.Context, sc string) (*Summary, error) {
	sc = scope.OrProject(sc)
	filter := scope.Filter(sc)
	now := timeNow()

	ds, err := a.decisions.GetByScope(filter)
	if err != nil {
		return nil, err
	}
	all, err := a.board.All()
	if err != nil {
		return nil, err
	}

	out := &Summary{Scope: sc}
	for _, d := range ds {
		switch d.Status {
		case decisions.StatusActive:
			out.ActiveDecisions++
		case decisions.StatusProvisional:
			out.ProvisionalDecisions++
		}
	}

	// A question counts as answered when some answer relates to it.
	answered := make(map[string]bool)
	for _, e := range all {
		if e.EntryType == blackboard.TypeAnswer {
			for _, id := range e.RelatesTo {
				answered[id] = true
			}
		}
	}

	dayAgo := ids.Format(now.Add(-24 * time.Hour))
	var recentDecisions, recentFindings, recentWarnings int
	for _, e := range all {
		if !scope.Overlaps(e.Scope, filter) {
			continue
		}
		switch e.EntryType {
		case blackboard.TypeNeed:
			out.OpenNeeds++
		case blackboard.TypeWarning:
			out.ActiveWarnings++
		case blackboard.TypeQuestion:
			if !answered[e.ID] {
				out.UnansweredQuestions++
			}
		}
		if e.Timestamp >= dayAgo {
			switch e.EntryType {
			case blackboard.TypeFinding:
				recentFindings++
			case blackboard.TypeWarning:
				recentWarnings++
			}
		}
	}
	for _, d := range ds {
		if d.Timestamp >= dayAgo {
			recentDecisions++
		}
	}
	out.RecentActivitySummary = fmt.Sprintf("In the last 24 hours: %s made, %s posted, %s raised.",
		plural(recentDecisions, "decision"), plural(recentFindings, "finding"), plural(recentWarnings, "warning"))

	if a.planning != nil {
		if st := a.planning.Read(); st != nil {
			out.CurrentPhase = st.CurrentPhase
		}
	}
	return out, nil
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// ChangedEntry is a blackboard entry posted since the cutoff.
type ChangedEntry struct {
	ID        string `json:"id"`
	EntryType string `json:"entry_type"`
	Summary   string `json:"summary"`
}

// ChangedDecision is a decision made since the cutoff.
type ChangedDecision struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
}

// Changes lists what happened since a timestamp.
type Changes struct {
	NewDecisions          []ChangedDecision `json:"new_decisions"`
	NewEntries            []ChangedEntry    `json:"new_entries"`
	OverriddenDecisions   []OverriddenItem  `json:"overridden_decisions"`
	ReconsideredDecisions []ChangedDecision `json:"reconsidered_decisions"`
}

const noReason = "No reason provided"

// OverriddenItem is an overridden decision made since the cutoff.
type OverriddenItem struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
	Reason  string `json:"reason"`
}

// WhatChanged reports entries and decisions timestamped at or after since.
// An empty scope means the whole project.
func (a *Assembler) WhatChanged(ctx context.Context, since, sc string) (*Changes, error) {
	cutoff, err := ids.Parse(since)
	if err != nil {
		return nil, apperr.Invalid("invalid since timestamp %q", since)
	}
	since = ids.Format(cutoff)
	sc = scope.Filter(sc)

	entries, err := a.board.Read(blackboard.ReadOptions{Scope: sc, Since: since, Limit: int(^uint(0) >> 1)})
	if err != nil {
		return nil, err
	}
	ds, err := a.decisions.GetByScope(sc)
	if err != nil {
		return nil, err
	}

	out := &Changes{
		NewDecisions:          []ChangedDecision{},
		NewEntries:            []ChangedEntry{},
		OverriddenDecisions:   []OverriddenItem{},
		ReconsideredDecisions: []ChangedDecision{},
	}
	for _, e := range entries.Entries {
		out.NewEntries = append(out.NewEntries, ChangedEntry{ID: e.ID, EntryType: e.EntryType, Summary: e.Summary})
	}
	for _, d := range ds {
		if d.Timestamp < since {
			continue
		}
		item := ChangedDecision{ID: d.ID, Summary: d.Summary}
		switch d.Status {
		case decisions.StatusActive:
			out.NewDecisions = append(out.NewDecisions, item)
		case decisions.StatusProvisional:
			out.NewDecisions = append(out.NewDecisions, item)
			out.ReconsideredDecisions = append(out.ReconsideredDecisions, item)
		case decisions.StatusOverridden:
			reason := d.OverrideReason
			if reason == "" {
				reason = noReason
			}
			out.OverriddenDecisions = append(out.OverriddenDecisions, OverriddenItem{ID: d.ID, Summary: d.Summary, Reason: reason})
		}
	}
	return out, nil
}
