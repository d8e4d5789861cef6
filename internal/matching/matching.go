// Package matching decides whether a pull request is relevant to the
// signed-in user and how urgent it is.
package matching

import (
	"time"

	"github.com/ldevineau/pullwatch/internal/model"
)

// DefaultStaleAfter is the age at which a pull request is considered stale
// for priority purposes.
const DefaultStaleAfter = 84 * time.Hour // 3.5 days

// DefaultDependenciesLabel marks dependency-update pull requests that are
// always deprioritized.
const DefaultDependenciesLabel = "dependencies"

// Matcher evaluates matching and priority for one signed-in user.
type Matcher struct {
	selfID     string
	teamIDs    map[string]struct{}
	staleAfter time.Duration
	depsLabel  string
}

type Option func(*Matcher)

func WithStaleAfter(d time.Duration) Option {
	return func(m *Matcher) {
		if d > 0 {
			m.staleAfter = d
		}
	}
}

func WithDependenciesLabel(label string) Option {
	return func(m *Matcher) {
		if label != "" {
			m.depsLabel = label
		}
	}
}

func New(selfID string, teamIDs []string, opts ...Option) *Matcher {
	m := &Matcher{
		selfID:     selfID,
		teamIDs:    make(map[string]struct{}, len(teamIDs)),
		staleAfter: DefaultStaleAfter,
		depsLabel:  DefaultDependenciesLabel,
	}
	for _, id := range teamIDs {
		m.teamIDs[id] = struct{}{}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Type classifies the pull request, in strict precedence:
// authored by self, assigned to self, previously team-matched (sticky),
// individually requested/reviewed by self, requested via one of self's
// teams. prev is the record from the previous cycle, nil on first sight.
//
// The sticky rule exists because the cheap list query under-reports
// on-behalf-of team attribution: once a PR matched "team", an incomplete
// follow-up fetch must not drop it.
func (m *Matcher) Type(pr, prev *model.PullRequest) model.MatchingType {
	if pr.Author.ID == m.selfID {
		return model.MatchDirect
	}
	for _, a := range pr.Assignees {
		if a.ID == m.selfID {
			return model.MatchDirect
		}
	}
	if prev != nil && prev.Matching == model.MatchTeam {
		return model.MatchTeam
	}

	matched := model.MatchNone
	for _, r := range pr.Reviews {
		if r.ID == m.selfID {
			return model.MatchDirect
		}
		if r.State == model.ReviewTeam {
			if _, ok := m.teamIDs[r.ID]; ok {
				matched = model.MatchTeam
			}
		}
	}
	return matched
}

// Priority derives the display priority from matching crossed with age.
// The dependencies label is an override, not a blend.
func (m *Matcher) Priority(pr *model.PullRequest, now time.Time) model.Priority {
	if pr.HasLabel(m.depsLabel) {
		return model.PriorityLowest
	}

	stale := now.Sub(pr.CreatedAt) > m.staleAfter
	switch pr.Matching {
	case model.MatchDirect:
		if stale {
			return model.PriorityHighest
		}
		return model.PriorityHigh
	case model.MatchTeam:
		if stale {
			return model.PriorityHigh
		}
		return model.PriorityLow
	default:
		return model.PriorityLow
	}
}
