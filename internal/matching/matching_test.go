package matching

import (
	"testing"
	"time"

	"github.com/ldevineau/pullwatch/internal/model"
)

const (
	selfID  = "U_self"
	otherID = "U_other"
	teamID  = "T_backend"
)

func newTestMatcher() *Matcher {
	return New(selfID, []string{teamID})
}

func TestMatcher_Type(t *testing.T) {
	tests := []struct {
		name string
		pr   model.PullRequest
		prev *model.PullRequest
		want model.MatchingType
	}{
		{
			name: "authored by self",
			pr: model.PullRequest{
				Author: model.User{ID: selfID},
				// Author precedence wins even with no review involvement.
				Reviews: []model.Review{{ID: otherID, State: model.ReviewRequested}},
			},
			want: model.MatchDirect,
		},
		{
			name: "assigned to self",
			pr: model.PullRequest{
				Author:    model.User{ID: otherID},
				Assignees: []model.User{{ID: otherID}, {ID: selfID}},
			},
			want: model.MatchDirect,
		},
		{
			name: "sticky team from previous cycle",
			pr: model.PullRequest{
				Author: model.User{ID: otherID},
			},
			prev: &model.PullRequest{Matching: model.MatchTeam},
			want: model.MatchTeam,
		},
		{
			name: "review requested from self",
			pr: model.PullRequest{
				Author:  model.User{ID: otherID},
				Reviews: []model.Review{{ID: selfID, State: model.ReviewRequested}},
			},
			want: model.MatchDirect,
		},
		{
			name: "self review outranks team review",
			pr: model.PullRequest{
				Author: model.User{ID: otherID},
				Reviews: []model.Review{
					{ID: teamID, State: model.ReviewTeam},
					{ID: selfID, State: model.ReviewApproved},
				},
			},
			want: model.MatchDirect,
		},
		{
			name: "team review request",
			pr: model.PullRequest{
				Author:  model.User{ID: otherID},
				Reviews: []model.Review{{ID: teamID, State: model.ReviewTeam}},
			},
			want: model.MatchTeam,
		},
		{
			name: "foreign team does not match",
			pr: model.PullRequest{
				Author:  model.User{ID: otherID},
				Reviews: []model.Review{{ID: "T_frontend", State: model.ReviewTeam}},
			},
			want: model.MatchNone,
		},
		{
			name: "no involvement",
			pr: model.PullRequest{
				Author:  model.User{ID: otherID},
				Reviews: []model.Review{{ID: otherID, State: model.ReviewApproved}},
			},
			want: model.MatchNone,
		},
		{
			name: "previous direct is not sticky",
			pr: model.PullRequest{
				Author: model.User{ID: otherID},
			},
			prev: &model.PullRequest{Matching: model.MatchDirect},
			want: model.MatchNone,
		},
	}

	m := newTestMatcher()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Type(&tt.pr, tt.prev); got != tt.want {
				t.Errorf("Type() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMatcher_Priority(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		matching model.MatchingType
		age      time.Duration
		labels   []string
		want     model.Priority
	}{
		{name: "direct stale", matching: model.MatchDirect, age: 4 * 24 * time.Hour, want: model.PriorityHighest},
		{name: "direct fresh", matching: model.MatchDirect, age: time.Hour, want: model.PriorityHigh},
		{name: "team stale", matching: model.MatchTeam, age: 4 * 24 * time.Hour, want: model.PriorityHigh},
		{name: "team fresh", matching: model.MatchTeam, age: time.Hour, want: model.PriorityLow},
		{name: "unmatched defaults low", matching: model.MatchNone, age: 10 * 24 * time.Hour, want: model.PriorityLow},
		{
			name:     "dependencies label overrides age and matching",
			matching: model.MatchDirect,
			age:      4 * 24 * time.Hour,
			labels:   []string{"dependencies"},
			want:     model.PriorityLowest,
		},
		{
			name:     "dependencies label is case-insensitive",
			matching: model.MatchTeam,
			age:      time.Hour,
			labels:   []string{"Dependencies"},
			want:     model.PriorityLowest,
		},
	}

	m := newTestMatcher()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pr := model.PullRequest{
				CreatedAt: now.Add(-tt.age),
				Matching:  tt.matching,
				Labels:    tt.labels,
			}
			if got := m.Priority(&pr, now); got != tt.want {
				t.Errorf("Priority() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMatcher_PriorityThresholdBoundary(t *testing.T) {
	now := time.Now()
	m := newTestMatcher()

	fresh := model.PullRequest{CreatedAt: now.Add(-DefaultStaleAfter + time.Minute), Matching: model.MatchDirect}
	if got := m.Priority(&fresh, now); got != model.PriorityHigh {
		t.Errorf("just under threshold: Priority() = %q, want %q", got, model.PriorityHigh)
	}

	stale := model.PullRequest{CreatedAt: now.Add(-DefaultStaleAfter - time.Minute), Matching: model.MatchDirect}
	if got := m.Priority(&stale, now); got != model.PriorityHighest {
		t.Errorf("just over threshold: Priority() = %q, want %q", got, model.PriorityHighest)
	}
}
