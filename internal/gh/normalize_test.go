package gh

import (
	"testing"

	"github.com/ldevineau/pullwatch/internal/model"
)

func TestNormalizeReviewState(t *testing.T) {
	tests := []struct {
		in   string
		want model.ReviewState
	}{
		{"APPROVED", model.ReviewApproved},
		{"CHANGES_REQUESTED", model.ReviewChangesRequested},
		{"PENDING", model.ReviewPending},
		{"COMMENTED", model.ReviewRequested},
		{"DISMISSED", model.ReviewRequested},
	}
	for _, tt := range tests {
		if got := normalizeReviewState(tt.in); got != tt.want {
			t.Errorf("normalizeReviewState(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReviewMerger_OneEntryPerReviewer(t *testing.T) {
	m := newReviewMerger()
	// Review-requests list still carries a stale entry for a reviewer who
	// has already approved.
	m.add(model.Review{ID: "U1", Login: "ana", State: model.ReviewRequested})
	m.add(model.Review{ID: "U1", Login: "ana", State: model.ReviewApproved})

	got := m.reviews()
	if len(got) != 1 {
		t.Fatalf("got %d reviews, want 1", len(got))
	}
	if got[0].State != model.ReviewApproved {
		t.Errorf("state = %q, want %q", got[0].State, model.ReviewApproved)
	}
}

func TestReviewMerger_StaleRequestGuard(t *testing.T) {
	tests := []struct {
		name     string
		recorded model.ReviewState
		next     model.ReviewState
		want     model.ReviewState
	}{
		{"requested does not overwrite approved", model.ReviewApproved, model.ReviewRequested, model.ReviewApproved},
		{"pending does not overwrite changes requested", model.ReviewChangesRequested, model.ReviewPending, model.ReviewChangesRequested},
		{"changes requested overwrites approved", model.ReviewApproved, model.ReviewChangesRequested, model.ReviewChangesRequested},
		{"approved overwrites requested", model.ReviewRequested, model.ReviewApproved, model.ReviewApproved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newReviewMerger()
			m.add(model.Review{ID: "U1", State: tt.recorded})
			m.add(model.Review{ID: "U1", State: tt.next})

			got := m.reviews()
			if len(got) != 1 {
				t.Fatalf("got %d reviews, want 1", len(got))
			}
			if got[0].State != tt.want {
				t.Errorf("state = %q, want %q", got[0].State, tt.want)
			}
		})
	}
}

func TestReviewMerger_TeamThenUserKeepsBoth(t *testing.T) {
	m := newReviewMerger()
	m.add(model.Review{ID: "T1", Name: "backend", State: model.ReviewTeam})
	m.add(model.Review{ID: "U1", Login: "ana", State: model.ReviewRequested})

	got := m.reviews()
	if len(got) != 2 {
		t.Fatalf("got %d reviews, want 2", len(got))
	}
}

func TestMergeRequests(t *testing.T) {
	var requests []prReviewRequest

	team := prReviewRequest{AsCodeOwner: true}
	team.RequestedReviewer.Team.ID = "T1"
	team.RequestedReviewer.Team.Name = "backend"
	requests = append(requests, team)

	user := prReviewRequest{}
	user.RequestedReviewer.User.ID = "U1"
	user.RequestedReviewer.User.Login = "ana"
	requests = append(requests, user)

	m := newReviewMerger()
	mergeRequests(m, requests)

	got := m.reviews()
	if len(got) != 2 {
		t.Fatalf("got %d reviews, want 2", len(got))
	}
	if got[0].State != model.ReviewTeam || !got[0].AsCodeOwner {
		t.Errorf("team request = %+v, want TEAM state from code owner", got[0])
	}
	if got[1].State != model.ReviewRequested || got[1].Login != "ana" {
		t.Errorf("user request = %+v, want REQUESTED for ana", got[1])
	}
}

func TestMergeSubmitted_SkipsDeletedAuthors(t *testing.T) {
	m := newReviewMerger()
	mergeSubmitted(m, "APPROVED", prAuthor{}) // author without a user id
	if got := m.reviews(); got != nil {
		t.Errorf("got %v, want no reviews", got)
	}
}
