package model

import (
	"sort"
	"strings"
)

// SortReviews orders reviews for display: teams first, then alphabetically
// by display name, case-insensitive.
func SortReviews(reviews []Review) {
	sort.SliceStable(reviews, func(i, j int) bool {
		a, b := reviews[i], reviews[j]
		if a.IsTeam() != b.IsTeam() {
			return a.IsTeam()
		}
		return strings.ToUpper(a.DisplayName()) < strings.ToUpper(b.DisplayName())
	})
}

// SortPullRequests orders pull requests for presentation. sortBy is either
// "created" (creation time, newest first) or "priority" (composite key,
// most urgent first).
func SortPullRequests(prs []PullRequest, sortBy string) {
	switch sortBy {
	case "priority":
		sort.SliceStable(prs, func(i, j int) bool {
			return prs[i].SortKey() > prs[j].SortKey()
		})
	default:
		sort.SliceStable(prs, func(i, j int) bool {
			return prs[i].CreatedAt.After(prs[j].CreatedAt)
		})
	}
}
