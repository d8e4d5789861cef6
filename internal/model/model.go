// Package model holds the domain types shared by the GitHub client, the
// matching rules and the reconciliation store.
package model

import (
	"fmt"
	"strings"
	"time"
)

// User identifies a GitHub account. The signed-in user is fixed once
// connected and drives all matching decisions.
type User struct {
	ID        string `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

type Team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Organization is refreshed wholesale each cycle; its teams contribute the
// team ids used for team matching.
type Organization struct {
	ID        string `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
	Teams     []Team `json:"teams"`
}

type Owner struct {
	ID        string `json:"id"`
	Login     string `json:"login"`
	AvatarURL string `json:"avatarUrl"`
}

// Repository is a repository the user can read. UpdatedAt is the later of
// the last push and the last open pull request activity, and decides whether
// the repository needs re-polling.
type Repository struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	FullName        string    `json:"fullname"`
	Owner           Owner     `json:"owner"`
	UpdatedAt       time.Time `json:"updatedAt"`
	HasPullRequests bool      `json:"hasPullRequests"`
	Topics          []string  `json:"topics,omitempty"`
}

// ReviewState is the latest known verdict for one reviewer identity.
type ReviewState string

const (
	ReviewApproved         ReviewState = "APPROVED"
	ReviewChangesRequested ReviewState = "CHANGES_REQUESTED"
	ReviewPending          ReviewState = "PENDING"
	ReviewRequested        ReviewState = "REQUESTED"
	ReviewTeam             ReviewState = "TEAM"
)

// Review is the latest known verdict for one reviewer or team on a pull
// request, not a historical log. Team reviews carry ReviewTeam and identify
// themselves by Name; user reviews identify themselves by Login.
type Review struct {
	ID          string      `json:"id"`
	Login       string      `json:"login,omitempty"`
	Name        string      `json:"name,omitempty"`
	AvatarURL   string      `json:"avatarUrl,omitempty"`
	State       ReviewState `json:"state"`
	AsCodeOwner bool        `json:"asCodeOwner,omitempty"`
}

// IsTeam reports whether the review belongs to a team rather than a user.
func (r Review) IsTeam() bool {
	return r.State == ReviewTeam
}

// DisplayName is the name shown for the reviewer: team name for teams,
// login for users.
func (r Review) DisplayName() string {
	if r.Login != "" {
		return r.Login
	}
	return r.Name
}

// MatchingType classifies why a pull request is relevant to the user.
type MatchingType string

const (
	MatchNone   MatchingType = ""
	MatchDirect MatchingType = "direct"
	MatchTeam   MatchingType = "team"
)

// Priority is derived from matching and age, never an authoritative input.
type Priority string

const (
	PriorityHighest Priority = "highest"
	PriorityHigh    Priority = "high"
	PriorityLow     Priority = "low"
	PriorityLowest  Priority = "lowest"
)

// Tier returns the numeric rank of the priority, higher meaning more urgent.
// Used to build composite sort keys.
func (p Priority) Tier() int {
	switch p {
	case PriorityHighest:
		return 3
	case PriorityHigh:
		return 2
	case PriorityLowest:
		return 0
	default:
		return 1
	}
}

// PullRequest is one open pull request tracked in the live set.
type PullRequest struct {
	ID         string       `json:"id"`
	Number     int          `json:"number"`
	Title      string       `json:"title"`
	State      string       `json:"state"`
	Draft      bool         `json:"draft"`
	URL        string       `json:"url"`
	CreatedAt  time.Time    `json:"createdAt"`
	Author     User         `json:"author"`
	Repository Repository   `json:"repository"`
	Labels     []string     `json:"labels,omitempty"`
	Assignees  []User       `json:"assignees,omitempty"`
	Reviews    []Review     `json:"reviews,omitempty"`
	Matching   MatchingType `json:"matching,omitempty"`
	Priority   Priority     `json:"priority,omitempty"`
}

// Key identifies a pull request across cycles. De-duplication of the live
// set and both bookkeeping sets are keyed by it.
type Key struct {
	RepoID string `json:"repoId"`
	PRID   string `json:"prId"`
}

func (k Key) String() string {
	return k.RepoID + "/" + k.PRID
}

// Key returns the identity key of the pull request.
func (pr *PullRequest) Key() Key {
	return Key{RepoID: pr.Repository.ID, PRID: pr.ID}
}

// HasLabel reports whether the pull request carries the given label,
// compared case-insensitively.
func (pr *PullRequest) HasLabel(name string) bool {
	for _, l := range pr.Labels {
		if strings.EqualFold(l, name) {
			return true
		}
	}
	return false
}

// SortKey returns the composite ordering key used when sorting by priority:
// tier digit first, creation time second, so that a plain descending string
// sort yields most urgent first and newest first within a tier.
func (pr *PullRequest) SortKey() string {
	return fmt.Sprintf("%d:%s", pr.Priority.Tier(), pr.CreatedAt.UTC().Format(time.RFC3339))
}
