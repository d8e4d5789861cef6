// Package event is the boundary contract between the reconciliation store
// and the presentation layer: enumerated event kinds with fixed payload
// shapes, delivered through a Bus.
package event

import (
	"time"

	"github.com/ldevineau/pullwatch/internal/model"
)

// Kind enumerates the event kinds emitted by the store.
type Kind string

const (
	KindConnectionChanged    Kind = "connection-changed"
	KindStatusMessage        Kind = "status-message"
	KindOrganizationsUpdated Kind = "organizations-updated"
	KindPullRequestsUpdated  Kind = "pull-requests-updated"
	KindFilterToggled        Kind = "filter-toggled"
)

// Event is implemented by every payload type.
type Event interface {
	Kind() Kind
}

type ConnectionChanged struct {
	IsConnected bool
}

func (ConnectionChanged) Kind() Kind { return KindConnectionChanged }

// StatusMessage carries a human-readable progress string. There is no fixed
// vocabulary; consumers display it verbatim.
type StatusMessage struct {
	Message string
}

func (StatusMessage) Kind() Kind { return KindStatusMessage }

type OrganizationsUpdated struct {
	User          model.User
	Organizations []model.Organization
}

func (OrganizationsUpdated) Kind() Kind { return KindOrganizationsUpdated }

// PullRequestsUpdated is a full snapshot with replace semantics, not a diff.
type PullRequestsUpdated struct {
	PullRequests []model.PullRequest
	LastCheck    time.Time
}

func (PullRequestsUpdated) Kind() Kind { return KindPullRequestsUpdated }

type FilterToggled struct {
	FilterKind string
	Value      string
	Active     bool
}

func (FilterToggled) Kind() Kind { return KindFilterToggled }
