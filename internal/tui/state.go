package tui

import (
	"context"

	"github.com/ldevineau/pullwatch/internal/gh"
	"github.com/ldevineau/pullwatch/internal/model"
)

// Commander is the command surface the view drives on the store.
type Commander interface {
	Refresh(ctx context.Context) error
	MarkIgnored(pr model.PullRequest)
	ToggleFilter(kind, value string) bool
	IsFilterActive(kind, value string) bool
	SetSortPreference(name string) error
	SortPreference() string
}

// RateReporter exposes the remote client's quota telemetry for the footer.
type RateReporter interface {
	RateLimit() gh.RateLimit
}
