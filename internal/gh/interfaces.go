package gh

import (
	"context"

	"github.com/ldevineau/pullwatch/internal/model"
)

// API is the remote surface the reconciliation store depends on.
type API interface {
	Viewer(ctx context.Context) (model.User, error)
	Organizations(ctx context.Context, login string) ([]model.Organization, error)
	Repositories(ctx context.Context) ([]model.Repository, error)
	PullRequests(ctx context.Context, repo model.Repository) ([]model.PullRequest, error)
	PullRequestDetail(ctx context.Context, repo model.Repository, prID string) (model.PullRequest, error)
	RateLimit() RateLimit
}

var _ API = (*Client)(nil)
