package gh

import (
	"context"
	"errors"

	"github.com/ldevineau/pullwatch/internal/model"
)

// Mock implements API for tests. Responses are keyed so a test can script
// one polling cycle; call slices record which repositories and pull
// requests were actually fetched.
type Mock struct {
	ViewerUser model.User
	ViewerErr  error

	Orgs    []model.Organization
	OrgsErr error

	Repos    []model.Repository
	ReposErr error

	PullRequestsByRepo map[string][]model.PullRequest
	PullRequestsErr    map[string]error

	Details   map[string]model.PullRequest
	DetailErr map[string]error

	Rate RateLimit

	RepoCalls   []string
	DetailCalls []string
}

var _ API = (*Mock)(nil)

func (m *Mock) Viewer(_ context.Context) (model.User, error) {
	return m.ViewerUser, m.ViewerErr
}

func (m *Mock) Organizations(_ context.Context, _ string) ([]model.Organization, error) {
	return m.Orgs, m.OrgsErr
}

func (m *Mock) Repositories(_ context.Context) ([]model.Repository, error) {
	return m.Repos, m.ReposErr
}

func (m *Mock) PullRequests(_ context.Context, repo model.Repository) ([]model.PullRequest, error) {
	m.RepoCalls = append(m.RepoCalls, repo.ID)
	if err, ok := m.PullRequestsErr[repo.ID]; ok {
		return nil, err
	}
	return m.PullRequestsByRepo[repo.ID], nil
}

func (m *Mock) PullRequestDetail(_ context.Context, _ model.Repository, prID string) (model.PullRequest, error) {
	m.DetailCalls = append(m.DetailCalls, prID)
	if err, ok := m.DetailErr[prID]; ok {
		return model.PullRequest{}, err
	}
	pr, ok := m.Details[prID]
	if !ok {
		return model.PullRequest{}, errors.New("no detail scripted for " + prID)
	}
	return pr, nil
}

func (m *Mock) RateLimit() RateLimit {
	return m.Rate
}
