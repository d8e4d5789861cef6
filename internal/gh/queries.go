package gh

import (
	"context"
	"fmt"
	"time"

	graphql "github.com/cli/shurcooL-graphql"
	"github.com/ldevineau/pullwatch/internal/model"
)

// Viewer fetches the signed-in user.
func (c *Client) Viewer(ctx context.Context) (model.User, error) {
	var q struct {
		Viewer struct {
			ID        string
			Login     string
			Name      string
			AvatarURL string
		}
		RateLimit rateLimitQuery
	}

	if err := c.gql.QueryWithContext(ctx, "Viewer", &q, nil); err != nil {
		return model.User{}, fmt.Errorf("fetch viewer: %w", err)
	}
	c.observeRateLimit(q.RateLimit)

	return model.User{
		ID:        q.Viewer.ID,
		Login:     q.Viewer.Login,
		Name:      q.Viewer.Name,
		AvatarURL: q.Viewer.AvatarURL,
	}, nil
}

// Organizations fetches the organizations the user belongs to, with the
// teams the given login is a member of.
func (c *Client) Organizations(ctx context.Context, login string) ([]model.Organization, error) {
	var q struct {
		Viewer struct {
			Organizations struct {
				Nodes []struct {
					ID        string
					Login     string
					Name      string
					AvatarURL string
					Teams     struct {
						Nodes []struct {
							ID   string
							Name string
						}
					} `graphql:"teams(first: 100, userLogins: [$login])"`
				}
			} `graphql:"organizations(first: 100)"`
		}
		RateLimit rateLimitQuery
	}

	variables := map[string]interface{}{
		"login": graphql.String(login),
	}

	if err := c.gql.QueryWithContext(ctx, "Organizations", &q, variables); err != nil {
		return nil, fmt.Errorf("fetch organizations: %w", err)
	}
	c.observeRateLimit(q.RateLimit)

	orgs := make([]model.Organization, 0, len(q.Viewer.Organizations.Nodes))
	for _, node := range q.Viewer.Organizations.Nodes {
		org := model.Organization{
			ID:        node.ID,
			Login:     node.Login,
			Name:      node.Name,
			AvatarURL: node.AvatarURL,
			Teams:     make([]model.Team, 0, len(node.Teams.Nodes)),
		}
		for _, t := range node.Teams.Nodes {
			org.Teams = append(org.Teams, model.Team{ID: t.ID, Name: t.Name})
		}
		orgs = append(orgs, org)
	}
	return orgs, nil
}

// Repositories pages through every repository the user can read, skipping
// archived and disabled ones. UpdatedAt is the later of the last push and
// the latest open pull request activity, so callers can decide whether the
// repository needs re-polling.
func (c *Client) Repositories(ctx context.Context) ([]model.Repository, error) {
	var q struct {
		Viewer struct {
			Repositories struct {
				PageInfo struct {
					HasNextPage bool
					EndCursor   graphql.String
				}
				Nodes []struct {
					ID            string
					Name          string
					NameWithOwner string
					PushedAt      time.Time
					IsArchived    bool
					IsDisabled    bool
					Owner         struct {
						ID        string
						Login     string
						AvatarURL string
					}
					RepositoryTopics struct {
						Nodes []struct {
							Topic struct {
								Name string
							}
						}
					} `graphql:"repositoryTopics(first: 10)"`
					PullRequests struct {
						Nodes []struct {
							CreatedAt time.Time
							UpdatedAt time.Time
						}
					} `graphql:"pullRequests(last: 1, states: OPEN)"`
				}
			} `graphql:"repositories(first: 100, after: $after, affiliations: [OWNER, ORGANIZATION_MEMBER, COLLABORATOR], ownerAffiliations: [OWNER, ORGANIZATION_MEMBER, COLLABORATOR])"`
		}
		RateLimit rateLimitQuery
	}

	variables := map[string]interface{}{
		"after": (*graphql.String)(nil),
	}

	var repos []model.Repository
	for {
		if err := c.gql.QueryWithContext(ctx, "Repositories", &q, variables); err != nil {
			return nil, fmt.Errorf("fetch repositories: %w", err)
		}
		c.observeRateLimit(q.RateLimit)

		for _, node := range q.Viewer.Repositories.Nodes {
			if node.IsArchived || node.IsDisabled {
				continue
			}

			updatedAt := node.PushedAt
			hasPRs := len(node.PullRequests.Nodes) > 0
			if hasPRs {
				pr := node.PullRequests.Nodes[0]
				if pr.CreatedAt.After(updatedAt) {
					updatedAt = pr.CreatedAt
				}
				if pr.UpdatedAt.After(updatedAt) {
					updatedAt = pr.UpdatedAt
				}
			}

			var topics []string
			for _, t := range node.RepositoryTopics.Nodes {
				topics = append(topics, t.Topic.Name)
			}

			repos = append(repos, model.Repository{
				ID:       node.ID,
				Name:     node.Name,
				FullName: node.NameWithOwner,
				Owner: model.Owner{
					ID:        node.Owner.ID,
					Login:     node.Owner.Login,
					AvatarURL: node.Owner.AvatarURL,
				},
				UpdatedAt:       updatedAt,
				HasPullRequests: hasPRs,
				Topics:          topics,
			})
		}

		if !q.Viewer.Repositories.PageInfo.HasNextPage {
			break
		}
		variables["after"] = graphql.NewString(q.Viewer.Repositories.PageInfo.EndCursor)
		c.logger.Debug("fetching next repositories page", "count", len(repos))
	}
	return repos, nil
}

// prAuthor is the Actor shape shared by the cheap and deep queries.
type prAuthor struct {
	Login     string
	AvatarURL string
	User      struct {
		ID   string
		Name string
	} `graphql:"... on User"`
}

type prReviewRequest struct {
	AsCodeOwner       bool
	RequestedReviewer struct {
		Team struct {
			ID   string
			Name string
		} `graphql:"... on Team"`
		User struct {
			ID        string
			Login     string
			Name      string
			AvatarURL string
		} `graphql:"... on User"`
	}
}

type prReview struct {
	State  string
	Author prAuthor
}

type prDeepReview struct {
	State      string
	Author     prAuthor
	OnBehalfOf struct {
		Nodes []struct {
			ID   string
			Name string
		}
	} `graphql:"onBehalfOf(first: 10)"`
}

type prCommon struct {
	ID        string
	Number    int
	Title     string
	State     string
	IsDraft   bool
	CreatedAt time.Time
	URL       string
	Author    prAuthor
	Labels    struct {
		Nodes []struct {
			Name string
		}
	} `graphql:"labels(first: 20)"`
	Assignees struct {
		Nodes []struct {
			ID        string
			Login     string
			Name      string
			AvatarURL string
		}
	} `graphql:"assignees(first: 20)"`
	ReviewRequests struct {
		Nodes []prReviewRequest
	} `graphql:"reviewRequests(first: 100)"`
}

// PullRequests is the cheap fetch: every open pull request of the
// repository with labels, assignees, reviews and review requests in a
// single call. On-behalf-of team attribution is not available here; the
// deep fetch recovers it.
func (c *Client) PullRequests(ctx context.Context, repo model.Repository) ([]model.PullRequest, error) {
	var q struct {
		Node struct {
			Repository struct {
				PullRequests struct {
					Nodes []struct {
						prCommon
						Reviews struct {
							Nodes []prReview
						} `graphql:"reviews(first: 100)"`
					}
				} `graphql:"pullRequests(first: 100, states: OPEN)"`
			} `graphql:"... on Repository"`
		} `graphql:"node(id: $id)"`
		RateLimit rateLimitQuery
	}

	variables := map[string]interface{}{
		"id": graphql.ID(repo.ID),
	}

	if err := c.gql.QueryWithContext(ctx, "RepositoryPullRequests", &q, variables); err != nil {
		return nil, fmt.Errorf("fetch pull requests for %s: %w", repo.FullName, err)
	}
	c.observeRateLimit(q.RateLimit)

	nodes := q.Node.Repository.PullRequests.Nodes
	prs := make([]model.PullRequest, 0, len(nodes))
	for _, node := range nodes {
		pr := convertPullRequest(node.prCommon, repo)
		merger := newReviewMerger()
		mergeRequests(merger, node.prCommon.ReviewRequests.Nodes)
		for _, r := range node.Reviews.Nodes {
			mergeSubmitted(merger, r.State, r.Author)
		}
		pr.Reviews = merger.reviews()
		prs = append(prs, pr)
	}
	return prs, nil
}

// PullRequestDetail is the expensive single-PR fetch. It adds on-behalf-of
// team attribution to submitted reviews, which the cheap list query
// under-reports, so the result is authoritative for matching.
func (c *Client) PullRequestDetail(ctx context.Context, repo model.Repository, prID string) (model.PullRequest, error) {
	var q struct {
		Node struct {
			PullRequest struct {
				prCommon
				Reviews struct {
					Nodes []prDeepReview
				} `graphql:"reviews(first: 100)"`
			} `graphql:"... on PullRequest"`
		} `graphql:"node(id: $id)"`
		RateLimit rateLimitQuery
	}

	variables := map[string]interface{}{
		"id": graphql.ID(prID),
	}

	if err := c.gql.QueryWithContext(ctx, "PullRequestDetail", &q, variables); err != nil {
		return model.PullRequest{}, fmt.Errorf("fetch pull request %s: %w", prID, err)
	}
	c.observeRateLimit(q.RateLimit)

	node := q.Node.PullRequest
	pr := convertPullRequest(node.prCommon, repo)

	merger := newReviewMerger()
	for _, r := range node.Reviews.Nodes {
		for _, team := range r.OnBehalfOf.Nodes {
			merger.add(model.Review{ID: team.ID, Name: team.Name, State: model.ReviewTeam})
		}
	}
	mergeRequests(merger, node.prCommon.ReviewRequests.Nodes)
	for _, r := range node.Reviews.Nodes {
		mergeSubmitted(merger, r.State, r.Author)
	}
	pr.Reviews = merger.reviews()
	return pr, nil
}

func convertPullRequest(node prCommon, repo model.Repository) model.PullRequest {
	pr := model.PullRequest{
		ID:         node.ID,
		Number:     node.Number,
		Title:      node.Title,
		State:      node.State,
		Draft:      node.IsDraft,
		URL:        node.URL,
		CreatedAt:  node.CreatedAt,
		Repository: repo,
		Author: model.User{
			ID:        node.Author.User.ID,
			Login:     node.Author.Login,
			Name:      node.Author.User.Name,
			AvatarURL: node.Author.AvatarURL,
		},
	}
	for _, l := range node.Labels.Nodes {
		pr.Labels = append(pr.Labels, l.Name)
	}
	for _, a := range node.Assignees.Nodes {
		pr.Assignees = append(pr.Assignees, model.User{
			ID:        a.ID,
			Login:     a.Login,
			Name:      a.Name,
			AvatarURL: a.AvatarURL,
		})
	}
	return pr
}

func mergeRequests(m *reviewMerger, requests []prReviewRequest) {
	for _, rr := range requests {
		switch {
		case rr.RequestedReviewer.Team.ID != "":
			m.add(model.Review{
				ID:          rr.RequestedReviewer.Team.ID,
				Name:        rr.RequestedReviewer.Team.Name,
				State:       model.ReviewTeam,
				AsCodeOwner: rr.AsCodeOwner,
			})
		case rr.RequestedReviewer.User.ID != "":
			m.add(model.Review{
				ID:          rr.RequestedReviewer.User.ID,
				Login:       rr.RequestedReviewer.User.Login,
				Name:        rr.RequestedReviewer.User.Name,
				AvatarURL:   rr.RequestedReviewer.User.AvatarURL,
				State:       model.ReviewRequested,
				AsCodeOwner: rr.AsCodeOwner,
			})
		}
	}
}

func mergeSubmitted(m *reviewMerger, state string, author prAuthor) {
	if author.User.ID == "" {
		// Deleted account or bot author, nothing to attribute.
		return
	}
	m.add(model.Review{
		ID:        author.User.ID,
		Login:     author.Login,
		Name:      author.User.Name,
		AvatarURL: author.AvatarURL,
		State:     normalizeReviewState(state),
	})
}
