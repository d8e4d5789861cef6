package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ldevineau/pullwatch/internal/event"
	"github.com/ldevineau/pullwatch/internal/model"
)

// ErrRefreshInFlight is returned when a refresh is requested while one is
// already running. The request is dropped, not queued.
var ErrRefreshInFlight = errors.New("refresh already in flight")

// ErrNotConnected is returned when a refresh is requested before Connect
// has established an identity.
var ErrNotConnected = errors.New("not connected")

// Refresh runs one full reconciliation cycle: organizations, repository
// selection, cheap fetch and classification, deep checks, pruning, and a
// final save. Remote failures degrade to "no data this call"; only a
// cancelled context aborts the cycle, and then lastCheck is not advanced.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrRefreshInFlight
	}
	if s.user.ID == "" {
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.checkOrganizations(ctx)
	if err := s.checkPullRequests(ctx); err != nil {
		return err
	}
	s.save()
	return nil
}

// checkOrganizations replaces the organization list and team ids wholesale.
// On failure the previous cycle's data is kept.
func (s *Store) checkOrganizations(ctx context.Context) {
	s.publishStatus("Retrieving organizations and teams...")

	s.mu.Lock()
	login := s.user.Login
	user := s.user
	s.mu.Unlock()

	orgs, err := s.client.Organizations(ctx, login)
	if err != nil {
		s.logger.Error("failed to fetch organizations", "err", err)
		return
	}

	var teamIDs []string
	for _, org := range orgs {
		for _, team := range org.Teams {
			teamIDs = append(teamIDs, team.ID)
		}
	}

	s.mu.Lock()
	s.orgs = orgs
	s.teamIDs = teamIDs
	s.rebuildMatcherLocked()
	s.mu.Unlock()

	s.bus.Publish(event.OrganizationsUpdated{User: user, Organizations: orgs})
}

func (s *Store) checkPullRequests(ctx context.Context) error {
	s.publishStatus("Fetching repositories...")
	now := s.now()

	repos, err := s.client.Repositories(ctx)

	s.mu.Lock()
	if err != nil {
		// Absent data, not an empty account: keep the previous list so
		// tracked pull requests are still re-polled this cycle.
		s.logger.Error("failed to fetch repositories", "err", err)
		repos = s.repos
	} else {
		s.repos = repos
	}
	matcher := s.matcher
	lastCheck := s.lastCheck
	prev := make(map[model.Key]*model.PullRequest, len(s.live))
	for k, pr := range s.live {
		prev[k] = pr
	}
	ignored := make(map[model.Key]struct{}, len(s.ignored))
	for k := range s.ignored {
		ignored[k] = struct{}{}
	}
	noMatching := make(map[model.Key]struct{}, len(s.noMatching))
	for k := range s.noMatching {
		noMatching[k] = struct{}{}
	}
	s.mu.Unlock()

	// Repository selection: recently updated repositories with open pull
	// requests, plus every repository backing a tracked pull request
	// (force-check) so closures are still detected once a repository falls
	// silent or drops from the readable list.
	var candidates []model.Repository
	candidateIDs := make(map[string]bool)
	for _, repo := range repos {
		if !repo.HasPullRequests {
			continue
		}
		if !lastCheck.IsZero() && repo.UpdatedAt.Before(lastCheck) {
			continue
		}
		candidates = append(candidates, repo)
		candidateIDs[repo.ID] = true
	}
	for _, pr := range prev {
		if !candidateIDs[pr.Repository.ID] {
			candidates = append(candidates, pr.Repository)
			candidateIDs[pr.Repository.ID] = true
		}
	}
	s.logger.Info("repositories to check", "count", len(candidates), "total", len(repos))

	next := make(map[model.Key]*model.PullRequest)
	polled := make(map[string]map[string]bool) // repo id -> pr ids returned
	var deepQueue []model.PullRequest

	for i, repo := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.publishStatus(fmt.Sprintf("Checking repository: %s [%d of %d]", repo.FullName, i+1, len(candidates)))

		prs, err := s.client.PullRequests(ctx, repo)
		if err != nil {
			// Unknown fate for this repository: carry the previous records
			// so a transient failure never drops a tracked pull request.
			s.logger.Error("failed to fetch pull requests", "repo", repo.FullName, "err", err)
			for k, pr := range prev {
				if k.RepoID == repo.ID {
					next[k] = pr
				}
			}
			continue
		}

		seen := make(map[string]bool, len(prs))
		for i := range prs {
			pr := prs[i]
			key := pr.Key()
			seen[pr.ID] = true

			if _, skip := ignored[key]; skip {
				continue
			}

			prevPR := prev[key]
			mt := matcher.Type(&pr, prevPR)
			if mt == model.MatchNone && prevPR != nil && prevPR.Matching != model.MatchNone {
				// Sticky: a transient gap in the cheap query must not drop
				// an established classification.
				mt = prevPR.Matching
			}
			if prevPR == nil || mt == model.MatchNone {
				// First sighting or unresolved: the deep fetch recovers
				// team attribution the cheap query under-reports.
				deepQueue = append(deepQueue, pr)
			}
			if mt == model.MatchNone {
				continue
			}

			pr.Matching = mt
			carryTeamReviews(&pr, prevPR)
			model.SortReviews(pr.Reviews)
			pr.Priority = matcher.Priority(&pr, now)
			next[key] = &pr
		}
		polled[repo.ID] = seen
	}

	s.emitPullRequests(next, now)

	if err := s.deepCheckPass(ctx, deepQueue, next, noMatching, ignored, now); err != nil {
		return err
	}

	// Pruning: a bookkeeping key is dropped once its repository was polled
	// this cycle and the pull request was not returned (closed or merged).
	// Keys of unpolled repositories survive, their fate is unknown.
	pruneKeys(noMatching, polled)
	var ignoredGone []model.Key
	for key := range ignored {
		if seen, ok := polled[key.RepoID]; ok && !seen[key.PRID] {
			ignoredGone = append(ignoredGone, key)
		}
	}

	s.mu.Lock()
	s.live = next
	s.noMatching = noMatching
	for _, key := range ignoredGone {
		delete(s.ignored, key)
	}
	s.lastCheck = now
	prs := s.sortedLocked()
	s.mu.Unlock()

	s.publishStatus("Last update: " + now.Local().Format(time.DateTime))
	s.bus.Publish(event.PullRequestsUpdated{PullRequests: prs, LastCheck: now})
	return nil
}

// deepCheckPass resolves queued pull requests with the expensive detail
// fetch. Verdicts of "no match" are remembered in the noMatching set so the
// cost is paid once per pull request. Progress is persisted every
// deepCheckBatch checks.
func (s *Store) deepCheckPass(ctx context.Context, queue []model.PullRequest, next map[model.Key]*model.PullRequest, noMatching, ignored map[model.Key]struct{}, now time.Time) error {
	s.mu.Lock()
	matcher := s.matcher
	s.mu.Unlock()

	checked := 0
	inserted := false
	for _, pr := range queue {
		key := pr.Key()
		if _, skip := noMatching[key]; skip {
			continue
		}
		if _, skip := ignored[key]; skip {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		s.publishStatus(fmt.Sprintf("Checking pull request: %s #%d", pr.Repository.FullName, pr.Number))

		detail, err := s.client.PullRequestDetail(ctx, pr.Repository, pr.ID)
		if err != nil {
			s.logger.Error("failed to fetch pull request detail", "pr", pr.URL, "err", err)
			continue
		}
		detail.Repository = pr.Repository

		// previous = nil forces a fresh, authoritative evaluation.
		mt := matcher.Type(&detail, nil)
		if mt == model.MatchNone {
			noMatching[key] = struct{}{}
		} else {
			detail.Matching = mt
			model.SortReviews(detail.Reviews)
			detail.Priority = matcher.Priority(&detail, now)
			next[key] = &detail
			inserted = true
		}

		checked++
		if checked%s.deepCheckBatch == 0 {
			s.saveProgress(next, noMatching)
		}
	}

	if inserted {
		s.emitPullRequests(next, now)
	}
	return nil
}

// saveProgress persists an intermediate snapshot mid deep-check so an
// interruption loses at most one batch of verdicts.
func (s *Store) saveProgress(next map[model.Key]*model.PullRequest, noMatching map[model.Key]struct{}) {
	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	snap.PullRequests = flatten(next)
	snap.NoMatching = keyList(noMatching)
	if err := s.persist.Save(snap); err != nil {
		s.logger.Error("failed to save deep-check progress", "err", err)
	}
}

func (s *Store) emitPullRequests(set map[model.Key]*model.PullRequest, lastCheck time.Time) {
	s.mu.Lock()
	sortBy := s.sortBy
	s.mu.Unlock()

	prs := flatten(set)
	model.SortPullRequests(prs, sortBy)
	s.bus.Publish(event.PullRequestsUpdated{PullRequests: prs, LastCheck: lastCheck})
}

func flatten(set map[model.Key]*model.PullRequest) []model.PullRequest {
	prs := make([]model.PullRequest, 0, len(set))
	for _, pr := range set {
		prs = append(prs, *pr)
	}
	return prs
}

// carryTeamReviews keeps team reviews of record that the fresh fetch no
// longer reports: a team silently vanishes from the requested-reviewers
// list once someone reviews on its behalf.
func carryTeamReviews(pr, prev *model.PullRequest) {
	if prev == nil {
		return
	}
	have := make(map[string]bool, len(pr.Reviews))
	for _, r := range pr.Reviews {
		have[r.ID] = true
	}
	for _, r := range prev.Reviews {
		if r.State == model.ReviewTeam && !have[r.ID] {
			pr.Reviews = append(pr.Reviews, r)
		}
	}
}

func pruneKeys(set map[model.Key]struct{}, polled map[string]map[string]bool) {
	for key := range set {
		if seen, ok := polled[key.RepoID]; ok && !seen[key.PRID] {
			delete(set, key)
		}
	}
}
