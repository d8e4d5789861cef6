// Package store is the stateful core: it merges freshly fetched pull
// requests with previously known ones, keeps information the latest fetch
// cannot cheaply re-derive, computes derived fields, prunes stale entries
// and owns persistence. All shared state is guarded by one mutex; callers
// serialize through the exported methods.
package store

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ldevineau/pullwatch/internal/event"
	"github.com/ldevineau/pullwatch/internal/gh"
	"github.com/ldevineau/pullwatch/internal/matching"
	"github.com/ldevineau/pullwatch/internal/model"
	"github.com/ldevineau/pullwatch/internal/storage"
)

// Sort preference names accepted by SetSortPreference.
const (
	SortByCreated  = "created"
	SortByPriority = "priority"
)

// DefaultDeepCheckBatch is how many deep checks run between intermediate
// saves, bounding data loss on interruption.
const DefaultDeepCheckBatch = 50

// Persister abstracts the durable medium the store saves to.
type Persister interface {
	Save(storage.Snapshot) error
	Load(currentUserID string) (storage.Snapshot, bool)
}

type Store struct {
	logger  *slog.Logger
	bus     *event.Bus
	client  gh.API
	persist Persister

	staleAfter     time.Duration
	depsLabel      string
	deepCheckBatch int
	now            func() time.Time

	mu         sync.Mutex
	running    bool
	user       model.User
	teamIDs    []string
	orgs       []model.Organization
	repos      []model.Repository
	live       map[model.Key]*model.PullRequest
	noMatching map[model.Key]struct{}
	ignored    map[model.Key]struct{}
	filters    map[string]bool
	sortBy     string
	lastCheck  time.Time
	matcher    *matching.Matcher
}

type Option func(*Store)

func WithStaleAfter(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

func WithDependenciesLabel(label string) Option {
	return func(s *Store) {
		if label != "" {
			s.depsLabel = label
		}
	}
}

func WithDeepCheckBatch(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.deepCheckBatch = n
		}
	}
}

// WithSortBy sets the initial sort preference; a persisted preference
// loaded by Initialize takes priority over it.
func WithSortBy(name string) Option {
	return func(s *Store) {
		if name == SortByCreated || name == SortByPriority {
			s.sortBy = name
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func New(client gh.API, persist Persister, bus *event.Bus, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		logger:         logger,
		bus:            bus,
		client:         client,
		persist:        persist,
		staleAfter:     matching.DefaultStaleAfter,
		depsLabel:      matching.DefaultDependenciesLabel,
		deepCheckBatch: DefaultDeepCheckBatch,
		now:            time.Now,
		live:           make(map[model.Key]*model.PullRequest),
		noMatching:     make(map[model.Key]struct{}),
		ignored:        make(map[model.Key]struct{}),
		filters:        make(map[string]bool),
		sortBy:         SortByCreated,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize loads persisted state for the connected user and replays the
// organization, pull-request and filter events so a freshly attached view
// is primed without waiting for the first cycle. Connect must have
// succeeded first; otherwise the identity guard rejects everything.
func (s *Store) Initialize() {
	s.mu.Lock()
	userID := s.user.ID
	s.mu.Unlock()

	snap, ok := s.persist.Load(userID)
	if !ok {
		return
	}

	s.mu.Lock()
	s.lastCheck = snap.LastCheck
	s.teamIDs = snap.TeamIDs
	s.orgs = snap.Organizations
	s.repos = snap.Repositories
	s.live = make(map[model.Key]*model.PullRequest, len(snap.PullRequests))
	for i := range snap.PullRequests {
		pr := snap.PullRequests[i]
		s.live[pr.Key()] = &pr
	}
	s.noMatching = keySet(snap.NoMatching)
	s.ignored = keySet(snap.Ignored)
	if snap.Filters != nil {
		s.filters = snap.Filters
	}
	if snap.SortBy != "" {
		s.sortBy = snap.SortBy
	}
	s.rebuildMatcherLocked()

	user := s.user
	orgs := s.orgs
	prs := s.sortedLocked()
	lastCheck := s.lastCheck
	filters := make(map[string]bool, len(s.filters))
	for k, v := range s.filters {
		filters[k] = v
	}
	s.mu.Unlock()

	s.logger.Info("restored state", "pull_requests", len(prs), "repositories", len(snap.Repositories), "last_check", lastCheck)

	s.bus.Publish(event.OrganizationsUpdated{User: user, Organizations: orgs})
	s.bus.Publish(event.PullRequestsUpdated{PullRequests: prs, LastCheck: lastCheck})
	for key, active := range filters {
		kind, value, ok := strings.Cut(key, "-")
		if !ok {
			continue
		}
		s.bus.Publish(event.FilterToggled{FilterKind: kind, Value: value, Active: active})
	}
	if !lastCheck.IsZero() {
		s.publishStatus("Last update: " + lastCheck.Local().Format(time.DateTime))
	}
}

// Shutdown writes a final snapshot.
func (s *Store) Shutdown() {
	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if err := s.persist.Save(snap); err != nil {
		s.logger.Error("failed to save state on shutdown", "err", err)
	}
}

// Running reports whether a refresh cycle is in flight.
func (s *Store) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Connected reports whether an identity has been established.
func (s *Store) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.ID != ""
}

func (s *Store) User() model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *Store) LastCheck() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCheck
}

// PullRequests returns the live set ordered by the current sort preference.
func (s *Store) PullRequests() []model.PullRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

func (s *Store) sortedLocked() []model.PullRequest {
	prs := make([]model.PullRequest, 0, len(s.live))
	for _, pr := range s.live {
		prs = append(prs, *pr)
	}
	model.SortPullRequests(prs, s.sortBy)
	return prs
}

func (s *Store) rebuildMatcherLocked() {
	s.matcher = matching.New(s.user.ID, s.teamIDs,
		matching.WithStaleAfter(s.staleAfter),
		matching.WithDependenciesLabel(s.depsLabel))
}

func (s *Store) snapshotLocked() storage.Snapshot {
	snap := storage.Snapshot{
		LastCheck:     s.lastCheck,
		User:          s.user,
		TeamIDs:       s.teamIDs,
		Organizations: s.orgs,
		Repositories:  s.repos,
		PullRequests:  s.sortedLocked(),
		Filters:       s.filters,
		SortBy:        s.sortBy,
	}
	snap.NoMatching = keyList(s.noMatching)
	snap.Ignored = keyList(s.ignored)
	return snap
}

func (s *Store) save() {
	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if err := s.persist.Save(snap); err != nil {
		s.logger.Error("failed to save state", "err", err)
	}
}

func (s *Store) publishStatus(message string) {
	s.bus.Publish(event.StatusMessage{Message: message})
}

func keySet(keys []model.Key) map[model.Key]struct{} {
	set := make(map[model.Key]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

func keyList(set map[model.Key]struct{}) []model.Key {
	keys := make([]model.Key, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	return keys
}
