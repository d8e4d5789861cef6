package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ldevineau/pullwatch/internal/event"
	"github.com/ldevineau/pullwatch/internal/gh"
	"github.com/ldevineau/pullwatch/internal/model"
	"github.com/ldevineau/pullwatch/internal/storage"
)

const (
	selfID = "U_self"
	teamID = "T_backend"
)

var testNow = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

type memPersister struct {
	mu     sync.Mutex
	saves  int
	last   storage.Snapshot
	loaded storage.Snapshot
	ok     bool
}

func (m *memPersister) Save(snap storage.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.last = snap
	return nil
}

func (m *memPersister) Load(string) (storage.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded, m.ok
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRepo(id, fullname string) model.Repository {
	return model.Repository{
		ID:              id,
		Name:            fullname,
		FullName:        fullname,
		UpdatedAt:       testNow.Add(time.Hour),
		HasPullRequests: true,
	}
}

func testPR(id string, repo model.Repository, author string, reviews ...model.Review) model.PullRequest {
	return model.PullRequest{
		ID:         id,
		Number:     1,
		Title:      "change " + id,
		State:      "OPEN",
		URL:        "https://example.com/" + id,
		CreatedAt:  testNow.Add(-time.Hour),
		Author:     model.User{ID: author, Login: author},
		Repository: repo,
		Reviews:    reviews,
	}
}

// newConnectedStore builds a store wired to the mock and establishes the
// identity, leaving team membership to the first refresh.
func newConnectedStore(t *testing.T, mock *gh.Mock, opts ...Option) (*Store, *memPersister, <-chan event.Event) {
	t.Helper()

	mock.ViewerUser = model.User{ID: selfID, Login: "self"}
	if mock.Orgs == nil {
		mock.Orgs = []model.Organization{
			{ID: "O1", Login: "acme", Teams: []model.Team{{ID: teamID, Name: "backend"}}},
		}
	}

	persist := &memPersister{}
	bus := event.NewBus()
	events, cancel := bus.Subscribe(256)
	t.Cleanup(cancel)

	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	s := New(mock, persist, bus, testLogger(), opts...)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return s, persist, events
}

func drainEvents(ch <-chan event.Event) []event.Event {
	var out []event.Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func refresh(t *testing.T, s *Store) {
	t.Helper()
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
}

func TestRefresh_AuthorMatchesDirect(t *testing.T) {
	repo := testRepo("R1", "acme/api")
	pr := testPR("PR1", repo, selfID)
	mock := &gh.Mock{
		Repos:              []model.Repository{repo},
		PullRequestsByRepo: map[string][]model.PullRequest{"R1": {pr}},
		Details:            map[string]model.PullRequest{"PR1": pr},
	}
	s, _, _ := newConnectedStore(t, mock)

	refresh(t, s)

	got := s.PullRequests()
	if len(got) != 1 {
		t.Fatalf("live set has %d entries, want 1", len(got))
	}
	if got[0].Matching != model.MatchDirect {
		t.Errorf("Matching = %q, want direct", got[0].Matching)
	}
	if got[0].Priority != model.PriorityHigh {
		t.Errorf("Priority = %q, want high", got[0].Priority)
	}
}

func TestRefresh_NoDuplicateKeys(t *testing.T) {
	repo := testRepo("R1", "acme/api")
	pr := testPR("PR1", repo, selfID)
	mock := &gh.Mock{
		Repos:              []model.Repository{repo},
		PullRequestsByRepo: map[string][]model.PullRequest{"R1": {pr}},
		// The deep check re-inserts the same pull request; the key must
		// still be unique in the live set.
		Details: map[string]model.PullRequest{"PR1": pr},
	}
	s, _, _ := newConnectedStore(t, mock)

	refresh(t, s)
	refresh(t, s)

	got := s.PullRequests()
	seen := make(map[model.Key]bool)
	for _, pr := range got {
		if seen[pr.Key()] {
			t.Fatalf("duplicate key %v in live set", pr.Key())
		}
		seen[pr.Key()] = true
	}
	if len(got) != 1 {
		t.Errorf("live set has %d entries, want 1", len(got))
	}
}

func TestRefresh_StickyTeamMatching(t *testing.T) {
	repo := testRepo("R1", "acme/api")
	teamReview := model.Review{ID: teamID, Name: "backend", State: model.ReviewTeam}
	withTeam := testPR("PR1", repo, "U_other", teamReview)
	mock := &gh.Mock{
		Repos:              []model.Repository{repo},
		PullRequestsByRepo: map[string][]model.PullRequest{"R1": {withTeam}},
		Details:            map[string]model.PullRequest{"PR1": withTeam},
	}
	s, _, _ := newConnectedStore(t, mock)

	refresh(t, s)
	if got := s.PullRequests(); len(got) != 1 || got[0].Matching != model.MatchTeam {
		t.Fatalf("cycle 1: got %+v, want one team-matched PR", got)
	}

	// Cycle 2: the cheap fetch no longer reports the team review (the team
	// vanished from the requested-reviewers list after reviewing).
	mock.PullRequestsByRepo["R1"] = []model.PullRequest{testPR("PR1", repo, "U_other")}
	refresh(t, s)

	got := s.PullRequests()
	if len(got) != 1 {
		t.Fatalf("cycle 2: live set has %d entries, want 1", len(got))
	}
	if got[0].Matching != model.MatchTeam {
		t.Errorf("cycle 2: Matching = %q, want team (sticky)", got[0].Matching)
	}
	if len(got[0].Reviews) != 1 || got[0].Reviews[0].State != model.ReviewTeam {
		t.Errorf("cycle 2: team review of record not carried over: %+v", got[0].Reviews)
	}
}

func TestRefresh_ClosedPRRemoved(t *testing.T) {
	repo := testRepo("R1", "acme/api")
	pr := testPR("PR1", repo, selfID)
	mock := &gh.Mock{
		Repos:              []model.Repository{repo},
		PullRequestsByRepo: map[string][]model.PullRequest{"R1": {pr}},
		Details:            map[string]model.PullRequest{"PR1": pr},
	}
	s, _, _ := newConnectedStore(t, mock)

	refresh(t, s)
	if got := s.PullRequests(); len(got) != 1 {
		t.Fatalf("cycle 1: live set has %d entries, want 1", len(got))
	}

	mock.PullRequestsByRepo["R1"] = nil
	refresh(t, s)

	if got := s.PullRequests(); len(got) != 0 {
		t.Errorf("cycle 2: live set has %d entries, want 0", len(got))
	}
}

func TestRefresh_ForceCheckDroppedRepository(t *testing.T) {
	repo := testRepo("R1", "acme/api")
	pr := testPR("PR1", repo, selfID)
	mock := &gh.Mock{
		Repos:              []model.Repository{repo},
		PullRequestsByRepo: map[string][]model.PullRequest{"R1": {pr}},
		Details:            map[string]model.PullRequest{"PR1": pr},
	}
	s, _, _ := newConnectedStore(t, mock)

	refresh(t, s)

	// The repository drops from the readable list but still backs a
	// tracked pull request: it must be polled again, and the closure
	// detected.
	mock.Repos = nil
	mock.PullRequestsByRepo["R1"] = nil
	before := len(mock.RepoCalls)
	refresh(t, s)

	polledAgain := false
	for _, id := range mock.RepoCalls[before:] {
		if id == "R1" {
			polledAgain = true
		}
	}
	if !polledAgain {
		t.Fatal("repository backing a tracked PR was not force-checked")
	}
	if got := s.PullRequests(); len(got) != 0 {
		t.Errorf("live set has %d entries, want 0 after closure", len(got))
	}
}

func TestRefresh_DeepCheckPromotesTeamMatch(t *testing.T) {
	repo := testRepo("R1", "acme/api")
	// Cheap fetch misses the on-behalf-of attribution entirely.
	cheap := testPR("PR1", repo, "U_other")
	deep := testPR("PR1", repo, "U_other", model.Review{ID: teamID, Name: "backend", State: model.ReviewTeam})
	mock := &gh.Mock{
		Repos:              []model.Repository{repo},
		PullRequestsByRepo: map[string][]model.PullRequest{"R1": {cheap}},
		Details:            map[string]model.PullRequest{"PR1": deep},
	}
	s, _, _ := newConnectedStore(t, mock)

	refresh(t, s)

	got := s.PullRequests()
	if len(got) != 1 {
		t.Fatalf("live set has %d entries, want 1", len(got))
	}
	if got[0].Matching != model.MatchTeam {
		t.Errorf("Matching = %q, want team from deep check", got[0].Matching)
	}
}

func TestRefresh_NoMatchVerdictIsRemembered(t *testing.T) {
	repo := testRepo("R1", "acme/api")
	pr := testPR("PR1", repo, "U_other")
	mock := &gh.Mock{
		Repos:              []model.Repository{repo},
		PullRequestsByRepo: map[string][]model.PullRequest{"R1": {pr}},
		Details:            map[string]model.PullRequest{"PR1": pr},
	}
	s, _, _ := newConnectedStore(t, mock)

	refresh(t, s)
	refresh(t, s)

	deepChecks := 0
	for _, id := range mock.DetailCalls {
		if id == "PR1" {
			deepChecks++
		}
	}
	if deepChecks != 1 {
		t.Errorf("deep-checked %d times, want 1 (no-match verdict remembered)", deepChecks)
	}
	if got := s.PullRequests(); len(got) != 0 {
		t.Errorf("unmatched PR leaked into the live set: %+v", got)
	}
}

func TestRefresh_IgnoredKeyPrunedAfterClose(t *testing.T) {
	repo := testRepo("R1", "acme/api")
	pr := testPR("PR1", repo, selfID)
	mock := &gh.Mock{
		Repos:              []model.Repository{repo},
		PullRequestsByRepo: map[string][]model.PullRequest{"R1": {pr}},
		Details:            map[string]model.PullRequest{"PR1": pr},
	}
	s, _, _ := newConnectedStore(t, mock)

	refresh(t, s)
	s.MarkIgnored(pr)
	if got := s.PullRequests(); len(got) != 0 {
		t.Fatalf("live set has %d entries after ignore, want 0", len(got))
	}

	// While ignored and still open, the PR stays out of the live set.
	refresh(t, s)
	if got := s.PullRequests(); len(got) != 0 {
		t.Fatalf("ignored PR re-entered the live set: %+v", got)
	}

	// The PR closes; its repository is polled and the id is absent, so the
	// ignored key is purged.
	mock.PullRequestsByRepo["R1"] = nil
	refresh(t, s)

	// The number is reused by a fresh PR with the same id (re-open): no
	// stale ignore entry must suppress it.
	mock.PullRequestsByRepo["R1"] = []model.PullRequest{pr}
	refresh(t, s)
	if got := s.PullRequests(); len(got) != 1 {
		t.Errorf("re-opened PR suppressed by a stale ignore entry, live set = %+v", got)
	}
}

func TestRefresh_Idempotent(t *testing.T) {
	repo := testRepo("R1", "acme/api")
	prs := []model.PullRequest{
		testPR("PR1", repo, selfID),
		testPR("PR2", repo, "U_other", model.Review{ID: teamID, Name: "backend", State: model.ReviewTeam}),
	}
	prs[1].CreatedAt = testNow.Add(-2 * time.Hour)
	mock := &gh.Mock{
		Repos:              []model.Repository{repo},
		PullRequestsByRepo: map[string][]model.PullRequest{"R1": prs},
		Details:            map[string]model.PullRequest{"PR1": prs[0], "PR2": prs[1]},
	}
	s, _, _ := newConnectedStore(t, mock)

	refresh(t, s)
	first := s.PullRequests()
	refresh(t, s)
	second := s.PullRequests()

	if len(first) != len(second) {
		t.Fatalf("live set size changed: %d then %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Matching != second[i].Matching || first[i].Priority != second[i].Priority {
			t.Errorf("entry %d changed: %+v then %+v", i, first[i], second[i])
		}
	}
}

func TestRefresh_RepoFetchFailureKeepsTracked(t *testing.T) {
	repo := testRepo("R1", "acme/api")
	pr := testPR("PR1", repo, selfID)
	mock := &gh.Mock{
		Repos:              []model.Repository{repo},
		PullRequestsByRepo: map[string][]model.PullRequest{"R1": {pr}},
		Details:            map[string]model.PullRequest{"PR1": pr},
	}
	s, _, _ := newConnectedStore(t, mock)

	refresh(t, s)

	mock.PullRequestsErr = map[string]error{"R1": errors.New("boom")}
	refresh(t, s)

	if got := s.PullRequests(); len(got) != 1 {
		t.Errorf("tracked PR dropped on a transient fetch failure, live set = %+v", got)
	}
}

func TestRefresh_BatchedDeepCheckPersistence(t *testing.T) {
	repo := testRepo("R1", "acme/api")
	prs := []model.PullRequest{
		testPR("PR1", repo, "U_other"),
		testPR("PR2", repo, "U_other"),
	}
	mock := &gh.Mock{
		Repos:              []model.Repository{repo},
		PullRequestsByRepo: map[string][]model.PullRequest{"R1": prs},
		Details:            map[string]model.PullRequest{"PR1": prs[0], "PR2": prs[1]},
	}
	s, persist, _ := newConnectedStore(t, mock, WithDeepCheckBatch(1))

	refresh(t, s)

	// Two deep checks at batch size one, plus the final cycle save.
	if persist.saves < 3 {
		t.Errorf("saves = %d, want at least 3 (progress persisted per batch)", persist.saves)
	}
}

func TestRefresh_NotConnected(t *testing.T) {
	s := New(&gh.Mock{}, &memPersister{}, event.NewBus(), testLogger())
	if err := s.Refresh(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Refresh() error = %v, want ErrNotConnected", err)
	}
}

func TestRefresh_EmitsSnapshotEvents(t *testing.T) {
	repo := testRepo("R1", "acme/api")
	pr := testPR("PR1", repo, selfID)
	mock := &gh.Mock{
		Repos:              []model.Repository{repo},
		PullRequestsByRepo: map[string][]model.PullRequest{"R1": {pr}},
		Details:            map[string]model.PullRequest{"PR1": pr},
	}
	s, _, events := newConnectedStore(t, mock)
	drainEvents(events) // connection event

	refresh(t, s)

	var kinds []event.Kind
	var lastSnapshot *event.PullRequestsUpdated
	for _, e := range drainEvents(events) {
		kinds = append(kinds, e.Kind())
		if pu, ok := e.(event.PullRequestsUpdated); ok {
			lastSnapshot = &pu
		}
	}

	if !contains(kinds, event.KindStatusMessage) {
		t.Error("no status messages emitted during refresh")
	}
	if !contains(kinds, event.KindOrganizationsUpdated) {
		t.Error("no organizations event emitted")
	}
	if lastSnapshot == nil {
		t.Fatal("no pull-requests event emitted")
	}
	if len(lastSnapshot.PullRequests) != 1 {
		t.Errorf("snapshot has %d entries, want 1", len(lastSnapshot.PullRequests))
	}
	if !lastSnapshot.LastCheck.Equal(testNow) {
		t.Errorf("snapshot LastCheck = %v, want %v", lastSnapshot.LastCheck, testNow)
	}
}

func contains(kinds []event.Kind, kind event.Kind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func TestToggleFilter(t *testing.T) {
	s, _, events := newConnectedStore(t, &gh.Mock{})
	drainEvents(events)

	if !s.IsFilterActive("state", "draft") {
		t.Error("unknown filter must default to active")
	}

	if active := s.ToggleFilter("state", "draft"); active {
		t.Error("first toggle must deactivate the filter")
	}
	if s.IsFilterActive("state", "draft") {
		t.Error("filter still active after first toggle")
	}
	if active := s.ToggleFilter("state", "draft"); !active {
		t.Error("second toggle must reactivate the filter")
	}

	var toggles []event.FilterToggled
	for _, e := range drainEvents(events) {
		if ft, ok := e.(event.FilterToggled); ok {
			toggles = append(toggles, ft)
		}
	}
	if len(toggles) != 2 {
		t.Fatalf("got %d filter events, want 2", len(toggles))
	}
	if toggles[0].Active || !toggles[1].Active {
		t.Errorf("filter events = %+v", toggles)
	}
}

func TestSetSortPreference(t *testing.T) {
	s, persist, _ := newConnectedStore(t, &gh.Mock{})

	if err := s.SetSortPreference("priority"); err != nil {
		t.Fatalf("SetSortPreference() error = %v", err)
	}
	if got := s.SortPreference(); got != SortByPriority {
		t.Errorf("SortPreference() = %q, want priority", got)
	}
	if persist.saves == 0 {
		t.Error("sort preference change was not persisted")
	}

	if err := s.SetSortPreference("alphabetical"); err == nil {
		t.Error("invalid sort preference accepted")
	}
}

func TestInitialize_ReplaysState(t *testing.T) {
	repo := testRepo("R1", "acme/api")
	pr := testPR("PR1", repo, selfID)
	pr.Matching = model.MatchDirect
	pr.Priority = model.PriorityHigh

	mock := &gh.Mock{}
	persistLoaded := storage.Snapshot{
		LastCheck:     testNow.Add(-time.Hour),
		User:          model.User{ID: selfID, Login: "self"},
		TeamIDs:       []string{teamID},
		Organizations: []model.Organization{{ID: "O1", Login: "acme"}},
		Repositories:  []model.Repository{repo},
		PullRequests:  []model.PullRequest{pr},
		Filters:       map[string]bool{"state-draft": false},
		SortBy:        SortByPriority,
	}

	s, persist, events := newConnectedStore(t, mock)
	persist.loaded = persistLoaded
	persist.ok = true
	drainEvents(events)

	s.Initialize()

	if got := s.PullRequests(); len(got) != 1 || got[0].ID != "PR1" {
		t.Fatalf("restored live set = %+v", got)
	}
	if got := s.LastCheck(); !got.Equal(persistLoaded.LastCheck) {
		t.Errorf("LastCheck = %v, want %v", got, persistLoaded.LastCheck)
	}
	if s.SortPreference() != SortByPriority {
		t.Errorf("SortPreference() = %q, want priority", s.SortPreference())
	}
	if s.IsFilterActive("state", "draft") {
		t.Error("restored filter state lost")
	}

	replayed := drainEvents(events)
	var kinds []event.Kind
	for _, e := range replayed {
		kinds = append(kinds, e.Kind())
	}
	for _, want := range []event.Kind{
		event.KindOrganizationsUpdated,
		event.KindPullRequestsUpdated,
		event.KindFilterToggled,
		event.KindStatusMessage,
	} {
		if !contains(kinds, want) {
			t.Errorf("missing replayed event %q, got %v", want, kinds)
		}
	}
}
