package store

import (
	"context"
	"fmt"

	"github.com/ldevineau/pullwatch/internal/event"
	"github.com/ldevineau/pullwatch/internal/model"
)

// Connect establishes the identity of the signed-in user and emits a
// connection event either way.
func (s *Store) Connect(ctx context.Context) error {
	user, err := s.client.Viewer(ctx)

	s.mu.Lock()
	if err != nil {
		s.user = model.User{}
	} else {
		s.user = user
	}
	connected := s.user.ID != ""
	s.rebuildMatcherLocked()
	s.mu.Unlock()

	s.bus.Publish(event.ConnectionChanged{IsConnected: connected})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	s.logger.Info("connected", "login", user.Login)
	return nil
}

// ToggleFilter flips a named boolean filter. A filter toggled for the first
// time starts inactive, since unknown filters default to active. The change
// is persisted and announced.
func (s *Store) ToggleFilter(kind, value string) bool {
	key := kind + "-" + value

	s.mu.Lock()
	active, known := s.filters[key]
	if !known {
		active = false
	} else {
		active = !active
	}
	s.filters[key] = active
	s.mu.Unlock()

	s.logger.Debug("filter toggled", "filter", key, "active", active)
	s.bus.Publish(event.FilterToggled{FilterKind: kind, Value: value, Active: active})
	s.save()
	return active
}

// IsFilterActive reports the state of a named filter; filters never toggled
// are active.
func (s *Store) IsFilterActive(kind, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, known := s.filters[kind+"-"+value]
	if !known {
		return true
	}
	return active
}

// MarkIgnored removes the pull request from the live set and remembers the
// key so later cycles skip it until it is confirmed closed.
func (s *Store) MarkIgnored(pr model.PullRequest) {
	key := pr.Key()

	s.mu.Lock()
	s.ignored[key] = struct{}{}
	delete(s.live, key)
	delete(s.noMatching, key)
	prs := s.sortedLocked()
	lastCheck := s.lastCheck
	s.mu.Unlock()

	s.logger.Info("pull request ignored", "pr", pr.URL)
	s.bus.Publish(event.PullRequestsUpdated{PullRequests: prs, LastCheck: lastCheck})
	s.save()
}

// SetSortPreference switches the presentation ordering and re-emits the
// live set.
func (s *Store) SetSortPreference(name string) error {
	if name != SortByCreated && name != SortByPriority {
		return fmt.Errorf("unknown sort preference %q", name)
	}

	s.mu.Lock()
	s.sortBy = name
	prs := s.sortedLocked()
	lastCheck := s.lastCheck
	s.mu.Unlock()

	s.bus.Publish(event.PullRequestsUpdated{PullRequests: prs, LastCheck: lastCheck})
	s.save()
	return nil
}

// SortPreference returns the current presentation ordering.
func (s *Store) SortPreference() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortBy
}
