// Package storage persists the reconciliation state to an embedded
// key-value file. Each top-level record is an independently-addressable
// serialized value guarded on load by a schema version check and a user
// identity check; any mismatch or decode failure wipes the stored state and
// starts cold.
package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ldevineau/pullwatch/internal/model"
)

// SchemaVersion invalidates stored data when the serialized format changes.
const SchemaVersion = "2026-07-02"

var bucketName = []byte("pullwatch")

const (
	keyVersion       = "version"
	keyLastCheck     = "last_check"
	keyUser          = "user"
	keyTeamIDs       = "team_ids"
	keyOrganizations = "organizations"
	keyRepositories  = "repositories"
	keyPullRequests  = "pull_requests"
	keyNoMatching    = "no_matching"
	keyIgnored       = "ignored"
	keyFilters       = "filters"
	keySortBy        = "sort_by"
)

// Snapshot is the full persisted state.
type Snapshot struct {
	LastCheck     time.Time
	User          model.User
	TeamIDs       []string
	Organizations []model.Organization
	Repositories  []model.Repository
	PullRequests  []model.PullRequest
	NoMatching    []model.Key
	Ignored       []model.Key
	Filters       map[string]bool
	SortBy        string
}

// Store is the persistence adapter over a bbolt file.
type Store struct {
	db     *bolt.DB
	logger *slog.Logger
}

func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state file %s: %w", path, err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes every record of the snapshot. The version tag is written
// alongside so a later Load can validate the format.
func (s *Store) Save(snap Snapshot) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}

		if err := b.Put([]byte(keyVersion), []byte(SchemaVersion)); err != nil {
			return err
		}
		millis := strconv.FormatInt(snap.LastCheck.UnixMilli(), 10)
		if err := b.Put([]byte(keyLastCheck), []byte(millis)); err != nil {
			return err
		}

		records := []struct {
			key   string
			value interface{}
		}{
			{keyUser, snap.User},
			{keyTeamIDs, snap.TeamIDs},
			{keyOrganizations, snap.Organizations},
			{keyRepositories, snap.Repositories},
			{keyPullRequests, snap.PullRequests},
			{keyNoMatching, snap.NoMatching},
			{keyIgnored, snap.Ignored},
			{keyFilters, snap.Filters},
			{keySortBy, snap.SortBy},
		}
		for _, r := range records {
			data, err := json.Marshal(r.value)
			if err != nil {
				return fmt.Errorf("encode %s: %w", r.key, err)
			}
			if err := b.Put([]byte(r.key), data); err != nil {
				return fmt.Errorf("put %s: %w", r.key, err)
			}
		}
		return nil
	})
}

// Load reads the snapshot back. The boolean is false when no usable state
// exists: version mismatch, user mismatch or a decode failure all wipe the
// stored state and start cold rather than surfacing an error.
func (s *Store) Load(currentUserID string) (Snapshot, bool) {
	var snap Snapshot
	found := false

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}

		if v := string(b.Get([]byte(keyVersion))); v != SchemaVersion {
			s.logger.Info("stored state version changed, starting cold", "stored", v, "current", SchemaVersion)
			return errStale
		}

		if err := decode(b, keyUser, &snap.User); err != nil {
			return err
		}
		if snap.User.ID != "" && currentUserID != "" && snap.User.ID != currentUserID {
			s.logger.Info("stored state belongs to another user, starting cold")
			return errStale
		}

		if raw := b.Get([]byte(keyLastCheck)); raw != nil {
			millis, err := strconv.ParseInt(string(raw), 10, 64)
			if err != nil {
				return fmt.Errorf("decode %s: %w", keyLastCheck, err)
			}
			snap.LastCheck = time.UnixMilli(millis)
		}

		if err := decode(b, keyTeamIDs, &snap.TeamIDs); err != nil {
			return err
		}
		if err := decode(b, keyOrganizations, &snap.Organizations); err != nil {
			return err
		}
		if err := decode(b, keyRepositories, &snap.Repositories); err != nil {
			return err
		}
		if err := decode(b, keyPullRequests, &snap.PullRequests); err != nil {
			return err
		}
		if err := decode(b, keyNoMatching, &snap.NoMatching); err != nil {
			return err
		}
		if err := decode(b, keyIgnored, &snap.Ignored); err != nil {
			return err
		}
		if err := decode(b, keyFilters, &snap.Filters); err != nil {
			return err
		}
		if err := decode(b, keySortBy, &snap.SortBy); err != nil {
			return err
		}

		found = true
		return nil
	})
	if err != nil {
		if err != errStale {
			s.logger.Error("failed to load stored state, starting cold", "err", err)
		}
		s.wipe()
		return Snapshot{}, false
	}
	return snap, found
}

// Wipe removes all persisted state.
func (s *Store) Wipe() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketName) == nil {
			return nil
		}
		return tx.DeleteBucket(bucketName)
	})
}

func (s *Store) wipe() {
	if err := s.Wipe(); err != nil {
		s.logger.Error("failed to wipe stored state", "err", err)
	}
}

// errStale marks state that is present but unusable; already logged.
var errStale = fmt.Errorf("stale state")

func decode(b *bolt.Bucket, key string, out interface{}) error {
	raw := b.Get([]byte(key))
	if raw == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
