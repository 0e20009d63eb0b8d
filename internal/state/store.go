package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"git.mills.io/prologic/bitcask"
	log "github.com/sirupsen/logrus"

	"go-bookfetch/internal/models"
)

// Feed-item key prefixes. Dismissal keys are weak references: they name a
// task or request id but never own it.
const (
	KeyPrefixDownload = "download:"
	KeyPrefixRequest  = "request:"
)

// DownloadKey builds the feed key for a download task.
func DownloadKey(taskID string) string { return KeyPrefixDownload + taskID }

// RequestKey builds the feed key for a request record.
func RequestKey(requestID string) string { return KeyPrefixRequest + requestID }

// bitcask key namespaces
const (
	nsDismissed = "dismissed/"
	nsTracked   = "tracked/"
	keyActingAs = "acting_as"
)

// Store is the client-side durable state: the dismissal set, the
// tracked-release sets per metadata book, and the acting-as selection.
// It is the single owner of all three; everything else reads through it.
type Store struct {
	db *bitcask.Bitcask
}

// Open initializes the store at path, creating parent directories.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create state directory %s: %w", dir, err)
		}
	}
	db, err := bitcask.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store at %s: %w", path, err)
	}
	log.Debugf("State store opened at %s", path)
	return &Store{db: db}, nil
}

// Close flushes and closes the underlying store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dismiss records a feed-item key as dismissed. Idempotent: dismissing an
// already-dismissed key is a no-op.
func (s *Store) Dismiss(key string) error {
	if key == "" {
		return nil
	}
	if err := s.db.Put([]byte(nsDismissed+key), []byte{1}); err != nil {
		return fmt.Errorf("dismissing %s: %w", key, err)
	}
	return nil
}

// DismissAll dismisses every key in the batch, continuing past individual
// failures.
func (s *Store) DismissAll(keys []string) error {
	var firstErr error
	for _, key := range keys {
		if err := s.Dismiss(key); err != nil {
			log.WithError(err).Warnf("Failed to dismiss %s", key)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// IsDismissed reports whether a feed-item key has been dismissed.
func (s *Store) IsDismissed(key string) bool {
	return s.db.Has([]byte(nsDismissed + key))
}

// DismissedKeys returns every dismissed feed-item key.
func (s *Store) DismissedKeys() []string {
	var keys []string
	err := s.db.Scan([]byte(nsDismissed), func(k []byte) error {
		keys = append(keys, strings.TrimPrefix(string(k), nsDismissed))
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("Failed to scan dismissed keys")
	}
	return keys
}

// Undismiss removes a dismissal, restoring the item to the feed.
func (s *Store) Undismiss(key string) error {
	err := s.db.Delete([]byte(nsDismissed + key))
	if err != nil && !errors.Is(err, bitcask.ErrKeyNotFound) {
		return fmt.Errorf("undismissing %s: %w", key, err)
	}
	return nil
}

// TrackRelease records that a release task is being tracked against its
// parent metadata book, so a later complete status on the release id can
// mark the parent fulfilled.
func (s *Store) TrackRelease(bookID, releaseTaskID string) error {
	set, err := s.trackedSet(bookID)
	if err != nil {
		return err
	}
	for _, id := range set {
		if id == releaseTaskID {
			return nil
		}
	}
	set = append(set, releaseTaskID)
	return s.putTrackedSet(bookID, set)
}

// TrackedReleases returns the release task ids tracked against a book.
func (s *Store) TrackedReleases(bookID string) []string {
	set, err := s.trackedSet(bookID)
	if err != nil {
		log.WithError(err).Warnf("Failed to read tracked releases for book %s", bookID)
		return nil
	}
	return set
}

func (s *Store) trackedSet(bookID string) ([]string, error) {
	raw, err := s.db.Get([]byte(nsTracked + bookID))
	if errors.Is(err, bitcask.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading tracked releases for %s: %w", bookID, err)
	}
	var set []string
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("decoding tracked releases for %s: %w", bookID, err)
	}
	return set, nil
}

func (s *Store) putTrackedSet(bookID string, set []string) error {
	raw, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encoding tracked releases for %s: %w", bookID, err)
	}
	if err := s.db.Put([]byte(nsTracked+bookID), raw); err != nil {
		return fmt.Errorf("storing tracked releases for %s: %w", bookID, err)
	}
	return nil
}

// SetActingAs persists the delegate selection.
func (s *Store) SetActingAs(user models.ActingAsUser) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encoding acting-as selection: %w", err)
	}
	if err := s.db.Put([]byte(keyActingAs), raw); err != nil {
		return fmt.Errorf("storing acting-as selection: %w", err)
	}
	log.WithField("username", user.Username).Info("Acting-as selection stored")
	return nil
}

// ActingAs returns the stored delegate selection, or nil when none is set.
func (s *Store) ActingAs() *models.ActingAsUser {
	raw, err := s.db.Get([]byte(keyActingAs))
	if errors.Is(err, bitcask.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		log.WithError(err).Warn("Failed to read acting-as selection")
		return nil
	}
	var user models.ActingAsUser
	if err := json.Unmarshal(raw, &user); err != nil {
		log.WithError(err).Warn("Discarding unreadable acting-as selection")
		_ = s.ClearActingAs()
		return nil
	}
	return &user
}

// ClearActingAs removes the delegate selection.
func (s *Store) ClearActingAs() error {
	err := s.db.Delete([]byte(keyActingAs))
	if err != nil && !errors.Is(err, bitcask.ErrKeyNotFound) {
		return fmt.Errorf("clearing acting-as selection: %w", err)
	}
	return nil
}
