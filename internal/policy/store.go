package policy

import (
	"context"
	"sync"
	"time"

	"go-bookfetch/internal/models"

	log "github.com/sirupsen/logrus"
)

// Fetcher supplies fresh policy snapshots; the API client satisfies it.
type Fetcher interface {
	GetRequestPolicy(ctx context.Context) (models.RequestPolicy, error)
}

// Store owns the current RequestPolicy snapshot. All reads go through its
// lookups; nothing else mutates the cached policy.
type Store struct {
	fetcher Fetcher
	ttl     time.Duration

	mu        sync.RWMutex
	cached    *models.RequestPolicy
	fetchedAt time.Time
	stale     bool
}

// DefaultTTL bounds how long a non-forced Refresh may serve the cache.
const DefaultTTL = 30 * time.Second

// NewStore creates a policy store. ttl <= 0 uses DefaultTTL.
func NewStore(fetcher Fetcher, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{fetcher: fetcher, ttl: ttl}
}

// Refresh returns the current policy. A forced call always fetches and
// returns the exact value just fetched, so the caller never races a
// concurrent cache overwrite. A non-forced call serves the cache while it is
// fresh and not marked stale.
//
// On fetch failure the last-known policy is kept and returned (possibly
// nil); degradation is logged, never fatal.
func (s *Store) Refresh(ctx context.Context, force bool) *models.RequestPolicy {
	if !force {
		s.mu.RLock()
		fresh := s.cached != nil && !s.stale && time.Since(s.fetchedAt) < s.ttl
		cached := s.cached
		s.mu.RUnlock()
		if fresh {
			return cached
		}
	}

	fetched, err := s.fetcher.GetRequestPolicy(ctx)
	if err != nil {
		s.mu.RLock()
		cached := s.cached
		s.mu.RUnlock()
		log.WithError(err).Warn("Policy refresh failed, continuing with last-known policy")
		return cached
	}

	s.mu.Lock()
	s.cached = &fetched
	s.fetchedAt = time.Now()
	s.stale = false
	s.mu.Unlock()

	// Return the fetched value itself, not a re-read of the shared cache.
	return &fetched
}

// MarkStale schedules a refetch on the next non-forced read. Called after
// mutating actions that may have changed quota or limits.
func (s *Store) MarkStale() {
	s.mu.Lock()
	s.stale = true
	s.mu.Unlock()
}

// Current returns the last-cached policy without any fetch. May be nil.
func (s *Store) Current() *models.RequestPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cached
}

// DefaultMode resolves the default mode for a content type against the
// last-cached policy. It never errors: with no policy loaded it degrades to
// blocked (the most restrictive answer), since admin status is unknown.
func (s *Store) DefaultMode(ct models.ContentType) models.RequestPolicyMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cached == nil {
		return models.ModeBlocked
	}
	return s.cached.ResolvedMode("", ct)
}

// SourceMode resolves the mode for a specific source and content type,
// applying the per-source override table. Same degradation as DefaultMode.
func (s *Store) SourceMode(source string, ct models.ContentType) models.RequestPolicyMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cached == nil {
		return models.ModeBlocked
	}
	return s.cached.ResolvedMode(source, ct)
}

// ModeFor resolves against an explicit policy value rather than the cache.
// Callers holding a forced-refresh result use this so the decision is bound
// to the exact snapshot they fetched.
func ModeFor(p *models.RequestPolicy, source string, ct models.ContentType) models.RequestPolicyMode {
	return p.ResolvedMode(source, ct)
}

// RequestsVisible reports whether the requests surface should show at all:
// requests are enabled and at least one default demands them, or the caller
// is an admin reviewing requests.
func (s *Store) RequestsVisible() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cached == nil || !s.cached.RequestsEnabled {
		return false
	}
	if s.cached.IsAdmin {
		return true
	}
	for _, m := range s.cached.Defaults {
		if m.RequiresRequest() {
			return true
		}
	}
	for _, byType := range s.cached.SourceOverrides {
		for _, m := range byType {
			if m.RequiresRequest() {
				return true
			}
		}
	}
	return false
}
