package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-bookfetch/internal/models"
)

// fakeFetcher hands out a scripted sequence of policies and errors.
type fakeFetcher struct {
	calls    int
	policies []models.RequestPolicy
	errs     []error
}

func (f *fakeFetcher) GetRequestPolicy(ctx context.Context) (models.RequestPolicy, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return models.RequestPolicy{}, f.errs[i]
	}
	if i < len(f.policies) {
		return f.policies[i], nil
	}
	return f.policies[len(f.policies)-1], nil
}

func ebookPolicy(mode models.RequestPolicyMode) models.RequestPolicy {
	return models.RequestPolicy{
		Defaults: map[models.ContentType]models.RequestPolicyMode{
			models.ContentTypeEbook: mode,
		},
	}
}

func TestForcedRefreshAlwaysFetches(t *testing.T) {
	fetcher := &fakeFetcher{policies: []models.RequestPolicy{
		ebookPolicy(models.ModeDownload),
		ebookPolicy(models.ModeRequestBook),
	}}
	store := NewStore(fetcher, time.Hour)

	first := store.Refresh(context.Background(), true)
	require.NotNil(t, first)
	assert.Equal(t, models.ModeDownload, first.ResolvedMode("", models.ContentTypeEbook))

	// Cache is fresh, a forced refresh must fetch anyway and return the
	// value it just fetched.
	second := store.Refresh(context.Background(), true)
	require.NotNil(t, second)
	assert.Equal(t, models.ModeRequestBook, second.ResolvedMode("", models.ContentTypeEbook))
	assert.Equal(t, 2, fetcher.calls)
}

func TestNonForcedRefreshServesCache(t *testing.T) {
	fetcher := &fakeFetcher{policies: []models.RequestPolicy{ebookPolicy(models.ModeDownload)}}
	store := NewStore(fetcher, time.Hour)

	store.Refresh(context.Background(), true)
	store.Refresh(context.Background(), false)
	store.Refresh(context.Background(), false)

	assert.Equal(t, 1, fetcher.calls, "fresh cache should serve non-forced reads")
}

func TestMarkStaleForcesRefetch(t *testing.T) {
	fetcher := &fakeFetcher{policies: []models.RequestPolicy{
		ebookPolicy(models.ModeDownload),
		ebookPolicy(models.ModeBlocked),
	}}
	store := NewStore(fetcher, time.Hour)

	store.Refresh(context.Background(), true)
	store.MarkStale()

	p := store.Refresh(context.Background(), false)
	require.NotNil(t, p)
	assert.Equal(t, models.ModeBlocked, p.ResolvedMode("", models.ContentTypeEbook))
	assert.Equal(t, 2, fetcher.calls)
}

func TestRefreshFailureKeepsLastKnown(t *testing.T) {
	fetcher := &fakeFetcher{
		policies: []models.RequestPolicy{ebookPolicy(models.ModeDownload)},
		errs:     []error{nil, errors.New("server down")},
	}
	store := NewStore(fetcher, time.Hour)

	store.Refresh(context.Background(), true)
	p := store.Refresh(context.Background(), true)

	require.NotNil(t, p, "failed refresh should serve the last-known policy")
	assert.Equal(t, models.ModeDownload, p.ResolvedMode("", models.ContentTypeEbook))
}

func TestRefreshFailureWithNoCacheReturnsNil(t *testing.T) {
	fetcher := &fakeFetcher{
		policies: []models.RequestPolicy{{}},
		errs:     []error{errors.New("server down")},
	}
	store := NewStore(fetcher, time.Hour)

	assert.Nil(t, store.Refresh(context.Background(), true))
}

func TestModeLookupsDegradeToBlocked(t *testing.T) {
	store := NewStore(&fakeFetcher{policies: []models.RequestPolicy{{}}}, time.Hour)

	assert.Equal(t, models.ModeBlocked, store.DefaultMode(models.ContentTypeEbook))
	assert.Equal(t, models.ModeBlocked, store.SourceMode("indexer-a", models.ContentTypeEbook))
}

func TestRequestsVisible(t *testing.T) {
	fetcher := &fakeFetcher{policies: []models.RequestPolicy{{
		RequestsEnabled: true,
		Defaults: map[models.ContentType]models.RequestPolicyMode{
			models.ContentTypeEbook: models.ModeDownload,
		},
	}}}
	store := NewStore(fetcher, time.Hour)

	assert.False(t, store.RequestsVisible(), "no policy loaded yet")

	store.Refresh(context.Background(), true)
	assert.False(t, store.RequestsVisible(), "nothing demands requests")

	fetcher.policies = append(fetcher.policies, models.RequestPolicy{
		RequestsEnabled: true,
		Defaults: map[models.ContentType]models.RequestPolicyMode{
			models.ContentTypeEbook: models.ModeRequestBook,
		},
	})
	store.Refresh(context.Background(), true)
	assert.True(t, store.RequestsVisible())

	fetcher.policies = append(fetcher.policies, models.RequestPolicy{
		RequestsEnabled: false,
		IsAdmin:         true,
	})
	store.Refresh(context.Background(), true)
	assert.False(t, store.RequestsVisible(), "requests disabled hides the surface even for admins")
}
