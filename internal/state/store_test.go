package state

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-bookfetch/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestKeyBuilders(t *testing.T) {
	assert.Equal(t, "download:t1", DownloadKey("t1"))
	assert.Equal(t, "request:r1", RequestKey("r1"))
}

func TestDismissIdempotent(t *testing.T) {
	store := openTestStore(t)
	key := DownloadKey("t1")

	assert.False(t, store.IsDismissed(key))
	require.NoError(t, store.Dismiss(key))
	assert.True(t, store.IsDismissed(key))

	// Dismissing again is a no-op, not an error.
	require.NoError(t, store.Dismiss(key))
	assert.True(t, store.IsDismissed(key))

	assert.Len(t, store.DismissedKeys(), 1)
}

func TestDismissEmptyKeyIgnored(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Dismiss(""))
	assert.Empty(t, store.DismissedKeys())
}

func TestUndismiss(t *testing.T) {
	store := openTestStore(t)
	key := RequestKey("r1")

	require.NoError(t, store.Dismiss(key))
	require.NoError(t, store.Undismiss(key))
	assert.False(t, store.IsDismissed(key))

	// Undismissing something never dismissed is fine.
	require.NoError(t, store.Undismiss(RequestKey("r2")))
}

func TestDismissAll(t *testing.T) {
	store := openTestStore(t)
	keys := []string{DownloadKey("t1"), DownloadKey("t2"), RequestKey("r1")}

	require.NoError(t, store.DismissAll(keys))
	for _, key := range keys {
		assert.True(t, store.IsDismissed(key), "expected %s dismissed", key)
	}
}

func TestTrackRelease(t *testing.T) {
	store := openTestStore(t)

	assert.Empty(t, store.TrackedReleases("b1"))

	require.NoError(t, store.TrackRelease("b1", "indexer-a:42"))
	require.NoError(t, store.TrackRelease("b1", "indexer-b:7"))
	// Duplicate tracking keeps the set a set.
	require.NoError(t, store.TrackRelease("b1", "indexer-a:42"))

	assert.Equal(t, []string{"indexer-a:42", "indexer-b:7"}, store.TrackedReleases("b1"))
	assert.Empty(t, store.TrackedReleases("b2"))
}

func TestActingAsRoundTrip(t *testing.T) {
	store := openTestStore(t)

	assert.Nil(t, store.ActingAs())

	user := models.ActingAsUser{ID: "u1", Username: "reader", DisplayName: "Reader One"}
	require.NoError(t, store.SetActingAs(user))

	got := store.ActingAs()
	require.NotNil(t, got)
	assert.Equal(t, user, *got)

	require.NoError(t, store.ClearActingAs())
	assert.Nil(t, store.ActingAs())

	// Clearing twice is fine.
	require.NoError(t, store.ClearActingAs())
}

func TestStatePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Dismiss(DownloadKey("t1")))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.True(t, reopened.IsDismissed(DownloadKey("t1")))
}
