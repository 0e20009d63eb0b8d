package activity

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-bookfetch/internal/models"
	"go-bookfetch/internal/state"
)

type fakeSnapshots struct{ data models.StatusData }

func (f *fakeSnapshots) Snapshot() models.StatusData { return f.data.Clone() }

type fakeRequests struct {
	records []models.RequestRecord
	err     error
}

func (f *fakeRequests) ListRequests(ctx context.Context) ([]models.RequestRecord, error) {
	return f.records, f.err
}

type memDismissals struct{ keys map[string]bool }

func newMemDismissals() *memDismissals { return &memDismissals{keys: map[string]bool{}} }

func (m *memDismissals) IsDismissed(key string) bool { return m.keys[key] }

func (m *memDismissals) Dismiss(key string) error {
	m.keys[key] = true
	return nil
}

func (m *memDismissals) DismissAll(keys []string) error {
	for _, k := range keys {
		m.keys[k] = true
	}
	return nil
}

func openTestHistory(t *testing.T) *HistoryStore {
	t.Helper()
	store, err := OpenHistory(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

type aggHarness struct {
	snapshots  *fakeSnapshots
	requests   *fakeRequests
	dismissals *memDismissals
	history    *HistoryStore
	agg        *Aggregator
}

func newAggHarness(t *testing.T) *aggHarness {
	h := &aggHarness{
		snapshots:  &fakeSnapshots{data: models.NewStatusData()},
		requests:   &fakeRequests{},
		dismissals: newMemDismissals(),
		history:    openTestHistory(t),
	}
	h.agg = NewAggregator(h.snapshots, h.requests, h.dismissals, h.history)
	return h
}

func TestOngoingListsLiveWork(t *testing.T) {
	h := newAggHarness(t)
	h.snapshots.data.Queued["task-1"] = models.Book{Title: "Dune", Author: "Frank Herbert"}
	h.snapshots.data.Downloading["task-2"] = models.Book{Title: "Hyperion"}
	h.snapshots.data.Progress["task-2"] = 0.5
	h.snapshots.data.Complete["task-3"] = models.Book{Title: "Emma"}
	h.requests.records = []models.RequestRecord{
		{ID: "r1", Status: models.RequestStatusPending, RequestLevel: models.RequestLevelBook, BookData: models.Book{Title: "Solaris"}},
	}

	items, err := h.agg.Ongoing(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3, "terminal items never show as ongoing")

	byKey := map[string]Item{}
	for _, it := range items {
		byKey[it.Key] = it
	}
	dl := byKey[state.DownloadKey("task-2")]
	assert.True(t, dl.HasProgress)
	assert.InDelta(t, 0.5, dl.Progress, 1e-9)
	req := byKey[state.RequestKey("r1")]
	assert.Equal(t, KindRequest, req.Kind)
	assert.False(t, req.Terminal)
}

func TestOngoingIgnoresDismissals(t *testing.T) {
	h := newAggHarness(t)
	h.snapshots.data.Downloading["task-1"] = models.Book{Title: "Dune"}
	require.NoError(t, h.dismissals.Dismiss(state.DownloadKey("task-1")))

	items, err := h.agg.Ongoing(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 1, "dismissal only ever hides resolved items")
}

func TestHistoryListsTerminalMinusDismissed(t *testing.T) {
	h := newAggHarness(t)
	h.snapshots.data.Complete["task-1"] = models.Book{Title: "Dune"}
	h.snapshots.data.Error["task-2"] = models.Book{Title: "Emma"}
	require.NoError(t, h.dismissals.Dismiss(state.DownloadKey("task-2")))

	items, err := h.agg.History(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, state.DownloadKey("task-1"), items[0].Key)
	assert.Equal(t, "Downloaded", items[0].Detail)
}

func TestHistorySurvivesSnapshotPruning(t *testing.T) {
	h := newAggHarness(t)
	h.snapshots.data.Complete["task-1"] = models.Book{Title: "Dune", Author: "Frank Herbert"}

	// First read records the resolution.
	_, err := h.agg.History(context.Background())
	require.NoError(t, err)

	// The server prunes the bucket; the entry must still be listed.
	h.snapshots.data = models.NewStatusData()
	items, err := h.agg.History(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, state.DownloadKey("task-1"), items[0].Key)
	assert.Equal(t, "Dune", items[0].Title)
	assert.True(t, items[0].Terminal)
}

func TestHistoryDeduplicatesLiveAndPersisted(t *testing.T) {
	h := newAggHarness(t)
	h.snapshots.data.Complete["task-1"] = models.Book{Title: "Dune"}

	// Two reads: the second sees the entry both live and persisted.
	_, err := h.agg.History(context.Background())
	require.NoError(t, err)
	items, err := h.agg.History(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestHistoryDismissalHidesPersistedEntries(t *testing.T) {
	h := newAggHarness(t)
	h.snapshots.data.Error["task-1"] = models.Book{Title: "Dune"}

	_, err := h.agg.History(context.Background())
	require.NoError(t, err)

	h.snapshots.data = models.NewStatusData()
	require.NoError(t, h.dismissals.Dismiss(state.DownloadKey("task-1")))

	items, err := h.agg.History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestHistoryIncludesResolvedRequests(t *testing.T) {
	h := newAggHarness(t)
	h.requests.records = []models.RequestRecord{
		{ID: "r1", Status: models.RequestStatusFulfilled, RequestLevel: models.RequestLevelBook, BookData: models.Book{Title: "Solaris"}, UpdatedAt: 100},
		{ID: "r2", Status: models.RequestStatusPending, RequestLevel: models.RequestLevelBook, BookData: models.Book{Title: "Dune"}, UpdatedAt: 200},
	}

	items, err := h.agg.History(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1, "pending requests are ongoing, not history")
	assert.Equal(t, state.RequestKey("r1"), items[0].Key)
}

func TestCountBadgeTotals(t *testing.T) {
	h := newAggHarness(t)
	h.snapshots.data.Queued["task-1"] = models.Book{}
	h.snapshots.data.Downloading["task-2"] = models.Book{}
	h.snapshots.data.Complete["task-3"] = models.Book{}
	h.snapshots.data.Error["task-4"] = models.Book{}
	h.requests.records = []models.RequestRecord{
		{ID: "r1", Status: models.RequestStatusPending, RequestLevel: models.RequestLevelBook, BookData: models.Book{}},
		{ID: "r2", Status: models.RequestStatusRejected, RequestLevel: models.RequestLevelBook, BookData: models.Book{}},
	}
	require.NoError(t, h.dismissals.Dismiss(state.DownloadKey("task-4")))

	counts, err := h.agg.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Active, "two live downloads plus one pending request")
	assert.Equal(t, 2, counts.UnseenTerminal, "the completed task and the rejected request; the dismissed failure is seen")
	assert.Equal(t, 1, counts.PendingRequests)
}

func TestHistoryJustResolvedSortsFirst(t *testing.T) {
	h := newAggHarness(t)
	require.NoError(t, h.history.Upsert(HistoryEntry{
		Key: state.DownloadKey("old"), Kind: "download", State: "complete",
		Title: "Old", ResolvedAt: 100,
	}))
	h.snapshots.data.Complete["fresh"] = models.Book{Title: "Fresh"}

	items, err := h.agg.History(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Fresh", items[0].Title, "an item that resolved just now is the newest entry")
	assert.Equal(t, "Old", items[1].Title)
	assert.NotZero(t, items[0].SortKey, "live terminal items take their timestamp from the recorded entry")
}

func TestCountDismissedPendingRequestExcluded(t *testing.T) {
	h := newAggHarness(t)
	h.requests.records = []models.RequestRecord{
		{ID: "r1", Status: models.RequestStatusPending, RequestLevel: models.RequestLevelBook, BookData: models.Book{}},
	}
	require.NoError(t, h.dismissals.Dismiss(state.RequestKey("r1")))

	counts, err := h.agg.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, counts.PendingRequests)
	assert.Equal(t, 1, counts.Active, "dismissal never hides in-flight work from the active total")
}

func TestCountApprovedRequestIsActive(t *testing.T) {
	h := newAggHarness(t)
	h.requests.records = []models.RequestRecord{
		{ID: "r1", Status: models.RequestStatusApproved, RequestLevel: models.RequestLevelBook, BookData: models.Book{}},
	}

	counts, err := h.agg.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Active, "an approved request is still in flight")
	assert.Equal(t, 0, counts.PendingRequests)
	assert.Equal(t, 0, counts.UnseenTerminal)
}

func TestCountRequestListFailure(t *testing.T) {
	h := newAggHarness(t)
	h.requests.err = errors.New("offline")

	_, err := h.agg.Count(context.Background())
	assert.Error(t, err)
}

func TestClearCompletedDismissesTerminalDownloadsOnly(t *testing.T) {
	h := newAggHarness(t)
	h.snapshots.data.Downloading["task-1"] = models.Book{}
	h.snapshots.data.Complete["task-2"] = models.Book{}
	h.snapshots.data.Error["task-3"] = models.Book{}
	h.requests.records = []models.RequestRecord{
		{ID: "r1", Status: models.RequestStatusFulfilled, RequestLevel: models.RequestLevelBook, BookData: models.Book{}},
	}

	require.NoError(t, h.agg.ClearCompleted(context.Background()))

	assert.False(t, h.dismissals.IsDismissed(state.DownloadKey("task-1")))
	assert.True(t, h.dismissals.IsDismissed(state.DownloadKey("task-2")))
	assert.True(t, h.dismissals.IsDismissed(state.DownloadKey("task-3")))
	assert.False(t, h.dismissals.IsDismissed(state.RequestKey("r1")), "requests are untouched by clear-completed")
}

func TestClearHistoryDismissesEverythingResolved(t *testing.T) {
	h := newAggHarness(t)
	h.snapshots.data.Complete["task-1"] = models.Book{}
	h.requests.records = []models.RequestRecord{
		{ID: "r1", Status: models.RequestStatusRejected, RequestLevel: models.RequestLevelBook, BookData: models.Book{}},
	}

	require.NoError(t, h.agg.ClearHistory(context.Background()))

	assert.True(t, h.dismissals.IsDismissed(state.DownloadKey("task-1")))
	assert.True(t, h.dismissals.IsDismissed(state.RequestKey("r1")))

	items, err := h.agg.History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestHistoryNewestFirst(t *testing.T) {
	h := newAggHarness(t)
	require.NoError(t, h.history.Upsert(HistoryEntry{Key: state.DownloadKey("old"), Kind: "download", State: "complete", Title: "Old", ResolvedAt: 100}))
	require.NoError(t, h.history.Upsert(HistoryEntry{Key: state.DownloadKey("new"), Kind: "download", State: "complete", Title: "New", ResolvedAt: 200}))

	items, err := h.agg.History(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "New", items[0].Title)
	assert.Equal(t, "Old", items[1].Title)
}
