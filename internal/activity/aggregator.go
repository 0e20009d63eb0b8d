package activity

import (
	"context"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"go-bookfetch/internal/models"
	"go-bookfetch/internal/state"
)

// SnapshotSource provides the latest known task snapshot.
type SnapshotSource interface {
	Snapshot() models.StatusData
}

// RequestSource lists the current user's request records.
type RequestSource interface {
	ListRequests(ctx context.Context) ([]models.RequestRecord, error)
}

// Dismissals is the slice of the local state store the aggregator needs.
type Dismissals interface {
	IsDismissed(key string) bool
	Dismiss(key string) error
	DismissAll(keys []string) error
}

// ItemKind discriminates feed items.
type ItemKind string

const (
	KindDownload ItemKind = "download"
	KindRequest  ItemKind = "request"
)

// Item is one row of the merged activity feed, keyed so dismissals and
// history line up with the live snapshot.
type Item struct {
	Key         string
	Kind        ItemKind
	State       string
	Terminal    bool
	Title       string
	Author      string
	Detail      string
	Progress    float64
	HasProgress bool
	SortKey     int64
}

// Counts summarizes the feed for badge display.
type Counts struct {
	Active          int
	UnseenTerminal  int
	PendingRequests int
}

// Aggregator merges live task buckets, request records, and persisted
// history into a single keyed feed with ongoing and history views.
type Aggregator struct {
	snapshots  SnapshotSource
	requests   RequestSource
	dismissals Dismissals
	history    *HistoryStore
}

func NewAggregator(snapshots SnapshotSource, requests RequestSource, dismissals Dismissals, history *HistoryStore) *Aggregator {
	return &Aggregator{
		snapshots:  snapshots,
		requests:   requests,
		dismissals: dismissals,
		history:    history,
	}
}

func requestTerminal(status string) bool {
	return status == models.RequestStatusRejected || status == models.RequestStatusFulfilled
}

func taskDetail(st models.TaskState) string {
	switch st {
	case models.TaskQueued:
		return "Queued"
	case models.TaskResolving:
		return "Resolving sources"
	case models.TaskLocating:
		return "Locating release"
	case models.TaskDownloading:
		return "Downloading"
	case models.TaskComplete:
		return "Downloaded"
	case models.TaskError:
		return "Failed"
	}
	return string(st)
}

func downloadItem(id string, book models.Book, st models.TaskState, snapshot models.StatusData) Item {
	item := Item{
		Key:      state.DownloadKey(id),
		Kind:     KindDownload,
		State:    string(st),
		Terminal: st.Terminal(),
		Title:    book.Title,
		Author:   book.Author,
		Detail:   taskDetail(st),
	}
	if st == models.TaskDownloading {
		if p, ok := snapshot.Progress[id]; ok {
			item.Progress = p
			item.HasProgress = true
		}
	}
	return item
}

func requestItem(rec models.RequestRecord) Item {
	detail := "Request " + rec.Status
	if rec.RequestLevel == models.RequestLevelRelease && rec.ReleaseData != nil {
		detail = fmt.Sprintf("Request %s (%s)", rec.Status, rec.ReleaseData.Source)
	}
	return Item{
		Key:      state.RequestKey(rec.ID),
		Kind:     KindRequest,
		State:    rec.Status,
		Terminal: requestTerminal(rec.Status),
		Title:    rec.BookData.Title,
		Author:   rec.BookData.Author,
		Detail:   detail,
		SortKey:  rec.UpdatedAt,
	}
}

// collect gathers every currently visible item, live downloads first.
func (a *Aggregator) collect(ctx context.Context) ([]Item, error) {
	snapshot := a.snapshots.Snapshot()

	var items []Item
	for _, st := range models.States() {
		bucket := snapshot.Bucket(st)
		ids := make([]string, 0, len(bucket))
		for id := range bucket {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			items = append(items, downloadItem(id, bucket[id], st, snapshot))
		}
	}

	records, err := a.requests.ListRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	for _, rec := range records {
		items = append(items, requestItem(rec))
	}
	return items, nil
}

// recordResolved upserts terminal items into the history store so they
// outlive the live snapshot. Failures are logged, not fatal: the live
// view still works without persistence.
func (a *Aggregator) recordResolved(items []Item) {
	for _, item := range items {
		if !item.Terminal {
			continue
		}
		entry := HistoryEntry{
			Key:    item.Key,
			Kind:   string(item.Kind),
			State:  item.State,
			Title:  item.Title,
			Author: item.Author,
			Detail: item.Detail,
		}
		if err := a.history.Upsert(entry); err != nil {
			log.WithError(err).Warnf("Failed to record %s in history", item.Key)
		}
	}
}

// Ongoing returns in-flight downloads and pending/approved requests.
// Dismissal never applies to ongoing items.
func (a *Aggregator) Ongoing(ctx context.Context) ([]Item, error) {
	items, err := a.collect(ctx)
	if err != nil {
		return nil, err
	}
	a.recordResolved(items)

	var ongoing []Item
	for _, item := range items {
		if !item.Terminal {
			ongoing = append(ongoing, item)
		}
	}
	return ongoing, nil
}

// History returns resolved items, merged from the live snapshot and the
// persisted store, newest first, minus dismissed keys.
func (a *Aggregator) History(ctx context.Context) ([]Item, error) {
	items, err := a.collect(ctx)
	if err != nil {
		return nil, err
	}
	a.recordResolved(items)

	entries, err := a.history.List()
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	resolvedAt := make(map[string]int64, len(entries))
	for _, e := range entries {
		resolvedAt[e.Key] = e.ResolvedAt
	}

	seen := make(map[string]bool)
	var resolved []Item
	for _, item := range items {
		if !item.Terminal || a.dismissals.IsDismissed(item.Key) {
			continue
		}
		// Live download items carry no timestamp of their own; the
		// persisted entry recorded above holds when they first resolved.
		if item.SortKey == 0 {
			item.SortKey = resolvedAt[item.Key]
		}
		seen[item.Key] = true
		resolved = append(resolved, item)
	}

	for _, e := range entries {
		if seen[e.Key] || a.dismissals.IsDismissed(e.Key) {
			continue
		}
		resolved = append(resolved, Item{
			Key:      e.Key,
			Kind:     ItemKind(e.Kind),
			State:    e.State,
			Terminal: true,
			Title:    e.Title,
			Author:   e.Author,
			Detail:   e.Detail,
			SortKey:  e.ResolvedAt,
		})
	}

	sort.SliceStable(resolved, func(i, j int) bool {
		if resolved[i].SortKey != resolved[j].SortKey {
			return resolved[i].SortKey > resolved[j].SortKey
		}
		return resolved[i].Key < resolved[j].Key
	})
	return resolved, nil
}

// Count returns badge totals. Anything non-terminal counts as active;
// dismissal excludes terminal items from the unseen total and pending
// requests from the pending total, never from active.
func (a *Aggregator) Count(ctx context.Context) (Counts, error) {
	items, err := a.collect(ctx)
	if err != nil {
		return Counts{}, err
	}
	a.recordResolved(items)

	var c Counts
	for _, item := range items {
		switch {
		case !item.Terminal:
			c.Active++
			if item.Kind == KindRequest && item.State == models.RequestStatusPending &&
				!a.dismissals.IsDismissed(item.Key) {
				c.PendingRequests++
			}
		case !a.dismissals.IsDismissed(item.Key):
			c.UnseenTerminal++
		}
	}
	return c, nil
}

// ClearCompleted dismisses every currently terminal download.
func (a *Aggregator) ClearCompleted(ctx context.Context) error {
	items, err := a.collect(ctx)
	if err != nil {
		return err
	}
	a.recordResolved(items)

	var keys []string
	for _, item := range items {
		if item.Kind == KindDownload && item.Terminal {
			keys = append(keys, item.Key)
		}
	}
	return a.dismissals.DismissAll(keys)
}

// ClearHistory dismisses every resolved item, live and persisted.
func (a *Aggregator) ClearHistory(ctx context.Context) error {
	resolved, err := a.History(ctx)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(resolved))
	for _, item := range resolved {
		keys = append(keys, item.Key)
	}
	return a.dismissals.DismissAll(keys)
}
