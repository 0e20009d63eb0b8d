package status

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"go-bookfetch/internal/models"
)

// Source supplies status snapshots; the API client satisfies it.
type Source interface {
	GetStatus(ctx context.Context) (models.StatusData, error)
	OpenStatusStream(ctx context.Context) (<-chan models.StatusData, error)
}

// Transition records a task moving between buckets, inferred by
// set-difference over consecutive snapshots. From is empty for a task seen
// for the first time.
type Transition struct {
	ID   string
	From models.TaskState
	To   models.TaskState
	Book models.Book
}

// DefaultPollInterval is the fallback poll cadence when the push channel is
// down.
const DefaultPollInterval = 5 * time.Second

// streamRetryAfter is how many fallback polls run before the push channel is
// attempted again.
const streamRetryAfter = 6

// Feed owns the StatusData snapshot. It consumes the push channel when
// healthy and falls back to fixed-interval polling otherwise; only one of
// the two is active at a time. Readers get copies and recompute signals,
// never live maps.
type Feed struct {
	source       Source
	pollInterval time.Duration
	onTransition func(Transition)

	mu       sync.RWMutex
	current  models.StatusData
	loaded   bool
	pollOnly bool
	subs     []chan struct{}
}

// NewFeed creates a status feed. interval <= 0 uses DefaultPollInterval.
// onTransition may be nil.
func NewFeed(source Source, interval time.Duration, onTransition func(Transition)) *Feed {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Feed{
		source:       source,
		pollInterval: interval,
		onTransition: onTransition,
		current:      models.NewStatusData(),
	}
}

// Snapshot returns a deep copy of the latest known status.
func (f *Feed) Snapshot() models.StatusData {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current.Clone()
}

// Loaded reports whether any snapshot has been applied yet.
func (f *Feed) Loaded() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.loaded
}

// SetPollOnly disables the push channel entirely; Run then drives the
// poller alone. Set when the server declares push disabled in its config.
func (f *Feed) SetPollOnly(v bool) {
	f.mu.Lock()
	f.pollOnly = v
	f.mu.Unlock()
}

func (f *Feed) isPollOnly() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.pollOnly
}

// Subscribe returns a recompute-signal channel. Signals coalesce: a slow
// reader sees at least one signal after any number of updates.
func (f *Feed) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch
}

// Refresh performs one forced poll and applies the snapshot. Used after
// successful download actions so button state catches up immediately.
func (f *Feed) Refresh(ctx context.Context) error {
	snapshot, err := f.source.GetStatus(ctx)
	if err != nil {
		return err
	}
	f.apply(snapshot)
	return nil
}

// Run drives the feed until ctx is cancelled. The push stream is preferred;
// after a stream failure the poller takes over for a while before the
// stream is retried.
func (f *Feed) Run(ctx context.Context) {
	// Prime with one poll so consumers have data before the stream settles.
	if err := f.Refresh(ctx); err != nil {
		log.WithError(err).Warn("Initial status poll failed")
	}

	for ctx.Err() == nil {
		if f.isPollOnly() {
			f.pollFor(ctx, streamRetryAfter)
			continue
		}

		events, err := f.source.OpenStatusStream(ctx)
		if err != nil {
			log.WithError(err).Debug("Push channel unavailable, using fallback poller")
			f.pollFor(ctx, streamRetryAfter)
			continue
		}

		log.Debug("Status push channel established")
		for snapshot := range events {
			f.apply(snapshot)
		}
		if ctx.Err() == nil {
			log.Warn("Status push channel closed, falling back to polling")
			f.pollFor(ctx, streamRetryAfter)
		}
	}
}

// pollFor runs the fallback poller for n ticks or until ctx is cancelled.
func (f *Feed) pollFor(ctx context.Context, n int) {
	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot, err := f.source.GetStatus(ctx)
			if err != nil {
				log.WithError(err).Debug("Fallback status poll failed")
				continue
			}
			f.apply(snapshot)
		}
	}
}

// apply installs a new snapshot, emits transitions, and signals subscribers.
// Transitions come from comparing full snapshots, so out-of-order or
// coalesced pushes stay correct as long as each snapshot is internally
// consistent.
func (f *Feed) apply(next models.StatusData) {
	f.mu.Lock()
	prev := f.current
	hadData := f.loaded
	f.current = next.Clone()
	f.loaded = true
	subs := make([]chan struct{}, len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()

	if f.onTransition != nil && hadData {
		for _, tr := range diff(prev, next) {
			f.onTransition(tr)
		}
	}

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// diff infers per-task transitions between two snapshots.
func diff(prev, next models.StatusData) []Transition {
	prevState := map[string]models.TaskState{}
	for _, st := range models.States() {
		for id := range prev.Bucket(st) {
			prevState[id] = st
		}
	}

	var out []Transition
	for _, st := range models.States() {
		for id, book := range next.Bucket(st) {
			if from, ok := prevState[id]; !ok || from != st {
				out = append(out, Transition{ID: id, From: prevState[id], To: st, Book: book})
			}
		}
	}
	return out
}
