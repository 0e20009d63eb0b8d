// Package orchestrator executes policy-gated download actions. It owns the
// attempt protocol: forced policy refresh, execute or convert to a request
// confirmation, and the guard-error handling that keeps policy rejections
// from ever surfacing as raw failures.
package orchestrator

import (
	"context"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"go-bookfetch/internal/api"
	"go-bookfetch/internal/models"
)

// Client is the slice of the API surface the orchestrator drives.
type Client interface {
	DownloadBook(ctx context.Context, bookID, onBehalfOf string) error
	DownloadRelease(ctx context.Context, payload models.ReleaseDownloadPayload, onBehalfOf string) error
	CreateRequest(ctx context.Context, payload models.RequestPayload) (models.RequestRecord, error)
}

// PolicySource owns the policy snapshot. The forced-refresh return value is
// the single source of truth for an action's decision; the orchestrator
// never re-reads the shared cache after an async boundary.
type PolicySource interface {
	Refresh(ctx context.Context, force bool) *models.RequestPolicy
	MarkStale()
}

// StatusRefresher pulls a fresh status snapshot after successful actions.
type StatusRefresher interface {
	Refresh(ctx context.Context) error
}

// ReleaseTracker records release tasks against their parent metadata book.
type ReleaseTracker interface {
	TrackRelease(bookID, releaseTaskID string) error
}

// Notifier is the transient-notification collaborator (toasts in the
// original surface, terminal notices here).
type Notifier interface {
	Info(msg string)
	Warn(msg string)
	Error(msg string)
}

// RequestConfirmer presents the request-confirmation flow. It returns
// whether the user confirmed and an optional note (only collected when
// allowNotes is set).
type RequestConfirmer interface {
	ConfirmRequest(ctx context.Context, draft models.RequestPayload, allowNotes bool) (confirmed bool, note string, err error)
}

// ReleaseViewCloser closes any open release-browsing context. Called before
// a book-level request confirmation opens from within a release action,
// since a release-scoped view is no longer meaningful then.
type ReleaseViewCloser interface {
	CloseReleaseView()
}

// Orchestrator runs the guarded download protocol.
type Orchestrator struct {
	client    Client
	policies  PolicySource
	statuses  StatusRefresher
	tracker   ReleaseTracker
	notifier  Notifier
	confirmer RequestConfirmer
	closer    ReleaseViewCloser
}

// New wires an orchestrator. closer may be nil when no release-browsing
// context exists.
func New(client Client, policies PolicySource, statuses StatusRefresher, tracker ReleaseTracker, notifier Notifier, confirmer RequestConfirmer, closer ReleaseViewCloser) *Orchestrator {
	return &Orchestrator{
		client:    client,
		policies:  policies,
		statuses:  statuses,
		tracker:   tracker,
		notifier:  notifier,
		confirmer: confirmer,
		closer:    closer,
	}
}

// resolveMode runs the mandatory forced pre-flight refresh and resolves the
// mode from the exact snapshot just fetched. A failed refresh degrades to
// the last-known policy (already logged by the store); with no policy at
// all the action resolves to blocked.
func (o *Orchestrator) resolveMode(ctx context.Context, source string, ct models.ContentType) models.RequestPolicyMode {
	refreshed := o.policies.Refresh(ctx, true)
	if refreshed == nil {
		log.Warn("No policy available after forced refresh, treating action as blocked")
		return models.ModeBlocked
	}
	return refreshed.ResolvedMode(source, ct)
}

// allowNotes reads the note flag from the current policy without another
// fetch.
func (o *Orchestrator) allowNotes(ctx context.Context) bool {
	if p := o.policies.Refresh(ctx, false); p != nil {
		return p.AllowNotes
	}
	return false
}

// DownloadBook executes a direct book download. Policy guards convert to
// the request-confirmation flow or a blocked notice and return nil; all
// other failures notify and propagate so callers (the delegated-download
// confirmation among them) can react.
func (o *Orchestrator) DownloadBook(ctx context.Context, book models.Book, ct models.ContentType, onBehalfOf string) error {
	mode := o.resolveMode(ctx, "", ct)

	if mode == models.ModeBlocked {
		o.notifier.Warn("Downloads for this item are blocked by policy")
		return nil
	}
	if level, ok := mode.RequestLevel(); ok {
		return o.openRequestFlow(ctx, book, nil, "", ct, level)
	}

	err := o.client.DownloadBook(ctx, book.ID, onBehalfOf)
	if err == nil {
		log.WithField("book", book.ID).Info("Book download queued")
		o.notifier.Info("Download started: " + book.Title)
		o.refreshStatus(ctx)
		return nil
	}
	return o.handleDownloadError(ctx, err, book, nil, "", ct)
}

// DownloadRelease executes a per-source release download, tracking the
// release task against its parent metadata book so a later completion can
// mark the book fulfilled.
func (o *Orchestrator) DownloadRelease(ctx context.Context, book models.Book, release models.Release, ct models.ContentType, onBehalfOf string) error {
	mode := o.resolveMode(ctx, release.Source, ct)

	if mode == models.ModeBlocked {
		o.notifier.Warn("Downloads from " + release.Source + " are blocked by policy")
		return nil
	}
	if level, ok := mode.RequestLevel(); ok {
		if level == models.RequestLevelBook && o.closer != nil {
			o.closer.CloseReleaseView()
		}
		rel := &release
		if level == models.RequestLevelBook {
			rel = nil
		}
		return o.openRequestFlow(ctx, book, rel, release.Source, ct, level)
	}

	payload := models.NewReleaseDownloadPayload(book, release, ct)
	err := o.client.DownloadRelease(ctx, payload, onBehalfOf)
	if err == nil {
		if trackErr := o.tracker.TrackRelease(book.ID, release.Key()); trackErr != nil {
			log.WithError(trackErr).Warnf("Failed to track release %s against book %s", release.Key(), book.ID)
		}
		log.WithField("release", release.Key()).Info("Release download queued")
		o.notifier.Info("Download started: " + release.Title)
		o.refreshStatus(ctx)
		return nil
	}
	return o.handleDownloadError(ctx, err, book, &release, release.Source, ct)
}

// handleDownloadError classifies an attempt failure. Guard errors are fully
// handled here and never propagate; everything else notifies and re-raises.
func (o *Orchestrator) handleDownloadError(ctx context.Context, err error, book models.Book, release *models.Release, source string, ct models.ContentType) error {
	if guard, ok := api.AsGuardError(err); ok {
		log.WithFields(log.Fields{"code": guard.Code, "required_mode": guard.RequiredMode}).
			Debug("Download rejected by policy guard")

		if level, needsRequest := guard.RequiredMode.RequestLevel(); needsRequest {
			rel := release
			if level == models.RequestLevelBook {
				// A book-level request invalidates the release context.
				if release != nil && o.closer != nil {
					o.closer.CloseReleaseView()
				}
				rel = nil
			}
			return o.openRequestFlow(ctx, book, rel, source, ct, level)
		}
		o.notifier.Warn("This item is blocked by policy")
		return nil
	}

	log.WithError(err).Error("Download attempt failed")
	o.notifier.Error("Download failed: " + err.Error())
	return err
}

// openRequestFlow pre-populates a request draft and hands it to the
// confirmation collaborator. A confirmed draft is submitted; a successful
// submission schedules a policy refresh so remaining-allowance state
// catches up.
func (o *Orchestrator) openRequestFlow(ctx context.Context, book models.Book, release *models.Release, source string, ct models.ContentType, level models.RequestLevel) error {
	draft := models.RequestPayload{
		BookData:    book,
		ReleaseData: release,
		Context: models.RequestContext{
			Source:       source,
			ContentType:  ct,
			RequestLevel: level,
		},
		IdempotencyKey: uuid.NewString(),
	}

	confirmed, note, err := o.confirmer.ConfirmRequest(ctx, draft, o.allowNotes(ctx))
	if err != nil {
		log.WithError(err).Warn("Request confirmation flow failed")
		return err
	}
	if !confirmed {
		log.Debug("Request confirmation declined")
		return nil
	}
	draft.Note = note

	record, err := o.client.CreateRequest(ctx, draft)
	if err != nil {
		log.WithError(err).Error("Request submission failed")
		o.notifier.Error("Request failed: " + err.Error())
		return err
	}

	log.WithField("request", record.ID).Info("Request submitted")
	o.notifier.Info("Request submitted: " + book.Title)
	o.policies.MarkStale()
	return nil
}

// refreshStatus asks the feed for a fresh snapshot; failures only log since
// the poller will catch up anyway.
func (o *Orchestrator) refreshStatus(ctx context.Context) {
	if err := o.statuses.Refresh(ctx); err != nil {
		log.WithError(err).Debug("Post-action status refresh failed")
	}
}
