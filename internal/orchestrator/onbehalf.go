package orchestrator

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"go-bookfetch/internal/models"
)

// ErrConfirmationPending is returned when a new delegated action starts
// while another confirmation is still unresolved.
var ErrConfirmationPending = errors.New("a delegated download is already awaiting confirmation")

// PendingDownload is the captured intent of a delegated download awaiting
// explicit confirmation. Exactly two variants exist; consumers switch
// exhaustively.
type PendingDownload interface {
	// Describe renders the confirmation title.
	Describe() string
	// Delegate is the user the download would be issued for.
	Delegate() models.ActingAsUser

	pendingDownload()
}

// PendingBookDownload is the book-level variant.
type PendingBookDownload struct {
	Book        models.Book
	ContentType models.ContentType
	User        models.ActingAsUser
}

func (p PendingBookDownload) Describe() string {
	return "Download \"" + p.Book.Title + "\" for " + p.User.Username + "?"
}
func (p PendingBookDownload) Delegate() models.ActingAsUser { return p.User }
func (p PendingBookDownload) pendingDownload()              {}

// PendingReleaseDownload is the release-level variant.
type PendingReleaseDownload struct {
	Book        models.Book
	Release     models.Release
	ContentType models.ContentType
	User        models.ActingAsUser
}

func (p PendingReleaseDownload) Describe() string {
	return "Download \"" + p.Release.Title + "\" (" + p.Release.Source + ") for " + p.User.Username + "?"
}
func (p PendingReleaseDownload) Delegate() models.ActingAsUser { return p.User }
func (p PendingReleaseDownload) pendingDownload()              {}

// DelegationStore persists the acting-as selection; the state store
// satisfies it.
type DelegationStore interface {
	ActingAs() *models.ActingAsUser
	SetActingAs(user models.ActingAsUser) error
	ClearActingAs() error
}

// Coordinator intercepts download attempts while an acting-as delegate is
// selected and converts them into pending confirmations. At most one
// confirmation exists at a time.
type Coordinator struct {
	orch  *Orchestrator
	store DelegationStore

	mu              sync.Mutex
	pending         PendingDownload
	currentUsername string
	isAdmin         bool
}

// NewCoordinator wires the delegation layer over the orchestrator.
func NewCoordinator(orch *Orchestrator, store DelegationStore, currentUsername string, isAdmin bool) *Coordinator {
	c := &Coordinator{
		orch:            orch,
		store:           store,
		currentUsername: currentUsername,
		isAdmin:         isAdmin,
	}
	// A stored selection from a previous session is only honored while the
	// user still has admin rights.
	if !isAdmin {
		c.clearDelegationLocked()
	}
	return c
}

// SetDelegate selects the user to act on behalf of. Selecting yourself is
// equivalent to no delegation and clears the selection (the server
// re-validates regardless).
func (c *Coordinator) SetDelegate(user models.ActingAsUser) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isAdmin {
		return errors.New("acting on behalf of another user requires admin rights")
	}
	if user.Username == c.currentUsername {
		log.Debug("Self-selection as delegate, clearing acting-as state")
		c.clearDelegationLocked()
		return nil
	}
	return c.store.SetActingAs(user)
}

// ClearDelegate drops the selection and any pending confirmation.
func (c *Coordinator) ClearDelegate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearDelegationLocked()
}

// Delegate returns the current selection, or nil.
func (c *Coordinator) Delegate() *models.ActingAsUser {
	return c.store.ActingAs()
}

// Pending returns the unresolved confirmation, or nil.
func (c *Coordinator) Pending() PendingDownload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// DownloadBook either executes directly (no delegate selected) or captures
// a pending book-level confirmation. The network is not touched until the
// confirmation resolves.
func (c *Coordinator) DownloadBook(ctx context.Context, book models.Book, ct models.ContentType) (PendingDownload, error) {
	delegate := c.store.ActingAs()
	if delegate == nil {
		return nil, c.orch.DownloadBook(ctx, book, ct, "")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		return nil, ErrConfirmationPending
	}
	p := PendingBookDownload{Book: book, ContentType: ct, User: *delegate}
	c.pending = p
	log.WithField("delegate", delegate.Username).Debug("Captured pending delegated book download")
	return p, nil
}

// DownloadRelease mirrors DownloadBook for the release-level entry point.
func (c *Coordinator) DownloadRelease(ctx context.Context, book models.Book, release models.Release, ct models.ContentType) (PendingDownload, error) {
	delegate := c.store.ActingAs()
	if delegate == nil {
		return nil, c.orch.DownloadRelease(ctx, book, release, ct, "")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		return nil, ErrConfirmationPending
	}
	p := PendingReleaseDownload{Book: book, Release: release, ContentType: ct, User: *delegate}
	c.pending = p
	log.WithField("delegate", delegate.Username).Debug("Captured pending delegated release download")
	return p, nil
}

// Confirm resolves the pending confirmation and re-issues the captured
// action with the delegate's id attached. The pending slot empties before
// the action runs, so confirm-or-cancel always leaves exactly zero pending;
// an execution failure propagates for the caller to react to.
func (c *Coordinator) Confirm(ctx context.Context) error {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	if pending == nil {
		return errors.New("no delegated download awaiting confirmation")
	}

	switch p := pending.(type) {
	case PendingBookDownload:
		return c.orch.DownloadBook(ctx, p.Book, p.ContentType, p.User.ID)
	case PendingReleaseDownload:
		return c.orch.DownloadRelease(ctx, p.Book, p.Release, p.ContentType, p.User.ID)
	default:
		return errors.New("unknown pending download variant")
	}
}

// Cancel discards the pending confirmation with no side effect.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		log.Debug("Cancelled pending delegated download")
	}
	c.pending = nil
}

// HandleAuthChange reacts to login/admin transitions. Losing admin rights
// or logging out synchronously clears both the delegate selection and any
// pending confirmation.
func (c *Coordinator) HandleAuthChange(loggedIn, isAdmin bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isAdmin = isAdmin
	if !loggedIn || !isAdmin {
		c.clearDelegationLocked()
	}
}

// HandleDelegateUnavailable clears state when the selected delegate
// disappears server-side. Silent per the error taxonomy: invalid delegation
// state is dropped, not surfaced as a failure.
func (c *Coordinator) HandleDelegateUnavailable(available []models.ActingAsUser) {
	selected := c.store.ActingAs()
	if selected == nil {
		return
	}
	for _, u := range available {
		if u.ID == selected.ID {
			return
		}
	}
	log.WithField("username", selected.Username).Info("Selected delegate no longer available, clearing")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearDelegationLocked()
}

func (c *Coordinator) clearDelegationLocked() {
	c.pending = nil
	if err := c.store.ClearActingAs(); err != nil {
		log.WithError(err).Warn("Failed to clear acting-as selection")
	}
}
