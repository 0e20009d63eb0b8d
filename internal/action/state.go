// Package action derives the user-facing action affordance for a catalog
// item from the status snapshot, the dismissal set, and the access policy.
// Resolution is pure: same inputs, same output, no side effects, so it can
// be re-run on every status or policy change.
package action

import (
	"go-bookfetch/internal/models"
	"go-bookfetch/internal/state"
)

// State is the rendered affordance state.
type State string

const (
	StateDownload    State = "download"
	StateQueued      State = "queued"
	StateResolving   State = "resolving"
	StateLocating    State = "locating"
	StateDownloading State = "downloading"
	StateComplete    State = "complete"
	StateError       State = "error"
	StateBlocked     State = "blocked"
)

// Info is the derived action descriptor. It is never stored; every value is
// recomputed from its inputs.
type Info struct {
	Text     string
	State    State
	Progress float64
	// HasProgress marks Progress as meaningful (only while downloading).
	HasProgress bool
	Disabled    bool
}

// DismissedFunc reports whether a feed-item key has been dismissed.
type DismissedFunc func(key string) bool

// taskKey builds the dismissal key for a task id.
func taskKey(id string) string { return state.DownloadKey(id) }

// fromTask maps a status bucket to the affordance it renders.
func fromTask(st models.TaskState, progress float64, hasProgress bool) Info {
	switch st {
	case models.TaskQueued:
		return Info{Text: "Queued", State: StateQueued, Disabled: true}
	case models.TaskResolving:
		return Info{Text: "Resolving", State: StateResolving, Disabled: true}
	case models.TaskLocating:
		return Info{Text: "Locating", State: StateLocating, Disabled: true}
	case models.TaskDownloading:
		return Info{Text: "Downloading", State: StateDownloading, Progress: progress, HasProgress: hasProgress, Disabled: true}
	case models.TaskComplete:
		return Info{Text: "Downloaded", State: StateComplete}
	case models.TaskError:
		return Info{Text: "Failed", State: StateError}
	}
	return Info{Text: "Download", State: StateDownload}
}

// fromMode renders the policy-derived affordance for an id with no live
// task.
func fromMode(mode models.RequestPolicyMode, metadata bool) Info {
	switch {
	case mode == models.ModeBlocked:
		return Info{Text: "Unavailable", State: StateBlocked, Disabled: true}
	case mode.RequiresRequest():
		return Info{Text: "Request", State: StateDownload}
	case metadata:
		return Info{Text: "Get", State: StateDownload}
	default:
		return Info{Text: "Download", State: StateDownload}
	}
}

// Resolve derives the affordance for a single task/item id. The task's own
// bucket wins while it is live and not dismissed; a dismissed terminal task
// reverts the id to its policy-derived state.
func Resolve(id string, snapshot models.StatusData, dismissed DismissedFunc, mode models.RequestPolicyMode) Info {
	if st, _, ok := snapshot.Lookup(id); ok {
		if !st.Terminal() || !dismissed(taskKey(id)) {
			progress, hasProgress := snapshot.Progress[id]
			return fromTask(st, progress, hasProgress)
		}
	}
	return fromMode(mode, false)
}

// bookDisplayOrder ranks which tracked release's state represents the book:
// active work first, then completion, then failure.
var bookDisplayOrder = []models.TaskState{
	models.TaskDownloading,
	models.TaskLocating,
	models.TaskResolving,
	models.TaskQueued,
	models.TaskComplete,
	models.TaskError,
}

// ResolveBook derives the affordance for a metadata book whose downloads
// run as per-release tasks. The book id itself, then any tracked release
// task, supplies the live state; once every terminal tracked release is
// dismissed the book reverts to actionable.
func ResolveBook(book models.Book, tracked []string, snapshot models.StatusData, dismissed DismissedFunc, mode models.RequestPolicyMode) Info {
	if st, _, ok := snapshot.Lookup(book.ID); ok {
		if !st.Terminal() || !dismissed(taskKey(book.ID)) {
			progress, hasProgress := snapshot.Progress[book.ID]
			return fromTask(st, progress, hasProgress)
		}
	}

	byState := map[models.TaskState][]string{}
	for _, id := range tracked {
		st, _, ok := snapshot.Lookup(id)
		if !ok {
			continue
		}
		if st.Terminal() && dismissed(taskKey(id)) {
			continue
		}
		byState[st] = append(byState[st], id)
	}

	for _, st := range bookDisplayOrder {
		ids := byState[st]
		if len(ids) == 0 {
			continue
		}
		id := ids[0]
		progress, hasProgress := snapshot.Progress[id]
		return fromTask(st, progress, hasProgress)
	}

	return fromMode(mode, book.IsMetadata())
}
