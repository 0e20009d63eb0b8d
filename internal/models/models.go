package models

import (
	"encoding/json"
	"fmt"
)

// ContentType distinguishes the two catalog media kinds.
type ContentType string

const (
	ContentTypeEbook     ContentType = "ebook"
	ContentTypeAudiobook ContentType = "audiobook"
)

// RequestPolicyMode is the server-declared access mode for an item or source.
type RequestPolicyMode string

const (
	ModeDownload       RequestPolicyMode = "download"
	ModeRequestRelease RequestPolicyMode = "request_release"
	ModeRequestBook    RequestPolicyMode = "request_book"
	ModeBlocked        RequestPolicyMode = "blocked"
)

// Restrictiveness returns a comparable rank for a mode. Higher means more
// restrictive. Unknown modes rank as blocked so a garbled policy never
// silently grants more access than intended.
func (m RequestPolicyMode) Restrictiveness() int {
	switch m {
	case ModeDownload:
		return 0
	case ModeRequestRelease, ModeRequestBook:
		return 1
	case ModeBlocked:
		return 2
	default:
		return 2
	}
}

// RequiresRequest reports whether the mode demands filing a request instead
// of downloading directly.
func (m RequestPolicyMode) RequiresRequest() bool {
	return m == ModeRequestRelease || m == ModeRequestBook
}

// RequestLevel maps a request-demanding mode to the level the request must
// be filed at. Returns false for modes that do not demand a request.
func (m RequestPolicyMode) RequestLevel() (RequestLevel, bool) {
	switch m {
	case ModeRequestRelease:
		return RequestLevelRelease, true
	case ModeRequestBook:
		return RequestLevelBook, true
	default:
		return "", false
	}
}

type (
	// Book is a catalog item. A book with both Provider and ProviderID set is
	// a metadata-level item whose concrete downloads come from per-source
	// releases; otherwise it is a directly downloadable library item.
	Book struct {
		ID          string `json:"id"`
		Provider    string `json:"provider,omitempty"`
		ProviderID  string `json:"provider_id,omitempty"`
		Title       string `json:"title"`
		Author      string `json:"author"`
		Year        int    `json:"year,omitempty"`
		Preview     string `json:"preview,omitempty"`
		Description string `json:"description,omitempty"`
		Format      string `json:"format,omitempty"`
		SizeBytes   int64  `json:"size_bytes,omitempty"`
	}

	// Release is one downloadable option for a metadata book, offered by a
	// single indexer/source.
	Release struct {
		Source      string `json:"source"`
		SourceID    string `json:"source_id"`
		Title       string `json:"title"`
		Format      string `json:"format"`
		SizeBytes   int64  `json:"size_bytes"`
		DownloadURL string `json:"download_url"`
		Protocol    string `json:"protocol"`
	}

	// RequestPolicy is the server's access policy snapshot.
	RequestPolicy struct {
		Defaults        map[ContentType]RequestPolicyMode            `json:"defaults"`
		SourceOverrides map[string]map[ContentType]RequestPolicyMode `json:"source_overrides,omitempty"`
		IsAdmin         bool                                         `json:"is_admin"`
		RequestsEnabled bool                                         `json:"requests_enabled"`
		AllowNotes      bool                                         `json:"allow_notes"`
		CurrentUsername string                                       `json:"current_username,omitempty"`
	}

	// StatusData is a full snapshot of the server's background task buckets.
	// A task id appears in at most one bucket at a time.
	StatusData struct {
		Queued      map[string]Book    `json:"queued"`
		Resolving   map[string]Book    `json:"resolving"`
		Locating    map[string]Book    `json:"locating"`
		Downloading map[string]Book    `json:"downloading"`
		Complete    map[string]Book    `json:"complete"`
		Error       map[string]Book    `json:"error"`
		Progress    map[string]float64 `json:"progress,omitempty"`
	}

	// AppConfig carries server-declared client configuration.
	AppConfig struct {
		SupportedFormats map[ContentType][]string `json:"supported_formats"`
		DefaultContent   ContentType              `json:"default_content_type"`
		PushEnabled      bool                     `json:"push_enabled"`
	}

	// ActingAsUser is the delegate target an administrator acts on behalf of.
	ActingAsUser struct {
		ID          string `json:"id"`
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
	}

	// RequestRecord is a persisted user/admin request.
	RequestRecord struct {
		ID           string       `json:"id"`
		RequestLevel RequestLevel `json:"request_level"`
		Status       string       `json:"status"`
		ContentType  ContentType  `json:"content_type"`
		BookData     Book         `json:"book_data"`
		ReleaseData  *Release     `json:"release_data,omitempty"`
		Note         string       `json:"note,omitempty"`
		Username     string       `json:"username,omitempty"`
		CreatedAt    int64        `json:"created_at"`
		UpdatedAt    int64        `json:"updated_at"`
	}

	// RequestContext describes where a request originated.
	RequestContext struct {
		Source       string       `json:"source,omitempty"`
		ContentType  ContentType  `json:"content_type"`
		RequestLevel RequestLevel `json:"request_level"`
	}

	// RequestPayload is the body for createRequest.
	RequestPayload struct {
		BookData       Book           `json:"book_data"`
		ReleaseData    *Release       `json:"release_data,omitempty"`
		Context        RequestContext `json:"context"`
		Note           string         `json:"note,omitempty"`
		IdempotencyKey string         `json:"idempotency_key,omitempty"`
	}

	// ReleaseDownloadPayload carries denormalized book fields alongside the
	// release so the server-side record survives provider metadata drift.
	ReleaseDownloadPayload struct {
		BookID      string      `json:"book_id"`
		Provider    string      `json:"provider,omitempty"`
		ProviderID  string      `json:"provider_id,omitempty"`
		Title       string      `json:"title"`
		Author      string      `json:"author"`
		Year        int         `json:"year,omitempty"`
		Preview     string      `json:"preview,omitempty"`
		ContentType ContentType `json:"content_type"`
		Release     Release     `json:"release"`
	}
)

// RequestLevel is the granularity a request is filed at.
type RequestLevel string

const (
	RequestLevelBook    RequestLevel = "book"
	RequestLevelRelease RequestLevel = "release"
)

// Request status constants.
const (
	RequestStatusPending   = "pending"
	RequestStatusApproved  = "approved"
	RequestStatusRejected  = "rejected"
	RequestStatusFulfilled = "fulfilled"
)

// IsMetadata reports whether the book is a provider/metadata-level item.
// Metadata books download via releases and request at book or release level;
// library books download directly.
func (b Book) IsMetadata() bool {
	return b.Provider != "" && b.ProviderID != ""
}

// Key returns the release's identity within its book's release set.
func (r Release) Key() string {
	return r.Source + ":" + r.SourceID
}

// TaskState names a status bucket.
type TaskState string

const (
	TaskQueued      TaskState = "queued"
	TaskResolving   TaskState = "resolving"
	TaskLocating    TaskState = "locating"
	TaskDownloading TaskState = "downloading"
	TaskComplete    TaskState = "complete"
	TaskError       TaskState = "error"
)

// Terminal reports whether the state is an end state.
func (s TaskState) Terminal() bool {
	return s == TaskComplete || s == TaskError
}

// taskStateOrder is the bucket scan order, matching the transition order
// queued -> resolving/locating -> downloading -> complete/error.
var taskStateOrder = []TaskState{TaskQueued, TaskResolving, TaskLocating, TaskDownloading, TaskComplete, TaskError}

// NewStatusData returns a snapshot with all buckets allocated.
func NewStatusData() StatusData {
	return StatusData{
		Queued:      map[string]Book{},
		Resolving:   map[string]Book{},
		Locating:    map[string]Book{},
		Downloading: map[string]Book{},
		Complete:    map[string]Book{},
		Error:       map[string]Book{},
		Progress:    map[string]float64{},
	}
}

// bucket returns the map backing a given state.
func (s StatusData) bucket(st TaskState) map[string]Book {
	switch st {
	case TaskQueued:
		return s.Queued
	case TaskResolving:
		return s.Resolving
	case TaskLocating:
		return s.Locating
	case TaskDownloading:
		return s.Downloading
	case TaskComplete:
		return s.Complete
	case TaskError:
		return s.Error
	}
	return nil
}

// Bucket exposes the map for a state; callers must treat it as read-only.
func (s StatusData) Bucket(st TaskState) map[string]Book {
	return s.bucket(st)
}

// Lookup finds the state and book for a task id, scanning buckets in
// transition order. ok is false when the id is in no bucket.
func (s StatusData) Lookup(id string) (TaskState, Book, bool) {
	for _, st := range taskStateOrder {
		if b, found := s.bucket(st)[id]; found {
			return st, b, true
		}
	}
	return "", Book{}, false
}

// States returns the bucket scan order.
func States() []TaskState {
	out := make([]TaskState, len(taskStateOrder))
	copy(out, taskStateOrder)
	return out
}

// ResolvedMode applies the per-source override table on top of the content
// type default. An unknown source falls back to the default; an absent
// default for the content type resolves to download for admins, blocked
// otherwise.
func (p *RequestPolicy) ResolvedMode(source string, ct ContentType) RequestPolicyMode {
	if p == nil {
		return ModeBlocked
	}
	if source != "" {
		if byType, ok := p.SourceOverrides[source]; ok {
			if m, ok := byType[ct]; ok {
				return m
			}
		}
	}
	if m, ok := p.Defaults[ct]; ok {
		return m
	}
	if p.IsAdmin {
		return ModeDownload
	}
	return ModeBlocked
}

// MostRestrictiveDefault returns the most restrictive mode among the policy
// defaults, used as the degraded answer before any policy has loaded.
func (p *RequestPolicy) MostRestrictiveDefault() RequestPolicyMode {
	if p == nil || len(p.Defaults) == 0 {
		return ModeBlocked
	}
	worst := ModeDownload
	for _, m := range p.Defaults {
		if m.Restrictiveness() > worst.Restrictiveness() {
			worst = m
		}
	}
	return worst
}

// Validate rejects structurally impossible records at the API boundary.
func (r *RequestRecord) Validate() error {
	switch r.RequestLevel {
	case RequestLevelBook:
		if r.ReleaseData != nil {
			return fmt.Errorf("book-level request %s carries release data", r.ID)
		}
	case RequestLevelRelease:
		if r.ReleaseData == nil {
			return fmt.Errorf("release-level request %s missing release data", r.ID)
		}
	default:
		return fmt.Errorf("request %s has unknown level %q", r.ID, r.RequestLevel)
	}
	return nil
}

// UnmarshalJSON fills nil bucket maps so a sparse push event still yields a
// snapshot that is safe to index into.
func (s *StatusData) UnmarshalJSON(data []byte) error {
	type alias StatusData
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = StatusData(a)
	if s.Queued == nil {
		s.Queued = map[string]Book{}
	}
	if s.Resolving == nil {
		s.Resolving = map[string]Book{}
	}
	if s.Locating == nil {
		s.Locating = map[string]Book{}
	}
	if s.Downloading == nil {
		s.Downloading = map[string]Book{}
	}
	if s.Complete == nil {
		s.Complete = map[string]Book{}
	}
	if s.Error == nil {
		s.Error = map[string]Book{}
	}
	if s.Progress == nil {
		s.Progress = map[string]float64{}
	}
	return nil
}

// Clone deep-copies the snapshot so readers never alias the feed's buckets.
func (s StatusData) Clone() StatusData {
	out := NewStatusData()
	for st, bucket := range map[TaskState]map[string]Book{
		TaskQueued:      s.Queued,
		TaskResolving:   s.Resolving,
		TaskLocating:    s.Locating,
		TaskDownloading: s.Downloading,
		TaskComplete:    s.Complete,
		TaskError:       s.Error,
	} {
		dst := out.bucket(st)
		for id, b := range bucket {
			dst[id] = b
		}
	}
	for id, p := range s.Progress {
		out.Progress[id] = p
	}
	return out
}

// NewReleaseDownloadPayload denormalizes the parent book's descriptive
// fields into the payload. Title/author/year/preview come from the book,
// not the release, so the record survives provider drift.
func NewReleaseDownloadPayload(book Book, release Release, ct ContentType) ReleaseDownloadPayload {
	return ReleaseDownloadPayload{
		BookID:      book.ID,
		Provider:    book.Provider,
		ProviderID:  book.ProviderID,
		Title:       book.Title,
		Author:      book.Author,
		Year:        book.Year,
		Preview:     book.Preview,
		ContentType: ct,
		Release:     release,
	}
}
