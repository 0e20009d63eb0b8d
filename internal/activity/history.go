package activity

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

// HistoryStore persists resolved feed items beyond the live status
// snapshot, so the history view survives the server pruning its buckets.
type HistoryStore struct {
	db *sql.DB
	sync.RWMutex
	closeOnce sync.Once
	closeErr  error
}

// OpenHistory initializes a history store at path.
func OpenHistory(path string) (*HistoryStore, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create history directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database at %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping history database at %s: %w", path, err)
	}

	h := &HistoryStore{db: db}
	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	log.Debugf("History database opened at %s", path)
	return h, nil
}

func (h *HistoryStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS history (
		key TEXT PRIMARY KEY,
		kind TEXT NOT NULL CHECK (kind IN ('download', 'request')),
		state TEXT NOT NULL,
		title TEXT NOT NULL,
		author TEXT,
		content_type TEXT,
		detail TEXT,
		resolved_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_resolved_at ON history(resolved_at);
	CREATE INDEX IF NOT EXISTS idx_history_kind ON history(kind);
	`
	_, err := h.db.Exec(schema)
	return err
}

// Close safely closes the database connection.
func (h *HistoryStore) Close() error {
	h.closeOnce.Do(func() {
		h.Lock()
		defer h.Unlock()
		h.closeErr = h.db.Close()
		if h.closeErr != nil {
			log.Errorf("Error closing history database: %v", h.closeErr)
		}
	})
	return h.closeErr
}

// HistoryEntry is one persisted resolved item.
type HistoryEntry struct {
	Key         string
	Kind        string
	State       string
	Title       string
	Author      string
	ContentType string
	Detail      string
	ResolvedAt  int64
}

// Upsert records or refreshes a resolved item. The resolved timestamp is
// kept from the first sighting so re-recording does not reorder history.
func (h *HistoryStore) Upsert(entry HistoryEntry) error {
	h.Lock()
	defer h.Unlock()

	if entry.ResolvedAt == 0 {
		entry.ResolvedAt = time.Now().Unix()
	}
	_, err := h.db.Exec(`
		INSERT INTO history (key, kind, state, title, author, content_type, detail, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			state = excluded.state,
			title = excluded.title,
			author = excluded.author,
			content_type = excluded.content_type,
			detail = excluded.detail
	`, entry.Key, entry.Kind, entry.State, entry.Title, entry.Author, entry.ContentType, entry.Detail, entry.ResolvedAt)
	if err != nil {
		return fmt.Errorf("error upserting history entry %s: %w", entry.Key, err)
	}
	return nil
}

// List returns all persisted entries, newest first.
func (h *HistoryStore) List() ([]HistoryEntry, error) {
	h.RLock()
	defer h.RUnlock()

	rows, err := h.db.Query(`
		SELECT key, kind, state, title, author, content_type, detail, resolved_at
		FROM history ORDER BY resolved_at DESC, key
	`)
	if err != nil {
		return nil, fmt.Errorf("error querying history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var author, contentType, detail sql.NullString
		if err := rows.Scan(&e.Key, &e.Kind, &e.State, &e.Title, &author, &contentType, &detail, &e.ResolvedAt); err != nil {
			return nil, fmt.Errorf("error scanning history row: %w", err)
		}
		e.Author = author.String
		e.ContentType = contentType.String
		e.Detail = detail.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Keys returns every persisted history key.
func (h *HistoryStore) Keys() ([]string, error) {
	h.RLock()
	defer h.RUnlock()

	rows, err := h.db.Query("SELECT key FROM history")
	if err != nil {
		return nil, fmt.Errorf("error querying history keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("error scanning history key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
