// Package store is the durable session document store: an embedded SQLite
// database implementing gateway.Gateway.
//
// Architecture:
//   - Database file: pawsync.db (configurable with store.path)
//   - WAL mode: concurrent readers during writes, so `pawsync serve` and
//     CLI commands can share one file
//   - Schema: one sessions table holding the full JSON document plus the
//     metadata columns used for listing
//   - Change feed: writes made through a Store are published to its
//     subscribers after commit; writes made by other processes are picked
//     up by a Watcher on the database directory
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/pawsitive/pawsync/internal/gateway"
	"github.com/pawsitive/pawsync/internal/schema"
)

// Config holds configuration for a Store.
type Config struct {
	// Watch enables the cross-process change feed.
	Watch bool

	// WatchDebounce is how long the database files must be quiet before
	// subscribed sessions are re-read.
	WatchDebounce time.Duration

	// Logger for store activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Watch:         true,
		WatchDebounce: 100 * time.Millisecond,
		Logger:        log.New(os.Stderr, "[store] ", log.LstdFlags),
	}
}

// missingVersion marks a subscribed session that is known not to exist.
const missingVersion int64 = -1

// Store wraps the database connection and the subscription hub.
type Store struct {
	conn   *sqlx.DB
	path   string
	writer string
	config *Config

	// writeMu orders writes with their publication so subscribers see
	// snapshots in commit order. versions holds the last version
	// published per subscribed id.
	writeMu  sync.Mutex
	versions map[string]int64

	hub     *gateway.Hub
	watcher *Watcher
}

var _ gateway.Gateway = (*Store)(nil)

// Open creates a store at the specified path, creating the database and
// its schema if needed.
//
// The caller MUST call Close() when done to ensure proper cleanup.
//
// Example:
//
//	st, err := store.Open("pawsync.db", nil)
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func Open(path string, config *Config) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sqlx.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn:     conn,
		path:     path,
		writer:   uuid.NewString(),
		config:   config,
		versions: make(map[string]int64),
		hub:      gateway.NewHub(),
	}

	// Enable WAL mode for concurrent reads
	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if err := s.InitSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	if config.Watch {
		w, err := NewWatcher(path, config.WatchDebounce, config.Logger, s.refresh)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		if err := w.Start(); err != nil {
			_ = s.Close()
			return nil, err
		}
		s.watcher = w
	}

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Writer returns the id this store stamps on the rows it writes.
func (s *Store) Writer() string {
	return s.writer
}

// Close stops the watcher, ends all subscriptions and closes the database.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (s *Store) Close() error {
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.config.Logger.Printf("Error stopping watcher: %v", err)
		}
		s.watcher = nil
	}
	s.hub.CloseAll()

	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.config.Logger.Printf("Warning: failed to checkpoint WAL: %v", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

// InitSchema creates the sessions table if it doesn't exist. It is
// idempotent.
func (s *Store) InitSchema(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		sitter_name TEXT NOT NULL,
		start_date TEXT NOT NULL,
		total_days INTEGER NOT NULL,
		dogs TEXT NOT NULL,      -- JSON array
		contacts TEXT NOT NULL,  -- JSON object
		created_at INTEGER NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		writer TEXT NOT NULL,
		doc TEXT NOT NULL        -- full session document
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);
	`
	if _, err := s.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// metaRow is the listing projection of a sessions row.
type metaRow struct {
	ID         string `db:"id"`
	SitterName string `db:"sitter_name"`
	StartDate  string `db:"start_date"`
	TotalDays  int    `db:"total_days"`
	Dogs       string `db:"dogs"`
	Contacts   string `db:"contacts"`
	CreatedAt  int64  `db:"created_at"`
}

func (r metaRow) meta() (schema.Meta, error) {
	m := schema.Meta{
		ID:         r.ID,
		SitterName: r.SitterName,
		StartDate:  r.StartDate,
		TotalDays:  r.TotalDays,
		CreatedAt:  r.CreatedAt,
	}
	if err := json.Unmarshal([]byte(r.Dogs), &m.Dogs); err != nil {
		return m, fmt.Errorf("failed to unmarshal dogs: %w", err)
	}
	if err := json.Unmarshal([]byte(r.Contacts), &m.EmergencyContacts); err != nil {
		return m, fmt.Errorf("failed to unmarshal contacts: %w", err)
	}
	return m, nil
}

// rowValues derives the metadata columns from a document.
type rowValues struct {
	meta     schema.Meta
	dogs     string
	contacts string
	doc      string
}

func encodeRow(doc gateway.Document) (*rowValues, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	sess, err := gateway.DecodeSessionJSON(data)
	if err != nil {
		return nil, err
	}
	meta := sess.Meta()
	dogs, err := json.Marshal(meta.Dogs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dogs: %w", err)
	}
	contacts, err := json.Marshal(meta.EmergencyContacts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal contacts: %w", err)
	}
	return &rowValues{meta: meta, dogs: string(dogs), contacts: string(contacts), doc: string(data)}, nil
}

func (s *Store) now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Get implements gateway.Gateway.
func (s *Store) Get(ctx context.Context, id string) (*schema.Session, error) {
	sess, _, err := s.load(ctx, s.conn, id)
	if err != nil {
		return nil, classify(gateway.OpGet, id, err)
	}
	return sess, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// load reads and decodes one document with its version.
func (s *Store) load(ctx context.Context, q queryer, id string) (*schema.Session, int64, error) {
	var doc string
	var version int64
	err := q.QueryRowContext(ctx, `SELECT doc, version FROM sessions WHERE id = ?`, id).Scan(&doc, &version)
	if err != nil {
		return nil, 0, err
	}
	sess, err := gateway.DecodeSessionJSON([]byte(doc))
	if err != nil {
		return nil, 0, err
	}
	return sess, version, nil
}

// Exists implements gateway.Gateway.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, classify(gateway.OpExists, id, err)
	}
	return n > 0, nil
}

// Create implements gateway.Gateway.
func (s *Store) Create(ctx context.Context, sess *schema.Session) error {
	if err := sess.Validate(); err != nil {
		return gateway.Wrap(gateway.OpCreate, sess.ID, fmt.Errorf("invalid session: %w", err))
	}
	doc, err := gateway.EncodeSession(sess)
	if err != nil {
		return gateway.Wrap(gateway.OpCreate, sess.ID, err)
	}
	row, err := encodeRow(doc)
	if err != nil {
		return gateway.Wrap(gateway.OpCreate, sess.ID, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.conn.ExecContext(ctx, `
	INSERT INTO sessions (
		id, sitter_name, start_date, total_days, dogs, contacts,
		created_at, updated_at, version, writer, doc
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	ON CONFLICT(id) DO NOTHING
	`,
		sess.ID,
		row.meta.SitterName,
		row.meta.StartDate,
		row.meta.TotalDays,
		row.dogs,
		row.contacts,
		row.meta.CreatedAt,
		s.now(),
		s.writer,
		row.doc,
	)
	if err != nil {
		return classify(gateway.OpCreate, sess.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return gateway.Wrap(gateway.OpCreate, sess.ID, gateway.ErrAlreadyExists)
	}
	s.config.Logger.Printf("Created session %s", sess.ID)
	s.publishLocked(ctx, sess.ID)
	return nil
}

// SetMerged implements gateway.Gateway. The read, merge and write happen in
// one transaction and bump the row version.
func (s *Store) SetMerged(ctx context.Context, id string, partial gateway.Document) error {
	clean, err := gateway.Sanitize(partial)
	if err != nil {
		return gateway.Wrap(gateway.OpSet, id, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return classify(gateway.OpSet, id, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	var stored string
	if err := tx.QueryRowContext(ctx, `SELECT doc FROM sessions WHERE id = ?`, id).Scan(&stored); err != nil {
		return classify(gateway.OpSet, id, err)
	}
	current, err := gateway.ParseDocument([]byte(stored))
	if err != nil {
		return gateway.Wrap(gateway.OpSet, id, fmt.Errorf("failed to parse stored document: %w", err))
	}

	row, err := encodeRow(gateway.Merge(current, clean))
	if err != nil {
		return gateway.Wrap(gateway.OpSet, id, err)
	}

	_, err = tx.ExecContext(ctx, `
	UPDATE sessions SET
		sitter_name = ?,
		start_date = ?,
		total_days = ?,
		dogs = ?,
		contacts = ?,
		created_at = ?,
		updated_at = ?,
		version = version + 1,
		writer = ?,
		doc = ?
	WHERE id = ?
	`,
		row.meta.SitterName,
		row.meta.StartDate,
		row.meta.TotalDays,
		row.dogs,
		row.contacts,
		row.meta.CreatedAt,
		s.now(),
		s.writer,
		row.doc,
		id,
	)
	if err != nil {
		return classify(gateway.OpSet, id, fmt.Errorf("failed to update session: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return classify(gateway.OpSet, id, fmt.Errorf("failed to commit transaction: %w", err))
	}

	s.publishLocked(ctx, id)
	return nil
}

// Delete implements gateway.Gateway. Deleting a missing session is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return classify(gateway.OpDelete, id, fmt.Errorf("failed to delete session: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.config.Logger.Printf("Deleted session %s", id)
		s.publishLocked(ctx, id)
	}
	return nil
}

// List implements gateway.Gateway. Rows are returned newest first.
func (s *Store) List(ctx context.Context) ([]schema.Meta, error) {
	var rows []metaRow
	err := s.conn.SelectContext(ctx, &rows, `
	SELECT id, sitter_name, start_date, total_days, dogs, contacts, created_at
	FROM sessions
	ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, classify(gateway.OpList, "", fmt.Errorf("failed to list sessions: %w", err))
	}

	out := make([]schema.Meta, 0, len(rows))
	for _, r := range rows {
		m, err := r.meta()
		if err != nil {
			return nil, gateway.Wrap(gateway.OpList, r.ID, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// Subscribe implements gateway.Gateway.
func (s *Store) Subscribe(ctx context.Context, id string) (gateway.Subscription, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ev, version := s.snapshot(ctx, id)
	if ev.Err != nil && ev.Err.Kind != gateway.KindNotFound {
		return nil, ev.Err
	}
	feed := s.hub.Subscribe(ctx, id)
	feed.Publish(ev)
	if _, ok := s.versions[id]; !ok {
		s.versions[id] = version
	}
	return feed, nil
}

// snapshot reads the current event for id and its version.
func (s *Store) snapshot(ctx context.Context, id string) (gateway.Event, int64) {
	sess, version, err := s.load(ctx, s.conn, id)
	if err != nil {
		return gateway.Event{Err: classifyEvent(gateway.OpSubscribe, id, err)}, missingVersion
	}
	return gateway.Event{Session: sess}, version
}

// publishLocked sends the current state of id to its subscribers.
// Caller must hold writeMu.
func (s *Store) publishLocked(ctx context.Context, id string) {
	if s.hub.Count(id) == 0 {
		delete(s.versions, id)
		return
	}
	ev, version := s.snapshot(context.WithoutCancel(ctx), id)
	s.versions[id] = version
	s.hub.Publish(id, func() gateway.Event {
		return gateway.Event{Session: ev.Session.Clone(), Err: ev.Err}
	})
}

// refresh re-reads subscribed sessions after a change on disk and publishes
// those whose version moved.
func (s *Store) refresh() {
	ctx := context.Background()
	for _, id := range s.hub.IDs() {
		s.writeMu.Lock()
		var version int64
		var writer string
		err := s.conn.QueryRowContext(ctx, `SELECT version, writer FROM sessions WHERE id = ?`, id).Scan(&version, &writer)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			version = missingVersion
		case err != nil:
			s.config.Logger.Printf("Error checking session %s: %v", id, err)
			s.writeMu.Unlock()
			continue
		}
		if last, ok := s.versions[id]; !ok || last != version {
			if writer != "" && writer != s.writer {
				s.config.Logger.Printf("External change to %s (version %d)", id, version)
			}
			s.publishLocked(ctx, id)
		}
		s.writeMu.Unlock()
	}
}
