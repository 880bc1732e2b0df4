// Package scrollback archives channel traffic in SQLite so it can be read
// back after the in-memory recall buffers have rolled over.
package scrollback

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

var now = time.Now

// Entry is one archived channel message.
type Entry struct {
	ID         int64
	Channel    string
	Sender     gamedb.DBRef
	SenderName string
	Text       string
	Time       time.Time
}

// Store manages the SQLite connection holding the archive.
type Store struct {
	db      *sql.DB
	mu      sync.Mutex
	path    string
	timeout time.Duration
}

// Open opens a SQLite database, sets WAL mode and busy timeout, and
// creates the archive tables.
func Open(path string, timeoutSec int) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("scrollback: opening sqlite %s: %w", path, err)
	}
	// Set WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("scrollback: setting WAL mode: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", timeoutSec*1000)); err != nil {
		db.Close()
		return nil, fmt.Errorf("scrollback: setting busy timeout: %w", err)
	}
	s := &Store{
		db:      db,
		path:    path,
		timeout: time.Duration(timeoutSec) * time.Second,
	}
	if err := s.InitTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the SQLite connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the filesystem path of the SQLite database.
func (s *Store) Path() string { return s.path }

// InitTables creates the archive table and its index if missing.
func (s *Store) InitTables() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS channel_scrollback (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	channel     TEXT    NOT NULL COLLATE NOCASE,
	sender      INTEGER NOT NULL,
	sender_name TEXT    NOT NULL,
	message     TEXT    NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scrollback_channel ON channel_scrollback(channel, id);
CREATE INDEX IF NOT EXISTS idx_scrollback_created ON channel_scrollback(created_at);`)
	if err != nil {
		return fmt.Errorf("scrollback: init tables: %w", err)
	}
	return nil
}

func (s *Store) context() (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), s.timeout)
}

// Insert archives one channel message.
func (s *Store) Insert(channel string, sender gamedb.DBRef, senderName, text string) error {
	ctx, cancel := s.context()
	defer cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channel_scrollback (channel, sender, sender_name, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		channel, int64(sender), senderName, text, now().UnixNano())
	if err != nil {
		return fmt.Errorf("scrollback: insert: %w", err)
	}
	return nil
}

// Recent returns up to n of the newest messages on channel, oldest first.
// Channel names match case-insensitively.
func (s *Store) Recent(channel string, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	ctx, cancel := s.context()
	defer cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channel, sender, sender_name, message, created_at
		 FROM channel_scrollback WHERE channel = ? ORDER BY id DESC LIMIT ?`,
		channel, n)
	if err != nil {
		return nil, fmt.Errorf("scrollback: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var sender, created int64
		if err := rows.Scan(&e.ID, &e.Channel, &sender, &e.SenderName, &e.Text, &created); err != nil {
			return nil, fmt.Errorf("scrollback: scan: %w", err)
		}
		e.Sender = gamedb.DBRef(sender)
		e.Time = time.Unix(0, created)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scrollback: query: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Rename moves a channel's history to its new name.
func (s *Store) Rename(oldName, newName string) error {
	ctx, cancel := s.context()
	defer cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `UPDATE channel_scrollback SET channel = ? WHERE channel = ?`, newName, oldName); err != nil {
		return fmt.Errorf("scrollback: rename: %w", err)
	}
	return nil
}

// Purge deletes messages older than retention and returns how many went.
func (s *Store) Purge(retention time.Duration) (int64, error) {
	ctx, cancel := s.context()
	defer cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now().Add(-retention).UnixNano()
	res, err := s.db.ExecContext(ctx, `DELETE FROM channel_scrollback WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("scrollback: purge: %w", err)
	}
	return res.RowsAffected()
}

// Checkpoint forces a WAL checkpoint to flush all writes to the main database file.
func (s *Store) Checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}
