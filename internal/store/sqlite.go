// Package store provides storage backends for BotWeave.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BotWeave/BotWeave/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN (a file path
// to the database). If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// FindOrCreateSession returns the active session for phone, inserting a
// fresh one when none exists.
func (s *SQLiteStore) FindOrCreateSession(phone string) (*models.Session, error) {
	sess, err := s.GetSession(phone)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return sess, nil
	}

	sess = models.NewSession(phone)
	contextJSON, historyJSON, err := encodeSessionBlobs(sess)
	if err != nil {
		return nil, err
	}
	_, err = s.db.Exec(`INSERT INTO sessions (id, phone, status, locale, current_screen_id, flow_version_ref, context, history, ended_reason, last_interacted_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Phone, sess.Status, sess.Locale, sess.CurrentScreenID, sess.FlowVersionRef,
		contextJSON, historyJSON, sess.EndedReason, sess.LastInteractedAt, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore FindOrCreateSession insert failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to insert session for %s: %w", phone, err)
	}
	slog.Debug("SQLiteStore FindOrCreateSession created", "phone", phone, "session_id", sess.ID)
	return sess, nil
}

// GetSession returns the active session for phone, or nil when none exists.
func (s *SQLiteStore) GetSession(phone string) (*models.Session, error) {
	row := s.db.QueryRow(`SELECT id, phone, status, locale, current_screen_id, flow_version_ref, context, history, ended_reason, last_interacted_at, created_at, updated_at
		FROM sessions WHERE phone = ? AND status = ? ORDER BY created_at DESC LIMIT 1`, phone, models.SessionStatusActive)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to load session for %s: %w", phone, err)
	}
	return sess, nil
}

// SaveSession writes the full session state as one atomic update.
func (s *SQLiteStore) SaveSession(sess *models.Session) error {
	contextJSON, historyJSON, err := encodeSessionBlobs(sess)
	if err != nil {
		return err
	}
	sess.UpdatedAt = time.Now()
	_, err = s.db.Exec(`INSERT OR REPLACE INTO sessions (id, phone, status, locale, current_screen_id, flow_version_ref, context, history, ended_reason, last_interacted_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Phone, sess.Status, sess.Locale, sess.CurrentScreenID, sess.FlowVersionRef,
		contextJSON, historyJSON, sess.EndedReason, sess.LastInteractedAt, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "phone", sess.Phone)
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "phone", sess.Phone, "screen", sess.CurrentScreenID, "status", sess.Status)
	return nil
}

// ListIdleSessions returns active sessions idle since before the cutoff.
func (s *SQLiteStore) ListIdleSessions(before time.Time) ([]*models.Session, error) {
	rows, err := s.db.Query(`SELECT id, phone, status, locale, current_screen_id, flow_version_ref, context, history, ended_reason, last_interacted_at, created_at, updated_at
		FROM sessions WHERE status = ? AND last_interacted_at < ?`, models.SessionStatusActive, before)
	if err != nil {
		slog.Error("SQLiteStore ListIdleSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query idle sessions: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

// ListActiveTriggers returns active triggers ordered by ascending priority
// then descending recency.
func (s *SQLiteStore) ListActiveTriggers() ([]models.Trigger, error) {
	rows, err := s.db.Query(`SELECT id, keyword, flow_version_ref, priority, locale, is_active, created_at
		FROM triggers WHERE is_active = 1 ORDER BY priority ASC, created_at DESC`)
	if err != nil {
		slog.Error("SQLiteStore ListActiveTriggers query failed", "error", err)
		return nil, fmt.Errorf("failed to query triggers: %w", err)
	}
	defer rows.Close()
	return collectTriggers(rows)
}

// SaveTrigger inserts or replaces a trigger entry.
func (s *SQLiteStore) SaveTrigger(t models.Trigger) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO triggers (id, keyword, flow_version_ref, priority, locale, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Keyword, t.FlowVersionRef, t.Priority, t.Locale, t.IsActive, t.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveTrigger failed", "error", err, "keyword", t.Keyword)
		return fmt.Errorf("failed to save trigger %s: %w", t.Keyword, err)
	}
	return nil
}

// SaveFlowVersion registers an immutable flow version; an existing ref is
// rejected rather than overwritten.
func (s *SQLiteStore) SaveFlowVersion(ref string, definition []byte) error {
	_, err := s.db.Exec(`INSERT INTO flow_versions (ref, definition, created_at) VALUES (?, ?, ?)`,
		ref, string(definition), time.Now())
	if err != nil {
		slog.Error("SQLiteStore SaveFlowVersion failed", "error", err, "ref", ref)
		return fmt.Errorf("failed to save flow version %s: %w", ref, err)
	}
	return nil
}

// GetFlowVersion returns the raw definition document for ref.
func (s *SQLiteStore) GetFlowVersion(ref string) ([]byte, error) {
	var definition string
	err := s.db.QueryRow(`SELECT definition FROM flow_versions WHERE ref = ?`, ref).Scan(&definition)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("flow version %q not found", ref)
	}
	if err != nil {
		slog.Error("SQLiteStore GetFlowVersion failed", "error", err, "ref", ref)
		return nil, fmt.Errorf("failed to load flow version %s: %w", ref, err)
	}
	return []byte(definition), nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
