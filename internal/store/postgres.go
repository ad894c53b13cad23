// Package store provides storage backends for BotWeave.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BotWeave/BotWeave/internal/models"
	_ "github.com/lib/pq"
)

// Connection pool configuration.
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 25
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store from the provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// FindOrCreateSession returns the active session for phone, inserting a
// fresh one when none exists.
func (s *PostgresStore) FindOrCreateSession(phone string) (*models.Session, error) {
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
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, $10, $11, $12)`,
		sess.ID, sess.Phone, sess.Status, sess.Locale, sess.CurrentScreenID, sess.FlowVersionRef,
		contextJSON, historyJSON, sess.EndedReason, sess.LastInteractedAt, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore FindOrCreateSession insert failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to insert session for %s: %w", phone, err)
	}
	slog.Debug("PostgresStore FindOrCreateSession created", "phone", phone, "session_id", sess.ID)
	return sess, nil
}

// GetSession returns the active session for phone, or nil when none exists.
func (s *PostgresStore) GetSession(phone string) (*models.Session, error) {
	row := s.db.QueryRow(`SELECT id, phone, status, locale, current_screen_id, flow_version_ref, context, history, ended_reason, last_interacted_at, created_at, updated_at
		FROM sessions WHERE phone = $1 AND status = $2 ORDER BY created_at DESC LIMIT 1`, phone, models.SessionStatusActive)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to load session for %s: %w", phone, err)
	}
	return sess, nil
}

// SaveSession writes the full session state as one atomic upsert.
func (s *PostgresStore) SaveSession(sess *models.Session) error {
	contextJSON, historyJSON, err := encodeSessionBlobs(sess)
	if err != nil {
		return err
	}
	sess.UpdatedAt = time.Now()
	_, err = s.db.Exec(`INSERT INTO sessions (id, phone, status, locale, current_screen_id, flow_version_ref, context, history, ended_reason, last_interacted_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			locale = EXCLUDED.locale,
			current_screen_id = EXCLUDED.current_screen_id,
			flow_version_ref = EXCLUDED.flow_version_ref,
			context = EXCLUDED.context,
			history = EXCLUDED.history,
			ended_reason = EXCLUDED.ended_reason,
			last_interacted_at = EXCLUDED.last_interacted_at,
			updated_at = EXCLUDED.updated_at`,
		sess.ID, sess.Phone, sess.Status, sess.Locale, sess.CurrentScreenID, sess.FlowVersionRef,
		contextJSON, historyJSON, sess.EndedReason, sess.LastInteractedAt, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "phone", sess.Phone)
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

// ListIdleSessions returns active sessions idle since before the cutoff.
func (s *PostgresStore) ListIdleSessions(before time.Time) ([]*models.Session, error) {
	rows, err := s.db.Query(`SELECT id, phone, status, locale, current_screen_id, flow_version_ref, context, history, ended_reason, last_interacted_at, created_at, updated_at
		FROM sessions WHERE status = $1 AND last_interacted_at < $2`, models.SessionStatusActive, before)
	if err != nil {
		slog.Error("PostgresStore ListIdleSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query idle sessions: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

// ListActiveTriggers returns active triggers ordered by ascending priority
// then descending recency.
func (s *PostgresStore) ListActiveTriggers() ([]models.Trigger, error) {
	rows, err := s.db.Query(`SELECT id, keyword, flow_version_ref, priority, locale, is_active, created_at
		FROM triggers WHERE is_active = TRUE ORDER BY priority ASC, created_at DESC`)
	if err != nil {
		slog.Error("PostgresStore ListActiveTriggers query failed", "error", err)
		return nil, fmt.Errorf("failed to query triggers: %w", err)
	}
	defer rows.Close()
	return collectTriggers(rows)
}

// SaveTrigger inserts or replaces a trigger entry.
func (s *PostgresStore) SaveTrigger(t models.Trigger) error {
	_, err := s.db.Exec(`INSERT INTO triggers (id, keyword, flow_version_ref, priority, locale, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			keyword = EXCLUDED.keyword,
			flow_version_ref = EXCLUDED.flow_version_ref,
			priority = EXCLUDED.priority,
			locale = EXCLUDED.locale,
			is_active = EXCLUDED.is_active`,
		t.ID, t.Keyword, t.FlowVersionRef, t.Priority, t.Locale, t.IsActive, t.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveTrigger failed", "error", err, "keyword", t.Keyword)
		return fmt.Errorf("failed to save trigger %s: %w", t.Keyword, err)
	}
	return nil
}

// SaveFlowVersion registers an immutable flow version; an existing ref is
// rejected rather than overwritten.
func (s *PostgresStore) SaveFlowVersion(ref string, definition []byte) error {
	_, err := s.db.Exec(`INSERT INTO flow_versions (ref, definition, created_at) VALUES ($1, $2, $3)`,
		ref, string(definition), time.Now())
	if err != nil {
		slog.Error("PostgresStore SaveFlowVersion failed", "error", err, "ref", ref)
		return fmt.Errorf("failed to save flow version %s: %w", ref, err)
	}
	return nil
}

// GetFlowVersion returns the raw definition document for ref.
func (s *PostgresStore) GetFlowVersion(ref string) ([]byte, error) {
	var definition string
	err := s.db.QueryRow(`SELECT definition FROM flow_versions WHERE ref = $1`, ref).Scan(&definition)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("flow version %q not found", ref)
	}
	if err != nil {
		slog.Error("PostgresStore GetFlowVersion failed", "error", err, "ref", ref)
		return nil, fmt.Errorf("failed to load flow version %s: %w", ref, err)
	}
	return []byte(definition), nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
