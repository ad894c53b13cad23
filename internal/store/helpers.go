package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/BotWeave/BotWeave/internal/models"
)

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// encodeSessionBlobs serializes the context map and history slice for the
// JSON text columns shared by both SQL backends.
func encodeSessionBlobs(sess *models.Session) (string, string, error) {
	var contextJSON, historyJSON string
	if len(sess.Context) > 0 {
		b, err := json.Marshal(sess.Context)
		if err != nil {
			return "", "", fmt.Errorf("failed to marshal session context: %w", err)
		}
		contextJSON = string(b)
	}
	if len(sess.History) > 0 {
		b, err := json.Marshal(sess.History)
		if err != nil {
			return "", "", fmt.Errorf("failed to marshal session history: %w", err)
		}
		historyJSON = string(b)
	}
	return contextJSON, historyJSON, nil
}

// scanSession scans one session row, decoding the JSON blob columns.
func scanSession(row rowScanner) (*models.Session, error) {
	var sess models.Session
	var contextJSON, historyJSON sql.NullString
	err := row.Scan(
		&sess.ID, &sess.Phone, &sess.Status, &sess.Locale, &sess.CurrentScreenID,
		&sess.FlowVersionRef, &contextJSON, &historyJSON, &sess.EndedReason,
		&sess.LastInteractedAt, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sess.Context = make(map[string]string)
	if contextJSON.String != "" {
		if err := json.Unmarshal([]byte(contextJSON.String), &sess.Context); err != nil {
			slog.Error("scanSession: context unmarshal failed", "error", err, "session_id", sess.ID)
			sess.Context = make(map[string]string)
		}
	}
	if historyJSON.String != "" {
		if err := json.Unmarshal([]byte(historyJSON.String), &sess.History); err != nil {
			slog.Error("scanSession: history unmarshal failed", "error", err, "session_id", sess.ID)
			sess.History = nil
		}
	}
	return &sess, nil
}

// collectSessions drains rows into a slice of sessions.
func collectSessions(rows *sql.Rows) ([]*models.Session, error) {
	var sessions []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return sessions, nil
}

// collectTriggers drains rows into a slice of triggers.
func collectTriggers(rows *sql.Rows) ([]models.Trigger, error) {
	var triggers []models.Trigger
	for rows.Next() {
		var t models.Trigger
		if err := rows.Scan(&t.ID, &t.Keyword, &t.FlowVersionRef, &t.Priority, &t.Locale, &t.IsActive, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trigger row: %w", err)
		}
		triggers = append(triggers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trigger rows: %w", err)
	}
	return triggers, nil
}
