// Package models defines session state structures for BotWeave conversations.
package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the lifecycle state of a conversation session.
type SessionStatus string

const (
	// SessionStatusActive indicates the conversation is ongoing.
	SessionStatusActive SessionStatus = "active"
	// SessionStatusEnded indicates the session was ended without finishing
	// its flow (expiry, admin action).
	SessionStatusEnded SessionStatus = "ended"
	// SessionStatusCompleted indicates the session ran its flow to the end.
	SessionStatusCompleted SessionStatus = "completed"
)

// HistoryEvent names an entry in a session's audit trail.
type HistoryEvent string

const (
	// HistoryEventTriggerMatched records a keyword binding the session to a flow version.
	HistoryEventTriggerMatched HistoryEvent = "trigger_matched"
	// HistoryEventScreenChanged records the session advancing to a screen.
	HistoryEventScreenChanged HistoryEvent = "screen_changed"
	// HistoryEventFlowCompleted records the flow running to its end.
	HistoryEventFlowCompleted HistoryEvent = "flow_completed"
	// HistoryEventSessionEnded records the session ending for any other reason.
	HistoryEventSessionEnded HistoryEvent = "session_ended"
)

// End reasons recorded on a session when it leaves the active state.
const (
	EndReasonFlowCompleted  = "flow_completed"
	EndReasonSessionExpired = "session_expired"
	EndReasonAdminEnded     = "admin_ended"
)

// HistoryEntry is one append-only audit record. Entries are never mutated or
// deleted and are not read back by engine logic.
type HistoryEntry struct {
	ID     string            `json:"id"`
	At     time.Time         `json:"at"`
	Event  HistoryEvent      `json:"event"`
	Screen string            `json:"screen,omitempty"`
	Meta   map[string]string `json:"meta,omitempty"`
}

// Session is the persisted state of one ongoing conversation for one phone
// number. Only the message handler mutates it, and persists after each
// transition; other readers never observe partial writes.
type Session struct {
	ID              string            `json:"id"`
	Phone           string            `json:"phone"`
	Status          SessionStatus     `json:"status"`
	Locale          string            `json:"locale,omitempty"`
	CurrentScreenID string            `json:"current_screen_id,omitempty"` // empty means not yet started
	FlowVersionRef  string            `json:"flow_version_ref,omitempty"`
	Context         map[string]string `json:"context,omitempty"`
	History         []HistoryEntry    `json:"history,omitempty"`
	EndedReason     string            `json:"ended_reason,omitempty"`
	LastInteractedAt time.Time        `json:"last_interacted_at"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// NewSession creates a fresh active session for a phone number.
func NewSession(phone string) *Session {
	now := time.Now()
	return &Session{
		ID:              uuid.NewString(),
		Phone:           phone,
		Status:          SessionStatusActive,
		Context:         make(map[string]string),
		LastInteractedAt: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// AppendHistory appends an audit entry to the session.
func (s *Session) AppendHistory(event HistoryEvent, screen string, meta map[string]string) {
	s.History = append(s.History, HistoryEntry{
		ID:     uuid.NewString(),
		At:     time.Now(),
		Event:  event,
		Screen: screen,
		Meta:   meta,
	})
}

// MergeContext merges collected component values into the session context.
// The context only ever grows key by key; it is never replaced wholesale.
func (s *Session) MergeContext(values map[string]string) {
	if s.Context == nil {
		s.Context = make(map[string]string, len(values))
	}
	for k, v := range values {
		s.Context[k] = v
	}
}

// End moves the session out of the active state with the given reason.
// Reason flow_completed marks the session completed, everything else ended.
func (s *Session) End(reason string) {
	if reason == EndReasonFlowCompleted {
		s.Status = SessionStatusCompleted
	} else {
		s.Status = SessionStatusEnded
	}
	s.EndedReason = reason
}

// Touch records an interaction without any other state change.
func (s *Session) Touch() {
	s.LastInteractedAt = time.Now()
}
