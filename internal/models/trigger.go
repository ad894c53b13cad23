package models

import "time"

// Trigger is one entry of the static keyword-to-flow-version routing table
// consulted before a session has an assigned flow. The lowest Priority
// number wins; ties break toward the most recently created entry.
type Trigger struct {
	ID             string    `json:"id"`
	Keyword        string    `json:"keyword"`
	FlowVersionRef string    `json:"flow_version_ref"`
	Priority       int       `json:"priority"`
	Locale         string    `json:"locale,omitempty"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

// FlowVersion is one immutable snapshot of a flow's screens and rules.
// Sessions bind to a specific version by Ref; the Definition document is
// never modified after registration.
type FlowVersion struct {
	Ref        string    `json:"ref"`
	Definition []byte    `json:"definition"`
	CreatedAt  time.Time `json:"created_at"`
}
