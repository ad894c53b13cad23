// Package flow implements the conversational flow engine: navigation over a
// flow definition, input extraction and validation, screen rendering, trigger
// resolution, and the message handler that drives the session state machine.
package flow

import "fmt"

// ValidationError is the recoverable, user-input-level failure. It carries
// the first failing component and its human-readable message; the handler
// re-renders the same screen with this message instead of advancing.
//
// Validation failures travel as returned values, never as panics, so the
// recovery path is visible in every caller's signature.
type ValidationError struct {
	Component string
	Message   string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// DefinitionError is the fatal-for-this-turn failure class: malformed flow
// JSON, a missing screen, or a definition with no start screen. The handler
// logs it, sends a generic message, and leaves the session untouched.
type DefinitionError struct {
	Ref    string // flow version ref, when known
	Detail string
	Err    error
}

func (e *DefinitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("flow definition %s: %s: %v", e.Ref, e.Detail, e.Err)
	}
	return fmt.Sprintf("flow definition %s: %s", e.Ref, e.Detail)
}

func (e *DefinitionError) Unwrap() error {
	return e.Err
}
