package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BotWeave/BotWeave/internal/models"
)

// User-facing messages for the non-validation failure classes. Validation
// errors are the only case where the user sees a specific, actionable
// message; everything else gets a generic, non-diagnostic one.
const (
	GenericErrorMessage  = "⚠️ Something went wrong on our side. Please try again in a moment."
	CompletionMessage    = "✅ All done. Thanks for chatting with us!"
	SessionClosedMessage = "This conversation has been closed. Send a keyword to start again."
	NoTriggersMessage    = "There's nothing available right now. Please check back later."

	triggerMenuHeader = "Get started"
	triggerMenuBody   = "I didn't recognize that. Pick one of these to get started:"
)

// Sender is the abstract outbound messaging port. The engine is
// transport-agnostic; adapters for WhatsApp live in internal/messaging.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
	SendImage(ctx context.Context, to, url, caption string) error
	SendList(ctx context.Context, to, header, body string, items []models.ListItem, footer string) error
}

// SessionRepository is the narrow persistence contract the handler mutates
// sessions through. FindOrCreateSession returns the active session for a
// phone or creates a fresh one; ended sessions are kept for audit and never
// resumed.
type SessionRepository interface {
	FindOrCreateSession(phone string) (*models.Session, error)
	GetSession(phone string) (*models.Session, error)
	SaveSession(s *models.Session) error
	ListIdleSessions(before time.Time) ([]*models.Session, error)
}

// Handler drives the conversation state machine: one invocation per inbound
// message, run to completion, state persisted once per transition. Callers
// must not invoke it concurrently for the same phone number; the messaging
// dispatcher serializes per-sender delivery.
type Handler struct {
	sessions    SessionRepository
	resolver    *TriggerResolver
	definitions DefinitionProvider
	sender      Sender
}

// NewHandler creates a message handler over the given collaborators.
func NewHandler(sessions SessionRepository, resolver *TriggerResolver, definitions DefinitionProvider, sender Sender) *Handler {
	return &Handler{
		sessions:    sessions,
		resolver:    resolver,
		definitions: definitions,
		sender:      sender,
	}
}

// HandleInboundMessage is the single entry point: it obtains or creates the
// session for the sender, advances the state machine, persists the result,
// and dispatches outbound messages. It never returns an error to the
// transport; failures are logged and surfaced to the user per the error
// taxonomy.
func (h *Handler) HandleInboundMessage(ctx context.Context, msg models.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Handler.HandleInboundMessage: panic recovered", "phone", msg.From, "panic", r)
			h.sendText(ctx, msg.From, GenericErrorMessage)
		}
	}()

	slog.Debug("Handler.HandleInboundMessage: inbound", "phone", msg.From, "selection", msg.IsSelection(), "body_length", len(msg.Body))

	sess, err := h.sessions.FindOrCreateSession(msg.From)
	if err != nil {
		slog.Error("Handler.HandleInboundMessage: session lookup failed", "phone", msg.From, "error", err)
		h.sendText(ctx, msg.From, GenericErrorMessage)
		return
	}

	if sess.FlowVersionRef == "" {
		h.handleTriggerPhase(ctx, sess, msg)
		return
	}
	h.handleFlowPhase(ctx, sess, msg)
}

// handleTriggerPhase covers the AWAITING_TRIGGER state: resolve the first
// token against the trigger table, bind the session to the matched flow
// version and render its start screen, or send the trigger menu on no match.
// A list reply carries its keyword in the selection id rather than the body
// on some transports, so the selection id is tried when the body resolves to
// nothing. That keeps taps on the trigger menu working everywhere.
func (h *Handler) handleTriggerPhase(ctx context.Context, sess *models.Session, msg models.InboundMessage) {
	trig, err := h.resolver.Resolve(msg.Body)
	if err != nil {
		h.sendText(ctx, sess.Phone, GenericErrorMessage)
		return
	}
	if trig == nil && msg.SelectionID != "" {
		trig, err = h.resolver.Resolve(msg.SelectionID)
		if err != nil {
			h.sendText(ctx, sess.Phone, GenericErrorMessage)
			return
		}
	}
	if trig == nil {
		// No state change and no history entry; the menu send is the only
		// side effect.
		h.sendTriggerMenu(ctx, sess.Phone)
		return
	}

	def, err := h.definitions.GetDefinition(trig.FlowVersionRef)
	if err != nil {
		h.definitionFailure(ctx, sess.Phone, err)
		return
	}
	startID := StartScreenID(def)
	if startID == "" {
		h.definitionFailure(ctx, sess.Phone, &DefinitionError{Ref: trig.FlowVersionRef, Detail: "no start screen"})
		return
	}
	msgs, err := Render(def, startID, sess.Context)
	if err != nil {
		h.definitionFailure(ctx, sess.Phone, err)
		return
	}

	// All derived state is computed; mutate and persist once, then send.
	sess.FlowVersionRef = trig.FlowVersionRef
	if trig.Locale != "" {
		sess.Locale = trig.Locale
	}
	sess.CurrentScreenID = startID
	sess.AppendHistory(models.HistoryEventTriggerMatched, "", map[string]string{
		"keyword":      trig.Keyword,
		"flow_version": trig.FlowVersionRef,
	})
	sess.Touch()
	if err := h.sessions.SaveSession(sess); err != nil {
		slog.Error("Handler.handleTriggerPhase: save failed", "phone", sess.Phone, "error", err)
		h.sendText(ctx, sess.Phone, GenericErrorMessage)
		return
	}
	slog.Info("Handler.handleTriggerPhase: flow started", "phone", sess.Phone, "flow_version", trig.FlowVersionRef, "screen", startID)
	h.sendMessages(ctx, sess.Phone, msgs)
}

// handleFlowPhase covers the IN_FLOW state: extract and validate input for
// the current screen, merge it into the context, compute the next screen,
// persist, and render the next screen or the completion message.
func (h *Handler) handleFlowPhase(ctx context.Context, sess *models.Session, msg models.InboundMessage) {
	def, err := h.definitions.GetDefinition(sess.FlowVersionRef)
	if err != nil {
		h.definitionFailure(ctx, sess.Phone, err)
		return
	}

	if sess.CurrentScreenID == "" {
		h.renderStart(ctx, sess, def, msg)
		return
	}

	screen := ScreenByID(def, sess.CurrentScreenID)
	if screen == nil {
		h.definitionFailure(ctx, sess.Phone, &DefinitionError{Ref: sess.FlowVersionRef, Detail: "screen not found: " + sess.CurrentScreenID})
		return
	}

	input := Extract(msg, screen)
	if verr := Validate(screen.Components, input); verr != nil {
		// Idempotent retry: no mutation of context or current screen, send
		// the offending message and re-render the same screen.
		slog.Debug("Handler.handleFlowPhase: validation failed", "phone", sess.Phone, "screen", screen.ID, "component", verr.Component)
		h.sendText(ctx, sess.Phone, verr.Message)
		if msgs, rerr := Render(def, screen.ID, sess.Context); rerr == nil {
			h.sendMessages(ctx, sess.Phone, msgs)
		} else {
			slog.Error("Handler.handleFlowPhase: re-render failed", "phone", sess.Phone, "error", rerr)
		}
		return
	}

	sess.MergeContext(input)
	nextID := DetermineNextScreenID(def, screen, input, sess.Context)

	if nextID == "" {
		sess.End(models.EndReasonFlowCompleted)
		sess.AppendHistory(models.HistoryEventFlowCompleted, screen.ID, nil)
		sess.Touch()
		if err := h.sessions.SaveSession(sess); err != nil {
			slog.Error("Handler.handleFlowPhase: save on completion failed", "phone", sess.Phone, "error", err)
			h.sendText(ctx, sess.Phone, GenericErrorMessage)
			return
		}
		slog.Info("Handler.handleFlowPhase: flow completed", "phone", sess.Phone, "flow_version", sess.FlowVersionRef, "last_screen", screen.ID)
		h.sendText(ctx, sess.Phone, CompletionMessage)
		return
	}

	msgs, err := Render(def, nextID, sess.Context)
	if err != nil {
		// Nothing was persisted yet, so the stored session is untouched.
		h.definitionFailure(ctx, sess.Phone, err)
		return
	}
	sess.CurrentScreenID = nextID
	sess.AppendHistory(models.HistoryEventScreenChanged, nextID, map[string]string{"from": screen.ID})
	sess.Touch()
	if err := h.sessions.SaveSession(sess); err != nil {
		slog.Error("Handler.handleFlowPhase: save failed", "phone", sess.Phone, "error", err)
		h.sendText(ctx, sess.Phone, GenericErrorMessage)
		return
	}
	slog.Debug("Handler.handleFlowPhase: advanced", "phone", sess.Phone, "from", screen.ID, "to", nextID)
	h.sendMessages(ctx, sess.Phone, msgs)
}

// renderStart handles the render-start sub-case: the session has a flow but
// no current screen yet. The inbound message is not consumed as input; a
// stray interactive reply artifact is dropped entirely.
func (h *Handler) renderStart(ctx context.Context, sess *models.Session, def *models.FlowDefinition, msg models.InboundMessage) {
	if msg.IsSelection() {
		slog.Debug("Handler.renderStart: dropping reply artifact before start", "phone", sess.Phone)
		return
	}
	startID := StartScreenID(def)
	if startID == "" {
		h.definitionFailure(ctx, sess.Phone, &DefinitionError{Ref: sess.FlowVersionRef, Detail: "no start screen"})
		return
	}
	msgs, err := Render(def, startID, sess.Context)
	if err != nil {
		h.definitionFailure(ctx, sess.Phone, err)
		return
	}
	sess.CurrentScreenID = startID
	sess.Touch()
	if err := h.sessions.SaveSession(sess); err != nil {
		slog.Error("Handler.renderStart: save failed", "phone", sess.Phone, "error", err)
		h.sendText(ctx, sess.Phone, GenericErrorMessage)
		return
	}
	h.sendMessages(ctx, sess.Phone, msgs)
}

// EndSession ends the active session for a phone with the given reason, on
// explicit admin action. The user gets a closing note.
func (h *Handler) EndSession(ctx context.Context, phone, reason string) error {
	sess, err := h.sessions.GetSession(phone)
	if err != nil {
		return fmt.Errorf("failed to load session for %s: %w", phone, err)
	}
	if sess == nil || sess.Status != models.SessionStatusActive {
		return fmt.Errorf("no active session for %s", phone)
	}
	sess.End(reason)
	sess.AppendHistory(models.HistoryEventSessionEnded, sess.CurrentScreenID, map[string]string{"reason": reason})
	if err := h.sessions.SaveSession(sess); err != nil {
		return fmt.Errorf("failed to save ended session for %s: %w", phone, err)
	}
	slog.Info("Handler.EndSession: session ended", "phone", phone, "reason", reason)
	h.sendText(ctx, phone, SessionClosedMessage)
	return nil
}

// ExpireIdleSessions ends every active session idle for longer than idleFor
// with reason session_expired. Returns how many sessions were ended.
func (h *Handler) ExpireIdleSessions(ctx context.Context, idleFor time.Duration) (int, error) {
	cutoff := time.Now().Add(-idleFor)
	stale, err := h.sessions.ListIdleSessions(cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list idle sessions: %w", err)
	}
	ended := 0
	for _, sess := range stale {
		sess.End(models.EndReasonSessionExpired)
		sess.AppendHistory(models.HistoryEventSessionEnded, sess.CurrentScreenID, map[string]string{"reason": models.EndReasonSessionExpired})
		if err := h.sessions.SaveSession(sess); err != nil {
			slog.Error("Handler.ExpireIdleSessions: save failed", "phone", sess.Phone, "error", err)
			continue
		}
		ended++
	}
	if ended > 0 {
		slog.Info("Handler.ExpireIdleSessions: ended idle sessions", "count", ended, "idle_for", idleFor)
	}
	return ended, nil
}

// sendTriggerMenu sends the dynamic list of active trigger keywords.
func (h *Handler) sendTriggerMenu(ctx context.Context, phone string) {
	keywords, err := h.resolver.ActiveKeywords()
	if err != nil {
		h.sendText(ctx, phone, GenericErrorMessage)
		return
	}
	if len(keywords) == 0 {
		h.sendText(ctx, phone, NoTriggersMessage)
		return
	}
	items := make([]models.ListItem, 0, len(keywords))
	for _, kw := range keywords {
		items = append(items, models.ListItem{ID: kw, Title: kw})
	}
	if err := h.sender.SendList(ctx, phone, triggerMenuHeader, triggerMenuBody, items, ""); err != nil {
		slog.Error("Handler.sendTriggerMenu: send failed", "phone", phone, "error", err)
	}
}

// definitionFailure implements the DefinitionError contract: log at error
// severity, send a generic message, leave the session untouched. Never
// silently continue with a nil screen.
func (h *Handler) definitionFailure(ctx context.Context, phone string, err error) {
	slog.Error("Handler: definition error", "phone", phone, "error", err)
	h.sendText(ctx, phone, GenericErrorMessage)
}

// sendMessages dispatches rendered descriptors in order. Send failures are
// logged and skipped; conversation state never depends on delivery.
func (h *Handler) sendMessages(ctx context.Context, phone string, msgs []models.OutboundMessage) {
	for _, m := range msgs {
		var err error
		switch m.Kind {
		case models.MessageKindText:
			err = h.sender.SendText(ctx, phone, m.Body)
		case models.MessageKindImage:
			err = h.sender.SendImage(ctx, phone, m.ImageURL, m.Caption)
		case models.MessageKindList:
			err = h.sender.SendList(ctx, phone, m.Header, m.Body, m.Items, m.Footer)
		}
		if err != nil {
			slog.Error("Handler.sendMessages: send failed", "phone", phone, "kind", m.Kind, "error", err)
		}
	}
}

func (h *Handler) sendText(ctx context.Context, phone, body string) {
	if err := h.sender.SendText(ctx, phone, body); err != nil {
		slog.Error("Handler.sendText: send failed", "phone", phone, "error", err)
	}
}
