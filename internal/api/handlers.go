// Package api provides HTTP handlers for BotWeave endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BotWeave/BotWeave/internal/messaging"
	"github.com/BotWeave/BotWeave/internal/models"
	"github.com/google/uuid"
)

// Meta-standard WhatsApp webhook types.

// webhookPayload is the top-level webhook delivery.
type webhookPayload struct {
	Object string         `json:"object"`
	Entry  []webhookEntry `json:"entry"`
}

// webhookEntry represents one business account entry.
type webhookEntry struct {
	ID      string          `json:"id"`
	Changes []webhookChange `json:"changes"`
}

// webhookChange wraps a single change notification.
type webhookChange struct {
	Field string             `json:"field"`
	Value webhookChangeValue `json:"value"`
}

// webhookChangeValue holds the message data.
type webhookChangeValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Messages         []webhookMessage `json:"messages,omitempty"`
	Statuses         []json.RawMessage `json:"statuses,omitempty"`
}

// webhookMessage represents an incoming WhatsApp message.
type webhookMessage struct {
	From        string                 `json:"from"`
	ID          string                 `json:"id"`
	Timestamp   string                 `json:"timestamp"`
	Type        string                 `json:"type"`
	Text        *webhookTextContent    `json:"text,omitempty"`
	Interactive *webhookInteractive    `json:"interactive,omitempty"`
}

// webhookTextContent holds a text message body.
type webhookTextContent struct {
	Body string `json:"body"`
}

// webhookInteractive holds an interactive reply payload.
type webhookInteractive struct {
	Type      string            `json:"type"`
	ListReply *webhookListReply `json:"list_reply,omitempty"`
}

// webhookListReply is the row the user tapped in a list message.
type webhookListReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// webhookHandler accepts Meta Cloud API webhook deliveries (POST /webhook)
// and answers the subscription verification challenge (GET /webhook). Every
// extractable message is enqueued for asynchronous processing and the
// delivery is acknowledged immediately; the provider retries on non-2xx, so
// the only error responses are for payloads we could never process.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.webhookHandler: processing webhook request", "method", r.Method, "path", r.URL.Path)

	if r.Method == http.MethodGet {
		s.verifyWebhookHandler(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		slog.Warn("Server.webhookHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		slog.Warn("Server.webhookHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	enqueued := 0
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				inbound, ok := s.inboundFromWebhook(msg)
				if !ok {
					continue
				}
				s.dispatcher.Enqueue(inbound)
				enqueued++
			}
		}
	}

	slog.Debug("Server.webhookHandler: delivery accepted", "messages_enqueued", enqueued)
	writeJSONResponse(w, http.StatusOK, models.Accepted())
}

// verifyWebhookHandler answers the Meta subscription handshake. The expected
// token comes from WEBHOOK_VERIFY_TOKEN.
func (s *Server) verifyWebhookHandler(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	expected := os.Getenv("WEBHOOK_VERIFY_TOKEN")
	if mode == "subscribe" && expected != "" && token == expected {
		slog.Info("Server.verifyWebhookHandler: webhook verified")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(challenge)); err != nil {
			slog.Error("Server.verifyWebhookHandler: failed to write challenge", "error", err)
		}
		return
	}
	slog.Warn("Server.verifyWebhookHandler: verification rejected", "mode", mode)
	w.WriteHeader(http.StatusForbidden)
}

// inboundFromWebhook maps one webhook message into the engine's inbound
// shape. Unsupported message types are dropped with a debug log.
func (s *Server) inboundFromWebhook(msg webhookMessage) (models.InboundMessage, bool) {
	from, err := messaging.CanonicalizePhone(msg.From)
	if err != nil {
		slog.Warn("Server.inboundFromWebhook: invalid sender", "error", err)
		return models.InboundMessage{}, false
	}

	ts := time.Now().Unix()
	if msg.Timestamp != "" {
		if parsed, perr := strconv.ParseInt(msg.Timestamp, 10, 64); perr == nil {
			ts = parsed
		}
	}
	inbound := models.InboundMessage{
		From:      from,
		MessageID: msg.ID,
		Time:      ts,
	}

	switch msg.Type {
	case "text":
		if msg.Text == nil {
			return models.InboundMessage{}, false
		}
		inbound.Body = msg.Text.Body
	case "interactive":
		if msg.Interactive == nil || msg.Interactive.ListReply == nil {
			return models.InboundMessage{}, false
		}
		inbound.SelectionID = msg.Interactive.ListReply.ID
		inbound.Body = msg.Interactive.ListReply.Title
	default:
		slog.Debug("Server.inboundFromWebhook: unsupported message type dropped", "type", msg.Type, "from", from)
		return models.InboundMessage{}, false
	}
	return inbound, true
}

// twilioWebhookHandler accepts Twilio form-encoded deliveries (POST
// /webhook/twilio) when the Twilio transport is configured.
func (s *Server) twilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if s.twilioSvc == nil {
		slog.Warn("Server.twilioWebhookHandler: Twilio transport not configured")
		writeJSONResponse(w, http.StatusNotFound, models.Error("Twilio transport not configured"))
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.twilioSvc.WebhookHandler(w, r)
}

// flowRegistration is the request body for POST /flows.
type flowRegistration struct {
	Ref        string          `json:"ref"`
	Definition json.RawMessage `json:"definition"`
}

// flowsHandler registers immutable flow versions (POST /flows). The
// definition is validated before it is stored; a structurally broken flow is
// rejected here rather than surfacing later as a mid-conversation failure.
func (s *Server) flowsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.flowsHandler: processing flow registration", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.flowsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var reg flowRegistration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		slog.Warn("Server.flowsHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if reg.Ref == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: ref"))
		return
	}
	if _, err := models.ParseFlowDefinition(reg.Definition); err != nil {
		slog.Warn("Server.flowsHandler: definition rejected", "ref", reg.Ref, "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid flow definition: "+err.Error()))
		return
	}

	if err := s.st.SaveFlowVersion(reg.Ref, reg.Definition); err != nil {
		slog.Error("Server.flowsHandler: failed to save flow version", "ref", reg.Ref, "error", err)
		writeJSONResponse(w, http.StatusConflict, models.Error("Failed to save flow version: "+err.Error()))
		return
	}
	slog.Info("Server.flowsHandler: flow version registered", "ref", reg.Ref)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Flow version registered", reg.Ref))
}

// triggersHandler lists the routing table (GET /triggers) and registers new
// entries (POST /triggers).
func (s *Server) triggersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.triggersHandler: processing trigger request", "method", r.Method, "path", r.URL.Path)
	switch r.Method {
	case http.MethodGet:
		triggers, err := s.st.ListActiveTriggers()
		if err != nil {
			slog.Error("Server.triggersHandler: failed to list triggers", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch triggers"))
			return
		}
		slog.Debug("Server.triggersHandler: triggers fetched", "count", len(triggers))
		writeJSONResponse(w, http.StatusOK, models.Success(triggers))
	case http.MethodPost:
		var trig models.Trigger
		if err := json.NewDecoder(r.Body).Decode(&trig); err != nil {
			slog.Warn("Server.triggersHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		trig.Keyword = strings.ToLower(strings.TrimSpace(trig.Keyword))
		if trig.Keyword == "" || strings.ContainsAny(trig.Keyword, " \t\n") {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Keyword must be a single non-empty word"))
			return
		}
		if trig.FlowVersionRef == "" {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: flow_version_ref"))
			return
		}
		if _, err := s.st.GetFlowVersion(trig.FlowVersionRef); err != nil {
			slog.Warn("Server.triggersHandler: unknown flow version", "ref", trig.FlowVersionRef, "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown flow version: "+trig.FlowVersionRef))
			return
		}
		if trig.ID == "" {
			trig.ID = uuid.NewString()
		}
		trig.IsActive = true
		if trig.CreatedAt.IsZero() {
			trig.CreatedAt = time.Now()
		}
		if err := s.st.SaveTrigger(trig); err != nil {
			slog.Error("Server.triggersHandler: failed to save trigger", "keyword", trig.Keyword, "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save trigger"))
			return
		}
		slog.Info("Server.triggersHandler: trigger registered", "keyword", trig.Keyword, "flow_version", trig.FlowVersionRef, "priority", trig.Priority)
		writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Trigger registered", trig.ID))
	default:
		w.Header().Set("Allow", "GET, POST")
		slog.Warn("Server.triggersHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// sessionsHandler routes per-session operations:
//
//	GET  /sessions/{phone}      session inspection
//	POST /sessions/{phone}/end  administrative session end
func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.sessionsHandler: processing session request", "method", r.Method, "path", r.URL.Path)

	path := strings.TrimPrefix(r.URL.Path, "/sessions/")
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Missing phone number"))
		return
	}
	phone, err := messaging.CanonicalizePhone(segments[0])
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if len(segments) == 1 {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.getSessionHandler(w, r, phone)
		return
	}
	if len(segments) == 2 && segments[1] == "end" {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.endSessionHandler(w, r, phone)
		return
	}
	writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown session endpoint"))
}

// getSessionHandler handles GET /sessions/{phone}.
func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request, phone string) {
	sess, err := s.st.GetSession(phone)
	if err != nil {
		slog.Error("Server.getSessionHandler: failed to get session", "phone", phone, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get session"))
		return
	}
	if sess == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("No session for phone"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sess))
}

// endSessionHandler handles POST /sessions/{phone}/end.
func (s *Server) endSessionHandler(w http.ResponseWriter, r *http.Request, phone string) {
	if err := s.handler.EndSession(r.Context(), phone, models.EndReasonAdminEnded); err != nil {
		slog.Warn("Server.endSessionHandler: failed to end session", "phone", phone, "error", err)
		writeJSONResponse(w, http.StatusNotFound, models.Error(err.Error()))
		return
	}
	slog.Info("Server.endSessionHandler: session ended", "phone", phone)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session ended", nil))
}
