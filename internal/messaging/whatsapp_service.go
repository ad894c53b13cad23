package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/BotWeave/BotWeave/internal/models"
	"github.com/BotWeave/BotWeave/internal/whatsapp"
	"go.mau.fi/whatsmeow/types/events"
)

// WhatsAppService implements Service using the Whatsmeow-based whatsapp
// client. Incoming message events are translated into InboundMessage values
// and fed to the inbound channel.
type WhatsAppService struct {
	client   whatsapp.Sender
	waClient *whatsapp.Client // underlying client for event handling, nil for mocks
	inbound  chan models.InboundMessage
	done     chan struct{}
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given sender.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	service := &WhatsAppService{
		client:  client,
		inbound: make(chan models.InboundMessage, DefaultChannelBufferSize),
		done:    make(chan struct{}),
	}
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}
	return service
}

// ValidateAndCanonicalizeRecipient strips the recipient down to digits.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

// Start registers the WhatsApp event handler.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("WhatsAppService no full client available, skipping event handling")
		return nil
	}
	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		if v, ok := evt.(*events.Message); ok {
			s.handleIncomingMessage(v)
		}
	})
	slog.Debug("WhatsAppService event handler registered")
	return nil
}

// Stop stops background processing and closes the inbound channel.
func (s *WhatsAppService) Stop() error {
	slog.Info("WhatsAppService Stop invoked")
	close(s.done)
	close(s.inbound)
	if s.waClient != nil {
		s.waClient.Disconnect()
	}
	return nil
}

// SendText sends a plain text message.
func (s *WhatsAppService) SendText(ctx context.Context, to, body string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService SendText validation error", "error", err, "to", to)
		return err
	}
	return s.client.SendText(ctx, canonical, body)
}

// SendImage sends an image with an optional caption.
func (s *WhatsAppService) SendImage(ctx context.Context, to, url, caption string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService SendImage validation error", "error", err, "to", to)
		return err
	}
	return s.client.SendImage(ctx, canonical, url, caption)
}

// SendList sends an interactive list prompt.
func (s *WhatsAppService) SendList(ctx context.Context, to, header, body string, items []models.ListItem, footer string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService SendList validation error", "error", err, "to", to)
		return err
	}
	return s.client.SendList(ctx, canonical, header, body, items, footer)
}

// Inbound returns the channel of incoming messages.
func (s *WhatsAppService) Inbound() <-chan models.InboundMessage {
	return s.inbound
}

// handleIncomingMessage translates a whatsmeow message event into an
// InboundMessage. Own messages and non-user chats are ignored.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Info.IsFromMe || evt.Message == nil {
		return
	}

	from, err := CanonicalizePhone(evt.Info.Sender.User)
	if err != nil {
		slog.Debug("WhatsAppService ignoring message with invalid sender", "sender", evt.Info.Sender.User, "error", err)
		return
	}

	msg := models.InboundMessage{
		From:      from,
		MessageID: evt.Info.ID,
		Time:      evt.Info.Timestamp.Unix(),
	}
	if reply := evt.Message.GetListResponseMessage(); reply != nil {
		msg.SelectionID = reply.GetSingleSelectReply().GetSelectedRowID()
	} else if text := evt.Message.GetConversation(); text != "" {
		msg.Body = text
	} else if ext := evt.Message.GetExtendedTextMessage(); ext != nil {
		msg.Body = ext.GetText()
	}
	if msg.Body == "" && msg.SelectionID == "" {
		slog.Debug("WhatsAppService ignoring unsupported message shape", "from", from)
		return
	}

	select {
	case s.inbound <- msg:
		slog.Debug("WhatsAppService emitted inbound message", "from", from, "selection", msg.IsSelection())
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService inbound channel blocked, dropping message", "from", from)
	case <-s.done:
	}
}
