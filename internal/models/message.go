package models

// MessageKind identifies the shape of an outbound message descriptor.
type MessageKind string

const (
	// MessageKindText is a plain text message.
	MessageKindText MessageKind = "text"
	// MessageKindImage is an image with an optional caption.
	MessageKindImage MessageKind = "image"
	// MessageKindList is an interactive list/dropdown prompt.
	MessageKindList MessageKind = "list"
)

// ListItem is one selectable row of a list message.
type ListItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// OutboundMessage is a channel-agnostic message descriptor produced by the
// renderer and consumed by a messaging service. Exactly the fields for its
// Kind are set.
type OutboundMessage struct {
	Kind     MessageKind `json:"kind"`
	Body     string      `json:"body,omitempty"`
	ImageURL string      `json:"image_url,omitempty"`
	Caption  string      `json:"caption,omitempty"`
	Header   string      `json:"header,omitempty"`
	Items    []ListItem  `json:"items,omitempty"`
	Footer   string      `json:"footer,omitempty"`
}

// TextMessage builds a text descriptor.
func TextMessage(body string) OutboundMessage {
	return OutboundMessage{Kind: MessageKindText, Body: body}
}

// ImageMessage builds an image descriptor.
func ImageMessage(url, caption string) OutboundMessage {
	return OutboundMessage{Kind: MessageKindImage, ImageURL: url, Caption: caption}
}

// ListMessage builds a list descriptor.
func ListMessage(header, body string, items []ListItem, footer string) OutboundMessage {
	return OutboundMessage{Kind: MessageKindList, Header: header, Body: body, Items: items, Footer: footer}
}

// InboundMessage is the engine's view of one message received from the
// channel: the canonical sender, and either a free-text body or a structured
// selection id. SelectionID set means the user tapped an interactive reply.
type InboundMessage struct {
	From        string `json:"from"`
	MessageID   string `json:"message_id,omitempty"`
	Body        string `json:"body,omitempty"`
	SelectionID string `json:"selection_id,omitempty"`
	Time        int64  `json:"time"`
}

// IsSelection reports whether the message carries an interactive selection.
func (m InboundMessage) IsSelection() bool {
	return m.SelectionID != ""
}
