package models

import "time"

// EventKind tells the router how to interpret Event.Payload.
type EventKind string

const (
	EventCommand EventKind = "command"
	EventText    EventKind = "text"
	EventButton  EventKind = "button"
)

// Event is one inbound chat interaction, independent of the transport.
type Event struct {
	Kind      EventKind
	UserID    int64
	ChatID    int64
	FirstName string
	// Payload is the full command text, the message text or the callback data.
	Payload string
	// ReplyToMessageID is set when the message answers an earlier bot message.
	ReplyToMessageID int
}

// InlineButton is a button attached to a message. Exactly one of URL,
// CallbackData or SwitchQuery is set.
type InlineButton struct {
	Text         string
	URL          string
	CallbackData string
	SwitchQuery  string
}

// Message is an outbound message.
type Message struct {
	Text string
	HTML bool
	// Menu attaches the persistent reply keyboard.
	Menu [][]string
	// Inline attaches inline buttons, one slice per row.
	Inline              [][]InlineButton
	ForceReply          bool
	DisableLinkPreviews bool
}

// GroupBroadcast builds the group post for an admin-written broadcast. The
// text goes out as plain text, so scheduled and manual posts render alike.
func GroupBroadcast(text, botLink string) Message {
	msg := Message{Text: text, DisableLinkPreviews: true}
	if botLink != "" {
		msg.Inline = [][]InlineButton{{{Text: "🚀 Start Earning", URL: botLink}}}
	}
	return msg
}

// PendingKind is the kind of free-text answer the bot is waiting for.
type PendingKind string

const PendingPayoutAddress PendingKind = "payout_address"

// PendingInput is a prompt awaiting exactly one reply from the user.
type PendingInput struct {
	CorrelationID   string      `json:"correlation_id"`
	Kind            PendingKind `json:"kind"`
	PromptMessageID int         `json:"prompt_message_id"`
	CreatedAt       time.Time   `json:"created_at"`
}
