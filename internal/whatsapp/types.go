package whatsapp

import "time"

// WebhookEvent is the top-level structure received from Meta's
// WhatsApp Cloud API webhook.
type WebhookEvent struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry represents a single entry in the webhook payload.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change wraps one value under an entry.
type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

// Value carries the inbound messages and channel metadata.
type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Metadata         Metadata  `json:"metadata"`
	Contacts         []Contact `json:"contacts"`
	Messages         []Message `json:"messages"`
}

// Metadata identifies the business phone number the message arrived on.
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// Contact carries the sender's WhatsApp profile.
type Contact struct {
	WaID    string  `json:"wa_id"`
	Profile Profile `json:"profile"`
}

// Profile is the sender's display name.
type Profile struct {
	Name string `json:"name"`
}

// Message is one inbound message.
type Message struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *Text  `json:"text,omitempty"`
}

// Text is the body of a text message.
type Text struct {
	Body string `json:"body"`
}

// SendRequest is the payload sent to the Graph API to send a message.
type SendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             SendText `json:"text"`
}

// SendText is the outbound text body.
type SendText struct {
	Body string `json:"body"`
}

// SendResponse is the response from the Graph API after sending.
type SendResponse struct {
	Messages []SentMessage `json:"messages"`
	Error    *SendError    `json:"error,omitempty"`
}

// SentMessage carries the provider id of an accepted message.
type SentMessage struct {
	ID string `json:"id"`
}

// SendError represents an error returned by the Graph API.
type SendError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id"`
}

// ParsedInboundMessage is the normalized result of parsing a webhook
// event: one text message addressed to one tenant channel.
type ParsedInboundMessage struct {
	TenantChannelID string
	SenderPhone     string
	SenderName      string
	MessageID       string
	Text            string
	Timestamp       time.Time
}
