package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// WebhookHandler handles WhatsApp webhook verification and inbound
// messages. Meta retries deliveries that are not acknowledged quickly,
// so the POST handler parses, responds 200, and hands the messages to
// dispatch asynchronously.
type WebhookHandler struct {
	verifyToken string
	dispatch    func(context.Context, ParsedInboundMessage)
	timeout     time.Duration
	logger      *slog.Logger
}

// NewWebhookHandler creates a new webhook handler. dispatch is called
// once per parsed inbound text message on its own goroutine with a
// deadline of timeout.
func NewWebhookHandler(verifyToken string, timeout time.Duration, dispatch func(context.Context, ParsedInboundMessage), logger *slog.Logger) *WebhookHandler {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WebhookHandler{
		verifyToken: verifyToken,
		dispatch:    dispatch,
		timeout:     timeout,
		logger:      logger,
	}
}

// HandleVerification handles the GET webhook verification challenge
// from Meta.
func (h *WebhookHandler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, challenge)
		return
	}

	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleInbound handles POST webhook events (incoming messages).
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	// Acknowledge before processing to stay inside Meta's deadline.
	w.WriteHeader(http.StatusOK)

	for _, msg := range ParseWebhookEvent(event) {
		go h.run(msg)
	}
}

func (h *WebhookHandler) run(msg ParsedInboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil && h.logger != nil {
			h.logger.Error("webhook dispatch panic",
				slog.Any("panic", rec),
				slog.String("wa_message_id", msg.MessageID))
		}
	}()
	h.dispatch(ctx, msg)
}

// ParseWebhookEvent extracts the inbound text messages from a webhook
// event. Status updates and non-text messages are skipped.
func ParseWebhookEvent(event WebhookEvent) []ParsedInboundMessage {
	var messages []ParsedInboundMessage

	for _, entry := range event.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			names := make(map[string]string, len(value.Contacts))
			for _, c := range value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range value.Messages {
				if m.Type != "text" || m.Text == nil {
					continue
				}
				parsed := ParsedInboundMessage{
					TenantChannelID: value.Metadata.PhoneNumberID,
					SenderPhone:     m.From,
					SenderName:      names[m.From],
					MessageID:       m.ID,
					Text:            m.Text.Body,
				}
				if secs, err := strconv.ParseInt(m.Timestamp, 10, 64); err == nil {
					parsed.Timestamp = time.Unix(secs, 0).UTC()
				}
				messages = append(messages, parsed)
			}
		}
	}

	return messages
}
