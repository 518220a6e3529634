package whatsapp

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

const samplePayload = `{
	"object": "whatsapp_business_account",
	"entry": [{
		"id": "123",
		"changes": [{
			"field": "messages",
			"value": {
				"messaging_product": "whatsapp",
				"metadata": {"display_phone_number": "5215512345678", "phone_number_id": "chan-1"},
				"contacts": [{"wa_id": "5215587654321", "profile": {"name": "María"}}],
				"messages": [
					{"id": "wamid.text1", "from": "5215587654321", "timestamp": "1767352800", "type": "text", "text": {"body": "hola"}},
					{"id": "wamid.audio1", "from": "5215587654321", "timestamp": "1767352801", "type": "audio"}
				]
			}
		}]
	}]
}`

func TestHandleVerification(t *testing.T) {
	h := NewWebhookHandler("secret-token", time.Second, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=42", nil)
	rec := httptest.NewRecorder()
	h.HandleVerification(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body, _ := io.ReadAll(rec.Body); string(body) != "42" {
		t.Fatalf("expected challenge echoed, got %q", body)
	}

	req = httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=42", nil)
	rec = httptest.NewRecorder()
	h.HandleVerification(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for bad token, got %d", rec.Code)
	}
}

func TestHandleInboundDispatchesTextOnly(t *testing.T) {
	var mu sync.Mutex
	var got []ParsedInboundMessage
	done := make(chan struct{})
	h := NewWebhookHandler("secret-token", time.Second, func(_ context.Context, msg ParsedInboundMessage) {
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
		close(done)
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(samplePayload))
	rec := httptest.NewRecorder()
	h.HandleInbound(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected fast 200 ack, got %d", rec.Code)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch never ran")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("audio message should be skipped, got %d dispatches", len(got))
	}
	msg := got[0]
	if msg.TenantChannelID != "chan-1" || msg.SenderPhone != "5215587654321" {
		t.Fatalf("unexpected routing fields: %+v", msg)
	}
	if msg.SenderName != "María" {
		t.Fatalf("sender name should come from the contact profile, got %q", msg.SenderName)
	}
	if msg.Text != "hola" || msg.MessageID != "wamid.text1" {
		t.Fatalf("unexpected content: %+v", msg)
	}
	if msg.Timestamp.IsZero() {
		t.Fatal("timestamp should be parsed")
	}
}

func TestHandleInboundRejectsMalformedBody(t *testing.T) {
	h := NewWebhookHandler("secret-token", time.Second, func(_ context.Context, _ ParsedInboundMessage) {
		t.Fatal("dispatch should not run for malformed payloads")
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.HandleInbound(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleInboundIgnoresStatusUpdates(t *testing.T) {
	h := NewWebhookHandler("secret-token", time.Second, func(_ context.Context, _ ParsedInboundMessage) {
		t.Fatal("status updates carry no messages")
	}, nil)

	payload := `{"object":"whatsapp_business_account","entry":[{"id":"123","changes":[{"field":"messages","value":{"metadata":{"phone_number_id":"chan-1"},"statuses":[{"id":"wamid.x","status":"delivered"}]}}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	h.HandleInbound(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
