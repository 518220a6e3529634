package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/diegovillafuerte/parlo/internal/whatsapp"
	"github.com/diegovillafuerte/parlo/pkg/logging"
)

type capturedDispatch struct {
	mu       sync.Mutex
	messages []whatsapp.ParsedInboundMessage
}

func (c *capturedDispatch) dispatch(_ context.Context, msg whatsapp.ParsedInboundMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

func (c *capturedDispatch) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func newTestRouter(t *testing.T, captured *capturedDispatch) http.Handler {
	t.Helper()

	webhook := whatsapp.NewWebhookHandler("verify-me", time.Second, captured.dispatch, nil)
	return New(&Config{
		Logger:         logging.Default(),
		Webhook:        webhook,
		MetricsHandler: promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{}),
	})
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, &capturedDispatch{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterWebhookVerification(t *testing.T) {
	router := newTestRouter(t, &capturedDispatch{})

	req := httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp/?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if rr.Body.String() != "12345" {
		t.Fatalf("expected challenge echo, got %q", rr.Body.String())
	}
}

func TestRouterWebhookVerificationRejectsBadToken(t *testing.T) {
	router := newTestRouter(t, &capturedDispatch{})

	req := httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp/?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, rr.Code)
	}
}

func TestRouterWebhookInboundAcksAndDispatches(t *testing.T) {
	captured := &capturedDispatch{}
	router := newTestRouter(t, captured)

	payload := `{
		"object": "whatsapp_business_account",
		"entry": [{
			"changes": [{
				"value": {
					"metadata": {"phone_number_id": "chan-1"},
					"contacts": [{"wa_id": "5215512345678", "profile": {"name": "María"}}],
					"messages": [{
						"from": "5215512345678",
						"id": "wamid.test-1",
						"timestamp": "1767000000",
						"type": "text",
						"text": {"body": "hola"}
					}]
				}
			}]
		}]
	}`

	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp/", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for captured.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("dispatch was never invoked")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, &capturedDispatch{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}
