package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	defaultGraphAPIBase = "https://graph.facebook.com/v18.0"
	defaultHTTPTimeout  = 10 * time.Second
)

// Sender delivers outbound text messages to a recipient phone number
// through a tenant's WhatsApp channel.
type Sender interface {
	SendText(ctx context.Context, phoneNumberID, to, text string) (string, error)
}

// Client sends messages via the WhatsApp Cloud API.
type Client struct {
	accessToken  string
	graphAPIBase string
	httpClient   *http.Client
}

// NewClient creates a new Graph API client.
func NewClient(accessToken string) *Client {
	return &Client{
		accessToken:  accessToken,
		graphAPIBase: defaultGraphAPIBase,
		httpClient:   &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// SetGraphAPIBase overrides the Graph API base URL (useful for testing).
func (c *Client) SetGraphAPIBase(base string) {
	c.graphAPIBase = base
}

// SendText sends a plain text message from the given business phone
// number and returns the provider message id.
func (c *Client) SendText(ctx context.Context, phoneNumberID, to, text string) (string, error) {
	req := SendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             SendText{Body: text},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("whatsapp: marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.graphAPIBase, phoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("whatsapp: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("whatsapp: send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whatsapp: read response: %w", err)
	}

	var sendResp SendResponse
	if err := json.Unmarshal(respBody, &sendResp); err != nil {
		return "", fmt.Errorf("whatsapp: unmarshal response: %w", err)
	}
	if sendResp.Error != nil {
		return "", fmt.Errorf("whatsapp: API error %d: %s", sendResp.Error.Code, sendResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whatsapp: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	if len(sendResp.Messages) == 0 {
		return "", fmt.Errorf("whatsapp: empty send response")
	}
	return sendResp.Messages[0].ID, nil
}

// SentRecord is one message captured by the mock sender.
type SentRecord struct {
	PhoneNumberID string
	To            string
	Text          string
}

// MockSender records outbound messages instead of calling the Graph
// API. Used in local development and tests.
type MockSender struct {
	mu   sync.Mutex
	sent []SentRecord
	seq  int
}

func NewMockSender() *MockSender {
	return &MockSender{}
}

func (m *MockSender) SendText(_ context.Context, phoneNumberID, to, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.sent = append(m.sent, SentRecord{PhoneNumberID: phoneNumberID, To: to, Text: text})
	return fmt.Sprintf("wamid.mock-%d", m.seq), nil
}

// Sent returns a copy of everything sent so far.
func (m *MockSender) Sent() []SentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentRecord, len(m.sent))
	copy(out, m.sent)
	return out
}
