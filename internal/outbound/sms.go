package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type SMSConfig struct {
	WebhookURL string
	From       string
	Timeout    time.Duration
}

// SMSSender posts messages to an HTTP SMS gateway.
type SMSSender struct {
	client *http.Client
	url    string
	from   string
}

type smsRequest struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	Body string `json:"body"`
}

func NewSMSSender(cfg SMSConfig) *SMSSender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SMSSender{
		client: &http.Client{Timeout: timeout},
		url:    cfg.WebhookURL,
		from:   cfg.From,
	}
}

func (s *SMSSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(smsRequest{From: s.from, To: msg.To, Body: msg.Body})
	if err != nil {
		return fmt.Errorf("failed to marshal sms: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}
	return nil
}
