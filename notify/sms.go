package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SMSGatewayConfig points at an HTTP SMS gateway that accepts
// {"apiKey","to","message"} as JSON.
type SMSGatewayConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// SMSGateway posts messages to the gateway. Any 2xx response is success.
type SMSGateway struct {
	config SMSGatewayConfig
	client *http.Client
}

func NewSMSGateway(cfg SMSGatewayConfig, client *http.Client) (*SMSGateway, error) {
	if cfg.URL == "" || cfg.APIKey == "" {
		return nil, errors.New("sms gateway url and api key are required")
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &SMSGateway{config: cfg, client: client}, nil
}

type smsPayload struct {
	APIKey  string `json:"apiKey"`
	To      string `json:"to"`
	Message string `json:"message"`
}

func (g *SMSGateway) SendSMS(ctx context.Context, phone, body string) error {
	payload, err := json.Marshal(smsPayload{APIKey: g.config.APIKey, To: phone, Message: body})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sms gateway: unexpected status %d", resp.StatusCode)
	}
	return nil
}
