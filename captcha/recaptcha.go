// Package captcha verifies reCAPTCHA tokens against the siteverify endpoint.
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultEndpoint is Google's siteverify URL.
const DefaultEndpoint = "https://www.google.com/recaptcha/api/siteverify"

type Config struct {
	Secret   string
	Endpoint string
	Timeout  time.Duration
	// MinScore rejects reCAPTCHA v3 results scoring below it. Zero disables
	// the check.
	MinScore float64
}

// Verifier implements falcomAuth.CaptchaVerifier.
type Verifier struct {
	config Config
	client *http.Client
}

func New(cfg Config, client *http.Client) (*Verifier, error) {
	if cfg.Secret == "" {
		return nil, errors.New("captcha secret is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Verifier{config: cfg, client: client}, nil
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	Score      *float64 `json:"score,omitempty"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

// VerifyCaptcha reports whether token passed. Transport and decoding
// failures are returned as errors; a rejected token is (false, nil).
func (v *Verifier) VerifyCaptcha(ctx context.Context, token, remoteIP string) (bool, error) {
	form := url.Values{}
	form.Set("secret", v.config.Secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.config.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("siteverify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("siteverify: unexpected status %d", resp.StatusCode)
	}

	var out siteverifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return false, fmt.Errorf("siteverify: decode: %w", err)
	}
	if !out.Success {
		return false, nil
	}
	if v.config.MinScore > 0 && out.Score != nil && *out.Score < v.config.MinScore {
		return false, nil
	}
	return true, nil
}
