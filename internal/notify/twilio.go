package notify

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

	"github.com/caarlos0/env/v11"
)

// ErrNotConfigured is returned when Twilio credentials are missing.
var ErrNotConfigured = errors.New("notify: twilio not configured")

// TwilioConfig is read from the environment.
type TwilioConfig struct {
	AccountSID string `env:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	FromNumber string `env:"TWILIO_FROM_NUMBER"`
	BaseURL    string `env:"TWILIO_BASE_URL" envDefault:"https://api.twilio.com"`
}

// LoadTwilioConfig parses TWILIO_* variables.
func LoadTwilioConfig() (TwilioConfig, error) {
	var cfg TwilioConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Configured reports whether every credential is present.
func (c TwilioConfig) Configured() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != ""
}

// Twilio sends messages through the Twilio REST API.
type Twilio struct {
	config TwilioConfig
	client *http.Client
}

var _ Sender = (*Twilio)(nil)

// NewTwilio returns a sender. A nil client uses a 15s timeout.
func NewTwilio(config TwilioConfig, client *http.Client) (*Twilio, error) {
	if !config.Configured() {
		return nil, ErrNotConfigured
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.twilio.com"
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Twilio{config: config, client: client}, nil
}

// Send implements Sender.
func (t *Twilio) Send(ctx context.Context, to, body string) error {
	if strings.TrimSpace(to) == "" || body == "" {
		return fmt.Errorf("recipient and body are required")
	}
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(t.config.BaseURL, "/"), url.PathEscape(t.config.AccountSID))
	form := url.Values{
		"From": {t.config.FromNumber},
		"To":   {to},
		"Body": {body},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.config.AccountSID, t.config.AuthToken)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send SMS: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = json.Unmarshal(data, &apiErr)
		if apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
		return fmt.Errorf("failed to send SMS: twilio %d: %s", apiErr.Code, apiErr.Message)
	}
	return nil
}
