// Package remote is a gateway.Gateway that talks to a pawsync server over
// HTTP, with subscriptions over WebSocket.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pawsitive/pawsync/internal/gateway"
	"github.com/pawsitive/pawsync/internal/schema"
	"github.com/pawsitive/pawsync/internal/server"
)

// Config holds client configuration.
type Config struct {
	// Token is sent as a bearer token when set.
	Token string

	// HTTPClient for REST calls (default: 30s timeout client)
	HTTPClient *http.Client

	// Reconnect re-dials a dropped subscription socket.
	Reconnect bool

	// MaxBackoff caps the delay between reconnect attempts.
	MaxBackoff time.Duration

	// Logger for client activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Reconnect:  true,
		MaxBackoff: 10 * time.Second,
		Logger:     log.New(os.Stderr, "[remote] ", log.LstdFlags),
	}
}

// Client implements gateway.Gateway against a server base URL.
type Client struct {
	base   *url.URL
	config *Config
}

var _ gateway.Gateway = (*Client)(nil)

// New returns a client for the server at baseURL, e.g.
// "http://localhost:8080".
func New(baseURL string, config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	def := DefaultConfig()
	if config.HTTPClient == nil {
		config.HTTPClient = def.HTTPClient
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = def.MaxBackoff
	}
	if strings.TrimSpace(baseURL) == "" {
		return nil, gateway.ErrConfigurationMissing
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", baseURL)
	}
	return &Client{base: u, config: config}, nil
}

func (c *Client) sessionURL(id string, suffix ...string) string {
	parts := append([]string{c.base.String(), "v1", "sessions"}, url.PathEscape(id))
	return strings.Join(append(parts, suffix...), "/")
}

func (c *Client) do(ctx context.Context, op, id, method, target string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, gateway.Wrap(op, id, fmt.Errorf("failed to marshal request: %w", err))
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, gateway.Wrap(op, id, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}
	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return nil, gateway.Wrap(op, id, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, statusError(op, id, resp)
	}
	return resp, nil
}

// statusError classifies a non-2xx response.
func statusError(op, id string, resp *http.Response) error {
	var body server.ErrorData
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &body)

	kind := gateway.KindUnknown
	switch resp.StatusCode {
	case http.StatusNotFound:
		kind = gateway.KindNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = gateway.KindPermissionDenied
	case http.StatusConflict:
		return gateway.Wrap(op, id, gateway.ErrAlreadyExists)
	}
	msg := body.Message
	if msg == "" {
		msg = resp.Status
	}
	return gateway.Errorf(kind, op, id, "server: %s", msg)
}

func decode(resp *http.Response, op, id string, v any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return gateway.Wrap(op, id, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// Get implements gateway.Gateway.
func (c *Client) Get(ctx context.Context, id string) (*schema.Session, error) {
	resp, err := c.do(ctx, gateway.OpGet, id, http.MethodGet, c.sessionURL(id), nil)
	if err != nil {
		return nil, err
	}
	var s schema.Session
	if err := decode(resp, gateway.OpGet, id, &s); err != nil {
		return nil, err
	}
	s.SetDefaults()
	return &s, nil
}

// Exists implements gateway.Gateway.
func (c *Client) Exists(ctx context.Context, id string) (bool, error) {
	resp, err := c.do(ctx, gateway.OpExists, id, http.MethodHead, c.sessionURL(id), nil)
	if gateway.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	return true, nil
}

// Create implements gateway.Gateway.
func (c *Client) Create(ctx context.Context, s *schema.Session) error {
	doc, err := gateway.EncodeSession(s)
	if err != nil {
		return gateway.Wrap(gateway.OpCreate, s.ID, err)
	}
	resp, err := c.do(ctx, gateway.OpCreate, s.ID, http.MethodPost, c.base.String()+"/v1/sessions", doc)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// SetMerged implements gateway.Gateway.
func (c *Client) SetMerged(ctx context.Context, id string, partial gateway.Document) error {
	doc, err := gateway.Sanitize(partial)
	if err != nil {
		return gateway.Wrap(gateway.OpSet, id, err)
	}
	resp, err := c.do(ctx, gateway.OpSet, id, http.MethodPatch, c.sessionURL(id), doc)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Delete implements gateway.Gateway.
func (c *Client) Delete(ctx context.Context, id string) error {
	resp, err := c.do(ctx, gateway.OpDelete, id, http.MethodDelete, c.sessionURL(id), nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// List implements gateway.Gateway.
func (c *Client) List(ctx context.Context) ([]schema.Meta, error) {
	resp, err := c.do(ctx, gateway.OpList, "", http.MethodGet, c.base.String()+"/v1/sessions", nil)
	if err != nil {
		return nil, err
	}
	var metas []schema.Meta
	if err := decode(resp, gateway.OpList, "", &metas); err != nil {
		return nil, err
	}
	return metas, nil
}
