// Package apiclient calls the marketplace REST API. Every request carries
// the persisted bearer token, and any 401 response ends the session and
// sends the client to the login page.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ecomarket/internal/util"
	"ecomarket/pkg/session"
	"ecomarket/services/shop/internal/nav"
)

const defaultTimeout = 15 * time.Second

var (
	// ErrUnauthorized matches APIErrors with status 401.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNetwork wraps requests that did not complete, timeouts included.
	ErrNetwork = errors.New("network failure")
)

// APIError represents a marketplace error response.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Config wires the client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	Sessions  *session.Service
	Navigator nav.Navigator
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// Client calls the marketplace over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	sessions   *session.Service
	nav        nav.Navigator
	logger     *slog.Logger
}

// NewClient constructs a marketplace client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("apiclient: base URL required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("apiclient: session service required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &util.LoggingTransport{Base: cfg.Transport, Logger: logger},
		},
		sessions: cfg.Sessions,
		nav:      cfg.Navigator,
		logger:   logger,
	}, nil
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping issues an unauthenticated GET to path. Any HTTP response counts as
// reachable; only transport failures are returned.
func (c *Client) Ping(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ping %s: %w: %w", path, ErrNetwork, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, headers map[string]string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	token, err := c.sessions.Token(ctx)
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		apiErr := decodeError(resp)
		if resp.StatusCode == http.StatusUnauthorized {
			c.handleUnauthorized(ctx)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// handleUnauthorized drops the session and redirects to the login page
// unless the client is already there.
func (c *Client) handleUnauthorized(ctx context.Context) {
	if err := c.sessions.Clear(context.WithoutCancel(ctx)); err != nil {
		c.logger.Error("clear session after 401 failed", "err", err)
	}
	if c.nav == nil {
		return
	}
	if c.nav.Path() != nav.LoginPath {
		c.nav.Navigate(nav.LoginPath)
	}
}

func decodeError(resp *http.Response) *APIError {
	var errResp struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
		Code   string          `json:"code"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&errResp)
	msg := detailMessage(errResp.Detail)
	if msg == "" {
		msg = errResp.Error
	}
	if msg == "" {
		msg = resp.Status
	}
	return &APIError{Status: resp.StatusCode, Message: msg, Code: strings.TrimSpace(errResp.Code)}
}

// detailMessage accepts both a plain string detail and a list of
// validation entries carrying "msg".
func detailMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var entries []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &entries); err == nil {
		msgs := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.Msg != "" {
				msgs = append(msgs, e.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
