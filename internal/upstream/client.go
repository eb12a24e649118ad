/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package upstream talks to the Jellyfin/Emby-compatible media server that
// owns the library and does the actual transcoding. Everything else in the
// system treats it as an opaque origin reachable over HTTP.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultTimeout = 30 * time.Second
	clientName     = "Prevue"

	// Upstream responses are bounded; a library page with 1000 items stays
	// well under this.
	maxResponseBytes = 64 << 20
)

// ErrAuthExpired signals that the stored access token was rejected. Callers
// must not retry; the user has to re-authenticate.
var ErrAuthExpired = errors.New("upstream: authentication expired")

// ErrPrivateURL is returned when the configured policy rejects a base URL
// resolving to a private or loopback address.
var ErrPrivateURL = errors.New("upstream: base URL resolves to a private address")

// StatusError carries a non-2xx upstream status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream: status %d", e.StatusCode)
}

// Client is an authenticated connection to one Upstream server.
type Client struct {
	baseURL  string
	token    string
	userID   string
	deviceID string
	logger   zerolog.Logger
	http     *http.Client
}

// Options configures client construction.
type Options struct {
	BaseURL     string
	AccessToken string
	UserID      string

	// DeviceID identifies this Prevue instance to Upstream. Transcode jobs
	// are keyed on it, so it must stay stable across requests.
	DeviceID string

	// AllowPrivateURLs permits base URLs resolving to private ranges.
	// Defaults to true at the config layer; the usual Upstream lives on a LAN.
	AllowPrivateURLs bool

	Timeout time.Duration
	Logger  zerolog.Logger
}

// New constructs a client. The base URL is validated against the private
// address policy once, up front.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		return nil, errors.New("upstream: empty base URL")
	}
	if !opts.AllowPrivateURLs {
		if err := rejectPrivateHost(base); err != nil {
			return nil, err
		}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	deviceID := opts.DeviceID
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	return &Client{
		baseURL:  base,
		token:    opts.AccessToken,
		userID:   opts.UserID,
		deviceID: deviceID,
		logger:   opts.Logger.With().Str("component", "upstream").Logger(),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

// BaseURL returns the server base URL without trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// DeviceID returns the device identity presented to Upstream.
func (c *Client) DeviceID() string { return c.deviceID }

// UserID returns the Upstream user the token is bound to.
func (c *Client) UserID() string { return c.userID }

func rejectPrivateHost(base string) error {
	parsed, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("upstream: parse base URL: %w", err)
	}
	host := parsed.Hostname()
	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("upstream: resolve %s: %w", host, err)
	}
	for _, ip := range ips {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() {
			return ErrPrivateURL
		}
	}
	return nil
}

func (c *Client) authHeader() string {
	return fmt.Sprintf(`MediaBrowser Client="%s", Device="%s", DeviceId="%s", Version="1.0"`,
		clientName, clientName, c.deviceID)
}

// do performs an authenticated request and decodes a JSON response into out
// (when out is non-nil). 401 maps to ErrAuthExpired and clears the token.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-Emby-Token", c.token)
	req.Header.Set("X-Emby-Authorization", c.authHeader())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer drainBody(resp)

	if resp.StatusCode == http.StatusUnauthorized {
		c.token = ""
		return ErrAuthExpired
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func drainBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// AuthResult is the outcome of a username/password authentication.
type AuthResult struct {
	AccessToken string
	UserID      string
}

// Authenticate performs username/password authentication against a server
// and returns a token. It does not mutate the client; callers build a new
// authenticated client from the result.
func Authenticate(ctx context.Context, baseURL, username, password string, allowPrivate bool, logger zerolog.Logger) (*AuthResult, error) {
	probe, err := New(Options{
		BaseURL:          baseURL,
		AllowPrivateURLs: allowPrivate,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		AccessToken string `json:"AccessToken"`
		User        struct {
			ID string `json:"Id"`
		} `json:"User"`
	}
	body := map[string]string{"Username": username, "Pw": password}
	if err := probe.do(ctx, http.MethodPost, "/Users/AuthenticateByName", body, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, errors.New("upstream: authentication returned no token")
	}
	return &AuthResult{AccessToken: resp.AccessToken, UserID: resp.User.ID}, nil
}

// TestConnection checks the server is reachable and the token is accepted.
func (c *Client) TestConnection(ctx context.Context) error {
	var info struct {
		ServerName string `json:"ServerName"`
		Version    string `json:"Version"`
	}
	if err := c.do(ctx, http.MethodGet, "/System/Info", nil, &info); err != nil {
		return err
	}
	c.logger.Debug().Str("server", info.ServerName).Str("version", info.Version).Msg("upstream reachable")
	return nil
}
