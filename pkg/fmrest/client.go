package fmrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/beezwax/fmrest-go/pkg/cloud"
	"github.com/beezwax/fmrest-go/pkg/httpx"
	"github.com/beezwax/fmrest-go/pkg/slogx"
)

// Client talks to one FileMaker database through the Data API. Session
// handling is transparent: requests sent with Do carry a valid session
// token, created and renewed as needed.
type Client struct {
	settings   Settings
	httpClient *http.Client
	transport  http.RoundTripper
	session    *TokenSession
}

type options struct {
	base     http.RoundTripper
	identity IdentityProvider
}

type Option func(*options)

// WithBaseTransport sets the transport that finally sends requests.
// Defaults to httpx.NewTransport(settings.Proxy).
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.base = rt }
}

// WithIdentityProvider replaces the Cognito backed Claris ID client.
func WithIdentityProvider(p IdentityProvider) Option {
	return func(o *options) { o.identity = p }
}

// NewClient validates settings and assembles the request pipeline. The
// settings are copied; later changes to the caller's value have no effect.
func NewClient(ctx context.Context, settings Settings, opts ...Option) (*Client, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	s := settings.withDefaults()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	base := o.base
	if base == nil {
		t, err := httpx.NewTransport(s.Proxy)
		if err != nil {
			return nil, err
		}
		base = t
	}
	if s.Log {
		base = &slogx.Transport{Next: base, Logger: s.Logger, Level: slog.LevelDebug}
	}

	strategy := s.Strategy()
	identity := o.identity
	if strategy == StrategyClarisID && identity == nil {
		ic, err := cloud.NewIdentityClient(ctx, cloud.Config{
			PoolID:     s.Cognito.PoolID,
			ClientID:   s.Cognito.ClientID,
			Region:     s.Cognito.Region,
			Proxy:      s.Proxy,
			Username:   s.Username,
			Password:   s.Password,
			TOTPSecret: s.Cognito.TOTPSecret,
			Store:      s.TokenStore,
			Timeout:    s.Timeout,
			Logger:     s.Logger,
		})
		if err != nil {
			return nil, err
		}
		identity = ic
	}

	session := &TokenSession{
		next:  base,
		store: s.TokenStore,
		key:   s.ScopeKey(),
		auth: &sessionAuth{
			sessionsURL: s.DatabaseURL() + "/sessions",
			transport:   base,
			strategy:    strategy,
			username:    s.Username,
			password:    s.Password,
			fmidToken:   s.FMIDToken,
			identity:    identity,
		},
		limiter: httpx.NewKeyedLimiter(s.LoginLimit),
		log:     s.Logger.With("component", "fmrest"),
		timeout: s.Timeout,
		preset:  s.Token,
	}

	var rt http.RoundTripper = &ErrorChecker{Next: session}
	if strategy == StrategyClarisID {
		rt = &AuthErrorRetry{Next: rt, Identity: identity, Logger: s.Logger}
	}

	return &Client{
		settings:   s,
		httpClient: &http.Client{Transport: rt, Timeout: s.Timeout},
		transport:  rt,
		session:    session,
	}, nil
}

// NewTransport returns the session handling pipeline as a RoundTripper, for
// callers that bring their own http.Client.
func NewTransport(ctx context.Context, settings Settings, opts ...Option) (http.RoundTripper, error) {
	c, err := NewClient(ctx, settings, opts...)
	if err != nil {
		return nil, err
	}
	return c.transport, nil
}

// Settings returns the validated settings with defaults applied.
func (c *Client) Settings() Settings { return c.settings }

// HTTPClient is an *http.Client whose requests go through the pipeline.
func (c *Client) HTTPClient() *http.Client { return c.httpClient }

// Transport is the pipeline RoundTripper.
func (c *Client) Transport() http.RoundTripper { return c.transport }

// ScopeKey is the token store key used for this client's session.
func (c *Client) ScopeKey() string { return c.session.ScopeKey() }

// URL resolves a path relative to the database URL, e.g. "layouts".
func (c *Client) URL(path string) string {
	return c.settings.DatabaseURL() + "/" + strings.TrimPrefix(path, "/")
}

// NewRequest builds a request against path, JSON encoding body when it is
// not nil.
func (c *Client) NewRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), r)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Do sends req through the pipeline.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// Logout ends the current session on the server and forgets its token. It
// returns ErrNoSessionToken without contacting the server when there is no
// session.
func (c *Client) Logout(ctx context.Context) error {
	req, err := http.NewRequestWithContext(withLogout(ctx), http.MethodDelete, c.URL("sessions"), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}

// TryLogout is Logout for callers that only care whether it worked.
func (c *Client) TryLogout(ctx context.Context) bool {
	return c.Logout(ctx) == nil
}
