package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	storeerrors "github.com/jrsteele09/go-storefront/internal/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const requestIDHeader = "X-Request-ID"

// Client issues JSON requests against the order service. A Client never
// carries ambient credentials: Authorized returns a separate copy bound to one
// bearer credential.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	anonymous    *http.Client
	credential   string
	newRequestID func() string
	log          zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (its Transport is used as
// the base for authorized copies).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithRequestIDFunc sets the generator for the X-Request-ID header (primarily for testing).
func WithRequestIDFunc(f func() string) Option {
	return func(c *Client) {
		c.newRequestID = f
	}
}

func New(baseURL string, options ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		newRequestID: uuid.NewString,
		log:          zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	c.anonymous = c.httpClient
	return c
}

// Authorized returns a copy of c that sends Authorization: Bearer <credential>
// on every request. An empty credential yields an anonymous copy; asking for
// the credential c already carries returns c.
func (c *Client) Authorized(credential string) *Client {
	if credential == c.credential {
		return c
	}
	authorized := *c
	authorized.credential = credential
	if credential == "" {
		authorized.httpClient = c.anonymous
		return &authorized
	}

	base := c.anonymous.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	authorized.httpClient = &http.Client{
		Timeout:       c.anonymous.Timeout,
		CheckRedirect: c.anonymous.CheckRedirect,
		Jar:           c.anonymous.Jar,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: credential,
				TokenType:   "Bearer",
			}),
			Base: base,
		},
	}
	return &authorized
}

// Anonymous returns a copy of c without a credential.
func (c *Client) Anonymous() *Client {
	return c.Authorized("")
}

// HasCredential reports whether the client attaches a bearer credential.
func (c *Client) HasCredential() bool {
	return c.credential != ""
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get issues a GET and decodes the JSON response into out (if non-nil).
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST. A nil body sends no request body at all.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return storeerrors.Wrapf(storeerrors.ErrValidation, "[transport.Client] encode %s %s: %v", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return storeerrors.Wrapf(storeerrors.ErrTransport, "[transport.Client] build %s %s: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	requestID := c.newRequestID()
	req.Header.Set(requestIDHeader, requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("method", method).Str("path", path).Str("requestId", requestID).Msg("request failed")
		return storeerrors.Wrapf(storeerrors.ErrTransport, "[transport.Client] %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return storeerrors.Wrapf(storeerrors.ErrTransport, "[transport.Client] read %s %s: %v", method, path, err)
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Str("requestId", requestID).
		Bool("authorized", c.HasCredential()).
		Dur("elapsed", time.Since(start)).
		Msg("request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return storeerrors.Wrapf(storeerrors.ErrTransport, "[transport.Client] decode %s %s: %v", method, path, err)
	}
	return nil
}
