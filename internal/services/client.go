package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/vidx/internal/shared"
)

const defaultTimeout = 30 * time.Second

// Client implements [Service] against the dashboard REST API.
//
// JSON calls are bounded by the request timeout. Uploads have no overall deadline and fail
// only when no body bytes move for that long.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
	timeout    time.Duration

	mu    sync.RWMutex
	creds Credentials
}

// Option configures a [Client].
type Option func(*Client)

// WithTimeout sets the per-request deadline for JSON calls and the idle limit for uploads.
// Zero disables both.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// NewClient creates a dashboard client rooted at baseURL (e.g. http://localhost:5000/api).
//
// httpClient should not set [http.Client.Timeout]: it would also cut off long uploads. A nil
// httpClient gets one without it. The request timeout defaults to 30s.
func NewClient(baseURL string, httpClient *http.Client, logger *log.Logger, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		logger:     shared.WithLogger(logger, "component", "api"),
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetCredentials binds the credential source consulted on every authenticated request.
func (c *Client) SetCredentials(creds Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = creds
}

// BaseURL returns the API root the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) credentials() Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds
}

// currentCredential returns the credential to attach, or "" when none is bound.
func (c *Client) currentCredential() string {
	if creds := c.credentials(); creds != nil {
		return creds.Credential()
	}
	return ""
}

// request describes one API call.
type request struct {
	method    string
	path      string
	query     map[string]string
	body      any
	anonymous bool

	// raw bodies bypass JSON encoding (multipart uploads)
	raw           io.Reader
	contentType   string
	contentLength int64
}

// envelope is the dashboard's response wrapper: {"success": true, "data": {...}}.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (c *Client) endpoint(path string, query map[string]string) string {
	u := c.baseURL + path
	if len(query) == 0 {
		return u
	}

	values := url.Values{}
	for k, v := range query {
		values.Set(k, v)
	}
	return u + "?" + values.Encode()
}

// do performs r and decodes the envelope's data into result (when non-nil).
func (c *Client) do(ctx context.Context, r request, result any) error {
	if r.raw == nil && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	contentType := r.contentType
	switch {
	case r.raw != nil:
		body = r.raw
	case r.body != nil:
		data, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.endpoint(r.path, r.query), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if r.raw != nil && r.contentLength > 0 {
		req.ContentLength = r.contentLength
	}

	requestID := shared.GenerateID()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	var credential string
	if !r.anonymous {
		credential = c.currentCredential()
		if credential != "" {
			(&oauth2.Token{AccessToken: credential, TokenType: "Bearer"}).SetAuthHeader(req)
		}
	}

	logger := c.logger.With("method", r.method, "path", r.path, "request_id", requestID)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Debug("request failed", "error", err)
		if errors.Is(err, context.Canceled) {
			return err
		}
		return newNetworkError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return newNetworkError(fmt.Errorf("failed to read response: %w", err))
	}
	logger.Debug("request complete", "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := newStatusError(resp.StatusCode, data)
		if apiErr.Kind == KindUnauthorized && credential != "" {
			if creds := c.credentials(); creds != nil {
				creds.Invalidate(credential)
			}
		}
		return apiErr
	}

	if result == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", shared.ErrServer, err)
	}

	payload := []byte(env.Data)
	if len(payload) == 0 || string(payload) == "null" {
		payload = data
	}
	if err := json.Unmarshal(payload, result); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", shared.ErrServer, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query map[string]string, result any) error {
	return c.do(ctx, request{method: http.MethodGet, path: path, query: query}, result)
}

func (c *Client) put(ctx context.Context, path string, body, result any) error {
	return c.do(ctx, request{method: http.MethodPut, path: path, body: body}, result)
}
