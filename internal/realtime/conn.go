package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/oauth2"

	"github.com/desertthunder/vidx/internal/shared"
)

// Envelope is one websocket frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is an inbound frame after envelope decoding. Data is passed through uninterpreted.
type Event struct {
	Name string
	Data json.RawMessage
}

// Conn is the subset of [websocket.Conn] the channel uses.
//
// One goroutine reads while writes are serialized by the channel.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	Close() error
}

// Dialer opens an authenticated connection.
type Dialer interface {
	Dial(ctx context.Context, rawURL, credential string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket, sending the credential both as a bearer
// header and as the "token" query parameter.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
}

// NewWebsocketDialer creates a dialer with the given handshake timeout.
func NewWebsocketDialer(handshakeTimeout time.Duration) *WebsocketDialer {
	d := *websocket.DefaultDialer
	if handshakeTimeout > 0 {
		d.HandshakeTimeout = handshakeTimeout
	}
	return &WebsocketDialer{Dialer: &d}
}

// Dial performs the websocket handshake.
//
// A 401 or 403 handshake response wraps [shared.ErrAuth]; every other failure wraps [shared.ErrChannel].
func (d *WebsocketDialer) Dial(ctx context.Context, rawURL, credential string) (Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url: %v", shared.ErrChannel, err)
	}

	q := u.Query()
	q.Set("token", credential)
	u.RawQuery = q.Encode()

	req := &http.Request{Header: make(http.Header)}
	(&oauth2.Token{AccessToken: credential, TokenType: "Bearer"}).SetAuthHeader(req)

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), req.Header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: handshake rejected with status %d", shared.ErrAuth, resp.StatusCode)
		}
		if resp != nil {
			return nil, fmt.Errorf("%w: handshake failed with status %d: %v", shared.ErrChannel, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrChannel, err)
	}
	return conn, nil
}

// isPolicyClose reports whether the server closed the socket because the credential is no
// longer acceptable.
func isPolicyClose(err error) bool {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == websocket.ClosePolicyViolation || ce.Code == 4001 || ce.Code == 4401
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
