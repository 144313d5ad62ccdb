package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/vidx/internal/models"
	"github.com/desertthunder/vidx/internal/shared"
)

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func TestWebsocketDialer(t *testing.T) {
	t.Run("sends credential and exchanges envelopes", func(t *testing.T) {
		upgrader := websocket.Upgrader{}
		received := make(chan Envelope, 1)

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok" || r.URL.Query().Get("token") != "tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()

			var env Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			received <- env
			_ = conn.WriteMessage(websocket.TextMessage,
				[]byte(`{"event":"video-processing-progress","data":{"videoId":"v1","progress":40}}`))
			_, _, _ = conn.ReadMessage()
		}))
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()

		conn, err := NewWebsocketDialer(time.Second).Dial(ctx, wsURL(server), "tok")
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.WriteJSON(Envelope{Event: "subscribe-video", Data: []byte(`"v1"`)}))

		select {
		case env := <-received:
			assert.Equal(t, "subscribe-video", env.Event)
			assert.JSONEq(t, `"v1"`, string(env.Data))
		case <-time.After(waitFor):
			t.Fatal("server did not receive frame")
		}

		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, `{"event":"video-processing-progress","data":{"videoId":"v1","progress":40}}`, string(data))
	})

	t.Run("rejected handshake is an auth error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		_, err := NewWebsocketDialer(time.Second).Dial(context.Background(), wsURL(server), "bad")
		assert.ErrorIs(t, err, shared.ErrAuth)
	})

	t.Run("other handshake failures are channel errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		_, err := NewWebsocketDialer(time.Second).Dial(context.Background(), wsURL(server), "tok")
		assert.ErrorIs(t, err, shared.ErrChannel)
		assert.NotErrorIs(t, err, shared.ErrAuth)
	})

	t.Run("invalid url", func(t *testing.T) {
		_, err := NewWebsocketDialer(0).Dial(context.Background(), "://bad", "tok")
		assert.ErrorIs(t, err, shared.ErrChannel)
	})
}

func TestCloseClassification(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		policy bool
		normal bool
	}{
		{"policy violation", &websocket.CloseError{Code: websocket.ClosePolicyViolation}, true, false},
		{"application unauthorized", &websocket.CloseError{Code: 4401}, true, false},
		{"normal", &websocket.CloseError{Code: websocket.CloseNormalClosure}, false, true},
		{"going away", &websocket.CloseError{Code: websocket.CloseGoingAway}, false, true},
		{"abnormal", &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, false, false},
		{"plain error", assert.AnError, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.policy, isPolicyClose(tt.err))
			assert.Equal(t, tt.normal, isNormalClose(tt.err))
		})
	}
}

func TestChannelOverWebsocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var env Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			if env.Event == "subscribe-video" {
				_ = conn.WriteJSON(Envelope{Event: "video-processing-complete", Data: []byte(`{"videoId":` + string(env.Data) + `}`)})
			}
		}
	}))
	defer server.Close()

	ch := NewChannel(NewWebsocketDialer(time.Second), Options{URL: wsURL(server)})
	defer ch.Close()
	reg := NewRegistry(ch, nil)
	defer reg.Close()

	done := make(chan string, 1)
	reg.Watch("v9", func(ev models.JobEvent) { done <- string(ev.Kind) })
	reg.Subscribe("v9")
	ch.SetCredential("tok")

	select {
	case kind := <-done:
		assert.Equal(t, "video-processing-complete", kind)
	case <-time.After(waitFor):
		t.Fatal("completion not delivered")
	}
}
