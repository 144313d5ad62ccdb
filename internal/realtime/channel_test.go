package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/vidx/internal/shared"
)

const waitFor = 2 * time.Second

// fakeConn is a scripted connection. Frames pushed with send are returned by ReadMessage in
// order; drop makes the next read fail with err.
type fakeConn struct {
	inbound chan []byte
	failed  chan error
	closed  chan struct{}
	once    sync.Once

	mu      sync.Mutex
	written []Envelope
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		failed:  make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.inbound:
		return websocket.TextMessage, data, nil
	case err := <-f.failed:
		return 0, nil, err
	case <-f.closed:
		return 0, nil, io.ErrClosedPipe
	}
}

func (f *fakeConn) WriteJSON(v any) error {
	select {
	case <-f.closed:
		return io.ErrClosedPipe
	default:
	}
	env, ok := v.(Envelope)
	if !ok {
		return errors.New("unexpected frame type")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, env)
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) send(t *testing.T, event string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	frame, err := json.Marshal(Envelope{Event: event, Data: payload})
	require.NoError(t, err)
	f.inbound <- frame
}

func (f *fakeConn) drop(err error) { f.failed <- err }

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeConn) frames() []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Envelope(nil), f.written...)
}

type dialResult struct {
	conn Conn
	err  error
}

// fakeDialer hands out queued results and blocks when the queue is empty.
type fakeDialer struct {
	results chan dialResult

	mu          sync.Mutex
	credentials []string
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{results: make(chan dialResult, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, _, credential string) (Conn, error) {
	d.mu.Lock()
	d.credentials = append(d.credentials, credential)
	d.mu.Unlock()

	select {
	case r := <-d.results:
		return r.conn, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *fakeDialer) accept(conn *fakeConn) { d.results <- dialResult{conn: conn} }
func (d *fakeDialer) fail(err error)        { d.results <- dialResult{err: err} }

func (d *fakeDialer) dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.credentials...)
}

type stateRecorder struct {
	ch chan StateChange
}

func recordStates(c *Channel) *stateRecorder {
	r := &stateRecorder{ch: make(chan StateChange, 64)}
	c.OnState(func(sc StateChange) { r.ch <- sc })
	return r
}

func (r *stateRecorder) next(t *testing.T) StateChange {
	t.Helper()
	select {
	case sc := <-r.ch:
		return sc
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for state change")
		return StateChange{}
	}
}

// until skips changes until one with the given state arrives.
func (r *stateRecorder) until(t *testing.T, state State) StateChange {
	t.Helper()
	for {
		if sc := r.next(t); sc.State == state {
			return sc
		}
	}
}

func newTestChannel(d Dialer, opts Options) *Channel {
	if opts.ReconnectDelay == 0 {
		opts.ReconnectDelay = time.Millisecond
	}
	if opts.ReconnectDelayMax == 0 {
		opts.ReconnectDelayMax = 2 * time.Millisecond
	}
	return NewChannel(d, opts)
}

func TestChannelConnect(t *testing.T) {
	t.Run("dispatches events in arrival order", func(t *testing.T) {
		dialer := newFakeDialer()
		ch := newTestChannel(dialer, Options{ReconnectAttempts: 1})
		t.Cleanup(ch.Close)
		states := recordStates(ch)

		got := make(chan string, 8)
		ch.On("tick", func(ev Event) {
			var n string
			_ = json.Unmarshal(ev.Data, &n)
			got <- n
		})

		conn := newFakeConn()
		dialer.accept(conn)
		ch.SetCredential("tok")

		assert.Equal(t, Connecting, states.next(t).State)
		connected := states.next(t)
		require.Equal(t, Connected, connected.State)
		require.NotNil(t, connected.Emitter)
		assert.Equal(t, Connected, ch.State())

		for _, n := range []string{"a", "b", "c"} {
			conn.send(t, "tick", n)
		}
		for _, want := range []string{"a", "b", "c"} {
			select {
			case n := <-got:
				assert.Equal(t, want, n)
			case <-time.After(waitFor):
				t.Fatal("event not dispatched")
			}
		}
		assert.Equal(t, []string{"tok"}, dialer.dialed())
	})

	t.Run("emitter writes envelopes", func(t *testing.T) {
		dialer := newFakeDialer()
		ch := newTestChannel(dialer, Options{})
		t.Cleanup(ch.Close)
		states := recordStates(ch)

		conn := newFakeConn()
		dialer.accept(conn)
		ch.SetCredential("tok")
		connected := states.until(t, Connected)

		require.NoError(t, connected.Emitter.Emit("subscribe-video", "v1"))
		require.NoError(t, ch.Emit("ping", nil))

		frames := conn.frames()
		require.Len(t, frames, 2)
		assert.Equal(t, "subscribe-video", frames[0].Event)
		assert.JSONEq(t, `"v1"`, string(frames[0].Data))
		assert.Equal(t, "ping", frames[1].Event)
	})

	t.Run("malformed and unhandled frames are skipped", func(t *testing.T) {
		dialer := newFakeDialer()
		ch := newTestChannel(dialer, Options{})
		t.Cleanup(ch.Close)
		states := recordStates(ch)

		got := make(chan Event, 1)
		ch.On("known", func(ev Event) { got <- ev })

		conn := newFakeConn()
		dialer.accept(conn)
		ch.SetCredential("tok")
		states.until(t, Connected)

		conn.inbound <- []byte("not json")
		conn.inbound <- []byte(`{"data":1}`)
		conn.send(t, "other", 1)
		conn.send(t, "known", map[string]int{"n": 1})

		select {
		case ev := <-got:
			assert.Equal(t, "known", ev.Name)
			assert.JSONEq(t, `{"n":1}`, string(ev.Data))
		case <-time.After(waitFor):
			t.Fatal("known event not dispatched")
		}
		assert.Equal(t, Connected, ch.State())
	})

	t.Run("disposed handler is not called", func(t *testing.T) {
		dialer := newFakeDialer()
		ch := newTestChannel(dialer, Options{})
		t.Cleanup(ch.Close)
		states := recordStates(ch)

		var mu sync.Mutex
		var first, second int
		dispose := ch.On("e", func(Event) { mu.Lock(); first++; mu.Unlock() })
		done := make(chan struct{}, 2)
		ch.On("e", func(Event) { mu.Lock(); second++; mu.Unlock(); done <- struct{}{} })
		dispose()
		dispose()

		conn := newFakeConn()
		dialer.accept(conn)
		ch.SetCredential("tok")
		states.until(t, Connected)

		conn.send(t, "e", nil)
		<-done

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 0, first)
		assert.Equal(t, 1, second)
	})
}

func TestChannelReconnect(t *testing.T) {
	t.Run("reconnects after a drop and issues a fresh emitter", func(t *testing.T) {
		dialer := newFakeDialer()
		ch := newTestChannel(dialer, Options{ReconnectAttempts: 3})
		t.Cleanup(ch.Close)
		states := recordStates(ch)

		first := newFakeConn()
		dialer.accept(first)
		ch.SetCredential("tok")
		old := states.until(t, Connected).Emitter

		second := newFakeConn()
		dialer.accept(second)
		first.drop(errors.New("connection reset"))

		retry := states.next(t)
		assert.Equal(t, Connecting, retry.State)
		assert.Equal(t, 1, retry.Attempt)
		assert.Error(t, retry.Err)

		fresh := states.next(t)
		require.Equal(t, Connected, fresh.State)
		assert.True(t, first.isClosed())

		assert.ErrorIs(t, old.Emit("subscribe-video", "v1"), shared.ErrNotConnected)
		require.NoError(t, fresh.Emitter.Emit("subscribe-video", "v1"))
		assert.Empty(t, first.frames())
		assert.Len(t, second.frames(), 1)
	})

	t.Run("gives up after the attempt budget", func(t *testing.T) {
		dialer := newFakeDialer()
		ch := newTestChannel(dialer, Options{ReconnectAttempts: 2})
		t.Cleanup(ch.Close)
		states := recordStates(ch)

		for range 3 {
			dialer.fail(errors.New("refused"))
		}
		ch.SetCredential("tok")

		final := states.until(t, Disconnected)
		assert.ErrorIs(t, final.Err, shared.ErrChannel)
		assert.Len(t, dialer.dialed(), 3)

		status := ch.Status()
		assert.Equal(t, "disconnected", status.Label)
		assert.True(t, status.Bound)
	})

	t.Run("successful connection resets the budget", func(t *testing.T) {
		dialer := newFakeDialer()
		ch := newTestChannel(dialer, Options{ReconnectAttempts: 2})
		t.Cleanup(ch.Close)
		states := recordStates(ch)

		dialer.fail(errors.New("refused"))
		dialer.fail(errors.New("refused"))
		conn := newFakeConn()
		dialer.accept(conn)
		ch.SetCredential("tok")
		states.until(t, Connected)

		dialer.fail(errors.New("refused"))
		next := newFakeConn()
		dialer.accept(next)
		conn.drop(errors.New("reset"))

		assert.Equal(t, Connected, states.until(t, Connected).State)
	})

	t.Run("rebinding after exhaustion restarts", func(t *testing.T) {
		dialer := newFakeDialer()
		ch := newTestChannel(dialer, Options{ReconnectAttempts: 0})
		t.Cleanup(ch.Close)
		states := recordStates(ch)

		dialer.fail(errors.New("refused"))
		ch.SetCredential("tok")
		states.until(t, Disconnected)

		dialer.accept(newFakeConn())
		ch.SetCredential("tok")
		assert.Equal(t, Connected, states.until(t, Connected).State)
	})
}

func TestChannelUnauthorized(t *testing.T) {
	t.Run("handshake rejection", func(t *testing.T) {
		dialer := newFakeDialer()
		rejected := make(chan string, 1)
		ch := newTestChannel(dialer, Options{
			ReconnectAttempts: 5,
			OnUnauthorized:    func(cred string) { rejected <- cred },
		})
		t.Cleanup(ch.Close)
		states := recordStates(ch)

		dialer.fail(shared.ErrAuth)
		ch.SetCredential("tok")

		final := states.until(t, Disconnected)
		assert.ErrorIs(t, final.Err, shared.ErrAuth)
		select {
		case cred := <-rejected:
			assert.Equal(t, "tok", cred)
		case <-time.After(waitFor):
			t.Fatal("OnUnauthorized not called")
		}
		assert.Len(t, dialer.dialed(), 1)
	})

	t.Run("policy close", func(t *testing.T) {
		dialer := newFakeDialer()
		rejected := make(chan string, 1)
		ch := newTestChannel(dialer, Options{
			ReconnectAttempts: 5,
			OnUnauthorized:    func(cred string) { rejected <- cred },
		})
		t.Cleanup(ch.Close)
		states := recordStates(ch)

		conn := newFakeConn()
		dialer.accept(conn)
		ch.SetCredential("tok")
		states.until(t, Connected)

		conn.drop(&websocket.CloseError{Code: websocket.ClosePolicyViolation, Text: "token expired"})
		states.until(t, Disconnected)

		select {
		case cred := <-rejected:
			assert.Equal(t, "tok", cred)
		case <-time.After(waitFor):
			t.Fatal("OnUnauthorized not called")
		}
	})
}

func TestChannelSetCredential(t *testing.T) {
	t.Run("switching credentials tears down before dialing", func(t *testing.T) {
		dialer := newFakeDialer()
		ch := newTestChannel(dialer, Options{ReconnectAttempts: 1})
		t.Cleanup(ch.Close)
		states := recordStates(ch)

		first := newFakeConn()
		dialer.accept(first)
		ch.SetCredential("a")
		states.until(t, Connected)

		second := newFakeConn()
		dialer.accept(second)
		ch.SetCredential("b")

		assert.Equal(t, Disconnected, states.next(t).State)
		assert.True(t, first.isClosed())
		assert.Equal(t, Connecting, states.next(t).State)
		assert.Equal(t, Connected, states.next(t).State)
		assert.Equal(t, []string{"a", "b"}, dialer.dialed())
	})

	t.Run("same credential is a no-op while running", func(t *testing.T) {
		dialer := newFakeDialer()
		ch := newTestChannel(dialer, Options{})
		t.Cleanup(ch.Close)
		states := recordStates(ch)

		dialer.accept(newFakeConn())
		ch.SetCredential("a")
		states.until(t, Connected)

		ch.SetCredential("a")
		assert.Equal(t, []string{"a"}, dialer.dialed())
		assert.Equal(t, Connected, ch.State())
	})

	t.Run("empty credential disconnects", func(t *testing.T) {
		dialer := newFakeDialer()
		ch := newTestChannel(dialer, Options{})
		t.Cleanup(ch.Close)
		states := recordStates(ch)

		conn := newFakeConn()
		dialer.accept(conn)
		ch.SetCredential("a")
		states.until(t, Connected)

		ch.SetCredential("")
		final := states.next(t)
		assert.Equal(t, Disconnected, final.State)
		assert.NoError(t, final.Err)
		assert.True(t, conn.isClosed())
		assert.False(t, ch.Status().Bound)
		assert.ErrorIs(t, ch.Emit("x", nil), shared.ErrNotConnected)
	})

	t.Run("cancels a pending dial", func(t *testing.T) {
		dialer := newFakeDialer()
		ch := newTestChannel(dialer, Options{})
		t.Cleanup(ch.Close)
		states := recordStates(ch)

		ch.SetCredential("a")
		assert.Equal(t, Connecting, states.next(t).State)

		ch.SetCredential("")
		assert.Equal(t, Disconnected, states.next(t).State)
	})

	t.Run("closed channel ignores credentials", func(t *testing.T) {
		dialer := newFakeDialer()
		ch := newTestChannel(dialer, Options{})
		ch.Close()

		ch.SetCredential("a")
		assert.Empty(t, dialer.dialed())
		assert.Equal(t, Disconnected, ch.State())
	})
}

func TestChannelBackoff(t *testing.T) {
	ch := NewChannel(newFakeDialer(), Options{ReconnectDelay: time.Second, ReconnectDelayMax: 5 * time.Second})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{10, 5 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ch.backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "unknown", State(9).String())
}
