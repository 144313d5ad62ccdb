package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/vidx/internal/models"
	"github.com/desertthunder/vidx/internal/shared"
)

const (
	defaultReconnectDelay    = time.Second
	defaultReconnectDelayMax = 5 * time.Second
)

// State is the connection state of a [Channel].
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Emitter sends frames on one connection instance.
//
// Emit fails with [shared.ErrNotConnected] once that instance has gone away, even if the
// channel has since reconnected.
type Emitter interface {
	Emit(event string, data any) error
}

// StateChange is delivered to state listeners.
type StateChange struct {
	State State
	// Attempt counts consecutive failed connection attempts; 0 on the first dial.
	Attempt int
	// Emitter is the live connection, set only when State is Connected.
	Emitter Emitter
	// Err is the failure that caused the change, if any.
	Err error
}

// StateListener observes channel state transitions.
type StateListener func(StateChange)

// Handler receives inbound events of one name.
type Handler func(Event)

// Options configures a [Channel].
type Options struct {
	URL               string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration
	Logger            *log.Logger

	// OnUnauthorized is called with the bound credential when the server rejects it at
	// handshake or closes the socket with a policy code. It runs after the channel has
	// settled in Disconnected, so it may rebind the channel.
	OnUnauthorized func(credential string)
}

// Status is a point-in-time view of the channel.
type Status struct {
	State   State  `json:"-"`
	Label   string `json:"state"`
	Attempt int    `json:"attempt"`
	Bound   bool   `json:"bound"`
}

// Channel is the single realtime connection of the process.
type Channel struct {
	dialer Dialer
	opts   Options
	logger *log.Logger

	// bindMu serializes SetCredential and Close.
	bindMu sync.Mutex

	mu         sync.Mutex
	state      State
	attempt    int
	credential string
	running    bool
	stop       context.CancelFunc
	done       chan struct{}
	conn       Conn
	instance   uint64
	handlers   map[string]map[int]Handler
	listeners  map[int]StateListener
	nextID     int
	closed     bool

	writeMu sync.Mutex
}

// NewChannel creates a disconnected channel.
func NewChannel(dialer Dialer, opts Options) *Channel {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.ReconnectDelayMax <= 0 {
		opts.ReconnectDelayMax = defaultReconnectDelayMax
	}
	if opts.ReconnectAttempts < 0 {
		opts.ReconnectAttempts = 0
	}

	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}

	return &Channel{
		dialer:    dialer,
		opts:      opts,
		logger:    shared.WithLogger(logger, "component", "realtime"),
		handlers:  make(map[string]map[int]Handler),
		listeners: make(map[int]StateListener),
	}
}

// SetCredential binds the channel to credential.
//
// An empty credential closes the channel. A different credential closes the current
// connection (or cancels the attempt in progress), waits until Disconnected has been
// delivered to listeners, then starts connecting with the new one. Rebinding the credential
// the channel is already running with is a no-op.
//
// SetCredential must not be called from a state listener or event handler.
func (c *Channel) SetCredential(credential string) {
	c.bindMu.Lock()
	defer c.bindMu.Unlock()

	c.mu.Lock()
	if c.closed || (credential == c.credential && (c.running || credential == "")) {
		c.mu.Unlock()
		return
	}
	stop, done := c.stop, c.done
	c.credential = credential
	c.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}

	if credential == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done = make(chan struct{})

	c.mu.Lock()
	c.stop, c.done, c.running = cancel, done, true
	c.mu.Unlock()

	go c.run(ctx, credential, done)
}

// Close disconnects and drops every handler and listener.
func (c *Channel) Close() {
	c.SetCredential("")

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	clear(c.handlers)
	clear(c.listeners)
}

// On registers a handler for inbound events named event.
func (c *Channel) On(event string, fn Handler) models.Disposer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}

	id := c.nextID
	c.nextID++
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[int]Handler)
	}
	c.handlers[event][id] = fn

	return c.disposer(func() {
		delete(c.handlers[event], id)
	})
}

// OnState registers a state listener.
func (c *Channel) OnState(fn StateListener) models.Disposer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}

	id := c.nextID
	c.nextID++
	c.listeners[id] = fn

	return c.disposer(func() {
		delete(c.listeners, id)
	})
}

func (c *Channel) disposer(remove func()) models.Disposer {
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			remove()
		})
	}
}

// Emit sends a frame on the current connection.
func (c *Channel) Emit(event string, data any) error {
	c.mu.Lock()
	conn, instance := c.conn, c.instance
	c.mu.Unlock()

	if conn == nil {
		return shared.ErrNotConnected
	}
	return (&emitter{c: c, conn: conn, instance: instance}).Emit(event, data)
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the current state, attempt count and whether a credential is bound.
func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{State: c.state, Label: c.state.String(), Attempt: c.attempt, Bound: c.credential != ""}
}

// backoff returns the delay before reconnect attempt n (1-based).
func (c *Channel) backoff(n int) time.Duration {
	d := c.opts.ReconnectDelay
	for i := 1; i < n; i++ {
		d *= 2
		if d >= c.opts.ReconnectDelayMax {
			return c.opts.ReconnectDelayMax
		}
	}
	return min(d, c.opts.ReconnectDelayMax)
}

func (c *Channel) run(ctx context.Context, credential string, done chan struct{}) {
	rejected := c.loop(ctx, credential)
	close(done)

	if rejected && c.opts.OnUnauthorized != nil {
		c.opts.OnUnauthorized(credential)
	}
}

// loop dials and serves connections until ctx is cancelled, the attempt budget runs out or
// the credential is rejected. It reports whether the credential was rejected.
func (c *Channel) loop(ctx context.Context, credential string) (rejected bool) {
	failures := 0
	var lastErr error
	c.transition(StateChange{State: Connecting})

	for {
		conn, err := c.dialer.Dial(ctx, c.opts.URL, credential)
		if err == nil {
			connectAttempts.WithLabelValues("success").Inc()
			failures = 0
			err = c.serve(ctx, conn)
		} else {
			connectAttempts.WithLabelValues("failure").Inc()
		}

		if ctx.Err() != nil {
			lastErr = nil
			break
		}

		lastErr = err
		if errors.Is(err, shared.ErrAuth) || isPolicyClose(err) {
			c.logger.Warn("credential rejected by realtime server", "error", err)
			rejected = true
			break
		}

		failures++
		if failures > c.opts.ReconnectAttempts {
			c.logger.Warn("giving up on realtime connection", "attempts", failures-1, "error", err)
			break
		}

		delay := c.backoff(failures)
		c.logger.Debug("reconnecting", "attempt", failures, "delay", delay, "error", err)
		c.transition(StateChange{State: Connecting, Attempt: failures, Err: err})

		if !sleep(ctx, delay) {
			lastErr = nil
			break
		}
	}

	if lastErr != nil && !errors.Is(lastErr, shared.ErrAuth) {
		lastErr = fmt.Errorf("%w: %v", shared.ErrChannel, lastErr)
	}

	// Cleared before listeners see Disconnected so they may rebind the same credential.
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.transition(StateChange{State: Disconnected, Attempt: failures, Err: lastErr})
	return rejected
}

// serve installs conn, announces Connected and reads until the connection fails.
func (c *Channel) serve(ctx context.Context, conn Conn) error {
	stopWatch := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopWatch()

	c.mu.Lock()
	c.instance++
	instance := c.instance
	c.conn = conn
	c.mu.Unlock()

	c.logger.Info("realtime connected")
	c.transition(StateChange{State: Connected, Emitter: &emitter{c: c, conn: conn, instance: instance}})

	err := c.read(conn)

	c.mu.Lock()
	if c.instance == instance {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()

	if isNormalClose(err) {
		c.logger.Info("realtime connection closed by server")
	} else {
		c.logger.Debug("realtime connection dropped", "error", err)
	}
	return err
}

// read dispatches frames in arrival order until the connection fails.
func (c *Channel) read(conn Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			eventsDropped.WithLabelValues("malformed").Inc()
			c.logger.Debug("dropping malformed frame", "bytes", len(data))
			continue
		}

		eventsReceived.WithLabelValues(env.Event).Inc()
		c.dispatch(Event{Name: env.Event, Data: env.Data})
	}
}

func (c *Channel) dispatch(ev Event) {
	c.mu.Lock()
	registered := c.handlers[ev.Name]
	ids := slices.Sorted(maps.Keys(registered))
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, registered[id])
	}
	c.mu.Unlock()

	if len(handlers) == 0 {
		eventsDropped.WithLabelValues("unhandled").Inc()
		c.logger.Debug("no handler for event", "event", ev.Name)
		return
	}
	for _, fn := range handlers {
		fn(ev)
	}
}

func (c *Channel) transition(change StateChange) {
	c.mu.Lock()
	c.state = change.State
	c.attempt = change.Attempt
	ids := slices.Sorted(maps.Keys(c.listeners))
	listeners := make([]StateListener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, c.listeners[id])
	}
	c.mu.Unlock()

	connectionState.Set(float64(change.State))
	for _, fn := range listeners {
		fn(change)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// emitter writes to one connection instance.
type emitter struct {
	c        *Channel
	conn     Conn
	instance uint64
}

func (e *emitter) Emit(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", event, err)
	}

	e.c.mu.Lock()
	live := e.c.conn == e.conn && e.c.instance == e.instance
	e.c.mu.Unlock()
	if !live {
		return shared.ErrNotConnected
	}

	e.c.writeMu.Lock()
	defer e.c.writeMu.Unlock()
	if err := e.conn.WriteJSON(Envelope{Event: event, Data: payload}); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrChannel, err)
	}
	framesSent.WithLabelValues(event).Inc()
	return nil
}
