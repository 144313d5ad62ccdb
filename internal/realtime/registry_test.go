package realtime

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/vidx/internal/models"
	"github.com/desertthunder/vidx/internal/shared"
)

type frame struct {
	Event string
	Data  any
}

type fakeEmitter struct {
	mu     sync.Mutex
	frames []frame
	dead   bool
}

func (e *fakeEmitter) Emit(event string, data any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return shared.ErrNotConnected
	}
	e.frames = append(e.frames, frame{Event: event, Data: data})
	return nil
}

func (e *fakeEmitter) sent() []frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]frame(nil), e.frames...)
}

// fakeSource drives a registry synchronously.
type fakeSource struct {
	states   []StateListener
	handlers map[string][]Handler
	disposed int
}

func newFakeSource() *fakeSource {
	return &fakeSource{handlers: make(map[string][]Handler)}
}

func (s *fakeSource) OnState(fn StateListener) models.Disposer {
	s.states = append(s.states, fn)
	return func() { s.disposed++ }
}

func (s *fakeSource) On(event string, fn Handler) models.Disposer {
	s.handlers[event] = append(s.handlers[event], fn)
	return func() { s.disposed++ }
}

func (s *fakeSource) connect() *fakeEmitter {
	em := &fakeEmitter{}
	for _, fn := range s.states {
		fn(StateChange{State: Connected, Emitter: em})
	}
	return em
}

func (s *fakeSource) drop() {
	for _, fn := range s.states {
		fn(StateChange{State: Connecting, Attempt: 1})
	}
}

func (s *fakeSource) push(t *testing.T, event string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	for _, fn := range s.handlers[event] {
		fn(Event{Name: event, Data: payload})
	}
}

func newTestRegistry() (*Registry, *fakeSource) {
	src := newFakeSource()
	reg := NewRegistry(src, nil)
	tick := time.Unix(0, 0)
	reg.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return reg, src
}

func TestRegistrySubscribe(t *testing.T) {
	t.Run("offline subscriptions are sent on connect", func(t *testing.T) {
		reg, src := newTestRegistry()

		reg.Subscribe("b")
		reg.Subscribe("a")
		assert.True(t, reg.IsSubscribed("a"))

		em := src.connect()
		assert.Equal(t, []frame{
			{Event: models.EventSubscribe, Data: models.JobID("b")},
			{Event: models.EventSubscribe, Data: models.JobID("a")},
		}, em.sent())
	})

	t.Run("duplicate subscribe sends one frame", func(t *testing.T) {
		reg, src := newTestRegistry()
		em := src.connect()

		reg.Subscribe("v1")
		reg.Subscribe("v1")
		assert.Len(t, em.sent(), 1)
		assert.Len(t, reg.Subscriptions(), 1)
	})

	t.Run("unassigned id is ignored", func(t *testing.T) {
		reg, src := newTestRegistry()
		em := src.connect()

		reg.Subscribe("")
		assert.Empty(t, em.sent())
		assert.Empty(t, reg.Subscriptions())
	})

	t.Run("replays on every new connection", func(t *testing.T) {
		reg, src := newTestRegistry()
		first := src.connect()
		reg.Subscribe("v1")
		reg.Subscribe("v2")
		assert.Len(t, first.sent(), 2)

		src.drop()
		reg.Subscribe("v3")
		assert.Len(t, first.sent(), 2)

		second := src.connect()
		assert.Equal(t, []frame{
			{Event: models.EventSubscribe, Data: models.JobID("v1")},
			{Event: models.EventSubscribe, Data: models.JobID("v2")},
			{Event: models.EventSubscribe, Data: models.JobID("v3")},
		}, second.sent())
	})

	t.Run("failed emit keeps interest", func(t *testing.T) {
		reg, src := newTestRegistry()
		em := src.connect()
		em.dead = true

		reg.Subscribe("v1")
		assert.True(t, reg.IsSubscribed("v1"))

		next := src.connect()
		assert.Len(t, next.sent(), 1)
	})
}

func TestRegistryUnsubscribe(t *testing.T) {
	t.Run("sends frame while connected", func(t *testing.T) {
		reg, src := newTestRegistry()
		em := src.connect()
		reg.Subscribe("v1")
		reg.Unsubscribe("v1")

		assert.False(t, reg.IsSubscribed("v1"))
		assert.Equal(t, []frame{
			{Event: models.EventSubscribe, Data: models.JobID("v1")},
			{Event: models.EventUnsubscribe, Data: models.JobID("v1")},
		}, em.sent())
	})

	t.Run("unknown id is a no-op", func(t *testing.T) {
		reg, src := newTestRegistry()
		em := src.connect()
		reg.Unsubscribe("nope")
		assert.Empty(t, em.sent())
	})

	t.Run("offline unsubscribe is not replayed", func(t *testing.T) {
		reg, src := newTestRegistry()
		reg.Subscribe("v1")
		reg.Unsubscribe("v1")

		em := src.connect()
		assert.Empty(t, em.sent())
	})
}

func TestRegistryWatch(t *testing.T) {
	t.Run("routes events by job id", func(t *testing.T) {
		reg, src := newTestRegistry()

		var got []models.JobEvent
		reg.Watch("v1", func(ev models.JobEvent) { got = append(got, ev) })

		src.push(t, string(models.EventProgress), map[string]any{"videoId": "v1", "progress": 30})
		src.push(t, string(models.EventProgress), map[string]any{"videoId": "v2", "progress": 50})
		src.push(t, string(models.EventError), map[string]any{"videoId": "v1", "error": "codec"})
		src.push(t, string(models.EventComplete), map[string]any{"videoId": "v1"})

		require.Len(t, got, 3)
		assert.Equal(t, models.EventProgress, got[0].Kind)
		assert.InDelta(t, 30, got[0].Progress, 0.001)
		assert.Equal(t, models.EventError, got[1].Kind)
		assert.Equal(t, "codec", got[1].Error)
		assert.Equal(t, models.EventComplete, got[2].Kind)
	})

	t.Run("numeric job ids match", func(t *testing.T) {
		reg, src := newTestRegistry()

		var got int
		reg.Watch("42", func(models.JobEvent) { got++ })
		src.push(t, string(models.EventComplete), map[string]any{"videoId": 42})
		assert.Equal(t, 1, got)
	})

	t.Run("events without a job id are dropped", func(t *testing.T) {
		reg, src := newTestRegistry()

		var got int
		reg.Watch("v1", func(models.JobEvent) { got++ })
		src.push(t, string(models.EventComplete), map[string]any{"progress": 1})
		src.push(t, string(models.EventComplete), "garbage")
		assert.Zero(t, got)
	})

	t.Run("dispose stops delivery", func(t *testing.T) {
		reg, src := newTestRegistry()

		var got int
		dispose := reg.Watch("v1", func(models.JobEvent) { got++ })
		src.push(t, string(models.EventComplete), map[string]any{"videoId": "v1"})
		dispose()
		dispose()
		src.push(t, string(models.EventComplete), map[string]any{"videoId": "v1"})
		assert.Equal(t, 1, got)
	})

	t.Run("watcher may unsubscribe from its handler", func(t *testing.T) {
		reg, src := newTestRegistry()
		em := src.connect()
		reg.Subscribe("v1")

		var dispose models.Disposer
		dispose = reg.Watch("v1", func(models.JobEvent) {
			reg.Unsubscribe("v1")
			dispose()
		})
		src.push(t, string(models.EventComplete), map[string]any{"videoId": "v1"})

		assert.False(t, reg.IsSubscribed("v1"))
		assert.Len(t, em.sent(), 2)
	})
}

func TestRegistryClose(t *testing.T) {
	reg, src := newTestRegistry()
	reg.Subscribe("v1")
	reg.Close()
	reg.Close()

	assert.Equal(t, 4, src.disposed)
}
