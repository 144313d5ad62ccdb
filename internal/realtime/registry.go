package realtime

import (
	"encoding/json"
	"io"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/vidx/internal/models"
	"github.com/desertthunder/vidx/internal/shared"
)

// Source is the part of [Channel] the registry attaches to.
type Source interface {
	OnState(fn StateListener) models.Disposer
	On(event string, fn Handler) models.Disposer
}

// JobHandler receives events for one job.
type JobHandler func(models.JobEvent)

// Subscription is one entry of the interest set.
type Subscription struct {
	JobID           models.JobID `json:"jobId"`
	InterestedSince time.Time    `json:"interestedSince"`
}

// Registry tracks which jobs the client wants updates for and routes their events.
//
// While connected, every subscription in the interest set has been sent on the current
// emitter exactly once.
type Registry struct {
	logger *log.Logger
	now    func() time.Time

	mu        sync.Mutex
	interests map[models.JobID]time.Time
	emitter   Emitter
	watchers  map[models.JobID]map[int]JobHandler
	nextID    int
	disposers []models.Disposer
}

// NewRegistry creates a registry and attaches it to src.
func NewRegistry(src Source, logger *log.Logger) *Registry {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}

	r := &Registry{
		logger:    shared.WithLogger(logger, "component", "registry"),
		now:       time.Now,
		interests: make(map[models.JobID]time.Time),
		watchers:  make(map[models.JobID]map[int]JobHandler),
	}

	r.disposers = append(r.disposers, src.OnState(r.onState))
	for _, kind := range []models.EventKind{models.EventProgress, models.EventComplete, models.EventError} {
		r.disposers = append(r.disposers, src.On(string(kind), r.handler(kind)))
	}
	return r
}

// Subscribe records interest in id and, when connected, sends the subscribe frame.
// Subscribing to an id already in the set does nothing.
func (r *Registry) Subscribe(id models.JobID) {
	if !id.Assigned() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.interests[id]; ok {
		return
	}
	r.interests[id] = r.now()
	activeSubscriptions.Set(float64(len(r.interests)))

	if r.emitter != nil {
		r.send(r.emitter, models.EventSubscribe, id)
	}
}

// Unsubscribe removes interest in id and, when connected, sends the unsubscribe frame.
// Unknown ids are ignored.
func (r *Registry) Unsubscribe(id models.JobID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.interests[id]; !ok {
		return
	}
	delete(r.interests, id)
	activeSubscriptions.Set(float64(len(r.interests)))

	if r.emitter != nil {
		r.send(r.emitter, models.EventUnsubscribe, id)
	}
}

// IsSubscribed reports whether id is in the interest set.
func (r *Registry) IsSubscribed(id models.JobID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.interests[id]
	return ok
}

// Subscriptions returns the interest set ordered by when interest was first recorded.
func (r *Registry) Subscriptions() []Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ordered()
}

// Watch routes events for id to fn until the returned disposer is called.
func (r *Registry) Watch(id models.JobID, fn JobHandler) models.Disposer {
	r.mu.Lock()
	defer r.mu.Unlock()

	handle := r.nextID
	r.nextID++
	if r.watchers[id] == nil {
		r.watchers[id] = make(map[int]JobHandler)
	}
	r.watchers[id][handle] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.watchers[id], handle)
			if len(r.watchers[id]) == 0 {
				delete(r.watchers, id)
			}
		})
	}
}

// Close detaches the registry from its source.
func (r *Registry) Close() {
	r.mu.Lock()
	disposers := r.disposers
	r.disposers = nil
	r.emitter = nil
	r.mu.Unlock()

	for _, dispose := range disposers {
		dispose()
	}
}

func (r *Registry) ordered() []Subscription {
	subs := make([]Subscription, 0, len(r.interests))
	for id, since := range r.interests {
		subs = append(subs, Subscription{JobID: id, InterestedSince: since})
	}
	slices.SortFunc(subs, func(a, b Subscription) int {
		if c := a.InterestedSince.Compare(b.InterestedSince); c != 0 {
			return c
		}
		if a.JobID < b.JobID {
			return -1
		}
		if a.JobID > b.JobID {
			return 1
		}
		return 0
	})
	return subs
}

// onState replays the interest set on every new connection instance.
func (r *Registry) onState(change StateChange) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if change.State != Connected || change.Emitter == nil {
		r.emitter = nil
		return
	}

	r.emitter = change.Emitter
	subs := r.ordered()
	if len(subs) > 0 {
		r.logger.Debug("replaying subscriptions", "count", len(subs))
	}
	for _, sub := range subs {
		r.send(change.Emitter, models.EventSubscribe, sub.JobID)
	}
}

// send emits under r.mu so a concurrent Subscribe cannot interleave with a replay.
func (r *Registry) send(em Emitter, event string, id models.JobID) {
	if err := em.Emit(event, id); err != nil {
		// The connection is going away; the interest set is replayed on the next one.
		r.logger.Debug("could not send frame", "event", event, "job", id, "error", err)
	}
}

func (r *Registry) handler(kind models.EventKind) Handler {
	return func(ev Event) {
		var job models.JobEvent
		if err := json.Unmarshal(ev.Data, &job); err != nil || !job.JobID.Assigned() {
			eventsDropped.WithLabelValues("malformed").Inc()
			r.logger.Debug("dropping event without job id", "event", ev.Name)
			return
		}
		job.Kind = kind
		r.deliver(job)
	}
}

func (r *Registry) deliver(job models.JobEvent) {
	r.mu.Lock()
	registered := r.watchers[job.JobID]
	ids := slices.Sorted(maps.Keys(registered))
	handlers := make([]JobHandler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, registered[id])
	}
	r.mu.Unlock()

	if len(handlers) == 0 {
		eventsDropped.WithLabelValues("unwatched").Inc()
		r.logger.Debug("dropping event for unwatched job", "event", job.Kind, "job", job.JobID)
		return
	}
	for _, fn := range handlers {
		fn(job)
	}
}
