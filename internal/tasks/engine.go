package tasks

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/vidx/internal/models"
	"github.com/desertthunder/vidx/internal/realtime"
	"github.com/desertthunder/vidx/internal/shared"
)

const (
	defaultPollInterval = 15 * time.Second
	defaultPollRate     = 2.0
)

// API is the server surface the engine needs.
type API interface {
	UploadAPI
	GetVideo(ctx context.Context, id models.JobID) (*models.Video, error)
}

// StateSource reports realtime connection transitions.
type StateSource interface {
	OnState(fn realtime.StateListener) models.Disposer
}

// EngineOptions configures an [UploadEngine].
type EngineOptions struct {
	Validator    Validator
	PollInterval time.Duration
	PollRate     float64 // GET /videos/:id requests per second during reconciliation
	Updates      chan<- ProgressUpdate
	Logger       *log.Logger
}

// UploadEngine owns the live upload controllers and reconciles them against REST.
//
// Realtime events are best effort: reconciliation fetches the authoritative status of every
// non-terminal job with an id on each reconnect and every poll interval.
type UploadEngine struct {
	api     API
	subs    Subscriber
	opts    EngineOptions
	logger  *log.Logger
	limiter *rate.Limiter

	mu    sync.Mutex
	jobs  map[string]*Controller
	order []string

	kick     chan struct{}
	disposer models.Disposer
}

// NewUploadEngine creates an engine. Call [UploadEngine.Run] to start reconciliation.
func NewUploadEngine(api API, subs Subscriber, opts EngineOptions) *UploadEngine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.PollRate <= 0 {
		opts.PollRate = defaultPollRate
	}
	if opts.Validator.MaxBytes <= 0 {
		opts.Validator.MaxBytes = DefaultMaxUploadBytes
	}
	if len(opts.Validator.AllowedTypes) == 0 {
		opts.Validator.AllowedTypes = DefaultAllowedTypes
	}

	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}

	return &UploadEngine{
		api:     api,
		subs:    subs,
		opts:    opts,
		logger:  shared.WithLogger(logger, "component", "uploads"),
		limiter: rate.NewLimiter(rate.Limit(opts.PollRate), 1),
		jobs:    make(map[string]*Controller),
		kick:    make(chan struct{}, 1),
	}
}

// Attach requests a reconciliation every time src reports Connected.
func (e *UploadEngine) Attach(src StateSource) {
	dispose := src.OnState(func(change realtime.StateChange) {
		if change.State == realtime.Connected {
			e.RequestReconcile()
		}
	})

	e.mu.Lock()
	prev := e.disposer
	e.disposer = dispose
	e.mu.Unlock()

	if prev != nil {
		prev()
	}
}

// RequestReconcile schedules a reconciliation pass without blocking.
func (e *UploadEngine) RequestReconcile() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Run reconciles on every poll tick and every requested pass until ctx ends.
func (e *UploadEngine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-e.kick:
		}

		if _, err := e.Reconcile(ctx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// NewUpload validates and starts an upload. On validation failure nothing is registered.
func (e *UploadEngine) NewUpload(ctx context.Context, path, title string) (*Controller, error) {
	c := e.newController()
	if err := c.Start(ctx, path, title); err != nil {
		return nil, err
	}

	uploadsStarted.Inc()
	e.register(c)
	return c, nil
}

// Track follows a video that was uploaded earlier, seeding its state from REST. Tracking an
// id that already has a live controller returns that controller.
func (e *UploadEngine) Track(ctx context.Context, id models.JobID) (*Controller, error) {
	for _, c := range e.controllers() {
		if id.Assigned() && c.Snapshot().JobID == id {
			return c, nil
		}
	}

	c := e.newController()
	if err := c.Follow(id, ""); err != nil {
		return nil, err
	}

	v, err := e.api.GetVideo(ctx, id)
	if err != nil {
		c.Dismiss()
		return nil, err
	}
	c.ApplyVideo(v)

	e.register(c)
	return c, nil
}

func (e *UploadEngine) newController() *Controller {
	return NewController(e.api, e.subs,
		WithValidator(e.opts.Validator),
		WithUpdates(e.opts.Updates),
		WithControllerLogger(e.logger),
		WithTerminal(e.finished),
	)
}

func (e *UploadEngine) register(c *Controller) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := c.ID()
	e.jobs[id] = c
	e.order = append(e.order, id)
	liveUploads.Set(float64(len(e.jobs)))
}

func (e *UploadEngine) finished(job models.UploadJob) {
	uploadOutcomes.WithLabelValues(phaseOf(job).String()).Inc()
}

// Get returns the controller with the given local id.
func (e *UploadEngine) Get(localID string) (*Controller, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.jobs[localID]
	return c, ok
}

// Jobs returns snapshots of every live upload in creation order.
func (e *UploadEngine) Jobs() []models.UploadJob {
	controllers := e.controllers()
	jobs := make([]models.UploadJob, 0, len(controllers))
	for _, c := range controllers {
		jobs = append(jobs, c.Snapshot())
	}
	return jobs
}

// Dismiss abandons and releases the upload. It reports whether the id was known.
func (e *UploadEngine) Dismiss(localID string) bool {
	e.mu.Lock()
	c, ok := e.jobs[localID]
	if ok {
		delete(e.jobs, localID)
		e.order = slices.DeleteFunc(e.order, func(id string) bool { return id == localID })
		liveUploads.Set(float64(len(e.jobs)))
	}
	e.mu.Unlock()

	if ok {
		c.Dismiss()
	}
	return ok
}

// Reconcile fetches the server status of every non-terminal job that has an id and applies
// it. It returns the number of jobs refreshed; fetch failures are logged and skipped.
func (e *UploadEngine) Reconcile(ctx context.Context) (int, error) {
	refreshed := 0
	var errs []error

	for _, c := range e.controllers() {
		job := c.Snapshot()
		if job.Terminal() || job.Dismissed || !job.JobID.Assigned() {
			continue
		}

		if err := e.limiter.Wait(ctx); err != nil {
			return refreshed, err
		}

		v, err := e.api.GetVideo(ctx, job.JobID)
		if err != nil {
			if ctx.Err() != nil {
				return refreshed, ctx.Err()
			}
			reconcileRequests.WithLabelValues("error").Inc()
			e.logger.Warn("could not refresh upload", "job", job.JobID, "error", err)
			errs = append(errs, err)
			continue
		}

		reconcileRequests.WithLabelValues("ok").Inc()
		c.ApplyVideo(v)
		refreshed++
	}

	if refreshed > 0 {
		e.logger.Debug("reconciled uploads", "count", refreshed)
	}
	return refreshed, errors.Join(errs...)
}

func (e *UploadEngine) controllers() []*Controller {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Controller, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.jobs[id])
	}
	return out
}

// Close detaches from the channel and dismisses every live upload.
func (e *UploadEngine) Close() {
	e.mu.Lock()
	dispose := e.disposer
	e.disposer = nil
	ids := slices.Clone(e.order)
	e.mu.Unlock()

	if dispose != nil {
		dispose()
	}
	for _, id := range ids {
		e.Dismiss(id)
	}
}
