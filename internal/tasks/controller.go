package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/vidx/internal/models"
	"github.com/desertthunder/vidx/internal/realtime"
	"github.com/desertthunder/vidx/internal/services"
	"github.com/desertthunder/vidx/internal/shared"
)

const (
	defaultProcessingError = "Processing failed"
	defaultTransferError   = "Upload failed"
)

// UploadAPI transfers a file and returns the server-assigned job id.
type UploadAPI interface {
	UploadVideo(ctx context.Context, file io.Reader, meta models.FileDescriptor, title string, onProgress services.ProgressFunc) (models.JobID, error)
}

// Subscriber is the subscription surface the controller needs from [realtime.Registry].
type Subscriber interface {
	Subscribe(id models.JobID)
	Unsubscribe(id models.JobID)
	Watch(id models.JobID, fn realtime.JobHandler) models.Disposer
}

// Opener opens the file selected for upload.
type Opener func(path string) (io.ReadCloser, error)

func openFile(path string) (io.ReadCloser, error) { return os.Open(path) }

// ControllerOption configures a [Controller].
type ControllerOption func(*Controller)

// WithValidator replaces the default upload constraints.
func WithValidator(v Validator) ControllerOption {
	return func(c *Controller) { c.validator = v }
}

// WithUpdates sends a [ProgressUpdate] after every observable transition.
func WithUpdates(ch chan<- ProgressUpdate) ControllerOption {
	return func(c *Controller) { c.updates = ch }
}

// WithTerminal registers fn to receive the job exactly once when it reaches an outcome.
// It is not called for dismissed jobs.
func WithTerminal(fn func(models.UploadJob)) ControllerOption {
	return func(c *Controller) { c.onTerminal = fn }
}

// WithControllerLogger sets the logger.
func WithControllerLogger(l *log.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// WithOpener replaces os.Open.
func WithOpener(fn Opener) ControllerOption {
	return func(c *Controller) { c.open = fn }
}

// Controller drives one upload from file selection to a terminal outcome.
//
//	Idle -> Transferring -> TransferFailed
//	                     -> AwaitingProcessing -> Queued/Processing -> Completed | Failed
//
// Every transition happens under the controller's lock inside the callback that observed it.
// Side effects (unsubscribe, disposal, the terminal signal, progress updates) run after the
// lock is released.
type Controller struct {
	api        UploadAPI
	subs       Subscriber
	validator  Validator
	updates    chan<- ProgressUpdate
	onTerminal func(models.UploadJob)
	open       Opener
	logger     *log.Logger

	mu        sync.Mutex
	job       models.UploadJob
	started   bool
	terminal  bool
	dismissed bool
	unwatch   models.Disposer
	done      chan struct{}

	sent     chan struct{}
	sentOnce sync.Once
}

// NewController creates an idle controller.
func NewController(api UploadAPI, subs Subscriber, opts ...ControllerOption) *Controller {
	c := &Controller{
		api:       api,
		subs:      subs,
		validator: Validator{MaxBytes: DefaultMaxUploadBytes, AllowedTypes: DefaultAllowedTypes},
		open:      openFile,
		done:      make(chan struct{}),
		sent:      make(chan struct{}),
		job:       models.UploadJob{LocalID: shared.GenerateID()},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = shared.NewLogger(io.Discard)
	}
	c.logger = shared.WithLogger(c.logger, "upload", c.job.LocalID)
	return c
}

// ID returns the local id assigned at construction.
func (c *Controller) ID() string { return c.job.LocalID }

// Start validates the file and title and begins the transfer in the background.
//
// An empty title is replaced by the file name without its extension. Validation failures
// wrap [shared.ErrValidation] and leave the controller idle without any network call.
func (c *Controller) Start(ctx context.Context, path, title string) error {
	file, err := DescribeFile(path)
	if err != nil {
		return err
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle(file.Name)
	}
	if err := c.validator.Validate(file, title); err != nil {
		return err
	}

	c.mu.Lock()
	if c.started || c.dismissed {
		c.mu.Unlock()
		return shared.ErrAlreadyStarted
	}
	c.started = true
	c.job.File = file
	c.job.Title = title
	c.job.Transfer = models.TransferState{Phase: models.Transferring}
	snap := c.job
	c.mu.Unlock()

	c.logger.Info("starting upload", "file", file.Name, "size", shared.FormatBytes(file.Size), "title", title)
	sendProgress(c.updates, jobUpdate(snap))

	go c.transfer(context.WithoutCancel(ctx), file, title)
	return nil
}

// Follow attaches the controller to a job that was uploaded elsewhere.
func (c *Controller) Follow(id models.JobID, title string) error {
	if !id.Assigned() {
		return fmt.Errorf("%w: job id is required", shared.ErrValidation)
	}

	c.mu.Lock()
	if c.started || c.dismissed {
		c.mu.Unlock()
		return shared.ErrAlreadyStarted
	}
	c.started = true
	c.job.JobID = id
	c.job.Title = title
	c.job.Transfer = models.TransferState{Phase: models.Transferred, Percent: 100}
	c.mu.Unlock()

	c.markSent()
	c.watch(id)
	return nil
}

// transfer runs the upload. Its context is detached from the caller so that abandoning the
// job never cancels the request; Dismiss only discards the result.
func (c *Controller) transfer(ctx context.Context, file models.FileDescriptor, title string) {
	id, err := c.upload(ctx, file, title)

	c.mu.Lock()
	if c.dismissed {
		c.mu.Unlock()
		c.logger.Debug("discarding result of dismissed upload", "job", id, "error", err)
		c.markSent()
		return
	}
	if err != nil {
		c.job.Transfer = models.TransferState{Phase: models.TransferFailed, Percent: c.job.Transfer.Percent, Reason: reason(err, defaultTransferError)}
		effects := c.finishLocked()
		c.mu.Unlock()

		c.logger.Warn("upload failed", "error", err)
		c.markSent()
		effects()
		return
	}

	c.job.JobID = id
	c.job.Transfer = models.TransferState{Phase: models.Transferred, Percent: 100}
	c.mu.Unlock()

	c.logger.Info("upload transferred", "job", id)
	c.markSent()
	c.watch(id)
}

func (c *Controller) markSent() { c.sentOnce.Do(func() { close(c.sent) }) }

func (c *Controller) upload(ctx context.Context, file models.FileDescriptor, title string) (models.JobID, error) {
	f, err := c.open(file.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	defer f.Close()

	return c.api.UploadVideo(ctx, f, file, title, c.onTransferProgress)
}

func (c *Controller) onTransferProgress(percent int) {
	c.mu.Lock()
	if c.dismissed || c.job.Transfer.Phase != models.Transferring || percent < c.job.Transfer.Percent {
		c.mu.Unlock()
		return
	}
	c.job.Transfer.Percent = min(max(percent, 0), 100)
	snap := c.job
	c.mu.Unlock()

	sendProgress(c.updates, jobUpdate(snap))
}

// watch registers for events before subscribing so nothing sent in reply is missed. The
// subscription is recorded under the lock so a concurrent Dismiss always releases it.
func (c *Controller) watch(id models.JobID) {
	unwatch := c.subs.Watch(id, c.Apply)

	c.mu.Lock()
	if c.dismissed || c.terminal {
		c.mu.Unlock()
		unwatch()
		return
	}
	c.unwatch = unwatch
	snap := c.job
	c.subs.Subscribe(id)
	c.mu.Unlock()

	sendProgress(c.updates, jobUpdate(snap))
}

// Apply folds a realtime event into the job. Events for other jobs, events after an outcome
// and events after dismissal are ignored. Progress is last-write-wins.
func (c *Controller) Apply(ev models.JobEvent) {
	c.mu.Lock()
	if c.dismissed || c.terminal || c.job.Transfer.Phase != models.Transferred || ev.JobID != c.job.JobID {
		c.mu.Unlock()
		return
	}

	switch ev.Kind {
	case models.EventProgress:
		c.job.Processing = models.ProcessingState{Phase: models.ProcessingActive, Percent: models.ClampPercent(ev.Progress)}
	case models.EventComplete:
		c.job.Processing = models.ProcessingState{Phase: models.ProcessingCompleted, Percent: 100}
	case models.EventError:
		msg := ev.Error
		if msg == "" {
			msg = defaultProcessingError
		}
		c.job.Processing = models.ProcessingState{Phase: models.ProcessingFailed, Percent: c.job.Processing.Percent, Reason: msg}
	default:
		c.mu.Unlock()
		return
	}

	c.commitLocked()
}

// ApplyVideo folds an authoritative REST snapshot into the job through the same path as
// realtime events.
func (c *Controller) ApplyVideo(v *models.Video) {
	if v == nil {
		return
	}

	c.mu.Lock()
	if c.dismissed || c.terminal || c.job.Transfer.Phase != models.Transferred || v.ID != c.job.JobID {
		c.mu.Unlock()
		return
	}

	if v.Title != "" && c.job.Title == "" {
		c.job.Title = v.Title
	}

	switch v.Status {
	case models.StatusPending:
		c.job.Processing = models.ProcessingState{Phase: models.ProcessingQueued}
	case models.StatusProcessing:
		c.job.Processing = models.ProcessingState{Phase: models.ProcessingActive, Percent: models.ClampPercent(float64(v.ProcessProgress))}
	case models.StatusCompleted:
		c.job.Processing = models.ProcessingState{Phase: models.ProcessingCompleted, Percent: 100}
	case models.StatusFailed:
		msg := v.ErrorMessage
		if msg == "" {
			msg = defaultProcessingError
		}
		c.job.Processing = models.ProcessingState{Phase: models.ProcessingFailed, Percent: c.job.Processing.Percent, Reason: msg}
	default:
		c.mu.Unlock()
		return
	}

	c.commitLocked()
}

// commitLocked publishes the transition just made and releases the lock.
func (c *Controller) commitLocked() {
	snap := c.job
	effects := func() {}
	if snap.Terminal() {
		effects = c.finishLocked()
	}
	c.mu.Unlock()

	if !snap.Terminal() {
		sendProgress(c.updates, jobUpdate(snap))
	}
	effects()
}

// finishLocked marks the job terminal and returns the side effects to run once unlocked.
func (c *Controller) finishLocked() func() {
	c.terminal = true
	snap := c.job
	unwatch := c.unwatch
	c.unwatch = nil

	return func() {
		if unwatch != nil {
			unwatch()
		}
		if snap.JobID.Assigned() {
			c.subs.Unsubscribe(snap.JobID)
		}

		c.logger.Info("upload finished", "job", snap.JobID, "status", snap.Status())
		sendProgress(c.updates, jobUpdate(snap))
		if c.onTerminal != nil {
			c.onTerminal(snap)
		}
		close(c.done)
	}
}

// Dismiss abandons the job. An in-flight transfer keeps running but its result is discarded;
// watchers are disposed, interest is released and no further transition is observable.
func (c *Controller) Dismiss() {
	c.mu.Lock()
	if c.dismissed {
		c.mu.Unlock()
		return
	}
	c.dismissed = true
	c.job.Dismissed = true
	wasTerminal := c.terminal
	id := c.job.JobID
	unwatch := c.unwatch
	c.unwatch = nil
	c.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	if !wasTerminal {
		if id.Assigned() {
			c.subs.Unsubscribe(id)
		}
		close(c.done)
	}
	c.logger.Debug("upload dismissed", "job", id)
}

// Snapshot returns the current job state.
func (c *Controller) Snapshot() models.UploadJob {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.job
}

// Terminal reports whether the job reached an outcome.
func (c *Controller) Terminal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminal
}

// Sent is closed once the transfer has finished, successfully or not. Unlike progress updates
// it cannot be dropped. It stays open for a job dismissed before it started.
func (c *Controller) Sent() <-chan struct{} { return c.sent }

// Done is closed once the job is terminal or dismissed.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Wait blocks until the job is terminal or dismissed, or ctx ends. It never changes the job
// state; a context deadline only bounds how long the caller waits.
func (c *Controller) Wait(ctx context.Context) (models.UploadJob, error) {
	select {
	case <-c.done:
		return c.Snapshot(), nil
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	}
}

// reason extracts a displayable failure message.
func reason(err error, fallback string) string {
	var apiErr *services.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return fallback
}
