package tasks

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/vidx/internal/models"
	"github.com/desertthunder/vidx/internal/realtime"
	"github.com/desertthunder/vidx/internal/services"
	"github.com/desertthunder/vidx/internal/shared"
	tu "github.com/desertthunder/vidx/internal/testing"
)

const waitFor = 2 * time.Second

// fakeSubs records registry calls and lets tests push events to watchers.
type fakeSubs struct {
	mu         sync.Mutex
	subscribed []models.JobID
	released   []models.JobID
	watchers   map[models.JobID]map[int]realtime.JobHandler
	nextID     int
	onSub      chan models.JobID
}

func newFakeSubs() *fakeSubs {
	return &fakeSubs{
		watchers: make(map[models.JobID]map[int]realtime.JobHandler),
		onSub:    make(chan models.JobID, 8),
	}
}

func (f *fakeSubs) Subscribe(id models.JobID) {
	f.mu.Lock()
	f.subscribed = append(f.subscribed, id)
	f.mu.Unlock()
	f.onSub <- id
}

func (f *fakeSubs) Unsubscribe(id models.JobID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, id)
}

func (f *fakeSubs) Watch(id models.JobID, fn realtime.JobHandler) models.Disposer {
	f.mu.Lock()
	defer f.mu.Unlock()
	handle := f.nextID
	f.nextID++
	if f.watchers[id] == nil {
		f.watchers[id] = make(map[int]realtime.JobHandler)
	}
	f.watchers[id][handle] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.watchers[id], handle)
	}
}

func (f *fakeSubs) push(ev models.JobEvent) {
	f.mu.Lock()
	handlers := make([]realtime.JobHandler, 0, len(f.watchers[ev.JobID]))
	for _, fn := range f.watchers[ev.JobID] {
		handlers = append(handlers, fn)
	}
	f.mu.Unlock()
	for _, fn := range handlers {
		fn(ev)
	}
}

func (f *fakeSubs) watching(id models.JobID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watchers[id])
}

func (f *fakeSubs) unsubscribed() []models.JobID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.JobID(nil), f.released...)
}

func (f *fakeSubs) waitSubscribed(t *testing.T) models.JobID {
	t.Helper()
	select {
	case id := <-f.onSub:
		return id
	case <-time.After(waitFor):
		t.Fatal("job was never subscribed")
		return ""
	}
}

// drainUntil yields updates until one with the given phase has been yielded.
func drainUntil(t *testing.T, updates <-chan ProgressUpdate, phase Phase) func(func(ProgressUpdate) bool) {
	t.Helper()
	return func(yield func(ProgressUpdate) bool) {
		for {
			select {
			case u := <-updates:
				if !yield(u) || u.Phase == phase {
					return
				}
			case <-time.After(waitFor):
				t.Errorf("no %s update", phase)
				return
			}
		}
	}
}

func writeVideo(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return path
}

// uploadReturning builds an upload func that reports the given percentages and returns id.
func uploadReturning(id models.JobID, err error, percents ...int) func(context.Context, io.Reader, models.FileDescriptor, string, services.ProgressFunc) (models.JobID, error) {
	return func(_ context.Context, r io.Reader, _ models.FileDescriptor, _ string, onProgress services.ProgressFunc) (models.JobID, error) {
		if _, readErr := io.Copy(io.Discard, r); readErr != nil {
			return "", readErr
		}
		for _, p := range percents {
			onProgress(p)
		}
		return id, err
	}
}

func terminalRecorder() (func(models.UploadJob), func() []models.UploadJob) {
	var mu sync.Mutex
	var got []models.UploadJob
	record := func(job models.UploadJob) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, job)
	}
	read := func() []models.UploadJob {
		mu.Lock()
		defer mu.Unlock()
		return append([]models.UploadJob(nil), got...)
	}
	return record, read
}

func TestControllerStart(t *testing.T) {
	t.Run("validation failure makes no call", func(t *testing.T) {
		api := &tu.MockService{}
		c := NewController(api, newFakeSubs())

		err := c.Start(context.Background(), writeVideo(t, "notes.txt", 10), "notes")
		require.ErrorIs(t, err, shared.ErrValidation)

		assert.Zero(t, api.CallCount("UploadVideo"))
		snap := c.Snapshot()
		assert.Equal(t, models.TransferIdle, snap.Transfer.Phase)
		assert.Empty(t, snap.File.Name)
	})

	t.Run("oversized file", func(t *testing.T) {
		api := &tu.MockService{}
		c := NewController(api, newFakeSubs(), WithValidator(Validator{MaxBytes: 8}))

		err := c.Start(context.Background(), writeVideo(t, "big.mp4", 9), "big")
		require.ErrorIs(t, err, shared.ErrValidation)
		assert.Zero(t, api.CallCount("UploadVideo"))
	})

	t.Run("missing file", func(t *testing.T) {
		c := NewController(&tu.MockService{}, newFakeSubs())
		err := c.Start(context.Background(), filepath.Join(t.TempDir(), "gone.mp4"), "x")
		assert.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("empty title defaults to file name", func(t *testing.T) {
		api := &tu.MockService{UploadVideoFunc: uploadReturning("v1", nil)}
		subs := newFakeSubs()
		c := NewController(api, subs)

		require.NoError(t, c.Start(context.Background(), writeVideo(t, "Summer Trip.mov", 4), "  "))
		subs.waitSubscribed(t)

		snap := c.Snapshot()
		assert.Equal(t, "Summer Trip", snap.Title)
		assert.Equal(t, "video/quicktime", snap.File.ContentType)
	})

	t.Run("second start is rejected", func(t *testing.T) {
		api := &tu.MockService{UploadVideoFunc: uploadReturning("v1", nil)}
		subs := newFakeSubs()
		c := NewController(api, subs)
		path := writeVideo(t, "a.mp4", 4)

		require.NoError(t, c.Start(context.Background(), path, "a"))
		assert.ErrorIs(t, c.Start(context.Background(), path, "a"), shared.ErrAlreadyStarted)
		subs.waitSubscribed(t)
		assert.Equal(t, 1, api.CallCount("UploadVideo"))
	})
}

func TestControllerTransfer(t *testing.T) {
	t.Run("success subscribes with the returned id", func(t *testing.T) {
		updates := make(chan ProgressUpdate, 32)
		api := &tu.MockService{UploadVideoFunc: uploadReturning("v1", nil, 0, 40, 99, 100)}
		subs := newFakeSubs()
		c := NewController(api, subs, WithUpdates(updates))

		require.NoError(t, c.Start(context.Background(), writeVideo(t, "a.mp4", 16), "A"))
		assert.Equal(t, models.JobID("v1"), subs.waitSubscribed(t))
		assert.Equal(t, 1, subs.watching("v1"))

		snap := c.Snapshot()
		assert.Equal(t, models.Transferred, snap.Transfer.Phase)
		assert.Equal(t, "AwaitingProcessing", snap.Status())
		assert.False(t, c.Terminal())

		var steps []int
		for u := range drainUntil(t, updates, AwaitProcessing) {
			if u.Phase == Transfer {
				steps = append(steps, u.Step)
			}
		}
		assert.Equal(t, 0, steps[0])
		assert.IsNonDecreasing(t, steps)
	})

	t.Run("failure is terminal and never subscribes", func(t *testing.T) {
		record, outcomes := terminalRecorder()
		api := &tu.MockService{UploadVideoFunc: uploadReturning("", &services.APIError{
			Kind: services.KindValidation, Status: 413, Message: "File too large",
		}, 0, 30)}
		subs := newFakeSubs()
		c := NewController(api, subs, WithTerminal(record))

		require.NoError(t, c.Start(context.Background(), writeVideo(t, "a.mp4", 16), "A"))
		job, err := c.Wait(contextWithTimeout(t))
		require.NoError(t, err)

		assert.Equal(t, models.TransferFailed, job.Transfer.Phase)
		assert.Equal(t, "File too large", job.Transfer.Reason)
		assert.Equal(t, 30, job.Transfer.Percent)
		assert.False(t, job.JobID.Assigned())
		assert.Empty(t, subs.subscribed)
		assert.Len(t, outcomes(), 1)
	})

	t.Run("transfer finish is signalled when updates are dropped", func(t *testing.T) {
		nobodyReading := make(chan ProgressUpdate)
		api := &tu.MockService{UploadVideoFunc: uploadReturning("v1", nil, 0, 50, 100)}
		c := NewController(api, newFakeSubs(), WithUpdates(nobodyReading))

		require.NoError(t, c.Start(context.Background(), writeVideo(t, "a.mp4", 16), "A"))
		select {
		case <-c.Sent():
		case <-time.After(waitFor):
			t.Fatal("transfer finish was never signalled")
		}
		assert.Equal(t, models.Transferred, c.Snapshot().Transfer.Phase)
		assert.False(t, c.Terminal())
	})

	t.Run("failed transfer is signalled as finished", func(t *testing.T) {
		api := &tu.MockService{UploadVideoFunc: uploadReturning("", errors.New("connection reset"), 0)}
		c := NewController(api, newFakeSubs())

		require.NoError(t, c.Start(context.Background(), writeVideo(t, "a.mp4", 16), "A"))
		select {
		case <-c.Sent():
		case <-time.After(waitFor):
			t.Fatal("transfer finish was never signalled")
		}
		assert.Equal(t, models.TransferFailed, c.Snapshot().Transfer.Phase)
	})

	t.Run("open failure fails the transfer", func(t *testing.T) {
		api := &tu.MockService{}
		c := NewController(api, newFakeSubs(), WithOpener(func(string) (io.ReadCloser, error) {
			return nil, errors.New("permission denied")
		}))

		require.NoError(t, c.Start(context.Background(), writeVideo(t, "a.mp4", 16), "A"))
		job, err := c.Wait(contextWithTimeout(t))
		require.NoError(t, err)
		assert.Equal(t, models.TransferFailed, job.Transfer.Phase)
		assert.Contains(t, job.Transfer.Reason, "permission denied")
		assert.Zero(t, api.CallCount("UploadVideo"))
	})

	t.Run("caller cancellation does not abort the transfer", func(t *testing.T) {
		api := &tu.MockService{UploadVideoFunc: func(ctx context.Context, r io.Reader, _ models.FileDescriptor, _ string, _ services.ProgressFunc) (models.JobID, error) {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "v1", nil
		}}
		subs := newFakeSubs()
		c := NewController(api, subs)

		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, c.Start(ctx, writeVideo(t, "a.mp4", 16), "A"))
		cancel()

		assert.Equal(t, models.JobID("v1"), subs.waitSubscribed(t))
	})
}

func startedController(t *testing.T, opts ...ControllerOption) (*Controller, *fakeSubs) {
	t.Helper()
	api := &tu.MockService{UploadVideoFunc: uploadReturning("v1", nil, 0, 100)}
	subs := newFakeSubs()
	c := NewController(api, subs, opts...)
	require.NoError(t, c.Start(context.Background(), writeVideo(t, "a.mp4", 16), "A"))
	subs.waitSubscribed(t)
	return c, subs
}

func contextWithTimeout(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	t.Cleanup(cancel)
	return ctx
}

func TestControllerProcessing(t *testing.T) {
	t.Run("progress is clamped and last-write-wins", func(t *testing.T) {
		c, subs := startedController(t)

		subs.push(models.JobEvent{Kind: models.EventProgress, JobID: "v1", Progress: 60})
		assert.Equal(t, models.ProcessingState{Phase: models.ProcessingActive, Percent: 60}, c.Snapshot().Processing)

		subs.push(models.JobEvent{Kind: models.EventProgress, JobID: "v1", Progress: 20})
		assert.Equal(t, 20, c.Snapshot().Processing.Percent)

		subs.push(models.JobEvent{Kind: models.EventProgress, JobID: "v1", Progress: 140})
		assert.Equal(t, 100, c.Snapshot().Processing.Percent)

		subs.push(models.JobEvent{Kind: models.EventProgress, JobID: "v1", Progress: -5})
		assert.Equal(t, 0, c.Snapshot().Processing.Percent)
	})

	t.Run("events for other jobs are ignored", func(t *testing.T) {
		c, _ := startedController(t)
		c.Apply(models.JobEvent{Kind: models.EventComplete, JobID: "v2"})
		assert.False(t, c.Terminal())
	})

	t.Run("complete signals once and releases interest", func(t *testing.T) {
		record, outcomes := terminalRecorder()
		c, subs := startedController(t, WithTerminal(record))

		subs.push(models.JobEvent{Kind: models.EventProgress, JobID: "v1", Progress: 50})
		subs.push(models.JobEvent{Kind: models.EventComplete, JobID: "v1"})
		c.Apply(models.JobEvent{Kind: models.EventComplete, JobID: "v1"})
		c.Apply(models.JobEvent{Kind: models.EventError, JobID: "v1", Error: "late"})

		job, err := c.Wait(contextWithTimeout(t))
		require.NoError(t, err)
		assert.Equal(t, models.ProcessingCompleted, job.Processing.Phase)
		assert.Len(t, outcomes(), 1)
		assert.Equal(t, []models.JobID{"v1"}, subs.unsubscribed())
		assert.Zero(t, subs.watching("v1"))
	})

	t.Run("error carries the reason", func(t *testing.T) {
		c, subs := startedController(t)
		subs.push(models.JobEvent{Kind: models.EventError, JobID: "v1", Error: "unsupported codec"})

		job := c.Snapshot()
		assert.Equal(t, models.ProcessingFailed, job.Processing.Phase)
		assert.Equal(t, "unsupported codec", job.Processing.Reason)
		assert.Equal(t, "Failed(unsupported codec)", job.Status())
	})

	t.Run("error without message uses a default", func(t *testing.T) {
		c, subs := startedController(t)
		subs.push(models.JobEvent{Kind: models.EventError, JobID: "v1"})
		assert.Equal(t, "Processing failed", c.Snapshot().Processing.Reason)
	})

	t.Run("events before the id is known are ignored", func(t *testing.T) {
		c := NewController(&tu.MockService{}, newFakeSubs())
		c.Apply(models.JobEvent{Kind: models.EventComplete, JobID: ""})
		assert.False(t, c.Terminal())
		assert.Equal(t, models.ProcessingUnknown, c.Snapshot().Processing.Phase)
	})
}

func TestControllerApplyVideo(t *testing.T) {
	tests := []struct {
		name  string
		video models.Video
		want  models.ProcessingState
	}{
		{"pending", models.Video{ID: "v1", Status: models.StatusPending}, models.ProcessingState{Phase: models.ProcessingQueued}},
		{"processing", models.Video{ID: "v1", Status: models.StatusProcessing, ProcessProgress: 35}, models.ProcessingState{Phase: models.ProcessingActive, Percent: 35}},
		{"completed", models.Video{ID: "v1", Status: models.StatusCompleted}, models.ProcessingState{Phase: models.ProcessingCompleted, Percent: 100}},
		{"failed", models.Video{ID: "v1", Status: models.StatusFailed, ErrorMessage: "corrupt"}, models.ProcessingState{Phase: models.ProcessingFailed, Reason: "corrupt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := startedController(t)
			c.ApplyVideo(&tt.video)
			assert.Equal(t, tt.want, c.Snapshot().Processing)
		})
	}

	t.Run("terminal snapshot after completion is ignored", func(t *testing.T) {
		c, subs := startedController(t)
		subs.push(models.JobEvent{Kind: models.EventComplete, JobID: "v1"})
		c.ApplyVideo(&models.Video{ID: "v1", Status: models.StatusFailed})
		assert.Equal(t, models.ProcessingCompleted, c.Snapshot().Processing.Phase)
	})
}

func TestControllerDismiss(t *testing.T) {
	t.Run("in-flight result is discarded", func(t *testing.T) {
		release := make(chan struct{})
		record, outcomes := terminalRecorder()
		api := &tu.MockService{UploadVideoFunc: func(_ context.Context, _ io.Reader, _ models.FileDescriptor, _ string, _ services.ProgressFunc) (models.JobID, error) {
			<-release
			return "v1", nil
		}}
		subs := newFakeSubs()
		c := NewController(api, subs, WithTerminal(record))

		require.NoError(t, c.Start(context.Background(), writeVideo(t, "a.mp4", 16), "A"))
		c.Dismiss()
		close(release)

		_, err := c.Wait(contextWithTimeout(t))
		require.NoError(t, err)

		require.Eventually(t, func() bool { return api.CallCount("UploadVideo") == 1 }, waitFor, time.Millisecond)
		time.Sleep(10 * time.Millisecond)

		snap := c.Snapshot()
		assert.True(t, snap.Dismissed)
		assert.False(t, snap.JobID.Assigned())
		assert.Empty(t, subs.subscribed)
		assert.Empty(t, outcomes())
	})

	t.Run("releases interest while awaiting processing", func(t *testing.T) {
		record, outcomes := terminalRecorder()
		c, subs := startedController(t, WithTerminal(record))

		c.Dismiss()
		c.Dismiss()
		subs.push(models.JobEvent{Kind: models.EventComplete, JobID: "v1"})

		assert.Equal(t, []models.JobID{"v1"}, subs.unsubscribed())
		assert.Zero(t, subs.watching("v1"))
		assert.Empty(t, outcomes())
		assert.Equal(t, models.ProcessingUnknown, c.Snapshot().Processing.Phase)
	})

	t.Run("after completion does not unsubscribe twice", func(t *testing.T) {
		c, subs := startedController(t)
		subs.push(models.JobEvent{Kind: models.EventComplete, JobID: "v1"})
		c.Dismiss()
		assert.Equal(t, []models.JobID{"v1"}, subs.unsubscribed())
	})
}

func TestControllerFollow(t *testing.T) {
	subs := newFakeSubs()
	c := NewController(&tu.MockService{}, subs)

	require.ErrorIs(t, c.Follow("", ""), shared.ErrValidation)
	require.NoError(t, c.Follow("v7", "Old upload"))
	assert.Equal(t, models.JobID("v7"), subs.waitSubscribed(t))
	assert.ErrorIs(t, c.Follow("v8", ""), shared.ErrAlreadyStarted)

	subs.push(models.JobEvent{Kind: models.EventProgress, JobID: "v7", Progress: 10})
	assert.Equal(t, "Processing(10%)", c.Snapshot().Status())
}

func TestWaitTimeout(t *testing.T) {
	c, _ := startedController(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	job, err := c.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "AwaitingProcessing", job.Status())
	assert.False(t, c.Terminal())
}
