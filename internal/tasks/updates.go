package tasks

import (
	"fmt"

	"github.com/desertthunder/vidx/internal/models"
)

// ProgressUpdate represents a progress event for one upload.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase            // Lifecycle phase
	Step    int              // Percent within phase
	Total   int              // Always 100
	Message string           // Human-readable message for display
	Job     models.UploadJob // Snapshot taken when the update was produced
}

// Lifecycle phase enumeration
type Phase int

const (
	Transfer Phase = iota
	TransferError
	AwaitProcessing
	Queue
	Process
	Complete
	ProcessError
)

func (p Phase) String() string {
	switch p {
	case Transfer:
		return "transfer"
	case TransferError:
		return "transfer_error"
	case AwaitProcessing:
		return "await_processing"
	case Queue:
		return "queue"
	case Process:
		return "process"
	case Complete:
		return "complete"
	case ProcessError:
		return "process_error"
	default:
		return ""
	}
}

// Terminal reports whether the phase ends the lifecycle.
func (p Phase) Terminal() bool {
	return p == TransferError || p == Complete || p == ProcessError
}

// phaseOf maps a job snapshot onto its current phase.
func phaseOf(job models.UploadJob) Phase {
	switch {
	case job.Transfer.Phase == models.TransferFailed:
		return TransferError
	case job.Transfer.Phase != models.Transferred:
		return Transfer
	}

	switch job.Processing.Phase {
	case models.ProcessingQueued:
		return Queue
	case models.ProcessingActive:
		return Process
	case models.ProcessingCompleted:
		return Complete
	case models.ProcessingFailed:
		return ProcessError
	default:
		return AwaitProcessing
	}
}

func jobUpdate(job models.UploadJob) ProgressUpdate {
	u := ProgressUpdate{Phase: phaseOf(job), Total: 100, Job: job}

	switch u.Phase {
	case Transfer:
		u.Step = job.Transfer.Percent
		u.Message = fmt.Sprintf("Uploading %s... %d%%", job.File.Name, u.Step)
	case TransferError:
		u.Message = fmt.Sprintf("✗ Upload of %s failed: %s", job.File.Name, job.Transfer.Reason)
	case AwaitProcessing:
		u.Step = 100
		u.Message = fmt.Sprintf("Uploaded %s (ID: %s), waiting for processing...", job.Title, job.JobID)
	case Queue:
		u.Message = fmt.Sprintf("%s is queued for processing", job.Title)
	case Process:
		u.Step = job.Processing.Percent
		u.Message = fmt.Sprintf("Processing %s... %d%%", job.Title, u.Step)
	case Complete:
		u.Step = 100
		u.Message = fmt.Sprintf("✓ %s processed", job.Title)
	case ProcessError:
		u.Message = fmt.Sprintf("✗ Processing of %s failed: %s", job.Title, job.Processing.Reason)
	}
	return u
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
		// Channel full, skip this update
	}
}
