package models

import "fmt"

// TransferPhase is the client-side half of an upload's lifecycle.
type TransferPhase int

const (
	TransferIdle TransferPhase = iota
	Transferring
	TransferFailed
	Transferred
)

func (p TransferPhase) String() string {
	switch p {
	case TransferIdle:
		return "Idle"
	case Transferring:
		return "Transferring"
	case TransferFailed:
		return "TransferFailed"
	case Transferred:
		return "Transferred"
	default:
		return "Unknown"
	}
}

// TransferState is the phase plus its payload (percent while transferring, reason when failed).
type TransferState struct {
	Phase   TransferPhase `json:"phase"`
	Percent int           `json:"percent"`
	Reason  string        `json:"reason,omitempty"`
}

func (s TransferState) String() string {
	switch s.Phase {
	case Transferring:
		return fmt.Sprintf("%s(%d%%)", s.Phase, s.Percent)
	case TransferFailed:
		return fmt.Sprintf("%s(%s)", s.Phase, s.Reason)
	default:
		return s.Phase.String()
	}
}

// ProcessingPhase is the server-side half of an upload's lifecycle.
type ProcessingPhase int

const (
	ProcessingUnknown ProcessingPhase = iota
	ProcessingQueued
	ProcessingActive
	ProcessingCompleted
	ProcessingFailed
)

func (p ProcessingPhase) String() string {
	switch p {
	case ProcessingUnknown:
		return "Unknown"
	case ProcessingQueued:
		return "Queued"
	case ProcessingActive:
		return "Processing"
	case ProcessingCompleted:
		return "Completed"
	case ProcessingFailed:
		return "Failed"
	default:
		return "Invalid"
	}
}

// Terminal reports whether no further processing transition may occur.
func (p ProcessingPhase) Terminal() bool {
	return p == ProcessingCompleted || p == ProcessingFailed
}

// ProcessingState is the phase plus its payload (percent while processing, reason when failed).
type ProcessingState struct {
	Phase   ProcessingPhase `json:"phase"`
	Percent int             `json:"percent"`
	Reason  string          `json:"reason,omitempty"`
}

func (s ProcessingState) String() string {
	switch s.Phase {
	case ProcessingActive:
		return fmt.Sprintf("%s(%d%%)", s.Phase, s.Percent)
	case ProcessingFailed:
		return fmt.Sprintf("%s(%s)", s.Phase, s.Reason)
	default:
		return s.Phase.String()
	}
}

// FileDescriptor describes the local file selected for upload.
type FileDescriptor struct {
	Path        string `json:"path"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

// UploadJob is a point-in-time snapshot of one upload.
type UploadJob struct {
	LocalID    string          `json:"localId"`
	JobID      JobID           `json:"jobId,omitempty"`
	File       FileDescriptor  `json:"file"`
	Title      string          `json:"title"`
	Transfer   TransferState   `json:"transfer"`
	Processing ProcessingState `json:"processing"`
	Dismissed  bool            `json:"dismissed,omitempty"`
}

// Terminal reports whether the job has reached an outcome.
func (j UploadJob) Terminal() bool {
	return j.Transfer.Phase == TransferFailed || j.Processing.Phase.Terminal()
}

// Status summarizes the job as a single label.
func (j UploadJob) Status() string {
	switch {
	case j.Transfer.Phase == TransferFailed:
		return j.Transfer.String()
	case j.Transfer.Phase != Transferred:
		return j.Transfer.String()
	case j.Processing.Phase == ProcessingUnknown:
		return "AwaitingProcessing"
	default:
		return j.Processing.String()
	}
}

// EventKind names an inbound realtime event.
type EventKind string

const (
	EventProgress EventKind = "video-processing-progress"
	EventComplete EventKind = "video-processing-complete"
	EventError    EventKind = "video-processing-error"
)

// Outbound realtime event names.
const (
	EventSubscribe   = "subscribe-video"
	EventUnsubscribe = "unsubscribe-video"
)

// JobEvent is a realtime notification about one job.
//
// Progress is only meaningful for [EventProgress] and Error for [EventError].
type JobEvent struct {
	Kind     EventKind `json:"-"`
	JobID    JobID     `json:"videoId"`
	Progress float64   `json:"progress"`
	Error    string    `json:"error"`
}

// ClampPercent rounds and bounds a reported percentage to [0,100].
func ClampPercent(p float64) int {
	switch {
	case p != p, p <= 0:
		return 0
	case p >= 100:
		return 100
	default:
		return int(p + 0.5)
	}
}
