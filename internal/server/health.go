package server

import (
	"net/http"

	"github.com/desertthunder/vidx/internal/models"
	"github.com/desertthunder/vidx/internal/realtime"
	"github.com/desertthunder/vidx/internal/session"
	"github.com/desertthunder/vidx/internal/shared"
)

// SessionSource reports the current authentication state.
type SessionSource interface {
	Snapshot() session.Snapshot
}

// ChannelSource reports the realtime connection state.
type ChannelSource interface {
	Status() realtime.Status
}

// JobSource lists the uploads being tracked.
type JobSource interface {
	Jobs() []models.UploadJob
}

const (
	HealthOK              = "ok"
	HealthDegraded        = "degraded"
	HealthUnauthenticated = "unauthenticated"
)

// Health is the body of GET /healthz.
type Health struct {
	Status        string          `json:"status"`
	Authenticated bool            `json:"authenticated"`
	Verified      bool            `json:"verified"` // identity confirmed by the server this run
	User          string          `json:"user,omitempty"`
	Channel       realtime.Status `json:"channel"`
	Uploads       UploadCounts    `json:"uploads"`
}

// UploadCounts summarizes tracked uploads.
type UploadCounts struct {
	Live     int `json:"live"`
	Terminal int `json:"terminal"`
}

// HealthHandler serves /healthz.
//
// A bound channel that is not connected reports degraded with 503. Uploads still complete
// in that state through REST reconciliation.
type HealthHandler struct {
	session SessionSource
	channel ChannelSource
	jobs    JobSource
}

func NewHealthHandler(s SessionSource, c ChannelSource, j JobSource) *HealthHandler {
	return &HealthHandler{session: s, channel: c, jobs: j}
}

func (h *HealthHandler) Routes() []string { return []string{"/healthz"} }

// Check assembles the current health report.
func (h *HealthHandler) Check() Health {
	var out Health

	if h.session != nil {
		snap := h.session.Snapshot()
		out.Authenticated = snap.Authenticated()
		out.Verified = out.Authenticated && !snap.Unverified
		if snap.Identity != nil {
			out.User = snap.Identity.Username
		}
	}
	if h.channel != nil {
		out.Channel = h.channel.Status()
	} else {
		out.Channel = realtime.Status{State: realtime.Disconnected, Label: realtime.Disconnected.String()}
	}
	if h.jobs != nil {
		for _, job := range h.jobs.Jobs() {
			if job.Terminal() {
				out.Uploads.Terminal++
			} else {
				out.Uploads.Live++
			}
		}
	}

	switch {
	case !out.Authenticated:
		out.Status = HealthUnauthenticated
	case out.Channel.Bound && out.Channel.State != realtime.Connected:
		out.Status = HealthDegraded
	default:
		out.Status = HealthOK
	}
	return out
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := h.Check()
	body, err := shared.MarshalJSON(health, false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if health.Status == HealthDegraded {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	w.Write(body)
}
