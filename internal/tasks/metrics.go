package tasks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidx_uploads_started_total",
		Help: "Uploads that passed validation and began transferring",
	})

	uploadOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidx_upload_outcomes_total",
			Help: "Uploads that reached a terminal phase, by phase",
		},
		[]string{"phase"},
	)

	liveUploads = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidx_uploads_live",
		Help: "Upload controllers currently owned by the engine",
	})

	reconcileRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidx_reconcile_requests_total",
			Help: "REST status fetches made during reconciliation, by result",
		},
		[]string{"result"},
	)
)
