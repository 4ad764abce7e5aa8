package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "linkhealth"

var (
	LinksChecked = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "links_checked_total",
		Help:      "Probed links by final verdict.",
	}, []string{"status"})

	ProbeAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "probe_attempts_total",
		Help:      "Individual HTTP probe attempts by outcome.",
	}, []string{"outcome"})

	VideosScanned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "videos_scanned_total",
		Help:      "Videos handled by the batch scanner by outcome.",
	}, []string{"outcome"})

	ScanJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scan_jobs_total",
		Help:      "Scan jobs by terminal status.",
	}, []string{"status"})

	ScanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scan_duration_seconds",
		Help:      "Wall time of whole scan sessions.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	}, []string{"mode"})

	QueueRedeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queue_redeliveries_total",
		Help:      "Job messages re-enqueued or dropped after a handler error.",
	}, []string{"result"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
