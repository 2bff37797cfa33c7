// Package metrics holds the Prometheus collectors of the server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	OTPIssued           prometheus.Counter
	OTPVerifications    *prometheus.CounterVec
	OTPSwept            prometheus.Counter
	AuditWriteFailures  prometheus.Counter
	AuditPublishErrors  prometheus.Counter
	Uploads             *prometheus.CounterVec
	UploadedBytes       prometheus.Counter
	ShareDownloads      *prometheus.CounterVec
	PlacementFailures   prometheus.Counter
	NodesOnline         prometheus.Gauge
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers every collector on a private registry, so tests can build
// as many instances as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		OTPIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "cloudvault_otp_issued_total",
			Help: "One-time passcodes issued.",
		}),
		OTPVerifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudvault_otp_verifications_total",
			Help: "Verification attempts by result.",
		}, []string{"result"}),
		OTPSwept: f.NewCounter(prometheus.CounterOpts{
			Name: "cloudvault_otp_swept_total",
			Help: "Used or expired passcodes removed by the sweeper.",
		}),
		AuditWriteFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "cloudvault_audit_write_failures_total",
			Help: "Audit events that could not be persisted.",
		}),
		AuditPublishErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "cloudvault_audit_publish_errors_total",
			Help: "Audit events that could not be published to the broker.",
		}),
		Uploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudvault_uploads_total",
			Help: "Uploads by result.",
		}, []string{"result"}),
		UploadedBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "cloudvault_uploaded_bytes_total",
			Help: "Bytes accepted by successful uploads.",
		}),
		ShareDownloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudvault_share_downloads_total",
			Help: "Share link downloads by result.",
		}, []string{"result"}),
		PlacementFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "cloudvault_placement_failures_total",
			Help: "Uploads rejected because no node was online.",
		}),
		NodesOnline: f.NewGauge(prometheus.GaugeOpts{
			Name: "cloudvault_nodes_online",
			Help: "Storage nodes currently online.",
		}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cloudvault_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
