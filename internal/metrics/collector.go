package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Upload outcomes recorded by IncUpload
const (
	OutcomeSuccess      = "success"
	OutcomeInvalid      = "invalid"
	OutcomeUploadFailed = "upload_failed"
	OutcomeCheckFailed  = "check_failed"
	OutcomeTimeout      = "timeout"
	OutcomeLinkFailed   = "link_failed"
)

// Collector collects and exposes metrics
type Collector struct {
	registry     *prometheus.Registry
	uploadsTotal *prometheus.CounterVec
	checksTotal  *prometheus.CounterVec
	inflight     prometheus.Gauge
	waitDuration prometheus.Histogram
}

// New creates a collector backed by its own registry, so several collectors
// can coexist in one process.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		uploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "greyportal_uploads_total",
				Help: "Total number of upload requests by outcome",
			},
			[]string{"outcome"},
		),
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "greyportal_poll_checks_total",
				Help: "Total number of processed-object existence checks by result",
			},
			[]string{"result"},
		),
		inflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "greyportal_inflight_waits",
				Help: "Number of requests currently waiting for a processed object",
			},
		),
		waitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "greyportal_wait_duration_seconds",
				Help:    "Time spent waiting for the processed object",
				Buckets: []float64{0.5, 1, 2, 3, 5, 8, 13, 20, 30},
			},
		),
	}

	c.registry.MustRegister(
		c.uploadsTotal,
		c.checksTotal,
		c.inflight,
		c.waitDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// IncUpload counts a finished upload request
func (c *Collector) IncUpload(outcome string) {
	c.uploadsTotal.WithLabelValues(outcome).Inc()
}

// IncCheck counts one existence check
func (c *Collector) IncCheck(result string) {
	c.checksTotal.WithLabelValues(result).Inc()
}

// WaitStarted marks a request entering the wait phase. The returned func
// must be called when it leaves.
func (c *Collector) WaitStarted() func() {
	c.inflight.Inc()
	return c.inflight.Dec
}

// ObserveWait observes the wait phase duration
func (c *Collector) ObserveWait(d time.Duration) {
	c.waitDuration.Observe(d.Seconds())
}

// Handler serves the collector's registry in the prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
