package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "montero"

// Collector owns a private registry so tests and multiple servers in one
// process never collide on metric names. A nil *Collector is a valid no-op.
type Collector struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	rateLimited    prometheus.Counter
	jobsSubmitted  *prometheus.CounterVec
	jobsClaimed    *prometheus.CounterVec
	jobsFinished   *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	breakerState   *prometheus.GaugeVec
	pilaCalculated *prometheus.CounterVec
	maintenance    *prometheus.CounterVec
}

func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		rateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		jobsSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpa_jobs_submitted_total",
			Help:      "RPA jobs accepted by the dispatcher.",
		}, []string{"action", "platform"}),
		jobsClaimed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpa_jobs_claimed_total",
			Help:      "RPA jobs claimed by workers.",
		}, []string{"platform"}),
		jobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpa_jobs_finished_total",
			Help:      "RPA job attempts by resulting status and error kind.",
		}, []string{"platform", "status", "kind"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpa_job_duration_seconds",
			Help:      "Wall-clock time of a single job attempt.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"action"}),
		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rpa_breaker_state",
			Help:      "Per-platform circuit breaker state (0 closed, 1 half-open, 2 open).",
		}, []string{"platform"}),
		pilaCalculated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pila_calculations_total",
			Help:      "PILA calculations by cotizante type and outcome.",
		}, []string{"cotizante", "outcome"}),
		maintenance: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "maintenance_runs_total",
			Help:      "Scheduled maintenance runs by job type and status.",
		}, []string{"job", "status"}),
	}
}

func (c *Collector) Record(method string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method).Observe(duration.Seconds())
	if status == http.StatusTooManyRequests {
		c.rateLimited.Inc()
	}
}

func (c *Collector) JobSubmitted(action, platform string) {
	if c == nil {
		return
	}
	c.jobsSubmitted.WithLabelValues(action, platform).Inc()
}

func (c *Collector) JobClaimed(platform string) {
	if c == nil {
		return
	}
	c.jobsClaimed.WithLabelValues(platform).Inc()
}

func (c *Collector) JobFinished(action, platform, status, kind string, duration time.Duration) {
	if c == nil {
		return
	}
	c.jobsFinished.WithLabelValues(platform, status, kind).Inc()
	c.jobDuration.WithLabelValues(action).Observe(duration.Seconds())
}

func (c *Collector) BreakerState(platform string, state int) {
	if c == nil {
		return
	}
	c.breakerState.WithLabelValues(platform).Set(float64(state))
}

func (c *Collector) PilaCalculated(cotizante string, ok bool) {
	if c == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "rejected"
	}
	c.pilaCalculated.WithLabelValues(cotizante, outcome).Inc()
}

func (c *Collector) MaintenanceRun(job, status string) {
	if c == nil {
		return
	}
	c.maintenance.WithLabelValues(job, status).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}
