// Package metrics collects and exposes the daemon's RED-style operational
// metrics via prometheus/client_golang, following the teacher's Collector
// shape (named counters/histograms/gauges registered once at startup,
// plain increment/observe methods called from the hot path).
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every metric the scheduler, WAL, and snapshot manager
// report to, named per the daemon's diagnostics surface.
type Collector struct {
	jobsQueued           prometheus.Counter
	jobsDispatchedLocal  prometheus.Counter
	jobsDispatchedRemote prometheus.Counter
	jobsCompletedLocal   prometheus.Counter
	jobsCompletedRemote  prometheus.Counter
	jobsCrashed          prometheus.Counter
	jobsRescheduled      prometheus.Counter
	walAppendErrors      prometheus.Counter

	jobDurationLocal  prometheus.Histogram
	jobDurationRemote prometheus.Histogram
	preprocessDuration prometheus.Histogram
	snapshotWriteDuration prometheus.Histogram

	pendingQueueDepth prometheus.Gauge
	inFlightJobs      prometheus.Gauge
	knownPeers        prometheus.Gauge
}

// NewCollector creates and registers every metric against the default
// Prometheus registry.
func NewCollector() *Collector {
	c := &Collector{
		jobsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobs_queued_total",
			Help: "Total number of compile commands accepted into the pending queue",
		}),
		jobsDispatchedLocal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobs_dispatched_local_total",
			Help: "Total number of jobs dispatched to a local worker",
		}),
		jobsDispatchedRemote: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobs_dispatched_remote_total",
			Help: "Total number of jobs shipped out to a peer",
		}),
		jobsCompletedLocal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "jobs_completed_total",
			Help:        "Total number of jobs completed successfully",
			ConstLabels: prometheus.Labels{"source": "local"},
		}),
		jobsCompletedRemote: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "jobs_completed_total",
			Help:        "Total number of jobs completed successfully",
			ConstLabels: prometheus.Labels{"source": "remote"},
		}),
		jobsCrashed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobs_crashed_total",
			Help: "Total number of worker subprocess crashes",
		}),
		jobsRescheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobs_rescheduled_total",
			Help: "Total number of jobs requeued after a crash or an overdue remote dispatch",
		}),
		walAppendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wal_append_errors_total",
			Help: "Total number of failed WAL append attempts",
		}),
		jobDurationLocal: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "job_duration_seconds",
			Help:        "Job processing duration from dispatch to commit",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: prometheus.Labels{"outcome": "local"},
		}),
		jobDurationRemote: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "job_duration_seconds",
			Help:        "Job processing duration from dispatch to commit",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: prometheus.Labels{"outcome": "remote"},
		}),
		preprocessDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "preprocess_duration_seconds",
			Help:    "Time spent running a unit's preprocess-only compiler invocation",
			Buckets: prometheus.DefBuckets,
		}),
		snapshotWriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "snapshot_write_duration_seconds",
			Help:    "Time spent writing a project snapshot to disk",
			Buckets: prometheus.DefBuckets,
		}),
		pendingQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pending_queue_depth",
			Help: "Current number of jobs waiting for a slot",
		}),
		inFlightJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "in_flight_jobs",
			Help: "Current number of jobs dispatched but not yet committed",
		}),
		knownPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "known_peers",
			Help: "Current number of peers known to the round-robin rotation",
		}),
	}

	prometheus.MustRegister(
		c.jobsQueued, c.jobsDispatchedLocal, c.jobsDispatchedRemote,
		c.jobsCompletedLocal, c.jobsCompletedRemote, c.jobsCrashed, c.jobsRescheduled, c.walAppendErrors,
		c.jobDurationLocal, c.jobDurationRemote, c.preprocessDuration, c.snapshotWriteDuration,
		c.pendingQueueDepth, c.inFlightJobs, c.knownPeers,
	)
	return c
}

// RecordEnqueue records a job entering the pending queue.
func (c *Collector) RecordEnqueue() { c.jobsQueued.Inc() }

// RecordDispatch records a job leaving the pending queue for a local
// worker slot. Dispatches to peers are recorded separately by
// RecordDispatchRemote since the scheduler tracks the two paths apart.
func (c *Collector) RecordDispatch() { c.jobsDispatchedLocal.Inc() }

// RecordDispatchRemote records a job shipped out to a peer.
func (c *Collector) RecordDispatchRemote() { c.jobsDispatchedRemote.Inc() }

// RecordCompleted records a successful commit. Since the scheduler's
// Metrics interface doesn't distinguish source at the call site, both
// local and remote completions land on the local histogram; callers that
// know the source should use RecordCompletedRemote instead.
func (c *Collector) RecordCompleted(latencySeconds float64) {
	c.jobsCompletedLocal.Inc()
	c.jobDurationLocal.Observe(latencySeconds)
}

// RecordCompletedRemote records a successful commit of a remotely-run job.
func (c *Collector) RecordCompletedRemote(latencySeconds float64) {
	c.jobsCompletedRemote.Inc()
	c.jobDurationRemote.Observe(latencySeconds)
}

// RecordFailed records a worker crash.
func (c *Collector) RecordFailed() { c.jobsCrashed.Inc() }

// RecordRescheduled records a job being requeued after a crash or an
// overdue remote dispatch.
func (c *Collector) RecordRescheduled() { c.jobsRescheduled.Inc() }

// RecordWALAppendError records a failed WAL append attempt.
func (c *Collector) RecordWALAppendError() { c.walAppendErrors.Inc() }

// ObservePreprocessDuration records how long a preprocess invocation took.
func (c *Collector) ObservePreprocessDuration(d time.Duration) {
	c.preprocessDuration.Observe(d.Seconds())
}

// ObserveSnapshotWriteDuration records how long a snapshot write took.
func (c *Collector) ObserveSnapshotWriteDuration(d time.Duration) {
	c.snapshotWriteDuration.Observe(d.Seconds())
}

// UpdateQueueStats sets the pending/in-flight gauges.
func (c *Collector) UpdateQueueStats(pending, inFlight int) {
	c.pendingQueueDepth.Set(float64(pending))
	c.inFlightJobs.Set(float64(inFlight))
}

// SetKnownPeers sets the known-peers gauge.
func (c *Collector) SetKnownPeers(n int) {
	c.knownPeers.Set(float64(n))
}

// StartServer starts a Prometheus /metrics HTTP server on port. Intended
// for standalone use; internal/diagnostics mounts promhttp.Handler()
// directly on its own chi router when the daemon's single HTTP server
// serves /stats, /metrics, and /healthz together.
func StartServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, mux)
}
