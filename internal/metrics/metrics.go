package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "tracker_"

	ResultStored   = "stored"
	ResultRejected = "rejected"
	ResultError    = "error"
)

var (
	registerOnce sync.Once

	samplesTotal      *prometheus.CounterVec
	ingestLatency     *prometheus.HistogramVec
	staleSamples      prometheus.Counter
	geofenceEvents    *prometheus.CounterVec
	statusTransitions *prometheus.CounterVec
	statusConflicts   prometheus.Counter
	pipelineErrors    *prometheus.CounterVec
	hubDrops          prometheus.Counter
	prunedSamples     prometheus.Counter
	abandonedJobs     prometheus.Counter
)

// Init registers tracker metrics with the default registry. Calling it more
// than once is a no-op.
func Init() {
	InitWith(prometheus.DefaultRegisterer)
}

// InitWith registers tracker metrics with reg.
func InitWith(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		samplesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "samples_total",
				Help: "Location samples received by result",
			},
			[]string{"result"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Time to store and evaluate a location sample",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		staleSamples = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "stale_samples_total",
				Help: "Samples stored but skipped by the detector because a newer sample was already evaluated",
			},
		)
		geofenceEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "geofence_events_total",
				Help: "Geofence entry/exit events recorded",
			},
			[]string{"type"},
		)
		statusTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "job_status_transitions_total",
				Help: "Job status changes applied by the tracker",
			},
			[]string{"to"},
		)
		statusConflicts = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "job_status_conflicts_total",
				Help: "Status updates skipped because the job changed concurrently",
			},
		)
		pipelineErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "pipeline_errors_total",
				Help: "Evaluation pipeline failures by stage",
			},
			[]string{"stage"},
		)
		hubDrops = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "hub_dropped_messages_total",
				Help: "Live feed messages dropped because a subscriber queue was full",
			},
		)
		prunedSamples = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "pruned_samples_total",
				Help: "Inactive samples deleted by retention",
			},
		)
		abandonedJobs = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "abandoned_departures_total",
				Help: "Jobs flagged as departed without completion",
			},
		)

		reg.MustRegister(
			samplesTotal,
			ingestLatency,
			staleSamples,
			geofenceEvents,
			statusTransitions,
			statusConflicts,
			pipelineErrors,
			hubDrops,
			prunedSamples,
			abandonedJobs,
		)
	})
}

// ObserveIngest records one ingest call.
func ObserveIngest(result string, started time.Time) {
	if samplesTotal == nil {
		return
	}
	samplesTotal.WithLabelValues(result).Inc()
	ingestLatency.WithLabelValues(result).Observe(time.Since(started).Seconds())
}

func IncStaleSample() {
	if staleSamples == nil {
		return
	}
	staleSamples.Inc()
}

func IncGeofenceEvent(eventType string) {
	if geofenceEvents == nil {
		return
	}
	geofenceEvents.WithLabelValues(eventType).Inc()
}

func IncStatusTransition(to string) {
	if statusTransitions == nil {
		return
	}
	statusTransitions.WithLabelValues(to).Inc()
}

func IncStatusConflict() {
	if statusConflicts == nil {
		return
	}
	statusConflicts.Inc()
}

func IncPipelineError(stage string) {
	if pipelineErrors == nil {
		return
	}
	pipelineErrors.WithLabelValues(stage).Inc()
}

func IncHubDrop() {
	if hubDrops == nil {
		return
	}
	hubDrops.Inc()
}

func AddPrunedSamples(n int64) {
	if prunedSamples == nil || n <= 0 {
		return
	}
	prunedSamples.Add(float64(n))
}

func IncAbandoned() {
	if abandonedJobs == nil {
		return
	}
	abandonedJobs.Inc()
}
