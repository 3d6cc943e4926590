package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "lhctl"

// Recorder implements longhorn.Recorder on a dedicated registry.
type Recorder struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	artifactsTotal    *prometheus.CounterVec
	podsReady         *prometheus.GaugeVec
	podsTotal         *prometheus.GaugeVec
	versionConflict   prometheus.Gauge
	lastSuccess       *prometheus.GaugeVec
}

// NewRecorder creates a Recorder with all collectors registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of orchestrator operations by outcome",
			},
			[]string{"operation", "outcome"},
		),

		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of orchestrator operations in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
			},
			[]string{"operation"},
		),

		artifactsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "backup",
				Name:      "artifacts_total",
				Help:      "Backup artifacts exported by artifact and result",
			},
			[]string{"artifact", "result"},
		),

		podsReady: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "readiness",
				Name:      "pods_ready",
				Help:      "Ready Longhorn pods at the last readiness poll",
			},
			[]string{"component"},
		),

		podsTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "readiness",
				Name:      "pods_total",
				Help:      "Observed Longhorn pods at the last readiness poll",
			},
			[]string{"component"},
		),

		versionConflict: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "version_conflict",
				Help:      "Whether the last inspection found a version conflict (1) or not (0)",
			},
		),

		lastSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last successful operation",
			},
			[]string{"operation"},
		),
	}

	r.registry.MustRegister(
		r.operationsTotal,
		r.operationDuration,
		r.artifactsTotal,
		r.podsReady,
		r.podsTotal,
		r.versionConflict,
		r.lastSuccess,
	)

	return r
}

// Registry returns the registry holding the recorder's collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveOperation records the outcome and duration of an operation.
func (r *Recorder) ObserveOperation(operation, outcome string, d time.Duration) {
	r.operationsTotal.WithLabelValues(operation, outcome).Inc()
	r.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
	if outcome == "success" {
		r.lastSuccess.WithLabelValues(operation).SetToCurrentTime()
	}
}

// ObserveArtifact records one artifact export.
func (r *Recorder) ObserveArtifact(artifact string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	r.artifactsTotal.WithLabelValues(artifact, result).Inc()
}

// SetReadiness records the pod counts of a readiness poll.
func (r *Recorder) SetReadiness(managerReady, managerTotal, csiReady, csiTotal int) {
	r.podsReady.WithLabelValues("manager").Set(float64(managerReady))
	r.podsTotal.WithLabelValues("manager").Set(float64(managerTotal))
	r.podsReady.WithLabelValues("csi-plugin").Set(float64(csiReady))
	r.podsTotal.WithLabelValues("csi-plugin").Set(float64(csiTotal))
}

// SetConflict records the result of a conflict check.
func (r *Recorder) SetConflict(conflict bool) {
	if conflict {
		r.versionConflict.Set(1)
		return
	}
	r.versionConflict.Set(0)
}

// Push sends every collected metric to the Pushgateway at url, replacing
// earlier pushes for the same job and grouping labels.
func (r *Recorder) Push(ctx context.Context, url, job string, grouping map[string]string) error {
	pusher := push.New(url, job).Gatherer(r.registry)
	for name, value := range grouping {
		pusher = pusher.Grouping(name, value)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
