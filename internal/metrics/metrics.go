// Package metrics holds the Prometheus collectors shared by the engine.
// They register on the default registry, served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mentorpack"

var (
	WorkflowSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "workflow_steps_total",
		Help:      "Workflow step executions by final outcome.",
	}, []string{"workflow", "step", "outcome"})

	WorkflowStepRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "workflow_step_retries_total",
		Help:      "Transient failures that caused a step to be retried.",
	}, []string{"workflow", "step"})

	WorkflowStepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "workflow_step_duration_seconds",
		Help:      "Wall time of a workflow step including retries.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"workflow", "step"})

	Bookings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bookings_total",
		Help:      "Booking attempts by result code.",
	}, []string{"result"})

	CompensationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "calendar_compensation_failures_total",
		Help:      "Calendar events that could not be deleted after a failed booking.",
	})

	CapacityExceeded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "capacity_exceeded_total",
		Help:      "Seats provisioned while the mentor was already at capacity.",
	})

	SeatsReleased = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "seats_released_total",
		Help:      "Seat reservations released, by reason.",
	}, []string{"reason"})

	PacksExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packs_expired_total",
		Help:      "Active session packs moved to expired by the sweeper.",
	})

	FactsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "facts_emitted_total",
		Help:      "Notification facts handed to sinks, by type and outcome.",
	}, []string{"type", "outcome"})

	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_runs_total",
		Help:      "Scheduled job runs by job and outcome.",
	}, []string{"job", "outcome"})
)
