package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// MessagesPublished is the per-task publish counter that RecordPublish
	// increments; the brokers' Publish methods do not call RecordPublish.
	MessagesPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ltq_messages_published_total",
			Help: "Total number of messages published to the broker",
		},
		[]string{"task"},
	)
	// MessagesConsumed counts messages successfully claimed by a poller.
	MessagesConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ltq_messages_consumed_total",
			Help: "Total number of messages claimed from the broker",
		},
		[]string{"task"},
	)
	// MessagesAcked counts successful completions.
	MessagesAcked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ltq_messages_acked_total",
			Help: "Total number of messages acked",
		},
		[]string{"task"},
	)
	// MessagesRejected counts drops, labeled by reason: the Reject's own
	// reason, "error" for an uncaught error, "panic" for a recovered panic.
	MessagesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ltq_messages_rejected_total",
			Help: "Total number of messages dropped",
		},
		[]string{"task", "reason"},
	)
	// MessagesRetried counts re-enqueues with a delay.
	MessagesRetried = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ltq_messages_retried_total",
			Help: "Total number of messages retried",
		},
		[]string{"task"},
	)
	// WorkerInflight tracks the current number of in-flight executions per task.
	WorkerInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ltq_worker_inflight",
			Help: "Current number of messages being processed per task",
		},
		[]string{"task"},
	)
	// QueueReadyDepth samples the ready-set cardinality per task, set each
	// time the admin server answers a queue-size request.
	QueueReadyDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ltq_queue_ready_depth",
			Help: "Ready-set cardinality per task, as last sampled",
		},
		[]string{"task"},
	)
	// SchedulerFires counts scheduler publishes per job.
	SchedulerFires = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ltq_scheduler_fires_total",
			Help: "Total number of scheduled publishes per job",
		},
		[]string{"job"},
	)
	// SchedulerPublishErrors counts failed scheduled publishes per job.
	SchedulerPublishErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ltq_scheduler_publish_errors_total",
			Help: "Total number of failed scheduled publishes per job",
		},
		[]string{"job"},
	)
	// CircuitBreakerStatus tracks the state of each named circuit breaker
	// (0=closed, 1=open, 2=half-open), e.g. the one guarding the Redis broker.
	CircuitBreakerStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ltq_circuit_breaker_status",
			Help: "Circuit breaker state: 0=closed, 1=open, 2=half-open",
		},
		[]string{"name", "op"},
	)
)

func init() {
	prometheus.MustRegister(
		MessagesPublished,
		MessagesConsumed,
		MessagesAcked,
		MessagesRejected,
		MessagesRetried,
		WorkerInflight,
		QueueReadyDepth,
		SchedulerFires,
		SchedulerPublishErrors,
		CircuitBreakerStatus,
	)
}

// RecordPublish increments the publish counter for task.
func RecordPublish(task string) { MessagesPublished.WithLabelValues(task).Inc() }

// RecordConsume increments the consume counter for task.
func RecordConsume(task string) { MessagesConsumed.WithLabelValues(task).Inc() }

// RecordAck increments the ack counter for task.
func RecordAck(task string) { MessagesAcked.WithLabelValues(task).Inc() }

// RecordReject increments the reject counter for task, labeled by reason.
func RecordReject(task, reason string) { MessagesRejected.WithLabelValues(task, reason).Inc() }

// RecordRetry increments the retry counter for task.
func RecordRetry(task string) { MessagesRetried.WithLabelValues(task).Inc() }

// InflightInc increments the in-flight gauge for task.
func InflightInc(task string) { WorkerInflight.WithLabelValues(task).Inc() }

// InflightDec decrements the in-flight gauge for task.
func InflightDec(task string) { WorkerInflight.WithLabelValues(task).Dec() }

// SetQueueReadyDepth sets the sampled ready-set depth for task.
func SetQueueReadyDepth(task string, depth float64) {
	QueueReadyDepth.WithLabelValues(task).Set(depth)
}

// RecordSchedulerFire increments the scheduler fire counter for job.
func RecordSchedulerFire(job string) { SchedulerFires.WithLabelValues(job).Inc() }

// RecordSchedulerPublishError increments the scheduler publish-error counter for job.
func RecordSchedulerPublishError(job string) { SchedulerPublishErrors.WithLabelValues(job).Inc() }

// RecordCircuitBreakerStatus sets the gauge for a named circuit breaker's state.
func RecordCircuitBreakerStatus(name, op string, state int) {
	CircuitBreakerStatus.WithLabelValues(name, op).Set(float64(state))
}
