package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы выполнения task для метки outcome.
const (
	OutcomeSuccess   = "success"
	OutcomeRetry     = "retry"
	OutcomeFailure   = "failure"
	OutcomeAbandoned = "abandoned"
	OutcomeDuplicate = "duplicate"
)

var (
	// TasksTotal — обработанные доставки по исходу.
	TasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "menustats_worker_tasks_total",
		Help: "Task deliveries handled by menustats_worker, by outcome",
	}, []string{"task", "outcome"})

	// TaskDuration — длительность попытки выполнения.
	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "menustats_worker_task_duration_seconds",
		Help:    "Duration of a single task attempt",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"task"})

	// RetriesTotal — запланированные повторы.
	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "menustats_worker_retries_total",
		Help: "Task retries scheduled with backoff",
	}, []string{"task"})

	// Inflight — попытки, выполняющиеся прямо сейчас.
	Inflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "menustats_worker_inflight",
		Help: "Task attempts currently executing",
	})

	// EnqueuedTotal — task, принятые брокером от Dispatcher'а.
	EnqueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "menustats_dispatch_enqueued_total",
		Help: "Tasks enqueued by the dispatcher",
	}, []string{"task"})

	// HTTPRequestsTotal — запросы к menustats-api по маршруту и коду ответа.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "menustats_api_http_requests_total",
		Help: "Total HTTP requests handled by menustats_api",
	}, []string{"route", "code"})
)
