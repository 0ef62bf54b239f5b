package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты публикации события из outbox.
const (
	OutboxResultSent      = "sent"
	OutboxResultRetry     = "retry"
	OutboxResultFailed    = "failed"
	OutboxResultDLQFailed = "dlq_failed"
)

// WorkerMetrics: метрики фоновых воркеров: outbox и очистки ключей идемпотентности.
// Методы безопасно вызывать на nil.
type WorkerMetrics struct {
	outboxPublish   *prometheus.CounterVec
	outboxPending   prometheus.Gauge
	outboxOldestAge prometheus.Gauge
	cleanupRuns     *prometheus.CounterVec
	cleanupDeleted  prometheus.Counter
}

// NewWorkerMetrics регистрирует метрики воркеров (nil registerer: DefaultRegisterer).
func NewWorkerMetrics(registerer prometheus.Registerer) *WorkerMetrics {
	return &WorkerMetrics{
		outboxPublish: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_publish_attempts_total",
			Help: "Outbox publish attempts grouped by result",
		}, []string{"result"}),
		outboxPending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_outbox_pending_records",
			Help: "Pending records in the transactional outbox",
		}),
		outboxOldestAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_outbox_oldest_pending_age_seconds",
			Help: "Age of the oldest pending outbox record",
		}),
		cleanupRuns: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_idempotency_cleanup_runs_total",
			Help: "Idempotency key cleanup runs grouped by result",
		}, []string{"result"}),
		cleanupDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_idempotency_cleanup_deleted_total",
			Help: "Expired idempotency keys removed by cleanup",
		}),
	}
}

// RecordOutboxPublish учитывает попытку публикации с результатом OutboxResult*.
func (m *WorkerMetrics) RecordOutboxPublish(result string) {
	if m == nil {
		return
	}
	m.outboxPublish.WithLabelValues(result).Inc()
}

// SetOutboxBacklog обновляет размер backlog и возраст самой старой записи.
func (m *WorkerMetrics) SetOutboxBacklog(pending int, oldestAge time.Duration) {
	if m == nil {
		return
	}
	m.outboxPending.Set(float64(pending))
	m.outboxOldestAge.Set(max(oldestAge, 0).Seconds())
}

// RecordCleanup учитывает один проход очистки.
func (m *WorkerMetrics) RecordCleanup(deleted int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.cleanupRuns.WithLabelValues("error").Inc()
		return
	}
	m.cleanupRuns.WithLabelValues("ok").Inc()
	m.cleanupDeleted.Add(float64(deleted))
}
