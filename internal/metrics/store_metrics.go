package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics содержит бизнес-метрики магазина.
type StoreMetrics struct {
	ordersPlaced      prometheus.Counter
	orderFailures     *prometheus.CounterVec
	placementDuration prometheus.Histogram
	paymentStatus     *prometheus.CounterVec
	cartItemUpserts   prometheus.Counter
	outboxEnqueued    prometheus.Counter
	idempotentReplays prometheus.Counter
	activePlacements  prometheus.Gauge
}

// NewStoreMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewStoreMetrics() *StoreMetrics {
	return NewStoreMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewStoreMetricsWithRegisterer регистрирует метрики в переданном registerer.
func NewStoreMetricsWithRegisterer(registerer prometheus.Registerer) *StoreMetrics {
	return &StoreMetrics{
		ordersPlaced: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_placed_total",
			Help: "Total number of orders placed from carts",
		}),
		orderFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_placement_failures_total",
			Help: "Total number of rejected or failed order placements grouped by reason",
		}, []string{"reason"}),
		placementDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_order_placement_duration_seconds",
			Help:    "Duration of the order placement transaction in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		paymentStatus: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_payment_status_changes_total",
			Help: "Total number of order payment status updates grouped by new status",
		}, []string{"status"}),
		cartItemUpserts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_item_upserts_total",
			Help: "Total number of cart item add-or-increment operations",
		}),
		outboxEnqueued: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_enqueued_total",
			Help: "Total number of events written to the transactional outbox",
		}),
		idempotentReplays: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_idempotent_replays_total",
			Help: "Total number of order submissions answered from a stored idempotent response",
		}),
		activePlacements: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_active_order_placements",
			Help: "Number of order placements currently in progress",
		}),
	}
}

// RecordPlacementStarted отмечает начало оформления заказа.
func (m *StoreMetrics) RecordPlacementStarted() {
	m.activePlacements.Inc()
}

// RecordPlacementFinished записывает длительность и снимает отметку активного оформления.
func (m *StoreMetrics) RecordPlacementFinished(duration time.Duration) {
	m.activePlacements.Dec()
	m.placementDuration.Observe(duration.Seconds())
}

// RecordOrderPlaced увеличивает счётчик оформленных заказов.
func (m *StoreMetrics) RecordOrderPlaced() {
	m.ordersPlaced.Inc()
}

// RecordOrderFailed увеличивает счётчик неудачных оформлений по причине.
func (m *StoreMetrics) RecordOrderFailed(reason string) {
	m.orderFailures.WithLabelValues(reason).Inc()
}

// RecordPaymentStatus увеличивает счётчик смен статуса оплаты.
func (m *StoreMetrics) RecordPaymentStatus(status string) {
	m.paymentStatus.WithLabelValues(status).Inc()
}

// RecordCartItemUpsert увеличивает счётчик добавлений в корзину.
func (m *StoreMetrics) RecordCartItemUpsert() {
	m.cartItemUpserts.Inc()
}

// RecordOutboxEnqueued увеличивает счётчик событий, записанных в outbox.
func (m *StoreMetrics) RecordOutboxEnqueued() {
	m.outboxEnqueued.Inc()
}

// RecordIdempotentReplay увеличивает счётчик повторов, обслуженных из сохранённого ответа.
func (m *StoreMetrics) RecordIdempotentReplay() {
	m.idempotentReplays.Inc()
}
