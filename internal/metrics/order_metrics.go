package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultSuccess = "success"
	resultError   = "error"
)

// OrderMetrics содержит метрики операций над заказами и уведомлений.
type OrderMetrics struct {
	// Счётчики операций
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	ordersCreated     prometheus.Counter
	transitions       *prometheus.CounterVec

	// Уведомления
	notifications *prometheus.CounterVec
	dropped       *prometheus.CounterVec

	// Gauge для активных подписок
	subscriptions *prometheus.GaugeVec
}

// NewOrderMetrics создаёт метрики в глобальном реестре Prometheus.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer создаёт метрики в указанном реестре; используется в тестах.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		operations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fd_order_operations_total",
			Help: "Total number of order operations by outcome",
		}, []string{"operation", "result"}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "fd_order_operation_duration_seconds",
			Help:    "Duration of order operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fd_orders_created_total",
			Help: "Total number of orders created",
		}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fd_order_status_transitions_total",
			Help: "Total number of order status transitions by target status",
		}, []string{"status"}),
		notifications: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fd_notifications_published_total",
			Help: "Total number of published notifications by topic and result",
		}, []string{"topic", "result"}),
		dropped: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fd_notifications_dropped_total",
			Help: "Total number of notifications dropped for slow subscribers",
		}, []string{"topic"}),
		subscriptions: registerGaugeVec(registerer, prometheus.GaugeOpts{
			Name: "fd_active_subscriptions",
			Help: "Number of currently open notification subscriptions",
		}, []string{"topic"}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGaugeVec(registerer prometheus.Registerer, opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	collector := prometheus.NewGaugeVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.GaugeVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOperation фиксирует исход и длительность операции над заказом.
// kind пустой для успешной операции, иначе тип отказа (NotFound, Forbidden, ...).
func (m *OrderMetrics) RecordOperation(operation, kind string, duration time.Duration) {
	result := resultSuccess
	if kind != "" {
		result = kind
	}
	m.operations.WithLabelValues(operation, result).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *OrderMetrics) RecordOrderCreated() {
	m.ordersCreated.Inc()
}

// RecordStatusTransition увеличивает счётчик переходов в статус.
func (m *OrderMetrics) RecordStatusTransition(status string) {
	m.transitions.WithLabelValues(status).Inc()
}

// RecordNotificationPublished фиксирует результат публикации уведомления.
func (m *OrderMetrics) RecordNotificationPublished(topic string, err error) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	m.notifications.WithLabelValues(topic, result).Inc()
}

// RecordNotificationDropped фиксирует потерю сообщения медленным подписчиком.
func (m *OrderMetrics) RecordNotificationDropped(topic string) {
	m.dropped.WithLabelValues(topic).Inc()
}

// RecordSubscriptionOpened увеличивает число активных подписок.
func (m *OrderMetrics) RecordSubscriptionOpened(topic string) {
	m.subscriptions.WithLabelValues(topic).Inc()
}

// RecordSubscriptionClosed уменьшает число активных подписок.
func (m *OrderMetrics) RecordSubscriptionClosed(topic string) {
	m.subscriptions.WithLabelValues(topic).Dec()
}
