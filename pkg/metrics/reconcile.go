package metrics

import "github.com/prometheus/client_golang/prometheus"

// ReconcileMetrics counts the side effects of plan enforcement, webhook
// reconciliation and inventory restoration. A nil receiver is a no-op.
type ReconcileMetrics struct {
	webhookEvents    *prometheus.CounterVec
	productsDisabled prometheus.Counter
	planDowngrades   prometheus.Counter
	itemsRestored    prometheus.Counter
}

func NewReconcileMetrics(reg prometheus.Registerer) *ReconcileMetrics {
	if reg == nil {
		return &ReconcileMetrics{}
	}
	m := &ReconcileMetrics{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "webhook_events_total",
			Help:      "Gateway webhook deliveries by event type and outcome.",
		}, []string{"event", "outcome"}),
		productsDisabled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscriptions",
			Name:      "products_deactivated_total",
			Help:      "Products deactivated to bring stores within their plan quota.",
		}),
		planDowngrades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscriptions",
			Name:      "plan_downgrades_total",
			Help:      "Lapsed paid plans reverted to free.",
		}),
		itemsRestored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "items_restored_total",
			Help:      "Order items whose quantity was credited back to stock.",
		}),
	}
	reg.MustRegister(m.webhookEvents, m.productsDisabled, m.planDowngrades, m.itemsRestored)
	return m
}

func (m *ReconcileMetrics) WebhookEvent(event, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(event), normalizeLabel(outcome)).Inc()
}

func (m *ReconcileMetrics) ProductsDeactivated(n int) {
	if m == nil || m.productsDisabled == nil || n <= 0 {
		return
	}
	m.productsDisabled.Add(float64(n))
}

func (m *ReconcileMetrics) PlanDowngraded() {
	if m == nil || m.planDowngrades == nil {
		return
	}
	m.planDowngrades.Inc()
}

func (m *ReconcileMetrics) ItemsRestored(n int) {
	if m == nil || m.itemsRestored == nil || n <= 0 {
		return
	}
	m.itemsRestored.Add(float64(n))
}
