package metrics

import "github.com/prometheus/client_golang/prometheus"

// OrderMetrics tracks checkout outcomes, stock reservations and status moves.
type OrderMetrics struct {
	checkouts    *prometheus.CounterVec
	attempts     prometheus.Histogram
	reservations *prometheus.CounterVec
	transitions  *prometheus.CounterVec
}

// NewOrderMetrics registers the order metrics; a nil registerer yields a no-op recorder.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	m := &OrderMetrics{
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_checkouts_total",
			Help: "Checkout requests by outcome.",
		}, []string{"outcome"}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_checkout_attempts",
			Help:    "Transaction attempts needed per checkout.",
			Buckets: []float64{1, 2, 3, 5, 8},
		}),
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_stock_reservations_total",
			Help: "Stock ledger reserve and release calls by result.",
		}, []string{"op", "result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_order_transitions_total",
			Help: "Order status transitions.",
		}, []string{"from", "to"}),
	}
	reg.MustRegister(m.checkouts, m.attempts, m.reservations, m.transitions)
	return m
}

func (m *OrderMetrics) CheckoutOutcome(outcome string, attempts int) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(outcome)).Inc()
	if attempts > 0 {
		m.attempts.Observe(float64(attempts))
	}
}

func (m *OrderMetrics) Reservation(op, result string) {
	if m == nil || m.reservations == nil {
		return
	}
	m.reservations.WithLabelValues(normalizeLabel(op), normalizeLabel(result)).Inc()
}

func (m *OrderMetrics) Transition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}
