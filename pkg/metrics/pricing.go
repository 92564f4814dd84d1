package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// PricingMetrics tracks cart pricing passes and the promotions they apply.
type PricingMetrics struct {
	carts     *prometheus.CounterVec
	lines     prometheus.Histogram
	discounts *prometheus.CounterVec
	duration  prometheus.Histogram
}

// NewPricingMetrics registers the pricing metrics on the provided registerer.
func NewPricingMetrics(reg prometheus.Registerer) *PricingMetrics {
	if reg == nil {
		return &PricingMetrics{}
	}
	carts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pricing",
		Name:      "carts_priced_total",
		Help:      "Cart pricing passes by outcome.",
	}, []string{"outcome"})
	lines := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pricing",
		Name:      "cart_lines",
		Help:      "Number of lines per priced cart.",
		Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
	})
	discounts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pricing",
		Name:      "discounts_applied_total",
		Help:      "Cart lines that received an automatic promotion, by promotion type.",
	}, []string{"type"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pricing",
		Name:      "duration_seconds",
		Help:      "Time spent loading and pricing a cart.",
		Buckets:   prometheus.DefBuckets,
	})
	reg.MustRegister(carts, lines, discounts, duration)
	return &PricingMetrics{
		carts:     carts,
		lines:     lines,
		discounts: discounts,
		duration:  duration,
	}
}

// ObserveCart records one pricing pass.
func (p *PricingMetrics) ObserveCart(outcome string, lines int, took time.Duration) {
	if p == nil || p.carts == nil {
		return
	}
	p.carts.WithLabelValues(normalizeLabel(outcome)).Inc()
	if outcome == OutcomeOK {
		p.lines.Observe(float64(lines))
	}
	p.duration.Observe(took.Seconds())
}

// IncDiscount counts one discounted line.
func (p *PricingMetrics) IncDiscount(promotionType string) {
	if p == nil || p.discounts == nil {
		return
	}
	p.discounts.WithLabelValues(normalizeLabel(promotionType)).Inc()
}
