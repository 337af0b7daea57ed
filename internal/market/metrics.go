package market

import (
	"github.com/prometheus/client_golang/prometheus"

	"carbon-scribe/credit-market/credit-market-backend/pkg/apperrors"
)

// Metrics counts engine outcomes
type Metrics struct {
	listed      prometheus.Counter
	sold        prometheus.Counter
	minted      prometheus.Counter
	purchases   prometheus.Counter
	settlements *prometheus.CounterVec
	rejections  *prometheus.CounterVec
}

// NewMetrics registers the engine collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		listed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "credit_market",
			Name:      "credits_listed_total",
			Help:      "Credits offered for sale across all projects.",
		}),
		sold: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "credit_market",
			Name:      "credits_sold_total",
			Help:      "Credits claimed by buyers.",
		}),
		minted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "credit_market",
			Name:      "credits_minted_total",
			Help:      "Credits issued to buyers at settlement.",
		}),
		purchases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "credit_market",
			Name:      "purchases_total",
			Help:      "Accepted buy requests.",
		}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "credit_market",
			Name:      "settlements_total",
			Help:      "Project validations by outcome.",
		}, []string{"outcome"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "credit_market",
			Name:      "rejections_total",
			Help:      "Rejected engine requests by operation and error code.",
		}, []string{"operation", "code"}),
	}
	if reg != nil {
		reg.MustRegister(m.listed, m.sold, m.minted, m.purchases, m.settlements, m.rejections)
	}
	return m
}

func (m *Metrics) reject(op string, err error) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(op, apperrors.Code(err)).Inc()
}

func (m *Metrics) listing(amount int64) {
	if m == nil {
		return
	}
	m.listed.Add(float64(amount))
}

func (m *Metrics) purchase(amount int64) {
	if m == nil {
		return
	}
	m.purchases.Inc()
	m.sold.Add(float64(amount))
}

func (m *Metrics) settlement(valid bool, minted int64) {
	if m == nil {
		return
	}
	outcome := "penalty"
	if valid {
		outcome = "valid"
	}
	m.settlements.WithLabelValues(outcome).Inc()
	m.minted.Add(float64(minted))
}
