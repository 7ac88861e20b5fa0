package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics carries the engine-facing prometheus instruments. All methods are
// safe for concurrent use and nil-receiver tolerant so components can run
// without metrics wired (tests, tools).
type Metrics struct {
	ordersSubmitted *prometheus.CounterVec
	ordersRejected  *prometheus.CounterVec
	tradesExecuted  prometheus.Counter
	tradeVolume     prometheus.Counter
	marketPrice     prometheus.Gauge
	bookDepth       *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ordersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cross_orders_submitted_total",
			Help: "Orders accepted by the engine, by type and side.",
		}, []string{"type", "side"}),
		ordersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cross_orders_rejected_total",
			Help: "Orders rejected before or during execution, by reason.",
		}, []string{"reason"}),
		tradesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cross_trades_executed_total",
			Help: "Individual trades produced by matching.",
		}),
		tradeVolume: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cross_trade_volume_total",
			Help: "Sum of executed trade sizes.",
		}),
		marketPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cross_market_price_ticks",
			Help: "Reference midpoint price in ticks, 0 while undefined.",
		}),
		bookDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cross_book_depth_orders",
			Help: "Resting limit orders per book side.",
		}, []string{"side"}),
	}
	reg.MustRegister(
		m.ordersSubmitted, m.ordersRejected,
		m.tradesExecuted, m.tradeVolume,
		m.marketPrice, m.bookDepth,
	)
	return m
}

func (m *Metrics) OrderSubmitted(typ, side string) {
	if m == nil {
		return
	}
	m.ordersSubmitted.WithLabelValues(typ, side).Inc()
}

func (m *Metrics) OrderRejected(reason string) {
	if m == nil {
		return
	}
	m.ordersRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) TradesExecuted(count int, volume int64) {
	if m == nil {
		return
	}
	m.tradesExecuted.Add(float64(count))
	m.tradeVolume.Add(float64(volume))
}

func (m *Metrics) SetMarketPrice(ticks int64) {
	if m == nil {
		return
	}
	m.marketPrice.Set(float64(ticks))
}

func (m *Metrics) SetBookDepth(bids, asks int) {
	if m == nil {
		return
	}
	m.bookDepth.WithLabelValues("bid").Set(float64(bids))
	m.bookDepth.WithLabelValues("ask").Set(float64(asks))
}
