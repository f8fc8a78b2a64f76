package aggregator

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the aggregator's Prometheus collectors.
type Metrics struct {
	venueQuotes     *prometheus.CounterVec
	bestRateLatency prometheus.Histogram
	swaps           *prometheus.CounterVec
	feesCollected   *prometheus.CounterVec
	routers         *prometheus.GaugeVec
	supportedPools  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		venueQuotes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregator_venue_quotes_total",
				Help: "Per-venue quotes taken while rate shopping, by venue version and outcome.",
			},
			[]string{"version", "outcome"},
		),
		bestRateLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aggregator_best_rate_duration_seconds",
			Help:    "Time spent shopping every registered venue for the best rate.",
			Buckets: prometheus.DefBuckets,
		}),
		swaps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregator_swaps_total",
				Help: "Swap requests, by venue version and result.",
			},
			[]string{"version", "result"},
		),
		feesCollected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregator_fees_collected_wei_total",
				Help: "Native currency paid out as fees, by receiver kind.",
			},
			[]string{"receiver"},
		),
		routers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aggregator_registered_routers",
				Help: "Registered routers per venue version.",
			},
			[]string{"version"},
		),
		supportedPools: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aggregator_supported_pools",
			Help: "Pools whitelisted for swap execution.",
		}),
	}
	reg.MustRegister(m.venueQuotes, m.bestRateLatency, m.swaps, m.feesCollected, m.routers, m.supportedPools)
	return m
}

// addWei adds amount to a float counter. Precision loss beyond 2^53 wei is accepted.
func addWei(c prometheus.Counter, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	f, _ := new(big.Float).SetInt(amount).Float64()
	c.Add(f)
}
