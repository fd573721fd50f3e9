// Copyright (c) 2025 BVK Chaitanya

package monitor

import "github.com/prometheus/client_golang/prometheus"

var (
	priceChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rangebot_price_checks_total",
			Help: "Count of price checks by the result.",
		},
		[]string{"symbol", "result"},
	)
	workerRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rangebot_worker_restarts_total",
			Help: "Count of worker restarts due to a price range breach.",
		},
		[]string{"symbol"},
	)
	lastPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rangebot_last_price",
			Help: "Last valid price observed.",
		},
		[]string{"symbol"},
	)
	rangeBounds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rangebot_range_bound",
			Help: "Active price range bounds.",
		},
		[]string{"symbol", "bound"},
	)
)

func init() {
	prometheus.MustRegister(priceChecks, workerRestarts, lastPrice, rangeBounds)
}

const (
	resultOK           = "ok"
	resultFetchError   = "fetch_error"
	resultInvalidPrice = "invalid_price"
	resultBreach       = "breach"
	resultStartError   = "start_error"
)
