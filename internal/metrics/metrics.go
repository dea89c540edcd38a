// Package metrics exposes Prometheus collectors for the node and the bot.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dca"

var (
	txTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "tx_total",
			Help:      "Executed transactions by action and error kind",
		},
		[]string{"action", "result"},
	)

	txDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "tx_duration_seconds",
			Help:      "Time spent executing a transaction",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"action"},
	)

	blockHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "block_height",
			Help:      "Current block height",
		},
	)

	protocolErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "protocol_errors_total",
			Help:      "Reconciliation failures that indicate a broken router or host",
		},
	)

	swapReturn = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "swap_return_amount",
			Help:      "Target amount returned by the last reconciled purchase",
		},
	)

	gasFees = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "gas_fee_total",
			Help:      "Network fees charged to order gas pools",
		},
	)

	purchasesSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bot",
			Name:      "purchases_submitted_total",
			Help:      "Purchases the bot submitted by outcome",
		},
		[]string{"result"},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)
)

// ObserveTx records one executed transaction. result is "ok" or an error kind.
func ObserveTx(action, result string, took time.Duration) {
	txTotal.WithLabelValues(action, result).Inc()
	txDuration.WithLabelValues(action).Observe(took.Seconds())
}

func SetBlockHeight(h int64) { blockHeight.Set(float64(h)) }

func ProtocolError() { protocolErrors.Inc() }

// PurchaseReconciled records a settled purchase. Negative fees are refunds
// and are not counted.
func PurchaseReconciled(returned, gasFee float64) {
	swapReturn.Set(returned)
	if gasFee > 0 {
		gasFees.Add(gasFee)
	}
}

func PurchaseSubmitted(result string) { purchasesSubmitted.WithLabelValues(result).Inc() }

func HTTPRequest(method, route string, status int) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
