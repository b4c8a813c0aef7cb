// Package metrics registers the Prometheus collectors shared across
// the settlement services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersCreated counts orders settled from carts.
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_orders_created_total",
		Help: "Number of orders created from carts.",
	})

	// PaymentCallbacks counts provider callbacks by outcome. outcome is
	// one of accepted, rejected or failed.
	PaymentCallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_payment_callbacks_total",
		Help: "Payment provider callbacks processed.",
	}, []string{"provider", "outcome"})

	// AssetTransfers counts ledger ownership transfers by outcome.
	AssetTransfers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_asset_transfers_total",
		Help: "Ledger asset transfers attempted after payment.",
	}, []string{"outcome"})

	// LedgerRequestDuration observes ledger round trips per chaincode
	// function.
	LedgerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_ledger_request_seconds",
		Help:    "Latency of ledger gateway requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"function"})
)
