// Package metrics provides Prometheus instrumentation for the marketplace
// core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LocksTotal counts successful pay-to-lock transactions.
	LocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agromart_unit_locks_total",
		Help: "Successful pay-to-lock transactions",
	})

	// LockRejections counts rejected lock attempts by cause.
	LockRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agromart_lock_rejections_total",
		Help: "Lock attempts rejected before any write",
	}, []string{"cause"})

	// ReversalsTotal counts admin delivery-failure reversals.
	ReversalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agromart_delivery_reversals_total",
		Help: "Admin reversals of failed deliveries",
	})

	// PurchasesTotal counts completed buyer purchases.
	PurchasesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agromart_buyer_purchases_total",
		Help: "Completed buyer purchases",
	})

	// LedgerEntriesTotal counts appended wallet ledger entries by type.
	LedgerEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agromart_ledger_entries_total",
		Help: "Wallet ledger entries appended",
	}, []string{"entry_type"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agromart_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
