// Package metrics exposes Prometheus collectors for the inventory service.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fieldops/partsledger/inventory"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "partsledger"

// Metrics holds every collector on its own registry, so tests can build as
// many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	EntriesAppended   *prometheus.CounterVec
	Allocations       *prometheus.CounterVec
	InsufficientStock prometheus.Counter
	LowStockAlerts    prometheus.Counter
	ReconcileDrift    prometheus.Counter
	ReconcileRuns     prometheus.Counter
	HTTPDuration      *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		EntriesAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_entries_appended_total",
			Help:      "Committed ledger entries by movement kind.",
		}, []string{"kind"}),
		Allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_allocations_total",
			Help:      "Job allocations created, by source.",
		}, []string{"source"}),
		InsufficientStock: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insufficient_stock_total",
			Help:      "Consumptions rejected because FIFO lots could not cover them.",
		}),
		LowStockAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "low_stock_alerts_total",
			Help:      "Parts that crossed their minimum stock.",
		}),
		ReconcileDrift: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_drift_total",
			Help:      "Parts whose cached aggregates disagreed with the ledger.",
		}),
		ReconcileRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_runs_total",
			Help:      "Completed reconciliation passes.",
		}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.EntriesAppended,
		m.Allocations,
		m.InsufficientStock,
		m.LowStockAlerts,
		m.ReconcileDrift,
		m.ReconcileRuns,
		m.HTTPDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Middleware records request latency labelled with the chi route pattern,
// so /api/parts/W100 and /api/parts/X200 share one series.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}

// PublishEntries counts committed entries. It implements
// inventory.Publisher so it can sit next to the event bus.
func (m *Metrics) PublishEntries(_ context.Context, entries []inventory.LedgerEntry) {
	for _, e := range entries {
		m.EntriesAppended.WithLabelValues(string(e.Kind)).Inc()
	}
}

// ObserveAllocation counts the outcome of one Allocate call.
func (m *Metrics) ObserveAllocation(source inventory.Source, err error) {
	switch {
	case err == nil:
		m.Allocations.WithLabelValues(string(source)).Inc()
	case errors.Is(err, inventory.ErrInsufficientStock):
		m.InsufficientStock.Inc()
	}
}

var _ inventory.Publisher = (*Metrics)(nil)
