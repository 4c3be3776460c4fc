package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fieldops/partsledger/inventory"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_CountsEntriesAndAllocations(t *testing.T) {
	// GIVEN
	m := New()
	ctx := context.Background()

	// WHEN
	m.PublishEntries(ctx, []inventory.LedgerEntry{
		{Kind: inventory.KindPurchase},
		{Kind: inventory.KindPurchase},
		{Kind: inventory.KindLoss},
	})
	m.ObserveAllocation(inventory.SourceStock, nil)
	m.ObserveAllocation(inventory.SourceStock, &inventory.InsufficientStockError{PartCode: "W100", Requested: 5, Available: 1})
	m.ObserveAllocation(inventory.SourceStock, errors.New("disk on fire"))

	// THEN
	body := scrape(t, m)
	assert.Contains(t, body, `partsledger_ledger_entries_appended_total{kind="purchase"} 2`)
	assert.Contains(t, body, `partsledger_ledger_entries_appended_total{kind="loss"} 1`)
	assert.Contains(t, body, `partsledger_job_allocations_total{source="stock"} 1`)
	assert.Contains(t, body, "partsledger_insufficient_stock_total 1")
}

func TestMetrics_MiddlewareUsesRoutePattern(t *testing.T) {
	// GIVEN
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/parts/{code}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	// WHEN: two different parts hit the same route
	for _, path := range []string{"/api/parts/W100", "/api/parts/X200"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	// THEN: one series
	body := scrape(t, m)
	assert.Contains(t, body, `partsledger_http_request_duration_seconds_count{method="GET",route="/api/parts/{code}",status="404"} 2`)
	assert.NotContains(t, body, "W100")
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.LowStockAlerts.Inc()

	assert.Contains(t, scrape(t, a), "partsledger_low_stock_alerts_total 1")
	assert.Contains(t, scrape(t, b), "partsledger_low_stock_alerts_total 0")
}
