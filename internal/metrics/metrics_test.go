package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewServerMetrics(reg, "test")

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/def", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("GET /orders/{id}", "404")))
}

func TestOutcomes_NilSafe(t *testing.T) {
	var o *Outcomes
	assert.NotPanics(t, func() { o.Inc("applied") })

	reg := prometheus.NewRegistry()
	o = NewOutcomes(reg, "test", "reconcile_total", "Reconciliation outcomes.")
	o.Inc("applied")
	o.Inc("applied")
	o.Inc("stale")
	assert.Equal(t, 2.0, testutil.ToFloat64(o.vec.WithLabelValues("applied")))
}
