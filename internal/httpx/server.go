package httpx

import (
	"net/http"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterOptions struct {
	Metrics  *metrics.ServerMetrics // optional
	Gatherer prometheus.Gatherer    // serves /metrics when set
	Timeout  time.Duration          // 15s when zero
	Secret   string                 // JWT secret; empty trusts the path user
}

func NewRouter(opt RouterOptions) *chi.Mux {
	if opt.Timeout <= 0 {
		opt.Timeout = 15 * time.Second
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	if opt.Metrics != nil {
		r.Use(opt.Metrics.Middleware)
	}
	r.Use(middleware.Timeout(opt.Timeout))
	r.Use(Identity(opt.Secret))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opt.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(opt.Gatherer))
	}
	return r
}

// Instrument wraps the router with OpenTelemetry server spans.
func Instrument(h http.Handler, service string) http.Handler {
	return otelhttp.NewHandler(h, service)
}
