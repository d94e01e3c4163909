package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/config"
	kafkax "github.com/ariefcatur/go-realtime-checkout/internal/kafka"
	"github.com/ariefcatur/go-realtime-checkout/internal/logging"
	"github.com/ariefcatur/go-realtime-checkout/internal/metrics"
	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
	"github.com/ariefcatur/go-realtime-checkout/internal/postgres"
	"github.com/ariefcatur/go-realtime-checkout/internal/reconcile"
	"github.com/ariefcatur/go-realtime-checkout/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// The reconciler consumes payment gateway callbacks and drives them through
// the payment ledger, which reconciles the orders.
func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.StoreBackend != "postgres" || !cfg.KafkaEnabled() {
		log.Fatalf("reconciler needs STORE_BACKEND=postgres and KAFKA_BROKERS")
	}
	service := cfg.ServiceName + "-reconciler"

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, service)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Producer for order/payment change events
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024)
	prod.Start(ctx)
	events := &orders.Emitter{Pub: prod, Producer: service}

	reg := prometheus.NewRegistry()
	logger := logging.New(service)
	orderStore := &orders.Repo{DB: db}
	orderSvc := &orders.Service{Store: orderStore, Cache: &orders.RedisCache{RDB: rdb}, Events: events, Log: logger}
	ledger := &payments.Ledger{
		Store:  &payments.Repo{DB: db},
		Orders: orderStore,
		Notifier: &reconcile.Coordinator{
			Orders:   orderSvc,
			Log:      logger,
			Outcomes: metrics.NewOutcomes(reg, "reconciler", "transitions_total", "Order transitions derived from payments."),
		},
		Events: events,
		Log:    logger,
	}
	handler := &reconcile.CallbackHandler{
		Ledger:   ledger,
		Dedup:    &reconcile.RedisDeduper{RDB: rdb, Service: service},
		Log:      logger,
		Outcomes: metrics.NewOutcomes(reg, "reconciler", "callbacks_total", "Gateway callbacks by outcome."),
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ReconcilerGroup, orders.TopicGatewayCallbacks, cfg.ReconcilerWorkers)

	mux := chi.NewRouter()
	mux.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("reconciler consumer started: group=%s topic=%s workers=%d",
			cfg.ReconcilerGroup, orders.TopicGatewayCallbacks, cfg.ReconcilerWorkers)
		return cons.Start(gctx, handler.Handle)
	})
	g.Go(func() error {
		log.Printf("metrics listening at %s", cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()
	log.Println("shutting down reconciler...")
	prod.Close()
	prod.WaitClosed()
	if runErr != nil {
		// a stalled consumer exits non-zero so the supervisor restarts it
		// from the last committed offset
		log.Fatalf("reconciler exit: %v", runErr)
	}
}
