package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/address"
	"github.com/ariefcatur/go-realtime-checkout/internal/cart"
	"github.com/ariefcatur/go-realtime-checkout/internal/catalog"
	"github.com/ariefcatur/go-realtime-checkout/internal/config"
	"github.com/ariefcatur/go-realtime-checkout/internal/httpx"
	kafkax "github.com/ariefcatur/go-realtime-checkout/internal/kafka"
	"github.com/ariefcatur/go-realtime-checkout/internal/logging"
	"github.com/ariefcatur/go-realtime-checkout/internal/metrics"
	"github.com/ariefcatur/go-realtime-checkout/internal/mongox"
	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
	"github.com/ariefcatur/go-realtime-checkout/internal/postgres"
	"github.com/ariefcatur/go-realtime-checkout/internal/reconcile"
	"github.com/ariefcatur/go-realtime-checkout/internal/redisx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	logger := logging.New(cfg.ServiceName)

	// DB
	var db *pgxpool.Pool
	if cfg.CartBackend == "postgres" || cfg.StoreBackend == "postgres" {
		if cfg.MigrateOnStart {
			if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
				log.Fatalf("migrate: %v", err)
			}
		}
		db, err = postgres.Connect(ctx, cfg.PostgresDSN, cfg.ServiceName)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer db.Close()
	}

	// Redis; caches are skipped when it is unreachable
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("redis unavailable, running without caches: %v", err)
			rdb = nil
		}
	}

	// Kafka producer
	events := &orders.Emitter{Producer: cfg.ServiceName}
	var prod *kafkax.Producer
	if cfg.KafkaEnabled() {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, 1024)
		prod.Start(ctx)
		events.Pub = prod
	}

	// Catalog & address book
	var (
		cat  catalog.Catalog
		book address.Book
	)
	if cfg.StoreBackend == "postgres" {
		cat = catalog.NewBreaker(&catalog.Postgres{DB: db}, "catalog")
		book = &address.Postgres{DB: db}
	} else {
		mc, mb := demoData()
		cat, book = mc, mb
	}

	// Cart
	var cartStore cart.Store
	switch cfg.CartBackend {
	case "postgres":
		cartStore = &cart.PostgresStore{DB: db}
	case "mongo":
		mdb, err := mongox.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			log.Fatalf("mongo connect: %v", err)
		}
		defer func() { _ = mdb.Client().Disconnect(context.Background()) }()
		ms := cart.NewMongoStore(mdb)
		if err := ms.EnsureIndexes(ctx); err != nil {
			log.Fatalf("mongo indexes: %v", err)
		}
		cartStore = ms
	default:
		cartStore = cart.NewMemoryStore()
	}
	var cartCache cart.Cache
	var orderCache orders.Cache
	if rdb != nil {
		cartCache = cart.NewRedisCache(rdb)
		orderCache = &orders.RedisCache{RDB: rdb}
	}
	carts := cart.NewService(cartStore, cat, cartCache)

	// Orders & payments
	var (
		orderStore   orders.Store
		paymentStore payments.Store
	)
	if cfg.StoreBackend == "postgres" {
		orderStore = &orders.Repo{DB: db}
		paymentStore = &payments.Repo{DB: db}
	} else {
		orderStore = orders.NewMemoryStore()
		paymentStore = payments.NewMemoryStore()
	}
	orderSvc := &orders.Service{Store: orderStore, Cache: orderCache, Events: events, Log: logger}
	factory := &orders.Factory{
		Cart:      carts,
		Catalog:   cat,
		Addresses: book,
		Store:     orderStore,
		Cache:     orderCache,
		Events:    events,
		Log:       logger,
		Outcomes:  metrics.NewOutcomes(reg, "api", "checkout_total", "Checkout attempts by outcome."),
	}
	ledger := &payments.Ledger{
		Store:  paymentStore,
		Orders: orderStore,
		Notifier: &reconcile.Coordinator{
			Orders:   orderSvc,
			Log:      logger,
			Outcomes: metrics.NewOutcomes(reg, "api", "reconcile_transitions_total", "Order transitions derived from payments."),
		},
		Events: events,
		Log:    logger,
	}

	// Router & handlers
	router := httpx.NewRouter(httpx.RouterOptions{
		Metrics:  metrics.NewServerMetrics(reg, "api"),
		Gatherer: reg,
		Timeout:  cfg.RequestTimeout,
		Secret:   cfg.JWTSecret,
	})
	(&httpx.CartHandler{Carts: carts}).Register(router)
	(&httpx.OrdersHandler{Factory: factory, Orders: orderSvc}).Register(router)
	(&httpx.PaymentsHandler{Ledger: ledger, Orders: orderSvc}).Register(router)

	// HTTP server
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.Instrument(router, cfg.ServiceName),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// graceful shutdown
	go func() {
		log.Printf("HTTP listening at %s (cart=%s store=%s)", cfg.HTTPAddr, cfg.CartBackend, cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	if prod != nil {
		prod.Close() // close inbox -> flush & close writer
		cancel()
		prod.WaitClosed()
	}
}

// demoData mirrors the demo catalog migration for memory backends.
func demoData() (*catalog.Memory, *address.Memory) {
	cat := catalog.NewMemory(
		catalog.Product{ID: "prod-a", SKU: "SKU-A", Name: "Product A", PriceCents: 1000, Active: true},
		catalog.Product{ID: "prod-b", SKU: "SKU-B", Name: "Product B", PriceCents: 500, Active: true},
		catalog.Product{ID: "prod-c", SKU: "SKU-C", Name: "Product C (retired)", PriceCents: 2500, Active: false},
	)
	book := address.NewMemory()
	book.Add("addr1", "user-1")
	return cat, book
}
