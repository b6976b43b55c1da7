package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/catalog"
	"github.com/ariefcatur/go-order-fulfillment/internal/config"
	"github.com/ariefcatur/go-order-fulfillment/internal/customers"
	"github.com/ariefcatur/go-order-fulfillment/internal/httpx"
	kafkax "github.com/ariefcatur/go-order-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/postgres"
	"github.com/ariefcatur/go-order-fulfillment/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	if err := postgres.EnsureSchema(ctx, db); err != nil {
		log.Fatal("schema", zap.Error(err))
	}
	if err := postgres.Seed(ctx, db); err != nil {
		log.Fatal("seed", zap.Error(err))
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers
	prodCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024, log)
	prodCreated.Start()
	prodStatus := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatus, 1024, log)
	prodStatus.Start()

	// Stores & service
	catalogStore := &catalog.Store{DB: db}
	customerStore := &customers.Store{DB: db}
	orderStore := &orders.Store{DB: db}
	svc := orders.NewService(catalogStore, customerStore, orderStore, log)

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Svc:            svc,
		ProducerCreate: prodCreated,
		ProducerStatus: prodStatus,
		Redis:          rdb,
		Service:        cfg.ServiceName,
		Log:            log,
	}
	oh.Register(router)
	(&httpx.ProductsHandler{Store: catalogStore}).Register(router)
	(&httpx.CustomersHandler{Store: customerStore}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)

	// handlers are quiesced; flush and close the producers
	prodCreated.Close()
	prodStatus.Close()
	prodCreated.WaitClosed()
	prodStatus.WaitClosed()
}
