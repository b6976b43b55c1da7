package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/catalog"
	"github.com/ariefcatur/go-order-fulfillment/internal/config"
	"github.com/ariefcatur/go-order-fulfillment/internal/customers"
	"github.com/ariefcatur/go-order-fulfillment/internal/fulfillment"
	kafkax "github.com/ariefcatur/go-order-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/postgres"
	"github.com/ariefcatur/go-order-fulfillment/internal/redisx"
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}

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

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Producer: order.status
	prodStatus := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatus, 1024, log)
	prodStatus.Start()

	svc := orders.NewService(
		&catalog.Store{DB: db},
		&customers.Store{DB: db},
		&orders.Store{DB: db},
		log,
	)
	worker := &fulfillment.Service{
		Orders:      svc,
		Redis:       rdb,
		Producer:    prodStatus,
		ServiceName: cfg.ServiceName + "-fulfillment",
		Log:         log,
	}

	group := getenv("FULFILLMENT_GROUP", "fulfillment-svc")
	workers := mustAtoi(os.Getenv("FULFILLMENT_WORKERS"), "8")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicOrderCreated, workers, log)

	go func() {
		log.Info("fulfillment consumer started",
			zap.String("group", group),
			zap.String("topic", orders.TopicOrderCreated),
			zap.Int("workers", workers))
		if err := cons.Start(ctx, worker.HandleOrderCreated); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down consumer")
	cancel()
	time.Sleep(500 * time.Millisecond)
	prodStatus.Close()
	prodStatus.WaitClosed()
}
