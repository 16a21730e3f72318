package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ecomstream/analytics/internal/broker"
	"github.com/ecomstream/analytics/internal/config"
	"github.com/ecomstream/analytics/internal/consumer"
	"github.com/ecomstream/analytics/internal/metrics"
	"github.com/ecomstream/analytics/internal/processing"
	"github.com/ecomstream/analytics/internal/warehouse"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[boot] invalid configuration: %v", err)
	}
	log.Printf("[boot] stream-consumer configs loaded:%s", cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	broker.EnsureTopics(ctx, cfg)

	store, err := warehouse.NewPostgresStore(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("[boot] warehouse: %v", err)
	}
	defer store.Close()

	kc := broker.NewKafkaClient(cfg)
	defer kc.Close()

	reg := metrics.NewRegistry()
	sc := consumer.New(consumer.Options{
		Source:          kc.Consumer,
		DeadLetter:      consumer.NewDeadLetterRouter(kc.DLQProducer),
		Metrics:         reg,
		ShutdownTimeout: time.Duration(cfg.ShutdownTimeoutMs) * time.Millisecond,
		Ping:            kc.Ping,
	})

	if err := sc.Register(processing.NewOrderEventProcessor(store)); err != nil {
		log.Fatalf("[boot] register order processor: %v", err)
	}
	if err := sc.Register(processing.NewClickstreamEventProcessor(store)); err != nil {
		log.Fatalf("[boot] register clickstream processor: %v", err)
	}

	// Periodic observability dump; the snapshot is the metrics boundary.
	go func() {
		t := time.NewTicker(time.Duration(cfg.MetricsDumpIntervalSec) * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				log.Printf("[metrics] %s", reg.SnapshotJSON())
			}
		}
	}()

	if err := sc.Run(ctx); err != nil {
		log.Printf("[error] consumer exited: %v", err)
		os.Exit(1)
	}
	log.Printf("[metrics] final %s", reg.SnapshotJSON())
}
