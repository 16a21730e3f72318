// anomaly-check reads order metric series from the warehouse, runs the
// statistical detectors against cached baselines, publishes the report and
// fires the alert hook when critical findings surface. Intended for cron or a
// workflow scheduler.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ecomstream/analytics/internal/alerting"
	"github.com/ecomstream/analytics/internal/anomaly"
	"github.com/ecomstream/analytics/internal/cache"
	"github.com/ecomstream/analytics/internal/config"
	"github.com/ecomstream/analytics/internal/warehouse"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[boot] invalid configuration: %v", err)
	}
	log.Printf("[boot] anomaly-check configs loaded:%s", cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := warehouse.NewPostgresStore(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("[boot] warehouse: %v", err)
	}
	defer store.Close()

	c := cache.New(cache.Options{
		Addr:      cfg.RedisAddr,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		Namespace: cfg.RedisNamespace,
	})
	defer c.Close()

	detector := anomaly.NewDetector(anomaly.Options{
		ZThreshold:         cfg.ZThreshold,
		IQRMultiplier:      cfg.IQRMultiplier,
		PctChangeThreshold: cfg.PctChangeThreshold,
	})

	if err := addOrderMetrics(ctx, cfg, store, c, detector); err != nil {
		log.Fatalf("[error] load metrics: %v", err)
	}

	// Business rules from the order-quality checks.
	_ = detector.AddRule(anomaly.Rule{
		Name:     "negative_amount",
		Check:    func(v float64) bool { return v < 0 },
		Message:  "negative order amount detected: %.2f",
		Severity: anomaly.SeverityCritical,
	})
	_ = detector.AddRule(anomaly.Rule{
		Name:     "zero_amount",
		Check:    func(v float64) bool { return v == 0 },
		Message:  "zero order amount detected",
		Severity: anomaly.SeverityHigh,
	})

	report := detector.Detect()
	log.Printf("[anomaly] metrics=%d anomalies=%d critical=%d",
		report.MetricsChecked, report.AnomaliesFound, report.CriticalCount)

	if b, err := json.Marshal(report); err == nil {
		ttl := time.Duration(cfg.CacheTTLSec) * time.Second
		if err := c.Set(ctx, "anomaly:last_report", b, ttl); err != nil {
			log.Printf("[warn] cache report: %v", err)
		}
	}

	alerter := alerting.NewAlerter(cfg.AlertWebhookURL)
	if err := alerter.ProcessReport(ctx, report); err != nil {
		log.Printf("[error] alert dispatch: %v", err)
		os.Exit(1)
	}
}

func addOrderMetrics(ctx context.Context, cfg *config.Config, store *warehouse.PostgresStore, c *cache.Cache, d *anomaly.Detector) error {
	counts, err := store.DailyOrderCounts(ctx, cfg.LookbackDays)
	if err != nil {
		return err
	}
	revenue, err := store.DailyOrderRevenue(ctx, cfg.LookbackDays)
	if err != nil {
		return err
	}

	if len(counts) > 0 {
		if err := d.AddMetric("daily_order_count", counts, loadBaseline(ctx, c, "daily_order_count")); err != nil {
			return err
		}
	}
	if len(revenue) > 0 {
		if err := d.AddMetric("daily_order_revenue", revenue, loadBaseline(ctx, c, "daily_order_revenue")); err != nil {
			return err
		}
	}
	return nil
}

// loadBaseline fetches a fixed historical baseline so drift is measured
// against it instead of the current window. Miss means recompute locally.
func loadBaseline(ctx context.Context, c *cache.Cache, metric string) *anomaly.Baseline {
	b, err := c.Get(ctx, "baseline:"+metric)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			log.Printf("[warn] baseline lookup %s: %v", metric, err)
		}
		return nil
	}
	var baseline anomaly.Baseline
	if err := json.Unmarshal(b, &baseline); err != nil {
		log.Printf("[warn] baseline decode %s: %v", metric, err)
		return nil
	}
	return &baseline
}
