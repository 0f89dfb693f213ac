// The detector runs the commerce and ads anomaly sweep. It is built as a
// separate binary so it can run on a schedule (cron, ECS scheduled task)
// independent of the API server. A distributed lock keeps overlapping
// invocations from double-sweeping.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atlasmedia/pulse/internal/anomaly"
	"github.com/atlasmedia/pulse/internal/config"
	"github.com/atlasmedia/pulse/internal/pkg/distlock"
	"github.com/atlasmedia/pulse/internal/repository/postgres"

	_ "github.com/lib/pq" // PostgreSQL driver
)

const lockKey = "pulse:anomaly-sweep"

func thresholdsFromConfig(cfg config.AnomalyConfig) anomaly.Thresholds {
	return anomaly.Thresholds{
		MinBaseline:        cfg.MinBaseline,
		RevenueCriticalPct: cfg.RevenueCriticalPct,
		RevenueHighPct:     cfg.RevenueHighPct,
		OrdersCriticalPct:  cfg.OrdersCriticalPct,
		OrdersHighPct:      cfg.OrdersHighPct,
		AOVMediumPct:       cfg.AOVMediumPct,
		RefundRateHighAbs:  cfg.RefundRateHighAbs,
	}
}

func main() {
	interval := flag.Duration("interval", 0, "sweep repeatedly on this interval (0 runs once and exits)")
	flag.Parse()

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancelPing()
		log.Fatalf("Database ping failed: %v", err)
	}
	cancelPing()

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Invalid redis URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	var shopify anomaly.ShopifySource
	if cfg.Shopify.Enabled {
		shopify = anomaly.NewShopifyClient(cfg.Shopify.AccessToken, 30*time.Second)
	}
	var ads anomaly.AdsSource
	if cfg.GoogleAds.Enabled {
		ads = anomaly.NewGoogleAdsClient(cfg.GoogleAds.DevToken, 30*time.Second)
	}
	if shopify == nil && ads == nil {
		log.Fatal("Nothing to monitor: enable shopify or google_ads in config")
	}

	monitor := anomaly.NewMonitor(shopify, ads, postgres.NewAlertRepo(db), thresholdsFromConfig(cfg.Anomaly))
	monitor.SetShops(cfg.Shopify.Shops)
	monitor.SetCustomers(cfg.GoogleAds.CustomerIDs)

	ctx := context.Background()
	runOnce := func() {
		lock := distlock.NewLock(redisClient, db, lockKey, 10*time.Minute)
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			log.Printf("Lock acquire failed: %v", err)
			return
		}
		if !acquired {
			log.Println("Another sweep holds the lock, skipping")
			return
		}
		defer func() {
			if err := lock.Release(ctx); err != nil {
				log.Printf("Lock release failed: %v", err)
			}
		}()

		result, err := monitor.Sweep(ctx)
		if err != nil {
			log.Printf("Sweep failed: %v", err)
			return
		}
		log.Printf("Sweep done: %d entities, %d anomalies, %d new alerts, %d deduplicated",
			result.EntitiesChecked, result.AnomaliesFound, result.AlertsCreated, result.Deduplicated)
	}

	runOnce()
	if *interval <= 0 {
		return
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for range ticker.C {
		runOnce()
	}
}
