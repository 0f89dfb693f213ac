package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atlasmedia/pulse/internal/api"
	"github.com/atlasmedia/pulse/internal/briefs"
	"github.com/atlasmedia/pulse/internal/cache"
	"github.com/atlasmedia/pulse/internal/config"
	"github.com/atlasmedia/pulse/internal/ingest"
	"github.com/atlasmedia/pulse/internal/llm"
	"github.com/atlasmedia/pulse/internal/ratelimit"
	"github.com/atlasmedia/pulse/internal/repository/postgres"
	"github.com/atlasmedia/pulse/internal/viral"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

// disabledGenerator answers every generation request with a configuration
// error instead of letting a nil client panic deep inside a request.
type disabledGenerator struct{}

func (disabledGenerator) Generate(context.Context, string, string) (string, error) {
	return "", errors.New("brief generation is disabled: set bedrock.enabled in config")
}

// scoringContextFromConfig resolves per-industry scoring inputs from the
// static configuration.
func scoringContextFromConfig(cfg config.ViralConfig) func(industry string, clientID *string) viral.ScoringContext {
	return func(industry string, _ *string) viral.ScoringContext {
		sc := viral.DefaultScoringContext()
		sc.RelevancePointsPerHit = cfg.RelevancePointsPerHit
		sc.NoveltyPenaltyPerHit = cfg.NoveltyPenaltyPerHit
		sc.SeasonalityNearDays = cfg.SeasonalityNearDays
		for _, term := range cfg.IndustryTerms[industry] {
			sc.ContextTerms[term] = struct{}{}
		}
		return sc
	}
}

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", port)

	// PostgreSQL
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancelPing()
		log.Fatalf("Database ping failed: %v", err)
	}
	cancelPing()
	defer db.Close()

	signalRepo := postgres.NewSignalRepo(db)
	oppRepo := postgres.NewOpportunityRepo(db)
	briefRepo := postgres.NewBriefRepo(db)
	alertRepo := postgres.NewAlertRepo(db)

	// Redis cache and rate limiter. Absence degrades to uncached,
	// unthrottled operation rather than refusing to boot.
	var listCache *cache.Cache
	if cfg.Redis.URL != "" {
		listCache, err = cache.NewFromURL(cfg.Redis.URL, cfg.Redis.CacheTTL())
		if err != nil {
			log.Fatalf("Redis connection failed: %v", err)
		}
		defer listCache.Close()
	} else {
		log.Println("[redis] no URL configured; list caching and rate limiting disabled")
	}

	// Opportunity pipeline
	var invalidator viral.CacheInvalidator
	if listCache != nil {
		invalidator = listCache
	}
	builder := viral.NewBuilder(signalRepo, oppRepo, invalidator, nil,
		viral.WithMinOverlap(cfg.Viral.MinKeywordOverlap),
		viral.WithScoringContext(scoringContextFromConfig(cfg.Viral)))

	// Brief generation
	var generator llm.Generator = disabledGenerator{}
	if cfg.Bedrock.Enabled {
		bedrock, err := llm.NewBedrockClient(context.Background(), cfg.Bedrock)
		if err != nil {
			log.Fatalf("Bedrock client init failed: %v", err)
		}
		generator = bedrock
		log.Printf("Bedrock generation enabled (model %s, region %s)", cfg.Bedrock.ModelID, cfg.Bedrock.Region)
	} else {
		log.Println("[bedrock] disabled; brief generation endpoints will refuse requests")
	}
	briefSvc := briefs.NewService(briefRepo, oppRepo, generator, cfg.Bedrock.Timeout())

	// HTTP surface
	handlers := api.NewHandlers(builder, oppRepo, briefSvc, briefRepo, alertRepo)
	handlers.SetDB(db)
	if listCache != nil {
		handlers.SetCache(listCache)
		handlers.SetRedis(listCache.Client())
		handlers.SetRateLimiter(ratelimit.New(listCache.Client(), cfg.Viral.BuildRateLimit, cfg.Viral.BuildRateWindow()))
	}
	server := api.NewServer(cfg.Server, cfg.API, handlers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background signal ingestion
	if cfg.Ingest.Enabled {
		fetcher := ingest.NewFetcher(signalRepo, cfg.Ingest.Timeout())
		runner := ingest.NewRunner(fetcher, cfg.Ingest)
		go runner.Run(ctx)
		log.Printf("Ingestion running: %d feeds every %s", len(cfg.Ingest.Feeds), cfg.Ingest.Interval())
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	errCh := make(chan error, 1)
	go func() {
		log.Printf("API listening on %s", addr)
		errCh <- server.ListenAndServe(addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}

	cancel()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
