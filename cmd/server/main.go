package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"guard.share/config"
	"guard.share/internal/api"
	"guard.share/internal/audit"
	"guard.share/internal/notify"
	"guard.share/internal/security"
	"guard.share/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("config error:", err)
	}

	logger := log.Default()

	shares, redisClient := initStore(cfg)
	defer shares.Close()

	auditLog := initAudit(cfg, logger)
	defer auditLog.Close()

	counters := initCounters(redisClient)
	limiter := security.NewRateLimiter(counters, map[security.OperationClass]security.Limit{
		security.ClassShareCreate: {Max: cfg.RateLimit.CreateLimit, Window: cfg.RateLimit.CreateWindow},
		security.ClassShareAccess: {Max: cfg.RateLimit.AccessLimit, Window: cfg.RateLimit.AccessWindow},
	})

	threats := security.NewAssessor(security.ThreatConfig{
		WeightRateLimit:    cfg.Threat.WeightRateLimit,
		WeightFailedLookup: cfg.Threat.WeightFailedLookup,
		WeightSuspicious:   cfg.Threat.WeightSuspicious,
		MediumScore:        cfg.Threat.MediumScore,
		HighScore:          cfg.Threat.HighScore,
		CriticalScore:      cfg.Threat.CriticalScore,
		DecayWindow:        cfg.Threat.DecayWindow,
		AutoBlacklistFor:   cfg.Threat.AutoBlacklistFor,
	})

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go threats.Run(sweepCtx, cfg.Threat.SweepInterval)

	engine := security.NewEngine(shares, limiter, threats, auditLog, security.EngineConfig{
		StoreTimeout:              cfg.Threat.StoreTimeout,
		RetryBackoff:              cfg.Threat.RetryBackoff,
		SuspiciousAccessThreshold: cfg.Threat.SuspiciousThreshold,
		SuspiciousWindow:          cfg.Threat.SuspiciousWindow,
		CreationVolumeCeiling:     cfg.Threat.CreationCeiling,
	}, logger)

	router := api.SetupRouter(engine, shares, notify.NewLogSender(logger), cfg, logger)

	log.Printf("Server starting on %s", cfg.Addr())
	log.Printf("Base URL: %s", cfg.Server.BaseURL)
	log.Printf("Store: %s, audit: %s", cfg.Store.Type, cfg.Audit.Type)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Fatal(server.ListenAndServe())
}

func initStore(cfg *config.Config) (store.Store, *redis.Client) {
	switch cfg.Store.Type {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		st, err := store.NewRedisStore(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		}, cfg.Shares.Retention)
		if err != nil {
			log.Fatal("redis connection failed:", err)
		}
		return st, client
	default:
		return store.NewMemoryStore(cfg.Shares.CleanupInterval, cfg.Shares.Retention), nil
	}
}

func initAudit(cfg *config.Config, logger *log.Logger) audit.Log {
	switch cfg.Audit.Type {
	case "sqlite":
		l, err := audit.NewSQLiteLog(cfg.Audit.SQLitePath, logger)
		if err != nil {
			log.Fatal("audit database failed:", err)
		}
		return l
	default:
		return audit.NewMemoryLog(cfg.Audit.MaxEntries)
	}
}

// initCounters puts the rate windows in the same Redis as the shares so
// all engine instances see the same counts.
func initCounters(client *redis.Client) security.CounterStore {
	if client != nil {
		return security.NewRedisCounters(client)
	}
	return security.NewMemoryCounters()
}
