package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/vendetta/api/internal/auth"
	"github.com/freeeve/vendetta/api/internal/config"
	"github.com/freeeve/vendetta/api/internal/handler"
	"github.com/freeeve/vendetta/api/internal/logger"
	"github.com/freeeve/vendetta/api/internal/middleware"
	"github.com/freeeve/vendetta/api/internal/repository"
	"github.com/freeeve/vendetta/api/internal/repository/postgres"
	redisrepo "github.com/freeeve/vendetta/api/internal/repository/redis"
	"github.com/freeeve/vendetta/api/internal/service"
	"github.com/freeeve/vendetta/api/pkg/vendetta"
)

func main() {
	logger.Init()
	cfg := config.Load()
	log.Info().Str("env", cfg.Env).Str("port", cfg.Port).Msg("Config loaded")

	catalog := loadCatalog(cfg.CatalogPath)

	// Database
	db, err := postgres.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	// Redis is optional: without it there is no distributed lock, no throttle
	// and no keyspace timers, only the periodic sweep.
	var (
		cache    repository.AdvanceCache
		rdb      *goredis.Client
		redisCli *redisrepo.Client
	)
	if cfg.RedisURL != "" {
		redisCli, err = redisrepo.NewClient(cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, running without cache")
		} else {
			defer redisCli.Close()
			cache = redisCli
			rdb = redisCli.Underlying()
			if err := redisCli.EnableExpiryEvents(context.Background()); err != nil {
				log.Warn().Err(err).Msg("Due timers may not fire, relying on the periodic sweep")
			}
		}
	}

	// Repos
	userRepo := postgres.NewUserRepo(db)
	stateRepo := postgres.NewStateRepo(db)
	reportRepo := postgres.NewReportRepo(db)
	messageRepo := postgres.NewMessageRepo(db)

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret)
	wsHub := handler.NewHub()

	// Services
	game := service.NewGameStateService(stateRepo, cache, catalog, service.SystemClock{}, wsHub, service.AdvanceOptions{
		Throttle: cfg.AdvanceThrottle,
		LockTTL:  cfg.UserLockTTL,
	})
	actions := service.NewActionService(game)
	sweeper := service.NewSweeper(userRepo, game, cfg.SweepWorkers, cfg.SweepRate)
	timerListener := service.NewDueTimerListener(rdb, game, sweeper, cfg.SweepInterval)

	limiter := middleware.NewRateLimiter(cfg.ActionRate, cfg.ActionBurst)

	checks := map[string]handler.Pinger{"postgres": handler.PingFunc(db.PingContext)}
	if redisCli != nil {
		checks["redis"] = redisCli
	}

	routes := &handler.Routes{
		State:      handler.NewStateHandler(game),
		Actions:    handler.NewActionHandler(actions),
		Reports:    handler.NewReportHandler(reportRepo, messageRepo),
		Cron:       handler.NewCronHandler(sweeper),
		Simulate:   handler.NewSimulateHandler(service.NewSimulator(catalog)),
		WS:         handler.NewWSHandler(wsHub, jwtMgr, game),
		Health:     handler.Health(checks),
		JWT:        jwtMgr,
		CronSecret: cfg.CronSecret,
		Limiter:    limiter,
		Users:      userRepo,
	}
	if cfg.CronSecret == "" {
		log.Warn().Msg("CRON_SECRET is empty, the cron endpoint rejects every request")
	}

	// Apply global middleware
	root := middleware.Chain(routes.Mux(), middleware.Logger, middleware.Recover, middleware.CORS("*"), middleware.JSON)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go timerListener.Start(ctx)
	go pruneLimiter(ctx, limiter)

	go func() {
		log.Info().Str("port", cfg.Port).Int("rooms", len(catalog.RoomIDs())).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
}

func loadCatalog(path string) *vendetta.Catalog {
	if path == "" {
		return vendetta.DefaultCatalog()
	}
	f, err := os.Open(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to open catalog")
	}
	defer f.Close()
	catalog, err := vendetta.LoadCatalog(f)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Invalid catalog")
	}
	log.Info().Str("path", path).Msg("Catalog loaded")
	return catalog
}

func pruneLimiter(ctx context.Context, limiter *middleware.RateLimiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := limiter.Prune(now); n > 0 {
				log.Debug().Int("visitors", n).Msg("Pruned idle rate limiter entries")
			}
		}
	}
}
