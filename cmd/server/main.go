package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/plant-maintenance/internal/auth"
	"github.com/iliyamo/plant-maintenance/internal/config"
	"github.com/iliyamo/plant-maintenance/internal/database"
	"github.com/iliyamo/plant-maintenance/internal/handler"
	"github.com/iliyamo/plant-maintenance/internal/middleware"
	"github.com/iliyamo/plant-maintenance/internal/queue"
	"github.com/iliyamo/plant-maintenance/internal/repository"
	"github.com/iliyamo/plant-maintenance/internal/router"
	audit "github.com/iliyamo/plant-maintenance/internal/service"
)

func main() {
	// .env is optional; real deployments set variables directly.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	if err := database.EnsureSchema(context.Background(), db); err != nil {
		log.Fatalf("db schema: %v", err)
	}

	userRepo := repository.NewUserRepo(db)
	tokenRepo := repository.NewTokenRepo(db)

	clock := auth.SystemClock{}
	issuer := auth.NewIssuer(cfg.JWTSecret, time.Duration(cfg.AccessTTLMin)*time.Minute)
	guard := auth.NewLockoutGuard(userRepo, cfg.LockoutMaxAttempts,
		time.Duration(cfg.LockoutDurationMin)*time.Minute, clock)
	qrService := auth.NewQRTokenService(userRepo, clock)

	creds := auth.NewCredentialStore(
		userRepo, tokenRepo, issuer, guard, qrService, clock,
		time.Duration(cfg.RefreshTTLDays)*24*time.Hour,
		cfg.BcryptCost,
		func(ctx context.Context, ev queue.AuthEvent) {
			_ = audit.PublishAuthEvent(ctx, ev)
		},
	)

	authH := handler.NewAuthHandler(creds)
	qrH := handler.NewQRHandler(qrService, creds)

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable; rate limiting disabled")
	}
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	// The audit consumer keeps its own reconnect loop and never stops
	// the server when the broker is down.
	go func() {
		if err := queue.StartAuditConsumer(); err != nil {
			log.Printf("audit consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, authH, qrH, issuer, limiter)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
