// Package main is the entry point for the inventory engine's
// background worker: the reservation expiry sweeper, the dashboard
// metrics refresher, the alert scanner, and the outbox relay, all wired
// against the same PostgreSQL pool and in-process notification broker.
// Grounded on the teacher's cmd/worker multi-tenant ticker loop,
// generalized from per-tenant worker goroutines to four cross-tenant
// cron-scheduled
// jobs (spec's Non-goals exclude per-tenant database isolation).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"invengine/internal/core/lock"
	"invengine/internal/domain/alert"
	"invengine/internal/domain/dashboard"
	"invengine/internal/domain/notify"
	"invengine/internal/domain/reservation"
	"invengine/internal/infrastructure/cache"
	"invengine/internal/infrastructure/storage/postgres"
	"invengine/internal/infrastructure/storage/postgres/dashboard_repo"
	"invengine/internal/infrastructure/storage/postgres/reservation_repo"
	"invengine/internal/worker/relay"
	"invengine/internal/worker/sweeper"
	"invengine/pkg/logger"
)

// This binary runs only the engine's four cron-scheduled background
// jobs (expiry sweeper, dashboard refresher, alert scanner, outbox
// relay). The
// ledger's and reservation manager's command surface (internal/engine)
// is this module's public API for an embedding application; spec.md's
// Non-goals exclude an HTTP/gRPC transport of its own, so no command
// path is wired here.

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting inventory engine worker")

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("DATABASE_URL")))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)

	reservationRepo := reservation_repo.New(txManager)
	dashboardRepo := dashboard_repo.New(txManager)

	dashboardCache := cache.NewRedisDashboardCache(
		getEnv("REDIS_ADDR", "localhost:6379"),
		os.Getenv("REDIS_PASSWORD"),
		0,
	)
	defer dashboardCache.Close()
	if err := dashboardCache.Ping(ctx); err != nil {
		log.Warnw("dashboard cache unreachable at startup, reads will recompute on every miss", "error", err)
	}

	locks := lock.NewPool()

	broker := notify.NewBroker()
	go broker.Run(ctx)

	dashboardSvc := dashboard.NewService(dashboardRepo, dashboardCache)
	det := alert.NewDetector()
	eventSink := notify.NewEventSink(broker, dashboardSvc, time.Second, det)

	reservationSvc := reservation.NewService(reservationRepo, locks, eventSink)

	scanner := alert.NewScanner(det, dashboardRepo, reservationRepo, dashboardRepo, func(ctx context.Context, group, kind string, payload any) {
		broker.Publish(ctx, notify.Event{Group: group, Kind: kind, Payload: payload, OccurredAtUTC: time.Now().UTC()})
	})

	sweep := sweeper.New(reservationRepo, reservationSvc)
	refresher := dashboard.NewRefresher(dashboardSvc, dashboardRepo)

	outboxRelay := relay.New(postgres.NewOutboxRelay(pool.Pool, 100, relay.NewBrokerHandler(broker)))

	var wg sync.WaitGroup
	for _, job := range []func(context.Context){sweep.Run, refresher.Run, scanner.Run, outboxRelay.Run} {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(job)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}
