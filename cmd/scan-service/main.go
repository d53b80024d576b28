package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-checkin/internal/config"
	"ms-checkin/internal/database/migrations"
	"ms-checkin/internal/events"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/printer"
	"ms-checkin/internal/relay"
	"ms-checkin/internal/scan_api"
	"ms-checkin/internal/scanner"
	"ms-checkin/internal/settings"
	"ms-checkin/internal/store"
	"ms-checkin/internal/validation"
)

func openStore(cfg *config.Config, log *logger.Logger) *bun.DB {
	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open Postgres: %v", err))
	}
	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to Postgres: %v", err))
	}
	log.Info("DATABASE", "Postgres connection successful")

	return bun.NewDB(sqldb, pgdialect.New())
}

func openRedis(cfg *config.Config, log *logger.Logger) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		PoolSize: 10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		// The kiosk works without the cache; settings reads just hit the
		// store directly.
		log.Warn("REDIS", fmt.Sprintf("Redis unavailable at %s, running without settings cache: %v", cfg.Redis.Addr, err))
		return nil
	}

	log.Info("REDIS", fmt.Sprintf("Connected to Redis at %s", cfg.Redis.Addr))
	return client
}

func main() {
	_ = godotenv.Load() // Loads .env file if present

	cfg := config.Load()
	log := logger.NewLogger()
	defer log.Close()

	bunDB := openStore(cfg, log)
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
		if err := runner.RunMigrations(); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
		}
	}

	db := &store.DB{Bun: bunDB}

	redisClient := openRedis(cfg, log)
	settingsSource := settings.NewSource(db, redisClient, cfg.Redis.SettingsTTL, log)

	agent := printer.NewAgent(cfg.PrintAgent.BaseURL, cfg.PrintAgent.Token, cfg.PrintAgent.HealthTimeout, log)
	agent.HTTP.Timeout = cfg.PrintAgent.PrintTimeout

	var receiptPrinter scanner.ReceiptPrinter
	if cfg.PrintAgent.Enabled {
		receiptPrinter = &printer.ScanReceiptPrinter{Agent: agent, Settings: settingsSource, Log: log}
	}

	orchestrator := scanner.NewOrchestrator(
		validation.NewService(db),
		db,
		relay.NewTrigger(cfg.Relay.URL, cfg.Relay.Timeout),
		receiptPrinter,
		log,
	)
	orchestrator.Cooldown = cfg.Scanner.Cooldown
	orchestrator.FlashDuration = cfg.Scanner.FlashDuration
	orchestrator.HistorySize = cfg.Scanner.HistorySize

	if cfg.Kafka.Enabled {
		producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		orchestrator.Events = producer
		log.LogKafka("INIT", cfg.Kafka.Topic, "scan event streaming enabled")
	}

	handler := &scan_api.Handler{
		Orchestrator: orchestrator,
		Store:        db,
		Settings:     settingsSource,
		Log:          log,
		AdminSecret:  cfg.Auth.AdminSecret,
	}

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", fmt.Sprintf("🚀 Scan service on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", fmt.Sprintf("HTTP error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctxShutdown)

	// Let the relay call and any in-flight receipt finish before exit.
	orchestrator.Quiesce()
	log.Info("SERVER", "✅ Scan service shutdown complete")
}
