package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "taskforge/configs"
	"taskforge/pkg/api"
	"taskforge/pkg/auth"
	"taskforge/pkg/handlers/shell"
	"taskforge/pkg/host"
	"taskforge/pkg/logger"
	"taskforge/pkg/logstore"
	"taskforge/pkg/queue"
	"taskforge/pkg/registry"
	"taskforge/pkg/storage/postgres"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// main runs the Producer/Admin HTTP API (spec.md §6.4). It shares the same
// Engine construction as the worker process but never calls StartWorkers —
// this process only enqueues and inspects jobs, it never claims or
// executes them.
func main() {
	log, err := logger.Init(logger.DefaultConfig("taskforge-api"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.LoadConfig()
	log.Info("api starting up")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	connStr := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)
	store, err := postgres.New(connStr)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer store.Close()
	log.Info("postgres connected")

	logDir := os.Getenv("LOG_STORE_DIR")
	if logDir == "" {
		logDir = "./job-logs"
	}
	logs, err := logstore.NewLocalStore(logDir)
	if err != nil {
		log.Fatal("failed to initialize log store", zap.Error(err))
	}

	reg := registry.New()
	reg.Register("shell.command", shell.New(logs, log))

	h := host.NewInProcess(ctx, 1)
	engine := queue.New(cfg, store, reg, h, nil, logs, log)

	var jwtService *auth.JWTService
	var apiKeyStore auth.APIKeyStore
	if cfg.AuthEnabled {
		jwtCfg := auth.DefaultJWTConfig()
		if cfg.JWTSecret != "" {
			jwtCfg.SecretKey = cfg.JWTSecret
		}
		if cfg.JWTIssuer != "" {
			jwtCfg.Issuer = cfg.JWTIssuer
		}
		jwtService, err = auth.NewJWTService(jwtCfg)
		if err != nil {
			log.Fatal("failed to initialize jwt service", zap.Error(err))
		}

		redisClient := goredis.NewClient(&goredis.Options{
			Addr: fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		})
		apiKeyStore = auth.NewRedisAPIKeyStore(redisClient)
		log.Info("auth enabled", zap.Bool("jwt", true), zap.Bool("api_key", true))
	}

	server := api.NewServer(api.Config{
		Port:        cfg.APIPort,
		Engine:      engine,
		JWTService:  jwtService,
		APIKeyStore: apiKeyStore,
		AuthEnabled: cfg.AuthEnabled,
		Logger:      log,
	})

	go func() {
		if err := server.Start(); err != nil {
			log.Error("server error", zap.Error(err))
		}
	}()
	log.Info("api server started", zap.String("port", cfg.APIPort))

	sig := <-sigChan
	log.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}

	cancel()
	log.Info("api shutdown complete")
}
