package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	config "taskforge/configs"
	"taskforge/pkg/handlers/shell"
	"taskforge/pkg/host"
	"taskforge/pkg/logger"
	"taskforge/pkg/logstore"
	"taskforge/pkg/queue"
	"taskforge/pkg/registry"
	"taskforge/pkg/resources"
	"taskforge/pkg/storage/postgres"

	"go.uber.org/zap"
)

// main runs the worker process: the Claim Engine and Executor (via
// StartWorkers) plus the Reaper, with an in-process Host (spec.md §4
// "Components"). It does not start the Dispatcher; cmd/scheduler runs that.
// Multiple worker processes may run concurrently against the same
// Postgres store — coordination is via row locks on claim, not leader
// election (spec.md §5 concurrency model).
func main() {
	log, err := logger.Init(logger.DefaultConfig("taskforge-worker"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.LoadConfig()
	log.Info("worker starting up")
	resources.ReportCapacity()

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

	// Concurrency 1 here: the Host is only used for RandomToken and the
	// reaper's timer in this process. Execution capacity comes from
	// StartWorkers' own goroutine pool below, not the Host's pool — a
	// worker process claims and runs jobs directly rather than routing
	// through the Dispatcher's AsyncTrigger (that path is for the
	// leader-elected scheduler process instead, see cmd/scheduler).
	h := host.NewInProcess(ctx, 1)

	engine := queue.New(cfg, store, reg, h, nil, logs, log)

	reaperHandle := engine.StartReaper(h)
	defer reaperHandle.Stop()

	engine.StartWorkers(ctx, cfg.WorkerConcurrency)
	log.Info("worker started", zap.Int("concurrency", cfg.WorkerConcurrency))

	sig := <-sigChan
	log.Info("received shutdown signal", zap.String("signal", sig.String()))

	cancel()
	log.Info("worker shutdown complete")
}
