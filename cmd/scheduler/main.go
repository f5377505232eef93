package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	config "taskforge/configs"
	"taskforge/pkg/coordination/etcd"
	"taskforge/pkg/handlers/shell"
	"taskforge/pkg/host"
	"taskforge/pkg/logger"
	"taskforge/pkg/logstore"
	"taskforge/pkg/queue"
	"taskforge/pkg/registry"
	"taskforge/pkg/storage/postgres"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// main runs the leader-elected Dispatcher and Reaper (spec.md §4.5-§4.6,
// §5 concurrency model). Running these under an election is an efficiency
// optimization, not a correctness requirement — both operations are
// idempotent and safe to run from multiple processes — but a single
// elected leader avoids redundant dispatch sweeps and pruning scans across
// a fleet. The Dispatcher hands each due job to this process's own Host,
// which claims and executes it, so the scheduler carries the same Handler Registry
// as cmd/worker; plain cmd/worker replicas add execution capacity on top
// by claiming directly, independent of leadership.
func main() {
	log, err := logger.Init(logger.DefaultConfig("taskforge-scheduler"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.LoadConfig()
	log.Info("scheduler starting up")

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

	etcdCoord, err := etcd.NewEtcdCoordinator(cfg.EtcdEndpoints, cfg.LeaderElectionTTL)
	if err != nil {
		log.Fatal("failed to connect to etcd", zap.Error(err))
	}
	defer etcdCoord.Close()
	log.Info("etcd connected")

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "scheduler-" + uuid.New().String()
	}
	election := etcdCoord.NewElection("taskforge-leader")

	log.Info("campaigning for leadership", zap.String("candidate", hostname))
	if err := election.Campaign(ctx, hostname); err != nil {
		log.Fatal("election campaign failed", zap.Error(err))
	}
	log.Info("elected leader")

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

	h := host.NewInProcess(ctx, cfg.WorkerConcurrency)
	engine := queue.New(cfg, store, reg, h, nil, logs, log)

	dispatcherHandle := engine.StartDispatcher(h)
	defer dispatcherHandle.Stop()

	reaperHandle := engine.StartReaper(h)
	defer reaperHandle.Stop()

	log.Info("dispatcher and reaper running")

	sig := <-sigChan
	log.Info("received shutdown signal", zap.String("signal", sig.String()))

	cancel()

	if err := election.Resign(context.Background()); err != nil {
		log.Warn("failed to resign leadership", zap.Error(err))
	} else {
		log.Info("leadership resigned")
	}

	log.Info("scheduler shutdown complete")
}
