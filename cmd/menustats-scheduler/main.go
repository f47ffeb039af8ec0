// menustats-scheduler — периодический пересчёт статистики.
//
// Scheduler:
//   - По cron-выражению ставит пересчёт для всех активных ресторанов
//   - При нескольких экземплярах работает только лидер
//     (pg_advisory_lock, только для PostgreSQL)
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/menustats/internal/config"
	"github.com/shaiso/menustats/internal/dispatch"
	"github.com/shaiso/menustats/internal/mq"
	"github.com/shaiso/menustats/internal/repo"
	"github.com/shaiso/menustats/internal/results"
	"github.com/shaiso/menustats/internal/scheduler"
	"github.com/shaiso/menustats/internal/telemetry"
)

// leaderLockKey — ключ pg_advisory_lock для выбора лидера.
const leaderLockKey int64 = 0x6d656e75

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting menustats-scheduler")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// База меню
	sessions, err := repo.Open(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer sessions.Close()
	logger.Info("database connected")

	// Result Store
	store, err := results.Open(ctx, results.Config{URL: cfg.Results.URL, Expires: cfg.Results.Expires})
	if err != nil {
		logger.Error("failed to connect to result store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// RabbitMQ
	mqConn, err := mq.NewConnection(cfg.Broker.URL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected")

	topology := mq.TopologyOptions{ConsumerTimeout: cfg.Worker.VisibilityTimeout()}
	if err := mq.SetupTopology(ctx, mqConn, topology); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}

	dispatcher := dispatch.New(dispatch.Config{
		Broker: mq.NewRabbitBroker(mqConn, logger),
		Store:  store,
		Logger: logger,
	})

	schedCfg := scheduler.Config{
		Sessions: sessions,
		Enqueuer: dispatcher,
		CronExpr: cfg.Scheduler.Cron,
		Timezone: cfg.Scheduler.Timezone,
		Logger:   logger,
	}

	// Leader election только для PostgreSQL
	if pg, ok := sessions.(*repo.PgxSessions); ok {
		lock := pg.AdvisoryLock(leaderLockKey)
		defer lock.Unlock(context.Background())
		schedCfg.Locker = lock
	} else {
		logger.Warn("leader election disabled, run a single scheduler instance")
	}

	sched, err := scheduler.New(schedCfg)
	if err != nil {
		logger.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}

	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.Scheduler.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	logger.Info("menustats-scheduler stopped")
}
