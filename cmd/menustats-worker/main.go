// menustats-worker — выполняет tasks из очереди.
//
// Worker:
//   - Получает tasks из RabbitMQ
//   - Считает статистику меню ресторана
//   - Повторяет упавшие tasks с exponential backoff
//   - Пишет статус и результат в Result Store
//
// Workers масштабируются горизонтально.
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

	"github.com/shaiso/menustats/internal/analytics"
	"github.com/shaiso/menustats/internal/config"
	"github.com/shaiso/menustats/internal/mq"
	"github.com/shaiso/menustats/internal/repo"
	"github.com/shaiso/menustats/internal/results"
	"github.com/shaiso/menustats/internal/telemetry"
	"github.com/shaiso/menustats/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting menustats-worker")

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
	logger.Info("result store connected")

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
	logger.Debug("topology ready", "info", mq.TopologyInfo())

	registry := worker.NewRegistry()
	analytics.Register(registry, sessions, logger)

	pool := worker.New(worker.Config{
		Broker:          mq.NewRabbitBroker(mqConn, logger),
		Store:           store,
		Registry:        registry,
		Concurrency:     cfg.Worker.Concurrency,
		Prefetch:        cfg.Worker.Prefetch,
		MaxRetries:      cfg.Worker.MaxRetries,
		MaxRedeliveries: cfg.Worker.MaxRedeliveries,
		SoftTimeLimit:   cfg.Worker.SoftTimeLimit(),
		HardTimeLimit:   cfg.Worker.HardTimeLimit(),
		BackoffBase:     cfg.Worker.BackoffBase(),
		BackoffMax:      cfg.Worker.BackoffMax(),
		Logger:          logger,
	})

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !mqConn.IsConnected() {
			http.Error(w, "broker unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.Worker.MetricsPort)
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

	// Блокируемся до сигнала завершения
	if err := pool.Run(ctx); err != nil {
		logger.Error("worker pool failed", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	logger.Info("menustats-worker stopped")
}
