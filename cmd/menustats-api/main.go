// menustats-api — HTTP API аналитики меню.
//
// API:
//   - Ставит пересчёт статистики ресторана в очередь
//   - Отдаёт статус и результат задачи из Result Store
//
// Сам ничего не считает, работу выполняет menustats-worker.
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

	"github.com/shaiso/menustats/internal/api"
	"github.com/shaiso/menustats/internal/config"
	"github.com/shaiso/menustats/internal/dispatch"
	"github.com/shaiso/menustats/internal/mq"
	"github.com/shaiso/menustats/internal/results"
	"github.com/shaiso/menustats/internal/telemetry"
)

var startTime = time.Now()

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting menustats-api")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

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

	dispatcher := dispatch.New(dispatch.Config{
		Broker: mq.NewRabbitBroker(mqConn, logger),
		Store:  store,
		Logger: logger,
	})

	handler := api.NewHandler(api.Config{
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			http.Error(w, "result store unavailable", http.StatusServiceUnavailable)
			return
		}
		if !mqConn.IsConnected() {
			http.Error(w, "broker unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	handler.RegisterRoutes(mux)

	addr := fmt.Sprintf(":%d", cfg.API.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("menustats-api stopped")
}
