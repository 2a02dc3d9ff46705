package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/driftfs/driftfs/internal/api/rest"
	"github.com/driftfs/driftfs/internal/blockmeta"
	"github.com/driftfs/driftfs/internal/cluster"
	"github.com/driftfs/driftfs/internal/config"
	"github.com/driftfs/driftfs/internal/metrics"
)

const (
	requestTimeout  = 10 * time.Second
	shutdownTimeout = 30 * time.Second
)

func main() {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := config.InitLogger(); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer config.Sync()
	logger := config.GetLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cluster state and block metadata
	view := cluster.NewClusterView()
	blocks := blockmeta.NewBlockMap()

	// Heartbeat ingestion and timeout sweep
	heartbeats := cluster.NewHeartbeatMonitor(view, cfg.HeartbeatInterval, cfg.HeartbeatTimeout, logger)
	heartbeats.SetRequireRegistration(cfg.RequireRegistration)

	// Replication monitor with the default placement policy and HTTP dispatch
	monitor := cluster.NewReplicationMonitor(
		view,
		blocks,
		cluster.LeastUsedPlacement{},
		blockmeta.NewHTTPReplicaCreator(nil),
		cfg.ScanInterval,
		logger,
	)
	m := metrics.GetMetrics()
	monitor.SetObservers(m.ObserveScan, m.RecordReplicaRequest)

	// Decommission state machine over the exclude list
	excludes := cluster.NewExcludeListManager(cfg.ExcludeFilePath, logger)
	decommission := cluster.NewDecommissionManager(view, excludes, monitor, logger)
	monitor.SetCompleter(decommission)
	heartbeats.SetRegistrar(decommission)

	// Load the initial exclude set
	if err := decommission.Refresh(ctx); err != nil {
		logger.Error("failed to load exclude list", zap.Error(err))
	}

	heartbeats.Start(ctx)
	monitor.Start(ctx)

	if cfg.WatchExcludeFile {
		go func() {
			err := excludes.Watch(ctx, func() {
				if err := decommission.Refresh(ctx); err != nil {
					logger.Error("exclude list refresh failed", zap.Error(err))
				}
			})
			if err != nil && ctx.Err() == nil {
				logger.Error("exclude file watcher stopped", zap.Error(err))
			}
		}()
	}

	// Export node-state gauges alongside the heartbeat sweep cadence
	go func() {
		ticker := time.NewTicker(cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				counts := make(map[string]int)
				for _, status := range decommission.NodeReport() {
					counts[status.State]++
				}
				m.SetNodeStates(counts)
			}
		}
	}()

	// Reporting API
	router := mux.NewRouter()
	handler := rest.NewClusterHandler(decommission, decommission, heartbeats, blocks)
	handler.RegisterRoutes(router)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	router.Use(rest.LoggingMiddleware)
	router.Use(metrics.MetricsMiddleware)
	router.Use(rest.TimeoutMiddleware(requestTimeout))

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting controller", zap.String("address", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))

	cancel()
	heartbeats.Stop()
	monitor.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
}
