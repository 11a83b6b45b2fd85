package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/collabgraph/server/internal/collab"
	"github.com/collabgraph/server/internal/config"
	"github.com/collabgraph/server/internal/logging"
	"github.com/collabgraph/server/internal/middleware"
	"github.com/collabgraph/server/internal/telemetry"
	"github.com/collabgraph/server/internal/ws"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(true, os.Getenv("COLLAB_DEBUG") != "")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	metrics := telemetry.New()
	metrics.SetSink(buildSink(cfg, logger))

	registry := collab.NewRegistry(cfg.DataDir, cfg.GlobalSessionCap, cfg.PerSessionUserCap, metrics, logger)

	var ready atomic.Bool

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origin == cfg.CORSOrigin
		},
	}

	router := mux.NewRouter()
	router.Use(middleware.CORS(cfg.CORSOrigin, logger))

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("recovering"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(metrics.Snapshot())
	}).Methods(http.MethodGet)

	router.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(registry.Sessions())
	}).Methods(http.MethodGet)

	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			http.Error(w, "recovering", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		c := ws.NewConnection(conn, registry, metrics, logger)
		go c.Serve()
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("collabd listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server exited unexpectedly", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("running recovery boot", zap.String("data_dir", cfg.DataDir))
		if err := collab.Boot(registry, cfg.DataDir, logger); err != nil {
			logger.Fatal("recovery boot failed", zap.Error(err))
		}
		ready.Store(true)
		logger.Info("recovery boot complete")
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down", zap.Duration("grace", cfg.ShutdownGrace))
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown did not complete cleanly", zap.Error(err))
	}
	registry.ShutdownAll()
	logger.Info("shutdown complete")
}

// buildSink wires the audit and Valkey sinks configured via environment,
// combining them with MultiSink when both are present. A process with
// neither configured keeps the in-memory Metrics snapshot as its only
// observability surface.
func buildSink(cfg config.Config, logger *zap.Logger) telemetry.EventSink {
	var sinks []telemetry.EventSink

	if cfg.AuditDBPath != "" {
		audit, err := telemetry.OpenAuditSink(cfg.AuditDBPath)
		if err != nil {
			logger.Warn("audit sink disabled", zap.Error(err))
		} else {
			sinks = append(sinks, audit)
		}
	}

	if cfg.ValkeyAddr != "" {
		vk, err := telemetry.NewValkeySink(cfg.ValkeyAddr, cfg.ValkeyStream, logger)
		if err != nil {
			logger.Warn("valkey sink disabled", zap.Error(err))
		} else {
			sinks = append(sinks, vk)
		}
	}

	if len(sinks) == 0 {
		return nil
	}
	return telemetry.NewMultiSink(sinks...)
}
