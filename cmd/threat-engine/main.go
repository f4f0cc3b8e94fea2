package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"

	"github.com/mr1hm/go-threat-telemetry/internal/api"
	"github.com/mr1hm/go-threat-telemetry/internal/classifier"
	"github.com/mr1hm/go-threat-telemetry/internal/config"
	"github.com/mr1hm/go-threat-telemetry/internal/engine"
	"github.com/mr1hm/go-threat-telemetry/internal/logging"
	"github.com/mr1hm/go-threat-telemetry/internal/observability"
	"github.com/mr1hm/go-threat-telemetry/internal/repository"
	"github.com/mr1hm/go-threat-telemetry/internal/stream"
	"github.com/mr1hm/go-threat-telemetry/internal/upstream"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"upstream", cfg.Upstream.URL,
		"stream", cfg.Upstream.StreamURL,
	)

	// alert log lives for the life of the process only
	db, err := repository.NewSQLiteDB(":memory:")
	if err != nil {
		logging.Fatalf("Failed to initialize alert log: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewRealClock()
	hub := stream.NewHub()
	metrics := observability.NewMetrics()

	agg := engine.New(ctx, engine.Deps{
		Config:  cfg,
		Remote:  upstream.NewClient(cfg.Upstream.URL, cfg.Upstream.Timeout, clock),
		Alerts:  db,
		Hub:     hub,
		Metrics: metrics,
		Clock:   clock,
		Anchors: classifier.NuclearPlants,
	})

	if cfg.Server.AutoConnect {
		if err := agg.Enable(ctx); err != nil {
			slog.Warn("auto-connect without telemetry stream", "error", err)
		}
	}

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimitRPS))

	handler := api.NewHandler(agg, hub)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	hub.Close() // end SSE streams so Shutdown does not wait on them

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	agg.Close()
	cancel()

	slog.Info("shutdown complete")
}
