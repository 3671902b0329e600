package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/RoseWrightdev/board-game-relay/internal/config"
	"github.com/RoseWrightdev/board-game-relay/internal/health"
	"github.com/RoseWrightdev/board-game-relay/internal/logging"
	"github.com/RoseWrightdev/board-game-relay/internal/middleware"
	"github.com/RoseWrightdev/board-game-relay/internal/ratelimit"
	"github.com/RoseWrightdev/board-game-relay/internal/relay"
	"github.com/RoseWrightdev/board-game-relay/internal/transport"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// Load .env for local development; try a few likely working directories
	// the same way the teacher's main does when run from different spots.
	envPaths := []string{".env", "../../.env", "../.env"}
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("loaded environment file", "path", path)
			break
		}
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		slog.Error("failed to initialize logger", "error", err)
		os.Exit(1)
	}
	logging.GetLogger().Info("starting board game relay",
		zap.String("port", cfg.Port),
		zap.String("go_env", cfg.GoEnv),
		zap.Int("replay_buffer_size", cfg.ReplayBufferSize),
		zap.Int("max_clients_per_hub", cfg.MaxClientsPerHub),
	)

	dir := relay.NewDirectory(cfg)
	limiter, err := ratelimit.NewRateLimiter(cfg)
	if err != nil {
		slog.Error("failed to build rate limiter", "error", err)
		os.Exit(1)
	}

	var allowedOrigins []string
	if cfg.AllowedOrigins != "" {
		for _, o := range strings.Split(cfg.AllowedOrigins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}
	wsHandler := transport.NewHandler(dir, allowedOrigins)
	healthHandler := health.NewHandler(dir)

	if !cfg.DevelopmentMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())

	corsConfig := cors.DefaultConfig()
	if len(allowedOrigins) > 0 {
		corsConfig.AllowOrigins = allowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	router.GET("/g/:gameId", limiter.ConnectMiddleware(), wsHandler.ServeGame)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		slog.Info("relay server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server stopped unexpectedly", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down relay server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shut down", "error", err)
	}

	dir.Shutdown()
	slog.Info("relay server exited")
}
