package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/hospital-appointment-api/internal/adapters/events"
	"github.com/zatekoja/hospital-appointment-api/internal/api/handlers"
	"github.com/zatekoja/hospital-appointment-api/internal/api/middleware"
	"github.com/zatekoja/hospital-appointment-api/internal/infrastructure/clients/redis"
	"github.com/zatekoja/hospital-appointment-api/internal/infrastructure/observability"
	"github.com/zatekoja/hospital-appointment-api/pkg/config"
)

// The stream server fans booking events out to browsers without touching the
// appointment file, so it can run and scale apart from the API. It needs
// Redis; the in-process bus would never see another process's bookings.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	observability.InitLogger(cfg.OTEL.ServiceName+"-sse", cfg.Server.Env, cfg.Log.Level)
	logger := observability.GetLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	redisClient, err := redis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize Redis client")
	}
	defer redisClient.Close()

	eventBus := events.NewRedisEventBus(redisClient, observability.Component("events"))
	sseHandler := handlers.NewSSEHandler(eventBus, observability.Component("sse"))
	healthHandler := handlers.NewHealthHandler(handlers.ReadyCheck{Name: "redis", Check: redisClient.Ping})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.HandleFunc("GET /ready", healthHandler.Ready)
	mux.HandleFunc("GET /api/appointment/stream", sseHandler.StreamAppointments)
	mux.HandleFunc("GET /api/appointment/stream/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"connected_clients": %d}`, sseHandler.GetClientCount())
	})

	handler := middleware.Chain(mux,
		middleware.CORS(cfg.Server.AllowedOrigins),
		middleware.RequestID,
		middleware.Logging(observability.Component("http")),
	)

	serverAddr := cfg.Server.ServerAddr()
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0, // streams are long lived
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", serverAddr).Msg("SSE server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("SSE server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("SSE server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := eventBus.Close(); err != nil {
		logger.Error().Err(err).Msg("error closing event bus")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during server shutdown")
	}

	logger.Info().Msg("SSE server stopped")
}
