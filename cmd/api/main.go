package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/hospital-appointment-api/internal/adapters/events"
	"github.com/zatekoja/hospital-appointment-api/internal/adapters/spreadsheet"
	"github.com/zatekoja/hospital-appointment-api/internal/api/handlers"
	"github.com/zatekoja/hospital-appointment-api/internal/api/routes"
	"github.com/zatekoja/hospital-appointment-api/internal/application/services"
	"github.com/zatekoja/hospital-appointment-api/internal/domain/providers"
	"github.com/zatekoja/hospital-appointment-api/internal/infrastructure/clients/redis"
	"github.com/zatekoja/hospital-appointment-api/internal/infrastructure/observability"
	"github.com/zatekoja/hospital-appointment-api/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Server.Env, cfg.Log.Level)
	logger := observability.GetLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("error shutting down OpenTelemetry")
				}
			}()
			logger.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	// Appointment store
	loc, err := cfg.Store.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid store time zone")
	}
	store, err := spreadsheet.NewAppointmentAdapter(cfg.Store.Path,
		spreadsheet.WithSheet(cfg.Store.Sheet),
		spreadsheet.WithLocation(loc),
		spreadsheet.WithReplacePolicy(cfg.Store.ReplaceMaxAttempts, cfg.Store.ReplaceDelay),
		spreadsheet.WithLogger(observability.Component("spreadsheet")),
		spreadsheet.WithMetrics(metrics),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create appointment store")
	}
	if err := store.EnsureInitialized(ctx); err != nil {
		// Append creates the file on demand, so keep serving.
		logger.Error().Err(err).Str("path", store.Path()).Msg("failed to initialize appointment file")
	}
	logger.Info().
		Str("path", store.Path()).
		Int("replace_attempts", cfg.Store.ReplaceMaxAttempts).
		Dur("replace_delay", cfg.Store.ReplaceDelay).
		Msg("appointment store ready")

	// Event bus
	readyChecks := []handlers.ReadyCheck{{Name: "store", Check: store.Ready}}
	eventBus, redisClient := newEventBus(ctx, cfg)
	if redisClient != nil {
		defer redisClient.Close()
		readyChecks = append(readyChecks, handlers.ReadyCheck{Name: "redis", Check: redisClient.Ping})
	}

	appointmentService := services.NewAppointmentService(store, eventBus, metrics)

	router := routes.NewRouter(
		handlers.NewAppointmentHandler(appointmentService, loc),
		handlers.NewSSEHandler(eventBus, observability.Component("sse")),
		handlers.NewHealthHandler(readyChecks...),
		cfg.Server.AllowedOrigins,
		observability.Component("http"),
		metrics,
	)

	serverAddr := cfg.Server.ServerAddr()
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router.SetupRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// A booking may spend several replace delays waiting on a locked file.
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", serverAddr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Closing the bus ends open streams so Shutdown does not wait on them.
	if err := eventBus.Close(); err != nil {
		logger.Error().Err(err).Msg("error closing event bus")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during server shutdown")
	}

	logger.Info().Msg("server stopped")
}

// newEventBus connects to Redis when enabled and falls back to an in-process
// bus otherwise
func newEventBus(ctx context.Context, cfg *config.Config) (providers.EventBus, *redis.Client) {
	logger := observability.Component("events")

	if !cfg.Redis.Enabled {
		logger.Info().Msg("Redis disabled, using in-process event bus")
		return events.NewMemoryEventBus(logger), nil
	}

	client, err := redis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, using in-process event bus")
		return events.NewMemoryEventBus(logger), nil
	}

	logger.Info().Str("addr", cfg.Redis.RedisAddr()).Msg("Redis event bus connected")
	return events.NewRedisEventBus(client, logger), client
}
