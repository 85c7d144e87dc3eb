package routes

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/zatekoja/hospital-appointment-api/internal/api/handlers"
	"github.com/zatekoja/hospital-appointment-api/internal/api/middleware"
	"github.com/zatekoja/hospital-appointment-api/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	appointmentHandler *handlers.AppointmentHandler
	sseHandler         *handlers.SSEHandler
	healthHandler      *handlers.HealthHandler

	allowedOrigins []string
	logger         zerolog.Logger
	metrics        *observability.Metrics
}

// NewRouter creates a new router. sseHandler may be nil, in which case the
// stream route is not registered.
func NewRouter(
	appointmentHandler *handlers.AppointmentHandler,
	sseHandler *handlers.SSEHandler,
	healthHandler *handlers.HealthHandler,
	allowedOrigins []string,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:                http.NewServeMux(),
		appointmentHandler: appointmentHandler,
		sseHandler:         sseHandler,
		healthHandler:      healthHandler,
		allowedOrigins:     allowedOrigins,
		logger:             logger,
		metrics:            metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", r.healthHandler.Health)
	r.mux.HandleFunc("GET /ready", r.healthHandler.Ready)

	// Appointment endpoints
	r.mux.HandleFunc("POST /api/appointment/book", r.appointmentHandler.BookAppointment)
	r.mux.Handle("GET /api/appointment/all",
		middleware.Compression(middleware.ETag(http.HandlerFunc(r.appointmentHandler.ListAppointments))))

	if r.sseHandler != nil {
		r.mux.HandleFunc("GET /api/appointment/stream", r.sseHandler.StreamAppointments)
	}

	// CORS is outermost so preflights and errors carry the headers too.
	return middleware.Chain(r.mux,
		middleware.CORS(r.allowedOrigins),
		middleware.RequestID,
		middleware.Logging(r.logger),
		middleware.Observability(r.metrics),
	)
}
