package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/hospital-appointment-api/internal/domain/entities"
	"github.com/zatekoja/hospital-appointment-api/internal/domain/providers"
	"github.com/zatekoja/hospital-appointment-api/internal/domain/repositories"
	"github.com/zatekoja/hospital-appointment-api/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/hospital-appointment-api/pkg/errors"
)

// publishTimeout bounds how long a booking waits on the event bus
const publishTimeout = 2 * time.Second

// AppointmentService handles appointment booking logic
type AppointmentService struct {
	repo     repositories.AppointmentRepository
	eventBus providers.EventBus
	metrics  *observability.Metrics
}

// NewAppointmentService creates a new appointment service. eventBus and
// metrics may be nil.
func NewAppointmentService(
	repo repositories.AppointmentRepository,
	eventBus providers.EventBus,
	metrics *observability.Metrics,
) *AppointmentService {
	return &AppointmentService{
		repo:     repo,
		eventBus: eventBus,
		metrics:  metrics,
	}
}

// BookAppointment stores appointment and announces it to live listeners
func (s *AppointmentService) BookAppointment(ctx context.Context, appointment *entities.Appointment) error {
	ctx, span := observability.StartSpan(ctx, "AppointmentService.BookAppointment")
	defer span.End()

	if appointment == nil {
		err := apperrors.NewValidationError("appointment is required")
		observability.RecordError(span, err)
		return err
	}

	observability.SetSpanAttributes(span, attribute.String("appointment.status", appointment.Status))

	if err := s.repo.Append(ctx, appointment); err != nil {
		observability.RecordError(span, err)
		observability.LoggerFromContext(ctx).Error().
			Err(err).
			Bool("file_locked", apperrors.IsType(err, apperrors.ErrorTypeBusy)).
			Msg("failed to save appointment")
		return err
	}

	observability.RecordAppointmentBooked(ctx, s.metrics, appointment.Status)
	s.publishBooked(ctx, *appointment)
	return nil
}

// ListAppointments returns every stored appointment in file order
func (s *AppointmentService) ListAppointments(ctx context.Context) ([]*entities.Appointment, error) {
	ctx, span := observability.StartSpan(ctx, "AppointmentService.ListAppointments")
	defer span.End()

	list, err := s.repo.ReadAll(ctx)
	if err != nil {
		observability.RecordError(span, err)
		observability.LoggerFromContext(ctx).Error().Err(err).Msg("failed to load appointments")
		return nil, err
	}
	if list == nil {
		list = []*entities.Appointment{}
	}

	observability.SetSpanAttributes(span, attribute.Int("appointments.count", len(list)))
	return list, nil
}

// publishBooked is best effort; the booking is already durable
func (s *AppointmentService) publishBooked(ctx context.Context, appointment entities.Appointment) {
	if s.eventBus == nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	event := entities.NewAppointmentEvent(entities.AppointmentEventTypeBooked, appointment)
	if err := s.eventBus.Publish(pubCtx, providers.EventChannelAppointmentsBooked, event); err != nil {
		observability.LoggerFromContext(ctx).Warn().
			Err(err).
			Str("event_id", event.ID).
			Msg("failed to publish appointment event")
	}
}
