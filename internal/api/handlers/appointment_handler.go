package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zatekoja/hospital-appointment-api/internal/domain/entities"
	"github.com/zatekoja/hospital-appointment-api/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/hospital-appointment-api/pkg/errors"
	"github.com/zatekoja/hospital-appointment-api/pkg/timefmt"
)

// maxBookingBody caps the size of a booking request
const maxBookingBody = 1 << 20

// AppointmentService defines the interface for appointment operations
type AppointmentService interface {
	BookAppointment(ctx context.Context, appointment *entities.Appointment) error
	ListAppointments(ctx context.Context) ([]*entities.Appointment, error)
}

// AppointmentHandler handles appointment requests
type AppointmentHandler struct {
	service  AppointmentService
	location *time.Location
}

// NewAppointmentHandler creates a new appointment handler. Times submitted
// without a zone are read in loc.
func NewAppointmentHandler(service AppointmentService, loc *time.Location) *AppointmentHandler {
	if loc == nil {
		loc = time.Local
	}
	return &AppointmentHandler{
		service:  service,
		location: loc,
	}
}

// bookAppointmentRequest is the booking payload. encoding/json matches the
// keys case-insensitively, so "Name" and "name" both bind.
type bookAppointmentRequest struct {
	Name            string  `json:"name"`
	Contact         string  `json:"contact"`
	Gender          string  `json:"gender"`
	AppointmentTime string  `json:"appointmentTime"`
	Problem         string  `json:"problem"`
	Status          *string `json:"status"`
}

func (req bookAppointmentRequest) toEntity(loc *time.Location) (*entities.Appointment, error) {
	appointment := &entities.Appointment{
		Name:    req.Name,
		Contact: req.Contact,
		Gender:  req.Gender,
		Problem: req.Problem,
		Status:  entities.AppointmentStatusWaiting,
	}
	if req.Status != nil {
		appointment.Status = *req.Status
	}

	if raw := strings.TrimSpace(req.AppointmentTime); raw != "" {
		t, ok := timefmt.Parse(raw, loc)
		if !ok {
			return nil, apperrors.NewValidationError(fmt.Sprintf("invalid appointmentTime %q", raw))
		}
		appointment.AppointmentTime = t
	}
	return appointment, nil
}

// BookAppointment handles POST /api/appointment/book
func (h *AppointmentHandler) BookAppointment(w http.ResponseWriter, r *http.Request) {
	var req bookAppointmentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBookingBody)).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	appointment, err := req.toEntity(h.location)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.BookAppointment(r.Context(), appointment); err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeValidation) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		observability.LoggerFromContext(r.Context()).Error().Err(err).Msg("booking failed")
		respondWithError(w, http.StatusInternalServerError, "Failed to save appointment: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Appointment booked successfully!",
	})
}

// ListAppointments handles GET /api/appointment/all
func (h *AppointmentHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	appointments, err := h.service.ListAppointments(r.Context())
	if err != nil {
		observability.LoggerFromContext(r.Context()).Error().Err(err).Msg("listing failed")
		respondWithError(w, http.StatusInternalServerError, "Failed to load appointments: "+err.Error())
		return
	}
	if appointments == nil {
		appointments = []*entities.Appointment{}
	}

	respondWithJSON(w, http.StatusOK, appointments)
}
