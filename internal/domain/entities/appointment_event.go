package entities

import (
	"time"

	"github.com/google/uuid"
)

// AppointmentEventType represents the type of appointment event
type AppointmentEventType string

const (
	AppointmentEventTypeBooked AppointmentEventType = "appointment_booked"
)

// AppointmentEvent is broadcast to live listeners after a booking is stored
type AppointmentEvent struct {
	ID          string               `json:"id"`
	EventType   AppointmentEventType `json:"event_type"`
	Timestamp   time.Time            `json:"timestamp"`
	Appointment Appointment          `json:"appointment"`
}

// NewAppointmentEvent creates a new appointment event
func NewAppointmentEvent(eventType AppointmentEventType, appointment Appointment) *AppointmentEvent {
	return &AppointmentEvent{
		ID:          uuid.New().String(),
		EventType:   eventType,
		Timestamp:   time.Now().UTC(),
		Appointment: appointment,
	}
}
