package repositories

import (
	"context"

	"github.com/zatekoja/hospital-appointment-api/internal/domain/entities"
)

// AppointmentRepository defines the interface for appointment data operations
type AppointmentRepository interface {
	// EnsureInitialized creates the backing store with its header if it is missing
	EnsureInitialized(ctx context.Context) error

	// Append stores a new appointment after every existing one
	Append(ctx context.Context, appointment *entities.Appointment) error

	// ReadAll returns every stored appointment, oldest first
	ReadAll(ctx context.Context) ([]*entities.Appointment, error)
}
