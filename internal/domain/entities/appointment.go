package entities

import (
	"time"
)

// AppointmentStatusWaiting is stored when a booking request omits the status
const AppointmentStatusWaiting = "Waiting"

// AppointmentColumns is the header row of the appointment sheet, in cell order
var AppointmentColumns = []string{"Name", "Contact", "Gender", "AppointmentTime", "Problem", "Status"}

// Appointment represents one booked appointment row
type Appointment struct {
	Name            string    `json:"name"`
	Contact         string    `json:"contact"`
	Gender          string    `json:"gender"`
	AppointmentTime time.Time `json:"appointmentTime"`
	Problem         string    `json:"problem"`
	Status          string    `json:"status"`
}
