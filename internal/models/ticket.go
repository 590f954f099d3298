package models

import "time"

type Kind string

const (
	KindAppointment Kind = "appointment"
	KindWalkIn      Kind = "walkin"
)

type Appointment struct {
	AppointmentID string    `json:"appointment_id"`
	TicketCode    string    `json:"ticket_code"`
	UserID        string    `json:"user_id"`
	Date          string    `json:"date"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type WalkIn struct {
	WalkInID              string    `json:"walkin_id"`
	TicketCode            string    `json:"ticket_code"`
	UserID                string    `json:"user_id"`
	CheckInAt             time.Time `json:"check_in_at"`
	Status                string    `json:"status"`
	OriginalAppointmentID *string   `json:"original_appointment_id,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Appointment statuses.
const (
	StatusBooked    = "booked"
	StatusArrived   = "arrived"
	StatusServed    = "served"
	StatusNoShow    = "no_show"
	StatusCancelled = "cancelled"
	StatusConverted = "converted_to_walkin"
)

// Walk-in statuses. A walk-in is queued from the moment it is created, so
// there is no separate arrived phase; served and cancelled are shared with
// appointments.
const (
	StatusWaiting = "waiting"
)

// Occupying reports whether an appointment in this status holds its slot.
func Occupying(status string) bool {
	return status == StatusBooked || status == StatusArrived
}
