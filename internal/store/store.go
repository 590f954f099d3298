package store

import (
	"context"
	"encoding/json"
	"time"

	"smartq/queue-service/internal/models"
)

type UserInput struct {
	Name    string
	Contact models.Contact
	At      time.Time
}

type CreateAppointmentInput struct {
	UserID      string
	Date        string
	ScheduledAt time.Time
	CreatedAt   time.Time
}

type CreateWalkInInput struct {
	UserID                string
	CheckInAt             time.Time
	OriginalAppointmentID string
}

// StatusUpdate moves one row to To, but only while its status is still one
// of From. A row that exists in another status yields ErrStaleState.
type StatusUpdate struct {
	ID   string
	From []string
	To   string
	At   time.Time
}

type ClaimInput struct {
	AppointmentID string
	UserID        string
	At            time.Time
}

type ConvertInput struct {
	AppointmentID string
	UserID        string
	At            time.Time
}

type AppointmentFilter struct {
	Statuses []string
	From     time.Time
	To       time.Time
	Date     string
}

type WalkInFilter struct {
	Statuses []string
}

// ActionRecord remembers the outcome of an admin action keyed by the
// caller's request id so a retried request replays instead of acting twice.
type ActionRecord struct {
	Action    string
	RequestID string
	Kind      models.Kind
	TicketID  string
	Result    json.RawMessage
	CreatedAt time.Time
}

type Session struct {
	SessionID string
	UserID    string
	Role      string
	ExpiresAt time.Time
}

type TicketStore interface {
	FindOrCreateUser(ctx context.Context, input UserInput) (models.User, error)
	GetUser(ctx context.Context, userID string) (models.User, error)

	CreateAppointment(ctx context.Context, input CreateAppointmentInput) (models.Appointment, error)
	GetAppointment(ctx context.Context, appointmentID string) (models.Appointment, error)
	GetAppointmentByCode(ctx context.Context, code string) (models.Appointment, error)
	ListAppointments(ctx context.Context, filter AppointmentFilter) ([]models.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, input StatusUpdate) (models.Appointment, error)
	ClaimAppointment(ctx context.Context, input ClaimInput) (models.Appointment, error)

	CreateWalkIn(ctx context.Context, input CreateWalkInInput) (models.WalkIn, error)
	GetWalkIn(ctx context.Context, walkInID string) (models.WalkIn, error)
	GetWalkInByCode(ctx context.Context, code string) (models.WalkIn, error)
	ListWalkIns(ctx context.Context, filter WalkInFilter) ([]models.WalkIn, error)
	UpdateWalkInStatus(ctx context.Context, input StatusUpdate) (models.WalkIn, error)

	FindActionResult(ctx context.Context, action, requestID string) (ActionRecord, bool, error)
	RecordActionResult(ctx context.Context, record ActionRecord) error

	GetSession(ctx context.Context, sessionID string) (Session, error)
}

// Converter is implemented by stores that can turn a late appointment into a
// walk-in as one unit: the appointment moves from booked to
// converted_to_walkin and the walk-in is created, or neither happens.
type Converter interface {
	ConvertAppointment(ctx context.Context, input ConvertInput) (models.WalkIn, models.Appointment, error)
}
