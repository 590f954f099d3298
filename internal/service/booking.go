package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"smartq/queue-service/internal/models"
	"smartq/queue-service/internal/schedule"
	"smartq/queue-service/internal/store"

	"go.opentelemetry.io/otel/attribute"
)

type BookInput struct {
	Name    string
	Contact string
	Date    string
	Time    string
}

// BookAppointment validates the requested slot and books it for the person
// identified by the contact. A slot already held by a booked or arrived
// appointment yields store.ErrSlotTaken.
func (s *Service) BookAppointment(ctx context.Context, input BookInput) (appt models.Appointment, err error) {
	ctx, span := s.startSpan(ctx, "BookAppointment")
	defer func() { endSpan(span, err) }()

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return models.Appointment{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	contact, err := models.ParseContact(input.Contact)
	if err != nil {
		return models.Appointment{}, err
	}

	now := s.now()
	scheduledAt, err := schedule.Validate(input.Date, input.Time, s.hours, now)
	if err != nil {
		return models.Appointment{}, err
	}
	span.SetAttributes(attribute.String("appointment.scheduled_at", scheduledAt.Format(time.RFC3339)))

	user, err := s.store.FindOrCreateUser(ctx, store.UserInput{Name: name, Contact: contact, At: now})
	if err != nil {
		return models.Appointment{}, err
	}

	appt, err = s.store.CreateAppointment(ctx, store.CreateAppointmentInput{
		UserID:      user.UserID,
		Date:        scheduledAt.Format(schedule.DateLayout),
		ScheduledAt: scheduledAt,
		CreatedAt:   now,
	})
	if err != nil {
		return models.Appointment{}, err
	}

	s.logger.InfoContext(ctx, "appointment booked",
		"appointment_id", appt.AppointmentID,
		"ticket_code", appt.TicketCode,
		"scheduled_at", appt.ScheduledAt,
	)
	return appt, nil
}
