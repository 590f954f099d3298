package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"smartq/queue-service/internal/models"
	"smartq/queue-service/internal/queue"
	"smartq/queue-service/internal/store"

	"go.opentelemetry.io/otel/attribute"
)

type Outcome string

const (
	OutcomeOnTime         Outcome = "on_time"
	OutcomeLateWalkIn     Outcome = "late_walkin"
	OutcomeExpired        Outcome = "expired"
	OutcomeAlreadyArrived Outcome = "already_arrived"
	OutcomeNotCheckable   Outcome = "not_checkable"
)

const (
	// OnTimeWindow is how late an arrival still keeps its slot.
	OnTimeWindow = 15 * time.Minute
	// ExpiryWindow is how late an arrival can still join as a walk-in.
	ExpiryWindow = 60 * time.Minute
)

// Classify decides what a check-in at now means for the appointment. It
// only reads its arguments.
func Classify(appt models.Appointment, now time.Time) Outcome {
	switch appt.Status {
	case models.StatusArrived:
		return OutcomeAlreadyArrived
	case models.StatusBooked:
	default:
		return OutcomeNotCheckable
	}

	delta := appt.ScheduledAt.Sub(now)
	switch {
	case delta < -ExpiryWindow:
		return OutcomeExpired
	case delta >= -OnTimeWindow:
		return OutcomeOnTime
	default:
		return OutcomeLateWalkIn
	}
}

// ConversionError reports a late check-in whose walk-in was created but whose
// appointment could not be marked converted. The walk-in is real and stays.
type ConversionError struct {
	AppointmentID string
	WalkInID      string
	Err           error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("walk-in %s created but appointment %s not converted: %v", e.WalkInID, e.AppointmentID, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

type CheckInResult struct {
	Outcome     Outcome            `json:"outcome"`
	Appointment models.Appointment `json:"appointment"`
	WalkIn      *models.WalkIn     `json:"walkin,omitempty"`
	Entry       *queue.Entry       `json:"queue_entry,omitempty"`
}

// CheckIn verifies the contact against the appointment owner, classifies the
// arrival and applies it. Expired and not-checkable appointments come back
// as errors; an already arrived appointment is a normal result.
func (s *Service) CheckIn(ctx context.Context, ticketCode, rawContact string) (result CheckInResult, err error) {
	ctx, span := s.startSpan(ctx, "CheckIn")
	defer func() { endSpan(span, err) }()

	contact, err := models.ParseContact(rawContact)
	if err != nil {
		return CheckInResult{}, err
	}
	appt, err := s.store.GetAppointmentByCode(ctx, ticketCode)
	if err != nil {
		return CheckInResult{}, err
	}
	user, err := s.store.GetUser(ctx, appt.UserID)
	if err != nil {
		return CheckInResult{}, err
	}
	if !contact.Matches(user) {
		return CheckInResult{}, ErrContactMismatch
	}

	now := s.now()
	outcome := Classify(appt, now)
	span.SetAttributes(
		attribute.String("appointment.id", appt.AppointmentID),
		attribute.String("checkin.outcome", string(outcome)),
	)

	switch outcome {
	case OutcomeAlreadyArrived:
		result = CheckInResult{Outcome: outcome, Appointment: appt}
	case OutcomeNotCheckable:
		return CheckInResult{}, fmt.Errorf("%w: appointment is %s", store.ErrInvalidState, appt.Status)
	case OutcomeExpired:
		return CheckInResult{}, ErrCheckInExpired
	case OutcomeOnTime:
		result, err = s.arrive(ctx, appt, now)
		if err != nil {
			return CheckInResult{}, err
		}
	case OutcomeLateWalkIn:
		result, err = s.convert(ctx, appt, now)
		if err != nil {
			return CheckInResult{}, err
		}
	}

	if q, ok := s.refresh(ctx); ok {
		id := result.Appointment.AppointmentID
		if result.WalkIn != nil {
			id = result.WalkIn.WalkInID
		}
		result.Entry = findEntry(q, id)
	}
	return result, nil
}

func (s *Service) arrive(ctx context.Context, appt models.Appointment, now time.Time) (CheckInResult, error) {
	updated, err := s.store.UpdateAppointmentStatus(ctx, store.StatusUpdate{
		ID:   appt.AppointmentID,
		From: store.FromStatuses(models.KindAppointment, store.ActionCheckIn),
		To:   models.StatusArrived,
		At:   now,
	})
	if err == nil {
		s.logger.InfoContext(ctx, "appointment checked in", "appointment_id", appt.AppointmentID, "ticket_code", appt.TicketCode)
		return CheckInResult{Outcome: OutcomeOnTime, Appointment: updated}, nil
	}
	if !errors.Is(err, store.ErrStaleState) {
		return CheckInResult{}, err
	}
	return s.afterLostRace(ctx, appt.AppointmentID)
}

// afterLostRace reports what a concurrent writer left behind: a second
// check-in that lost to the first is just already arrived.
func (s *Service) afterLostRace(ctx context.Context, appointmentID string) (CheckInResult, error) {
	current, err := s.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return CheckInResult{}, err
	}
	if current.Status == models.StatusArrived {
		return CheckInResult{Outcome: OutcomeAlreadyArrived, Appointment: current}, nil
	}
	return CheckInResult{}, fmt.Errorf("%w: appointment is %s", store.ErrStaleState, current.Status)
}

func (s *Service) convert(ctx context.Context, appt models.Appointment, now time.Time) (CheckInResult, error) {
	if converter, ok := s.store.(store.Converter); ok {
		walkIn, updated, err := converter.ConvertAppointment(ctx, store.ConvertInput{
			AppointmentID: appt.AppointmentID,
			UserID:        appt.UserID,
			At:            now,
		})
		if err != nil {
			if errors.Is(err, store.ErrStaleState) {
				return s.afterLostRace(ctx, appt.AppointmentID)
			}
			return CheckInResult{}, err
		}
		s.logConversion(ctx, updated, walkIn)
		return CheckInResult{Outcome: OutcomeLateWalkIn, Appointment: updated, WalkIn: &walkIn}, nil
	}

	walkIn, err := s.store.CreateWalkIn(ctx, store.CreateWalkInInput{
		UserID:                appt.UserID,
		CheckInAt:             now,
		OriginalAppointmentID: appt.AppointmentID,
	})
	if err != nil {
		return CheckInResult{}, err
	}
	updated, err := s.store.UpdateAppointmentStatus(ctx, store.StatusUpdate{
		ID:   appt.AppointmentID,
		From: store.FromStatuses(models.KindAppointment, store.ActionConvert),
		To:   models.StatusConverted,
		At:   now,
	})
	if err != nil {
		convErr := &ConversionError{AppointmentID: appt.AppointmentID, WalkInID: walkIn.WalkInID, Err: err}
		s.logger.ErrorContext(ctx, "late check-in left appointment unconverted",
			"appointment_id", appt.AppointmentID,
			"walkin_id", walkIn.WalkInID,
			"walkin_ticket_code", walkIn.TicketCode,
			"error", err,
		)
		return CheckInResult{}, convErr
	}
	s.logConversion(ctx, updated, walkIn)
	return CheckInResult{Outcome: OutcomeLateWalkIn, Appointment: updated, WalkIn: &walkIn}, nil
}

func (s *Service) logConversion(ctx context.Context, appt models.Appointment, walkIn models.WalkIn) {
	s.logger.InfoContext(ctx, "late appointment converted to walk-in",
		"appointment_id", appt.AppointmentID,
		"walkin_id", walkIn.WalkInID,
		"walkin_ticket_code", walkIn.TicketCode,
	)
}
