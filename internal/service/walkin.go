package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"smartq/queue-service/internal/models"
	"smartq/queue-service/internal/queue"
	"smartq/queue-service/internal/store"

	"go.opentelemetry.io/otel/attribute"
)

type ClaimOutcome string

const (
	OutcomeSlotClaimed   ClaimOutcome = "slot_claimed"
	OutcomeWalkInCreated ClaimOutcome = "walkin_created"
)

// ClaimWindow is how far either side of now an unclaimed booking can be
// taken over by a walk-in.
const ClaimWindow = 15 * time.Minute

type WalkInResult struct {
	Outcome     ClaimOutcome        `json:"outcome"`
	Appointment *models.Appointment `json:"appointment,omitempty"`
	WalkIn      *models.WalkIn      `json:"walkin,omitempty"`
	Entry       *queue.Entry        `json:"queue_entry,omitempty"`
}

// RegisterWalkIn gives an unscheduled arrival the earliest still-booked slot
// near now, or a plain walk-in ticket when every nearby slot is taken.
func (s *Service) RegisterWalkIn(ctx context.Context, name, rawContact string) (result WalkInResult, err error) {
	ctx, span := s.startSpan(ctx, "RegisterWalkIn")
	defer func() { endSpan(span, err) }()

	name = strings.TrimSpace(name)
	if name == "" {
		return WalkInResult{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	contact, err := models.ParseContact(rawContact)
	if err != nil {
		return WalkInResult{}, err
	}

	now := s.now()
	user, err := s.store.FindOrCreateUser(ctx, store.UserInput{Name: name, Contact: contact, At: now})
	if err != nil {
		return WalkInResult{}, err
	}

	result, err = s.claimOrCreate(ctx, user, now)
	if err != nil {
		return WalkInResult{}, err
	}
	span.SetAttributes(attribute.String("walkin.outcome", string(result.Outcome)))

	if q, ok := s.refresh(ctx); ok {
		if result.Appointment != nil {
			result.Entry = findEntry(q, result.Appointment.AppointmentID)
		} else if result.WalkIn != nil {
			result.Entry = findEntry(q, result.WalkIn.WalkInID)
		}
	}
	return result, nil
}

func (s *Service) claimOrCreate(ctx context.Context, user models.User, now time.Time) (WalkInResult, error) {
	candidates, err := s.store.ListAppointments(ctx, store.AppointmentFilter{
		Statuses: store.FromStatuses(models.KindAppointment, store.ActionClaim),
		From:     now.Add(-ClaimWindow),
		To:       now.Add(ClaimWindow),
	})
	if err != nil {
		return WalkInResult{}, err
	}

	for _, candidate := range candidates {
		claimed, err := s.store.ClaimAppointment(ctx, store.ClaimInput{
			AppointmentID: candidate.AppointmentID,
			UserID:        user.UserID,
			At:            now,
		})
		if err == nil {
			s.logger.InfoContext(ctx, "walk-in claimed open slot",
				"appointment_id", claimed.AppointmentID,
				"ticket_code", claimed.TicketCode,
				"user_id", user.UserID,
			)
			return WalkInResult{Outcome: OutcomeSlotClaimed, Appointment: &claimed}, nil
		}
		if errors.Is(err, store.ErrStaleState) || errors.Is(err, store.ErrAppointmentNotFound) || errors.Is(err, store.ErrSlotTaken) {
			continue
		}
		return WalkInResult{}, err
	}

	walkIn, err := s.store.CreateWalkIn(ctx, store.CreateWalkInInput{UserID: user.UserID, CheckInAt: now})
	if err != nil {
		return WalkInResult{}, err
	}
	s.logger.InfoContext(ctx, "walk-in registered", "walkin_id", walkIn.WalkInID, "ticket_code", walkIn.TicketCode)
	return WalkInResult{Outcome: OutcomeWalkInCreated, WalkIn: &walkIn}, nil
}
