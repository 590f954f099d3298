package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"smartq/queue-service/internal/models"
	"smartq/queue-service/internal/queue"
	"smartq/queue-service/internal/schedule"
	"smartq/queue-service/internal/store"

	"go.opentelemetry.io/otel/attribute"
)

// Request ids of these actions are recorded so a retry replays the first
// answer instead of serving another ticket.
const (
	actionCallNext   = "call_next"
	actionMarkServed = "mark_served"
)

// Ticket is either kind of ticket as returned by staff actions.
type Ticket struct {
	Kind        models.Kind         `json:"kind"`
	Appointment *models.Appointment `json:"appointment,omitempty"`
	WalkIn      *models.WalkIn      `json:"walkin,omitempty"`
}

type ServeResult struct {
	Served   queue.Entry `json:"served"`
	Queue    queue.Queue `json:"queue"`
	Replayed bool        `json:"replayed"`
}

type SweepResult struct {
	Cutoff time.Time            `json:"cutoff"`
	Marked []models.Appointment `json:"marked"`
}

func ParseKind(raw string) (models.Kind, error) {
	switch models.Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case models.KindAppointment:
		return models.KindAppointment, nil
	case models.KindWalkIn:
		return models.KindWalkIn, nil
	default:
		return "", fmt.Errorf("%w: kind must be appointment or walkin", ErrInvalidInput)
	}
}

// MarkArrived puts a booked or no-show appointment into the queue. Walk-ins
// are queued from registration, so marking one arrived is a conflict.
func (s *Service) MarkArrived(ctx context.Context, kind models.Kind, id string) (appt models.Appointment, err error) {
	ctx, span := s.startSpan(ctx, "MarkArrived")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("ticket.kind", string(kind)), attribute.String("ticket.id", id))

	switch kind {
	case models.KindWalkIn:
		walkIn, err := s.store.GetWalkIn(ctx, id)
		if err != nil {
			return models.Appointment{}, err
		}
		return models.Appointment{}, fmt.Errorf("%w: walk-in is %s", store.ErrInvalidState, walkIn.Status)
	case models.KindAppointment:
	default:
		return models.Appointment{}, fmt.Errorf("%w: kind must be appointment or walkin", ErrInvalidInput)
	}

	appt, err = s.store.UpdateAppointmentStatus(ctx, store.StatusUpdate{
		ID:   id,
		From: store.FromStatuses(models.KindAppointment, store.ActionArrive),
		To:   models.StatusArrived,
		At:   s.now(),
	})
	if err != nil {
		return models.Appointment{}, s.describeConflict(ctx, models.KindAppointment, id, err)
	}
	s.logger.InfoContext(ctx, "appointment marked arrived", "appointment_id", appt.AppointmentID, "ticket_code", appt.TicketCode)
	s.refresh(ctx)
	return appt, nil
}

// CallNext serves the ticket at the head of the queue; the next one becomes
// now serving by re-projection.
func (s *Service) CallNext(ctx context.Context, requestID string) (result ServeResult, err error) {
	ctx, span := s.startSpan(ctx, "CallNext")
	defer func() { endSpan(span, err) }()
	return s.serveHead(ctx, actionCallNext, requestID, ErrEmptyQueue)
}

// MarkServed finishes the ticket now being served without calling anyone.
func (s *Service) MarkServed(ctx context.Context, requestID string) (result ServeResult, err error) {
	ctx, span := s.startSpan(ctx, "MarkServed")
	defer func() { endSpan(span, err) }()
	return s.serveHead(ctx, actionMarkServed, requestID, ErrNothingServing)
}

func (s *Service) serveHead(ctx context.Context, action, requestID string, emptyErr error) (ServeResult, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID != "" {
		record, found, err := s.store.FindActionResult(ctx, action, requestID)
		if err != nil {
			return ServeResult{}, err
		}
		if found {
			var replay ServeResult
			if err := json.Unmarshal(record.Result, &replay); err != nil {
				return ServeResult{}, fmt.Errorf("decode recorded %s result: %w", action, err)
			}
			replay.Replayed = true
			return replay, nil
		}
	}

	before, err := s.GetQueue(ctx)
	if err != nil {
		return ServeResult{}, err
	}
	head, ok := before.Head()
	if !ok {
		return ServeResult{}, emptyErr
	}

	update := store.StatusUpdate{
		ID:   head.ID,
		From: store.FromStatuses(head.Kind, store.ActionServe),
		To:   models.StatusServed,
		At:   s.now(),
	}
	switch head.Kind {
	case models.KindAppointment:
		_, err = s.store.UpdateAppointmentStatus(ctx, update)
	default:
		_, err = s.store.UpdateWalkInStatus(ctx, update)
	}
	if err != nil {
		if errors.Is(err, store.ErrStaleState) {
			return ServeResult{}, fmt.Errorf("%w: %s was served by another request", store.ErrStaleState, head.TicketCode)
		}
		return ServeResult{}, err
	}

	after, ok := s.refresh(ctx)
	if !ok {
		after = queue.Queue{Entries: []queue.Entry{}}
	}
	result := ServeResult{Served: head, Queue: after}
	s.logger.InfoContext(ctx, "ticket served",
		"action", action,
		"kind", head.Kind,
		"ticket_id", head.ID,
		"ticket_code", head.TicketCode,
		"request_id", requestID,
	)

	if requestID != "" {
		payload, err := json.Marshal(result)
		if err != nil {
			return ServeResult{}, err
		}
		if err := s.store.RecordActionResult(ctx, store.ActionRecord{
			Action:    action,
			RequestID: requestID,
			Kind:      head.Kind,
			TicketID:  head.ID,
			Result:    payload,
			CreatedAt: update.At,
		}); err != nil {
			s.logger.WarnContext(ctx, "failed to record action result", "action", action, "request_id", requestID, "error", err)
		}
	}
	return result, nil
}

// Cancel withdraws a booked or arrived appointment, or a waiting walk-in.
func (s *Service) Cancel(ctx context.Context, kind models.Kind, id string) (ticket Ticket, err error) {
	ctx, span := s.startSpan(ctx, "Cancel")
	defer func() { endSpan(span, err) }()

	update := store.StatusUpdate{
		ID:   id,
		From: store.FromStatuses(kind, store.ActionCancel),
		To:   models.StatusCancelled,
		At:   s.now(),
	}
	switch kind {
	case models.KindAppointment:
		appt, err := s.store.UpdateAppointmentStatus(ctx, update)
		if err != nil {
			return Ticket{}, s.describeConflict(ctx, kind, id, err)
		}
		ticket = Ticket{Kind: kind, Appointment: &appt}
	case models.KindWalkIn:
		walkIn, err := s.store.UpdateWalkInStatus(ctx, update)
		if err != nil {
			return Ticket{}, s.describeConflict(ctx, kind, id, err)
		}
		ticket = Ticket{Kind: kind, WalkIn: &walkIn}
	default:
		return Ticket{}, fmt.Errorf("%w: kind must be appointment or walkin", ErrInvalidInput)
	}

	s.logger.InfoContext(ctx, "ticket cancelled", "kind", kind, "ticket_id", id)
	s.refresh(ctx)
	return ticket, nil
}

// MarkNoShow closes a booked appointment whose holder never came.
func (s *Service) MarkNoShow(ctx context.Context, appointmentID string) (appt models.Appointment, err error) {
	ctx, span := s.startSpan(ctx, "MarkNoShow")
	defer func() { endSpan(span, err) }()

	appt, err = s.store.UpdateAppointmentStatus(ctx, store.StatusUpdate{
		ID:   appointmentID,
		From: store.FromStatuses(models.KindAppointment, store.ActionNoShow),
		To:   models.StatusNoShow,
		At:   s.now(),
	})
	if err != nil {
		return models.Appointment{}, s.describeConflict(ctx, models.KindAppointment, appointmentID, err)
	}
	s.logger.InfoContext(ctx, "appointment marked no-show", "appointment_id", appt.AppointmentID)
	return appt, nil
}

// SweepNoShows marks every booked appointment that is past the check-in
// expiry window as no-show. Appointments changed concurrently are skipped.
func (s *Service) SweepNoShows(ctx context.Context) (result SweepResult, err error) {
	ctx, span := s.startSpan(ctx, "SweepNoShows")
	defer func() { endSpan(span, err) }()

	now := s.now()
	cutoff := now.Add(-ExpiryWindow)
	stale, err := s.store.ListAppointments(ctx, store.AppointmentFilter{
		Statuses: store.FromStatuses(models.KindAppointment, store.ActionNoShow),
		To:       cutoff.Add(-time.Nanosecond),
	})
	if err != nil {
		return SweepResult{}, err
	}

	result = SweepResult{Cutoff: cutoff, Marked: []models.Appointment{}}
	for _, appt := range stale {
		updated, err := s.store.UpdateAppointmentStatus(ctx, store.StatusUpdate{
			ID:   appt.AppointmentID,
			From: []string{models.StatusBooked},
			To:   models.StatusNoShow,
			At:   now,
		})
		if err != nil {
			if errors.Is(err, store.ErrStaleState) {
				continue
			}
			return SweepResult{}, err
		}
		result.Marked = append(result.Marked, updated)
	}
	span.SetAttributes(attribute.Int("sweep.marked", len(result.Marked)))
	if len(result.Marked) > 0 {
		s.logger.InfoContext(ctx, "no-show sweep", "marked", len(result.Marked), "cutoff", cutoff)
	}
	return result, nil
}

// describeConflict adds the ticket's current status to a stale-state error.
func (s *Service) describeConflict(ctx context.Context, kind models.Kind, id string, err error) error {
	if !errors.Is(err, store.ErrStaleState) {
		return err
	}
	var status string
	switch kind {
	case models.KindAppointment:
		appt, getErr := s.store.GetAppointment(ctx, id)
		if getErr != nil {
			return err
		}
		status = appt.Status
	case models.KindWalkIn:
		walkIn, getErr := s.store.GetWalkIn(ctx, id)
		if getErr != nil {
			return err
		}
		status = walkIn.Status
	default:
		return err
	}
	return fmt.Errorf("%w: %s is %s", err, kind, status)
}

// ListAppointments returns every appointment on the date in slot order.
func (s *Service) ListAppointments(ctx context.Context, date string) ([]models.Appointment, error) {
	date = strings.TrimSpace(date)
	if _, err := time.Parse(schedule.DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: date must be formatted as YYYY-MM-DD", ErrInvalidInput)
	}
	appts, err := s.store.ListAppointments(ctx, store.AppointmentFilter{Date: date})
	if err != nil {
		return nil, err
	}
	if appts == nil {
		appts = []models.Appointment{}
	}
	return appts, nil
}
