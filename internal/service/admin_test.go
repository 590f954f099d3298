package service

import (
	"context"
	"errors"
	"testing"

	"smartq/queue-service/internal/models"
	"smartq/queue-service/internal/store"
	"smartq/queue-service/internal/store/memory"

	"github.com/google/uuid"
)

// queueOfThree books 10:00, 10:15 and 10:30 and checks all three in at 09:50.
func queueOfThree(t *testing.T) (*Service, *clock, []models.Appointment) {
	t.Helper()
	svc, c, _ := newTestService(t, memory.NewStore())
	appts := []models.Appointment{
		book(t, svc, "Ana", "0811111111", "10:00"),
		book(t, svc, "Budi", "0822222222", "10:15"),
		book(t, svc, "Citra", "0833333333", "10:30"),
	}
	c.Set(monday(9, 50))
	for _, appt := range appts {
		if _, err := svc.MarkArrived(context.Background(), models.KindAppointment, appt.AppointmentID); err != nil {
			t.Fatalf("mark arrived: %v", err)
		}
	}
	return svc, c, appts
}

func TestCallNextAdvancesQueue(t *testing.T) {
	svc, _, appts := queueOfThree(t)
	ctx := context.Background()

	before, err := svc.GetQueue(ctx)
	if err != nil {
		t.Fatalf("get queue: %v", err)
	}
	result, err := svc.CallNext(ctx, "")
	if err != nil {
		t.Fatalf("call next: %v", err)
	}
	if result.Served.ID != appts[0].AppointmentID {
		t.Fatalf("expected head served, got %+v", result.Served)
	}
	if len(result.Queue.Entries) != len(before.Entries)-1 {
		t.Fatalf("expected queue to shrink by one, got %d", len(result.Queue.Entries))
	}
	if result.Queue.Entries[0].ID != before.Entries[1].ID {
		t.Fatalf("expected previous second ticket at the head")
	}
	if result.Queue.NowServing == nil || result.Queue.NowServing.EstimatedWait != "now serving" {
		t.Fatalf("unexpected now serving %+v", result.Queue.NowServing)
	}

	served, err := svc.store.GetAppointment(ctx, appts[0].AppointmentID)
	if err != nil || served.Status != models.StatusServed {
		t.Fatalf("expected served appointment, got %+v err=%v", served, err)
	}
}

func TestCallNextEmptyQueue(t *testing.T) {
	svc, _, _ := newTestService(t, memory.NewStore())
	if _, err := svc.CallNext(context.Background(), ""); !errors.Is(err, ErrEmptyQueue) {
		t.Fatalf("expected ErrEmptyQueue, got %v", err)
	}
	if _, err := svc.MarkServed(context.Background(), ""); !errors.Is(err, ErrNothingServing) {
		t.Fatalf("expected ErrNothingServing, got %v", err)
	}
}

func TestCallNextReplaysRequestID(t *testing.T) {
	svc, _, appts := queueOfThree(t)
	ctx := context.Background()
	requestID := uuid.NewString()

	first, err := svc.CallNext(ctx, requestID)
	if err != nil {
		t.Fatalf("call next: %v", err)
	}
	again, err := svc.CallNext(ctx, requestID)
	if err != nil {
		t.Fatalf("replayed call next: %v", err)
	}
	if !again.Replayed || first.Replayed {
		t.Fatalf("expected only the retry to be marked replayed")
	}
	if again.Served.ID != first.Served.ID {
		t.Fatalf("retry served %s, first served %s", again.Served.ID, first.Served.ID)
	}

	q, err := svc.GetQueue(ctx)
	if err != nil {
		t.Fatalf("get queue: %v", err)
	}
	if len(q.Entries) != 2 || q.Entries[0].ID != appts[1].AppointmentID {
		t.Fatalf("retry must not serve a second ticket, queue %+v", q.Entries)
	}

	// the same id under the other action is a separate request
	if _, err := svc.MarkServed(ctx, requestID); err != nil {
		t.Fatalf("mark served: %v", err)
	}
	q, _ = svc.GetQueue(ctx)
	if len(q.Entries) != 1 {
		t.Fatalf("expected one ticket left, got %d", len(q.Entries))
	}
}

func TestServeHeadLostRace(t *testing.T) {
	svc, _, appts := queueOfThree(t)
	inner := svc.store
	svc.store = &twoStepStore{
		TicketStore: inner,
		updateAppointment: func(ctx context.Context, input store.StatusUpdate) (models.Appointment, error) {
			if input.To == models.StatusServed {
				// another desk served the same head first
				if _, err := inner.UpdateAppointmentStatus(ctx, input); err != nil {
					return models.Appointment{}, err
				}
			}
			return inner.UpdateAppointmentStatus(ctx, input)
		},
	}

	_, err := svc.CallNext(context.Background(), "")
	if !errors.Is(err, store.ErrStaleState) {
		t.Fatalf("expected ErrStaleState, got %v", err)
	}
	q, _ := svc.GetQueue(context.Background())
	if len(q.Entries) != 2 || q.Entries[0].ID != appts[1].AppointmentID {
		t.Fatalf("lost race must serve exactly one ticket, queue %+v", q.Entries)
	}
}

func TestMarkArrived(t *testing.T) {
	st := memory.NewStore()
	svc, c, pub := newTestService(t, st)
	ctx := context.Background()
	appt := book(t, svc, "Ana", "0812345678", "10:15")

	arrived, err := svc.MarkArrived(ctx, models.KindAppointment, appt.AppointmentID)
	if err != nil {
		t.Fatalf("mark arrived: %v", err)
	}
	if arrived.Status != models.StatusArrived {
		t.Fatalf("expected arrived, got %s", arrived.Status)
	}
	if pub.count() != 1 {
		t.Fatalf("expected queue published, got %d", pub.count())
	}
	if _, err := svc.MarkArrived(ctx, models.KindAppointment, appt.AppointmentID); !errors.Is(err, store.ErrStaleState) {
		t.Fatalf("expected conflict on repeat, got %v", err)
	}
	if _, err := svc.MarkArrived(ctx, models.KindAppointment, uuid.NewString()); !errors.Is(err, store.ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}

	c.Set(monday(10, 0))
	walkIn, err := svc.RegisterWalkIn(ctx, "Budi", "0811111111")
	if err != nil {
		t.Fatalf("register walk-in: %v", err)
	}
	if _, err := svc.MarkArrived(ctx, models.KindWalkIn, walkIn.WalkIn.WalkInID); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for walk-in, got %v", err)
	}
	if _, err := svc.MarkArrived(ctx, models.Kind("desk"), appt.AppointmentID); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestMarkArrivedRestoresNoShow(t *testing.T) {
	svc, _, _ := newTestService(t, memory.NewStore())
	ctx := context.Background()
	appt := book(t, svc, "Ana", "0812345678", "10:15")

	if _, err := svc.MarkNoShow(ctx, appt.AppointmentID); err != nil {
		t.Fatalf("mark no-show: %v", err)
	}
	arrived, err := svc.MarkArrived(ctx, models.KindAppointment, appt.AppointmentID)
	if err != nil {
		t.Fatalf("mark arrived: %v", err)
	}
	if arrived.Status != models.StatusArrived {
		t.Fatalf("expected arrived, got %s", arrived.Status)
	}
}

func TestMarkArrivedRefusesConverted(t *testing.T) {
	svc, c, _ := newTestService(t, memory.NewStore())
	ctx := context.Background()
	appt := book(t, svc, "Ana", "0812345678", "10:15")

	c.Set(monday(10, 40))
	if _, err := svc.CheckIn(ctx, appt.TicketCode, "0812345678"); err != nil {
		t.Fatalf("late check-in: %v", err)
	}
	if _, err := svc.MarkArrived(ctx, models.KindAppointment, appt.AppointmentID); !errors.Is(err, store.ErrStaleState) {
		t.Fatalf("expected conflict for converted appointment, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	svc, c, _ := newTestService(t, memory.NewStore())
	ctx := context.Background()
	appt := book(t, svc, "Ana", "0812345678", "10:15")

	ticket, err := svc.Cancel(ctx, models.KindAppointment, appt.AppointmentID)
	if err != nil {
		t.Fatalf("cancel appointment: %v", err)
	}
	if ticket.Appointment == nil || ticket.Appointment.Status != models.StatusCancelled {
		t.Fatalf("unexpected ticket %+v", ticket)
	}
	if _, err := svc.Cancel(ctx, models.KindAppointment, appt.AppointmentID); !errors.Is(err, store.ErrStaleState) {
		t.Fatalf("expected conflict on repeat cancel, got %v", err)
	}

	// the freed slot can be booked again
	book(t, svc, "Budi", "0811111111", "10:15")

	c.Set(monday(11, 0))
	walkIn, err := svc.RegisterWalkIn(ctx, "Citra", "0833333333")
	if err != nil {
		t.Fatalf("register walk-in: %v", err)
	}
	ticket, err = svc.Cancel(ctx, models.KindWalkIn, walkIn.WalkIn.WalkInID)
	if err != nil {
		t.Fatalf("cancel walk-in: %v", err)
	}
	if ticket.WalkIn == nil || ticket.WalkIn.Status != models.StatusCancelled {
		t.Fatalf("unexpected ticket %+v", ticket)
	}
}

func TestSweepNoShows(t *testing.T) {
	svc, c, _ := newTestService(t, memory.NewStore())
	ctx := context.Background()
	old := book(t, svc, "Ana", "0811111111", "09:00")
	edge := book(t, svc, "Budi", "0822222222", "09:30")
	book(t, svc, "Citra", "0833333333", "10:00")

	c.Set(monday(10, 30))
	result, err := svc.SweepNoShows(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(result.Marked) != 1 || result.Marked[0].AppointmentID != old.AppointmentID {
		t.Fatalf("expected only the 09:00 appointment, got %+v", result.Marked)
	}

	// 09:30 is exactly sixty minutes late and can still check in
	checked, err := svc.CheckIn(ctx, edge.TicketCode, "0822222222")
	if err != nil {
		t.Fatalf("check-in at the edge: %v", err)
	}
	if checked.Outcome != OutcomeLateWalkIn {
		t.Fatalf("expected late walk-in, got %s", checked.Outcome)
	}

	again, err := svc.SweepNoShows(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(again.Marked) != 0 {
		t.Fatalf("second sweep marked %d", len(again.Marked))
	}
}

func TestListAppointmentsAndSlots(t *testing.T) {
	svc, c, _ := newTestService(t, memory.NewStore())
	ctx := context.Background()
	book(t, svc, "Ana", "0811111111", "10:15")

	appts, err := svc.ListAppointments(ctx, "2025-06-09")
	if err != nil || len(appts) != 1 {
		t.Fatalf("list appointments: %v %d", err, len(appts))
	}
	if _, err := svc.ListAppointments(ctx, "09/06/2025"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	c.Set(monday(9, 50))
	slots, err := svc.AvailableSlots(ctx, "2025-06-09")
	if err != nil {
		t.Fatalf("available slots: %v", err)
	}
	if len(slots) != 32 {
		t.Fatalf("expected 32 slots, got %d", len(slots))
	}
	available := make(map[string]bool, len(slots))
	for _, slot := range slots {
		available[slot.Time] = slot.Available
	}
	if available["10:00"] {
		t.Fatalf("10:00 is inside the lead time")
	}
	if available["10:15"] {
		t.Fatalf("10:15 is booked")
	}
	if !available["10:30"] {
		t.Fatalf("10:30 should be open")
	}

	weekend, err := svc.AvailableSlots(ctx, "2025-06-08")
	if err != nil || len(weekend) != 0 {
		t.Fatalf("expected no weekend slots, got %d err=%v", len(weekend), err)
	}
}
