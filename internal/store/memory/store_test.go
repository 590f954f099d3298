package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"smartq/queue-service/internal/models"
	"smartq/queue-service/internal/store"
)

var slot = time.Date(2025, 6, 9, 10, 15, 0, 0, time.UTC)

func book(t *testing.T, st *Store, at time.Time) models.Appointment {
	t.Helper()
	appt, err := st.CreateAppointment(context.Background(), store.CreateAppointmentInput{
		UserID:      "user-1",
		Date:        at.Format("2006-01-02"),
		ScheduledAt: at,
	})
	if err != nil {
		t.Fatalf("create appointment: %v", err)
	}
	return appt
}

func TestCreateAppointmentSlotTaken(t *testing.T) {
	st := NewStore()
	first := book(t, st, slot)
	if first.Status != models.StatusBooked || first.TicketCode == "" {
		t.Fatalf("unexpected appointment %+v", first)
	}

	_, err := st.CreateAppointment(context.Background(), store.CreateAppointmentInput{UserID: "user-2", ScheduledAt: slot})
	if !errors.Is(err, store.ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}

	// a cancelled appointment frees the slot
	if _, err := st.UpdateAppointmentStatus(context.Background(), store.StatusUpdate{
		ID: first.AppointmentID, From: []string{models.StatusBooked}, To: models.StatusCancelled,
	}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	book(t, st, slot)
}

func TestUpdateAppointmentStatusGuarded(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	appt := book(t, st, slot)

	update := store.StatusUpdate{ID: appt.AppointmentID, From: []string{models.StatusBooked}, To: models.StatusArrived}
	if _, err := st.UpdateAppointmentStatus(ctx, update); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if _, err := st.UpdateAppointmentStatus(ctx, update); !errors.Is(err, store.ErrStaleState) {
		t.Fatalf("expected ErrStaleState on repeat, got %v", err)
	}
	update.ID = "missing"
	if _, err := st.UpdateAppointmentStatus(ctx, update); !errors.Is(err, store.ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}
}

func TestClaimAppointmentOnlyOnce(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	appt := book(t, st, slot)

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.ClaimAppointment(ctx, store.ClaimInput{AppointmentID: appt.AppointmentID, UserID: "walker", At: slot})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, store.ErrStaleState):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one claim, got %d", wins)
	}
	got, _ := st.GetAppointment(ctx, appt.AppointmentID)
	if got.UserID != "walker" || got.Status != models.StatusArrived {
		t.Fatalf("unexpected claimed appointment %+v", got)
	}
}

func TestConvertAppointment(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	appt := book(t, st, slot)
	at := slot.Add(20 * time.Minute)

	walkIn, converted, err := st.ConvertAppointment(ctx, store.ConvertInput{AppointmentID: appt.AppointmentID, UserID: appt.UserID, At: at})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if converted.Status != models.StatusConverted {
		t.Fatalf("expected converted status, got %s", converted.Status)
	}
	if walkIn.Status != models.StatusWaiting || !walkIn.CheckInAt.Equal(at) {
		t.Fatalf("unexpected walk-in %+v", walkIn)
	}
	if walkIn.OriginalAppointmentID == nil || *walkIn.OriginalAppointmentID != appt.AppointmentID {
		t.Fatalf("expected back reference to %s", appt.AppointmentID)
	}

	if _, _, err := st.ConvertAppointment(ctx, store.ConvertInput{AppointmentID: appt.AppointmentID, At: at}); !errors.Is(err, store.ErrStaleState) {
		t.Fatalf("expected ErrStaleState on second conversion, got %v", err)
	}
	walkIns, _ := st.ListWalkIns(ctx, store.WalkInFilter{})
	if len(walkIns) != 1 {
		t.Fatalf("expected one walk-in, got %d", len(walkIns))
	}
}

func TestLookupByCode(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	appt := book(t, st, slot)
	walkIn, err := st.CreateWalkIn(ctx, store.CreateWalkInInput{UserID: "user-1", CheckInAt: slot})
	if err != nil {
		t.Fatalf("create walk-in: %v", err)
	}

	got, err := st.GetAppointmentByCode(ctx, " "+appt.TicketCode+" ")
	if err != nil || got.AppointmentID != appt.AppointmentID {
		t.Fatalf("lookup appointment by code: %v", err)
	}
	if _, err := st.GetAppointmentByCode(ctx, walkIn.TicketCode); !errors.Is(err, store.ErrAppointmentNotFound) {
		t.Fatalf("walk-in code must not resolve to an appointment, got %v", err)
	}
	if w, err := st.GetWalkInByCode(ctx, walkIn.TicketCode); err != nil || w.WalkInID != walkIn.WalkInID {
		t.Fatalf("lookup walk-in by code: %v", err)
	}
}

func TestListAppointmentsFilter(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	late := book(t, st, slot.Add(30*time.Minute))
	early := book(t, st, slot)
	book(t, st, slot.Add(2*time.Hour))

	got, err := st.ListAppointments(ctx, store.AppointmentFilter{
		Statuses: []string{models.StatusBooked},
		From:     slot.Add(-15 * time.Minute),
		To:       slot.Add(45 * time.Minute),
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].AppointmentID != early.AppointmentID || got[1].AppointmentID != late.AppointmentID {
		t.Fatalf("unexpected list %+v", got)
	}
}

func TestFindOrCreateUser(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	first, err := st.FindOrCreateUser(ctx, store.UserInput{Name: "Jane", Contact: models.Contact{Phone: "15550102030"}})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	again, err := st.FindOrCreateUser(ctx, store.UserInput{Name: "Jane Doe", Contact: models.Contact{Phone: "15550102030"}})
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if again.UserID != first.UserID || again.Name != "Jane Doe" {
		t.Fatalf("expected repeat contact to reuse user, got %+v", again)
	}
	other, _ := st.FindOrCreateUser(ctx, store.UserInput{Name: "Bob", Contact: models.Contact{Email: "bob@example.com"}})
	if other.UserID == first.UserID {
		t.Fatalf("expected a new user for a new contact")
	}
}

func TestActionRecordsAndSessions(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	if _, found, _ := st.FindActionResult(ctx, "call_next", "r1"); found {
		t.Fatalf("unexpected record")
	}
	_ = st.RecordActionResult(ctx, store.ActionRecord{Action: "call_next", RequestID: "r1", TicketID: "t1"})
	_ = st.RecordActionResult(ctx, store.ActionRecord{Action: "call_next", RequestID: "r1", TicketID: "t2"})
	record, found, _ := st.FindActionResult(ctx, "call_next", "r1")
	if !found || record.TicketID != "t1" {
		t.Fatalf("expected first record to win, got %+v", record)
	}

	st.AddSession(store.Session{SessionID: "live", UserID: "staff", ExpiresAt: time.Now().Add(time.Hour)})
	st.AddSession(store.Session{SessionID: "old", UserID: "staff", ExpiresAt: time.Now().Add(-time.Hour)})
	if _, err := st.GetSession(ctx, "live"); err != nil {
		t.Fatalf("expected live session: %v", err)
	}
	if _, err := st.GetSession(ctx, "old"); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected expired session to be rejected, got %v", err)
	}
}
