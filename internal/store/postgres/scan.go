package postgres

import (
	"errors"
	"strconv"
	"time"

	"smartq/queue-service/internal/models"
	"smartq/queue-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	if err := row.Scan(&user.UserID, &user.Name, &user.Phone, &user.Email, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func scanAppointment(row pgx.Row) (models.Appointment, error) {
	var appt models.Appointment
	if err := row.Scan(&appt.AppointmentID, &appt.TicketCode, &appt.UserID, &appt.Date, &appt.ScheduledAt, &appt.Status, &appt.CreatedAt, &appt.UpdatedAt); err != nil {
		return models.Appointment{}, err
	}
	appt.ScheduledAt = appt.ScheduledAt.UTC()
	return appt, nil
}

func scanWalkIn(row pgx.Row) (models.WalkIn, error) {
	var walkIn models.WalkIn
	var original *string
	if err := row.Scan(&walkIn.WalkInID, &walkIn.TicketCode, &walkIn.UserID, &walkIn.CheckInAt, &walkIn.Status, &original, &walkIn.CreatedAt, &walkIn.UpdatedAt); err != nil {
		return models.WalkIn{}, err
	}
	walkIn.OriginalAppointmentID = original
	walkIn.CheckInAt = walkIn.CheckInAt.UTC()
	return walkIn, nil
}

// mapWriteError turns the active-slot unique violation into ErrSlotTaken.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == activeSlotIndex {
		return store.ErrSlotTaken
	}
	return err
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func isUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func stamp(at time.Time) time.Time {
	if at.IsZero() {
		return time.Now().UTC()
	}
	return at.UTC()
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
