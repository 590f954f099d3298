package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"smartq/queue-service/internal/models"
	"smartq/queue-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation = "23505"
	activeSlotIndex = "appointments_active_slot_key"
)

const appointmentColumns = `appointment_id, ticket_code, user_id, to_char(date, 'YYYY-MM-DD'), scheduled_at, status, created_at, updated_at`

const walkInColumns = `walkin_id, ticket_code, user_id, check_in_at, status, original_appointment_id, created_at, updated_at`

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

func (s *Store) FindOrCreateUser(ctx context.Context, input store.UserInput) (models.User, error) {
	at := stamp(input.At)
	for attempt := 0; attempt < 2; attempt++ {
		user, found, err := s.findUserByContact(ctx, input.Contact)
		if err != nil {
			return models.User{}, err
		}
		if found {
			if input.Name == "" || input.Name == user.Name {
				return user, nil
			}
			row := s.pool.QueryRow(ctx, `
				UPDATE users SET name = $1, updated_at = $2
				WHERE user_id = $3
				RETURNING user_id, name, COALESCE(phone, ''), COALESCE(email, ''), created_at, updated_at
			`, input.Name, at, user.UserID)
			return scanUser(row)
		}

		row := s.pool.QueryRow(ctx, `
			INSERT INTO users (user_id, name, phone, email, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
			ON CONFLICT DO NOTHING
			RETURNING user_id, name, COALESCE(phone, ''), COALESCE(email, ''), created_at, updated_at
		`, uuid.NewString(), input.Name, nullIfEmpty(input.Contact.Phone), nullIfEmpty(input.Contact.Email), at)
		user, err = scanUser(row)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, err
		}
		// lost an insert race on the same contact; read the winner
	}
	return models.User{}, store.ErrUserNotFound
}

func (s *Store) findUserByContact(ctx context.Context, contact models.Contact) (models.User, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, name, COALESCE(phone, ''), COALESCE(email, ''), created_at, updated_at
		FROM users
		WHERE ($1 <> '' AND phone = $1) OR ($2 <> '' AND lower(email) = lower($2))
		ORDER BY created_at ASC
		LIMIT 1
	`, contact.Phone, contact.Email)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, false, nil
		}
		return models.User{}, false, err
	}
	return user, true, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (models.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, name, COALESCE(phone, ''), COALESCE(email, ''), created_at, updated_at
		FROM users
		WHERE user_id = $1
	`, userID)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, store.ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *Store) CreateAppointment(ctx context.Context, input store.CreateAppointmentInput) (models.Appointment, error) {
	at := stamp(input.CreatedAt)
	for attempt := 0; attempt < store.CodeAttempts; attempt++ {
		code, err := store.NewTicketCode(models.KindAppointment)
		if err != nil {
			return models.Appointment{}, err
		}
		row := s.pool.QueryRow(ctx, `
			INSERT INTO appointments (appointment_id, ticket_code, user_id, date, scheduled_at, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
			ON CONFLICT (ticket_code) DO NOTHING
			RETURNING `+appointmentColumns,
			uuid.NewString(), code, input.UserID, input.Date, input.ScheduledAt, models.StatusBooked, at)
		appt, err := scanAppointment(row)
		if err == nil {
			return appt, nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		return models.Appointment{}, mapWriteError(err)
	}
	return models.Appointment{}, store.ErrDuplicateCode
}

func (s *Store) GetAppointment(ctx context.Context, appointmentID string) (models.Appointment, error) {
	if !isUUID(appointmentID) {
		return models.Appointment{}, store.ErrAppointmentNotFound
	}
	return getAppointment(ctx, s.pool, `appointment_id = $1`, appointmentID)
}

func (s *Store) GetAppointmentByCode(ctx context.Context, code string) (models.Appointment, error) {
	return getAppointment(ctx, s.pool, `ticket_code = $1`, store.NormalizeTicketCode(code))
}

func getAppointment(ctx context.Context, q querier, where string, arg interface{}) (models.Appointment, error) {
	row := q.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE `+where, arg)
	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Appointment{}, store.ErrAppointmentNotFound
		}
		return models.Appointment{}, err
	}
	return appt, nil
}

func (s *Store) ListAppointments(ctx context.Context, filter store.AppointmentFilter) ([]models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE TRUE`
	var args []interface{}
	if len(filter.Statuses) > 0 {
		args = append(args, filter.Statuses)
		query += ` AND status = ANY($` + itoa(len(args)) + `)`
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += ` AND scheduled_at >= $` + itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += ` AND scheduled_at <= $` + itoa(len(args))
	}
	if filter.Date != "" {
		args = append(args, filter.Date)
		query += ` AND date = $` + itoa(len(args))
	}
	query += ` ORDER BY scheduled_at ASC, appointment_id ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdateAppointmentStatus(ctx context.Context, input store.StatusUpdate) (models.Appointment, error) {
	return updateAppointment(ctx, s.pool, input, "")
}

func (s *Store) ClaimAppointment(ctx context.Context, input store.ClaimInput) (models.Appointment, error) {
	return updateAppointment(ctx, s.pool, store.StatusUpdate{
		ID:   input.AppointmentID,
		From: []string{models.StatusBooked},
		To:   models.StatusArrived,
		At:   input.At,
	}, input.UserID)
}

// updateAppointment is the guarded write every appointment transition goes
// through. userID, when set, also reassigns the owner.
func updateAppointment(ctx context.Context, q querier, input store.StatusUpdate, userID string) (models.Appointment, error) {
	if !isUUID(input.ID) {
		return models.Appointment{}, store.ErrAppointmentNotFound
	}
	row := q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $1, updated_at = $2, user_id = COALESCE($3::uuid, user_id)
		WHERE appointment_id = $4 AND status = ANY($5)
		RETURNING `+appointmentColumns,
		input.To, stamp(input.At), nullIfEmpty(userID), input.ID, input.From)
	appt, err := scanAppointment(row)
	if err == nil {
		return appt, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Appointment{}, mapWriteError(err)
	}
	if _, err := getAppointment(ctx, q, `appointment_id = $1`, input.ID); err != nil {
		return models.Appointment{}, err
	}
	return models.Appointment{}, store.ErrStaleState
}

func (s *Store) CreateWalkIn(ctx context.Context, input store.CreateWalkInInput) (models.WalkIn, error) {
	return createWalkIn(ctx, s.pool, input)
}

func createWalkIn(ctx context.Context, q querier, input store.CreateWalkInInput) (models.WalkIn, error) {
	at := stamp(input.CheckInAt)
	for attempt := 0; attempt < store.CodeAttempts; attempt++ {
		code, err := store.NewTicketCode(models.KindWalkIn)
		if err != nil {
			return models.WalkIn{}, err
		}
		row := q.QueryRow(ctx, `
			INSERT INTO walkins (walkin_id, ticket_code, user_id, check_in_at, status, original_appointment_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $4, $4)
			ON CONFLICT (ticket_code) DO NOTHING
			RETURNING `+walkInColumns,
			uuid.NewString(), code, input.UserID, at, models.StatusWaiting, nullIfEmpty(input.OriginalAppointmentID))
		walkIn, err := scanWalkIn(row)
		if err == nil {
			return walkIn, nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		return models.WalkIn{}, mapWriteError(err)
	}
	return models.WalkIn{}, store.ErrDuplicateCode
}

func (s *Store) GetWalkIn(ctx context.Context, walkInID string) (models.WalkIn, error) {
	if !isUUID(walkInID) {
		return models.WalkIn{}, store.ErrWalkInNotFound
	}
	return getWalkIn(ctx, s.pool, `walkin_id = $1`, walkInID)
}

func (s *Store) GetWalkInByCode(ctx context.Context, code string) (models.WalkIn, error) {
	return getWalkIn(ctx, s.pool, `ticket_code = $1`, store.NormalizeTicketCode(code))
}

func getWalkIn(ctx context.Context, q querier, where string, arg interface{}) (models.WalkIn, error) {
	row := q.QueryRow(ctx, `SELECT `+walkInColumns+` FROM walkins WHERE `+where, arg)
	walkIn, err := scanWalkIn(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.WalkIn{}, store.ErrWalkInNotFound
		}
		return models.WalkIn{}, err
	}
	return walkIn, nil
}

func (s *Store) ListWalkIns(ctx context.Context, filter store.WalkInFilter) ([]models.WalkIn, error) {
	query := `SELECT ` + walkInColumns + ` FROM walkins`
	var args []interface{}
	if len(filter.Statuses) > 0 {
		query += ` WHERE status = ANY($1)`
		args = append(args, filter.Statuses)
	}
	query += ` ORDER BY check_in_at ASC, walkin_id ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.WalkIn
	for rows.Next() {
		walkIn, err := scanWalkIn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, walkIn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdateWalkInStatus(ctx context.Context, input store.StatusUpdate) (models.WalkIn, error) {
	if !isUUID(input.ID) {
		return models.WalkIn{}, store.ErrWalkInNotFound
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE walkins
		SET status = $1, updated_at = $2
		WHERE walkin_id = $3 AND status = ANY($4)
		RETURNING `+walkInColumns,
		input.To, stamp(input.At), input.ID, input.From)
	walkIn, err := scanWalkIn(row)
	if err == nil {
		return walkIn, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.WalkIn{}, err
	}
	if _, err := getWalkIn(ctx, s.pool, `walkin_id = $1`, input.ID); err != nil {
		return models.WalkIn{}, err
	}
	return models.WalkIn{}, store.ErrStaleState
}

func (s *Store) ConvertAppointment(ctx context.Context, input store.ConvertInput) (models.WalkIn, models.Appointment, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.WalkIn{}, models.Appointment{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	appt, err := updateAppointment(ctx, tx, store.StatusUpdate{
		ID:   input.AppointmentID,
		From: store.FromStatuses(models.KindAppointment, store.ActionConvert),
		To:   models.StatusConverted,
		At:   input.At,
	}, "")
	if err != nil {
		return models.WalkIn{}, models.Appointment{}, err
	}

	walkIn, err := createWalkIn(ctx, tx, store.CreateWalkInInput{
		UserID:                input.UserID,
		CheckInAt:             input.At,
		OriginalAppointmentID: input.AppointmentID,
	})
	if err != nil {
		return models.WalkIn{}, models.Appointment{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.WalkIn{}, models.Appointment{}, err
	}
	return walkIn, appt, nil
}

func (s *Store) FindActionResult(ctx context.Context, action, requestID string) (store.ActionRecord, bool, error) {
	var record store.ActionRecord
	var kind, ticketID *string
	var result []byte
	row := s.pool.QueryRow(ctx, `
		SELECT action, request_id, kind, ticket_id::text, result_json, created_at
		FROM action_requests
		WHERE action = $1 AND request_id = $2
	`, action, requestID)
	if err := row.Scan(&record.Action, &record.RequestID, &kind, &ticketID, &result, &record.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ActionRecord{}, false, nil
		}
		return store.ActionRecord{}, false, err
	}
	if kind != nil {
		record.Kind = models.Kind(*kind)
	}
	if ticketID != nil {
		record.TicketID = *ticketID
	}
	record.Result = json.RawMessage(result)
	return record, true, nil
}

func (s *Store) RecordActionResult(ctx context.Context, record store.ActionRecord) error {
	var result interface{}
	if len(record.Result) > 0 {
		result = []byte(record.Result)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO action_requests (action, request_id, kind, ticket_id, result_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (action, request_id) DO NOTHING
	`, record.Action, record.RequestID, nullIfEmpty(string(record.Kind)), nullIfEmpty(record.TicketID), result, stamp(record.CreatedAt))
	return err
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	var session store.Session
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, user_id, role, expires_at
		FROM staff_sessions
		WHERE session_id = $1 AND expires_at > now()
	`, sessionID)
	if err := row.Scan(&session.SessionID, &session.UserID, &session.Role, &session.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Session{}, store.ErrSessionNotFound
		}
		return store.Session{}, err
	}
	return session, nil
}

var _ store.TicketStore = (*Store)(nil)
var _ store.Converter = (*Store)(nil)
