// Package memory is an in-process TicketStore used for local runs without
// Postgres and in tests. It enforces the same guarded updates and slot
// uniqueness as the Postgres store.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"smartq/queue-service/internal/models"
	"smartq/queue-service/internal/store"

	"github.com/google/uuid"
)

type Store struct {
	mu           sync.Mutex
	users        map[string]models.User
	appointments map[string]models.Appointment
	walkIns      map[string]models.WalkIn
	codes        map[string]string
	actions      map[string]store.ActionRecord
	sessions     map[string]store.Session
	now          func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:        make(map[string]models.User),
		appointments: make(map[string]models.Appointment),
		walkIns:      make(map[string]models.WalkIn),
		codes:        make(map[string]string),
		actions:      make(map[string]store.ActionRecord),
		sessions:     make(map[string]store.Session),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// AddSession registers a staff session issued elsewhere.
func (s *Store) AddSession(session store.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.SessionID] = session
}

func (s *Store) FindOrCreateUser(ctx context.Context, input store.UserInput) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, user := range s.users {
		if !input.Contact.Matches(user) {
			continue
		}
		if input.Name != "" && input.Name != user.Name {
			user.Name = input.Name
			user.UpdatedAt = stamp(input.At, s.now)
			s.users[id] = user
		}
		return user, nil
	}

	at := stamp(input.At, s.now)
	user := models.User{
		UserID:    uuid.NewString(),
		Name:      input.Name,
		Phone:     input.Contact.Phone,
		Email:     input.Contact.Email,
		CreatedAt: at,
		UpdatedAt: at,
	}
	s.users[user.UserID] = user
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return models.User{}, store.ErrUserNotFound
	}
	return user, nil
}

func (s *Store) CreateAppointment(ctx context.Context, input store.CreateAppointmentInput) (models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.appointments {
		if models.Occupying(existing.Status) && existing.ScheduledAt.Equal(input.ScheduledAt) {
			return models.Appointment{}, store.ErrSlotTaken
		}
	}
	code, err := s.issueCode(models.KindAppointment)
	if err != nil {
		return models.Appointment{}, err
	}
	at := stamp(input.CreatedAt, s.now)
	appt := models.Appointment{
		AppointmentID: uuid.NewString(),
		TicketCode:    code,
		UserID:        input.UserID,
		Date:          input.Date,
		ScheduledAt:   input.ScheduledAt.UTC(),
		Status:        models.StatusBooked,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
	s.appointments[appt.AppointmentID] = appt
	s.codes[code] = appt.AppointmentID
	return appt, nil
}

func (s *Store) GetAppointment(ctx context.Context, appointmentID string) (models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appointments[appointmentID]
	if !ok {
		return models.Appointment{}, store.ErrAppointmentNotFound
	}
	return appt, nil
}

func (s *Store) GetAppointmentByCode(ctx context.Context, code string) (models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appointments[s.codes[store.NormalizeTicketCode(code)]]
	if !ok {
		return models.Appointment{}, store.ErrAppointmentNotFound
	}
	return appt, nil
}

func (s *Store) ListAppointments(ctx context.Context, filter store.AppointmentFilter) ([]models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Appointment
	for _, appt := range s.appointments {
		if len(filter.Statuses) > 0 && !contains(filter.Statuses, appt.Status) {
			continue
		}
		if !filter.From.IsZero() && appt.ScheduledAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && appt.ScheduledAt.After(filter.To) {
			continue
		}
		if filter.Date != "" && appt.Date != filter.Date {
			continue
		}
		out = append(out, appt)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].AppointmentID < out[j].AppointmentID
	})
	return out, nil
}

func (s *Store) UpdateAppointmentStatus(ctx context.Context, input store.StatusUpdate) (models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateAppointment(input, "")
}

func (s *Store) ClaimAppointment(ctx context.Context, input store.ClaimInput) (models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateAppointment(store.StatusUpdate{
		ID:   input.AppointmentID,
		From: []string{models.StatusBooked},
		To:   models.StatusArrived,
		At:   input.At,
	}, input.UserID)
}

func (s *Store) updateAppointment(input store.StatusUpdate, userID string) (models.Appointment, error) {
	appt, ok := s.appointments[input.ID]
	if !ok {
		return models.Appointment{}, store.ErrAppointmentNotFound
	}
	if !contains(input.From, appt.Status) {
		return models.Appointment{}, store.ErrStaleState
	}
	if models.Occupying(input.To) && !models.Occupying(appt.Status) {
		for id, other := range s.appointments {
			if id != appt.AppointmentID && models.Occupying(other.Status) && other.ScheduledAt.Equal(appt.ScheduledAt) {
				return models.Appointment{}, store.ErrSlotTaken
			}
		}
	}
	appt.Status = input.To
	appt.UpdatedAt = stamp(input.At, s.now)
	if userID != "" {
		appt.UserID = userID
	}
	s.appointments[appt.AppointmentID] = appt
	return appt, nil
}

func (s *Store) CreateWalkIn(ctx context.Context, input store.CreateWalkInInput) (models.WalkIn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createWalkIn(input)
}

func (s *Store) createWalkIn(input store.CreateWalkInInput) (models.WalkIn, error) {
	code, err := s.issueCode(models.KindWalkIn)
	if err != nil {
		return models.WalkIn{}, err
	}
	at := stamp(input.CheckInAt, s.now)
	walkIn := models.WalkIn{
		WalkInID:   uuid.NewString(),
		TicketCode: code,
		UserID:     input.UserID,
		CheckInAt:  at,
		Status:     models.StatusWaiting,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	if input.OriginalAppointmentID != "" {
		original := input.OriginalAppointmentID
		walkIn.OriginalAppointmentID = &original
	}
	s.walkIns[walkIn.WalkInID] = walkIn
	s.codes[code] = walkIn.WalkInID
	return walkIn, nil
}

func (s *Store) GetWalkIn(ctx context.Context, walkInID string) (models.WalkIn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	walkIn, ok := s.walkIns[walkInID]
	if !ok {
		return models.WalkIn{}, store.ErrWalkInNotFound
	}
	return walkIn, nil
}

func (s *Store) GetWalkInByCode(ctx context.Context, code string) (models.WalkIn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	walkIn, ok := s.walkIns[s.codes[store.NormalizeTicketCode(code)]]
	if !ok {
		return models.WalkIn{}, store.ErrWalkInNotFound
	}
	return walkIn, nil
}

func (s *Store) ListWalkIns(ctx context.Context, filter store.WalkInFilter) ([]models.WalkIn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.WalkIn
	for _, walkIn := range s.walkIns {
		if len(filter.Statuses) > 0 && !contains(filter.Statuses, walkIn.Status) {
			continue
		}
		out = append(out, walkIn)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CheckInAt.Equal(out[j].CheckInAt) {
			return out[i].CheckInAt.Before(out[j].CheckInAt)
		}
		return out[i].WalkInID < out[j].WalkInID
	})
	return out, nil
}

func (s *Store) UpdateWalkInStatus(ctx context.Context, input store.StatusUpdate) (models.WalkIn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	walkIn, ok := s.walkIns[input.ID]
	if !ok {
		return models.WalkIn{}, store.ErrWalkInNotFound
	}
	if !contains(input.From, walkIn.Status) {
		return models.WalkIn{}, store.ErrStaleState
	}
	walkIn.Status = input.To
	walkIn.UpdatedAt = stamp(input.At, s.now)
	s.walkIns[walkIn.WalkInID] = walkIn
	return walkIn, nil
}

func (s *Store) ConvertAppointment(ctx context.Context, input store.ConvertInput) (models.WalkIn, models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original := s.appointments[input.AppointmentID]
	appt, err := s.updateAppointment(store.StatusUpdate{
		ID:   input.AppointmentID,
		From: store.FromStatuses(models.KindAppointment, store.ActionConvert),
		To:   models.StatusConverted,
		At:   input.At,
	}, "")
	if err != nil {
		return models.WalkIn{}, models.Appointment{}, err
	}
	walkIn, err := s.createWalkIn(store.CreateWalkInInput{
		UserID:                input.UserID,
		CheckInAt:             input.At,
		OriginalAppointmentID: input.AppointmentID,
	})
	if err != nil {
		s.appointments[original.AppointmentID] = original
		return models.WalkIn{}, models.Appointment{}, err
	}
	return walkIn, appt, nil
}

func (s *Store) FindActionResult(ctx context.Context, action, requestID string) (store.ActionRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.actions[action+"|"+requestID]
	return record, ok, nil
}

func (s *Store) RecordActionResult(ctx context.Context, record store.ActionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := record.Action + "|" + record.RequestID
	if _, ok := s.actions[key]; ok {
		return nil
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}
	s.actions[key] = record
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok || (!session.ExpiresAt.IsZero() && !session.ExpiresAt.After(s.now())) {
		return store.Session{}, store.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) issueCode(kind models.Kind) (string, error) {
	for i := 0; i < store.CodeAttempts; i++ {
		code, err := store.NewTicketCode(kind)
		if err != nil {
			return "", err
		}
		if _, taken := s.codes[code]; !taken {
			return code, nil
		}
	}
	return "", store.ErrDuplicateCode
}

func stamp(at time.Time, now func() time.Time) time.Time {
	if at.IsZero() {
		return now()
	}
	return at.UTC()
}

func contains(values []string, value string) bool {
	for _, item := range values {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}

var _ store.TicketStore = (*Store)(nil)
var _ store.Converter = (*Store)(nil)
