package service

import (
	"context"
	"time"

	"smartq/queue-service/internal/models"
	"smartq/queue-service/internal/queue"
	"smartq/queue-service/internal/schedule"
	"smartq/queue-service/internal/store"
)

// GetQueue projects the queue from the current arrived appointments and
// waiting walk-ins.
func (s *Service) GetQueue(ctx context.Context) (queue.Queue, error) {
	appts, err := s.store.ListAppointments(ctx, store.AppointmentFilter{Statuses: []string{models.StatusArrived}})
	if err != nil {
		return queue.Queue{}, err
	}
	walkIns, err := s.store.ListWalkIns(ctx, store.WalkInFilter{Statuses: []string{models.StatusWaiting}})
	if err != nil {
		return queue.Queue{}, err
	}
	return queue.Project(appts, walkIns), nil
}

type Slot struct {
	Time      string    `json:"time"`
	At        time.Time `json:"at"`
	Available bool      `json:"available"`
}

// AvailableSlots lists the day's slots; a slot is available when nothing
// holds it and it could still be booked now.
func (s *Service) AvailableSlots(ctx context.Context, date string) ([]Slot, error) {
	starts, err := schedule.Slots(date, s.hours)
	if err != nil {
		return nil, err
	}
	if len(starts) == 0 {
		return []Slot{}, nil
	}

	held, err := s.store.ListAppointments(ctx, store.AppointmentFilter{
		Statuses: []string{models.StatusBooked, models.StatusArrived},
		From:     starts[0],
		To:       starts[len(starts)-1],
	})
	if err != nil {
		return nil, err
	}
	taken := make(map[int64]bool, len(held))
	for _, appt := range held {
		taken[appt.ScheduledAt.Unix()] = true
	}

	now := s.now()
	slots := make([]Slot, 0, len(starts))
	for _, start := range starts {
		clock := start.Format(schedule.ClockLayout)
		_, verr := schedule.Validate(date, clock, s.hours, now)
		slots = append(slots, Slot{
			Time:      clock,
			At:        start,
			Available: verr == nil && !taken[start.Unix()],
		})
	}
	return slots, nil
}
