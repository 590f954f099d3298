package queue

import (
	"fmt"
	"sort"
	"time"

	"smartq/queue-service/internal/models"
)

// MinutesPerTicket is the service time assumed for every ticket ahead.
const MinutesPerTicket = 15

type Entry struct {
	Kind          models.Kind `json:"kind"`
	ID            string      `json:"id"`
	TicketCode    string      `json:"ticket_code"`
	QueueTime     time.Time   `json:"queue_time"`
	Status        string      `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	Position      int         `json:"position"`
	EstimatedWait string      `json:"estimated_wait"`
	WaitMinutes   int         `json:"wait_minutes"`
}

type Queue struct {
	Entries      []Entry `json:"queue"`
	NowServing   *Entry  `json:"now_serving"`
	TotalWaiting int     `json:"total_waiting"`
}

// Head returns the ticket at position 0.
func (q Queue) Head() (Entry, bool) {
	if len(q.Entries) == 0 {
		return Entry{}, false
	}
	return q.Entries[0], true
}

// Project merges arrived appointments and waiting walk-ins into one queue
// ordered by queue time, then creation time, then id. Rows in any other
// status are ignored, so callers may pass unfiltered lists.
func Project(appointments []models.Appointment, walkIns []models.WalkIn) Queue {
	entries := make([]Entry, 0, len(appointments)+len(walkIns))
	for _, a := range appointments {
		if a.Status != models.StatusArrived {
			continue
		}
		entries = append(entries, Entry{
			Kind:       models.KindAppointment,
			ID:         a.AppointmentID,
			TicketCode: a.TicketCode,
			QueueTime:  a.ScheduledAt,
			Status:     a.Status,
			CreatedAt:  a.CreatedAt,
		})
	}
	for _, w := range walkIns {
		if w.Status != models.StatusWaiting {
			continue
		}
		entries = append(entries, Entry{
			Kind:       models.KindWalkIn,
			ID:         w.WalkInID,
			TicketCode: w.TicketCode,
			QueueTime:  w.CheckInAt,
			Status:     w.Status,
			CreatedAt:  w.CreatedAt,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.QueueTime.Equal(b.QueueTime) {
			return a.QueueTime.Before(b.QueueTime)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	for i := range entries {
		entries[i].Position = i
		entries[i].WaitMinutes = WaitMinutes(i)
		entries[i].EstimatedWait = FormatWait(i)
	}

	q := Queue{Entries: entries}
	if len(entries) > 0 {
		head := entries[0]
		q.NowServing = &head
		q.TotalWaiting = len(entries) - 1
	}
	return q
}

func WaitMinutes(position int) int {
	if position <= 1 {
		return 0
	}
	return position * MinutesPerTicket
}

// FormatWait renders the estimated wait for a 0-based queue position.
func FormatWait(position int) string {
	switch {
	case position <= 0:
		return "now serving"
	case position == 1:
		return "next in line"
	}
	minutes := WaitMinutes(position)
	if minutes <= 60 {
		return fmt.Sprintf("%d minutes", minutes)
	}
	h, m := minutes/60, minutes%60
	unit := "hours"
	if h == 1 {
		unit = "hour"
	}
	if m == 0 {
		return fmt.Sprintf("%d %s", h, unit)
	}
	return fmt.Sprintf("%d %s %d minutes", h, unit, m)
}
