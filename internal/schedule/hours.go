package schedule

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"

	// MinLeadTime is how far ahead of now a booking must be.
	MinLeadTime = 15 * time.Minute
)

type DayHours struct {
	Open        bool   `json:"open"`
	OpenTime    string `json:"open_time"`
	CloseTime   string `json:"close_time"`
	SlotMinutes int    `json:"slot_minutes"`
}

type BusinessHours struct {
	Location *time.Location
	Days     map[time.Weekday]DayHours
}

// DefaultHours is Monday to Friday, 09:00 to 17:00, in 15 minute slots.
func DefaultHours(loc *time.Location) BusinessHours {
	if loc == nil {
		loc = time.UTC
	}
	days := make(map[time.Weekday]DayHours, 7)
	for d := time.Monday; d <= time.Friday; d++ {
		days[d] = DayHours{Open: true, OpenTime: "09:00", CloseTime: "17:00", SlotMinutes: 15}
	}
	return BusinessHours{Location: loc, Days: days}
}

// ParseHours reads a JSON object keyed by lower-case weekday name, e.g.
// {"monday":{"open":true,"open_time":"09:00","close_time":"17:00","slot_minutes":15}}.
// Days that are absent are closed.
func ParseHours(raw string, loc *time.Location) (BusinessHours, error) {
	if loc == nil {
		loc = time.UTC
	}
	var byName map[string]DayHours
	if err := json.Unmarshal([]byte(raw), &byName); err != nil {
		return BusinessHours{}, fmt.Errorf("business hours: %w", err)
	}
	hours := BusinessHours{Location: loc, Days: make(map[time.Weekday]DayHours, len(byName))}
	for name, day := range byName {
		weekday, ok := parseWeekday(name)
		if !ok {
			return BusinessHours{}, fmt.Errorf("business hours: unknown day %q", name)
		}
		if day.Open {
			open, err1 := minuteOfDay(day.OpenTime)
			closeAt, err2 := minuteOfDay(day.CloseTime)
			if err1 != nil || err2 != nil || closeAt <= open {
				return BusinessHours{}, fmt.Errorf("business hours: invalid hours for %s", name)
			}
			if day.SlotMinutes <= 0 {
				return BusinessHours{}, fmt.Errorf("business hours: slot_minutes must be positive for %s", name)
			}
		}
		hours.Days[weekday] = day
	}
	return hours, nil
}

// Day returns the hours for the weekday; closed when unconfigured.
func (h BusinessHours) Day(weekday time.Weekday) DayHours {
	day, ok := h.Days[weekday]
	if !ok {
		return DayHours{}
	}
	return day
}

func (h BusinessHours) location() *time.Location {
	if h.Location == nil {
		return time.UTC
	}
	return h.Location
}

func parseWeekday(name string) (time.Weekday, bool) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), strings.TrimSpace(name)) {
			return d, true
		}
	}
	return 0, false
}

func minuteOfDay(clock string) (int, error) {
	parsed, err := time.Parse(ClockLayout, strings.TrimSpace(clock))
	if err != nil {
		return 0, err
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}
