package schedule

import (
	"fmt"
	"strings"
	"time"
)

type Rule string

const (
	RuleFormat    Rule = "format"
	RuleClosedDay Rule = "closed_day"
	RuleHours     Rule = "outside_hours"
	RuleAlignment Rule = "alignment"
	RuleLeadTime  Rule = "lead_time"
)

// ValidationError names the first rule a requested slot failed.
type ValidationError struct {
	Rule   Rule
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func invalid(rule Rule, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Rule: rule, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks a requested date ("2006-01-02") and time ("15:04") against
// the business hours and returns the slot instant. Rules are checked in
// order and the first failure is returned. Whether the slot is already
// taken is left to the store.
func Validate(date, clock string, hours BusinessHours, now time.Time) (time.Time, error) {
	loc := hours.location()
	day, err := time.ParseInLocation(DateLayout, strings.TrimSpace(date), loc)
	if err != nil {
		return time.Time{}, invalid(RuleFormat, "date must be formatted as YYYY-MM-DD")
	}
	minute, err := minuteOfDay(clock)
	if err != nil {
		return time.Time{}, invalid(RuleFormat, "time must be formatted as HH:MM")
	}

	dh := hours.Day(day.Weekday())
	if !dh.Open {
		return time.Time{}, invalid(RuleClosedDay, "we are closed on %s", day.Weekday())
	}
	open, err1 := minuteOfDay(dh.OpenTime)
	closeAt, err2 := minuteOfDay(dh.CloseTime)
	if err1 != nil || err2 != nil {
		return time.Time{}, invalid(RuleClosedDay, "no business hours configured for %s", day.Weekday())
	}
	if minute < open || minute >= closeAt {
		return time.Time{}, invalid(RuleHours, "appointments on %s are between %s and %s", day.Weekday(), dh.OpenTime, dh.CloseTime)
	}
	if dh.SlotMinutes <= 0 || (minute-open)%dh.SlotMinutes != 0 {
		return time.Time{}, invalid(RuleAlignment, "appointments start every %d minutes from %s", dh.SlotMinutes, dh.OpenTime)
	}

	at := time.Date(day.Year(), day.Month(), day.Day(), minute/60, minute%60, 0, 0, loc)
	if at.Before(now.Add(MinLeadTime)) {
		return time.Time{}, invalid(RuleLeadTime, "appointments must be booked at least %d minutes in advance", int(MinLeadTime/time.Minute))
	}
	return at, nil
}

// Slots lists every slot start of an open day in order. A closed day has no
// slots and no error.
func Slots(date string, hours BusinessHours) ([]time.Time, error) {
	loc := hours.location()
	day, err := time.ParseInLocation(DateLayout, strings.TrimSpace(date), loc)
	if err != nil {
		return nil, invalid(RuleFormat, "date must be formatted as YYYY-MM-DD")
	}
	dh := hours.Day(day.Weekday())
	if !dh.Open || dh.SlotMinutes <= 0 {
		return nil, nil
	}
	open, err1 := minuteOfDay(dh.OpenTime)
	closeAt, err2 := minuteOfDay(dh.CloseTime)
	if err1 != nil || err2 != nil {
		return nil, nil
	}
	var slots []time.Time
	for m := open; m < closeAt; m += dh.SlotMinutes {
		slots = append(slots, time.Date(day.Year(), day.Month(), day.Day(), m/60, m%60, 0, 0, loc))
	}
	return slots, nil
}
