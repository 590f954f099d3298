package store

import (
	"testing"

	"smartq/queue-service/internal/models"
)

func TestValidTransition(t *testing.T) {
	appt, walk := models.KindAppointment, models.KindWalkIn
	cases := []struct {
		kind   models.Kind
		action string
		from   string
		valid  bool
	}{
		{appt, ActionArrive, "booked", true},
		{appt, ActionArrive, "no_show", true},
		{appt, ActionArrive, "arrived", false},
		{appt, ActionArrive, "served", false},
		{appt, ActionArrive, "cancelled", false},
		{appt, ActionArrive, "converted_to_walkin", false},
		{appt, ActionCheckIn, "booked", true},
		{appt, ActionCheckIn, "arrived", false},
		{appt, ActionConvert, "booked", true},
		{appt, ActionConvert, "no_show", false},
		{appt, ActionClaim, "booked", true},
		{appt, ActionClaim, "arrived", false},
		{appt, ActionServe, "arrived", true},
		{appt, ActionServe, "booked", false},
		{appt, ActionCancel, "arrived", true},
		{appt, ActionCancel, "served", false},
		{appt, ActionNoShow, "booked", true},
		{appt, ActionNoShow, "arrived", false},
		{walk, ActionServe, "waiting", true},
		{walk, ActionServe, "served", false},
		{walk, ActionCancel, "waiting", true},
		{walk, ActionArrive, "waiting", false},
		{walk, ActionNoShow, "waiting", false},
		{appt, "unknown", "booked", false},
		{"ghost", ActionServe, "arrived", false},
	}

	for _, tt := range cases {
		if got := ValidTransition(tt.kind, tt.action, tt.from); got != tt.valid {
			t.Fatalf("ValidTransition(%q, %q, %q)=%v, want %v", tt.kind, tt.action, tt.from, got, tt.valid)
		}
	}
}
