package store

import "smartq/queue-service/internal/models"

// Actions that move a ticket from one status to another.
const (
	ActionArrive  = "arrive"
	ActionCheckIn = "check_in"
	ActionConvert = "convert"
	ActionServe   = "serve"
	ActionCancel  = "cancel"
	ActionNoShow  = "no_show"
	ActionClaim   = "claim"
)

var appointmentTransitions = map[string][]string{
	ActionArrive:  {models.StatusBooked, models.StatusNoShow},
	ActionCheckIn: {models.StatusBooked},
	ActionConvert: {models.StatusBooked},
	ActionClaim:   {models.StatusBooked},
	ActionServe:   {models.StatusArrived},
	ActionCancel:  {models.StatusBooked, models.StatusArrived},
	ActionNoShow:  {models.StatusBooked},
}

var walkInTransitions = map[string][]string{
	ActionServe:  {models.StatusWaiting},
	ActionCancel: {models.StatusWaiting},
}

// FromStatuses lists the statuses a ticket of the given kind may be in for
// the action to apply. Unknown actions allow nothing.
func FromStatuses(kind models.Kind, action string) []string {
	switch kind {
	case models.KindAppointment:
		return appointmentTransitions[action]
	case models.KindWalkIn:
		return walkInTransitions[action]
	default:
		return nil
	}
}

func ValidTransition(kind models.Kind, action, fromStatus string) bool {
	for _, status := range FromStatuses(kind, action) {
		if status == fromStatus {
			return true
		}
	}
	return false
}
