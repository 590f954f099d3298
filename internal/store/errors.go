package store

import "errors"

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrWalkInNotFound      = errors.New("walk-in not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSlotTaken           = errors.New("slot already booked")
	ErrInvalidState        = errors.New("invalid ticket state")
	ErrStaleState          = errors.New("ticket state does not allow this action")
	ErrDuplicateCode       = errors.New("ticket code already issued")
)
