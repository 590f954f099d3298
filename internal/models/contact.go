package models

import (
	"errors"
	"net/mail"
	"strings"
)

var ErrInvalidContact = errors.New("contact must be a phone number of 8-16 digits or an email address")

// Contact is a phone number or an email address, normalized so that repeat
// visits by the same person compare equal.
type Contact struct {
	Phone string
	Email string
}

func ParseContact(raw string) (Contact, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Contact{}, ErrInvalidContact
	}
	if strings.Contains(raw, "@") {
		addr, err := mail.ParseAddress(raw)
		if err != nil || addr.Name != "" {
			return Contact{}, ErrInvalidContact
		}
		return Contact{Email: strings.ToLower(addr.Address)}, nil
	}
	phone := normalizePhone(raw)
	if len(phone) < 8 || len(phone) > 16 {
		return Contact{}, ErrInvalidContact
	}
	return Contact{Phone: phone}, nil
}

func normalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.' || r == '+':
		default:
			return ""
		}
	}
	return b.String()
}

// Matches reports whether the contact identifies the user.
func (c Contact) Matches(user User) bool {
	if c.Phone != "" && c.Phone == user.Phone {
		return true
	}
	if c.Email != "" && strings.EqualFold(c.Email, user.Email) {
		return true
	}
	return false
}
