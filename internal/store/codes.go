package store

import (
	"crypto/rand"
	"fmt"
	"strings"

	"smartq/queue-service/internal/models"
)

// Ticket codes are shown on the public board and used for check-in, so they
// are random rather than sequential. The alphabet drops 0/O, 1/I/L and U.
const (
	codeAlphabet = "23456789ABCDEFGHJKMNPQRSTVWXYZ"
	codeLength   = 6

	// CodeAttempts bounds retries when a generated code collides.
	CodeAttempts = 5
)

func NewTicketCode(kind models.Kind) (string, error) {
	prefix := "A"
	if kind == models.KindWalkIn {
		prefix = "W"
	}
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("ticket code: %w", err)
	}
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte('-')
	for _, v := range buf {
		b.WriteByte(codeAlphabet[int(v)%len(codeAlphabet)])
	}
	return b.String(), nil
}

// NormalizeTicketCode upper-cases and trims a code typed by a visitor.
func NormalizeTicketCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
