// Package contact normalizes the identifiers used to find an appointment
// without knowing its backend id.
package contact

import (
	"strings"
	"unicode"
)

// Key is the email and/or phone a customer is known by.
type Key struct {
	Email string
	Phone string
}

// New builds a normalized key.
func New(email, phone string) Key {
	return Key{Email: NormalizeEmail(email), Phone: NormalizePhone(phone)}
}

// Empty reports whether neither identifier is set.
func (k Key) Empty() bool {
	return k.Email == "" && k.Phone == ""
}

// Matches reports whether either identifier equals the normalized
// email/phone stored on an appointment.
func (k Key) Matches(email, phone string) bool {
	if k.Email != "" && k.Email == NormalizeEmail(email) {
		return true
	}
	if k.Phone != "" && k.Phone == NormalizePhone(phone) {
		return true
	}
	return false
}

func (k Key) String() string {
	switch {
	case k.Email != "" && k.Phone != "":
		return k.Email + " / " + k.Phone
	case k.Email != "":
		return k.Email
	default:
		return k.Phone
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone keeps only digits, preserving a leading '+'.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}
	var b strings.Builder
	if strings.HasPrefix(phone, "+") {
		b.WriteByte('+')
	}
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 1 && phone[0] == '+' {
		return ""
	}
	return b.String()
}
