package leads

import "strings"

// MinSuffixDigits is the shortest normalized phone allowed to match a stored
// number by suffix. Shorter numbers only match exactly, so a bare local
// extension cannot merge unrelated leads.
const MinSuffixDigits = 7

// NormalizePhone strips everything except ASCII digits.
func NormalizePhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PhoneMatches reports whether a stored (normalized) phone belongs to the
// same contact as an incoming normalized phone. The stored number may carry
// a country code the incoming one lacks.
func PhoneMatches(stored, incoming string) bool {
	if stored == "" || incoming == "" {
		return false
	}
	if stored == incoming {
		return true
	}
	if len(incoming) < MinSuffixDigits {
		return false
	}
	return strings.HasSuffix(stored, incoming)
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
