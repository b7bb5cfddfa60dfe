package store

import "strings"

// NormalizePhone reduces a phone number to its digits so that formatting
// variations ("+55 (11) 91234-5678" vs "5511912345678") cannot create
// duplicate leads. Idempotent.
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
