package whatsapp

import (
	"fmt"
	"strings"
	"unicode"
)

// NormalizePhone converts a raw phone number into E.164. Numbers with
// no country prefix get defaultCountryCode prepended. All formatting
// characters are stripped; anything else is rejected.
func NormalizePhone(raw, defaultCountryCode string) (string, error) {
	var b strings.Builder
	hasPlus := false
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r == '+' && i == 0:
			hasPlus = true
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			// Formatting noise.
		default:
			return "", fmt.Errorf("whatsapp: invalid phone number %q", raw)
		}
	}
	digits := b.String()
	if len(digits) < 7 || len(digits) > 15 {
		return "", fmt.Errorf("whatsapp: invalid phone number %q", raw)
	}
	if hasPlus {
		return "+" + digits, nil
	}
	// WhatsApp wa_id values arrive without the plus but already carry
	// the country code. A 10 digit number is assumed local.
	if len(digits) == 10 && defaultCountryCode != "" {
		return "+" + defaultCountryCode + digits, nil
	}
	return "+" + digits, nil
}
