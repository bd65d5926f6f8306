package messaging

import "strings"

// DefaultCountryCode is prefixed to bare 10-digit numbers.
const DefaultCountryCode = "91"

// NormalizePhone turns a user-entered phone number into a chat id of the form
// <digits>@c.us. Ids that already carry a domain are returned unchanged. It
// returns "" when no digits remain.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "@") {
		return raw
	}
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimLeft(b.String(), "0")
	if digits == "" {
		return ""
	}
	if len(digits) == 10 {
		digits = DefaultCountryCode + digits
	}
	return digits + "@c.us"
}
