package models

import "strings"

// PhoneDigits strips every non-digit character.
func PhoneDigits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PhoneKey normalizes a phone number to international digits so that a
// local Israeli number (05XXXXXXXX) matches the provider's 9725XXXXXXXX.
func PhoneKey(phone string) string {
	digits := PhoneDigits(phone)
	if strings.HasPrefix(digits, "0") && len(digits) == 10 {
		digits = "972" + digits[1:]
	}
	if strings.HasPrefix(digits, "9720") {
		digits = "972" + digits[4:]
	}
	return digits
}
