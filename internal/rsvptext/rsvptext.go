// Package rsvptext maps free text (spreadsheet cells, WhatsApp replies) to
// guest statuses using Hebrew and English keywords.
package rsvptext

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"wedding-sync/internal/models"
)

// Keyword lists are checked in order; the negative and uncertain phrases
// come first because they contain the affirmative words.
var (
	maybeKeywords     = []string{"לא בטוח", "לא בטוחה", "לא יודע", "אולי", "not sure", "maybe", "perhaps", "🤔"}
	declinedKeywords  = []string{"לא מגיע", "לא מגיעה", "לא מגיעים", "לא נגיע", "לא", "סירב", "no", "nope", "decline", "declined", "declining", "not coming", "can't come", "won't come", "can't make it", "❌"}
	confirmedKeywords = []string{"כן", "מגיע", "מגיעה", "מגיעים", "נגיע", "אישר", "מאשר", "מאשרת", "yes", "yep", "yeah", "accept", "accepted", "confirmed", "attending", "coming", "will come", "will be there", "✅"}
	pendingKeywords   = []string{"ממתין", "טרם", "pending", "waiting"}

	notAttendedKeywords = []string{"לא הגיע", "לא הגיעה", "לא הגיעו", "לא", "no", "not attended", "absent", "no show", "❌"}
	attendedKeywords    = []string{"הגיע", "הגיעה", "הגיעו", "כן", "yes", "attended", "present", "✓", "✅"}

	notSentKeywords   = []string{"לא נשלח", "not sent", "not_sent"}
	failedKeywords    = []string{"נכשל", "שגיאה", "failed", "error"}
	deliveredKeywords = []string{"נמסר", "התקבל", "delivered", "read", "נקרא"}
	sentKeywords      = []string{"נשלח", "sent"}
)

// Normalize lowercases, NFC-normalizes and collapses whitespace.
func Normalize(text string) string {
	text = norm.NFC.String(strings.ToLower(text))
	return strings.Join(strings.Fields(text), " ")
}

// ParseRSVP maps text to an RSVP status. ok is false when nothing matched.
func ParseRSVP(text string) (status models.RSVPStatus, ok bool) {
	t := Normalize(text)
	switch {
	case t == "":
		return "", false
	case containsAny(t, maybeKeywords...):
		return models.RSVPMaybe, true
	case containsAny(t, declinedKeywords...):
		return models.RSVPDeclined, true
	case containsAny(t, confirmedKeywords...):
		return models.RSVPConfirmed, true
	case containsAny(t, pendingKeywords...):
		return models.RSVPPending, true
	}
	return "", false
}

// RSVPOrPending is ParseRSVP defaulting to pending.
func RSVPOrPending(text string) models.RSVPStatus {
	if s, ok := ParseRSVP(text); ok {
		return s
	}
	return models.RSVPPending
}

// AttendanceOrNotMarked maps text to an attendance value, defaulting to
// not_marked.
func AttendanceOrNotMarked(text string) models.Attendance {
	t := Normalize(text)
	switch {
	case t == "":
		return models.AttendanceNotMarked
	case containsAny(t, notAttendedKeywords...):
		return models.AttendanceNotAttended
	case containsAny(t, attendedKeywords...):
		return models.AttendanceAttended
	}
	return models.AttendanceNotMarked
}

// MessageStatusOrNotSent maps text to a message status, defaulting to
// not_sent.
func MessageStatusOrNotSent(text string) models.MessageStatus {
	t := Normalize(text)
	switch {
	case t == "":
		return models.MessageNotSent
	case containsAny(t, notSentKeywords...):
		return models.MessageNotSent
	case containsAny(t, failedKeywords...):
		return models.MessageFailed
	case containsAny(t, deliveredKeywords...):
		return models.MessageDelivered
	case containsAny(t, sentKeywords...):
		return models.MessageSent
	}
	return models.MessageNotSent
}

// GuestCount returns the first number in text within [1, max].
func GuestCount(text string, max int) (int, bool) {
	for _, field := range strings.FieldsFunc(text, func(r rune) bool { return !unicode.IsDigit(r) }) {
		n, err := strconv.Atoi(field)
		if err == nil && n >= 1 && n <= max {
			return n, true
		}
	}
	return 0, false
}

// containsAny checks if the text contains any of the given keywords as
// whole words. Keywords made of symbols match anywhere.
func containsAny(text string, keywords ...string) bool {
	padded := " " + strings.Join(strings.Fields(strings.Map(wordRune, text)), " ") + " "
	for _, keyword := range keywords {
		if !hasLetter(keyword) {
			if strings.Contains(text, keyword) {
				return true
			}
			continue
		}
		if strings.Contains(padded, " "+keyword+" ") {
			return true
		}
	}
	return false
}

// wordRune turns punctuation into spaces so keywords match next to it.
func wordRune(r rune) rune {
	if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '\'' || r == '_' {
		return r
	}
	return ' '
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
