package rsvptext

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"wedding-sync/internal/models"
)

func TestParseRSVP(t *testing.T) {
	cases := map[string]models.RSVPStatus{
		"כן":              models.RSVPConfirmed,
		"מגיעים!":         models.RSVPConfirmed,
		"Yes, we'll come": models.RSVPConfirmed,
		"✅":               models.RSVPConfirmed,
		"לא מגיע":         models.RSVPDeclined,
		"לא":              models.RSVPDeclined,
		"NO":              models.RSVPDeclined,
		"can't make it":   models.RSVPDeclined,
		"אולי":            models.RSVPMaybe,
		"לא בטוח עדיין":   models.RSVPMaybe,
		"not sure":        models.RSVPMaybe,
		"ממתין":           models.RSVPPending,
	}
	for text, want := range cases {
		got, ok := ParseRSVP(text)
		assert.True(t, ok, text)
		assert.Equal(t, want, got, text)
	}
}

func TestParseRSVP_Unrecognized(t *testing.T) {
	for _, text := range []string{"", "   ", "hello there", "know", "nothing"} {
		_, ok := ParseRSVP(text)
		assert.False(t, ok, text)
		assert.Equal(t, models.RSVPPending, RSVPOrPending(text))
	}
}

func TestAttendanceOrNotMarked(t *testing.T) {
	assert.Equal(t, models.AttendanceAttended, AttendanceOrNotMarked("הגיע"))
	assert.Equal(t, models.AttendanceNotAttended, AttendanceOrNotMarked("לא הגיע"))
	assert.Equal(t, models.AttendanceAttended, AttendanceOrNotMarked("Yes"))
	assert.Equal(t, models.AttendanceNotMarked, AttendanceOrNotMarked(""))
	assert.Equal(t, models.AttendanceNotMarked, AttendanceOrNotMarked("?"))
}

func TestMessageStatusOrNotSent(t *testing.T) {
	assert.Equal(t, models.MessageSent, MessageStatusOrNotSent("נשלח"))
	assert.Equal(t, models.MessageNotSent, MessageStatusOrNotSent("לא נשלח"))
	assert.Equal(t, models.MessageDelivered, MessageStatusOrNotSent("Delivered"))
	assert.Equal(t, models.MessageFailed, MessageStatusOrNotSent("failed"))
	assert.Equal(t, models.MessageNotSent, MessageStatusOrNotSent(""))
}

func TestGuestCount(t *testing.T) {
	n, ok := GuestCount("כן, מגיעים 3", 20)
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok = GuestCount("yes", 20)
	assert.False(t, ok)

	_, ok = GuestCount("0521234567", 20)
	assert.False(t, ok)
}
