package models

import (
	"strings"
	"time"
)

// Guest represents a wedding guest
type Guest struct {
	ID                   string        `json:"id"`
	FirstName            string        `json:"first_name"`
	LastName             string        `json:"last_name,omitempty"`
	Phone                string        `json:"phone"`
	GuestCount           int           `json:"guest_count"`
	RSVPStatus           RSVPStatus    `json:"rsvp_status"`
	Attendance           Attendance    `json:"actual_attendance"`
	TableID              string        `json:"table_id,omitempty"`
	Notes                string        `json:"notes,omitempty"`
	MessageStatus        MessageStatus `json:"message_status"`
	ResponseDate         Timestamp     `json:"response_date"`
	Source               Source        `json:"source,omitempty"`
	MessageSentDate      Timestamp     `json:"message_sent_date"`
	MessageDeliveredDate Timestamp     `json:"message_delivered_date"`
	MessageFailedDate    Timestamp     `json:"message_failed_date"`

	// Clocks holds the last write time of each field. Fields without an
	// entry fall back to ResponseDate.
	Clocks map[Field]time.Time `json:"field_clocks,omitempty"`
}

// RSVPStatus represents the attendance confirmation status
type RSVPStatus string

const (
	RSVPPending   RSVPStatus = "pending"
	RSVPConfirmed RSVPStatus = "confirmed"
	RSVPDeclined  RSVPStatus = "declined"
	RSVPMaybe     RSVPStatus = "maybe"
)

func (s RSVPStatus) Valid() bool {
	switch s {
	case RSVPPending, RSVPConfirmed, RSVPDeclined, RSVPMaybe:
		return true
	}
	return false
}

// Attendance records whether the guest actually showed up
type Attendance string

const (
	AttendanceNotMarked   Attendance = "not_marked"
	AttendanceAttended    Attendance = "attended"
	AttendanceNotAttended Attendance = "not_attended"
)

func (a Attendance) Valid() bool {
	switch a {
	case AttendanceNotMarked, AttendanceAttended, AttendanceNotAttended:
		return true
	}
	return false
}

// MessageStatus tracks the invitation message lifecycle
type MessageStatus string

const (
	MessageNotSent   MessageStatus = "not_sent"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageFailed    MessageStatus = "failed"
)

func (m MessageStatus) Valid() bool {
	switch m {
	case MessageNotSent, MessageSent, MessageDelivered, MessageFailed:
		return true
	}
	return false
}

// Source identifies the actor that produced the last update
type Source string

const (
	SourceManual    Source = "manual_update"
	SourceGuestLink Source = "guest_link"
	SourceWebhook   Source = "webhook"
	SourceImport    Source = "import"
)

// Field names a mergeable guest field.
type Field string

const (
	FieldFirstName            Field = "first_name"
	FieldLastName             Field = "last_name"
	FieldPhone                Field = "phone"
	FieldGuestCount           Field = "guest_count"
	FieldRSVPStatus           Field = "rsvp_status"
	FieldAttendance           Field = "actual_attendance"
	FieldTableID              Field = "table_id"
	FieldNotes                Field = "notes"
	FieldMessageStatus        Field = "message_status"
	FieldMessageSentDate      Field = "message_sent_date"
	FieldMessageDeliveredDate Field = "message_delivered_date"
	FieldMessageFailedDate    Field = "message_failed_date"
)

// AllFields lists every mergeable field.
var AllFields = []Field{
	FieldFirstName, FieldLastName, FieldPhone, FieldGuestCount, FieldRSVPStatus,
	FieldAttendance, FieldTableID, FieldNotes, FieldMessageStatus,
	FieldMessageSentDate, FieldMessageDeliveredDate, FieldMessageFailedDate,
}

// FullName joins first and last name.
func (g Guest) FullName() string {
	return strings.TrimSpace(g.FirstName + " " + g.LastName)
}

// ClockFor returns the last write time of f.
func (g Guest) ClockFor(f Field) time.Time {
	if t, ok := g.Clocks[f]; ok {
		return t
	}
	return g.ResponseDate.Time
}

// Clone returns a deep copy of the guest.
func (g Guest) Clone() Guest {
	if g.Clocks != nil {
		clocks := make(map[Field]time.Time, len(g.Clocks))
		for f, t := range g.Clocks {
			clocks[f] = t
		}
		g.Clocks = clocks
	}
	return g
}

// NewGuest returns a guest with every status at its initial value.
func NewGuest(id string) Guest {
	return Guest{
		ID:            id,
		GuestCount:    1,
		RSVPStatus:    RSVPPending,
		Attendance:    AttendanceNotMarked,
		MessageStatus: MessageNotSent,
	}
}
