package models

// GuestUpdate is a partial guest change. Nil fields are left untouched.
type GuestUpdate struct {
	FirstName            *string        `json:"first_name,omitempty"`
	LastName             *string        `json:"last_name,omitempty"`
	Phone                *string        `json:"phone,omitempty"`
	GuestCount           *int           `json:"guest_count,omitempty"`
	RSVPStatus           *RSVPStatus    `json:"rsvp_status,omitempty"`
	Attendance           *Attendance    `json:"actual_attendance,omitempty"`
	TableID              *string        `json:"table_id,omitempty"`
	Notes                *string        `json:"notes,omitempty"`
	MessageStatus        *MessageStatus `json:"message_status,omitempty"`
	MessageSentDate      *Timestamp     `json:"message_sent_date,omitempty"`
	MessageDeliveredDate *Timestamp     `json:"message_delivered_date,omitempty"`
	MessageFailedDate    *Timestamp     `json:"message_failed_date,omitempty"`

	// ResponseDate orders this update against others. Nil means now.
	ResponseDate *Timestamp `json:"response_date,omitempty"`
	Source       Source     `json:"source,omitempty"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Fields lists the fields present in the update.
func (u GuestUpdate) Fields() []Field {
	var fields []Field
	add := func(present bool, f Field) {
		if present {
			fields = append(fields, f)
		}
	}
	add(u.FirstName != nil, FieldFirstName)
	add(u.LastName != nil, FieldLastName)
	add(u.Phone != nil, FieldPhone)
	add(u.GuestCount != nil, FieldGuestCount)
	add(u.RSVPStatus != nil, FieldRSVPStatus)
	add(u.Attendance != nil, FieldAttendance)
	add(u.TableID != nil, FieldTableID)
	add(u.Notes != nil, FieldNotes)
	add(u.MessageStatus != nil, FieldMessageStatus)
	add(u.MessageSentDate != nil, FieldMessageSentDate)
	add(u.MessageDeliveredDate != nil, FieldMessageDeliveredDate)
	add(u.MessageFailedDate != nil, FieldMessageFailedDate)
	return fields
}

// IsEmpty reports whether the update carries no field.
func (u GuestUpdate) IsEmpty() bool {
	return len(u.Fields()) == 0
}

// UpdateFromGuest expresses a full guest record as an update stamped with
// the guest's own ResponseDate and Source.
func UpdateFromGuest(g Guest) GuestUpdate {
	u := GuestUpdate{
		FirstName:            Ptr(g.FirstName),
		LastName:             Ptr(g.LastName),
		Phone:                Ptr(g.Phone),
		GuestCount:           Ptr(g.GuestCount),
		RSVPStatus:           Ptr(g.RSVPStatus),
		Attendance:           Ptr(g.Attendance),
		TableID:              Ptr(g.TableID),
		Notes:                Ptr(g.Notes),
		MessageStatus:        Ptr(g.MessageStatus),
		MessageSentDate:      Ptr(g.MessageSentDate),
		MessageDeliveredDate: Ptr(g.MessageDeliveredDate),
		MessageFailedDate:    Ptr(g.MessageFailedDate),
		Source:               g.Source,
	}
	if !g.ResponseDate.IsZero() {
		u.ResponseDate = Ptr(g.ResponseDate)
	}
	return u
}

// Without returns a copy of u with f cleared.
func (u GuestUpdate) Without(f Field) GuestUpdate {
	switch f {
	case FieldFirstName:
		u.FirstName = nil
	case FieldLastName:
		u.LastName = nil
	case FieldPhone:
		u.Phone = nil
	case FieldGuestCount:
		u.GuestCount = nil
	case FieldRSVPStatus:
		u.RSVPStatus = nil
	case FieldAttendance:
		u.Attendance = nil
	case FieldTableID:
		u.TableID = nil
	case FieldNotes:
		u.Notes = nil
	case FieldMessageStatus:
		u.MessageStatus = nil
	case FieldMessageSentDate:
		u.MessageSentDate = nil
	case FieldMessageDeliveredDate:
		u.MessageDeliveredDate = nil
	case FieldMessageFailedDate:
		u.MessageFailedDate = nil
	}
	return u
}
