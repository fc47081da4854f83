// Package resolver decides whether an incoming guest change supersedes the
// cached one. Merges are field level: every field keeps its own write
// clock, the later clock wins and ties go to the incoming side.
package resolver

import (
	"time"

	"wedding-sync/internal/models"
)

// Outcome reports what a merge did.
type Outcome int

const (
	// Applied means at least one incoming field was written.
	Applied Outcome = iota + 1
	// ConflictSkipped means every incoming field lost to a newer local write.
	ConflictSkipped
	// NoOp means the incoming change carried no fields.
	NoOp
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case ConflictSkipped:
		return "conflict_skipped"
	case NoOp:
		return "noop"
	}
	return "unknown"
}

// Resolve merges a new write into current. A nil ResponseDate means the
// write happens now.
func Resolve(current models.Guest, incoming models.GuestUpdate, now time.Time) (models.Guest, Outcome) {
	fields := incoming.Fields()
	if len(fields) == 0 {
		return current, NoOp
	}

	at := now
	if incoming.ResponseDate != nil && !incoming.ResponseDate.IsZero() {
		at = incoming.ResponseDate.Time
	}
	source := incoming.Source
	countAt := at
	if guestCountChanged(current, incoming) {
		countAt, source = freshGuestCountWrite(incoming, now)
	}

	out := current.Clone()
	seedClocks(&out)

	var latest time.Time
	applied := false
	for _, f := range fields {
		fieldAt := at
		if f == models.FieldGuestCount {
			fieldAt = countAt
		}
		if fieldAt.Before(out.ClockFor(f)) {
			continue
		}
		applyField(&out, incoming, f)
		out.Clocks[f] = fieldAt
		if fieldAt.After(latest) {
			latest = fieldAt
		}
		applied = true
	}
	if !applied {
		return current, ConflictSkipped
	}

	if !latest.Before(out.ResponseDate.Time) {
		out.ResponseDate = models.At(latest)
		if source != "" {
			out.Source = source
		}
	}
	return out, Applied
}

// Merge folds a replica's full record (for example one pulled from the
// backend) into current, field by field, using the replica's own clocks.
func Merge(current, remote models.Guest) (models.Guest, Outcome) {
	out := current.Clone()
	seedClocks(&out)
	values := models.UpdateFromGuest(remote)

	applied := false
	for _, f := range models.AllFields {
		remoteAt := remote.ClockFor(f)
		if remoteAt.Before(out.ClockFor(f)) {
			continue
		}
		applyField(&out, values, f)
		out.Clocks[f] = remoteAt
		applied = true
	}
	if !applied {
		return current, ConflictSkipped
	}

	if !remote.ResponseDate.Before(out.ResponseDate.Time) {
		out.ResponseDate = remote.ResponseDate
		if remote.Source != "" {
			out.Source = remote.Source
		}
	}
	return out, Applied
}

func guestCountChanged(current models.Guest, incoming models.GuestUpdate) bool {
	return incoming.GuestCount != nil && *incoming.GuestCount != current.GuestCount
}

// freshGuestCountWrite stamps a guest count change as a new authoritative
// write. Without it a poll could revert the count using an older webhook
// timestamp. Only the guest count clock takes this stamp; the other fields
// of the same update keep the update's own timestamp.
func freshGuestCountWrite(incoming models.GuestUpdate, now time.Time) (time.Time, models.Source) {
	source := incoming.Source
	if source == "" {
		source = models.SourceManual
	}
	return now, source
}

// seedClocks pins every field's clock to the current ResponseDate before
// ResponseDate can move.
func seedClocks(g *models.Guest) {
	if g.Clocks == nil {
		g.Clocks = make(map[models.Field]time.Time, len(models.AllFields))
	}
	for _, f := range models.AllFields {
		if _, ok := g.Clocks[f]; !ok {
			g.Clocks[f] = g.ResponseDate.Time
		}
	}
}

func applyField(g *models.Guest, u models.GuestUpdate, f models.Field) {
	switch f {
	case models.FieldFirstName:
		g.FirstName = *u.FirstName
	case models.FieldLastName:
		g.LastName = *u.LastName
	case models.FieldPhone:
		g.Phone = *u.Phone
	case models.FieldGuestCount:
		g.GuestCount = *u.GuestCount
	case models.FieldRSVPStatus:
		g.RSVPStatus = *u.RSVPStatus
	case models.FieldAttendance:
		g.Attendance = *u.Attendance
	case models.FieldTableID:
		g.TableID = *u.TableID
	case models.FieldNotes:
		g.Notes = *u.Notes
	case models.FieldMessageStatus:
		g.MessageStatus = *u.MessageStatus
	case models.FieldMessageSentDate:
		g.MessageSentDate = *u.MessageSentDate
	case models.FieldMessageDeliveredDate:
		g.MessageDeliveredDate = *u.MessageDeliveredDate
	case models.FieldMessageFailedDate:
		g.MessageFailedDate = *u.MessageFailedDate
	}
}
