package models

import "time"

// Event is a single wedding with its guests, tables and campaigns
type Event struct {
	ID        string     `json:"id"`
	Date      string     `json:"date"`
	Venue     string     `json:"venue"`
	BrideName string     `json:"bride_name"`
	GroomName string     `json:"groom_name"`
	UpdatedAt Timestamp  `json:"updated_at"`
	Guests    []Guest    `json:"guests"`
	Tables    []Table    `json:"tables"`
	Campaigns []Campaign `json:"campaigns"`
}

// EventSet is the full event graph as returned by the backend.
type EventSet []Event

// Table is a seating table
type Table struct {
	ID       string   `json:"id"`
	Number   int      `json:"number"`
	Capacity int      `json:"capacity"`
	GuestIDs []string `json:"guest_ids"`
}

// GuestIndex returns the position of the guest or -1.
func (e *Event) GuestIndex(id string) int {
	for i := range e.Guests {
		if e.Guests[i].ID == id {
			return i
		}
	}
	return -1
}

// TableIndex returns the position of the table or -1.
func (e *Event) TableIndex(id string) int {
	for i := range e.Tables {
		if e.Tables[i].ID == id {
			return i
		}
	}
	return -1
}

// TableByNumber looks up a table by its display number.
func (e *Event) TableByNumber(n int) (Table, bool) {
	for _, t := range e.Tables {
		if t.Number == n {
			return t, true
		}
	}
	return Table{}, false
}

// Touch advances UpdatedAt to now, or just past the previous value when
// the clock has not moved forward.
func (e *Event) Touch(now time.Time) {
	if !now.After(e.UpdatedAt.Time) {
		now = e.UpdatedAt.Add(time.Millisecond)
	}
	e.UpdatedAt = At(now)
}

// Clone returns a deep copy of the event.
func (e Event) Clone() Event {
	guests := make([]Guest, len(e.Guests))
	for i, g := range e.Guests {
		guests[i] = g.Clone()
	}
	tables := make([]Table, len(e.Tables))
	for i, t := range e.Tables {
		t.GuestIDs = append([]string(nil), t.GuestIDs...)
		tables[i] = t
	}
	e.Guests = guests
	e.Tables = tables
	e.Campaigns = append([]Campaign(nil), e.Campaigns...)
	return e
}

// Clone deep-copies every event in the set.
func (s EventSet) Clone() EventSet {
	out := make(EventSet, len(s))
	for i, e := range s {
		out[i] = e.Clone()
	}
	return out
}
