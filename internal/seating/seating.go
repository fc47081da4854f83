// Package seating keeps guests' TableID and tables' member lists in step.
// It is the only code that writes both sides of that relationship.
package seating

import (
	"fmt"

	"wedding-sync/internal/errs"
	"wedding-sync/internal/models"
)

// Action is a seating operation.
type Action string

const (
	ActionAssign Action = "assign"
	ActionMove   Action = "move"
	ActionRemove Action = "remove"
)

func (a Action) Valid() bool {
	switch a {
	case ActionAssign, ActionMove, ActionRemove:
		return true
	}
	return false
}

// Change describes one guest moving between tables. An empty From means
// the guest was unseated, an empty To means the guest is being unseated.
type Change struct {
	GuestID string `json:"guest_id"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Action  Action `json:"action"`
}

// Plan validates a seating operation against e without modifying it.
func Plan(e models.Event, guestID, tableID string, action Action) (Change, error) {
	const op = "seating.Plan"

	if !action.Valid() {
		return Change{}, errs.Validation(op, "unknown action %q", action)
	}
	gi := e.GuestIndex(guestID)
	if gi < 0 {
		return Change{}, errs.NotFound(op, "guest %s not found in event %s", guestID, e.ID)
	}
	guest := e.Guests[gi]
	change := Change{GuestID: guestID, From: guest.TableID, Action: action}

	if action == ActionRemove {
		return change, nil
	}

	if tableID == "" {
		return Change{}, errs.Validation(op, "table id is required to %s", action)
	}
	ti := e.TableIndex(tableID)
	if ti < 0 {
		return Change{}, errs.NotFound(op, "table %s not found in event %s", tableID, e.ID)
	}
	if action == ActionMove && guest.TableID == "" {
		return Change{}, errs.Validation(op, "guest %s is not seated", guestID)
	}
	if guest.TableID != tableID {
		if err := checkCapacity(e, e.Tables[ti], guest); err != nil {
			return Change{}, err
		}
	}
	change.To = tableID
	return change, nil
}

// Apply performs a planned change on e, writing the guest and every
// table's member list together. e is left untouched on error.
func Apply(e *models.Event, c Change) error {
	gi := e.GuestIndex(c.GuestID)
	if gi < 0 {
		return errs.NotFound("seating.Apply", "guest %s not found in event %s", c.GuestID, e.ID)
	}
	ti := -1
	if c.To != "" {
		if ti = e.TableIndex(c.To); ti < 0 {
			return errs.NotFound("seating.Apply", "table %s not found in event %s", c.To, e.ID)
		}
	}

	for i := range e.Tables {
		e.Tables[i].GuestIDs = without(e.Tables[i].GuestIDs, c.GuestID)
	}
	if ti >= 0 {
		e.Tables[ti].GuestIDs = append(e.Tables[ti].GuestIDs, c.GuestID)
	}
	e.Guests[gi].TableID = c.To
	return nil
}

// Rebuild derives every table's member list from the guests' TableID,
// clearing TableIDs that point at tables which no longer exist.
func Rebuild(e *models.Event) {
	index := make(map[string]int, len(e.Tables))
	for i := range e.Tables {
		index[e.Tables[i].ID] = i
		e.Tables[i].GuestIDs = make([]string, 0)
	}
	for gi := range e.Guests {
		g := &e.Guests[gi]
		if g.TableID == "" {
			continue
		}
		ti, ok := index[g.TableID]
		if !ok {
			g.TableID = ""
			continue
		}
		e.Tables[ti].GuestIDs = append(e.Tables[ti].GuestIDs, g.ID)
	}
}

// RemoveGuest drops a guest from every member list.
func RemoveGuest(e *models.Event, guestID string) {
	for i := range e.Tables {
		e.Tables[i].GuestIDs = without(e.Tables[i].GuestIDs, guestID)
	}
}

// Check verifies the guest/table invariants.
func Check(e models.Event) error {
	seatedAt := make(map[string]string)
	for _, t := range e.Tables {
		for _, id := range t.GuestIDs {
			if prev, ok := seatedAt[id]; ok {
				return fmt.Errorf("guest %s is a member of tables %s and %s", id, prev, t.ID)
			}
			seatedAt[id] = t.ID
		}
	}
	for _, g := range e.Guests {
		if g.TableID == "" {
			if t, ok := seatedAt[g.ID]; ok {
				return fmt.Errorf("guest %s has no table but is a member of %s", g.ID, t)
			}
			continue
		}
		if e.TableIndex(g.TableID) < 0 {
			return fmt.Errorf("guest %s references missing table %s", g.ID, g.TableID)
		}
		if seatedAt[g.ID] != g.TableID {
			return fmt.Errorf("guest %s references table %s but is listed under %q", g.ID, g.TableID, seatedAt[g.ID])
		}
		delete(seatedAt, g.ID)
	}
	for id, t := range seatedAt {
		return fmt.Errorf("table %s lists unknown guest %s", t, id)
	}
	return nil
}

// SeatsTaken sums the guest counts seated at table.
func SeatsTaken(e models.Event, table models.Table) int {
	seats := 0
	for _, id := range table.GuestIDs {
		if gi := e.GuestIndex(id); gi >= 0 {
			seats += e.Guests[gi].GuestCount
		}
	}
	return seats
}

func checkCapacity(e models.Event, table models.Table, guest models.Guest) error {
	if table.Capacity <= 0 {
		return nil
	}
	if taken := SeatsTaken(e, table); taken+guest.GuestCount > table.Capacity {
		return errs.Validation("seating.Plan", "table %d has %d of %d seats taken, cannot seat %d more",
			table.Number, taken, table.Capacity, guest.GuestCount)
	}
	return nil
}

func without(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
