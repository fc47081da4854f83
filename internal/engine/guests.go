package engine

import (
	"context"
	"strings"
	"time"

	"wedding-sync/internal/errs"
	"wedding-sync/internal/models"
	"wedding-sync/internal/resolver"
	"wedding-sync/internal/seating"
)

// ApplyGuestUpdate merges update into the cached guest, notifies
// subscribers and persists the change in the background. A change that
// loses to newer local state returns the unchanged guest and no error.
func (e *Engine) ApplyGuestUpdate(ctx context.Context, eventID, guestID string, update models.GuestUpdate) (models.Guest, error) {
	const op = "engine.ApplyGuestUpdate"

	if update.TableID != nil {
		return models.Guest{}, errs.Validation(op, "table changes go through seating operations")
	}
	if err := validateUpdate(op, update); err != nil {
		return models.Guest{}, err
	}
	if update.Source == "" {
		update.Source = models.SourceManual
	}

	now := e.now()
	var (
		guest   models.Guest
		outcome resolver.Outcome
	)
	event, err := e.store.Update(eventID, func(ev *models.Event) error {
		i := ev.GuestIndex(guestID)
		if i < 0 {
			return errs.NotFound(op, "guest %s not found in event %s", guestID, eventID)
		}
		guest, outcome = resolver.Resolve(ev.Guests[i], update, now)
		if outcome != resolver.Applied {
			return nil
		}
		ev.Guests[i] = guest
		ev.Touch(now)
		return nil
	})
	if err != nil {
		return models.Guest{}, err
	}

	e.log.Debug().
		Str("event", eventID).
		Str("guest", guestID).
		Stringer("outcome", outcome).
		Msg("Guest update resolved")
	if outcome != resolver.Applied {
		return guest, nil
	}

	e.notify.publish(event)
	e.persistAsync(eventID, guestID, persistable(guest, update, now))
	return guest, nil
}

// persistable keeps the fields the resolver wrote and stamps them with
// their clock, so the backend orders the write the same way the cache did.
// The guest count is always sent; a changed count is stamped fresh on the
// backend as well.
func persistable(g models.Guest, u models.GuestUpdate, now time.Time) models.GuestUpdate {
	at := now
	if u.ResponseDate != nil && !u.ResponseDate.IsZero() {
		at = u.ResponseDate.Time
	}

	stamp := time.Time{}
	for _, f := range u.Fields() {
		if f == models.FieldGuestCount {
			continue
		}
		if !g.ClockFor(f).Equal(at) {
			u = u.Without(f)
			continue
		}
		stamp = at
	}
	if stamp.IsZero() {
		stamp = g.ClockFor(models.FieldGuestCount)
	}
	u.ResponseDate = models.Ptr(models.At(stamp))
	if u.GuestCount != nil && g.Source != "" {
		u.Source = g.Source
	}
	return u
}

func validateUpdate(op string, u models.GuestUpdate) error {
	if u.GuestCount != nil && *u.GuestCount < 1 {
		return errs.Validation(op, "guest count must be at least 1, got %d", *u.GuestCount)
	}
	if u.RSVPStatus != nil && !u.RSVPStatus.Valid() {
		return errs.Validation(op, "unknown rsvp status %q", *u.RSVPStatus)
	}
	if u.Attendance != nil && !u.Attendance.Valid() {
		return errs.Validation(op, "unknown attendance %q", *u.Attendance)
	}
	if u.MessageStatus != nil && !u.MessageStatus.Valid() {
		return errs.Validation(op, "unknown message status %q", *u.MessageStatus)
	}
	return nil
}

func (e *Engine) persistAsync(eventID, guestID string, update models.GuestUpdate) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ctx, cancel := e.withTimeout(context.Background())
		defer cancel()

		if err := e.gw.PatchGuest(ctx, eventID, guestID, update); err != nil {
			e.log.Error().Err(err).
				Str("event", eventID).
				Str("guest", guestID).
				Msg("Failed to persist guest update")
			if !errs.IsNotFound(err) && !errs.IsValidation(err) {
				e.deferPatch(eventID, guestID, update)
			}
			return
		}
		e.save()
	}()
}

// deferPatch keeps a failed write for the next poll of its event.
func (e *Engine) deferPatch(eventID, guestID string, update models.GuestUpdate) {
	e.unsyncedMu.Lock()
	defer e.unsyncedMu.Unlock()
	e.unsynced[eventID] = append(e.unsynced[eventID], pendingPatch{guestID: guestID, update: update})
}

// flushDeferred retries writes that failed earlier, in their original
// order. Writes that fail again stay queued.
func (e *Engine) flushDeferred(ctx context.Context, eventID string) {
	e.unsyncedMu.Lock()
	patches := e.unsynced[eventID]
	delete(e.unsynced, eventID)
	e.unsyncedMu.Unlock()

	for i, p := range patches {
		err := e.gw.PatchGuest(ctx, eventID, p.guestID, p.update)
		if err == nil || errs.IsNotFound(err) || errs.IsValidation(err) {
			continue
		}
		e.log.Warn().Err(err).Str("event", eventID).Int("left", len(patches)-i).Msg("Deferred guest updates still failing")
		e.unsyncedMu.Lock()
		e.unsynced[eventID] = append(patches[i:], e.unsynced[eventID]...)
		e.unsyncedMu.Unlock()
		return
	}
}

// AddGuest is the creation path shared by manual adds and imports. The
// guest is inserted into the cache only after the backend accepted it.
func (e *Engine) AddGuest(ctx context.Context, eventID string, g models.Guest) (models.Guest, error) {
	const op = "engine.AddGuest"

	g, err := e.normalizeNewGuest(op, g)
	if err != nil {
		return models.Guest{}, err
	}

	event, err := e.store.Event(eventID)
	if err != nil {
		return models.Guest{}, err
	}
	if event.GuestIndex(g.ID) >= 0 {
		return models.Guest{}, errs.Validation(op, "guest %s already exists", g.ID)
	}
	if g.TableID != "" && event.TableIndex(g.TableID) < 0 {
		return models.Guest{}, errs.NotFound(op, "table %s not found in event %s", g.TableID, eventID)
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	created, err := e.gw.CreateGuest(ctx, eventID, g)
	if err != nil {
		return models.Guest{}, err
	}
	if created.ID != g.ID {
		created = g
	}
	now := e.now()
	e.created.Store(created.ID, now)

	event, err = e.store.Update(eventID, func(ev *models.Event) error {
		if ev.GuestIndex(created.ID) >= 0 {
			return nil
		}
		table := created.TableID
		created.TableID = ""
		ev.Guests = append(ev.Guests, created)
		if table != "" && ev.TableIndex(table) >= 0 {
			if err := seating.Apply(ev, seating.Change{GuestID: created.ID, To: table, Action: seating.ActionAssign}); err != nil {
				return err
			}
		}
		ev.Touch(now)
		return nil
	})
	if err != nil {
		return models.Guest{}, err
	}

	e.notify.publish(event)
	e.save()
	if i := event.GuestIndex(created.ID); i >= 0 {
		return event.Guests[i], nil
	}
	return created, nil
}

func (e *Engine) normalizeNewGuest(op string, g models.Guest) (models.Guest, error) {
	g.FirstName = strings.TrimSpace(g.FirstName)
	g.LastName = strings.TrimSpace(g.LastName)
	g.Phone = strings.TrimSpace(g.Phone)
	if g.FirstName == "" && g.LastName == "" && g.Phone == "" {
		return models.Guest{}, errs.Validation(op, "a guest needs a name or a phone")
	}

	if g.GuestCount == 0 {
		g.GuestCount = 1
	}
	if g.RSVPStatus == "" {
		g.RSVPStatus = models.RSVPPending
	}
	if g.Attendance == "" {
		g.Attendance = models.AttendanceNotMarked
	}
	if g.MessageStatus == "" {
		g.MessageStatus = models.MessageNotSent
	}
	if err := validateUpdate(op, models.UpdateFromGuest(g)); err != nil {
		return models.Guest{}, err
	}

	if g.ID == "" {
		g.ID = e.cfg.NewID()
	}
	if g.Source == "" {
		g.Source = models.SourceManual
	}
	if g.ResponseDate.IsZero() {
		g.ResponseDate = models.At(e.now())
	}
	g.Clocks = nil
	return g, nil
}

// DeleteGuest removes a guest from the backend, then from the cache along
// with its table membership.
func (e *Engine) DeleteGuest(ctx context.Context, eventID, guestID string) error {
	const op = "engine.DeleteGuest"

	event, err := e.store.Event(eventID)
	if err != nil {
		return err
	}
	if event.GuestIndex(guestID) < 0 {
		return errs.NotFound(op, "guest %s not found in event %s", guestID, eventID)
	}

	now := e.now()
	e.tombstones.Store(guestID, now)

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	if err := e.gw.DeleteGuest(ctx, eventID, guestID); err != nil && !errs.IsNotFound(err) {
		e.tombstones.Delete(guestID)
		return err
	}

	event, err = e.store.Update(eventID, func(ev *models.Event) error {
		i := ev.GuestIndex(guestID)
		if i < 0 {
			return nil
		}
		seating.RemoveGuest(ev, guestID)
		ev.Guests = append(ev.Guests[:i], ev.Guests[i+1:]...)
		ev.Touch(now)
		return nil
	})
	if err != nil {
		return err
	}

	e.notify.publish(event)
	e.save()
	return nil
}
