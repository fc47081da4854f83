package engine

import (
	"context"

	"wedding-sync/internal/errs"
	"wedding-sync/internal/models"
	"wedding-sync/internal/resolver"
	"wedding-sync/internal/seating"
)

// AssignToTable seats an unseated guest, or reseats a seated one.
func (e *Engine) AssignToTable(ctx context.Context, eventID, guestID, tableID string) (models.Guest, error) {
	return e.seat(ctx, eventID, guestID, tableID, seating.ActionAssign)
}

// MoveToTable moves a seated guest to another table.
func (e *Engine) MoveToTable(ctx context.Context, eventID, guestID, tableID string) (models.Guest, error) {
	return e.seat(ctx, eventID, guestID, tableID, seating.ActionMove)
}

// RemoveFromTable unseats a guest. Removing an unseated guest is a no-op.
func (e *Engine) RemoveFromTable(ctx context.Context, eventID, guestID string) (models.Guest, error) {
	return e.seat(ctx, eventID, guestID, "", seating.ActionRemove)
}

// seat persists the planned change first and commits the guest and table
// sides to the cache only once the backend accepted it.
func (e *Engine) seat(ctx context.Context, eventID, guestID, tableID string, action seating.Action) (models.Guest, error) {
	const op = "engine.seat"

	event, err := e.store.Event(eventID)
	if err != nil {
		return models.Guest{}, err
	}
	change, err := seating.Plan(event, guestID, tableID, action)
	if err != nil {
		return models.Guest{}, err
	}
	if change.From == change.To {
		return event.Guests[event.GuestIndex(guestID)], nil
	}

	rctx, cancel := e.withTimeout(ctx)
	defer cancel()
	if err := e.gw.AssignTable(rctx, eventID, change); err != nil {
		e.log.Warn().Err(err).
			Str("event", eventID).
			Str("guest", guestID).
			Str("action", string(action)).
			Msg("Seating change not persisted")
		return models.Guest{}, err
	}

	now := e.now()
	var guest models.Guest
	event, err = e.store.Update(eventID, func(ev *models.Event) error {
		i := ev.GuestIndex(guestID)
		if i < 0 {
			return errs.NotFound(op, "guest %s not found in event %s", guestID, eventID)
		}
		resolved, _ := resolver.Resolve(ev.Guests[i], models.GuestUpdate{
			TableID: models.Ptr(change.To),
			Source:  models.SourceManual,
		}, now)
		ev.Guests[i] = resolved
		if err := seating.Apply(ev, change); err != nil {
			return err
		}
		ev.Touch(now)
		guest = ev.Guests[i]
		return nil
	})
	if err != nil {
		return models.Guest{}, err
	}

	e.notify.publish(event)
	e.save()
	return guest, nil
}
