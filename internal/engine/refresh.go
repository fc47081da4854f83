package engine

import (
	"context"
	"time"

	"wedding-sync/internal/errs"
	"wedding-sync/internal/fingerprint"
	"wedding-sync/internal/models"
	"wedding-sync/internal/resolver"
	"wedding-sync/internal/seating"
)

// Refresh pulls the backend's events and merges them into the cache.
// Unless force is set nothing happens when the pulled events fingerprint
// the same as the cache. A silent refresh logs failures and returns the
// cached events instead of an error.
func (e *Engine) Refresh(ctx context.Context, force, silent bool) (models.EventSet, error) {
	started := e.now()

	rctx, cancel := e.withTimeout(ctx)
	defer cancel()
	pulled, err := e.gw.FetchEvents(rctx)
	if err != nil {
		e.log.Warn().Err(err).Bool("silent", silent).Msg("Refresh failed")
		if silent || softFail(err) {
			return e.store.Events(), nil
		}
		return nil, err
	}

	e.clearTombstones(pulled)

	cached := e.store.Events()
	if !force && fingerprint.Events(pulled) == fingerprint.Events(cached) {
		return cached, nil
	}

	ids := make([]string, 0, len(pulled))
	for _, remote := range pulled {
		ids = append(ids, remote.ID)
		merged, err := e.store.Update(remote.ID, func(local *models.Event) error {
			e.mergeEvent(local, remote, started)
			return nil
		})
		if errs.IsNotFound(err) {
			merged = remote.Clone()
			seating.Rebuild(&merged)
			e.store.Put(merged)
		} else if err != nil {
			return nil, err
		}
		e.notify.publish(merged)
	}

	for _, ev := range cached {
		if !contains(ids, ev.ID) {
			e.notify.forget(ev.ID)
		}
	}
	e.store.Retain(ids)
	e.save()

	e.log.Debug().Int("events", len(pulled)).Bool("force", force).Msg("Refreshed")
	return e.store.Events(), nil
}

// mergeEvent folds remote into local. Guests are merged field by field;
// local-only guests survive when they were created after the fetch began,
// and remote guests deleted locally since then stay deleted. Tables and
// campaigns are taken from remote and member lists rebuilt from guests.
func (e *Engine) mergeEvent(local *models.Event, remote models.Event, fetchStarted time.Time) {
	before := fingerprint.Event(*local)
	localUpdated := local.UpdatedAt

	local.Date = remote.Date
	local.Venue = remote.Venue
	local.BrideName = remote.BrideName
	local.GroomName = remote.GroomName

	guests := make([]models.Guest, 0, len(remote.Guests))
	seen := make(map[string]bool, len(remote.Guests))
	for _, rg := range remote.Guests {
		seen[rg.ID] = true
		e.created.Delete(rg.ID)
		if e.deletedSince(rg.ID, fetchStarted) {
			continue
		}
		if i := local.GuestIndex(rg.ID); i >= 0 {
			merged, _ := resolver.Merge(local.Guests[i], rg)
			guests = append(guests, merged)
			continue
		}
		guests = append(guests, rg.Clone())
	}
	for _, lg := range local.Guests {
		if seen[lg.ID] {
			continue
		}
		if e.createdSince(lg.ID, fetchStarted) {
			guests = append(guests, lg)
		}
	}
	local.Guests = guests

	local.Tables = remote.Clone().Tables
	local.Campaigns = append([]models.Campaign(nil), remote.Campaigns...)
	seating.Rebuild(local)

	if remote.UpdatedAt.After(local.UpdatedAt.Time) {
		local.UpdatedAt = remote.UpdatedAt
	}
	if fingerprint.Event(*local) != before && !remote.UpdatedAt.After(localUpdated.Time) {
		local.Touch(e.now())
	}
}

// clearTombstones forgets deletions the backend has caught up with.
func (e *Engine) clearTombstones(pulled models.EventSet) {
	remote := make(map[string]bool)
	for _, ev := range pulled {
		for _, g := range ev.Guests {
			remote[g.ID] = true
		}
	}
	e.tombstones.Range(func(k, _ any) bool {
		if !remote[k.(string)] {
			e.tombstones.Delete(k)
		}
		return true
	})
}

func (e *Engine) createdSince(guestID string, t time.Time) bool {
	v, ok := e.created.Load(guestID)
	return ok && !v.(time.Time).Before(t)
}

func (e *Engine) deletedSince(guestID string, t time.Time) bool {
	v, ok := e.tombstones.Load(guestID)
	return ok && !v.(time.Time).Before(t)
}

// DrainPendingUpdates asks the backend to apply every queued provider
// update, then refreshes. Draining an empty queue changes nothing and
// notifies nobody.
func (e *Engine) DrainPendingUpdates(ctx context.Context) (models.DrainResult, error) {
	rctx, cancel := e.withTimeout(ctx)
	defer cancel()

	res, err := e.gw.ProcessAllUpdates(rctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("Failed to process pending updates")
		if softFail(err) {
			return models.DrainResult{}, nil
		}
		return models.DrainResult{}, err
	}
	e.log.Info().
		Int("processed", res.Processed).
		Int("failed", res.Failed).
		Int("remaining", res.Remaining).
		Msg("Processed pending updates")

	if _, err := e.Refresh(ctx, true, true); err != nil {
		return res, err
	}
	return res, nil
}

// SyncUpdates re-applies provider updates the backend already knows about,
// optionally only today's, then refreshes.
func (e *Engine) SyncUpdates(ctx context.Context, onlyToday bool) (models.DrainResult, error) {
	rctx, cancel := e.withTimeout(ctx)
	defer cancel()

	res, err := e.gw.SyncUpdates(rctx, onlyToday)
	if err != nil {
		e.log.Warn().Err(err).Bool("only_today", onlyToday).Msg("Failed to sync updates")
		if softFail(err) {
			return models.DrainResult{}, nil
		}
		return models.DrainResult{}, err
	}

	if _, err := e.Refresh(ctx, true, true); err != nil {
		return res, err
	}
	return res, nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
