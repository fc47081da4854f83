package backend

import (
	"context"
	"time"

	"wedding-sync/internal/errs"
	"wedding-sync/internal/models"
	"wedding-sync/internal/resolver"
)

// Enqueue accepts a provider notification. It is only validated here; the
// target guest is resolved when the queue is processed.
func (s *Service) Enqueue(ctx context.Context, p models.WebhookPayload) (models.PendingUpdate, error) {
	const op = "backend.Enqueue"

	if p.GuestID == "" && models.PhoneDigits(p.Phone) == "" {
		return models.PendingUpdate{}, errs.Validation(op, "guest_id or phone is required")
	}
	pu := models.PendingUpdate{
		EventID:    p.EventID,
		GuestID:    p.GuestID,
		Phone:      p.Phone,
		GuestCount: p.GuestCount,
		OccurredAt: p.Timestamp.Time,
		Source:     p.Source,
		State:      models.PendingQueued,
	}
	switch {
	case p.RSVPStatus != "":
		if !p.RSVPStatus.Valid() {
			return models.PendingUpdate{}, errs.Validation(op, "unknown rsvp status %q", p.RSVPStatus)
		}
		pu.Kind = models.KindRSVP
		pu.RSVPStatus = p.RSVPStatus
	case p.MessageStatus != "":
		if !p.MessageStatus.Valid() {
			return models.PendingUpdate{}, errs.Validation(op, "unknown message status %q", p.MessageStatus)
		}
		pu.Kind = models.KindMessageStatus
		pu.MessageStatus = p.MessageStatus
	default:
		return models.PendingUpdate{}, errs.Validation(op, "payload carries no status")
	}
	if pu.OccurredAt.IsZero() {
		pu.OccurredAt = s.now()
	}
	if pu.Source == "" {
		pu.Source = models.SourceWebhook
	}

	id, err := s.store.Enqueue(ctx, pu)
	if err != nil {
		return models.PendingUpdate{}, err
	}
	pu.ID = id
	s.log.Debug().Int64("id", id).Str("kind", string(pu.Kind)).Msg("Queued provider update")
	return pu, nil
}

func (s *Service) PendingCount(ctx context.Context) (int, error) {
	return s.store.CountPending(ctx)
}

// ProcessAll applies every queued update. An update that fails is retried
// on later passes until it has failed MaxAttempts times.
func (s *Service) ProcessAll(ctx context.Context) (models.DrainResult, error) {
	queued, err := s.store.Updates(ctx, time.Time{})
	if err != nil {
		return models.DrainResult{}, err
	}
	res := s.applyAll(ctx, queued)

	remaining, err := s.store.CountPending(ctx)
	if err != nil {
		return res, err
	}
	res.Remaining = remaining
	return res, nil
}

// SyncUpdates re-applies queued and already processed updates, optionally
// only those from today. Applying an update twice leaves the guest as the
// first application did.
func (s *Service) SyncUpdates(ctx context.Context, onlyToday bool) (models.DrainResult, error) {
	since := time.UnixMilli(0)
	if onlyToday {
		now := s.now()
		since = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	}
	updates, err := s.store.Updates(ctx, since)
	if err != nil {
		return models.DrainResult{}, err
	}
	res := s.applyAll(ctx, updates)

	remaining, err := s.store.CountPending(ctx)
	if err != nil {
		return res, err
	}
	res.Remaining = remaining
	return res, nil
}

func (s *Service) applyAll(ctx context.Context, updates []models.PendingUpdate) models.DrainResult {
	res := models.DrainResult{ProcessedUpdates: []models.PendingUpdate{}}
	for _, pu := range updates {
		if ctx.Err() != nil {
			break
		}
		target, err := s.apply(ctx, pu)
		if err == nil {
			if pu.State == models.PendingQueued {
				if err := s.store.MarkProcessed(ctx, target); err != nil {
					s.log.Error().Err(err).Int64("id", pu.ID).Msg("Failed to mark update processed")
				}
			}
			target.State = models.PendingProcessed
			res.Processed++
			res.ProcessedUpdates = append(res.ProcessedUpdates, target)
			continue
		}

		res.Failed++
		if pu.State != models.PendingQueued {
			continue
		}
		state, markErr := s.store.MarkAttempt(ctx, pu.ID, err, s.cfg.MaxAttempts)
		if markErr != nil {
			s.log.Error().Err(markErr).Int64("id", pu.ID).Msg("Failed to record update attempt")
			continue
		}
		s.log.Warn().Err(err).
			Int64("id", pu.ID).
			Str("state", string(state)).
			Msg("Failed to apply provider update")
	}
	return res
}

// apply resolves the update's guest and merges the change into it.
func (s *Service) apply(ctx context.Context, pu models.PendingUpdate) (models.PendingUpdate, error) {
	const op = "backend.apply"

	if pu.EventID == "" || pu.GuestID == "" {
		eventID, guestID, err := s.locate(ctx, pu)
		if err != nil {
			return pu, err
		}
		pu.EventID, pu.GuestID = eventID, guestID
	}

	_, err := s.store.UpdateEvent(ctx, pu.EventID, func(ev *models.Event) error {
		i := ev.GuestIndex(pu.GuestID)
		if i < 0 {
			return errs.NotFound(op, "guest %s not found in event %s", pu.GuestID, pu.EventID)
		}
		u := pu.Update()
		// A replayed party size was already stamped when first applied.
		if pu.State == models.PendingProcessed && u.GuestCount != nil &&
			ev.Guests[i].ClockFor(models.FieldGuestCount).After(pu.OccurredAt) {
			u = u.Without(models.FieldGuestCount)
		}
		now := s.now()
		merged, outcome := resolver.Resolve(ev.Guests[i], u, now)
		if outcome == resolver.Applied {
			ev.Guests[i] = merged
			ev.Touch(now)
		}
		return nil
	})
	return pu, err
}

// locate finds the guest a provider update refers to, by id or phone.
func (s *Service) locate(ctx context.Context, pu models.PendingUpdate) (string, string, error) {
	events, err := s.store.Events(ctx)
	if err != nil {
		return "", "", err
	}
	key := models.PhoneKey(pu.Phone)
	for _, ev := range events {
		if pu.EventID != "" && ev.ID != pu.EventID {
			continue
		}
		for _, g := range ev.Guests {
			if pu.GuestID != "" && g.ID == pu.GuestID {
				return ev.ID, g.ID, nil
			}
			if pu.GuestID == "" && key != "" && models.PhoneKey(g.Phone) == key {
				return ev.ID, g.ID, nil
			}
		}
	}
	return "", "", errs.NotFound("backend.locate", "no guest matches update %d", pu.ID)
}
