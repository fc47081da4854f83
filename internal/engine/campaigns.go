package engine

import (
	"context"

	"wedding-sync/internal/models"
)

// EnsureCampaigns creates the default campaigns for an event that has none.
// It runs at most once per event per process; a failed attempt is logged
// and may be retried by the next call.
func (e *Engine) EnsureCampaigns(ctx context.Context, eventID string) error {
	event, err := e.store.Event(eventID)
	if err != nil {
		return err
	}
	if len(event.Campaigns) > 0 || len(e.cfg.DefaultCampaigns) == 0 {
		return nil
	}
	if !e.campaigns.Begin(eventID) {
		return nil
	}

	defaults := make([]models.Campaign, len(e.cfg.DefaultCampaigns))
	for i, c := range e.cfg.DefaultCampaigns {
		c.ID = e.cfg.NewID()
		c.Status = models.CampaignDraft
		c.SentCount = 0
		defaults[i] = c
	}

	rctx, cancel := e.withTimeout(ctx)
	defer cancel()
	created, err := e.gw.RecreateCampaigns(rctx, eventID, defaults)
	if err != nil {
		e.campaigns.Release(eventID)
		e.log.Error().Err(err).Str("event", eventID).Msg("Failed to create default campaigns")
		return nil
	}
	e.campaigns.Done(eventID)

	now := e.now()
	event, err = e.store.Update(eventID, func(ev *models.Event) error {
		ev.Campaigns = created
		ev.Touch(now)
		return nil
	})
	if err != nil {
		return err
	}
	e.notify.publish(event)
	e.save()
	e.log.Info().Str("event", eventID).Int("campaigns", len(created)).Msg("Default campaigns created")
	return nil
}

// AutoSync pushes the cached event to the backend once per process so a
// roster edited offline reaches it.
func (e *Engine) AutoSync(ctx context.Context, eventID string) error {
	event, err := e.store.Event(eventID)
	if err != nil {
		return err
	}
	if len(event.Guests) == 0 {
		return nil
	}
	if !e.synced.Begin(eventID) {
		return nil
	}

	rctx, cancel := e.withTimeout(ctx)
	defer cancel()
	if err := e.gw.PushEvent(rctx, event); err != nil {
		e.synced.Release(eventID)
		e.log.Error().Err(err).Str("event", eventID).Msg("Failed to sync event")
		return nil
	}
	e.synced.Done(eventID)
	e.log.Info().Str("event", eventID).Int("guests", len(event.Guests)).Msg("Event synced")
	return nil
}

// SendCampaign asks the backend to send a campaign to every guest with a
// phone, then refreshes to pick up the new message statuses.
func (e *Engine) SendCampaign(ctx context.Context, eventID, campaignID string) (models.SendResult, error) {
	if _, err := e.store.Event(eventID); err != nil {
		return models.SendResult{}, err
	}
	res, err := e.gw.SendCampaign(ctx, eventID, campaignID)
	if err != nil {
		return models.SendResult{}, err
	}
	if _, err := e.Refresh(ctx, true, true); err != nil {
		return res, err
	}
	return res, nil
}
