// Package backend is the durable side of the system: it stores events in
// SQLite, applies guest writes with the same field-level resolution the
// operator console uses, queues provider updates and sends campaigns.
package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wedding-sync/internal/errs"
	"wedding-sync/internal/models"
	"wedding-sync/internal/resolver"
	"wedding-sync/internal/seating"
)

// Sender delivers one rendered message to a phone number.
type Sender interface {
	Send(ctx context.Context, phone, text, imageURL string) error
}

type Config struct {
	// MaxAttempts bounds how often a pending update is retried before it
	// is marked failed.
	MaxAttempts int
	// SendInterval spaces out campaign messages.
	SendInterval time.Duration
}

type Service struct {
	store  *Store
	sender Sender
	cfg    Config
	now    func() time.Time
	log    zerolog.Logger
}

// NewService creates a backend service. sender may be nil, in which case
// campaigns cannot be sent.
func NewService(store *Store, sender Sender, cfg Config, logger zerolog.Logger) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Service{
		store:  store,
		sender: sender,
		cfg:    cfg,
		now:    time.Now,
		log:    logger.With().Str("component", "Backend").Logger(),
	}
}

// SetSender attaches the messaging provider once it is connected.
func (s *Service) SetSender(sender Sender) {
	s.sender = sender
}

func (s *Service) Events(ctx context.Context) (models.EventSet, error) {
	return s.store.Events(ctx)
}

// PutEvent stores a pushed event. A new event is stored as given. An
// existing one is merged guest by guest with the same per-field clocks
// the pending queue writes with, so a stale replica cannot roll back
// newer backend state. Guests only the backend knows are kept.
func (s *Service) PutEvent(ctx context.Context, ev models.Event) error {
	if strings.TrimSpace(ev.ID) == "" {
		return errs.Validation("backend.PutEvent", "event id is required")
	}
	now := s.now()
	_, err := s.store.UpsertEvent(ctx, ev.ID, func(cur *models.Event, found bool) error {
		if !found {
			*cur = ev.Clone()
			seating.Rebuild(cur)
			if cur.UpdatedAt.IsZero() {
				cur.Touch(now)
			}
			return nil
		}
		mergePushed(cur, ev)
		seating.Rebuild(cur)
		return nil
	})
	return err
}

// mergePushed folds a pushed replica into the stored event.
func mergePushed(cur *models.Event, pushed models.Event) {
	newer := !pushed.UpdatedAt.Before(cur.UpdatedAt.Time)
	if newer {
		cur.Date, cur.Venue = pushed.Date, pushed.Venue
		cur.BrideName, cur.GroomName = pushed.BrideName, pushed.GroomName
	}

	for _, g := range pushed.Guests {
		i := cur.GuestIndex(g.ID)
		if i < 0 {
			cur.Guests = append(cur.Guests, g.Clone())
			continue
		}
		if merged, outcome := resolver.Merge(cur.Guests[i], g); outcome == resolver.Applied {
			cur.Guests[i] = merged
		}
	}

	for _, t := range pushed.Tables {
		i := cur.TableIndex(t.ID)
		switch {
		case i < 0:
			cur.Tables = append(cur.Tables, t)
		case newer:
			cur.Tables[i] = t
		}
	}

	for _, c := range pushed.Campaigns {
		i := campaignIndex(cur.Campaigns, c.ID)
		switch {
		case i < 0:
			cur.Campaigns = append(cur.Campaigns, c)
		case newer:
			cur.Campaigns[i] = c
		}
	}

	if newer {
		cur.UpdatedAt = pushed.UpdatedAt
	}
}

func campaignIndex(campaigns []models.Campaign, id string) int {
	for i := range campaigns {
		if campaigns[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Service) CreateGuest(ctx context.Context, eventID string, g models.Guest) (models.Guest, error) {
	const op = "backend.CreateGuest"

	if strings.TrimSpace(g.FullName()) == "" && strings.TrimSpace(g.Phone) == "" {
		return models.Guest{}, errs.Validation(op, "a guest needs a name or a phone")
	}
	if g.GuestCount < 1 {
		return models.Guest{}, errs.Validation(op, "guest count must be at least 1, got %d", g.GuestCount)
	}
	if g.ID == "" {
		g.ID = uuid.Must(uuid.NewV7()).String()
	}
	now := s.now()
	if g.ResponseDate.IsZero() {
		g.ResponseDate = models.At(now)
	}

	_, err := s.store.UpdateEvent(ctx, eventID, func(ev *models.Event) error {
		if ev.GuestIndex(g.ID) >= 0 {
			return errs.Validation(op, "guest %s already exists", g.ID)
		}
		ev.Guests = append(ev.Guests, g)
		seating.Rebuild(ev)
		g = ev.Guests[len(ev.Guests)-1]
		ev.Touch(now)
		return nil
	})
	if err != nil {
		return models.Guest{}, err
	}
	return g, nil
}

func (s *Service) PatchGuest(ctx context.Context, eventID, guestID string, u models.GuestUpdate) (models.Guest, error) {
	const op = "backend.PatchGuest"

	if u.TableID != nil {
		return models.Guest{}, errs.Validation(op, "use table-assignment to change tables")
	}
	if u.GuestCount != nil && *u.GuestCount < 1 {
		return models.Guest{}, errs.Validation(op, "guest count must be at least 1, got %d", *u.GuestCount)
	}
	var g models.Guest
	_, err := s.store.UpdateEvent(ctx, eventID, func(ev *models.Event) error {
		i := ev.GuestIndex(guestID)
		if i < 0 {
			return errs.NotFound(op, "guest %s not found in event %s", guestID, eventID)
		}
		now := s.now()
		merged, outcome := resolver.Resolve(ev.Guests[i], u, now)
		g = merged
		if outcome == resolver.Applied {
			ev.Guests[i] = merged
			ev.Touch(now)
		}
		return nil
	})
	return g, err
}

func (s *Service) DeleteGuest(ctx context.Context, eventID, guestID string) error {
	const op = "backend.DeleteGuest"

	_, err := s.store.UpdateEvent(ctx, eventID, func(ev *models.Event) error {
		i := ev.GuestIndex(guestID)
		if i < 0 {
			return errs.NotFound(op, "guest %s not found in event %s", guestID, eventID)
		}
		seating.RemoveGuest(ev, guestID)
		ev.Guests = append(ev.Guests[:i], ev.Guests[i+1:]...)
		ev.Touch(s.now())
		return nil
	})
	return err
}

func (s *Service) AssignTable(ctx context.Context, eventID string, req models.TableAssignment) (models.Guest, error) {
	var g models.Guest
	_, err := s.store.UpdateEvent(ctx, eventID, func(ev *models.Event) error {
		change, err := seating.Plan(*ev, req.GuestID, req.TableID, seating.Action(req.Action))
		if err != nil {
			return err
		}
		now := s.now()
		i := ev.GuestIndex(req.GuestID)
		ev.Guests[i], _ = resolver.Resolve(ev.Guests[i], models.GuestUpdate{
			TableID: models.Ptr(change.To),
			Source:  models.SourceManual,
		}, now)
		if err := seating.Apply(ev, change); err != nil {
			return err
		}
		g = ev.Guests[i]
		ev.Touch(now)
		return nil
	})
	return g, err
}

// RecreateCampaigns replaces the event's campaigns.
func (s *Service) RecreateCampaigns(ctx context.Context, eventID string, campaigns []models.Campaign) ([]models.Campaign, error) {
	out := make([]models.Campaign, len(campaigns))
	for i, c := range campaigns {
		if strings.TrimSpace(c.Template) == "" {
			return nil, errs.Validation("backend.RecreateCampaigns", "campaign %q has no template", c.Name)
		}
		if c.ID == "" {
			c.ID = uuid.Must(uuid.NewV7()).String()
		}
		if c.Status == "" {
			c.Status = models.CampaignDraft
		}
		out[i] = c
	}
	_, err := s.store.UpdateEvent(ctx, eventID, func(ev *models.Event) error {
		ev.Campaigns = out
		ev.Touch(s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SendCampaign renders the campaign for every guest with a phone and
// sends it. Each guest's message status records the outcome.
func (s *Service) SendCampaign(ctx context.Context, eventID, campaignID string) (models.SendResult, error) {
	const op = "backend.SendCampaign"

	if s.sender == nil {
		return models.SendResult{}, errs.Validation(op, "messaging provider is not connected")
	}
	ev, err := s.store.Event(ctx, eventID)
	if err != nil {
		return models.SendResult{}, err
	}
	var campaign *models.Campaign
	for i := range ev.Campaigns {
		if ev.Campaigns[i].ID == campaignID {
			campaign = &ev.Campaigns[i]
		}
	}
	if campaign == nil {
		return models.SendResult{}, errs.NotFound(op, "campaign %s not found in event %s", campaignID, eventID)
	}

	result := models.SendResult{CampaignID: campaignID}
	outcomes := make(map[string]models.GuestUpdate)
	for _, g := range ev.Guests {
		if models.PhoneDigits(g.Phone) == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			break
		}

		err := s.sender.Send(ctx, models.PhoneKey(g.Phone), campaign.Render(g, ev), campaign.ImageURL)
		at := models.At(s.now())
		u := models.GuestUpdate{ResponseDate: &at, Source: models.SourceManual}
		if err != nil {
			s.log.Warn().Err(err).Str("guest", g.ID).Msg("Failed to send campaign message")
			u.MessageStatus = models.Ptr(models.MessageFailed)
			u.MessageFailedDate = &at
			result.Failed++
		} else {
			u.MessageStatus = models.Ptr(models.MessageSent)
			u.MessageSentDate = &at
			result.Sent++
		}
		outcomes[g.ID] = u

		if s.cfg.SendInterval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.cfg.SendInterval):
			}
		}
	}

	_, err = s.store.UpdateEvent(context.WithoutCancel(ctx), eventID, func(ev *models.Event) error {
		for i := range ev.Guests {
			if u, ok := outcomes[ev.Guests[i].ID]; ok {
				ev.Guests[i], _ = resolver.Resolve(ev.Guests[i], u, s.now())
			}
		}
		for i := range ev.Campaigns {
			if ev.Campaigns[i].ID == campaignID {
				ev.Campaigns[i].SentCount += result.Sent
				ev.Campaigns[i].Status = models.CampaignSent
			}
		}
		ev.Touch(s.now())
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("failed to record campaign results: %w", err)
	}

	s.log.Info().
		Str("event", eventID).
		Str("campaign", campaignID).
		Int("sent", result.Sent).
		Int("failed", result.Failed).
		Msg("Campaign sent")
	return result, nil
}
