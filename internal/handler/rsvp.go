package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow/types/events"

	"wedding-sync/internal/models"
	"wedding-sync/internal/rsvptext"
	"wedding-sync/internal/whatsapp"
)

// Replier sends a text message back to a guest.
type Replier interface {
	SendText(ctx context.Context, phone, text string) error
}

// Queue accepts provider updates for later processing.
type Queue interface {
	Enqueue(ctx context.Context, p models.WebhookPayload) (models.PendingUpdate, error)
}

type Config struct {
	WeddingDate string
	BrideName   string
	GroomName   string
	// MaxGuests bounds the party size read from a reply.
	MaxGuests int
}

type RSVPHandler struct {
	replier Replier
	queue   Queue
	config  Config
	log     zerolog.Logger
}

// NewRSVPHandler creates a new RSVP handler
func NewRSVPHandler(replier Replier, queue Queue, cfg Config, logger zerolog.Logger) *RSVPHandler {
	if cfg.MaxGuests <= 0 {
		cfg.MaxGuests = 20
	}
	return &RSVPHandler{
		replier: replier,
		queue:   queue,
		config:  cfg,
		log:     logger.With().Str("component", "RSVP").Logger(),
	}
}

// HandleMessage processes incoming WhatsApp messages for RSVP responses
func (h *RSVPHandler) HandleMessage(msg *events.Message) error {
	if msg.Info.IsGroup {
		return nil
	}
	text := whatsapp.MessageText(msg)
	if text == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return h.HandleReply(ctx, msg.Info.Sender.User, text, msg.Info.Timestamp)
}

// HandleReply queues the RSVP carried by a guest's reply and confirms it.
// Text that is not an RSVP is ignored.
func (h *RSVPHandler) HandleReply(ctx context.Context, phone, text string, at time.Time) error {
	status, ok := rsvptext.ParseRSVP(text)
	if !ok {
		return nil
	}
	p := models.WebhookPayload{
		Phone:      phone,
		RSVPStatus: status,
		Timestamp:  models.At(at),
		Source:     models.SourceWebhook,
	}
	if status == models.RSVPConfirmed {
		if n, ok := rsvptext.GuestCount(text, h.config.MaxGuests); ok {
			p.GuestCount = n
		}
	}

	if _, err := h.queue.Enqueue(ctx, p); err != nil {
		return fmt.Errorf("failed to queue RSVP: %w", err)
	}
	h.log.Info().Str("phone", phone).Str("status", string(status)).Int("guests", p.GuestCount).Msg("RSVP received")

	reply := h.confirmation(status, p.GuestCount)
	if reply == "" {
		return nil
	}
	if err := h.replier.SendText(ctx, phone, reply); err != nil {
		return fmt.Errorf("failed to send confirmation: %w", err)
	}
	return nil
}

// HandleReceipt queues a delivered status for the guest at phone.
func (h *RSVPHandler) HandleReceipt(ctx context.Context, phone string, at time.Time) error {
	_, err := h.queue.Enqueue(ctx, models.WebhookPayload{
		Phone:         phone,
		MessageStatus: models.MessageDelivered,
		Timestamp:     models.At(at),
		Source:        models.SourceWebhook,
	})
	if err != nil {
		return fmt.Errorf("failed to queue receipt: %w", err)
	}
	return nil
}

func (h *RSVPHandler) confirmation(status models.RSVPStatus, guests int) string {
	couple := strings.TrimSpace(h.config.BrideName + " & " + h.config.GroomName)
	if couple == "&" {
		couple = "the couple"
	}

	switch status {
	case models.RSVPConfirmed:
		var b strings.Builder
		b.WriteString("🎉 Wonderful! We're so excited to celebrate with you!\n\n")
		if guests > 0 {
			fmt.Fprintf(&b, "We've saved %d seats for you", guests)
		} else {
			b.WriteString("We've confirmed your attendance")
		}
		fmt.Fprintf(&b, " at the wedding of %s", couple)
		if h.config.WeddingDate != "" {
			fmt.Fprintf(&b, " on %s", h.config.WeddingDate)
		}
		b.WriteString(".\n\nSee you there! 💕")
		return b.String()
	case models.RSVPDeclined:
		return fmt.Sprintf(
			"Thank you for letting us know. We're sorry you won't be able to join us for the wedding of %s.\n\n"+
				"We'll miss you! 💕",
			couple,
		)
	case models.RSVPMaybe:
		return "Thanks! Let us know once you're sure 💕"
	}
	return ""
}
