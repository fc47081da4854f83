package whatsapp

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"wedding-sync/internal/models"
)

// MessageHandler is a callback function for handling messages
type MessageHandler func(*events.Message) error

// ReceiptHandler is called when a message to phone was delivered.
type ReceiptHandler func(ctx context.Context, phone string, at time.Time) error

type Config struct {
	DataDir string
	// QROut receives the pairing QR code. Defaults to discarding it.
	QROut io.Writer
}

type Service struct {
	client         *whatsmeow.Client
	cfg            Config
	log            zerolog.Logger
	messageHandler MessageHandler
	receiptHandler ReceiptHandler
}

// NewService creates a new WhatsApp service
func NewService(ctx context.Context, cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.QROut == nil {
		cfg.QROut = io.Discard
	}

	container, err := sqlstore.New(ctx, "sqlite3", fmt.Sprintf("file:%s/whatsmeow.db?_foreign_keys=on", cfg.DataDir), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, nil)

	service := &Service{
		client: client,
		cfg:    cfg,
		log:    logger.With().Str("component", "WhatsApp").Logger(),
	}

	client.AddEventHandler(func(evt interface{}) {
		service.eventHandler(evt)
	})

	return service, nil
}

// Connect connects to WhatsApp, printing a pairing QR code when the
// device is not linked yet.
func (s *Service) Connect(ctx context.Context) error {
	if s.client.Store.ID != nil {
		if err := s.client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		return nil
	}

	qrChan, err := s.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to get qr channel: %w", err)
	}
	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	for evt := range qrChan {
		if evt.Event != "code" {
			s.log.Info().Str("event", evt.Event).Msg("Login event")
			continue
		}
		q, err := qrcode.New(evt.Code, qrcode.Medium)
		if err != nil {
			fmt.Fprintf(s.cfg.QROut, "QR Code: %s\n", evt.Code)
			continue
		}
		fmt.Fprintln(s.cfg.QROut, "\n"+q.ToSmallString(false))
		fmt.Fprintln(s.cfg.QROut, "Scan the QR code above with WhatsApp: Settings > Linked Devices > Link a Device")
	}
	if s.client.Store.ID == nil {
		s.client.Disconnect()
		return fmt.Errorf("device pairing did not complete")
	}
	return nil
}

// Disconnect disconnects from WhatsApp
func (s *Service) Disconnect() {
	s.client.Disconnect()
}

// Send delivers a campaign message. An image URL is appended as a link.
func (s *Service) Send(ctx context.Context, phone, text, imageURL string) error {
	if imageURL != "" {
		text = text + "\n\n" + imageURL
	}
	return s.SendText(ctx, phone, text)
}

// SendText sends a simple text message
func (s *Service) SendText(ctx context.Context, phone, text string) error {
	phone = models.PhoneKey(phone)

	jid, err := s.resolve(ctx, phone)
	if err != nil {
		return err
	}

	s.log.Debug().Str("jid", jid.String()).Str("phone", phone).Msg("Attempting to send message")

	sent, err := s.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: &text,
	})
	if err != nil {
		if strings.Contains(err.Error(), "unknown server") || strings.Contains(err.Error(), "can't send message") {
			return fmt.Errorf("failed to send message to %s (JID: %s), the recipient may need to be in your contacts: %w", phone, jid.String(), err)
		}
		return fmt.Errorf("failed to send message: %w", err)
	}

	s.log.Info().Str("id", sent.ID).Str("phone", phone).Msg("Message sent")
	return nil
}

// resolve verifies that phone is on WhatsApp and returns its JID.
func (s *Service) resolve(ctx context.Context, phone string) (types.JID, error) {
	resp, err := s.client.IsOnWhatsApp(ctx, []string{"+" + phone})
	if err != nil {
		return types.JID{}, fmt.Errorf("failed to verify number on WhatsApp: %w", err)
	}
	if len(resp) == 0 || !resp[0].IsIn {
		return types.JID{}, fmt.Errorf("number %s is not registered on WhatsApp", phone)
	}
	return resp[0].JID, nil
}

// eventHandler handles incoming WhatsApp events
func (s *Service) eventHandler(evt interface{}) {
	if evt == nil {
		return
	}
	switch evt := evt.(type) {
	case *events.Message:
		s.handleMessage(evt)
	case *events.Receipt:
		s.handleReceipt(evt)
	case *events.Connected:
		s.log.Info().Msg("Connected to WhatsApp")
	case *events.Disconnected:
		s.log.Info().Msg("Disconnected from WhatsApp")
	case *events.LoggedOut:
		s.log.Info().Msg("Logged out from WhatsApp")
	}
}

// handleMessage processes incoming messages
func (s *Service) handleMessage(msg *events.Message) {
	if msg.Info.IsFromMe {
		return
	}

	if s.messageHandler == nil {
		s.log.Info().
			Str("sender", msg.Info.Sender.String()).
			Str("message", MessageText(msg)).
			Msg("Received message")
		return
	}
	if err := s.messageHandler(msg); err != nil {
		s.log.Error().Err(err).Msg("Error handling message")
	}
}

// handleReceipt reports delivery of our own messages in direct chats.
func (s *Service) handleReceipt(evt *events.Receipt) {
	if s.receiptHandler == nil || evt.IsGroup || evt.Type != types.ReceiptTypeDelivered {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.receiptHandler(ctx, evt.Chat.User, evt.Timestamp); err != nil {
		s.log.Error().Err(err).Str("chat", evt.Chat.String()).Msg("Error handling receipt")
	}
}

// MessageText returns the text of a plain or extended text message.
func MessageText(msg *events.Message) string {
	if msg.Message == nil {
		return ""
	}
	if text := msg.Message.GetConversation(); text != "" {
		return text
	}
	return msg.Message.GetExtendedTextMessage().GetText()
}

// SetMessageHandler sets a custom handler for incoming messages
func (s *Service) SetMessageHandler(handler MessageHandler) {
	s.messageHandler = handler
}

// SetReceiptHandler sets the handler for delivery receipts.
func (s *Service) SetReceiptHandler(handler ReceiptHandler) {
	s.receiptHandler = handler
}
