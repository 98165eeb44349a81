package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/e2g-ufsm/flowbot/internal/models"
	"github.com/e2g-ufsm/flowbot/internal/whatsapp"
)

// Constants for WhatsAppService configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for the inbound message channel
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking channel operations
	DefaultChannelTimeout = 1 * time.Second
)

// WhatsAppService implements Service using the Whatsmeow-based whatsapp
// client. WhatsApp has no native inline selection, so menus are rendered as
// 1-based numbered listings.
type WhatsAppService struct {
	client   whatsapp.Sender
	waClient *whatsapp.Client // full client for event handling, nil with mocks
	messages chan models.Message
	done     chan struct{}
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given Sender.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	service := &WhatsAppService{
		client:   client,
		messages: make(chan models.Message, DefaultChannelBufferSize),
		done:     make(chan struct{}),
	}
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}
	return service
}

func (s *WhatsAppService) Channel() models.Channel { return models.ChannelWhatsApp }

func (s *WhatsAppService) MenuStyle() models.MenuStyle { return models.MenuStyleNumbered }

// ValidateAndCanonicalizeRecipient strips the JID suffix and any leading plus
// sign, leaving the bare phone number whatsmeow expects.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	r := strings.TrimSpace(recipient)
	if idx := strings.IndexByte(r, '@'); idx >= 0 {
		r = r[:idx]
	}
	r = strings.TrimPrefix(r, "+")
	if r == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	for _, c := range r {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("recipient %q is not a phone number", recipient)
		}
	}
	return r, nil
}

// Start begins background event processing.
func (s *WhatsAppService) Start(ctx context.Context) error {
	slog.Debug("WhatsAppService Start invoked")
	if s.waClient != nil {
		go s.handleEvents(ctx)
	} else {
		slog.Debug("WhatsAppService no full client available, skipping event handling")
	}
	return nil
}

// Stop stops background processing.
func (s *WhatsAppService) Stop() error {
	slog.Info("WhatsAppService Stop invoked")
	close(s.done)
	close(s.messages)
	return nil
}

func (s *WhatsAppService) SendText(ctx context.Context, to, body, replyTo string) error {
	slog.Debug("WhatsAppService SendText invoked", "to", to, "body_length", len(body))
	if err := s.client.SendText(ctx, to, body, replyTo); err != nil {
		slog.Error("WhatsAppService SendText error", "error", err, "to", to)
		return err
	}
	return nil
}

func (s *WhatsAppService) SendMenu(ctx context.Context, to, body string, options []models.StepOption, replyTo string) error {
	return s.SendText(ctx, to, FormatNumberedMenu(body, options), replyTo)
}

func (s *WhatsAppService) SendImage(ctx context.Context, to, path, caption string, options []models.StepOption) error {
	if len(options) > 0 {
		caption = FormatNumberedMenu(caption, options)
	}
	if err := s.client.SendImage(ctx, to, path, caption); err != nil {
		slog.Error("WhatsAppService SendImage error", "error", err, "to", to, "path", path)
		return err
	}
	return nil
}

func (s *WhatsAppService) SendSticker(ctx context.Context, to, path string) error {
	if err := s.client.SendSticker(ctx, to, path); err != nil {
		slog.Error("WhatsAppService SendSticker error", "error", err, "to", to, "path", path)
		return err
	}
	return nil
}

// Messages returns the channel of normalized inbound messages.
func (s *WhatsAppService) Messages() <-chan models.Message {
	return s.messages
}

// handleEvents registers a whatsmeow event handler and feeds normalized
// messages into the messages channel.
func (s *WhatsAppService) handleEvents(ctx context.Context) {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Error("WhatsAppService handleEvents: no client available")
		return
	}

	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		if v, ok := evt.(*events.Message); ok {
			s.handleIncomingMessage(v)
		}
	})
	slog.Debug("WhatsAppService event handler registered")

	<-ctx.Done()
	slog.Debug("WhatsAppService handleEvents stopping due to context cancellation")
}

// handleIncomingMessage normalizes one inbound whatsmeow event.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil {
		return
	}
	if evt.Info.IsGroup {
		// Group chats are ignored; the flow is strictly one-to-one.
		slog.Debug("WhatsAppService ignoring group message", "chat", evt.Info.Chat.String())
		return
	}

	msg := models.Message{
		MessageID:     evt.Info.ID,
		Channel:       models.ChannelWhatsApp,
		ChannelUserID: evt.Info.Sender.User,
		Time:          evt.Info.Timestamp.Unix(),
	}

	switch {
	case evt.Message.Conversation != nil:
		msg.Text = evt.Message.GetConversation()
	case evt.Message.ExtendedTextMessage != nil:
		msg.Text = evt.Message.ExtendedTextMessage.GetText()
	}
	if img := evt.Message.GetImageMessage(); img != nil {
		msg.Media = img.GetDirectPath()
		if msg.Media == "" {
			msg.Media = "image:" + evt.Info.ID
		}
	}
	if stk := evt.Message.GetStickerMessage(); stk != nil {
		msg.Sticker = stk.GetDirectPath()
		if msg.Sticker == "" {
			msg.Sticker = "sticker:" + evt.Info.ID
		}
	}
	if loc := evt.Message.GetLocationMessage(); loc != nil {
		msg.Location = &models.Location{
			Latitude:  loc.GetDegreesLatitude(),
			Longitude: loc.GetDegreesLongitude(),
		}
	}

	slog.Debug("WhatsAppService processing incoming message", "from", msg.ChannelUserID, "body_length", len(msg.Text))

	select {
	case s.messages <- msg:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService messages channel blocked, dropping message", "from", msg.ChannelUserID, "timeout", DefaultChannelTimeout)
	}
}
