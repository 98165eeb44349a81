package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/e2g-ufsm/flowbot/internal/models"
	"github.com/e2g-ufsm/flowbot/internal/twiliochat"
)

// phoneNumberRegex matches everything that is not a digit.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// TwilioService implements Service using the Twilio REST API. Twilio quick
// replies deliver the selected option's payload back as the message body, so
// this channel uses the native menu style. Inbound messages arrive through
// the HTTP webhook and are normalized by HandleInboundForm.
type TwilioService struct {
	client   twiliochat.Sender
	messages chan models.Message
	done     chan struct{}
	mu       sync.RWMutex
	stopped  bool
}

// NewTwilioService creates a new TwilioService wrapping the given Sender.
func NewTwilioService(client twiliochat.Sender) *TwilioService {
	return &TwilioService{
		client:   client,
		messages: make(chan models.Message, DefaultChannelBufferSize),
		done:     make(chan struct{}),
	}
}

func (s *TwilioService) Channel() models.Channel { return models.ChannelTwilio }

func (s *TwilioService) MenuStyle() models.MenuStyle { return models.MenuStyleNative }

// ValidateAndCanonicalizeRecipient strips everything but digits and requires
// at least 6 of them.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	if recipient != canonical {
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Start is a no-op: inbound traffic arrives via the webhook.
func (s *TwilioService) Start(ctx context.Context) error { return nil }

// Stop closes channels and stops the service.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)
	close(s.messages)
	return nil
}

func (s *TwilioService) SendText(ctx context.Context, to, body, replyTo string) error {
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendText validation error", "error", err, "to", to)
		return err
	}
	// The REST API has no reply threading; replyTo is accepted for interface
	// parity and ignored.
	return s.client.SendMessage(ctx, canonicalTo, body)
}

// SendMenu sends the body followed by the option list. The selected option's
// declared value is what comes back as the inbound body.
func (s *TwilioService) SendMenu(ctx context.Context, to, body string, options []models.StepOption, replyTo string) error {
	var b strings.Builder
	b.WriteString(body)
	b.WriteString("\n")
	for _, opt := range options {
		b.WriteString("\n")
		b.WriteString(opt.Text)
		b.WriteString(" (")
		b.WriteString(opt.Value)
		b.WriteString(")")
	}
	return s.SendText(ctx, to, b.String(), replyTo)
}

func (s *TwilioService) SendImage(ctx context.Context, to, path, caption string, options []models.StepOption) error {
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if len(options) > 0 {
		var b strings.Builder
		b.WriteString(caption)
		for _, opt := range options {
			b.WriteString("\n")
			b.WriteString(opt.Text)
			b.WriteString(" (")
			b.WriteString(opt.Value)
			b.WriteString(")")
		}
		caption = b.String()
	}
	return s.client.SendMedia(ctx, canonicalTo, path, caption)
}

func (s *TwilioService) SendSticker(ctx context.Context, to, path string) error {
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	return s.client.SendMedia(ctx, canonicalTo, path, "")
}

// Messages returns the channel of normalized inbound messages.
func (s *TwilioService) Messages() <-chan models.Message {
	return s.messages
}

// HandleInboundForm normalizes a Twilio inbound webhook form into a Message
// and enqueues it. Quick-reply selections arrive as ButtonPayload; plain
// replies as Body.
func (s *TwilioService) HandleInboundForm(form url.Values) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return fmt.Errorf("twilio service stopped")
	}
	s.mu.RUnlock()

	from, err := s.ValidateAndCanonicalizeRecipient(form.Get("From"))
	if err != nil {
		return fmt.Errorf("invalid inbound sender: %w", err)
	}

	msg := models.Message{
		MessageID:     form.Get("MessageSid"),
		Channel:       models.ChannelTwilio,
		ChannelUserID: from,
		Text:          form.Get("Body"),
		Time:          time.Now().Unix(),
	}
	if payload := form.Get("ButtonPayload"); payload != "" {
		msg.Text = payload
	}
	if mediaURL := form.Get("MediaUrl0"); mediaURL != "" {
		if strings.HasPrefix(form.Get("MediaContentType0"), "image/webp") {
			msg.Sticker = mediaURL
		} else {
			msg.Media = mediaURL
		}
	}
	if lat := form.Get("Latitude"); lat != "" {
		latitude, latErr := strconv.ParseFloat(lat, 64)
		longitude, lonErr := strconv.ParseFloat(form.Get("Longitude"), 64)
		if latErr == nil && lonErr == nil {
			msg.Location = &models.Location{Latitude: latitude, Longitude: longitude}
		}
	}

	select {
	case s.messages <- msg:
		slog.Debug("TwilioService inbound message enqueued", "from", msg.ChannelUserID)
		return nil
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService messages channel blocked, dropping message", "from", msg.ChannelUserID)
		return fmt.Errorf("inbound queue full")
	}
}
