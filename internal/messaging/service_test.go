package messaging

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/e2g-ufsm/flowbot/internal/models"
	"github.com/e2g-ufsm/flowbot/internal/twiliochat"
	"github.com/e2g-ufsm/flowbot/internal/whatsapp"
)

func TestFormatNumberedMenu(t *testing.T) {
	got := FormatNumberedMenu("Escolha:", []models.StepOption{
		{Text: "Somar", Value: "sum"},
		{Text: "Sair", Value: "exit"},
	})
	want := "Escolha:\n\n1. Somar\n2. Sair"
	if got != want {
		t.Errorf("FormatNumberedMenu = %q, want %q", got, want)
	}
}

func TestWhatsAppCanonicalizeRecipient(t *testing.T) {
	s := NewWhatsAppService(whatsapp.NewMockClient())

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"5599111@s.whatsapp.net", "5599111", false},
		{"+5599111", "5599111", false},
		{" 5599111 ", "5599111", false},
		{"", "", true},
		{"abc", "", true},
	}
	for _, tt := range tests {
		got, err := s.ValidateAndCanonicalizeRecipient(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateAndCanonicalizeRecipient(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ValidateAndCanonicalizeRecipient(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTwilioSendMenuRendersValues(t *testing.T) {
	mock := twiliochat.NewMockClient()
	s := NewTwilioService(mock)

	err := s.SendMenu(context.Background(), "+15551234", "Escolha:", []models.StepOption{
		{Text: "Somar", Value: "sum"},
	}, "")
	if err != nil {
		t.Fatalf("SendMenu failed: %v", err)
	}
	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(mock.SentMessages))
	}
	sent := mock.SentMessages[0]
	if sent.To != "15551234" {
		t.Errorf("unexpected recipient %q", sent.To)
	}
	if !strings.Contains(sent.Body, "Somar (sum)") {
		t.Errorf("expected option value in body, got %q", sent.Body)
	}
}

func TestTwilioHandleInboundForm(t *testing.T) {
	s := NewTwilioService(twiliochat.NewMockClient())

	form := url.Values{}
	form.Set("From", "whatsapp:+15551234")
	form.Set("Body", "oi")
	form.Set("MessageSid", "SM1")
	if err := s.HandleInboundForm(form); err != nil {
		t.Fatalf("HandleInboundForm failed: %v", err)
	}

	msg := <-s.Messages()
	if msg.ChannelUserID != "15551234" || msg.Text != "oi" || msg.MessageID != "SM1" {
		t.Errorf("unexpected message %+v", msg)
	}
	if msg.Channel != models.ChannelTwilio {
		t.Errorf("unexpected channel %q", msg.Channel)
	}
}

func TestTwilioHandleInboundFormButtonPayload(t *testing.T) {
	s := NewTwilioService(twiliochat.NewMockClient())

	form := url.Values{}
	form.Set("From", "+15551234")
	form.Set("Body", "Somar dez")
	form.Set("ButtonPayload", "sum")
	if err := s.HandleInboundForm(form); err != nil {
		t.Fatalf("HandleInboundForm failed: %v", err)
	}

	msg := <-s.Messages()
	if msg.Text != "sum" {
		t.Errorf("expected button payload to override body, got %q", msg.Text)
	}
}

func TestTwilioHandleInboundFormMedia(t *testing.T) {
	s := NewTwilioService(twiliochat.NewMockClient())

	form := url.Values{}
	form.Set("From", "+15551234")
	form.Set("MediaUrl0", "https://api.twilio.com/m/1")
	form.Set("MediaContentType0", "image/jpeg")
	if err := s.HandleInboundForm(form); err != nil {
		t.Fatalf("HandleInboundForm failed: %v", err)
	}
	msg := <-s.Messages()
	if msg.Media != "https://api.twilio.com/m/1" || msg.Sticker != "" {
		t.Errorf("unexpected media normalization %+v", msg)
	}

	form.Set("MediaContentType0", "image/webp")
	if err := s.HandleInboundForm(form); err != nil {
		t.Fatalf("HandleInboundForm failed: %v", err)
	}
	msg = <-s.Messages()
	if msg.Sticker != "https://api.twilio.com/m/1" || msg.Media != "" {
		t.Errorf("expected webp to map to sticker, got %+v", msg)
	}
}

func TestTwilioHandleInboundFormLocation(t *testing.T) {
	s := NewTwilioService(twiliochat.NewMockClient())

	form := url.Values{}
	form.Set("From", "+15551234")
	form.Set("Latitude", "-29.68")
	form.Set("Longitude", "-53.80")
	if err := s.HandleInboundForm(form); err != nil {
		t.Fatalf("HandleInboundForm failed: %v", err)
	}
	msg := <-s.Messages()
	if msg.Location == nil || msg.Location.Latitude != -29.68 {
		t.Errorf("unexpected location %+v", msg.Location)
	}
}

func TestTwilioStopRejectsInbound(t *testing.T) {
	s := NewTwilioService(twiliochat.NewMockClient())
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	form := url.Values{}
	form.Set("From", "+15551234")
	form.Set("Body", "oi")
	if err := s.HandleInboundForm(form); err == nil {
		t.Fatal("expected error after Stop")
	}
}

// stubService feeds canned messages into the dispatcher.
type stubService struct {
	msgs chan models.Message
}

func newStubService() *stubService {
	return &stubService{msgs: make(chan models.Message, 32)}
}

func (s *stubService) Channel() models.Channel     { return models.ChannelWhatsApp }
func (s *stubService) MenuStyle() models.MenuStyle { return models.MenuStyleNumbered }
func (s *stubService) ValidateAndCanonicalizeRecipient(r string) (string, error) {
	return r, nil
}
func (s *stubService) SendText(context.Context, string, string, string) error { return nil }
func (s *stubService) SendMenu(context.Context, string, string, []models.StepOption, string) error {
	return nil
}
func (s *stubService) SendImage(context.Context, string, string, string, []models.StepOption) error {
	return nil
}
func (s *stubService) SendSticker(context.Context, string, string) error { return nil }
func (s *stubService) Start(context.Context) error                       { return nil }
func (s *stubService) Stop() error                                       { return nil }
func (s *stubService) Messages() <-chan models.Message                   { return s.msgs }

func TestDispatcherOrdersTurnsPerUser(t *testing.T) {
	var mu sync.Mutex
	received := make(map[string][]string)
	inFlight := make(map[string]bool)
	done := make(chan struct{}, 16)

	handler := func(_ context.Context, msg models.Message) error {
		mu.Lock()
		if inFlight[msg.ChannelUserID] {
			t.Errorf("concurrent turns for user %s", msg.ChannelUserID)
		}
		inFlight[msg.ChannelUserID] = true
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inFlight[msg.ChannelUserID] = false
		received[msg.ChannelUserID] = append(received[msg.ChannelUserID], msg.Text)
		mu.Unlock()
		done <- struct{}{}
		return nil
	}

	svc := newStubService()
	d := NewDispatcher(handler)
	d.Start(context.Background(), svc)
	defer d.Stop()

	texts := []string{"1", "2", "3"}
	for _, text := range texts {
		svc.msgs <- models.Message{Channel: models.ChannelWhatsApp, ChannelUserID: "a", Text: text}
		svc.msgs <- models.Message{Channel: models.ChannelWhatsApp, ChannelUserID: "b", Text: text}
	}

	for i := 0; i < 6; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for turns")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for _, user := range []string{"a", "b"} {
		if got := strings.Join(received[user], ","); got != "1,2,3" {
			t.Errorf("user %s turns out of order: %s", user, got)
		}
	}
}
