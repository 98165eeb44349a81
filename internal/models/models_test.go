package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNextRefUnmarshal(t *testing.T) {
	var step Step
	data := []byte(`{"step":"ask_number","message":"Digite um número","input":"number","next":"show_result"}`)
	if err := json.Unmarshal(data, &step); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if step.Next.IsMap() || step.Next.Step != "show_result" {
		t.Errorf("expected literal next %q, got %+v", "show_result", step.Next)
	}

	data = []byte(`{"step":"main_menu","message":"Escolha","input":"menu","options":[{"text":"Ajuda","value":"help"}],"next":{"help":"help_step"}}`)
	if err := json.Unmarshal(data, &step); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !step.Next.IsMap() || step.Next.Branches["help"] != "help_step" {
		t.Errorf("expected branch mapping, got %+v", step.Next)
	}
}

func TestNextRefMarshalRoundTrip(t *testing.T) {
	orig := NextRef{Branches: map[string]string{"a": "step_a"}}
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded NextRef
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.Branches["a"] != "step_a" {
		t.Errorf("round trip lost branches: %+v", decoded)
	}
}

func TestStepValidate(t *testing.T) {
	cases := []struct {
		name    string
		step    Step
		wantErr error
	}{
		{"valid text step", Step{ID: "ask", Message: "Oi", Input: InputText}, nil},
		{"missing id", Step{Message: "Oi"}, ErrEmptyStepID},
		{"missing message", Step{ID: "ask"}, ErrEmptyStepMessage},
		{"menu without options", Step{ID: "m", Message: "Escolha", Input: InputMenu, Next: NextRef{Branches: map[string]string{"a": "b"}}}, ErrMissingMenuOptions},
		{"menu without next map", Step{ID: "m", Message: "Escolha", Input: InputMenu, Options: []StepOption{{Text: "A", Value: "a"}}, Next: NextRef{Step: "b"}}, ErrMissingNextMap},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.step.Validate()
			if tc.wantErr == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestStepDefaults(t *testing.T) {
	s := Step{ID: "x", Message: "m"}
	if got := s.MaxRetries(); got != DefaultMaxRetries {
		t.Errorf("expected default retries %d, got %d", DefaultMaxRetries, got)
	}
	if !s.ShouldReply() {
		t.Error("expected reply default true")
	}
	noReply := false
	s.Reply = &noReply
	if s.ShouldReply() {
		t.Error("expected reply false when declared")
	}
}

func TestNormalizeCPF(t *testing.T) {
	if got := NormalizeCPF("123.456.789-09"); got != "12345678909" {
		t.Errorf("expected 12345678909, got %q", got)
	}
	if got := NormalizeCPF("abc"); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestValidateCPF(t *testing.T) {
	cases := []struct {
		cpf     string
		wantErr error
	}{
		{"12345678909", nil},
		{"123456789", ErrInvalidCPF},
		{"111111111111", ErrInvalidCPF},
		{"11111111111", ErrCPFAllSameDigits},
		{"00000000000", ErrCPFAllSameDigits},
	}
	for _, tc := range cases {
		err := ValidateCPF(tc.cpf)
		if tc.wantErr == nil && err != nil {
			t.Errorf("cpf %q: unexpected error: %v", tc.cpf, err)
		}
		if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
			t.Errorf("cpf %q: expected %v, got %v", tc.cpf, tc.wantErr, err)
		}
	}
}

func TestUserMessengerDedup(t *testing.T) {
	u := User{UserID: "u1", Name: "Ana", CPF: "12345678909"}
	if !u.AddMessenger(ChannelWhatsApp, "551199@c.us") {
		t.Error("expected first binding to be added")
	}
	if u.AddMessenger(ChannelWhatsApp, "551199@c.us") {
		t.Error("expected duplicate binding to be rejected")
	}
	if !u.AddMessenger(ChannelTwilio, "+551199") {
		t.Error("expected second channel binding to be added")
	}
	if len(u.Messengers) != 2 {
		t.Errorf("expected 2 bindings, got %d", len(u.Messengers))
	}
}

func TestCapturedValueString(t *testing.T) {
	if got := (CapturedValue{Text: "42"}).String(); got != "42" {
		t.Errorf("expected 42, got %q", got)
	}
	if got := (CapturedValue{Location: &Location{Latitude: -29.7, Longitude: -53.7}}).String(); got != "-29.7,-53.7" {
		t.Errorf("unexpected location format: %q", got)
	}
	if got := (CapturedValue{Sticker: "stk1"}).String(); got != "stk1" {
		t.Errorf("expected sticker id, got %q", got)
	}
}

func TestMessageIsInitial(t *testing.T) {
	m := Message{Channel: ChannelWhatsApp, ChannelUserID: "551199"}
	if !m.IsInitial() {
		t.Error("expected empty message to be initial")
	}
	m.Text = "oi"
	if m.IsInitial() {
		t.Error("expected message with text not to be initial")
	}
}
