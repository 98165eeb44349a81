package flow

import (
	"testing"
	"time"

	"github.com/e2g-ufsm/flowbot/internal/models"
	"github.com/e2g-ufsm/flowbot/internal/store"
)

func TestResolveOrCreateUnknownSender(t *testing.T) {
	st := store.NewInMemoryStore()
	sm := NewSessionManager(st)

	sess, created, err := sm.ResolveOrCreate(models.ChannelWhatsApp, "5599111")
	if err != nil {
		t.Fatalf("ResolveOrCreate failed: %v", err)
	}
	if !created {
		t.Error("expected a new session")
	}
	if sess.CurrentStep != models.StepRegisterName {
		t.Errorf("expected registration entry step, got %q", sess.CurrentStep)
	}
	if sess.UserID != "5599111" {
		t.Errorf("expected provisional user id, got %q", sess.UserID)
	}

	again, created, err := sm.ResolveOrCreate(models.ChannelWhatsApp, "5599111")
	if err != nil {
		t.Fatalf("second ResolveOrCreate failed: %v", err)
	}
	if created {
		t.Error("expected the persisted session back")
	}
	if again.CurrentStep != models.StepRegisterName {
		t.Errorf("unexpected step %q", again.CurrentStep)
	}
}

func TestResolveOrCreateKnownIdentity(t *testing.T) {
	st := store.NewInMemoryStore()
	sm := NewSessionManager(st)

	err := st.SaveUser(models.User{
		UserID: "u-1",
		Name:   "Ana",
		CPF:    "12345678909",
		Messengers: []models.Messenger{
			{Source: models.ChannelWhatsApp, ID: "5599111"},
		},
	})
	if err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	sess, created, err := sm.ResolveOrCreate(models.ChannelWhatsApp, "5599111")
	if err != nil {
		t.Fatalf("ResolveOrCreate failed: %v", err)
	}
	if !created {
		t.Error("expected a new session")
	}
	if sess.CurrentStep != models.StepMainMenu {
		t.Errorf("expected main menu for registered identity, got %q", sess.CurrentStep)
	}
	if sess.UserID != "u-1" {
		t.Errorf("expected session bound to user, got %q", sess.UserID)
	}
}

func TestIsExpired(t *testing.T) {
	sm := NewSessionManager(store.NewInMemoryStore())
	now := time.Now()
	sess := &models.Session{LastActivity: now.Add(-31 * time.Minute)}

	if !sm.IsExpired(sess, now, 30*time.Minute) {
		t.Error("expected session past the timeout to be expired")
	}
	if sm.IsExpired(sess, now, time.Hour) {
		t.Error("expected session inside the timeout to be live")
	}
}

func TestReset(t *testing.T) {
	sm := NewSessionManager(store.NewInMemoryStore())
	sess := &models.Session{
		CurrentStep:       "ask_number",
		Retries:           2,
		InitialPromptSent: true,
		Inputs:            map[string]models.CapturedValue{"ask_number": {Text: "5"}},
	}

	sm.Reset(sess, models.StepMainMenu)

	if sess.CurrentStep != models.StepMainMenu {
		t.Errorf("expected main menu, got %q", sess.CurrentStep)
	}
	if sess.Retries != 0 || sess.InitialPromptSent {
		t.Errorf("expected cleared retry state, got %d/%v", sess.Retries, sess.InitialPromptSent)
	}
	// Captured inputs survive a reset so optins can still reference them.
	if sess.Inputs["ask_number"].Text != "5" {
		t.Error("expected captured inputs preserved")
	}
}
