package flow

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/e2g-ufsm/flowbot/internal/models"
	"github.com/e2g-ufsm/flowbot/internal/store"
)

// SessionManager resolves and mutates sessions on top of a Store backend.
// Every mutation is written through immediately.
type SessionManager struct {
	store store.Store
}

// NewSessionManager creates a SessionManager backed by a Store.
func NewSessionManager(st store.Store) *SessionManager {
	slog.Debug("Creating SessionManager")
	return &SessionManager{store: st}
}

// ResolveOrCreate looks up the session keyed by channel plus channel-scoped
// user id, creating one when absent: a returning registered identity is
// seeded at the main menu, an unknown sender at the registration entry step.
// The same user id arriving on a different channel gets its own session. The
// second return value reports whether a new session was created.
func (sm *SessionManager) ResolveOrCreate(channel models.Channel, channelUserID string) (*models.Session, bool, error) {
	session, err := sm.store.GetSession(channel, channelUserID)
	if err != nil {
		slog.Error("SessionManager ResolveOrCreate lookup error", "error", err, "channel", channel, "channel_user_id", channelUserID)
		return nil, false, err
	}
	if session != nil {
		return session, false, nil
	}

	user, err := sm.store.GetUserByMessenger(channel, channelUserID)
	if err != nil {
		slog.Error("SessionManager ResolveOrCreate user lookup error", "error", err, "channel_user_id", channelUserID)
		return nil, false, err
	}

	session = &models.Session{
		UserID:        channelUserID,
		Channel:       channel,
		ChannelUserID: channelUserID,
		CurrentStep:   models.StepRegisterName,
		LastActivity:  time.Now(),
		Inputs:        make(map[string]models.CapturedValue),
	}
	if user != nil {
		session.UserID = user.UserID
		session.CurrentStep = models.StepMainMenu
		slog.Info("Existing user reconnected, session seeded at main menu", "user_id", user.UserID, "channel", channel)
	} else {
		slog.Info("New session seeded at registration entry", "channel", channel, "channel_user_id", channelUserID)
	}

	if err := sm.store.SaveSession(*session); err != nil {
		return nil, false, fmt.Errorf("failed to persist new session for %s: %w", channelUserID, err)
	}
	return session, true, nil
}

// IsExpired reports whether the session has been inactive longer than the
// timeout. Expiry is detected lazily, only when a new event arrives.
func (sm *SessionManager) IsExpired(session *models.Session, now time.Time, timeout time.Duration) bool {
	return now.Sub(session.LastActivity) > timeout
}

// Reset moves the session to the target step with a clean slate: retries
// cleared and the initial prompt pending again.
func (sm *SessionManager) Reset(session *models.Session, targetStepID string) {
	session.CurrentStep = targetStepID
	session.Retries = 0
	session.InitialPromptSent = false
}

// Save writes the session through to the store.
func (sm *SessionManager) Save(session *models.Session) error {
	if err := sm.store.SaveSession(*session); err != nil {
		slog.Error("SessionManager Save error", "error", err, "channel_user_id", session.ChannelUserID)
		return err
	}
	return nil
}

// Delete removes the session from the store.
func (sm *SessionManager) Delete(channel models.Channel, channelUserID string) error {
	if err := sm.store.DeleteSession(channel, channelUserID); err != nil {
		slog.Error("SessionManager Delete error", "error", err, "channel", channel, "channel_user_id", channelUserID)
		return err
	}
	return nil
}
