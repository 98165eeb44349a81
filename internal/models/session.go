package models

import "time"

// Session tracks one user's progress through the flow. Sessions are keyed by
// the channel-scoped user id and persisted after every turn.
type Session struct {
	// UserID is the resolved identity id once registered, otherwise the raw
	// channel-scoped user id.
	UserID            string                   `json:"user_id"`
	Channel           Channel                  `json:"channel"`
	ChannelUserID     string                   `json:"channel_user_id"`
	CurrentStep       string                   `json:"current_step"`
	LastActivity      time.Time                `json:"last_activity"`
	Retries           int                      `json:"retries"`
	Inputs            map[string]CapturedValue `json:"inputs"`
	InitialPromptSent bool                     `json:"initial_prompt_sent"`
	// OptinResult holds a side-effect result carried into the next rendered
	// prompt. It is transient and cleared at the start of each turn.
	OptinResult map[string]string `json:"optin_result,omitempty"`
}

// Touch updates the session's last activity timestamp.
func (s *Session) Touch(now time.Time) { s.LastActivity = now }

// Capture records a validated input value for the given step.
func (s *Session) Capture(stepID string, value CapturedValue) {
	if s.Inputs == nil {
		s.Inputs = make(map[string]CapturedValue)
	}
	s.Inputs[stepID] = value
}

// Messenger is one channel binding of a registered user.
type Messenger struct {
	Source Channel `json:"source"`
	ID     string  `json:"id"`
}

// User is a registered identity unifying one or more channel bindings.
// A CPF maps to at most one User, and a given channel binding belongs to at
// most one User.
type User struct {
	UserID     string      `json:"user_id"`
	Name       string      `json:"name"`
	CPF        string      `json:"cpf"`
	Messengers []Messenger `json:"messengers"`
}

// HasMessenger reports whether the given channel binding is already linked.
func (u *User) HasMessenger(source Channel, id string) bool {
	for _, m := range u.Messengers {
		if m.Source == source && m.ID == id {
			return true
		}
	}
	return false
}

// AddMessenger links a channel binding, deduplicating. Returns true if the
// binding was added.
func (u *User) AddMessenger(source Channel, id string) bool {
	if u.HasMessenger(source, id) {
		return false
	}
	u.Messengers = append(u.Messengers, Messenger{Source: source, ID: id})
	return true
}
