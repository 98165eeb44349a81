package models

import "strconv"

// Location is a structured geographic payload attached to a message.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Message is a normalized inbound event delivered by a channel adapter.
type Message struct {
	MessageID     string    `json:"message_id"`
	Channel       Channel   `json:"channel"`
	ChannelUserID string    `json:"channel_user_id"`
	Text          string    `json:"text,omitempty"`
	Media         string    `json:"media,omitempty"` // base64 payload or fetch reference
	Sticker       string    `json:"sticker,omitempty"`
	Location      *Location `json:"location,omitempty"`
	Time          int64     `json:"time"`
}

// IsInitial reports whether the event carries no payload at all. Such events
// only trigger the current step's initial prompt.
func (m *Message) IsInitial() bool {
	return m.Text == "" && m.Media == "" && m.Sticker == "" && m.Location == nil
}

// HasMedia reports whether an image attachment is present.
func (m *Message) HasMedia() bool { return m.Media != "" }

// CapturedValue is the validated payload captured for one step: raw text for
// text/number/menu steps, the structured payload for location and sticker steps.
type CapturedValue struct {
	Text     string    `json:"text,omitempty"`
	Sticker  string    `json:"sticker,omitempty"`
	Location *Location `json:"location,omitempty"`
}

// String renders the captured value for template substitution and optin input.
func (v CapturedValue) String() string {
	switch {
	case v.Location != nil:
		return formatLocation(v.Location)
	case v.Sticker != "":
		return v.Sticker
	default:
		return v.Text
	}
}

func formatLocation(loc *Location) string {
	lat := strconv.FormatFloat(loc.Latitude, 'f', -1, 64)
	lon := strconv.FormatFloat(loc.Longitude, 'f', -1, 64)
	return lat + "," + lon
}
