// Package messaging provides the channel adapter abstraction and the
// per-user dispatcher that serializes inbound turns.
package messaging

import (
	"context"
	"strconv"
	"strings"

	"github.com/e2g-ufsm/flowbot/internal/models"
)

// Service defines a pluggable channel adapter. It delivers normalized
// inbound messages and accepts outbound requests; menu rendering differs per
// channel, exposed through MenuStyle.
type Service interface {
	// Channel identifies the platform this service serves.
	Channel() models.Channel

	// MenuStyle reports how this channel presents menu options: numbered
	// listings interpreted as 1-based indexes, or native selections whose
	// declared value arrives back as the message body.
	MenuStyle() models.MenuStyle

	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
	// identifier. This allows each service to implement its own rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendText sends a plain text message. replyTo quotes the original inbound
	// message when non-empty and the channel supports it.
	SendText(ctx context.Context, to, body, replyTo string) error

	// SendMenu sends a message with selectable options rendered per the
	// channel's menu style.
	SendMenu(ctx context.Context, to, body string, options []models.StepOption, replyTo string) error

	// SendImage sends an image from a local path with a caption. Options, when
	// present, are rendered after the caption per the channel's menu style.
	SendImage(ctx context.Context, to, path, caption string, options []models.StepOption) error

	// SendSticker sends a sticker from a local path.
	SendSticker(ctx context.Context, to, path string) error

	// Start begins any background processing (e.g., event polling).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Messages returns a channel of normalized inbound messages.
	Messages() <-chan models.Message
}

// FormatNumberedMenu renders options as a 1-based numbered listing appended
// to the message body, for channels without native selection support.
func FormatNumberedMenu(body string, options []models.StepOption) string {
	var b strings.Builder
	b.WriteString(body)
	b.WriteString("\n")
	for i, opt := range options {
		b.WriteString("\n")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(opt.Text)
	}
	return b.String()
}
