// Package models defines the core data structures for flowbot.
//
// It includes the flow step definition, normalized inbound messages, session
// state and registered user identities, which are shared across modules.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Channel identifies a messaging platform through which events arrive and are sent.
type Channel string

const (
	// ChannelWhatsApp is the Whatsmeow-backed WhatsApp channel.
	ChannelWhatsApp Channel = "whatsapp"
	// ChannelTwilio is the Twilio-backed WhatsApp channel.
	ChannelTwilio Channel = "twilio"
)

// MenuStyle defines how a channel presents menu options to the user.
type MenuStyle string

const (
	// MenuStyleNumbered appends a 1-based numbered listing to the message text;
	// the user replies with the option number.
	MenuStyleNumbered MenuStyle = "numbered"
	// MenuStyleNative renders options as native selections; the selected
	// option's declared value arrives back as the message body.
	MenuStyleNative MenuStyle = "native"
)

// InputKind declares what kind of input a flow step expects.
type InputKind string

const (
	// InputNone marks a pure display step that expects no input.
	InputNone InputKind = ""
	// InputText expects non-empty text.
	InputText InputKind = "text"
	// InputNumber expects text that parses as an integer.
	InputNumber InputKind = "number"
	// InputImage expects an image attachment.
	InputImage InputKind = "image"
	// InputSticker expects a sticker payload.
	InputSticker InputKind = "sticker"
	// InputLocation expects a structured location payload.
	InputLocation InputKind = "location"
	// InputMenu expects a selection from the step's options.
	InputMenu InputKind = "menu"
)

// Reserved step identifiers and keywords. The main menu and the registration
// steps are always present in a valid flow graph.
const (
	StepMainMenu     = "main_menu"
	StepRegisterName = "register_name"
	StepRegisterCPF  = "register_cpf"

	// CancelKeyword resets the session to the main menu from any step.
	CancelKeyword = "cancel"

	// DefaultMaxRetries is the retry limit for steps that do not declare one.
	DefaultMaxRetries = 3
)

// Error variables for better error handling and testability
var (
	ErrEmptyStepID        = errors.New("step id cannot be empty")
	ErrEmptyStepMessage   = errors.New("step message cannot be empty")
	ErrMissingMenuOptions = errors.New("menu steps require options")
	ErrMissingNextMap     = errors.New("menu steps require a next mapping")
	ErrStepNotFound       = errors.New("step not found in flow graph")
	ErrInvalidCPF         = errors.New("cpf must normalize to exactly 11 digits")
	ErrCPFAllSameDigits   = errors.New("cpf with all identical digits is invalid")
)

// StepOption is one selectable entry of a menu step.
type StepOption struct {
	Text  string `json:"text"`  // display text shown to the user
	Value string `json:"value"` // branch key into the step's next mapping
}

// Optin declares a named side-effect computation attached to a step. Inputs
// name the step ids whose captured values are passed to the method.
type Optin struct {
	Method string   `json:"method"`
	Inputs []string `json:"inputs"`
}

// NextRef is the "next" field of a step: either a literal step id or a
// mapping from option value / optin result key to a step id.
type NextRef struct {
	Step     string
	Branches map[string]string
}

// IsMap reports whether the reference is a branch mapping.
func (n NextRef) IsMap() bool { return n.Branches != nil }

// IsZero reports whether no next reference was declared at all.
func (n NextRef) IsZero() bool { return n.Step == "" && n.Branches == nil }

// Targets returns every step id the reference can resolve to.
func (n NextRef) Targets() []string {
	if !n.IsMap() {
		if n.Step == "" {
			return nil
		}
		return []string{n.Step}
	}
	targets := make([]string, 0, len(n.Branches))
	for _, t := range n.Branches {
		targets = append(targets, t)
	}
	return targets
}

// UnmarshalJSON accepts both the literal string form and the object form.
func (n *NextRef) UnmarshalJSON(data []byte) error {
	var step string
	if err := json.Unmarshal(data, &step); err == nil {
		n.Step = step
		n.Branches = nil
		return nil
	}
	var branches map[string]string
	if err := json.Unmarshal(data, &branches); err != nil {
		return fmt.Errorf("next must be a step id or a mapping of branch keys to step ids: %w", err)
	}
	n.Step = ""
	n.Branches = branches
	return nil
}

// MarshalJSON emits the literal form when no branches are declared.
func (n NextRef) MarshalJSON() ([]byte, error) {
	if n.IsMap() {
		return json.Marshal(n.Branches)
	}
	return json.Marshal(n.Step)
}

// Step is one immutable node of the declarative conversation graph.
type Step struct {
	ID                 string       `json:"step"`
	Message            string       `json:"message"`
	Input              InputKind    `json:"input,omitempty"`
	Options            []StepOption `json:"options,omitempty"`
	Next               NextRef      `json:"next,omitempty"`
	Retries            int          `json:"retries,omitempty"`
	CustomErrorMessage string       `json:"custom_error_message,omitempty"`
	Optin              *Optin       `json:"optin,omitempty"`
	Image              string       `json:"image,omitempty"`
	Sticker            string       `json:"sticker,omitempty"`
	Reply              *bool        `json:"reply,omitempty"`
}

// MaxRetries returns the step's retry limit, falling back to the default.
func (s *Step) MaxRetries() int {
	if s.Retries > 0 {
		return s.Retries
	}
	return DefaultMaxRetries
}

// ShouldReply reports whether outbound messages for this step quote the
// user's original message. Defaults to true when not declared.
func (s *Step) ShouldReply() bool {
	return s.Reply == nil || *s.Reply
}

// IsRegistration reports whether the step belongs to the registration sub-flow.
func (s *Step) IsRegistration() bool {
	return strings.HasPrefix(s.ID, "register")
}

// Validate checks the structural requirements of a single step. Referential
// integrity of next targets is checked at the graph level.
func (s *Step) Validate() error {
	if s.ID == "" {
		return ErrEmptyStepID
	}
	if s.Message == "" && s.Input != InputSticker {
		return fmt.Errorf("step %s: %w", s.ID, ErrEmptyStepMessage)
	}
	if s.Input == InputMenu {
		if len(s.Options) == 0 {
			return fmt.Errorf("step %s: %w", s.ID, ErrMissingMenuOptions)
		}
		if !s.Next.IsMap() {
			return fmt.Errorf("step %s: %w", s.ID, ErrMissingNextMap)
		}
	}
	return nil
}

// NormalizeCPF strips every non-digit character from a raw CPF string.
func NormalizeCPF(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateCPF validates an already-normalized CPF: exactly 11 digits and not
// all the same digit.
func ValidateCPF(cpf string) error {
	if len(cpf) != 11 {
		return ErrInvalidCPF
	}
	allSame := true
	for i := 1; i < len(cpf); i++ {
		if cpf[i] != cpf[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return ErrCPFAllSameDigits
	}
	return nil
}
