package flow

import (
	"strconv"
	"strings"

	"github.com/e2g-ufsm/flowbot/internal/models"
)

// ValidateInput reports whether the inbound message satisfies the step's
// declared input kind. Menu validation depends on the channel's menu style.
func ValidateInput(msg *models.Message, step *models.Step, style models.MenuStyle) bool {
	switch step.Input {
	case models.InputText:
		return strings.TrimSpace(msg.Text) != ""
	case models.InputNumber:
		_, err := strconv.Atoi(strings.TrimSpace(msg.Text))
		return err == nil
	case models.InputImage:
		return msg.HasMedia()
	case models.InputSticker:
		return msg.Sticker != ""
	case models.InputLocation:
		return msg.Location != nil
	case models.InputMenu:
		_, ok := ResolveMenuOption(step, msg.Text, style)
		return ok
	default:
		return true
	}
}

// ResolveMenuOption maps the inbound text to one of the step's options.
// Numbered channels interpret the text strictly as a 1-based index into the
// option list; anything non-numeric or out of range fails. Native channels
// match the text against the options' declared values. Selecting index k on
// a numbered channel and sending option k's value on a native channel
// resolve to the same option.
func ResolveMenuOption(step *models.Step, text string, style models.MenuStyle) (*models.StepOption, bool) {
	text = strings.TrimSpace(text)
	if style == models.MenuStyleNumbered {
		idx, err := strconv.Atoi(text)
		if err != nil || idx < 1 || idx > len(step.Options) {
			return nil, false
		}
		return &step.Options[idx-1], true
	}
	for i := range step.Options {
		if step.Options[i].Value == text {
			return &step.Options[i], true
		}
	}
	return nil, false
}

// CaptureValue extracts the validated payload to store for the step: raw
// text for text/number/menu steps, the structured payload otherwise.
func CaptureValue(msg *models.Message, step *models.Step) models.CapturedValue {
	switch step.Input {
	case models.InputLocation:
		return models.CapturedValue{Location: msg.Location}
	case models.InputSticker:
		return models.CapturedValue{Sticker: msg.Sticker}
	default:
		return models.CapturedValue{Text: msg.Text}
	}
}
