package flow

import (
	"testing"

	"github.com/e2g-ufsm/flowbot/internal/models"
)

func menuStep() *models.Step {
	return &models.Step{
		ID:    models.StepMainMenu,
		Input: models.InputMenu,
		Options: []models.StepOption{
			{Text: "Somar dez", Value: "sum"},
			{Text: "Saudação", Value: "greet"},
		},
	}
}

func TestResolveMenuOption(t *testing.T) {
	tests := []struct {
		name  string
		style models.MenuStyle
		text  string
		want  string
		ok    bool
	}{
		{"numbered first index", models.MenuStyleNumbered, "1", "sum", true},
		{"numbered second index", models.MenuStyleNumbered, "2", "greet", true},
		{"numbered with spaces", models.MenuStyleNumbered, " 2 ", "greet", true},
		{"numbered out of range", models.MenuStyleNumbered, "3", "", false},
		{"numbered zero", models.MenuStyleNumbered, "0", "", false},
		{"numbered rejects raw value", models.MenuStyleNumbered, "sum", "", false},
		{"native value", models.MenuStyleNative, "sum", "sum", true},
		{"native unknown value", models.MenuStyleNative, "other", "", false},
		{"native ignores index", models.MenuStyleNative, "1", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt, ok := ResolveMenuOption(menuStep(), tt.text, tt.style)
			if ok != tt.ok {
				t.Fatalf("ResolveMenuOption(%q) ok = %v, want %v", tt.text, ok, tt.ok)
			}
			if ok && opt.Value != tt.want {
				t.Errorf("ResolveMenuOption(%q) = %q, want %q", tt.text, opt.Value, tt.want)
			}
		})
	}
}

// The same option must be reachable by index on numbered channels and by
// value on native ones.
func TestResolveMenuOptionEquivalence(t *testing.T) {
	step := menuStep()
	for i, opt := range step.Options {
		byIndex, ok := ResolveMenuOption(step, "2", models.MenuStyleNumbered)
		if i != 1 {
			continue
		}
		if !ok {
			t.Fatal("expected index resolution")
		}
		byValue, ok := ResolveMenuOption(step, opt.Value, models.MenuStyleNative)
		if !ok {
			t.Fatal("expected value resolution")
		}
		if byIndex.Value != byValue.Value {
			t.Errorf("index and value resolution disagree: %q vs %q", byIndex.Value, byValue.Value)
		}
	}
}

func TestValidateInput(t *testing.T) {
	loc := &models.Location{Latitude: -29.7, Longitude: -53.7}
	tests := []struct {
		name string
		msg  models.Message
		step models.Step
		want bool
	}{
		{"text ok", models.Message{Text: "olá"}, models.Step{Input: models.InputText}, true},
		{"text blank", models.Message{Text: "   "}, models.Step{Input: models.InputText}, false},
		{"number ok", models.Message{Text: "42"}, models.Step{Input: models.InputNumber}, true},
		{"number padded", models.Message{Text: " 42 "}, models.Step{Input: models.InputNumber}, true},
		{"number not numeric", models.Message{Text: "abc"}, models.Step{Input: models.InputNumber}, false},
		{"image ok", models.Message{Media: "/m/1"}, models.Step{Input: models.InputImage}, true},
		{"image missing", models.Message{Text: "sem foto"}, models.Step{Input: models.InputImage}, false},
		{"sticker ok", models.Message{Sticker: "/s/1"}, models.Step{Input: models.InputSticker}, true},
		{"sticker missing", models.Message{}, models.Step{Input: models.InputSticker}, false},
		{"location ok", models.Message{Location: loc}, models.Step{Input: models.InputLocation}, true},
		{"location missing", models.Message{}, models.Step{Input: models.InputLocation}, false},
		{"no input always passes", models.Message{}, models.Step{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateInput(&tt.msg, &tt.step, models.MenuStyleNumbered)
			if got != tt.want {
				t.Errorf("ValidateInput = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCaptureValue(t *testing.T) {
	loc := &models.Location{Latitude: 1, Longitude: 2}

	got := CaptureValue(&models.Message{Text: "42"}, &models.Step{Input: models.InputNumber})
	if got.Text != "42" {
		t.Errorf("expected text capture, got %#v", got)
	}

	got = CaptureValue(&models.Message{Sticker: "/s/1"}, &models.Step{Input: models.InputSticker})
	if got.Sticker != "/s/1" {
		t.Errorf("expected sticker capture, got %#v", got)
	}

	got = CaptureValue(&models.Message{Location: loc}, &models.Step{Input: models.InputLocation})
	if got.Location == nil || got.Location.Latitude != 1 {
		t.Errorf("expected location capture, got %#v", got)
	}
}
