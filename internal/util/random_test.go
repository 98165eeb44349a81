package util

import (
	"strings"
	"testing"
)

func TestGenerateRandomHex(t *testing.T) {
	hex := GenerateRandomHex(16)
	if len(hex) != 16 {
		t.Errorf("expected 16 characters, got %d", len(hex))
	}
	for _, c := range hex {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Errorf("unexpected character %q", c)
		}
	}
	if GenerateRandomHex(0) != "" {
		t.Error("expected empty string for zero length")
	}
}

func TestGenerateMediaID(t *testing.T) {
	id := GenerateMediaID()
	if !strings.HasPrefix(id, "m_") || len(id) != 34 {
		t.Errorf("unexpected media id %q", id)
	}
	if GenerateMediaID() == id {
		t.Error("expected distinct ids")
	}
}
