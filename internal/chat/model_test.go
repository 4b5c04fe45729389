package chat

import (
	"strings"
	"testing"
)

func TestRoomIsParticipant(t *testing.T) {
	room := Room{ID: "r1", AccountantID: "u-acc", ClientID: "u-cli"}

	if !room.IsParticipant("u-acc") {
		t.Error("expected accountant to be a participant")
	}
	if !room.IsParticipant("u-cli") {
		t.Error("expected client to be a participant")
	}
	if room.IsParticipant("u-other") {
		t.Error("expected outsider not to be a participant")
	}
}

func TestRoomCounterpart(t *testing.T) {
	room := Room{ID: "r1", AccountantID: "u-acc", ClientID: "u-cli"}

	if got := room.Counterpart("u-acc"); got != "u-cli" {
		t.Errorf("expected counterpart %q, got %q", "u-cli", got)
	}
	if got := room.Counterpart("u-cli"); got != "u-acc" {
		t.Errorf("expected counterpart %q, got %q", "u-acc", got)
	}
	if got := room.Counterpart("u-other"); got != "" {
		t.Errorf("expected empty counterpart for outsider, got %q", got)
	}
}

func TestValidateContent(t *testing.T) {
	if err := ValidateContent("merhaba"); err != nil {
		t.Errorf("unexpected error for valid content: %v", err)
	}
	if err := ValidateContent(""); err == nil {
		t.Error("expected error for empty content")
	}
	if err := ValidateContent(strings.Repeat("a", MaxContentBytes+1)); err == nil {
		t.Error("expected error for oversized content")
	}
	if err := ValidateContent(string([]byte{0xff, 0xfe})); err == nil {
		t.Error("expected error for invalid UTF-8")
	}
}

func TestValidateContent_CharLimit(t *testing.T) {
	// Multi-byte runes: stays under the byte limit but over the char limit.
	text := strings.Repeat("ç", MaxContentChars+1)
	if len(text) > MaxContentBytes {
		t.Skip("encoding pushed text over the byte limit")
	}
	if err := ValidateContent(text); err == nil {
		t.Error("expected error for content over the character limit")
	}
}
