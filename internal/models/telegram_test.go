package models

import "testing"

func TestTelegramMessage_IsCommand(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"/start", true},
		{"  /help", true},
		{"\n/stats", true},
		{"Сколько всего видео?", false},
		{"a /start", false},
		{"", false},
	}

	for _, tt := range tests {
		m := &TelegramMessage{Text: tt.text}
		if got := m.IsCommand(); got != tt.want {
			t.Errorf("IsCommand(%q): expected %v, got %v", tt.text, tt.want, got)
		}
	}
}
