package logging

import (
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level      string
		production bool
		want       slog.Level
	}{
		{"", false, slog.LevelDebug},
		{"", true, slog.LevelInfo},
		{"DEBUG", true, slog.LevelDebug},
		{"warning", false, slog.LevelWarn},
		{"error", false, slog.LevelError},
		{"verbose", true, slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.level, tt.production); got != tt.want {
			t.Errorf("parseLevel(%q, %v): expected %v, got %v", tt.level, tt.production, tt.want, got)
		}
	}
}
