package services

import (
	"testing"
	"time"

	"github.com/VollpenTinger/tg-bot-video-analytics/internal/database"
)

func single(v any) *database.ResultSet {
	return &database.ResultSet{Columns: []string{"v"}, Rows: [][]any{{v}}}
}

func TestFormatResult(t *testing.T) {
	tests := []struct {
		name     string
		rs       *database.ResultSet
		expected string
	}{
		{"nil result", nil, MsgNoData},
		{"no rows", &database.ResultSet{Columns: []string{"v"}}, MsgNoData},
		{"null cell", single(nil), MsgNoData},
		{"int", single(int64(42)), "42"},
		{"integral float", single(float64(15000)), "15000"},
		{"fractional float", single(12.5), "12.5"},
		{"numeric string", single("1234.5000"), "1234.5"},
		{"integral numeric string", single("7.000"), "7"},
		{"plain integer string", single("100"), "100"},
		{"negative zero decimal", single("-0.000"), "0"},
		{"text cell", single("abc"), "abc"},
		{"timestamp cell", single(time.Date(2025, 11, 27, 8, 0, 0, 0, time.UTC)), "2025-11-27 08:00:00"},
		{
			"multiple columns",
			&database.ResultSet{Columns: []string{"a", "b"}, Rows: [][]any{{int64(1), 2.0}}},
			"1, 2",
		},
		{
			"multiple rows keep column order",
			&database.ResultSet{Columns: []string{"n", "label"}, Rows: [][]any{{int64(3), "x"}, {int64(4), "y"}}},
			"3, 4",
		},
		{
			"no numeric cells",
			&database.ResultSet{Columns: []string{"a", "b"}, Rows: [][]any{{"x", nil}}},
			MsgNoNumericData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatResult(tt.rs); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}
