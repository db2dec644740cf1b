package services

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/VollpenTinger/tg-bot-video-analytics/internal/database"
)

// Reply texts for results without a number
const (
	MsgNoData        = "Нет данных"
	MsgNoNumericData = "Нет числовых данных для ответа"
)

var decimalPattern = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// FormatResult renders a query result as plain numbers. A single cell is
// printed as-is; otherwise every numeric cell is listed, comma separated.
func FormatResult(rs *database.ResultSet) string {
	if rs.Empty() {
		return MsgNoData
	}

	if len(rs.Rows) == 1 && len(rs.Rows[0]) == 1 {
		value := rs.Rows[0][0]
		if value == nil {
			return MsgNoData
		}
		if s, ok := formatNumeric(value); ok {
			return s
		}
		return formatOther(value)
	}

	var parts []string
	for _, row := range rs.Rows {
		for _, value := range row {
			if s, ok := formatNumeric(value); ok {
				parts = append(parts, s)
			}
		}
	}
	if len(parts) == 0 {
		return MsgNoNumericData
	}
	return strings.Join(parts, ", ")
}

// formatNumeric prints integral values without a fractional part and
// trims trailing zeros from decimals.
func formatNumeric(value any) (string, bool) {
	switch v := value.(type) {
	case int64:
		return strconv.FormatInt(v, 10), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int:
		return strconv.Itoa(v), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case float32:
		return formatFloat(float64(v)), true
	case float64:
		return formatFloat(v), true
	case string:
		s := strings.TrimSpace(v)
		if decimalPattern.MatchString(s) {
			return trimDecimal(s), true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return formatFloat(f), true
		}
	}
	return "", false
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func trimDecimal(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}

func formatOther(value any) string {
	switch v := value.(type) {
	case time.Time:
		return v.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(v)
	}
}
