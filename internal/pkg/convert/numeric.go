// Package convert provides numeric parsing helpers for user input and
// free-form model output.
package convert

import (
	"strconv"
	"strings"
)

var currencyMarks = []string{"$", "€", "₽", "usd", "usdt", "руб", "р."}

// ParseAmount parses a human-written number: currency marks and thousands
// separators are stripped, a decimal comma becomes a decimal point.
// The second result is false when nothing numeric remains.
func ParseAmount(raw string) (float64, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0, false
	}
	for _, mark := range currencyMarks {
		s = strings.ReplaceAll(s, mark, "")
	}
	s = strings.TrimSpace(s)
	// "1 250,50" and "1,250.50" both occur in the wild. A comma followed by
	// exactly three digits and no dot is a thousands separator, otherwise it
	// is a decimal comma.
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		if isThousandsComma(s) {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func isThousandsComma(s string) bool {
	idx := strings.LastIndex(s, ",")
	tail := s[idx+1:]
	if len(tail) != 3 {
		return false
	}
	for _, r := range tail {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ToFloat64 converts loosely-typed JSON values to float64, returning 0 on
// unsupported types.
func ToFloat64(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		f, _ := ParseAmount(t)
		return f
	default:
		return 0
	}
}
