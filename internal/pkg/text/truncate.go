package text

import "unicode/utf8"

// Truncate 按字节截断并追加省略号；不足上限时原样返回。
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// TruncateRunes 按字符截断，避免把多字节字符切半（Telegram 文案常含西里尔字母）。
func TruncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}
