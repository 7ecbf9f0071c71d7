package dialog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"advisor/internal/pkg/convert"
)

var errNotANumber = errors.New("not a number")

// PositiveNumber 接受人写的数字（逗号小数、货币符号），要求严格大于零。
// 零止损这类输入在这里被拒绝，永远到不了后面的除法。
func PositiveNumber(input string) (string, error) {
	v, ok := convert.ParseAmount(input)
	if !ok {
		return "", errNotANumber
	}
	if v <= 0 {
		return "", errors.New("must be positive")
	}
	return strconv.FormatFloat(v, 'f', -1, 64), nil
}

// NonEmpty 去空白后必须有内容。
func NonEmpty(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", errors.New("empty input")
	}
	return s, nil
}

// OneOf 输入必须等于候选之一（大小写不敏感），返回规范形式。
func OneOf(options ...string) Validator {
	return func(input string) (string, error) {
		s := strings.TrimSpace(input)
		for _, opt := range options {
			if strings.EqualFold(s, opt) {
				return opt, nil
			}
		}
		return "", fmt.Errorf("expected one of: %s", strings.Join(options, ", "))
	}
}

// FieldFloat 读取已校验字段的数值形式。
func FieldFloat(fields map[string]string, key string) (float64, error) {
	raw, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("field %q missing", key)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("field %q is not numeric: %w", key, err)
	}
	return v, nil
}
