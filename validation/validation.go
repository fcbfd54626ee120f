// Package validation 实体与查询参数的校验工具。
//
// 校验失败统一返回 INVALID_ARGUMENT 错误，details 中的 param 为出错的字段名。
package validation

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"repokit/errors"
)

// Validatable 写入前需要自检的实体，仓储在 Add/Update 时调用
type Validatable interface {
	Validate() error
}

// Check v 实现 Validatable 时调用其 Validate，否则直接通过
func Check(v any) error {
	if x, ok := v.(Validatable); ok {
		return x.Validate()
	}
	return nil
}

// Required 字符串去掉空白后不能为空
func Required(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return errors.NewInvalidArgument(field, "must not be empty")
	}
	return nil
}

// StringLength 按字符数校验长度，max <= 0 表示不限上限
func StringLength(value, field string, min, max int) error {
	n := utf8.RuneCountInString(value)
	if n < min {
		return errors.NewInvalidArgument(field, fmt.Sprintf("must be at least %d characters (got %d)", min, n))
	}
	if max > 0 && n > max {
		return errors.NewInvalidArgument(field, fmt.Sprintf("must be at most %d characters (got %d)", max, n))
	}
	return nil
}

func IntRange(value int, field string, min, max int) error {
	if value < min || value > max {
		return errors.NewInvalidArgument(field, fmt.Sprintf("must be within [%d, %d] (got %d)", min, max, value))
	}
	return nil
}

func FloatRange(value float64, field string, min, max float64) error {
	if value < min || value > max {
		return errors.NewInvalidArgument(field, fmt.Sprintf("must be within [%g, %g] (got %g)", min, max, value))
	}
	return nil
}

func Positive(value int64, field string) error {
	if value <= 0 {
		return errors.NewInvalidArgument(field, fmt.Sprintf("must be positive (got %d)", value))
	}
	return nil
}

func NonNegative(value int, field string) error {
	if value < 0 {
		return errors.NewInvalidArgument(field, fmt.Sprintf("must not be negative (got %d)", value))
	}
	return nil
}

// Enum value 必须是 allowed 之一
func Enum(value, field string, allowed ...string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return errors.NewInvalidArgument(field, fmt.Sprintf("must be one of %s (got %q)", strings.Join(allowed, ", "), value))
}

// PageParams 校验分页参数：size 为 0 表示不分页；maxSize <= 0 不限上限
func PageParams(index, size, maxSize int) error {
	if size == 0 {
		return nil
	}
	if index <= 0 {
		return errors.NewInvalidArgument("page", "must be positive")
	}
	if size < 0 {
		return errors.NewInvalidArgument("size", "must not be negative")
	}
	if maxSize > 0 && size > maxSize {
		return errors.NewInvalidArgument("size", fmt.Sprintf("must not exceed %d", maxSize))
	}
	return nil
}

// All 依次执行，返回第一个错误
func All(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
