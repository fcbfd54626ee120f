package errors

import (
	"context"
	"database/sql"
	stdErrors "errors"
)

// unsupported 由适配器错误实现，用于声明“能力不支持”而不引入包依赖。
type unsupported interface {
	Unsupported() bool
}

// Normalize 在边界（CLI、服务层）把适配器错误映射到错误码。
//
// 注意：
//   - 已经是 IError 的错误原样返回；
//   - 查询核心内部不调用 Normalize，适配器错误在核心中保持原样；
//   - 未识别的错误保持原样，交由调用方决定是否 Wrap。
func Normalize(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(IError); ok {
		return err
	}

	switch {
	case stdErrors.Is(err, context.Canceled):
		return WrapError(err, ErrCodeCanceled, "operation canceled")
	case stdErrors.Is(err, context.DeadlineExceeded):
		return WrapError(err, ErrCodeTimeout, "operation timed out")
	case stdErrors.Is(err, sql.ErrNoRows):
		return WrapError(err, ErrCodeNotFound, "record not found")
	}

	var u unsupported
	if stdErrors.As(err, &u) && u.Unsupported() {
		return WrapError(err, ErrCodeUnsupported, "capability unsupported by data source")
	}
	return err
}
