// Package errors 提供带错误码的应用错误类型。
//
// 查询核心只在“调用方契约违规”时主动构造 AppError（ErrCodeInvalidArgument），
// 数据源适配器返回的错误一律原样透传；需要在边界统一错误码时使用 Normalize。
package errors

import (
	stdErrors "errors"
	"fmt"
	"maps"
)

// ErrorCode 错误代码类型
type ErrorCode string

const (
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeConflict        ErrorCode = "CONFLICT"
	ErrCodeNoElements      ErrorCode = "NO_ELEMENTS"
	ErrCodeUnsupported     ErrorCode = "UNSUPPORTED"
	ErrCodeCanceled        ErrorCode = "CANCELED"
	ErrCodeTimeout         ErrorCode = "TIMEOUT"

	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeConfig   ErrorCode = "CONFIG_ERROR"
)

// IError 带错误码的错误
type IError interface {
	error

	Code() ErrorCode
	Message() string
	Cause() error
	Details() map[string]any
	WithContext(key string, value any) IError
}

// AppError 应用错误实现，创建后不再修改
type AppError struct {
	code    ErrorCode
	message string
	cause   error
	details map[string]any
}

func NewError(code ErrorCode, message string) IError {
	return &AppError{code: code, message: message}
}

// WrapError 包装错误，err 为 nil 时返回 nil
func WrapError(err error, code ErrorCode, message string) IError {
	if err == nil {
		return nil
	}
	return &AppError{code: code, message: message, cause: err}
}

// NewInvalidArgument 创建参数错误，details 中记录违规参数名。
func NewInvalidArgument(param, message string) IError {
	return NewError(ErrCodeInvalidArgument, param+": "+message).WithContext("param", param)
}

func (e *AppError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("[%s] %s", e.code, e.message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
}

func (e *AppError) Code() ErrorCode { return e.code }
func (e *AppError) Message() string { return e.message }
func (e *AppError) Cause() error    { return e.cause }
func (e *AppError) Unwrap() error   { return e.cause }

// Details 返回详情副本
func (e *AppError) Details() map[string]any {
	if e.details == nil {
		return map[string]any{}
	}
	return maps.Clone(e.details)
}

// Is 同错误码的 AppError 视为相等；其余目标由 errors.Is 沿 Unwrap 继续比较。
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.code == e.code
}

// WithContext 返回追加单个详情后的副本
func (e *AppError) WithContext(key string, value any) IError {
	details := make(map[string]any, len(e.details)+1)
	maps.Copy(details, e.details)
	details[key] = value
	return &AppError{code: e.code, message: e.message, cause: e.cause, details: details}
}

// 预定义错误变量，仅用于 errors.Is 比较错误码
var (
	ErrInvalidArgument = NewError(ErrCodeInvalidArgument, "invalid argument")
	ErrNotFound        = NewError(ErrCodeNotFound, "not found")
	ErrNoElements      = NewError(ErrCodeNoElements, "sequence contains no elements")
	ErrUnsupported     = NewError(ErrCodeUnsupported, "unsupported")
)

func IsInvalidArgument(err error) bool { return IsErrorCode(err, ErrCodeInvalidArgument) }
func IsNotFound(err error) bool        { return IsErrorCode(err, ErrCodeNotFound) }
func IsConflict(err error) bool        { return IsErrorCode(err, ErrCodeConflict) }

// IsErrorCode 检查错误链上第一个 AppError 的错误码
func IsErrorCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return stdErrors.As(err, &appErr) && appErr.code == code
}

// GetErrorCode 获取错误代码，非 AppError 视为内部错误
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code
	}
	return ErrCodeInternal
}

// ParamOf 返回参数错误中记录的参数名
func ParamOf(err error) string {
	var appErr *AppError
	if !stdErrors.As(err, &appErr) {
		return ""
	}
	p, _ := appErr.details["param"].(string)
	return p
}
