package source

import (
	"fmt"

	"repokit/errors"
)

// UnsupportedError 数据源无法执行某种查询构造（如 SQL 数据源遇到进程内谓词）
type UnsupportedError struct {
	Source    string
	Construct string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s: %s is not supported", e.Source, e.Construct)
}

// Unsupported 供 errors.Normalize 识别
func (e *UnsupportedError) Unsupported() bool { return true }

// Is 与 errors.ErrUnsupported 比较相等
func (e *UnsupportedError) Is(target error) bool {
	return target == errors.ErrUnsupported
}

// Unsupported 构造 UnsupportedError
func Unsupported(source, construct string) error {
	return &UnsupportedError{Source: source, Construct: construct}
}

// UnknownIncludeError 数据源没有注册该关联路径
type UnknownIncludeError struct {
	Source string
	Path   string
}

func (e *UnknownIncludeError) Error() string {
	return fmt.Sprintf("%s: unknown include path %q", e.Source, e.Path)
}
