package errors

import (
	"context"
	"runtime"
	"strconv"

	"repokit/logging"
)

// WrapDatabaseError 包装数据源读写错误并记录警告日志。
// 已带错误码的 NotFound / Conflict 原样保留，便于仓储层区分。
func WrapDatabaseError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}
	if IsNotFound(err) || IsConflict(err) {
		return err
	}
	_, file, line, _ := runtime.Caller(1)
	logging.ComponentLogger("errors").Warn(ctx, "database operation failed",
		logging.String("operation", operation),
		logging.String("location", file+":"+strconv.Itoa(line)),
		logging.Error(err))
	return WrapError(err, ErrCodeDatabase, operation)
}
