package sqlsource

import (
	"context"
	"strings"

	core "repokit/data/db"
	"repokit/errors"
	"repokit/logging"
)

// FromSQL 执行原生查询并按列名映射为 T。
//
// 语句使用 ? 占位符（Postgres 由执行器改写为 $n），处于工作单元中时加入当前事务。
// 结果集中没有映射到字段的列被忽略；不加载关联，也不应用全局过滤器。
func (t *Table[T]) FromSQL(ctx context.Context, stmt string, args ...any) ([]T, error) {
	if strings.TrimSpace(stmt) == "" {
		return nil, errors.NewInvalidArgument("stmt", "must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.logger.Debug(ctx, "raw select", logging.String("sql", stmt))

	rows, err := core.Executor(ctx, t.db).Query(ctx, stmt, args...)
	if err != nil {
		return nil, t.readError(ctx, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	items := []T{}
	for rows.Next() {
		var item T
		if err := t.scanRow(rows, cols, &item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, t.readError(ctx, err)
	}
	return items, nil
}

// ExecSQL 执行原生写语句，返回受影响行数。唯一键冲突映射为 Conflict。
func (t *Table[T]) ExecSQL(ctx context.Context, stmt string, args ...any) (int64, error) {
	if strings.TrimSpace(stmt) == "" {
		return 0, errors.NewInvalidArgument("stmt", "must not be empty")
	}
	t.logger.Debug(ctx, "raw exec", logging.String("sql", stmt))

	res, err := core.Executor(ctx, t.db).Exec(ctx, stmt, args...)
	if err != nil {
		return 0, t.writeError(ctx, err, "exec")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.WrapDatabaseError(ctx, err, "exec "+t.schema.table)
	}
	return n, nil
}
