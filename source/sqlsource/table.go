// Package sqlsource 基于 data/db 与 squirrel 的 SQL 数据源，实现 source.Store。
//
// 过滤、排序与取行窗口被编译为一条 SELECT 语句在数据库中执行；
// 关联（Include）在结果物化后由注册的 source.Loader 批量加载。
// 读写都通过 db.Executor 取执行器，context 中存在事务（uow）时自动加入。
package sqlsource

import (
	"context"
	"fmt"
	"reflect"

	sq "github.com/Masterminds/squirrel"

	core "repokit/data/db"
	"repokit/data/db/dialect"
	"repokit/errors"
	"repokit/logging"
	"repokit/source"
)

// Option 配置 Table
type Option[T any] func(*Table[T])

// WithTable 覆盖表名（默认取 TableName() 或类型名的 snake_case 复数）
func WithTable[T any](name string) Option[T] {
	return func(t *Table[T]) {
		if name != "" {
			t.schema.table = name
		}
	}
}

// WithColumn 把字段路径映射到列，常用于关联路径，如 WithColumn("Type.Id", "type_id")
func WithColumn[T any](path, column string) Option[T] {
	return func(t *Table[T]) {
		if path != "" && column != "" {
			t.schema.paths[path] = column
		}
	}
}

// WithKey 指定主键列（默认 primaryKey 标签或名为 id 的列）
func WithKey[T any](columns ...string) Option[T] {
	return func(t *Table[T]) {
		if len(columns) > 0 {
			t.keyColumns = columns
		}
	}
}

// WithQueryFilter 注册全局过滤器（如 sq.Eq{"deleted_at": nil}），查询设置 IgnoreQueryFilters 时跳过
func WithQueryFilter[T any](cond sq.Sqlizer) Option[T] {
	return func(t *Table[T]) {
		if cond != nil {
			t.filters = append(t.filters, cond)
		}
	}
}

// WithRelation 注册关联加载器
func WithRelation[T any](path string, loader source.Loader[T]) Option[T] {
	return func(t *Table[T]) {
		if path != "" && loader != nil {
			t.relations[path] = loader
		}
	}
}

// WithAutoInclude 每次查询都加载的关联，查询设置 IgnoreAutoIncludes 时跳过
func WithAutoInclude[T any](paths ...string) Option[T] {
	return func(t *Table[T]) {
		t.autoIncludes = append(t.autoIncludes, paths...)
	}
}

func WithLogger[T any](logger logging.Logger) Option[T] {
	return func(t *Table[T]) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Table 一张表对应的数据源
type Table[T any] struct {
	db      core.IDatabase
	dialect dialect.Dialect
	schema  *schema
	builder sq.StatementBuilderType

	keyColumns   []string
	filters      []sq.Sqlizer
	relations    map[string]source.Loader[T]
	autoIncludes []string
	logger       logging.Logger
}

// New 创建 SQL 数据源。T 必须是结构体，至少有一个可映射的标量字段。
func New[T any](database core.IDatabase, opts ...Option[T]) (*Table[T], error) {
	if database == nil {
		return nil, errors.NewInvalidArgument("database", "must not be nil")
	}
	s, err := buildSchema(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeInvalidArgument, "unsupported entity type").
			WithContext("param", "T")
	}
	d := dialect.FromDatabase(database)
	t := &Table[T]{
		db:        database,
		dialect:   d,
		schema:    s,
		builder:   sq.StatementBuilder.PlaceholderFormat(d.PlaceholderFormat()),
		relations: make(map[string]source.Loader[T]),
		logger:    logging.ComponentLogger("sqlsource"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	if len(t.keyColumns) > 0 {
		if err := s.setKeys(t.keyColumns); err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeInvalidArgument, "invalid key columns").
				WithContext("param", "keys")
		}
	}
	t.logger = t.logger.WithFields(logging.String("table", s.table))
	return t, nil
}

func (t *Table[T]) EntityName() string { return t.schema.table }

func (t *Table[T]) name() string { return "sqlsource." + t.schema.table }

func (t *Table[T]) quote(name string) string { return t.dialect.QuoteIdentifier(name) }

// Query 返回基础查询视图
func (t *Table[T]) Query() source.Queryable[T] {
	return &view[T]{table: t}
}

// Keys 实现 source.Keyed，按主键列顺序返回
func (t *Table[T]) Keys(entity *T) []any {
	if entity == nil {
		return nil
	}
	rv := reflect.ValueOf(entity).Elem()
	out := make([]any, 0, len(t.schema.keys))
	for _, c := range t.schema.keys {
		if fv := fieldByIndexSafe(rv, c.index); fv.IsValid() {
			out = append(out, fv.Interface())
		}
	}
	return out
}

// Insert 插入一行；零值自增主键交给数据库生成并回填
func (t *Table[T]) Insert(ctx context.Context, entity *T) error {
	if entity == nil {
		return errors.NewInvalidArgument("entity", "must not be nil")
	}
	rv := reflect.ValueOf(entity).Elem()

	var (
		cols      []string
		vals      []any
		generated *column
	)
	for i, c := range t.schema.columns {
		fv := fieldByIndexSafe(rv, c.index)
		if c.primaryKey && c.autoIncrement && fv.IsValid() && fv.IsZero() && len(t.schema.keys) == 1 {
			generated = &t.schema.columns[i]
			continue
		}
		cols = append(cols, t.quote(c.name))
		vals = append(vals, valueOf(fv))
	}
	b := t.builder.Insert(t.quote(t.schema.table)).Columns(cols...).Values(vals...)
	exec := core.Executor(ctx, t.db)

	if generated != nil && t.dialect.Name() == dialect.NamePostgres {
		b = b.Suffix("RETURNING " + t.quote(generated.name))
		stmt, args, err := b.ToSql()
		if err != nil {
			return err
		}
		t.logger.Debug(ctx, "insert", logging.String("sql", stmt))
		var id int64
		if err := exec.QueryRow(ctx, stmt, args...).Scan(&id); err != nil {
			return t.writeError(ctx, err, "insert")
		}
		return setInt(fieldByIndexSafe(rv, generated.index), id)
	}

	stmt, args, err := b.ToSql()
	if err != nil {
		return err
	}
	t.logger.Debug(ctx, "insert", logging.String("sql", stmt))
	res, err := exec.Exec(ctx, stmt, args...)
	if err != nil {
		return t.writeError(ctx, err, "insert")
	}
	if generated != nil {
		id, err := res.LastInsertId()
		if err != nil {
			return errors.WrapDatabaseError(ctx, err, "insert "+t.schema.table)
		}
		return setInt(fieldByIndexSafe(rv, generated.index), id)
	}
	return nil
}

// Update 按主键更新全部非主键列；没有命中行时返回 NotFound
func (t *Table[T]) Update(ctx context.Context, entity *T) error {
	if entity == nil {
		return errors.NewInvalidArgument("entity", "must not be nil")
	}
	where, err := t.keyCondition(entity)
	if err != nil {
		return err
	}
	rv := reflect.ValueOf(entity).Elem()
	b := t.builder.Update(t.quote(t.schema.table)).Where(where)
	for _, c := range t.schema.columns {
		if c.primaryKey {
			continue
		}
		b = b.Set(t.quote(c.name), valueOf(fieldByIndexSafe(rv, c.index)))
	}
	stmt, args, err := b.ToSql()
	if err != nil {
		return err
	}
	return t.execAffecting(ctx, "update", stmt, args, entity)
}

// Delete 按主键删除；没有命中行时返回 NotFound
func (t *Table[T]) Delete(ctx context.Context, entity *T) error {
	if entity == nil {
		return errors.NewInvalidArgument("entity", "must not be nil")
	}
	where, err := t.keyCondition(entity)
	if err != nil {
		return err
	}
	stmt, args, err := t.builder.Delete(t.quote(t.schema.table)).Where(where).ToSql()
	if err != nil {
		return err
	}
	return t.execAffecting(ctx, "delete", stmt, args, entity)
}

func (t *Table[T]) execAffecting(ctx context.Context, op, stmt string, args []any, entity *T) error {
	t.logger.Debug(ctx, op, logging.String("sql", stmt))
	res, err := core.Executor(ctx, t.db).Exec(ctx, stmt, args...)
	if err != nil {
		return t.writeError(ctx, err, op)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WrapDatabaseError(ctx, err, op+" "+t.schema.table)
	}
	if n == 0 {
		return errors.NewError(errors.ErrCodeNotFound, fmt.Sprintf("%s: key %v not found", t.schema.table, t.Keys(entity)))
	}
	return nil
}

func (t *Table[T]) keyCondition(entity *T) (sq.Eq, error) {
	if len(t.schema.keys) == 0 {
		return nil, source.Unsupported(t.name(), "write without primary key")
	}
	rv := reflect.ValueOf(entity).Elem()
	eq := sq.Eq{}
	for _, c := range t.schema.keys {
		eq[t.quote(c.name)] = valueOf(fieldByIndexSafe(rv, c.index))
	}
	return eq, nil
}

func (t *Table[T]) writeError(ctx context.Context, err error, op string) error {
	if t.dialect.IsUniqueViolation(err) {
		return errors.WrapError(err, errors.ErrCodeConflict, fmt.Sprintf("%s: duplicate key", t.schema.table))
	}
	if stdErr := ctx.Err(); stdErr != nil {
		return stdErr
	}
	return errors.WrapDatabaseError(ctx, err, op+" "+t.schema.table)
}

func valueOf(fv reflect.Value) any {
	if !fv.IsValid() {
		return nil
	}
	if fv.Kind() == reflect.Ptr && fv.IsNil() {
		return nil
	}
	return fv.Interface()
}

func setInt(fv reflect.Value, id int64) error {
	if !fv.IsValid() || !fv.CanSet() {
		return nil
	}
	switch fv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		fv.SetInt(id)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		fv.SetUint(uint64(id))
	default:
		return fmt.Errorf("sqlsource: cannot assign generated key to %s", fv.Type())
	}
	return nil
}

// scanRow 按列名把当前行写入 dest，未映射的列丢弃
func (t *Table[T]) scanRow(rows core.IRows, cols []string, dest *T) error {
	rv := reflect.ValueOf(dest).Elem()
	ptrs := make([]any, len(cols))
	for i, name := range cols {
		c, ok := t.schema.byName[name]
		if ok {
			if fv := fieldByIndexSafe(rv, c.index); fv.IsValid() && fv.CanSet() {
				ptrs[i] = fv.Addr().Interface()
				continue
			}
		}
		var discard any
		ptrs[i] = &discard
	}
	return rows.Scan(ptrs...)
}

var (
	_ source.Store[struct{ ID int }] = (*Table[struct{ ID int }])(nil)
	_ source.Keyed[struct{ ID int }] = (*Table[struct{ ID int }])(nil)
	_ source.Named                   = (*Table[struct{ ID int }])(nil)
	_ source.PathSorter              = (*view[struct{ ID int }])(nil)
)
